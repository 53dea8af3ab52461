package lb

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// MaxNameLength is the longest name the remote API accepts.
const MaxNameLength = 32

// DefaultHealthCheckTarget renders to e.g. "HTTP:8080/".
const DefaultHealthCheckTarget = "${instanceProtocol}:${instancePort}/"

var (
	namePattern   = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]*[A-Za-z0-9])?$`)
	healthPattern = regexp.MustCompile(`^(HTTP|HTTPS|TCP|SSL):[0-9]{1,5}(/.*)?$`)
)

var protocols = map[string]bool{"HTTP": true, "HTTPS": true, "TCP": true, "SSL": true}

// ValidateName checks a load-balancer name against the remote naming rules.
func ValidateName(name string) error {
	if len(name) > MaxNameLength {
		return &InvalidSpecError{Field: "name", Reason: fmt.Sprintf("%q is longer than %d characters", name, MaxNameLength)}
	}
	if !namePattern.MatchString(name) {
		return &InvalidSpecError{Field: "name", Reason: fmt.Sprintf("%q must contain only alphanumerics and hyphens, and must not begin or end with a hyphen", name)}
	}
	return nil
}

// Validate rejects a spec the engine must never act on. It performs no
// remote calls.
func (d DesiredSpec) Validate() error {
	if d.BindToExisting && d.ReplaceExisting {
		return &InvalidSpecError{Field: "strategy", Reason: "bind_to_existing and replace_existing are mutually exclusive"}
	}
	if (d.BindToExisting || d.ReplaceExisting) && strings.TrimSpace(d.Name) == "" {
		return &InvalidSpecError{Field: "name", Reason: "a name is required to bind to or replace an existing load balancer"}
	}
	if d.Name != "" {
		if err := ValidateName(d.Name); err != nil {
			return err
		}
	}
	if len(d.AvailabilityZones) > 0 && len(d.Subnets) > 0 {
		return &InvalidSpecError{Field: "placement", Reason: "availability zones and subnets are mutually exclusive"}
	}
	if err := d.Listener.Validate(); err != nil {
		return err
	}
	if d.HealthCheck.Enabled {
		if _, err := d.HealthCheckTarget(); err != nil {
			return err
		}
		for field, v := range map[string]*int32{
			"health_check.interval":            d.HealthCheck.Interval,
			"health_check.timeout":             d.HealthCheck.Timeout,
			"health_check.healthy_threshold":   d.HealthCheck.HealthyThreshold,
			"health_check.unhealthy_threshold": d.HealthCheck.UnhealthyThreshold,
		} {
			if v != nil && *v <= 0 {
				return &InvalidSpecError{Field: field, Reason: "must be positive"}
			}
		}
		if i, t := d.HealthCheck.Interval, d.HealthCheck.Timeout; i != nil && t != nil && *t >= *i {
			return &InvalidSpecError{Field: "health_check.timeout", Reason: "must be less than the interval"}
		}
	}
	return nil
}

// Validate checks protocols, ports and certificate requirements.
func (l Listener) Validate() error {
	if !protocols[l.Protocol] {
		return &InvalidSpecError{Field: "listener.protocol", Reason: fmt.Sprintf("unsupported protocol %q", l.Protocol)}
	}
	if !protocols[l.InstanceProtocol] {
		return &InvalidSpecError{Field: "listener.instance_protocol", Reason: fmt.Sprintf("unsupported protocol %q", l.InstanceProtocol)}
	}
	if l.Port < 1 || l.Port > 65535 {
		return &InvalidSpecError{Field: "listener.port", Reason: fmt.Sprintf("%d out of range", l.Port)}
	}
	if l.InstancePort < 1 || l.InstancePort > 65535 {
		return &InvalidSpecError{Field: "listener.instance_port", Reason: fmt.Sprintf("%d out of range", l.InstancePort)}
	}
	if (l.Protocol == "HTTPS" || l.Protocol == "SSL") && l.SSLCertificateID == "" {
		return &InvalidSpecError{Field: "listener.ssl_certificate_id", Reason: l.Protocol + " listeners need a certificate"}
	}
	return nil
}

// HealthCheckTarget renders the configured target template for this spec's
// listener.
func (d DesiredSpec) HealthCheckTarget() (string, error) {
	return RenderHealthCheckTarget(d.HealthCheck.TargetTemplate, d.Listener.InstanceProtocol, d.Listener.InstancePort)
}

// RenderHealthCheckTarget substitutes ${instanceProtocol} and ${instancePort}
// in template. An empty template uses DefaultHealthCheckTarget.
func RenderHealthCheckTarget(template, instanceProtocol string, instancePort int32) (string, error) {
	if template == "" {
		template = DefaultHealthCheckTarget
	}
	var unknown []string
	target := os.Expand(template, func(key string) string {
		switch key {
		case "instanceProtocol":
			return instanceProtocol
		case "instancePort":
			return strconv.Itoa(int(instancePort))
		default:
			unknown = append(unknown, key)
			return ""
		}
	})
	if len(unknown) > 0 {
		return "", &InvalidSpecError{Field: "health_check.target", Reason: fmt.Sprintf("unknown variables %v in %q", unknown, template)}
	}
	if !healthPattern.MatchString(target) {
		return "", &InvalidSpecError{Field: "health_check.target", Reason: fmt.Sprintf("%q is not PROTOCOL:PORT[/PATH]", target)}
	}
	return target, nil
}
