package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"tasnim.dev/elbctl/internal/lb"
	"tasnim.dev/elbctl/internal/membership"
)

const (
	DefaultID              = "elbctl"
	defaultRefreshInterval = 30
	minRefreshInterval     = 5
	defaultPollInterval    = 30
	minPollInterval        = 5
)

// Config is loaded from ~/.config/elbctl/config.yaml.
type Config struct {
	DefaultProfile           string             `yaml:"default_profile"`
	DefaultRegion            string             `yaml:"default_region"`
	ID                       string             `yaml:"id"`
	StatePath                string             `yaml:"state_path"`
	AttributeRefreshInterval int                `yaml:"attribute_refresh_interval"`
	MetricsAddr              string             `yaml:"metrics_addr"`
	Log                      LogConfig          `yaml:"log"`
	LoadBalancer             LoadBalancerConfig `yaml:"load_balancer"`
	Membership               MembershipConfig   `yaml:"membership"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	JSON   bool   `yaml:"json"`
	Colors *bool  `yaml:"colors"`
}

type LoadBalancerConfig struct {
	Name              string            `yaml:"name"`
	BindToExisting    bool              `yaml:"bind_to_existing"`
	ReplaceExisting   bool              `yaml:"replace_existing"`
	AvailabilityZones []string          `yaml:"availability_zones"`
	Subnets           []string          `yaml:"subnets"`
	SecurityGroups    []string          `yaml:"security_groups"`
	Scheme            string            `yaml:"scheme"`
	ListenerPort      int32             `yaml:"listener_port"`
	ListenerProtocol  string            `yaml:"listener_protocol"`
	InstancePort      int32             `yaml:"instance_port"`
	InstanceProtocol  string            `yaml:"instance_protocol"`
	SSLCertificateID  string            `yaml:"ssl_certificate_id"`
	HealthCheck       HealthCheckConfig `yaml:"health_check"`
}

// HealthCheckConfig leaves numeric fields nil when absent from the file.
type HealthCheckConfig struct {
	Enabled            *bool  `yaml:"enabled"`
	Target             string `yaml:"target"`
	Interval           *int32 `yaml:"interval"`
	Timeout            *int32 `yaml:"timeout"`
	HealthyThreshold   *int32 `yaml:"healthy_threshold"`
	UnhealthyThreshold *int32 `yaml:"unhealthy_threshold"`
}

type MembershipConfig struct {
	Static       []string          `yaml:"static"`
	EC2Tags      map[string]string `yaml:"ec2_tags"`
	Kubernetes   *KubernetesConfig `yaml:"kubernetes"`
	PollInterval int               `yaml:"poll_interval"`
}

type KubernetesConfig struct {
	APIServer     string `yaml:"api_server"`
	TokenFile     string `yaml:"token_file"`
	CAFile        string `yaml:"ca_file"`
	LabelSelector string `yaml:"label_selector"`
}

// Dir returns ~/.config/elbctl.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "elbctl"), nil
}

// Load reads the config file at path, or the default location when path is
// empty. A missing file yields a zero-value Config.
func Load(path string) (*Config, error) {
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return &Config{}, nil
		}
		path = filepath.Join(dir, "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// Merge applies CLI flag overrides. Flags take precedence over config defaults.
func (c *Config) Merge(profile, region string) (string, string) {
	p := c.DefaultProfile
	if profile != "" {
		p = profile
	}
	r := c.DefaultRegion
	if region != "" {
		r = region
	}
	return p, r
}

// EntityID identifies the managed load balancer in the state store and
// prefixes generated names.
func (c *Config) EntityID() string {
	if c.ID != "" {
		return c.ID
	}
	return DefaultID
}

// StateFile returns the handle database path.
func (c *Config) StateFile() (string, error) {
	if c.StatePath != "" {
		return c.StatePath, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state.db"), nil
}

// RefreshInterval returns the attribute refresh period.
// Defaults to 30s; minimum 5s.
func (c *Config) RefreshInterval() time.Duration {
	return seconds(c.AttributeRefreshInterval, defaultRefreshInterval, minRefreshInterval)
}

// PollInterval returns the membership poll period.
// Defaults to 30s; minimum 5s.
func (c *Config) PollInterval() time.Duration {
	return seconds(c.Membership.PollInterval, defaultPollInterval, minPollInterval)
}

func seconds(v, def, lo int) time.Duration {
	if v <= 0 {
		v = def
	}
	if v < lo {
		v = lo
	}
	return time.Duration(v) * time.Second
}

// ColorsEnabled reports whether console log output should be colored.
func (l LogConfig) ColorsEnabled() bool {
	return l.Colors == nil || *l.Colors
}

// DesiredSpec converts the load_balancer section into a spec. Listener
// fields default to HTTP:80 -> HTTP:8080. When creating, absent health
// check fields take the defaults 20s/10s/2/2; when binding they stay unset
// so the load balancer's current values are kept.
func (c *Config) DesiredSpec() lb.DesiredSpec {
	l := c.LoadBalancer
	spec := lb.DesiredSpec{
		Name:              l.Name,
		AvailabilityZones: slices.Clone(l.AvailabilityZones),
		Subnets:           slices.Clone(l.Subnets),
		SecurityGroups:    slices.Clone(l.SecurityGroups),
		Scheme:            l.Scheme,
		BindToExisting:    l.BindToExisting,
		ReplaceExisting:   l.ReplaceExisting,
		Listener: lb.Listener{
			Protocol:         or(l.ListenerProtocol, "HTTP"),
			Port:             or(l.ListenerPort, 80),
			InstanceProtocol: or(l.InstanceProtocol, "HTTP"),
			InstancePort:     or(l.InstancePort, 8080),
			SSLCertificateID: l.SSLCertificateID,
		},
	}

	hc := l.HealthCheck
	spec.HealthCheck = lb.HealthCheckSpec{
		Enabled:            hc.Enabled == nil || *hc.Enabled,
		TargetTemplate:     or(hc.Target, lb.DefaultHealthCheckTarget),
		Interval:           hc.Interval,
		Timeout:            hc.Timeout,
		HealthyThreshold:   hc.HealthyThreshold,
		UnhealthyThreshold: hc.UnhealthyThreshold,
	}
	if !l.BindToExisting {
		spec.HealthCheck.Interval = orPtr(hc.Interval, 20)
		spec.HealthCheck.Timeout = orPtr(hc.Timeout, 10)
		spec.HealthCheck.HealthyThreshold = orPtr(hc.HealthyThreshold, 2)
		spec.HealthCheck.UnhealthyThreshold = orPtr(hc.UnhealthyThreshold, 2)
	}
	return spec
}

func or[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func orPtr(v *int32, def int32) *int32 {
	if v != nil {
		return v
	}
	return &def
}

// MembershipSource names the configured target source: kubernetes, ec2 or
// static.
func (c *Config) MembershipSource() string {
	switch {
	case c.Membership.Kubernetes != nil:
		return "kubernetes"
	case len(c.Membership.EC2Tags) > 0:
		return "ec2"
	default:
		return "static"
	}
}

// KubernetesSource converts the kubernetes section for the membership
// package.
func (c *Config) KubernetesSource() membership.KubernetesConfig {
	k := c.Membership.Kubernetes
	if k == nil {
		return membership.KubernetesConfig{}
	}
	return membership.KubernetesConfig{
		APIServer:     k.APIServer,
		TokenFile:     k.TokenFile,
		CAFile:        k.CAFile,
		LabelSelector: k.LabelSelector,
	}
}
