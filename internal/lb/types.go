// Package lb holds the domain model shared by the reconciliation engine:
// desired and observed load-balancer configuration, the resource handle,
// the error taxonomy and the narrow interfaces of its collaborators.
package lb

import (
	"slices"
	"time"
)

// Listener describes the single front-end listener of a load balancer.
type Listener struct {
	Protocol         string // HTTP, HTTPS, TCP or SSL
	Port             int32
	InstanceProtocol string
	InstancePort     int32
	SSLCertificateID string
}

// HealthCheck is a fully specified health-check descriptor as the remote API
// accepts it.
type HealthCheck struct {
	Target             string
	Interval           int32
	Timeout            int32
	HealthyThreshold   int32
	UnhealthyThreshold int32
}

// HealthCheckSpec is the operator's view of the health check. Nil numeric
// fields mean "keep whatever the load balancer currently has".
type HealthCheckSpec struct {
	Enabled            bool
	TargetTemplate     string
	Interval           *int32
	Timeout            *int32
	HealthyThreshold   *int32
	UnhealthyThreshold *int32
}

// Complete reports whether every numeric field is set.
func (h HealthCheckSpec) Complete() bool {
	return h.Interval != nil && h.Timeout != nil && h.HealthyThreshold != nil && h.UnhealthyThreshold != nil
}

// DesiredSpec is the configuration the operator wants the load balancer to
// have. Zones and subnets are alternative placement strategies.
type DesiredSpec struct {
	Name              string
	AvailabilityZones []string
	Subnets           []string
	SecurityGroups    []string
	Scheme            string
	Listener          Listener
	HealthCheck       HealthCheckSpec
	BindToExisting    bool
	ReplaceExisting   bool
}

// Clone returns a deep copy so the caller's slices and pointers cannot leak
// into a running reconciler.
func (d DesiredSpec) Clone() DesiredSpec {
	out := d
	out.AvailabilityZones = slices.Clone(d.AvailabilityZones)
	out.Subnets = slices.Clone(d.Subnets)
	out.SecurityGroups = slices.Clone(d.SecurityGroups)
	out.HealthCheck.Interval = clonePtr(d.HealthCheck.Interval)
	out.HealthCheck.Timeout = clonePtr(d.HealthCheck.Timeout)
	out.HealthCheck.HealthyThreshold = clonePtr(d.HealthCheck.HealthyThreshold)
	out.HealthCheck.UnhealthyThreshold = clonePtr(d.HealthCheck.UnhealthyThreshold)
	return out
}

func clonePtr(p *int32) *int32 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ObservedState is a point-in-time description of the remote load balancer.
// It is fetched at the start of every pass and never cached.
type ObservedState struct {
	Name                    string
	DNSName                 string
	Scheme                  string
	AvailabilityZones       []string
	Subnets                 []string
	SecurityGroups          []string
	Listeners               []Listener
	HealthCheck             *HealthCheck
	Targets                 []string
	CanonicalHostedZoneName string
	CanonicalHostedZoneID   string
	VPCID                   string
	CreatedAt               time.Time
}

// ListenerPorts returns the front-end ports of the observed listeners.
func (o *ObservedState) ListenerPorts() []int32 {
	ports := make([]int32, 0, len(o.Listeners))
	for _, l := range o.Listeners {
		ports = append(ports, l.Port)
	}
	return ports
}

// ResourceHandle identifies a load balancer once it has been created or bound.
type ResourceHandle struct {
	Name   string
	Region string
}

// CreateRequest carries everything the remote create call needs.
// Exactly one of AvailabilityZones and Subnets is non-empty.
type CreateRequest struct {
	Name              string
	Listener          Listener
	AvailabilityZones []string
	Subnets           []string
	Scheme            string
	SecurityGroups    []string
}
