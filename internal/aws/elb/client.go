package elb

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	elb "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing/types"
	"github.com/aws/smithy-go"

	"tasnim.dev/elbctl/internal/lb"
)

// ErrCodeNotFound is the API error code returned for an unknown load balancer.
const ErrCodeNotFound = "LoadBalancerNotFound"

type ELBAPI interface {
	DescribeLoadBalancers(ctx context.Context, params *elb.DescribeLoadBalancersInput, optFns ...func(*elb.Options)) (*elb.DescribeLoadBalancersOutput, error)
	CreateLoadBalancer(ctx context.Context, params *elb.CreateLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.CreateLoadBalancerOutput, error)
	DeleteLoadBalancer(ctx context.Context, params *elb.DeleteLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.DeleteLoadBalancerOutput, error)
	EnableAvailabilityZonesForLoadBalancer(ctx context.Context, params *elb.EnableAvailabilityZonesForLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.EnableAvailabilityZonesForLoadBalancerOutput, error)
	DisableAvailabilityZonesForLoadBalancer(ctx context.Context, params *elb.DisableAvailabilityZonesForLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.DisableAvailabilityZonesForLoadBalancerOutput, error)
	AttachLoadBalancerToSubnets(ctx context.Context, params *elb.AttachLoadBalancerToSubnetsInput, optFns ...func(*elb.Options)) (*elb.AttachLoadBalancerToSubnetsOutput, error)
	DetachLoadBalancerFromSubnets(ctx context.Context, params *elb.DetachLoadBalancerFromSubnetsInput, optFns ...func(*elb.Options)) (*elb.DetachLoadBalancerFromSubnetsOutput, error)
	ApplySecurityGroupsToLoadBalancer(ctx context.Context, params *elb.ApplySecurityGroupsToLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.ApplySecurityGroupsToLoadBalancerOutput, error)
	CreateLoadBalancerListeners(ctx context.Context, params *elb.CreateLoadBalancerListenersInput, optFns ...func(*elb.Options)) (*elb.CreateLoadBalancerListenersOutput, error)
	DeleteLoadBalancerListeners(ctx context.Context, params *elb.DeleteLoadBalancerListenersInput, optFns ...func(*elb.Options)) (*elb.DeleteLoadBalancerListenersOutput, error)
	ConfigureHealthCheck(ctx context.Context, params *elb.ConfigureHealthCheckInput, optFns ...func(*elb.Options)) (*elb.ConfigureHealthCheckOutput, error)
	RegisterInstancesWithLoadBalancer(ctx context.Context, params *elb.RegisterInstancesWithLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.RegisterInstancesWithLoadBalancerOutput, error)
	DeregisterInstancesFromLoadBalancer(ctx context.Context, params *elb.DeregisterInstancesFromLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.DeregisterInstancesFromLoadBalancerOutput, error)
}

// Client drives Classic Load Balancers and implements lb.RemoteClient.
type Client struct {
	api ELBAPI
}

func NewClient(api ELBAPI) *Client {
	return &Client{api: api}
}

var _ lb.RemoteClient = (*Client)(nil)

// IsNotFound reports whether err is the API's "load balancer not found" error.
func IsNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == ErrCodeNotFound
	}
	return false
}

func (c *Client) wrap(op, name string, err error) error {
	if IsNotFound(err) {
		return fmt.Errorf("%s: %w", op, &lb.NotFoundError{Name: name})
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ListLoadBalancers returns every Classic Load Balancer in the region.
func (c *Client) ListLoadBalancers(ctx context.Context) ([]lb.ObservedState, error) {
	var out []lb.ObservedState
	var marker *string

	for {
		resp, err := c.api.DescribeLoadBalancers(ctx, &elb.DescribeLoadBalancersInput{
			Marker: marker,
		})
		if err != nil {
			return nil, fmt.Errorf("DescribeLoadBalancers: %w", err)
		}
		for _, d := range resp.LoadBalancerDescriptions {
			out = append(out, *toObserved(d))
		}
		if resp.NextMarker == nil {
			break
		}
		marker = resp.NextMarker
	}
	return out, nil
}

func (c *Client) Describe(ctx context.Context, name string) (*lb.ObservedState, error) {
	resp, err := c.api.DescribeLoadBalancers(ctx, &elb.DescribeLoadBalancersInput{
		LoadBalancerNames: []string{name},
	})
	if err != nil {
		return nil, c.wrap("DescribeLoadBalancers", name, err)
	}
	for _, d := range resp.LoadBalancerDescriptions {
		if aws.ToString(d.LoadBalancerName) == name {
			return toObserved(d), nil
		}
	}
	return nil, fmt.Errorf("DescribeLoadBalancers: %w", &lb.NotFoundError{Name: name})
}

func (c *Client) Exists(ctx context.Context, name string) (bool, error) {
	_, err := c.Describe(ctx, name)
	var nf *lb.NotFoundError
	if errors.As(err, &nf) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) Create(ctx context.Context, req lb.CreateRequest) (string, error) {
	in := &elb.CreateLoadBalancerInput{
		LoadBalancerName: aws.String(req.Name),
		Listeners:        []elbtypes.Listener{toSDKListener(req.Listener)},
	}
	if len(req.AvailabilityZones) > 0 {
		in.AvailabilityZones = req.AvailabilityZones
	}
	if len(req.Subnets) > 0 {
		in.Subnets = req.Subnets
	}
	if len(req.SecurityGroups) > 0 {
		in.SecurityGroups = req.SecurityGroups
	}
	if req.Scheme != "" {
		in.Scheme = aws.String(req.Scheme)
	}

	out, err := c.api.CreateLoadBalancer(ctx, in)
	if err != nil {
		return "", fmt.Errorf("CreateLoadBalancer: %w", err)
	}
	return aws.ToString(out.DNSName), nil
}

func (c *Client) Delete(ctx context.Context, name string) error {
	if _, err := c.api.DeleteLoadBalancer(ctx, &elb.DeleteLoadBalancerInput{
		LoadBalancerName: aws.String(name),
	}); err != nil {
		return c.wrap("DeleteLoadBalancer", name, err)
	}
	return nil
}

func (c *Client) SetZones(ctx context.Context, name string, add, remove []string) error {
	if len(add) > 0 {
		if _, err := c.api.EnableAvailabilityZonesForLoadBalancer(ctx, &elb.EnableAvailabilityZonesForLoadBalancerInput{
			LoadBalancerName:  aws.String(name),
			AvailabilityZones: add,
		}); err != nil {
			return c.wrap("EnableAvailabilityZonesForLoadBalancer", name, err)
		}
	}
	if len(remove) > 0 {
		if _, err := c.api.DisableAvailabilityZonesForLoadBalancer(ctx, &elb.DisableAvailabilityZonesForLoadBalancerInput{
			LoadBalancerName:  aws.String(name),
			AvailabilityZones: remove,
		}); err != nil {
			return c.wrap("DisableAvailabilityZonesForLoadBalancer", name, err)
		}
	}
	return nil
}

func (c *Client) SetSubnets(ctx context.Context, name string, add, remove []string) error {
	if len(add) > 0 {
		if _, err := c.api.AttachLoadBalancerToSubnets(ctx, &elb.AttachLoadBalancerToSubnetsInput{
			LoadBalancerName: aws.String(name),
			Subnets:          add,
		}); err != nil {
			return c.wrap("AttachLoadBalancerToSubnets", name, err)
		}
	}
	if len(remove) > 0 {
		if _, err := c.api.DetachLoadBalancerFromSubnets(ctx, &elb.DetachLoadBalancerFromSubnetsInput{
			LoadBalancerName: aws.String(name),
			Subnets:          remove,
		}); err != nil {
			return c.wrap("DetachLoadBalancerFromSubnets", name, err)
		}
	}
	return nil
}

func (c *Client) SetSecurityGroups(ctx context.Context, name string, groups []string) error {
	if _, err := c.api.ApplySecurityGroupsToLoadBalancer(ctx, &elb.ApplySecurityGroupsToLoadBalancerInput{
		LoadBalancerName: aws.String(name),
		SecurityGroups:   groups,
	}); err != nil {
		return c.wrap("ApplySecurityGroupsToLoadBalancer", name, err)
	}
	return nil
}

// SetListeners deletes the listeners on removePorts, then creates add.
func (c *Client) SetListeners(ctx context.Context, name string, removePorts []int32, add lb.Listener) error {
	if len(removePorts) > 0 {
		if _, err := c.api.DeleteLoadBalancerListeners(ctx, &elb.DeleteLoadBalancerListenersInput{
			LoadBalancerName:  aws.String(name),
			LoadBalancerPorts: removePorts,
		}); err != nil {
			return c.wrap("DeleteLoadBalancerListeners", name, err)
		}
	}
	if _, err := c.api.CreateLoadBalancerListeners(ctx, &elb.CreateLoadBalancerListenersInput{
		LoadBalancerName: aws.String(name),
		Listeners:        []elbtypes.Listener{toSDKListener(add)},
	}); err != nil {
		return c.wrap("CreateLoadBalancerListeners", name, err)
	}
	return nil
}

func (c *Client) ConfigureHealthCheck(ctx context.Context, name string, hc lb.HealthCheck) error {
	if _, err := c.api.ConfigureHealthCheck(ctx, &elb.ConfigureHealthCheckInput{
		LoadBalancerName: aws.String(name),
		HealthCheck: &elbtypes.HealthCheck{
			Target:             aws.String(hc.Target),
			Interval:           aws.Int32(hc.Interval),
			Timeout:            aws.Int32(hc.Timeout),
			HealthyThreshold:   aws.Int32(hc.HealthyThreshold),
			UnhealthyThreshold: aws.Int32(hc.UnhealthyThreshold),
		},
	}); err != nil {
		return c.wrap("ConfigureHealthCheck", name, err)
	}
	return nil
}

func (c *Client) RegisterTargets(ctx context.Context, name string, add []string) error {
	if len(add) == 0 {
		return nil
	}
	if _, err := c.api.RegisterInstancesWithLoadBalancer(ctx, &elb.RegisterInstancesWithLoadBalancerInput{
		LoadBalancerName: aws.String(name),
		Instances:        toInstances(add),
	}); err != nil {
		return c.wrap("RegisterInstancesWithLoadBalancer", name, err)
	}
	return nil
}

func (c *Client) DeregisterTargets(ctx context.Context, name string, remove []string) error {
	if len(remove) == 0 {
		return nil
	}
	if _, err := c.api.DeregisterInstancesFromLoadBalancer(ctx, &elb.DeregisterInstancesFromLoadBalancerInput{
		LoadBalancerName: aws.String(name),
		Instances:        toInstances(remove),
	}); err != nil {
		return c.wrap("DeregisterInstancesFromLoadBalancer", name, err)
	}
	return nil
}

func toInstances(ids []string) []elbtypes.Instance {
	out := make([]elbtypes.Instance, 0, len(ids))
	for _, id := range ids {
		out = append(out, elbtypes.Instance{InstanceId: aws.String(id)})
	}
	return out
}

func toSDKListener(l lb.Listener) elbtypes.Listener {
	out := elbtypes.Listener{
		Protocol:         aws.String(l.Protocol),
		LoadBalancerPort: l.Port,
		InstanceProtocol: aws.String(l.InstanceProtocol),
		InstancePort:     aws.Int32(l.InstancePort),
	}
	if l.SSLCertificateID != "" {
		out.SSLCertificateId = aws.String(l.SSLCertificateID)
	}
	return out
}

func toObserved(d elbtypes.LoadBalancerDescription) *lb.ObservedState {
	o := &lb.ObservedState{
		Name:                    aws.ToString(d.LoadBalancerName),
		DNSName:                 aws.ToString(d.DNSName),
		Scheme:                  aws.ToString(d.Scheme),
		AvailabilityZones:       slices.Clone(d.AvailabilityZones),
		Subnets:                 slices.Clone(d.Subnets),
		SecurityGroups:          slices.Clone(d.SecurityGroups),
		CanonicalHostedZoneName: aws.ToString(d.CanonicalHostedZoneName),
		CanonicalHostedZoneID:   aws.ToString(d.CanonicalHostedZoneNameID),
		VPCID:                   aws.ToString(d.VPCId),
	}
	if d.CreatedTime != nil {
		o.CreatedAt = *d.CreatedTime
	}
	for _, ld := range d.ListenerDescriptions {
		if ld.Listener == nil {
			continue
		}
		l := ld.Listener
		o.Listeners = append(o.Listeners, lb.Listener{
			Protocol:         aws.ToString(l.Protocol),
			Port:             l.LoadBalancerPort,
			InstanceProtocol: aws.ToString(l.InstanceProtocol),
			InstancePort:     aws.ToInt32(l.InstancePort),
			SSLCertificateID: aws.ToString(l.SSLCertificateId),
		})
	}
	if hc := d.HealthCheck; hc != nil {
		o.HealthCheck = &lb.HealthCheck{
			Target:             aws.ToString(hc.Target),
			Interval:           aws.ToInt32(hc.Interval),
			Timeout:            aws.ToInt32(hc.Timeout),
			HealthyThreshold:   aws.ToInt32(hc.HealthyThreshold),
			UnhealthyThreshold: aws.ToInt32(hc.UnhealthyThreshold),
		}
	}
	for _, inst := range d.Instances {
		if id := aws.ToString(inst.InstanceId); id != "" {
			o.Targets = append(o.Targets, id)
		}
	}
	slices.Sort(o.Targets)
	return o
}
