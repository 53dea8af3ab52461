package elb

import (
	"context"
	"fmt"
	"testing"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	elb "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing/types"
	"github.com/aws/smithy-go"
	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasnim.dev/elbctl/internal/lb"
)

type mockELBAPI struct {
	describeLoadBalancersFunc func(ctx context.Context, params *elb.DescribeLoadBalancersInput, optFns ...func(*elb.Options)) (*elb.DescribeLoadBalancersOutput, error)
	createLoadBalancerFunc    func(ctx context.Context, params *elb.CreateLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.CreateLoadBalancerOutput, error)
	deleteLoadBalancerFunc    func(ctx context.Context, params *elb.DeleteLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.DeleteLoadBalancerOutput, error)
	enableZonesFunc           func(ctx context.Context, params *elb.EnableAvailabilityZonesForLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.EnableAvailabilityZonesForLoadBalancerOutput, error)
	disableZonesFunc          func(ctx context.Context, params *elb.DisableAvailabilityZonesForLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.DisableAvailabilityZonesForLoadBalancerOutput, error)
	attachSubnetsFunc         func(ctx context.Context, params *elb.AttachLoadBalancerToSubnetsInput, optFns ...func(*elb.Options)) (*elb.AttachLoadBalancerToSubnetsOutput, error)
	detachSubnetsFunc         func(ctx context.Context, params *elb.DetachLoadBalancerFromSubnetsInput, optFns ...func(*elb.Options)) (*elb.DetachLoadBalancerFromSubnetsOutput, error)
	applySecurityGroupsFunc   func(ctx context.Context, params *elb.ApplySecurityGroupsToLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.ApplySecurityGroupsToLoadBalancerOutput, error)
	createListenersFunc       func(ctx context.Context, params *elb.CreateLoadBalancerListenersInput, optFns ...func(*elb.Options)) (*elb.CreateLoadBalancerListenersOutput, error)
	deleteListenersFunc       func(ctx context.Context, params *elb.DeleteLoadBalancerListenersInput, optFns ...func(*elb.Options)) (*elb.DeleteLoadBalancerListenersOutput, error)
	configureHealthCheckFunc  func(ctx context.Context, params *elb.ConfigureHealthCheckInput, optFns ...func(*elb.Options)) (*elb.ConfigureHealthCheckOutput, error)
	registerInstancesFunc     func(ctx context.Context, params *elb.RegisterInstancesWithLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.RegisterInstancesWithLoadBalancerOutput, error)
	deregisterInstancesFunc   func(ctx context.Context, params *elb.DeregisterInstancesFromLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.DeregisterInstancesFromLoadBalancerOutput, error)
}

func (m *mockELBAPI) DescribeLoadBalancers(ctx context.Context, params *elb.DescribeLoadBalancersInput, optFns ...func(*elb.Options)) (*elb.DescribeLoadBalancersOutput, error) {
	return m.describeLoadBalancersFunc(ctx, params, optFns...)
}
func (m *mockELBAPI) CreateLoadBalancer(ctx context.Context, params *elb.CreateLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.CreateLoadBalancerOutput, error) {
	return m.createLoadBalancerFunc(ctx, params, optFns...)
}
func (m *mockELBAPI) DeleteLoadBalancer(ctx context.Context, params *elb.DeleteLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.DeleteLoadBalancerOutput, error) {
	return m.deleteLoadBalancerFunc(ctx, params, optFns...)
}
func (m *mockELBAPI) EnableAvailabilityZonesForLoadBalancer(ctx context.Context, params *elb.EnableAvailabilityZonesForLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.EnableAvailabilityZonesForLoadBalancerOutput, error) {
	return m.enableZonesFunc(ctx, params, optFns...)
}
func (m *mockELBAPI) DisableAvailabilityZonesForLoadBalancer(ctx context.Context, params *elb.DisableAvailabilityZonesForLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.DisableAvailabilityZonesForLoadBalancerOutput, error) {
	return m.disableZonesFunc(ctx, params, optFns...)
}
func (m *mockELBAPI) AttachLoadBalancerToSubnets(ctx context.Context, params *elb.AttachLoadBalancerToSubnetsInput, optFns ...func(*elb.Options)) (*elb.AttachLoadBalancerToSubnetsOutput, error) {
	return m.attachSubnetsFunc(ctx, params, optFns...)
}
func (m *mockELBAPI) DetachLoadBalancerFromSubnets(ctx context.Context, params *elb.DetachLoadBalancerFromSubnetsInput, optFns ...func(*elb.Options)) (*elb.DetachLoadBalancerFromSubnetsOutput, error) {
	return m.detachSubnetsFunc(ctx, params, optFns...)
}
func (m *mockELBAPI) ApplySecurityGroupsToLoadBalancer(ctx context.Context, params *elb.ApplySecurityGroupsToLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.ApplySecurityGroupsToLoadBalancerOutput, error) {
	return m.applySecurityGroupsFunc(ctx, params, optFns...)
}
func (m *mockELBAPI) CreateLoadBalancerListeners(ctx context.Context, params *elb.CreateLoadBalancerListenersInput, optFns ...func(*elb.Options)) (*elb.CreateLoadBalancerListenersOutput, error) {
	return m.createListenersFunc(ctx, params, optFns...)
}
func (m *mockELBAPI) DeleteLoadBalancerListeners(ctx context.Context, params *elb.DeleteLoadBalancerListenersInput, optFns ...func(*elb.Options)) (*elb.DeleteLoadBalancerListenersOutput, error) {
	return m.deleteListenersFunc(ctx, params, optFns...)
}
func (m *mockELBAPI) ConfigureHealthCheck(ctx context.Context, params *elb.ConfigureHealthCheckInput, optFns ...func(*elb.Options)) (*elb.ConfigureHealthCheckOutput, error) {
	return m.configureHealthCheckFunc(ctx, params, optFns...)
}
func (m *mockELBAPI) RegisterInstancesWithLoadBalancer(ctx context.Context, params *elb.RegisterInstancesWithLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.RegisterInstancesWithLoadBalancerOutput, error) {
	return m.registerInstancesFunc(ctx, params, optFns...)
}
func (m *mockELBAPI) DeregisterInstancesFromLoadBalancer(ctx context.Context, params *elb.DeregisterInstancesFromLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.DeregisterInstancesFromLoadBalancerOutput, error) {
	return m.deregisterInstancesFunc(ctx, params, optFns...)
}

func notFoundErr() error {
	return &smithy.GenericAPIError{Code: ErrCodeNotFound, Message: "There is no ACTIVE Load Balancer named 'web'"}
}

func TestDescribe(t *testing.T) {
	created := time.Date(2025, 8, 10, 12, 0, 0, 0, time.UTC)
	mock := &mockELBAPI{
		describeLoadBalancersFunc: func(ctx context.Context, params *elb.DescribeLoadBalancersInput, optFns ...func(*elb.Options)) (*elb.DescribeLoadBalancersOutput, error) {
			assert.Equal(t, []string{"web"}, params.LoadBalancerNames)
			return &elb.DescribeLoadBalancersOutput{
				LoadBalancerDescriptions: []elbtypes.LoadBalancerDescription{{
					LoadBalancerName:          awssdk.String("web"),
					DNSName:                   awssdk.String("web-123.us-east-1.elb.amazonaws.com"),
					Scheme:                    awssdk.String("internet-facing"),
					AvailabilityZones:         []string{"us-east-1a", "us-east-1b"},
					SecurityGroups:            []string{"sg-1"},
					CanonicalHostedZoneName:   awssdk.String("web-123.us-east-1.elb.amazonaws.com"),
					CanonicalHostedZoneNameID: awssdk.String("Z35SXDOTRQ7X7K"),
					VPCId:                     awssdk.String("vpc-abc"),
					CreatedTime:               &created,
					ListenerDescriptions: []elbtypes.ListenerDescription{{
						Listener: &elbtypes.Listener{
							Protocol:         awssdk.String("HTTP"),
							LoadBalancerPort: 80,
							InstanceProtocol: awssdk.String("HTTP"),
							InstancePort:     awssdk.Int32(8080),
						},
					}},
					HealthCheck: &elbtypes.HealthCheck{
						Target:             awssdk.String("HTTP:8080/"),
						Interval:           awssdk.Int32(20),
						Timeout:            awssdk.Int32(10),
						HealthyThreshold:   awssdk.Int32(2),
						UnhealthyThreshold: awssdk.Int32(3),
					},
					Instances: []elbtypes.Instance{
						{InstanceId: awssdk.String("i-2")},
						{InstanceId: awssdk.String("i-1")},
					},
				}},
			}, nil
		},
	}

	o, err := NewClient(mock).Describe(context.Background(), "web")
	require.NoError(t, err)
	assert.Equal(t, "web-123.us-east-1.elb.amazonaws.com", o.DNSName)
	assert.Equal(t, "internet-facing", o.Scheme)
	assert.Equal(t, []string{"us-east-1a", "us-east-1b"}, o.AvailabilityZones)
	assert.Equal(t, []string{"sg-1"}, o.SecurityGroups)
	assert.Equal(t, "Z35SXDOTRQ7X7K", o.CanonicalHostedZoneID)
	assert.Equal(t, "vpc-abc", o.VPCID)
	assert.Equal(t, created, o.CreatedAt)
	assert.Equal(t, []int32{80}, o.ListenerPorts())
	assert.Equal(t, int32(8080), o.Listeners[0].InstancePort)
	require.NotNil(t, o.HealthCheck)
	assert.Equal(t, lb.HealthCheck{Target: "HTTP:8080/", Interval: 20, Timeout: 10, HealthyThreshold: 2, UnhealthyThreshold: 3}, *o.HealthCheck)
	assert.Equal(t, []string{"i-1", "i-2"}, o.Targets)
}

func TestDescribe_NotFound(t *testing.T) {
	mock := &mockELBAPI{
		describeLoadBalancersFunc: func(ctx context.Context, params *elb.DescribeLoadBalancersInput, optFns ...func(*elb.Options)) (*elb.DescribeLoadBalancersOutput, error) {
			return nil, notFoundErr()
		},
	}
	client := NewClient(mock)

	_, err := client.Describe(context.Background(), "web")
	require.Error(t, err)
	assert.True(t, errdefs.IsNotFound(err))

	ok, err := client.Exists(context.Background(), "web")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExists_PropagatesOtherErrors(t *testing.T) {
	mock := &mockELBAPI{
		describeLoadBalancersFunc: func(ctx context.Context, params *elb.DescribeLoadBalancersInput, optFns ...func(*elb.Options)) (*elb.DescribeLoadBalancersOutput, error) {
			return nil, &smithy.GenericAPIError{Code: "Throttling", Message: "Rate exceeded"}
		},
	}

	ok, err := NewClient(mock).Exists(context.Background(), "web")
	require.Error(t, err)
	assert.False(t, ok)
	assert.False(t, errdefs.IsNotFound(err))
	assert.Contains(t, err.Error(), "DescribeLoadBalancers")
}

func TestListLoadBalancers_Paginates(t *testing.T) {
	calls := 0
	mock := &mockELBAPI{
		describeLoadBalancersFunc: func(ctx context.Context, params *elb.DescribeLoadBalancersInput, optFns ...func(*elb.Options)) (*elb.DescribeLoadBalancersOutput, error) {
			calls++
			if params.Marker == nil {
				return &elb.DescribeLoadBalancersOutput{
					LoadBalancerDescriptions: []elbtypes.LoadBalancerDescription{{LoadBalancerName: awssdk.String("a")}},
					NextMarker:               awssdk.String("page2"),
				}, nil
			}
			assert.Equal(t, "page2", awssdk.ToString(params.Marker))
			return &elb.DescribeLoadBalancersOutput{
				LoadBalancerDescriptions: []elbtypes.LoadBalancerDescription{{LoadBalancerName: awssdk.String("b")}},
			}, nil
		},
	}

	lbs, err := NewClient(mock).ListLoadBalancers(context.Background())
	require.NoError(t, err)
	require.Len(t, lbs, 2)
	assert.Equal(t, "a", lbs[0].Name)
	assert.Equal(t, "b", lbs[1].Name)
	assert.Equal(t, 2, calls)
}

func TestCreate(t *testing.T) {
	mock := &mockELBAPI{
		createLoadBalancerFunc: func(ctx context.Context, params *elb.CreateLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.CreateLoadBalancerOutput, error) {
			assert.Equal(t, "web", awssdk.ToString(params.LoadBalancerName))
			assert.Equal(t, []string{"subnet-1"}, params.Subnets)
			assert.Empty(t, params.AvailabilityZones)
			assert.Equal(t, []string{"sg-1"}, params.SecurityGroups)
			assert.Equal(t, "internal", awssdk.ToString(params.Scheme))
			require.Len(t, params.Listeners, 1)
			l := params.Listeners[0]
			assert.Equal(t, "HTTPS", awssdk.ToString(l.Protocol))
			assert.Equal(t, int32(443), l.LoadBalancerPort)
			assert.Equal(t, int32(8080), awssdk.ToInt32(l.InstancePort))
			assert.Equal(t, "arn:cert", awssdk.ToString(l.SSLCertificateId))
			return &elb.CreateLoadBalancerOutput{DNSName: awssdk.String("internal-web-1.elb.amazonaws.com")}, nil
		},
	}

	dns, err := NewClient(mock).Create(context.Background(), lb.CreateRequest{
		Name:           "web",
		Subnets:        []string{"subnet-1"},
		SecurityGroups: []string{"sg-1"},
		Scheme:         "internal",
		Listener: lb.Listener{
			Protocol: "HTTPS", Port: 443, InstanceProtocol: "HTTP", InstancePort: 8080, SSLCertificateID: "arn:cert",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "internal-web-1.elb.amazonaws.com", dns)
}

func TestCreate_Error(t *testing.T) {
	mock := &mockELBAPI{
		createLoadBalancerFunc: func(ctx context.Context, params *elb.CreateLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.CreateLoadBalancerOutput, error) {
			return nil, fmt.Errorf("access denied")
		},
	}

	_, err := NewClient(mock).Create(context.Background(), lb.CreateRequest{Name: "web"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CreateLoadBalancer")
}

func TestDelete_NotFound(t *testing.T) {
	mock := &mockELBAPI{
		deleteLoadBalancerFunc: func(ctx context.Context, params *elb.DeleteLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.DeleteLoadBalancerOutput, error) {
			return nil, notFoundErr()
		},
	}

	err := NewClient(mock).Delete(context.Background(), "web")
	require.Error(t, err)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestSetZones(t *testing.T) {
	var enabled, disabled []string
	mock := &mockELBAPI{
		enableZonesFunc: func(ctx context.Context, params *elb.EnableAvailabilityZonesForLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.EnableAvailabilityZonesForLoadBalancerOutput, error) {
			enabled = params.AvailabilityZones
			return &elb.EnableAvailabilityZonesForLoadBalancerOutput{}, nil
		},
		disableZonesFunc: func(ctx context.Context, params *elb.DisableAvailabilityZonesForLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.DisableAvailabilityZonesForLoadBalancerOutput, error) {
			disabled = params.AvailabilityZones
			return &elb.DisableAvailabilityZonesForLoadBalancerOutput{}, nil
		},
	}

	require.NoError(t, NewClient(mock).SetZones(context.Background(), "web", []string{"us-east-1c"}, []string{"us-east-1a"}))
	assert.Equal(t, []string{"us-east-1c"}, enabled)
	assert.Equal(t, []string{"us-east-1a"}, disabled)
}

func TestEmptyDeltasSkipCalls(t *testing.T) {
	// Every func field is nil; any call would panic.
	client := NewClient(&mockELBAPI{})
	ctx := context.Background()

	require.NoError(t, client.SetZones(ctx, "web", nil, nil))
	require.NoError(t, client.SetSubnets(ctx, "web", nil, nil))
	require.NoError(t, client.RegisterTargets(ctx, "web", nil))
	require.NoError(t, client.DeregisterTargets(ctx, "web", []string{}))
}

func TestSetSubnets(t *testing.T) {
	var attached, detached []string
	mock := &mockELBAPI{
		attachSubnetsFunc: func(ctx context.Context, params *elb.AttachLoadBalancerToSubnetsInput, optFns ...func(*elb.Options)) (*elb.AttachLoadBalancerToSubnetsOutput, error) {
			attached = params.Subnets
			return &elb.AttachLoadBalancerToSubnetsOutput{}, nil
		},
		detachSubnetsFunc: func(ctx context.Context, params *elb.DetachLoadBalancerFromSubnetsInput, optFns ...func(*elb.Options)) (*elb.DetachLoadBalancerFromSubnetsOutput, error) {
			detached = params.Subnets
			return &elb.DetachLoadBalancerFromSubnetsOutput{}, nil
		},
	}

	require.NoError(t, NewClient(mock).SetSubnets(context.Background(), "web", []string{"subnet-2"}, []string{"subnet-1"}))
	assert.Equal(t, []string{"subnet-2"}, attached)
	assert.Equal(t, []string{"subnet-1"}, detached)
}

func TestSetListeners_DeletesThenCreates(t *testing.T) {
	var order []string
	mock := &mockELBAPI{
		deleteListenersFunc: func(ctx context.Context, params *elb.DeleteLoadBalancerListenersInput, optFns ...func(*elb.Options)) (*elb.DeleteLoadBalancerListenersOutput, error) {
			order = append(order, "delete")
			assert.Equal(t, []int32{80, 8443}, params.LoadBalancerPorts)
			return &elb.DeleteLoadBalancerListenersOutput{}, nil
		},
		createListenersFunc: func(ctx context.Context, params *elb.CreateLoadBalancerListenersInput, optFns ...func(*elb.Options)) (*elb.CreateLoadBalancerListenersOutput, error) {
			order = append(order, "create")
			require.Len(t, params.Listeners, 1)
			assert.Equal(t, int32(80), params.Listeners[0].LoadBalancerPort)
			assert.Nil(t, params.Listeners[0].SSLCertificateId)
			return &elb.CreateLoadBalancerListenersOutput{}, nil
		},
	}

	err := NewClient(mock).SetListeners(context.Background(), "web", []int32{80, 8443},
		lb.Listener{Protocol: "HTTP", Port: 80, InstanceProtocol: "HTTP", InstancePort: 8080})
	require.NoError(t, err)
	assert.Equal(t, []string{"delete", "create"}, order)
}

func TestSetListeners_NoRemovals(t *testing.T) {
	created := false
	mock := &mockELBAPI{
		createListenersFunc: func(ctx context.Context, params *elb.CreateLoadBalancerListenersInput, optFns ...func(*elb.Options)) (*elb.CreateLoadBalancerListenersOutput, error) {
			created = true
			return &elb.CreateLoadBalancerListenersOutput{}, nil
		},
	}

	require.NoError(t, NewClient(mock).SetListeners(context.Background(), "web", nil,
		lb.Listener{Protocol: "TCP", Port: 25, InstanceProtocol: "TCP", InstancePort: 25}))
	assert.True(t, created)
}

func TestConfigureHealthCheck(t *testing.T) {
	mock := &mockELBAPI{
		configureHealthCheckFunc: func(ctx context.Context, params *elb.ConfigureHealthCheckInput, optFns ...func(*elb.Options)) (*elb.ConfigureHealthCheckOutput, error) {
			hc := params.HealthCheck
			assert.Equal(t, "HTTP:8080/health", awssdk.ToString(hc.Target))
			assert.Equal(t, int32(30), awssdk.ToInt32(hc.Interval))
			assert.Equal(t, int32(5), awssdk.ToInt32(hc.Timeout))
			assert.Equal(t, int32(3), awssdk.ToInt32(hc.HealthyThreshold))
			assert.Equal(t, int32(4), awssdk.ToInt32(hc.UnhealthyThreshold))
			return &elb.ConfigureHealthCheckOutput{}, nil
		},
	}

	err := NewClient(mock).ConfigureHealthCheck(context.Background(), "web", lb.HealthCheck{
		Target: "HTTP:8080/health", Interval: 30, Timeout: 5, HealthyThreshold: 3, UnhealthyThreshold: 4,
	})
	require.NoError(t, err)
}

func TestRegisterAndDeregisterTargets(t *testing.T) {
	var registered, deregistered []string
	mock := &mockELBAPI{
		registerInstancesFunc: func(ctx context.Context, params *elb.RegisterInstancesWithLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.RegisterInstancesWithLoadBalancerOutput, error) {
			for _, i := range params.Instances {
				registered = append(registered, awssdk.ToString(i.InstanceId))
			}
			return &elb.RegisterInstancesWithLoadBalancerOutput{}, nil
		},
		deregisterInstancesFunc: func(ctx context.Context, params *elb.DeregisterInstancesFromLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.DeregisterInstancesFromLoadBalancerOutput, error) {
			for _, i := range params.Instances {
				deregistered = append(deregistered, awssdk.ToString(i.InstanceId))
			}
			return &elb.DeregisterInstancesFromLoadBalancerOutput{}, nil
		},
	}
	client := NewClient(mock)

	require.NoError(t, client.RegisterTargets(context.Background(), "web", []string{"i-1", "i-2"}))
	require.NoError(t, client.DeregisterTargets(context.Background(), "web", []string{"i-3"}))
	assert.Equal(t, []string{"i-1", "i-2"}, registered)
	assert.Equal(t, []string{"i-3"}, deregistered)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("wrapped: %w", notFoundErr())))
	assert.False(t, IsNotFound(&smithy.GenericAPIError{Code: "ValidationError"}))
	assert.False(t, IsNotFound(fmt.Errorf("plain")))
}
