package lb

import "context"

// RemoteClient is the thin surface of the cloud load-balancer API the
// engine drives. Describe returns an error satisfying errdefs.IsNotFound
// when the load balancer is absent; Exists reports that case as false.
type RemoteClient interface {
	Exists(ctx context.Context, name string) (bool, error)
	Describe(ctx context.Context, name string) (*ObservedState, error)
	Create(ctx context.Context, req CreateRequest) (string, error)
	Delete(ctx context.Context, name string) error
	SetZones(ctx context.Context, name string, add, remove []string) error
	SetSubnets(ctx context.Context, name string, add, remove []string) error
	SetSecurityGroups(ctx context.Context, name string, groups []string) error
	SetListeners(ctx context.Context, name string, removePorts []int32, add Listener) error
	ConfigureHealthCheck(ctx context.Context, name string, hc HealthCheck) error
	RegisterTargets(ctx context.Context, name string, add []string) error
	DeregisterTargets(ctx context.Context, name string, remove []string) error
}

// Session is a RemoteClient scoped to one reconciliation pass. It also
// resolves the default availability zones of its location.
type Session interface {
	RemoteClient
	DefaultZones(ctx context.Context) ([]string, error)
	Close() error
}

// Connector opens a fresh Session per pass.
type Connector interface {
	Connect(ctx context.Context, loc Location) (Session, error)
}

// Attribute names published through an AttributeSink.
const (
	AttrName                    = "lb.name"
	AttrHostname                = "host.name"
	AttrServiceUp               = "service.isUp"
	AttrState                   = "service.state"
	AttrSubnets                 = "lb.subnets"
	AttrSecurityGroups          = "lb.securityGroups"
	AttrCanonicalHostedZoneName = "lb.canonicalHostedZoneName"
	AttrCanonicalHostedZoneID   = "lb.canonicalHostedZoneId"
	AttrVPCID                   = "lb.vpcId"
	AttrTargets                 = "lb.targets"
)

// Problem indicator keys.
const (
	ProblemStart      = "start"
	ProblemStop       = "stop"
	ProblemAttributes = "attributes"
)

// AttributeSink receives published attributes and problem indicators.
// Publishing a nil value marks the attribute as observed but not valid.
type AttributeSink interface {
	Publish(key string, value any)
	SetProblem(key, message string)
	ClearProblem(key string)
}

// ReleaseHook runs around the remote delete of a load balancer.
// Errors are logged and ignored unless marked with Fatal.
type ReleaseHook interface {
	PreRelease(ctx context.Context, handle ResourceHandle) error
	PostRelease(ctx context.Context, handle ResourceHandle) error
}
