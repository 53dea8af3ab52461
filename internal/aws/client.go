package aws

import (
	"context"
	"net/http"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	elb "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing"

	awsec2 "tasnim.dev/elbctl/internal/aws/ec2"
	awselb "tasnim.dev/elbctl/internal/aws/elb"
	"tasnim.dev/elbctl/internal/lb"
)

// Session is the AWS client set for one reconciliation pass. It owns its
// HTTP transport so Close releases every connection the pass opened.
type Session struct {
	*awselb.Client
	EC2 *awsec2.Client

	loc       lb.Location
	transport *http.Transport
}

var _ lb.Session = (*Session)(nil)

func NewSession(loc lb.Location, elbAPI awselb.ELBAPI, ec2API awsec2.EC2API, transport *http.Transport) *Session {
	return &Session{
		Client:    awselb.NewClient(elbAPI),
		EC2:       awsec2.NewClient(ec2API),
		loc:       loc,
		transport: transport,
	}
}

// DefaultZones returns the location's own zone when it names one, otherwise
// every available zone in the region.
func (s *Session) DefaultZones(ctx context.Context) ([]string, error) {
	if zone := s.loc.Zone(); zone != "" {
		return []string{zone}, nil
	}
	return s.EC2.AvailableZones(ctx)
}

func (s *Session) Close() error {
	if s.transport != nil {
		s.transport.CloseIdleConnections()
	}
	return nil
}

// Connector opens a fresh Session per pass.
type Connector struct{}

var _ lb.Connector = (*Connector)(nil)

func NewConnector() *Connector {
	return &Connector{}
}

func (c *Connector) Connect(ctx context.Context, loc lb.Location) (lb.Session, error) {
	transport := awshttp.NewBuildableClient().GetTransport()
	cfg, err := LoadConfig(ctx, loc.Profile, loc.RegionName(),
		config.WithHTTPClient(&http.Client{Transport: transport}))
	if err != nil {
		return nil, err
	}
	return NewSession(loc, elb.NewFromConfig(cfg), ec2.NewFromConfig(cfg), transport), nil
}
