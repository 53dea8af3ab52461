package membership

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	awsec2 "tasnim.dev/elbctl/internal/aws/ec2"
)

// DefaultPollInterval is how often polling sources re-query their backend.
const DefaultPollInterval = 30 * time.Second

// InstanceLister is the part of the EC2 client the tag source needs.
type InstanceLister interface {
	InstancesByTags(ctx context.Context, tags map[string]string) ([]awsec2.Instance, error)
}

// EC2Tags selects running EC2 instances carrying every configured tag.
type EC2Tags struct {
	client   InstanceLister
	tags     map[string]string
	interval time.Duration
}

func NewEC2Tags(client InstanceLister, tags map[string]string, interval time.Duration) *EC2Tags {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &EC2Tags{client: client, tags: maps.Clone(tags), interval: interval}
}

func (s *EC2Tags) CurrentTargets(ctx context.Context) ([]string, error) {
	instances, err := s.client.InstancesByTags(ctx, s.tags)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(instances))
	for _, inst := range instances {
		ids = append(ids, inst.InstanceID)
	}
	return normalize(ids), nil
}

// Watch polls on the configured interval and calls onChange when the
// instance set differs from the previous poll. Poll errors are logged and
// the previous set is kept.
func (s *EC2Tags) Watch(ctx context.Context, onChange func()) error {
	last, err := s.CurrentTargets(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Initial EC2 membership poll failed")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			current, err := s.CurrentTargets(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("EC2 membership poll failed")
				continue
			}
			if !slices.Equal(current, last) {
				log.Debug().Strs("targets", current).Msg("EC2 membership changed")
				last = current
				onChange()
			}
		}
	}
}
