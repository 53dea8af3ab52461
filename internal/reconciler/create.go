package reconciler

import (
	"context"

	"github.com/rs/zerolog"

	"tasnim.dev/elbctl/internal/lb"
)

// create issues the remote create and configures the health check. A
// partially created load balancer is left in place on failure.
func (r *Reconciler) create(ctx context.Context, logger zerolog.Logger, sess lb.Session, name string) (string, error) {
	req := lb.CreateRequest{
		Name:           name,
		Listener:       r.spec.Listener,
		Scheme:         r.spec.Scheme,
		SecurityGroups: r.spec.SecurityGroups,
	}

	switch {
	case len(r.spec.AvailabilityZones) > 0:
		req.AvailabilityZones = r.spec.AvailabilityZones
	case len(r.spec.Subnets) > 0:
		req.Subnets = r.spec.Subnets
	default:
		zones, err := sess.DefaultZones(ctx)
		if err != nil || len(zones) == 0 {
			return "", &lb.AmbiguousPlacementError{Cause: err}
		}
		logger.Debug().Strs("zones", zones).Msg("Using default availability zones")
		req.AvailabilityZones = zones
	}

	logger.Info().
		Strs("zones", req.AvailabilityZones).
		Strs("subnets", req.Subnets).
		Msg("Creating load balancer")
	hostname, err := sess.Create(ctx, req)
	if err != nil {
		return "", err
	}

	var observed *lb.HealthCheck
	if r.spec.HealthCheck.Enabled && !r.spec.HealthCheck.Complete() {
		// Unset fields keep the provider's defaults.
		o, err := sess.Describe(ctx, name)
		if err != nil {
			return "", err
		}
		observed = o.HealthCheck
	}
	if err := r.applyHealthCheck(ctx, logger, sess, name, observed); err != nil {
		return "", err
	}
	return hostname, nil
}
