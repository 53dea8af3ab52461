package reconciler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"tasnim.dev/elbctl/internal/diff"
	"tasnim.dev/elbctl/internal/lb"
)

// bind adopts an existing load balancer. Deltas are applied in a fixed
// order: security groups, zones, subnets, listener, health check. Network
// reachability settles before the listener is replaced.
func (r *Reconciler) bind(ctx context.Context, logger zerolog.Logger, sess lb.Session, name string) (string, error) {
	observed, err := sess.Describe(ctx, name)
	if err != nil {
		return "", fmt.Errorf("describing %s: %w", name, err)
	}

	if r.spec.Scheme != "" && observed.Scheme != r.spec.Scheme {
		logger.Warn().
			Str("desired", r.spec.Scheme).
			Str("observed", observed.Scheme).
			Msg("Load balancer scheme differs from configuration; scheme cannot be changed after creation")
	}

	if groups, ok := diff.SecurityGroups(r.spec.SecurityGroups, observed.SecurityGroups); ok {
		logger.Info().Strs("groups", groups).Msg("Applying security groups")
		if err := sess.SetSecurityGroups(ctx, name, groups); err != nil {
			return "", err
		}
	}

	zones := r.observeDelta("zones", diff.Placement(r.spec.AvailabilityZones, observed.AvailabilityZones))
	if !zones.Empty() {
		logger.Info().Strs("add", zones.Add).Strs("remove", zones.Remove).Msg("Updating availability zones")
		if err := sess.SetZones(ctx, name, zones.Add, zones.Remove); err != nil {
			return "", err
		}
	}

	subnets := r.observeDelta("subnets", diff.Placement(r.spec.Subnets, observed.Subnets))
	if !subnets.Empty() {
		logger.Info().Strs("add", subnets.Add).Strs("remove", subnets.Remove).Msg("Updating subnets")
		if err := sess.SetSubnets(ctx, name, subnets.Add, subnets.Remove); err != nil {
			return "", err
		}
	}

	removePorts, listener := diff.Listener(r.spec.Listener, observed.Listeners)
	r.metrics.ObserveDelta("listeners", 1, len(removePorts))
	if err := sess.SetListeners(ctx, name, removePorts, listener); err != nil {
		return "", err
	}

	if err := r.applyHealthCheck(ctx, logger, sess, name, observed.HealthCheck); err != nil {
		return "", err
	}
	return observed.DNSName, nil
}

// applyHealthCheck pushes the rendered health check when it is enabled and
// differs from observed.
func (r *Reconciler) applyHealthCheck(ctx context.Context, logger zerolog.Logger, sess lb.Session, name string, observed *lb.HealthCheck) error {
	if !r.spec.HealthCheck.Enabled {
		if observed != nil {
			logger.Warn().
				Str("target", observed.Target).
				Msg("Health check disabled in configuration but present on load balancer; leaving it in place")
		}
		return nil
	}

	target, err := r.spec.HealthCheckTarget()
	if err != nil {
		return err
	}
	hc := diff.HealthCheck(r.spec.HealthCheck, target, observed)
	if observed != nil && *observed == hc {
		logger.Debug().Msg("Health check already up to date")
		return nil
	}
	logger.Info().Str("target", hc.Target).Msg("Configuring health check")
	return sess.ConfigureHealthCheck(ctx, name, hc)
}

func (r *Reconciler) observeDelta(category string, d diff.Delta[string]) diff.Delta[string] {
	r.metrics.ObserveDelta(category, len(d.Add), len(d.Remove))
	return d
}
