package reconciler

import (
	"context"
	"time"

	"tasnim.dev/elbctl/internal/lb"
)

// DefaultRefreshInterval is the attribute refresh period.
const DefaultRefreshInterval = 30 * time.Second

const attributesProblemPrefix = "failed to retrieve load balancer data: "

var refreshedAttributes = []string{
	lb.AttrSubnets,
	lb.AttrSecurityGroups,
	lb.AttrCanonicalHostedZoneName,
	lb.AttrCanonicalHostedZoneID,
	lb.AttrVPCID,
}

// Refresh republishes the load balancer's read-only attributes. Failures
// never change the lifecycle state: they null the attributes and set a
// sticky problem that the next successful refresh clears.
func (r *Reconciler) Refresh(ctx context.Context) {
	r.mu.RLock()
	cur, loc, name, bound := r.state, r.loc, r.name, r.bound
	r.mu.RUnlock()
	if cur != StateRunning || loc == nil || !bound {
		return
	}

	var observed *lb.ObservedState
	err := r.withSession(ctx, *loc, func(sess lb.Session) error {
		o, err := sess.Describe(ctx, name)
		observed = o
		return err
	})
	if err != nil {
		logger := r.passLogger("refresh")
		logger.Warn().Err(err).Msg("Failed to refresh load balancer attributes")
		for _, key := range refreshedAttributes {
			r.sink.Publish(key, nil)
		}
		r.sink.SetProblem(lb.ProblemAttributes, attributesProblemPrefix+err.Error())
		r.metrics.SetRefreshOK(false)
		return
	}

	r.sink.Publish(lb.AttrSubnets, observed.Subnets)
	r.sink.Publish(lb.AttrSecurityGroups, observed.SecurityGroups)
	r.sink.Publish(lb.AttrCanonicalHostedZoneName, observed.CanonicalHostedZoneName)
	r.sink.Publish(lb.AttrCanonicalHostedZoneID, observed.CanonicalHostedZoneID)
	r.sink.Publish(lb.AttrVPCID, observed.VPCID)
	r.sink.ClearProblem(lb.ProblemAttributes)
	r.metrics.SetRefreshOK(true)
}

// RunRefresher calls Refresh immediately and then every period until ctx is
// done. A non-positive period uses DefaultRefreshInterval.
func (r *Reconciler) RunRefresher(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		period = DefaultRefreshInterval
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	r.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Refresh(ctx)
		}
	}
}
