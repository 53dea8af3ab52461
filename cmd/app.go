package cmd

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/rs/zerolog/log"

	"tasnim.dev/elbctl/internal/attributes"
	awsclient "tasnim.dev/elbctl/internal/aws"
	awsec2 "tasnim.dev/elbctl/internal/aws/ec2"
	"tasnim.dev/elbctl/internal/config"
	"tasnim.dev/elbctl/internal/lb"
	"tasnim.dev/elbctl/internal/membership"
	"tasnim.dev/elbctl/internal/metrics"
	"tasnim.dev/elbctl/internal/reconciler"
	"tasnim.dev/elbctl/internal/state"
)

// app is the wired reconciler for one command invocation.
type app struct {
	cfg      *config.Config
	location lb.Location
	store    *state.Store
	sink     *attributes.Store
	metrics  *metrics.Metrics
	watcher  membership.Watcher
	rec      *reconciler.Reconciler
}

// newApp resolves the AWS location, opens the handle store, builds the
// membership watcher and restores any handle a previous invocation saved.
func newApp(ctx context.Context, opts *globalOptions) (*app, error) {
	cfg := opts.cfg
	if cfg == nil {
		cfg = &config.Config{}
	}
	profile, region := cfg.Merge(opts.profile, opts.region)

	loc, err := awsclient.ResolveLocation(ctx, profile, region)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("account", loc.Account).
		Str("region", loc.Region).
		Str("profile", loc.Profile).
		Msg("Resolved AWS location")

	path, err := cfg.StateFile()
	if err != nil {
		return nil, err
	}
	store, err := state.Open(path)
	if err != nil {
		return nil, err
	}

	watcher, err := newWatcher(ctx, cfg, loc)
	if err != nil {
		store.Close()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		location: loc,
		store:    store,
		sink:     attributes.NewStore(),
		metrics:  metrics.New(),
		watcher:  watcher,
	}

	a.rec, err = reconciler.New(cfg.EntityID(), cfg.DesiredSpec(), awsclient.NewConnector(), watcher, a.sink,
		reconciler.WithHandleStore(store),
		reconciler.WithLease(store, reconciler.DefaultLeaseTTL),
		reconciler.WithDefaultLocation(loc),
		reconciler.WithMetrics(a.metrics),
	)
	if err != nil {
		store.Close()
		return nil, err
	}

	resumed, err := a.rec.Resume(ctx)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("restoring state: %w", err)
	}
	if resumed {
		log.Debug().Str("id", a.rec.ID()).Str("state", string(a.rec.State())).Msg("restored saved state")
	}

	return a, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// newWatcher builds the target source named by the membership section.
func newWatcher(ctx context.Context, cfg *config.Config, loc lb.Location) (membership.Watcher, error) {
	switch cfg.MembershipSource() {
	case "kubernetes":
		kc := cfg.KubernetesSource()
		client, err := membership.NewKubernetesClient(kc)
		if err != nil {
			return nil, err
		}
		return membership.NewKubernetesNodes(client, kc.LabelSelector), nil
	case "ec2":
		awsCfg, err := awsclient.LoadConfig(ctx, loc.Profile, loc.RegionName())
		if err != nil {
			return nil, err
		}
		client := awsec2.NewClient(ec2.NewFromConfig(awsCfg))
		return membership.NewEC2Tags(client, cfg.Membership.EC2Tags, cfg.PollInterval()), nil
	default:
		return membership.NewStatic(cfg.Membership.Static...), nil
	}
}
