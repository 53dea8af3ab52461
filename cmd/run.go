package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tasnim.dev/elbctl/internal/membership"
	"tasnim.dev/elbctl/internal/reconciler"
)

const (
	shutdownTimeout = 10 * time.Second
	teardownTimeout = 2 * time.Minute
)

func newRunCmd(opts *globalOptions) *cobra.Command {
	var teardown bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the load balancer and keep targets and attributes in sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			err = a.run(ctx)

			if teardown {
				log.Info().Msg("Tearing down load balancer")
				tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
				defer cancel()
				if serr := a.rec.Stop(tctx); serr != nil {
					return errors.Join(err, serr)
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&teardown, "teardown", false, "Delete the load balancer on exit")
	return cmd
}

// run starts the load balancer unless a previous process left it running,
// then serves membership changes, attribute refresh and metrics until ctx
// is cancelled.
func (a *app) run(ctx context.Context) error {
	if err := a.rec.Hold(ctx); err != nil {
		return err
	}
	defer a.rec.Release(ctx)

	if a.rec.State() != reconciler.StateRunning {
		if err := a.rec.Start(ctx); err != nil {
			return err
		}
	}
	log.Info().Str("hostname", a.rec.Hostname()).Str("membership", a.cfg.MembershipSource()).Msg("Reconciler running")

	trigger, notify := newTrigger()
	notify()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.rec.KeepHeld(ctx)
	})

	if n, ok := a.watcher.(membership.Notifier); ok {
		g.Go(func() error {
			return n.Watch(ctx, notify)
		})
	}

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-trigger:
				if err := a.rec.Reload(ctx); err != nil && ctx.Err() == nil {
					log.Error().Err(err).Msg("Target reload failed")
				}
			}
		}
	})

	g.Go(func() error {
		return a.rec.RunRefresher(ctx, a.cfg.RefreshInterval())
	})

	if addr := a.cfg.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.metrics.Handler())
		server := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			log.Info().Str("addr", addr).Msg("Serving metrics")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	log.Info().Msg("Reconciler loop stopped")
	return err
}

// newTrigger returns a channel that holds at most one pending signal and the
// function that raises it. Signals raised while one is pending coalesce.
func newTrigger() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	return ch, func() {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
