package reconciler

import (
	"context"

	"github.com/containerd/errdefs"
	"github.com/rs/zerolog"

	"tasnim.dev/elbctl/internal/lb"
)

// release deletes the load balancer if it exists, running release hooks
// around the remote call. Existence is re-checked on every call.
func (r *Reconciler) release(ctx context.Context, logger zerolog.Logger, sess lb.Session, handle lb.ResourceHandle) error {
	exists, err := sess.Exists(ctx, handle.Name)
	if err != nil {
		return err
	}
	if !exists {
		logger.Info().Msg("Load balancer already absent")
		return nil
	}

	for _, h := range r.hooks {
		if err := h.PreRelease(ctx, handle); err != nil {
			if lb.IsFatal(err) {
				return err
			}
			logger.Warn().Err(err).Msg("Pre-release hook failed; continuing")
		}
	}

	logger.Info().Msg("Deleting load balancer")
	if err := sess.Delete(ctx, handle.Name); err != nil && !errdefs.IsNotFound(err) {
		return err
	}

	for _, h := range r.hooks {
		if err := h.PostRelease(ctx, handle); err != nil {
			if lb.IsFatal(err) {
				return err
			}
			logger.Warn().Err(err).Msg("Post-release hook failed; continuing")
		}
	}
	return nil
}
