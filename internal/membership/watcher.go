// Package membership supplies the set of backend instance ids a load
// balancer should route to.
package membership

import (
	"context"
	"slices"
)

// Watcher returns the instance ids currently eligible for traffic.
type Watcher interface {
	CurrentTargets(ctx context.Context) ([]string, error)
}

// Notifier is implemented by watchers that can push change notifications.
// Watch blocks until ctx is done, calling onChange after each change.
type Notifier interface {
	Watch(ctx context.Context, onChange func()) error
}

func normalize(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
