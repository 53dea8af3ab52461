package membership

import (
	"context"
	"slices"
	"sync"
)

// Static is a fixed target set that can be replaced at runtime.
type Static struct {
	mu      sync.RWMutex
	targets []string
	subs    map[chan struct{}]struct{}
}

func NewStatic(targets ...string) *Static {
	return &Static{targets: normalize(targets), subs: make(map[chan struct{}]struct{})}
}

func (s *Static) CurrentTargets(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.targets), nil
}

// Set replaces the target set and notifies watchers if it changed.
func (s *Static) Set(targets ...string) {
	next := normalize(targets)

	s.mu.Lock()
	if slices.Equal(s.targets, next) {
		s.mu.Unlock()
		return
	}
	s.targets = next
	subs := make([]chan struct{}, 0, len(s.subs))
	for ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Static) Watch(ctx context.Context, onChange func()) error {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ch:
			onChange()
		}
	}
}
