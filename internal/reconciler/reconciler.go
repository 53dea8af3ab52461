// Package reconciler drives a single Classic Load Balancer through its
// lifecycle. Every mutating operation holds a per-entity lock for its whole
// pass and opens its own remote session, so deltas are always computed from
// state no concurrent pass can invalidate.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/containerd/errdefs"
	"github.com/google/uuid"
	"github.com/moby/locker"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tasnim.dev/elbctl/internal/attributes"
	"tasnim.dev/elbctl/internal/diff"
	"tasnim.dev/elbctl/internal/lb"
	"tasnim.dev/elbctl/internal/membership"
	"tasnim.dev/elbctl/internal/metrics"
	"tasnim.dev/elbctl/internal/naming"
	"tasnim.dev/elbctl/internal/state"
)

// State is the lifecycle state of a Reconciler.
type State string

const (
	StateStopped   State = "stopped"
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StateStopping  State = "stopping"
	StateFailed    State = "failed"
	StateDestroyed State = "destroyed"
)

// HandleStore persists the reconciler's handle between processes.
type HandleStore interface {
	Save(ctx context.Context, r state.Record) error
	Load(ctx context.Context, id string) (state.Record, bool, error)
	Delete(ctx context.Context, id string) error
}

// Lease excludes other processes from operating on the same id.
type Lease interface {
	AcquireLease(ctx context.Context, id, owner string, ttl time.Duration) error
	ReleaseLease(ctx context.Context, id, owner string) error
}

// DefaultLeaseTTL bounds how long a crashed holder blocks other processes.
const DefaultLeaseTTL = time.Minute

type Option func(*Reconciler)

// WithHandleStore persists the handle and lifecycle state after every
// transition.
func WithHandleStore(s HandleStore) Option {
	return func(r *Reconciler) { r.store = s }
}

// WithLocker shares a keyed lock between reconcilers in one process.
func WithLocker(l *locker.Locker) Option {
	return func(r *Reconciler) { r.locker = l }
}

// WithLease takes the lease for every mutating pass, in addition to the
// in-process lock.
func WithLease(l Lease, ttl time.Duration) Option {
	return func(r *Reconciler) {
		r.lease = l
		r.leaseTTL = ttl
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithDefaultLocation is used by Start when no location is passed.
func WithDefaultLocation(loc lb.Location) Option {
	return func(r *Reconciler) { r.defaultLoc = &loc }
}

func WithReleaseHooks(hooks ...lb.ReleaseHook) Option {
	return func(r *Reconciler) { r.hooks = append(r.hooks, hooks...) }
}

func WithNameGenerator(g *naming.Generator) Option {
	return func(r *Reconciler) { r.names = g }
}

// Reconciler owns one load balancer. It is safe for concurrent use.
type Reconciler struct {
	id        string
	spec      lb.DesiredSpec
	connector lb.Connector
	watcher   membership.Watcher
	sink      lb.AttributeSink

	store      HandleStore
	lease      Lease
	leaseTTL   time.Duration
	owner      string
	held       atomic.Bool
	locker     *locker.Locker
	metrics    *metrics.Metrics
	names      *naming.Generator
	hooks      []lb.ReleaseHook
	defaultLoc *lb.Location

	mu       sync.RWMutex
	state    State
	loc      *lb.Location
	name     string
	bound    bool
	hostname string
	lastErr  error
}

// New validates spec and returns a stopped Reconciler. The spec is deep
// copied. A nil watcher yields an empty target set and a nil sink discards
// into a private attributes.Store.
func New(id string, spec lb.DesiredSpec, connector lb.Connector, watcher membership.Watcher, sink lb.AttributeSink, opts ...Option) (*Reconciler, error) {
	if id == "" {
		return nil, &lb.InvalidSpecError{Field: "id", Reason: "must not be empty"}
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if watcher == nil {
		watcher = membership.NewStatic()
	}
	if sink == nil {
		sink = attributes.NewStore()
	}

	r := &Reconciler{
		id:        id,
		spec:      spec.Clone(),
		connector: connector,
		watcher:   watcher,
		sink:      sink,
		state:     StateStopped,
		owner:     uuid.NewString(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.locker == nil {
		r.locker = locker.New()
	}
	if r.names == nil {
		r.names = naming.New()
	}
	if r.leaseTTL <= 0 {
		r.leaseTTL = DefaultLeaseTTL
	}
	r.name = r.spec.Name
	return r, nil
}

func (r *Reconciler) ID() string { return r.id }

func (r *Reconciler) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Name is the resolved load-balancer name, empty until one is chosen.
func (r *Reconciler) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.name
}

// Handle returns the bound resource handle, if any.
func (r *Reconciler) Handle() (lb.ResourceHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.bound || r.loc == nil {
		return lb.ResourceHandle{}, false
	}
	return lb.ResourceHandle{Name: r.name, Region: r.loc.Region}, true
}

// Hostname is the published endpoint, or "" when none is bound.
func (r *Reconciler) Hostname() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hostname
}

// LastError is the error that moved the reconciler to Failed.
func (r *Reconciler) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

func (r *Reconciler) lock() func() {
	r.locker.Lock(r.id)
	return func() { _ = r.locker.Unlock(r.id) }
}

// acquire takes the in-process lock and, when configured, the lease. The
// lease is released with the lock unless Hold owns it.
func (r *Reconciler) acquire(ctx context.Context) (func(), error) {
	unlock := r.lock()
	if r.lease == nil {
		return unlock, nil
	}
	if err := r.lease.AcquireLease(ctx, r.id, r.owner, r.leaseTTL); err != nil {
		unlock()
		return nil, err
	}
	return func() {
		if !r.held.Load() {
			if err := r.lease.ReleaseLease(context.WithoutCancel(ctx), r.id, r.owner); err != nil {
				log.Warn().Err(err).Str("id", r.id).Msg("Failed to release lease")
			}
		}
		unlock()
	}, nil
}

// Hold takes the lease and keeps it across passes until Release, so other
// processes cannot operate on this id in between.
func (r *Reconciler) Hold(ctx context.Context) error {
	if r.lease == nil {
		return nil
	}
	if err := r.lease.AcquireLease(ctx, r.id, r.owner, r.leaseTTL); err != nil {
		return &lb.ReconcileError{Op: "hold", Name: r.Name(), Err: err}
	}
	r.held.Store(true)
	return nil
}

// KeepHeld renews a lease taken by Hold until ctx is done. Losing the lease
// is returned as an error.
func (r *Reconciler) KeepHeld(ctx context.Context) error {
	if r.lease == nil || !r.held.Load() {
		return nil
	}
	ticker := time.NewTicker(r.leaseTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.lease.AcquireLease(ctx, r.id, r.owner, r.leaseTTL); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return &lb.ReconcileError{Op: "hold", Name: r.Name(), Err: err}
			}
		}
	}
}

// Release gives up a lease taken by Hold.
func (r *Reconciler) Release(ctx context.Context) {
	if r.lease == nil || !r.held.Swap(false) {
		return
	}
	if err := r.lease.ReleaseLease(context.WithoutCancel(ctx), r.id, r.owner); err != nil {
		log.Warn().Err(err).Str("id", r.id).Msg("Failed to release lease")
	}
}

func (r *Reconciler) passLogger(op string) zerolog.Logger {
	return log.With().
		Str("pass", uuid.NewString()).
		Str("op", op).
		Str("id", r.id).
		Logger()
}

func (r *Reconciler) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
	r.sink.Publish(lb.AttrState, string(s))
}

func (r *Reconciler) fail(ctx context.Context, op string, err error) error {
	r.mu.Lock()
	rerr := &lb.ReconcileError{Op: op, Name: r.name, Err: err}
	r.state = StateFailed
	r.lastErr = rerr
	r.mu.Unlock()
	r.sink.Publish(lb.AttrState, string(StateFailed))
	r.persist(ctx)
	return rerr
}

// withSession opens a session for one pass and closes it when fn returns.
func (r *Reconciler) withSession(ctx context.Context, loc lb.Location, fn func(lb.Session) error) error {
	sess, err := r.connector.Connect(ctx, loc)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", loc, err)
	}
	defer sess.Close()
	return fn(sess)
}

// Start resolves the location, then binds, replaces or creates the load
// balancer depending on the strategy flags.
func (r *Reconciler) Start(ctx context.Context, locations ...lb.Location) error {
	unlock, lerr := r.acquire(ctx)
	if lerr != nil {
		return &lb.ReconcileError{Op: "start", Name: r.Name(), Err: lerr}
	}
	defer unlock()

	logger := r.passLogger("start")
	started := time.Now()

	r.mu.Lock()
	switch r.state {
	case StateStarting, StateRunning, StateStopping:
		cur, name := r.state, r.name
		r.mu.Unlock()
		return &lb.ReconcileError{Op: "start", Name: name, Err: fmt.Errorf("load balancer is %s: %w", cur, errdefs.ErrConflict)}
	}
	r.state = StateStarting
	r.lastErr = nil
	r.mu.Unlock()
	r.sink.Publish(lb.AttrState, string(StateStarting))
	r.persist(ctx)

	err := r.start(ctx, logger, locations)
	r.metrics.ObserveOperation("start", started, err)
	if err != nil {
		rerr := r.fail(ctx, "start", err)
		r.sink.SetProblem(lb.ProblemStart, rerr.Error())
		logger.Error().Err(err).Msg("Failed to start load balancer")
		return rerr
	}

	r.setState(StateRunning)
	r.sink.ClearProblem(lb.ProblemStart)
	r.sink.Publish(lb.AttrServiceUp, true)
	r.persist(ctx)
	logger.Info().Str("lb", r.Name()).Str("hostname", r.Hostname()).Msg("Load balancer running")
	return nil
}

func (r *Reconciler) start(ctx context.Context, logger zerolog.Logger, locations []lb.Location) error {
	loc, err := lb.InferLocation(locations, r.defaultLoc)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.loc = &loc
	r.mu.Unlock()

	return r.withSession(ctx, loc, func(sess lb.Session) error {
		hostname, name, err := r.establish(ctx, logger, sess, loc)
		if err != nil {
			return err
		}

		r.mu.Lock()
		r.hostname = hostname
		r.bound = true
		r.mu.Unlock()
		r.sink.Publish(lb.AttrName, name)
		r.sink.Publish(lb.AttrHostname, hostname)
		return nil
	})
}

// establish runs the bind, replace or create strategy and returns the
// hostname and name of the resulting load balancer. A name chosen by an
// earlier pass is reused so a partially created load balancer stays
// reachable by Stop and DeleteLoadBalancer.
func (r *Reconciler) establish(ctx context.Context, logger zerolog.Logger, sess lb.Session, loc lb.Location) (string, string, error) {
	name := r.spec.Name

	switch {
	case r.spec.BindToExisting:
		r.setName(name)
		logger = logger.With().Str("lb", name).Logger()
		logger.Info().Msg("Binding to existing load balancer")
		hostname, err := r.bind(ctx, logger, sess, name)
		return hostname, name, err

	case r.spec.ReplaceExisting:
		r.setName(name)
		logger = logger.With().Str("lb", name).Logger()
		exists, err := sess.Exists(ctx, name)
		if err != nil {
			return "", name, err
		}
		if exists {
			logger.Info().Msg("Replacing existing load balancer")
			if err := r.release(ctx, logger, sess, lb.ResourceHandle{Name: name, Region: loc.Region}); err != nil {
				return "", name, fmt.Errorf("deleting existing load balancer %s: %w", name, err)
			}
		}
		hostname, err := r.create(ctx, logger, sess, name)
		return hostname, name, err
	}

	if name == "" {
		r.mu.RLock()
		name = r.name
		r.mu.RUnlock()
	}

	if name == "" {
		generated, err := r.names.Generate(ctx, r.id, sess.Exists)
		if err != nil {
			return "", "", err
		}
		name = generated
	} else {
		exists, err := sess.Exists(ctx, name)
		if err != nil {
			return "", name, err
		}
		if exists {
			return "", name, &lb.AlreadyExistsError{Name: name}
		}
	}
	r.setName(name)
	r.persist(ctx)
	logger = logger.With().Str("lb", name).Logger()
	hostname, err := r.create(ctx, logger, sess, name)
	return hostname, name, err
}

func (r *Reconciler) setName(name string) {
	r.mu.Lock()
	r.name = name
	r.mu.Unlock()
}

// Stop deletes the load balancer if it still exists and always clears the
// service-up indicator. A failed remote delete leaves the reconciler Failed.
func (r *Reconciler) Stop(ctx context.Context) error {
	unlock, lerr := r.acquire(ctx)
	if lerr != nil {
		return &lb.ReconcileError{Op: "stop", Name: r.Name(), Err: lerr}
	}
	defer unlock()

	logger := r.passLogger("stop")
	started := time.Now()

	r.mu.Lock()
	r.state = StateStopping
	r.lastErr = nil
	loc, name := r.loc, r.name
	r.mu.Unlock()
	r.sink.Publish(lb.AttrState, string(StateStopping))
	logger = logger.With().Str("lb", name).Logger()

	var err error
	if loc != nil && name != "" {
		err = r.withSession(ctx, *loc, func(sess lb.Session) error {
			return r.release(ctx, logger, sess, lb.ResourceHandle{Name: name, Region: loc.Region})
		})
	} else {
		logger.Debug().Msg("No load balancer bound; nothing to delete")
	}
	r.sink.Publish(lb.AttrServiceUp, false)
	r.metrics.ObserveOperation("stop", started, err)

	if err != nil {
		rerr := r.fail(ctx, "stop", err)
		r.sink.SetProblem(lb.ProblemStop, rerr.Error())
		logger.Error().Err(err).Msg("Failed to stop load balancer")
		return rerr
	}

	r.unbind()
	r.setState(StateStopped)
	r.sink.ClearProblem(lb.ProblemStop)
	r.persist(ctx)
	logger.Info().Msg("Load balancer stopped")
	return nil
}

func (r *Reconciler) unbind() {
	r.mu.Lock()
	r.bound = false
	r.hostname = ""
	r.mu.Unlock()
	r.sink.Publish(lb.AttrHostname, nil)
}

// Reload re-derives the target set and applies only the target delta. It
// is a logged no-op unless the reconciler is Running with a bound location.
func (r *Reconciler) Reload(ctx context.Context) error {
	unlock, lerr := r.acquire(ctx)
	if lerr != nil {
		return &lb.ReconcileError{Op: "reload", Name: r.Name(), Err: lerr}
	}
	defer unlock()

	logger := r.passLogger("reload")

	r.mu.RLock()
	cur, loc, name := r.state, r.loc, r.name
	r.mu.RUnlock()
	logger = logger.With().Str("lb", name).Logger()
	if cur != StateRunning || loc == nil {
		logger.Info().Str("state", string(cur)).Msg("Skipping reload; load balancer not running")
		return nil
	}

	started := time.Now()
	var targets []string
	err := r.withSession(ctx, *loc, func(sess lb.Session) error {
		desired, err := r.watcher.CurrentTargets(ctx)
		if err != nil {
			return fmt.Errorf("resolving targets: %w", err)
		}
		observed, err := sess.Describe(ctx, name)
		if err != nil {
			return err
		}

		d := r.observeDelta("targets", diff.Targets(desired, observed.Targets))
		if len(d.Add) > 0 {
			logger.Info().Strs("targets", d.Add).Msg("Registering targets")
			if err := sess.RegisterTargets(ctx, name, d.Add); err != nil {
				return err
			}
		}
		if len(d.Remove) > 0 {
			logger.Info().Strs("targets", d.Remove).Msg("Deregistering targets")
			if err := sess.DeregisterTargets(ctx, name, d.Remove); err != nil {
				return err
			}
		}
		targets = desired
		return nil
	})
	r.metrics.ObserveOperation("reload", started, err)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to update load balancer targets")
		return &lb.ReconcileError{Op: "reload", Name: name, Err: err}
	}

	r.sink.Publish(lb.AttrTargets, targets)
	r.metrics.SetTargets(len(targets))
	return nil
}

// DeleteLoadBalancer deletes the remote load balancer regardless of the
// lifecycle state. Deleting an absent load balancer succeeds.
func (r *Reconciler) DeleteLoadBalancer(ctx context.Context) error {
	unlock, lerr := r.acquire(ctx)
	if lerr != nil {
		return &lb.ReconcileError{Op: "delete", Name: r.Name(), Err: lerr}
	}
	defer unlock()

	logger := r.passLogger("delete")
	started := time.Now()

	r.mu.RLock()
	name, loc := r.name, r.loc
	r.mu.RUnlock()
	if loc == nil {
		loc = r.defaultLoc
	}
	logger = logger.With().Str("lb", name).Logger()

	var err error
	switch {
	case name == "":
		err = &lb.InvalidSpecError{Field: "name", Reason: "no load balancer name resolved"}
	case loc == nil:
		err = &lb.InvalidLocationError{Reason: "no location bound"}
	default:
		err = r.withSession(ctx, *loc, func(sess lb.Session) error {
			return r.release(ctx, logger, sess, lb.ResourceHandle{Name: name, Region: loc.Region})
		})
	}
	r.metrics.ObserveOperation("delete", started, err)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to delete load balancer")
		return &lb.ReconcileError{Op: "delete", Name: name, Err: err}
	}

	r.mu.Lock()
	r.loc = loc
	r.lastErr = nil
	r.mu.Unlock()
	r.unbind()
	r.sink.Publish(lb.AttrServiceUp, false)
	r.setState(StateDestroyed)
	r.persist(ctx)
	return nil
}

// Resume restores the handle saved by a previous process. It reports
// whether a record was found. A record left mid-transition is restored as
// Failed since the pass that wrote it did not finish.
func (r *Reconciler) Resume(ctx context.Context) (bool, error) {
	if r.store == nil {
		return false, nil
	}
	unlock := r.lock()
	defer unlock()

	rec, ok, err := r.store.Load(ctx, r.id)
	if err != nil || !ok {
		return false, err
	}

	s := State(rec.State)
	switch s {
	case StateStopped, StateRunning, StateFailed, StateDestroyed:
	default:
		s = StateFailed
	}

	r.mu.Lock()
	r.state = s
	r.name = rec.Name
	if rec.Region != "" {
		r.loc = &lb.Location{Provider: rec.Provider, Region: rec.Region, Profile: rec.Profile}
	}
	r.hostname = rec.Hostname
	r.bound = s == StateRunning || (s == StateFailed && rec.Hostname != "")
	r.lastErr = nil
	if s == StateFailed && rec.LastError != "" {
		r.lastErr = &lb.ReconcileError{Op: rec.LastOp, Name: rec.Name, Err: errors.New(rec.LastError)}
	}
	lastErr := r.lastErr
	r.mu.Unlock()

	if lastErr != nil {
		switch rec.LastOp {
		case lb.ProblemStart, lb.ProblemStop:
			r.sink.SetProblem(rec.LastOp, lastErr.Error())
		}
	}

	r.sink.Publish(lb.AttrState, string(s))
	if rec.Name != "" {
		r.sink.Publish(lb.AttrName, rec.Name)
	}
	if rec.Hostname != "" {
		r.sink.Publish(lb.AttrHostname, rec.Hostname)
	}
	r.sink.Publish(lb.AttrServiceUp, s == StateRunning)
	return true, nil
}

func (r *Reconciler) persist(ctx context.Context) {
	if r.store == nil {
		return
	}
	r.mu.RLock()
	rec := state.Record{
		ID:       r.id,
		Name:     r.name,
		Hostname: r.hostname,
		State:    string(r.state),
	}
	var rerr *lb.ReconcileError
	if errors.As(r.lastErr, &rerr) {
		rec.LastOp = rerr.Op
		rec.LastError = rerr.Err.Error()
	}
	if r.loc != nil {
		rec.Provider = r.loc.Provider
		rec.Region = r.loc.Region
		rec.Profile = r.loc.Profile
	}
	r.mu.RUnlock()

	// Persist even if the caller's context was cancelled mid-pass.
	ctx = context.WithoutCancel(ctx)
	if err := r.store.Save(ctx, rec); err != nil {
		log.Warn().Err(err).Str("id", r.id).Msg("Failed to persist load balancer handle")
	}
}
