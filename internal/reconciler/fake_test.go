package reconciler

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"tasnim.dev/elbctl/internal/diff"
	"tasnim.dev/elbctl/internal/lb"
)

// fakeCloud is an in-memory Classic ELB shared by every session it opens.
type fakeCloud struct {
	mu           sync.Mutex
	lbs          map[string]*lb.ObservedState
	calls        []string
	created      int
	defaultZones []string
	zonesErr     error

	// Fault injection, keyed by method name.
	errs map[string]error

	sessions  int
	closed    int
	active    int
	maxActive int
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{
		lbs:          make(map[string]*lb.ObservedState),
		defaultZones: []string{"us-east-1a", "us-east-1b"},
		errs:         make(map[string]error),
	}
}

func (f *fakeCloud) Connect(ctx context.Context, loc lb.Location) (lb.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["Connect"]; err != nil {
		return nil, err
	}
	f.sessions++
	f.active++
	f.maxActive = max(f.maxActive, f.active)
	return &fakeSession{cloud: f, loc: loc}, nil
}

// seed installs a load balancer as if created out of band.
func (f *fakeCloud) seed(o lb.ObservedState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lbs[o.Name] = &o
}

func (f *fakeCloud) get(name string) (lb.ObservedState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.lbs[name]
	if !ok {
		return lb.ObservedState{}, false
	}
	return *o, true
}

// mutations returns recorded calls other than reads.
func (f *fakeCloud) mutations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, "Exists") || strings.HasPrefix(c, "Describe") {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (f *fakeCloud) callsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range f.mutations() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeCloud) sessionCounts() (opened, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions, f.closed
}

type fakeSession struct {
	cloud *fakeCloud
	loc   lb.Location
}

func (s *fakeSession) record(format string, args ...any) error {
	call := fmt.Sprintf(format, args...)
	s.cloud.calls = append(s.cloud.calls, call)
	method, _, _ := strings.Cut(call, " ")
	return s.cloud.errs[method]
}

func (s *fakeSession) Exists(ctx context.Context, name string) (bool, error) {
	s.cloud.mu.Lock()
	defer s.cloud.mu.Unlock()
	if err := s.record("Exists %s", name); err != nil {
		return false, err
	}
	_, ok := s.cloud.lbs[name]
	return ok, nil
}

func (s *fakeSession) Describe(ctx context.Context, name string) (*lb.ObservedState, error) {
	s.cloud.mu.Lock()
	defer s.cloud.mu.Unlock()
	if err := s.record("Describe %s", name); err != nil {
		return nil, err
	}
	o, ok := s.cloud.lbs[name]
	if !ok {
		return nil, &lb.NotFoundError{Name: name}
	}
	cp := *o
	cp.Targets = slices.Clone(o.Targets)
	cp.Listeners = slices.Clone(o.Listeners)
	if o.HealthCheck != nil {
		hc := *o.HealthCheck
		cp.HealthCheck = &hc
	}
	return &cp, nil
}

func (s *fakeSession) Create(ctx context.Context, req lb.CreateRequest) (string, error) {
	s.cloud.mu.Lock()
	defer s.cloud.mu.Unlock()
	if err := s.record("Create %s zones=%v subnets=%v sg=%v %s:%d", req.Name, req.AvailabilityZones, req.Subnets, req.SecurityGroups, req.Listener.Protocol, req.Listener.Port); err != nil {
		return "", err
	}
	s.cloud.created++
	dns := fmt.Sprintf("%s-%d.%s.elb.amazonaws.com", req.Name, s.cloud.created, s.loc.RegionName())
	s.cloud.lbs[req.Name] = &lb.ObservedState{
		Name:              req.Name,
		DNSName:           dns,
		Scheme:            req.Scheme,
		AvailabilityZones: slices.Clone(req.AvailabilityZones),
		Subnets:           slices.Clone(req.Subnets),
		SecurityGroups:    slices.Clone(req.SecurityGroups),
		Listeners:         []lb.Listener{req.Listener},
		HealthCheck: &lb.HealthCheck{
			Target:             fmt.Sprintf("TCP:%d", req.Listener.InstancePort),
			Interval:           30,
			Timeout:            5,
			HealthyThreshold:   10,
			UnhealthyThreshold: 2,
		},
		VPCID: "vpc-fake",
	}
	return dns, nil
}

func (s *fakeSession) Delete(ctx context.Context, name string) error {
	s.cloud.mu.Lock()
	defer s.cloud.mu.Unlock()
	if err := s.record("Delete %s", name); err != nil {
		return err
	}
	delete(s.cloud.lbs, name)
	return nil
}

func (s *fakeSession) mutate(name string, fn func(o *lb.ObservedState)) error {
	o, ok := s.cloud.lbs[name]
	if !ok {
		return &lb.NotFoundError{Name: name}
	}
	fn(o)
	return nil
}

func apply(cur, add, remove []string) []string {
	d := diff.Compute(append(slices.Clone(cur), add...), remove)
	return d.Add
}

func (s *fakeSession) SetZones(ctx context.Context, name string, add, remove []string) error {
	s.cloud.mu.Lock()
	defer s.cloud.mu.Unlock()
	if err := s.record("SetZones %s +%v -%v", name, add, remove); err != nil {
		return err
	}
	return s.mutate(name, func(o *lb.ObservedState) { o.AvailabilityZones = apply(o.AvailabilityZones, add, remove) })
}

func (s *fakeSession) SetSubnets(ctx context.Context, name string, add, remove []string) error {
	s.cloud.mu.Lock()
	defer s.cloud.mu.Unlock()
	if err := s.record("SetSubnets %s +%v -%v", name, add, remove); err != nil {
		return err
	}
	return s.mutate(name, func(o *lb.ObservedState) { o.Subnets = apply(o.Subnets, add, remove) })
}

func (s *fakeSession) SetSecurityGroups(ctx context.Context, name string, groups []string) error {
	s.cloud.mu.Lock()
	defer s.cloud.mu.Unlock()
	if err := s.record("SetSecurityGroups %s %v", name, groups); err != nil {
		return err
	}
	return s.mutate(name, func(o *lb.ObservedState) { o.SecurityGroups = slices.Clone(groups) })
}

func (s *fakeSession) SetListeners(ctx context.Context, name string, removePorts []int32, add lb.Listener) error {
	s.cloud.mu.Lock()
	defer s.cloud.mu.Unlock()
	if err := s.record("SetListeners %s -%v +%s:%d", name, removePorts, add.Protocol, add.Port); err != nil {
		return err
	}
	return s.mutate(name, func(o *lb.ObservedState) {
		o.Listeners = slices.DeleteFunc(o.Listeners, func(l lb.Listener) bool { return slices.Contains(removePorts, l.Port) })
		o.Listeners = append(o.Listeners, add)
	})
}

func (s *fakeSession) ConfigureHealthCheck(ctx context.Context, name string, hc lb.HealthCheck) error {
	s.cloud.mu.Lock()
	defer s.cloud.mu.Unlock()
	if err := s.record("ConfigureHealthCheck %s %s %d/%d/%d/%d", name, hc.Target, hc.Interval, hc.Timeout, hc.HealthyThreshold, hc.UnhealthyThreshold); err != nil {
		return err
	}
	return s.mutate(name, func(o *lb.ObservedState) { o.HealthCheck = &hc })
}

func (s *fakeSession) RegisterTargets(ctx context.Context, name string, add []string) error {
	s.cloud.mu.Lock()
	defer s.cloud.mu.Unlock()
	if err := s.record("RegisterTargets %s %v", name, add); err != nil {
		return err
	}
	return s.mutate(name, func(o *lb.ObservedState) { o.Targets = apply(o.Targets, add, nil) })
}

func (s *fakeSession) DeregisterTargets(ctx context.Context, name string, remove []string) error {
	s.cloud.mu.Lock()
	defer s.cloud.mu.Unlock()
	if err := s.record("DeregisterTargets %s %v", name, remove); err != nil {
		return err
	}
	return s.mutate(name, func(o *lb.ObservedState) { o.Targets = apply(o.Targets, nil, remove) })
}

func (s *fakeSession) DefaultZones(ctx context.Context) ([]string, error) {
	s.cloud.mu.Lock()
	defer s.cloud.mu.Unlock()
	return slices.Clone(s.cloud.defaultZones), s.cloud.zonesErr
}

func (s *fakeSession) Close() error {
	s.cloud.mu.Lock()
	defer s.cloud.mu.Unlock()
	s.cloud.closed++
	s.cloud.active--
	return nil
}

type recordingHook struct {
	mu      sync.Mutex
	events  []string
	preErr  error
	postErr error
}

func (h *recordingHook) PreRelease(ctx context.Context, handle lb.ResourceHandle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, "pre "+handle.Name)
	return h.preErr
}

func (h *recordingHook) PostRelease(ctx context.Context, handle lb.ResourceHandle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, "post "+handle.Name)
	return h.postErr
}
