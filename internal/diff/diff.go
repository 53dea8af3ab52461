// Package diff computes the add/remove deltas that move observed
// load-balancer configuration toward the desired configuration.
package diff

import (
	"cmp"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"tasnim.dev/elbctl/internal/lb"
)

// Delta is what must be added and removed. Add and Remove are sorted and
// disjoint.
type Delta[T cmp.Ordered] struct {
	Add    []T
	Remove []T
}

// Empty reports whether the delta is a no-op.
func (d Delta[T]) Empty() bool {
	return len(d.Add) == 0 && len(d.Remove) == 0
}

// Compute returns Add = desired − observed and Remove = observed − desired.
// Duplicates in either input are ignored.
func Compute[T cmp.Ordered](desired, observed []T) Delta[T] {
	want := mapset.NewThreadUnsafeSet(desired...)
	have := mapset.NewThreadUnsafeSet(observed...)
	return Delta[T]{
		Add:    sorted(want.Difference(have)),
		Remove: sorted(have.Difference(want)),
	}
}

func sorted[T cmp.Ordered](s mapset.Set[T]) []T {
	if s.Cardinality() == 0 {
		return nil
	}
	out := s.ToSlice()
	slices.Sort(out)
	return out
}

// Placement is the delta for availability zones or subnets. An empty
// desired list means the operator did not ask to manage that category, so
// nothing is removed.
func Placement(desired, observed []string) Delta[string] {
	if len(desired) == 0 {
		return Delta[string]{}
	}
	return Compute(desired, observed)
}

// Targets is the delta for registered backend instances.
func Targets(desired, observed []string) Delta[string] {
	return Compute(desired, observed)
}

// SecurityGroups returns the groups to apply and whether the apply call
// should be made at all. The remote API rejects an empty list, so an empty
// desired set never clears the observed groups; it skips the call instead.
func SecurityGroups(desired, observed []string) ([]string, bool) {
	if len(desired) == 0 {
		return nil, false
	}
	if Compute(desired, observed).Empty() {
		return nil, false
	}
	groups := mapset.NewThreadUnsafeSet(desired...).ToSlice()
	slices.Sort(groups)
	return groups, true
}

// Listener returns the observed ports to delete before (re-)creating the
// desired listener. Listeners are keyed by front-end port: every observed
// port other than the desired one is stale, and the desired port itself is
// replaced so that its protocol and instance port are guaranteed correct.
// The desired listener is always re-created.
func Listener(desired lb.Listener, observed []lb.Listener) (removePorts []int32, add lb.Listener) {
	ports := make([]int32, 0, len(observed))
	for _, l := range observed {
		ports = append(ports, l.Port)
	}
	d := Compute([]int32{desired.Port}, ports)
	removePorts = d.Remove
	if slices.Contains(ports, desired.Port) {
		removePorts = append(removePorts, desired.Port)
		slices.Sort(removePorts)
	}
	return removePorts, desired
}

// HealthCheck builds the full replacement descriptor. Each unset field
// falls back to the observed value so a pass never resets what the operator
// did not specify.
func HealthCheck(desired lb.HealthCheckSpec, target string, observed *lb.HealthCheck) lb.HealthCheck {
	var base lb.HealthCheck
	if observed != nil {
		base = *observed
	}
	out := lb.HealthCheck{
		Target:             target,
		Interval:           pick(desired.Interval, base.Interval),
		Timeout:            pick(desired.Timeout, base.Timeout),
		HealthyThreshold:   pick(desired.HealthyThreshold, base.HealthyThreshold),
		UnhealthyThreshold: pick(desired.UnhealthyThreshold, base.UnhealthyThreshold),
	}
	if out.Target == "" {
		out.Target = base.Target
	}
	return out
}

func pick(v *int32, fallback int32) int32 {
	if v != nil {
		return *v
	}
	return fallback
}
