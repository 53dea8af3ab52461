package lb

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

// InvalidLocationError reports a start against a location the engine cannot
// drive.
type InvalidLocationError struct {
	Location Location
	Reason   string
}

func (e *InvalidLocationError) Error() string {
	if e.Location.Provider == "" && e.Location.Region == "" {
		return "invalid location: " + e.Reason
	}
	return fmt.Sprintf("invalid location %s: %s", e.Location, e.Reason)
}

func (e *InvalidLocationError) Unwrap() error { return errdefs.ErrInvalidArgument }

// AlreadyExistsError reports a name collision when neither bind nor replace
// was requested.
type AlreadyExistsError struct {
	Name string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("load balancer %s already exists (consider replace_existing or bind_to_existing)", e.Name)
}

func (e *AlreadyExistsError) Unwrap() error { return errdefs.ErrAlreadyExists }

// NotFoundError reports a load balancer that is absent remotely.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("load balancer %s not found", e.Name)
}

func (e *NotFoundError) Unwrap() error { return errdefs.ErrNotFound }

// AmbiguousPlacementError is returned when neither zones nor subnets were
// given and no default zones could be resolved.
type AmbiguousPlacementError struct {
	Cause error
}

func (e *AmbiguousPlacementError) Error() string {
	msg := "you must supply a list of availability zones or subnets"
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *AmbiguousPlacementError) Unwrap() []error {
	if e.Cause != nil {
		return []error{errdefs.ErrFailedPrecondition, e.Cause}
	}
	return []error{errdefs.ErrFailedPrecondition}
}

// NameExhaustedError is returned when no unused name was found within the
// attempt bound.
type NameExhaustedError struct {
	Attempts int
	LastName string
}

func (e *NameExhaustedError) Error() string {
	return fmt.Sprintf("failed to generate unused load balancer name after %d attempts (last attempt was %s)", e.Attempts, e.LastName)
}

func (e *NameExhaustedError) Unwrap() error { return errdefs.ErrResourceExhausted }

// InvalidSpecError reports a desired spec rejected before any remote call.
type InvalidSpecError struct {
	Field  string
	Reason string
}

func (e *InvalidSpecError) Error() string {
	return fmt.Sprintf("invalid load balancer spec: %s: %s", e.Field, e.Reason)
}

func (e *InvalidSpecError) Unwrap() error { return errdefs.ErrInvalidArgument }

// ReconcileError is the outcome of a failed lifecycle operation. Op is one
// of start, stop, reload or delete.
type ReconcileError struct {
	Op   string
	Name string
	Err  error
}

func (e *ReconcileError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Name, e.Err)
}

func (e *ReconcileError) Unwrap() error { return e.Err }

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks err as unrecoverable. Cleanup paths that otherwise log and
// continue propagate fatal errors.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err, or anything it wraps, was marked with Fatal.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}
