package registry

import "errors"

// ErrKindMismatch is returned by ApplyDefinition when an ObjectDefinition
// names an existing (type, instance) with a different value_kind than the
// record already holds (spec.md §4.4, invariant 2 of §3).
var ErrKindMismatch = errors.New("registry: kind_mismatch")

// ErrNotFound is returned by ApplyValue when the target object does not
// exist.
var ErrNotFound = errors.New("registry: not_found")

// ErrOutOfRange is returned by ApplyValue when the incoming value falls
// outside a configured min/max and clamping is disabled, or when a
// multi-state object's presentValue falls outside [1, state_count].
var ErrOutOfRange = errors.New("registry: out_of_range")

// ErrCacheTransient wraps a transient cache-mirror failure surfaced by
// ApplyValue/ApplyDefinition/ApplyDelete so the caller (the supervisor's
// apply path) can map it to "failed/retry" per spec.md §4.6.
type ErrCacheTransient struct{ Err error }

func (e *ErrCacheTransient) Error() string { return "registry: cache transient: " + e.Err.Error() }
func (e *ErrCacheTransient) Unwrap() error { return e.Err }
