// Package shmerr defines the sentinel error kinds surfaced by the ring
// and queue packages. Callers classify an error with errors.Is against
// these sentinels; the underlying cause, if any, is wrapped with %w.
package shmerr

import "errors"

var (
	// ErrInvalidArgument indicates illegal or contradictory arguments:
	// zero/illegal geometry, a payload exceeding max_payload, both
	// force_recreate and no_create set, or an undersized buffer.
	ErrInvalidArgument = errors.New("shmring: invalid argument")

	// ErrOverflow indicates a derived size would exceed the 32-bit range
	// the on-wire layout is defined in.
	ErrOverflow = errors.New("shmring: size overflow")

	// ErrNotFound indicates no_create was set and the named region does
	// not exist.
	ErrNotFound = errors.New("shmring: region not found")

	// ErrIncompatibleGeometry indicates an existing region's header or
	// total size does not match the requested geometry.
	ErrIncompatibleGeometry = errors.New("shmring: incompatible geometry")

	// ErrOutOfRange indicates a consumer_id outside [0, num_consumers).
	ErrOutOfRange = errors.New("shmring: consumer id out of range")

	// ErrIoError indicates the underlying region creation, sizing, or
	// mapping failed.
	ErrIoError = errors.New("shmring: io error")
)
