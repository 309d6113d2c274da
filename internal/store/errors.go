package store

import "errors"

// Typed errors distinguished by the orchestrator and CLI so that transient,
// fatal, and conflict conditions are handled differently (spec §7).
var (
	// ErrConflict is returned when a concurrent writer wins a race this
	// caller lost (e.g. snapshot activation, concurrent indexing).
	ErrConflict = errors.New("store: conflict")
	// ErrState is returned for an illegal snapshot status transition.
	ErrState = errors.New("store: illegal state transition")
	// ErrNotFound is returned when a lookup finds no matching row.
	ErrNotFound = errors.New("store: not found")
)
