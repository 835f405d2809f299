// Package repository defines error types that are reused across the
// reservation store.  These sentinel values allow higher layers such as the
// booking services and handlers to distinguish between failure scenarios
// without inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when no reservation exists for the given id.
var ErrNotFound = errors.New("reservation not found")

// ErrConflict is returned when a conditional update matched no row because
// the record was not in the state the update requires (for example
// confirming a row that is no longer a live hold).  Callers re-read the row
// to decide what happened.
var ErrConflict = errors.New("conflict")
