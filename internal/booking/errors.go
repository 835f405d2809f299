package booking

import (
	"errors"
	"fmt"

	"github.com/iliyamo/rental-hold-engine/internal/model"
)

// Sentinel errors returned by the booking services.  Handlers map them to
// HTTP statuses with errors.Is.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidDateRange  = errors.New("invalid date range")
	ErrInvalidTTL        = errors.New("invalid hold ttl")
	ErrDateConflict      = errors.New("dates conflict with an existing reservation")
	ErrNotFound          = errors.New("reservation not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotCancellable    = errors.New("reservation is not a cancellable hold")
	ErrHoldExpired       = errors.New("hold expired")
	ErrHoldCancelled     = errors.New("hold cancelled")

	ErrValidation           = errors.New("reservation is missing data required for sync")
	ErrSyncTransport        = errors.New("channel-manager unreachable")
	ErrSyncUpstreamRejected = errors.New("channel-manager rejected reservation")
)

// ConflictError carries the binding record that blocked a new hold.
type ConflictError struct {
	Conflict model.Conflict
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v: %s %s..%s (%s)", ErrDateConflict,
		e.Conflict.ID, e.Conflict.CheckIn, e.Conflict.CheckOut, e.Conflict.Status)
}

func (e *ConflictError) Unwrap() error { return ErrDateConflict }
