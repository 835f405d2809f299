package model

// Status is the lifecycle state of a Reservation.  The values are stored
// verbatim in reservations.status.
type Status string

const (
	StatusHold      Status = "hold"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusHold, StatusConfirmed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool { return s.Valid() && s != StatusHold }

// CanTransition reports whether s may move to next.  Only a hold can move,
// and only to one of the three terminal statuses.
func (s Status) CanTransition(next Status) bool {
	if s != StatusHold {
		return false
	}
	switch next {
	case StatusConfirmed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}
