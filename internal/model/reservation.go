package model

import "time"

// Reservation is a single date-range booking of a rental unit.  It starts
// life as a hold and moves to exactly one terminal status.  Records are
// never deleted; terminal rows remain as history.
//
// Fields:
//
//	ID                     – opaque UUID, unique.
//	UnitID                 – rental unit being booked.
//	CheckIn, CheckOut      – half-open stay range [CheckIn, CheckOut).
//	Status                 – hold, confirmed, cancelled or expired.
//	HoldExpiresAt          – deadline of a hold; nil once the record leaves hold.
//	GuestCount             – number of guests, at least 1.
//	ContactEmail           – guest email forwarded to the channel-manager.
//	ContactName            – guest display name.
//	PaymentSessionRef      – checkout session id from the payment provider.
//	PaymentTransactionRef  – payment intent / transaction id.
//	PaymentEventRef        – id of the event that confirmed the hold.
//	ExternalReservationRef – channel-manager reservation id; set at most once.
//	LastSyncError          – most recent sync failure, cleared on success.
//	CreatedAt, UpdatedAt   – bookkeeping timestamps (UTC).
type Reservation struct {
	ID                     string     `json:"id"`                               // reservations.id
	UnitID                 string     `json:"unitId"`                           // reservations.unit_id
	CheckIn                Date       `json:"checkIn"`                          // reservations.check_in
	CheckOut               Date       `json:"checkOut"`                         // reservations.check_out
	Status                 Status     `json:"status"`                           // reservations.status
	HoldExpiresAt          *time.Time `json:"holdExpiresAt,omitempty"`          // reservations.hold_expires_at (nullable)
	GuestCount             int        `json:"guestCount"`                       // reservations.guest_count
	ContactEmail           string     `json:"contactEmail,omitempty"`           // reservations.contact_email
	ContactName            string     `json:"contactName,omitempty"`            // reservations.contact_name
	PaymentSessionRef      *string    `json:"paymentSessionRef,omitempty"`      // reservations.payment_session_ref (nullable)
	PaymentTransactionRef  *string    `json:"paymentTransactionRef,omitempty"`  // reservations.payment_transaction_ref (nullable)
	PaymentEventRef        *string    `json:"paymentEventRef,omitempty"`        // reservations.payment_event_ref (nullable)
	ExternalReservationRef *string    `json:"externalReservationRef,omitempty"` // reservations.external_reservation_ref (nullable)
	LastSyncError          *string    `json:"lastSyncError,omitempty"`          // reservations.last_sync_error (nullable)
	CreatedAt              time.Time  `json:"createdAt"`                        // reservations.created_at
	UpdatedAt              time.Time  `json:"updatedAt"`                        // reservations.updated_at
}

// IsBinding reports whether the record blocks other bookings of the same
// unit at instant now: confirmed records always do, holds only until their
// deadline passes.
func (r *Reservation) IsBinding(now time.Time) bool {
	switch r.Status {
	case StatusConfirmed:
		return true
	case StatusHold:
		return r.HoldExpiresAt != nil && r.HoldExpiresAt.After(now)
	}
	return false
}

// Synced reports whether the record already has a channel-manager id.
func (r *Reservation) Synced() bool {
	return r.ExternalReservationRef != nil && *r.ExternalReservationRef != ""
}

// Conflict describes the binding record that prevented a new hold.
type Conflict struct {
	ID       string `json:"id"`
	CheckIn  Date   `json:"checkIn"`
	CheckOut Date   `json:"checkOut"`
	Status   Status `json:"status"`
}
