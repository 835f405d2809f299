// Package queue defines message payloads exchanged over the message broker
// and the consumer that drives channel-manager sync from them.
package queue

// ReservationConfirmedQueue is the durable queue confirmed reservations are
// announced on.
const ReservationConfirmedQueue = "reservation.confirmed"

// ReservationConfirmedEvent is published after a hold is confirmed.  The
// consumer only needs the id; the rest is for log readers and other
// subscribers.
type ReservationConfirmedEvent struct {
	ReservationID   string `json:"reservation_id"`
	UnitID          string `json:"unit_id"`
	CheckIn         string `json:"check_in"`
	CheckOut        string `json:"check_out"`
	PaymentEventRef string `json:"payment_event_ref,omitempty"`
	ConfirmedAt     string `json:"confirmed_at"`
}
