package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/iliyamo/rental-hold-engine/internal/model"
	"github.com/iliyamo/rental-hold-engine/internal/queue"
)

// ConfirmNotifier announces confirmed reservations so the channel-manager
// sync runs outside the request.  *service.Publisher implements it.
type ConfirmNotifier interface {
	PublishReservationConfirmed(ctx context.Context, event queue.ReservationConfirmedEvent) error
}

// announce publishes the confirmation unless the record is already synced.
// Failures are logged only; the resync job picks the record up later.
func announce(ctx context.Context, n ConfirmNotifier, log *slog.Logger, res *model.Reservation) {
	if n == nil || res == nil || res.Synced() {
		return
	}
	ev := queue.ReservationConfirmedEvent{
		ReservationID: res.ID,
		UnitID:        res.UnitID,
		CheckIn:       res.CheckIn.String(),
		CheckOut:      res.CheckOut.String(),
		ConfirmedAt:   res.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if res.PaymentEventRef != nil {
		ev.PaymentEventRef = *res.PaymentEventRef
	}
	if err := n.PublishReservationConfirmed(ctx, ev); err != nil {
		log.Warn("handler: announce confirmation failed", "reservation_id", res.ID, "err", err)
	}
}
