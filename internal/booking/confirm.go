package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/iliyamo/rental-hold-engine/internal/clock"
	"github.com/iliyamo/rental-hold-engine/internal/model"
	"github.com/iliyamo/rental-hold-engine/internal/repository"
)

// Coordinator applies payment-confirmation events to holds.  Events may be
// delivered more than once; replays of an applied event succeed without
// changing the record.
type Coordinator struct {
	repo  *repository.ReservationRepo
	clock clock.Clock
	log   *slog.Logger
}

// NewCoordinator wires a Coordinator.
func NewCoordinator(repo *repository.ReservationRepo, clk clock.Clock, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{repo: repo, clock: clk, log: logger}
}

// ConfirmInput carries the hold id and the payment identifiers extracted
// from the provider's event.  Empty refs are stored as NULL.
type ConfirmInput struct {
	HoldID         string
	SessionRef     string
	TransactionRef string
	EventRef       string
}

// ConfirmResult is the confirmed record.  Replayed is set when the record
// was already confirmed before this call.
type ConfirmResult struct {
	Reservation *model.Reservation
	Replayed    bool
}

// Confirm moves a live hold to confirmed.  It never triggers the
// channel-manager sync; callers schedule that separately.
//
// Outcomes when the conditional write matches nothing:
//   - already confirmed: success, Replayed=true
//   - expired, or a hold whose deadline has passed: ErrHoldExpired
//   - cancelled: ErrHoldCancelled
//   - missing: ErrNotFound
func (c *Coordinator) Confirm(ctx context.Context, in ConfirmInput) (*ConfirmResult, error) {
	id := strings.TrimSpace(in.HoldID)
	if id == "" {
		return nil, fmt.Errorf("%w: hold id is required", ErrInvalidInput)
	}
	now := c.clock.Now().UTC()
	refs := repository.PaymentRefs{
		SessionRef:     strings.TrimSpace(in.SessionRef),
		TransactionRef: strings.TrimSpace(in.TransactionRef),
		EventRef:       strings.TrimSpace(in.EventRef),
	}

	err := c.repo.ConfirmHold(ctx, id, refs, now)
	switch {
	case err == nil:
		res, err := getReservation(ctx, c.repo, id)
		if err != nil {
			return nil, err
		}
		c.log.Info("booking: hold confirmed", "id", id, "unit_id", res.UnitID, "event_ref", refs.EventRef)
		return &ConfirmResult{Reservation: res}, nil
	case !errors.Is(err, repository.ErrConflict):
		return nil, fmt.Errorf("confirm hold: %w", err)
	}

	res, err := getReservation(ctx, c.repo, id)
	if err != nil {
		return nil, err
	}
	if res.Status.CanTransition(model.StatusConfirmed) {
		if res.IsBinding(now) {
			// raced with another writer between the update and the read
			return nil, fmt.Errorf("%w: hold %s changed concurrently", ErrInvalidTransition, id)
		}
		// Lapsed but not yet swept: expire it here so the record reflects
		// why the payment was refused.
		if err := c.repo.ExpireHold(ctx, id, now); err != nil && !errors.Is(err, repository.ErrConflict) {
			c.log.Warn("booking: expire lapsed hold failed", "id", id, "err", err)
		}
		c.log.Warn("booking: payment arrived after hold deadline", "id", id,
			"expired_at", res.HoldExpiresAt, "event_ref", refs.EventRef)
		return nil, fmt.Errorf("%w: %s", ErrHoldExpired, id)
	}
	switch res.Status {
	case model.StatusConfirmed:
		c.log.Info("booking: confirmation replayed", "id", id, "event_ref", refs.EventRef)
		return &ConfirmResult{Reservation: res, Replayed: true}, nil
	case model.StatusExpired:
		return nil, fmt.Errorf("%w: %s", ErrHoldExpired, id)
	case model.StatusCancelled:
		return nil, fmt.Errorf("%w: %s", ErrHoldCancelled, id)
	}
	return nil, fmt.Errorf("%w: %s has status %s", ErrInvalidTransition, id, res.Status)
}
