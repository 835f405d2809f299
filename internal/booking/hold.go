// Package booking implements the hold/reservation lifecycle: creating holds
// without double-booking, confirming them from payment events, mirroring
// confirmed stays to the channel-manager, and expiring lapsed holds.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/rental-hold-engine/internal/clock"
	"github.com/iliyamo/rental-hold-engine/internal/model"
	"github.com/iliyamo/rental-hold-engine/internal/repository"
)

const (
	DefaultHoldTTL = 24 * time.Hour
	DefaultMaxTTL  = 7 * 24 * time.Hour
)

// HoldOptions bounds the lifetime of new holds.
type HoldOptions struct {
	DefaultTTL time.Duration
	MaxTTL     time.Duration
}

// HoldManager creates and releases holds.
type HoldManager struct {
	repo       *repository.ReservationRepo
	clock      clock.Clock
	defaultTTL time.Duration
	maxTTL     time.Duration
	log        *slog.Logger
}

// NewHoldManager wires a HoldManager.  Zero options fall back to a 24h
// default TTL and a 7 day ceiling.
func NewHoldManager(repo *repository.ReservationRepo, clk clock.Clock, opts HoldOptions, logger *slog.Logger) *HoldManager {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultHoldTTL
	}
	if opts.MaxTTL <= 0 {
		opts.MaxTTL = DefaultMaxTTL
	}
	if opts.DefaultTTL > opts.MaxTTL {
		opts.MaxTTL = opts.DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HoldManager{
		repo:       repo,
		clock:      clk,
		defaultTTL: opts.DefaultTTL,
		maxTTL:     opts.MaxTTL,
		log:        logger,
	}
}

// HoldInput is a request to provisionally reserve a unit.  Dates are
// YYYY-MM-DD strings.  TTLMinutes is used when TTL is zero; both zero
// select the default.
type HoldInput struct {
	UnitID       string
	CheckIn      string
	CheckOut     string
	TTL          time.Duration
	TTLMinutes   int
	GuestCount   int
	ContactEmail string
	ContactName  string
}

// ParseRange validates a stay range: both dates strict YYYY-MM-DD, check-in
// strictly before check-out, and check-in not before today.
func ParseRange(checkIn, checkOut string, today model.Date) (model.Date, model.Date, error) {
	in, err := model.ParseDate(strings.TrimSpace(checkIn))
	if err != nil {
		return model.Date{}, model.Date{}, fmt.Errorf("%w: checkIn: %v", ErrInvalidDateRange, err)
	}
	out, err := model.ParseDate(strings.TrimSpace(checkOut))
	if err != nil {
		return model.Date{}, model.Date{}, fmt.Errorf("%w: checkOut: %v", ErrInvalidDateRange, err)
	}
	if !in.Before(out) {
		return model.Date{}, model.Date{}, fmt.Errorf("%w: checkIn %s must be before checkOut %s", ErrInvalidDateRange, in, out)
	}
	if in.Before(today) {
		return model.Date{}, model.Date{}, fmt.Errorf("%w: checkIn %s is in the past", ErrInvalidDateRange, in)
	}
	return in, out, nil
}

// CreateHold checks the unit for a binding overlap and inserts a hold in one
// transaction.  The per-unit lock taken first makes concurrent creates for
// the same unit run one after another, so at most one of several
// overlapping requests can succeed.
func (m *HoldManager) CreateHold(ctx context.Context, in HoldInput) (*model.Reservation, error) {
	unitID := strings.TrimSpace(in.UnitID)
	if unitID == "" {
		return nil, fmt.Errorf("%w: unitId is required", ErrInvalidInput)
	}
	now := m.clock.Now().UTC()
	checkIn, checkOut, err := ParseRange(in.CheckIn, in.CheckOut, model.DateOf(now))
	if err != nil {
		return nil, err
	}
	ttl := in.TTL
	if ttl == 0 && in.TTLMinutes != 0 {
		if ttl, err = m.minutesTTL(in.TTLMinutes); err != nil {
			return nil, err
		}
	}
	switch {
	case ttl < 0:
		return nil, fmt.Errorf("%w: %s is negative", ErrInvalidTTL, ttl)
	case ttl == 0:
		ttl = m.defaultTTL
	case ttl > m.maxTTL:
		return nil, fmt.Errorf("%w: %s exceeds maximum %s", ErrInvalidTTL, ttl, m.maxTTL)
	}
	guests := in.GuestCount
	if guests < 1 {
		guests = 1
	}

	expires := now.Add(ttl)
	res := &model.Reservation{
		ID:            uuid.NewString(),
		UnitID:        unitID,
		CheckIn:       checkIn,
		CheckOut:      checkOut,
		Status:        model.StatusHold,
		HoldExpiresAt: &expires,
		GuestCount:    guests,
		ContactEmail:  strings.TrimSpace(in.ContactEmail),
		ContactName:   strings.TrimSpace(in.ContactName),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	tx, err := m.repo.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := m.repo.LockUnitTx(ctx, tx, unitID, now); err != nil {
		return nil, fmt.Errorf("lock unit %s: %w", unitID, err)
	}
	conflict, err := m.repo.FindConflictTx(ctx, tx, unitID, checkIn, checkOut, now)
	if err != nil {
		return nil, fmt.Errorf("conflict check: %w", err)
	}
	if conflict != nil {
		m.log.Info("booking: hold rejected, dates taken",
			"unit_id", unitID, "check_in", checkIn.String(), "check_out", checkOut.String(),
			"conflict_id", conflict.ID, "conflict_status", string(conflict.Status))
		return nil, &ConflictError{Conflict: *conflict}
	}
	if err := m.repo.CreateTx(ctx, tx, res); err != nil {
		return nil, fmt.Errorf("insert hold: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit hold: %w", err)
	}
	committed = true

	m.log.Info("booking: hold created", "id", res.ID, "unit_id", unitID,
		"check_in", checkIn.String(), "check_out", checkOut.String(), "nights", checkIn.Nights(checkOut),
		"expires_at", expires)
	return res, nil
}

// minutesTTL converts a client TTL in minutes, comparing against the ceiling
// before multiplying so huge values cannot wrap around.
func (m *HoldManager) minutesTTL(minutes int) (time.Duration, error) {
	if minutes < 0 {
		return 0, fmt.Errorf("%w: %d minutes is negative", ErrInvalidTTL, minutes)
	}
	if int64(minutes) > int64(m.maxTTL/time.Minute) {
		return 0, fmt.Errorf("%w: %d minutes exceeds maximum %s", ErrInvalidTTL, minutes, m.maxTTL)
	}
	return time.Duration(minutes) * time.Minute, nil
}

// ReleaseHold cancels a hold.  Only records still in hold can be released;
// anything else yields ErrNotCancellable (which also matches
// ErrInvalidTransition).
func (m *HoldManager) ReleaseHold(ctx context.Context, id string) (*model.Reservation, error) {
	now := m.clock.Now().UTC()
	err := m.repo.CancelHold(ctx, id, now)
	if err == nil {
		m.log.Info("booking: hold released", "id", id)
		return m.Get(ctx, id)
	}
	if !errors.Is(err, repository.ErrConflict) {
		return nil, fmt.Errorf("cancel hold: %w", err)
	}
	res, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.Status.CanTransition(model.StatusCancelled) {
		return nil, fmt.Errorf("%w: hold %s changed concurrently", ErrInvalidTransition, id)
	}
	if !res.Status.Terminal() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, res.Status)
	}
	return nil, fmt.Errorf("%w: status is %s: %w", ErrNotCancellable, res.Status, ErrInvalidTransition)
}

// Get loads one reservation by id.
func (m *HoldManager) Get(ctx context.Context, id string) (*model.Reservation, error) {
	return getReservation(ctx, m.repo, id)
}

// ListActive returns the records currently blocking bookings.  An empty
// unitID lists all units.
func (m *HoldManager) ListActive(ctx context.Context, unitID string) ([]model.Reservation, error) {
	return m.repo.ListBinding(ctx, strings.TrimSpace(unitID), m.clock.Now().UTC())
}

// CheckAvailability reports the first binding overlap for the range, or nil
// when the unit is free.  The answer is advisory: CreateHold re-checks under
// the unit lock.
func (m *HoldManager) CheckAvailability(ctx context.Context, unitID, checkIn, checkOut string) (*model.Conflict, error) {
	unitID = strings.TrimSpace(unitID)
	if unitID == "" {
		return nil, fmt.Errorf("%w: unitId is required", ErrInvalidInput)
	}
	now := m.clock.Now().UTC()
	in, out, err := ParseRange(checkIn, checkOut, model.DateOf(now))
	if err != nil {
		return nil, err
	}
	return m.repo.FindConflict(ctx, unitID, in, out, now)
}

func getReservation(ctx context.Context, repo *repository.ReservationRepo, id string) (*model.Reservation, error) {
	res, err := repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load reservation %s: %w", id, err)
	}
	return res, nil
}
