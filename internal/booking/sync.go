package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/rental-hold-engine/internal/channel"
	"github.com/iliyamo/rental-hold-engine/internal/clock"
	"github.com/iliyamo/rental-hold-engine/internal/model"
	"github.com/iliyamo/rental-hold-engine/internal/repository"
)

// ChannelClient submits reservations to the channel-manager.
// *channel.Client implements it.
type ChannelClient interface {
	CreateReservation(ctx context.Context, r channel.ReservationRequest) (string, error)
}

// Locker grants short-lived exclusive leases keyed by string.  unlock is
// only valid when ok is true.
type Locker interface {
	TryLock(ctx context.Context, key string) (unlock func(), ok bool, err error)
}

// SyncOutcome is the coarse result of a sync attempt.
type SyncOutcome string

const (
	OutcomeSynced  SyncOutcome = "synced"
	OutcomeSkipped SyncOutcome = "skipped"
	OutcomeFailed  SyncOutcome = "failed"
)

// SyncReason qualifies skipped and failed outcomes.
type SyncReason string

const (
	ReasonNotConfirmed     SyncReason = "NotConfirmed"
	ReasonAlreadySynced    SyncReason = "AlreadySynced"
	ReasonInProgress       SyncReason = "InProgress"
	ReasonValidation       SyncReason = "ValidationError"
	ReasonTransport        SyncReason = "SyncTransportFailure"
	ReasonUpstreamRejected SyncReason = "SyncUpstreamRejected"
)

// SyncResult describes what a Sync call did.  Err is set for failed
// outcomes and matches ErrValidation, ErrSyncTransport or
// ErrSyncUpstreamRejected.
type SyncResult struct {
	ReservationID string      `json:"reservationId"`
	Outcome       SyncOutcome `json:"outcome"`
	Reason        SyncReason  `json:"reason,omitempty"`
	ExternalRef   string      `json:"externalRef,omitempty"`
	Message       string      `json:"message,omitempty"`
	Err           error       `json:"-"`
}

// Retryable reports whether a later attempt could succeed without anyone
// fixing data.
func (r SyncResult) Retryable() bool {
	return r.Outcome == OutcomeFailed && r.Reason != ReasonValidation
}

// SyncOptions configures the sync agent.
type SyncOptions struct {
	ChannelID int
	Locker    Locker
}

// SyncAgent mirrors confirmed reservations to the channel-manager so that
// each reservation is created there at most once.
type SyncAgent struct {
	repo      *repository.ReservationRepo
	client    ChannelClient
	channelID int
	locker    Locker
	clock     clock.Clock
	validate  *validator.Validate
	log       *slog.Logger
}

// NewSyncAgent wires a SyncAgent.  client may be nil when the
// channel-manager is not configured; every sync then fails validation.
func NewSyncAgent(repo *repository.ReservationRepo, client ChannelClient, clk clock.Clock, opts SyncOptions, logger *slog.Logger) *SyncAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncAgent{
		repo:      repo,
		client:    client,
		channelID: opts.ChannelID,
		locker:    opts.Locker,
		clock:     clk,
		validate:  validator.New(),
		log:       logger,
	}
}

// Sync pushes one confirmed reservation to the channel-manager.  The
// returned error is reserved for ErrNotFound and store failures; every
// business outcome is reported in SyncResult.
func (a *SyncAgent) Sync(ctx context.Context, id string) (SyncResult, error) {
	res, err := getReservation(ctx, a.repo, id)
	if err != nil {
		return SyncResult{ReservationID: id}, err
	}
	if r, done := precheck(res); done {
		return r, nil
	}

	if a.locker != nil {
		unlock, ok, err := a.locker.TryLock(ctx, "sync:"+id)
		switch {
		case err != nil:
			a.log.Warn("sync: lock unavailable, relying on conditional write", "id", id, "err", err)
		case !ok:
			return SyncResult{ReservationID: id, Outcome: OutcomeSkipped, Reason: ReasonInProgress}, nil
		default:
			defer unlock()
			// state may have moved while we waited for the lease
			if res, err = getReservation(ctx, a.repo, id); err != nil {
				return SyncResult{ReservationID: id}, err
			}
			if r, done := precheck(res); done {
				return r, nil
			}
		}
	}

	req, problems := a.buildRequest(res)
	if len(problems) > 0 {
		msg := "VALIDATION: " + strings.Join(problems, "; ")
		return a.fail(ctx, res.ID, ReasonValidation, fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; ")), msg)
	}

	ref, err := a.client.CreateReservation(ctx, req)
	if err != nil {
		var up *channel.UpstreamError
		if errors.As(err, &up) {
			msg := fmt.Sprintf("SYNC_REJECTED: status=%d %s", up.StatusCode, up.Body)
			return a.fail(ctx, res.ID, ReasonUpstreamRejected, fmt.Errorf("%w: %v", ErrSyncUpstreamRejected, err), msg)
		}
		msg := fmt.Sprintf("SYNC_TRANSPORT: %v", err)
		return a.fail(ctx, res.ID, ReasonTransport, fmt.Errorf("%w: %v", ErrSyncTransport, err), msg)
	}

	now := a.clock.Now().UTC()
	err = a.repo.SetExternalRef(ctx, res.ID, ref, now)
	if errors.Is(err, repository.ErrConflict) {
		// another attempt recorded its ref first; the persisted one wins
		cur, gerr := getReservation(ctx, a.repo, res.ID)
		if gerr != nil {
			return SyncResult{ReservationID: id}, gerr
		}
		a.log.Warn("sync: external ref already recorded, discarding duplicate",
			"id", res.ID, "kept_ref", deref(cur.ExternalReservationRef), "discarded_ref", ref)
		if !cur.Synced() {
			return SyncResult{ReservationID: id, Outcome: OutcomeSkipped, Reason: ReasonNotConfirmed}, nil
		}
		return SyncResult{ReservationID: id, Outcome: OutcomeSynced, ExternalRef: *cur.ExternalReservationRef}, nil
	}
	if err != nil {
		return SyncResult{ReservationID: id}, fmt.Errorf("record external ref: %w", err)
	}

	a.log.Info("sync: reservation created upstream", "id", res.ID, "external_ref", ref)
	return SyncResult{ReservationID: id, Outcome: OutcomeSynced, ExternalRef: ref}, nil
}

// SyncBatch summarizes a SyncPending run.
type SyncBatch struct {
	Attempted int
	Synced    int
	Failed    int
	Skipped   int
}

// SyncPending retries confirmed reservations that have no external ref and
// were last touched at least minAge ago.
func (a *SyncAgent) SyncPending(ctx context.Context, minAge time.Duration, limit int) (SyncBatch, error) {
	var batch SyncBatch
	pending, err := a.repo.ListUnsynced(ctx, a.clock.Now().UTC().Add(-minAge), limit)
	if err != nil {
		return batch, fmt.Errorf("list unsynced: %w", err)
	}
	for _, res := range pending {
		if ctx.Err() != nil {
			return batch, ctx.Err()
		}
		batch.Attempted++
		r, err := a.Sync(ctx, res.ID)
		if err != nil {
			batch.Failed++
			a.log.Error("sync: retry failed", "id", res.ID, "err", err)
			continue
		}
		switch r.Outcome {
		case OutcomeSynced:
			batch.Synced++
		case OutcomeFailed:
			batch.Failed++
		default:
			batch.Skipped++
		}
	}
	return batch, nil
}

func precheck(res *model.Reservation) (SyncResult, bool) {
	switch {
	case res.Status != model.StatusConfirmed:
		return SyncResult{ReservationID: res.ID, Outcome: OutcomeSkipped, Reason: ReasonNotConfirmed}, true
	case res.Synced():
		return SyncResult{ReservationID: res.ID, Outcome: OutcomeSkipped, Reason: ReasonAlreadySynced,
			ExternalRef: *res.ExternalReservationRef}, true
	}
	return SyncResult{}, false
}

// buildRequest maps a reservation to the channel-manager payload and lists
// every missing or malformed field.
func (a *SyncAgent) buildRequest(res *model.Reservation) (channel.ReservationRequest, []string) {
	var problems []string
	if a.client == nil {
		problems = append(problems, "channel-manager is not configured")
	}
	if a.channelID <= 0 {
		problems = append(problems, "channel id is not configured")
	}
	apartmentID, err := strconv.Atoi(strings.TrimSpace(res.UnitID))
	if err != nil || apartmentID <= 0 {
		problems = append(problems, fmt.Sprintf("unit %q has no channel-manager apartment id", res.UnitID))
	}
	if res.ContactEmail == "" {
		problems = append(problems, "contact email is missing")
	} else if err := a.validate.Var(res.ContactEmail, "email"); err != nil {
		problems = append(problems, fmt.Sprintf("contact email %q is malformed", res.ContactEmail))
	}

	first, last := splitName(res.ContactName)
	return channel.ReservationRequest{
		ArrivalDate:   res.CheckIn.String(),
		DepartureDate: res.CheckOut.String(),
		ApartmentID:   apartmentID,
		ChannelID:     a.channelID,
		FirstName:     first,
		LastName:      last,
		Email:         res.ContactEmail,
		Adults:        res.GuestCount,
	}, problems
}

func (a *SyncAgent) fail(ctx context.Context, id string, reason SyncReason, cause error, msg string) (SyncResult, error) {
	r := SyncResult{ReservationID: id, Outcome: OutcomeFailed, Reason: reason, Message: msg, Err: cause}
	a.log.Warn("sync: attempt failed", "id", id, "reason", string(reason), "err", cause)
	if err := a.repo.RecordSyncError(ctx, id, truncate(msg, 1000), a.clock.Now().UTC()); err != nil {
		return r, fmt.Errorf("record sync error: %w", err)
	}
	return r, nil
}

func splitName(full string) (string, string) {
	full = strings.TrimSpace(full)
	first, last, _ := strings.Cut(full, " ")
	return first, strings.TrimSpace(last)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
