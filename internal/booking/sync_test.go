package booking_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/rental-hold-engine/internal/booking"
	"github.com/iliyamo/rental-hold-engine/internal/channel"
)

func (e *env) syncAgent(client booking.ChannelClient, locker booking.Locker) *booking.SyncAgent {
	return booking.NewSyncAgent(e.repo, client, e.clock, booking.SyncOptions{ChannelID: 70, Locker: locker}, nil)
}

func TestSyncConfirmedReservation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.hold(t, "101", "2026-07-01", "2026-07-05")
	e.confirm(t, id)

	fc := &fakeChannel{id: "5001"}
	agent := e.syncAgent(fc, nil)
	r, err := agent.Sync(ctx, id)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if r.Outcome != booking.OutcomeSynced || r.ExternalRef != "5001" {
		t.Fatalf("result = %+v", r)
	}
	got := fc.calls[0]
	want := channel.ReservationRequest{
		ArrivalDate: "2026-07-01", DepartureDate: "2026-07-05", ApartmentID: 101, ChannelID: 70,
		FirstName: "Ada", LastName: "King Lovelace", Email: "ada@example.com", Adults: 2,
	}
	if got != want {
		t.Fatalf("payload = %+v\nwant      %+v", got, want)
	}

	res, _ := e.holds.Get(ctx, id)
	if res.ExternalReservationRef == nil || *res.ExternalReservationRef != "5001" || res.LastSyncError != nil {
		t.Fatalf("stored record = %+v", res)
	}

	// a second call makes no outbound request
	r, err = agent.Sync(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if r.Outcome != booking.OutcomeSkipped || r.Reason != booking.ReasonAlreadySynced || r.ExternalRef != "5001" {
		t.Fatalf("repeat result = %+v", r)
	}
	if fc.callCount() != 1 {
		t.Fatalf("outbound calls = %d, want 1", fc.callCount())
	}
}

func TestSyncSkipsUnconfirmed(t *testing.T) {
	e := newEnv(t)
	id := e.hold(t, "101", "2026-07-01", "2026-07-05")
	fc := &fakeChannel{id: "1"}

	r, err := e.syncAgent(fc, nil).Sync(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if r.Outcome != booking.OutcomeSkipped || r.Reason != booking.ReasonNotConfirmed {
		t.Fatalf("result = %+v", r)
	}
	if fc.callCount() != 0 {
		t.Fatal("unconfirmed hold was sent upstream")
	}
	if _, err := e.syncAgent(fc, nil).Sync(context.Background(), "missing"); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("Sync(missing) err = %v, want ErrNotFound", err)
	}
}

func TestSyncValidationFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res, err := e.holds.CreateHold(ctx, booking.HoldInput{UnitID: "beach-house", CheckIn: "2026-07-01", CheckOut: "2026-07-03"})
	if err != nil {
		t.Fatal(err)
	}
	e.confirm(t, res.ID)

	fc := &fakeChannel{id: "1"}
	r, err := e.syncAgent(fc, nil).Sync(ctx, res.ID)
	if err != nil {
		t.Fatal(err)
	}
	if r.Outcome != booking.OutcomeFailed || r.Reason != booking.ReasonValidation || !errors.Is(r.Err, booking.ErrValidation) {
		t.Fatalf("result = %+v", r)
	}
	if r.Retryable() {
		t.Fatal("validation failure reported retryable")
	}
	if fc.callCount() != 0 {
		t.Fatal("invalid reservation was sent upstream")
	}
	stored, _ := e.holds.Get(ctx, res.ID)
	if stored.LastSyncError == nil ||
		!strings.Contains(*stored.LastSyncError, "contact email is missing") ||
		!strings.Contains(*stored.LastSyncError, "apartment id") {
		t.Fatalf("last sync error = %v", stored.LastSyncError)
	}
	if stored.ExternalReservationRef != nil {
		t.Fatal("external ref set on failure")
	}
}

func TestSyncWithoutChannelClient(t *testing.T) {
	e := newEnv(t)
	id := e.hold(t, "101", "2026-07-01", "2026-07-05")
	e.confirm(t, id)

	agent := booking.NewSyncAgent(e.repo, nil, e.clock, booking.SyncOptions{}, nil)
	r, err := agent.Sync(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if r.Reason != booking.ReasonValidation || !strings.Contains(r.Message, "not configured") {
		t.Fatalf("result = %+v", r)
	}
}

func TestSyncUpstreamFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason booking.SyncReason
		target error
		prefix string
	}{
		{"rejected", &channel.UpstreamError{StatusCode: 422, Body: "bad apartment"}, booking.ReasonUpstreamRejected, booking.ErrSyncUpstreamRejected, "SYNC_REJECTED: status=422"},
		{"transport", fmt.Errorf("%w: dial tcp: refused", channel.ErrTransport), booking.ReasonTransport, booking.ErrSyncTransport, "SYNC_TRANSPORT:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			ctx := context.Background()
			id := e.hold(t, "101", "2026-07-01", "2026-07-05")
			e.confirm(t, id)

			fc := &fakeChannel{err: tt.err}
			r, err := e.syncAgent(fc, nil).Sync(ctx, id)
			if err != nil {
				t.Fatal(err)
			}
			if r.Outcome != booking.OutcomeFailed || r.Reason != tt.reason || !errors.Is(r.Err, tt.target) {
				t.Fatalf("result = %+v", r)
			}
			if !r.Retryable() {
				t.Fatal("upstream failure not retryable")
			}
			stored, _ := e.holds.Get(ctx, id)
			if stored.LastSyncError == nil || !strings.HasPrefix(*stored.LastSyncError, tt.prefix) {
				t.Fatalf("last sync error = %v, want prefix %q", stored.LastSyncError, tt.prefix)
			}
			if stored.ExternalReservationRef != nil {
				t.Fatal("external ref set on failure")
			}

			// a later success clears the error
			fc.err, fc.id = nil, "7007"
			if r, _ := e.syncAgent(fc, nil).Sync(ctx, id); r.Outcome != booking.OutcomeSynced {
				t.Fatalf("retry result = %+v", r)
			}
			stored, _ = e.holds.Get(ctx, id)
			if stored.LastSyncError != nil {
				t.Fatalf("last sync error not cleared: %q", *stored.LastSyncError)
			}
		})
	}
}

func TestSyncConcurrentCallsWithLocker(t *testing.T) {
	e := newEnv(t)
	id := e.hold(t, "101", "2026-07-01", "2026-07-05")
	e.confirm(t, id)

	fc := &fakeChannel{id: "8080", block: make(chan struct{})}
	agent := e.syncAgent(fc, &memLocker{})

	first := make(chan booking.SyncResult, 1)
	go func() {
		r, err := agent.Sync(context.Background(), id)
		if err != nil {
			t.Errorf("first Sync: %v", err)
		}
		first <- r
	}()

	// wait until the first call is in flight
	deadline := time.Now().Add(5 * time.Second)
	for fc.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first sync never reached the channel-manager")
		}
		time.Sleep(time.Millisecond)
	}

	r, err := agent.Sync(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if r.Outcome != booking.OutcomeSkipped || r.Reason != booking.ReasonInProgress {
		t.Fatalf("concurrent result = %+v, want skipped/InProgress", r)
	}

	close(fc.block)
	if r := <-first; r.Outcome != booking.OutcomeSynced || r.ExternalRef != "8080" {
		t.Fatalf("first result = %+v", r)
	}
	if fc.callCount() != 1 {
		t.Fatalf("outbound calls = %d, want 1", fc.callCount())
	}
}

func TestSyncConcurrentCallsWithoutLockerKeepFirstRef(t *testing.T) {
	e := newEnv(t)
	id := e.hold(t, "101", "2026-07-01", "2026-07-05")
	e.confirm(t, id)

	fc := &fakeChannel{id: "9000"}
	agent := e.syncAgent(fc, nil)

	var wg sync.WaitGroup
	results := make([]booking.SyncResult, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := agent.Sync(context.Background(), id)
			if err != nil {
				t.Errorf("Sync: %v", err)
			}
			results[i] = r
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		if r.ExternalRef != "9000" {
			t.Fatalf("result = %+v, want ref 9000", r)
		}
	}
	stored, _ := e.holds.Get(context.Background(), id)
	if stored.ExternalReservationRef == nil || *stored.ExternalReservationRef != "9000" {
		t.Fatalf("stored ref = %v", stored.ExternalReservationRef)
	}
}

func TestSyncPending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.hold(t, "101", "2026-07-01", "2026-07-05")
	b := e.hold(t, "102", "2026-07-01", "2026-07-05")
	e.hold(t, "103", "2026-07-01", "2026-07-05") // stays a hold
	e.confirm(t, a)
	e.confirm(t, b)

	fc := &fakeChannel{id: "42"}
	agent := e.syncAgent(fc, nil)

	batch, err := agent.SyncPending(ctx, 2*time.Minute, 10)
	if err != nil {
		t.Fatal(err)
	}
	if batch.Attempted != 0 {
		t.Fatalf("fresh confirmations retried too early: %+v", batch)
	}

	e.clock.Advance(3 * time.Minute)
	batch, err = agent.SyncPending(ctx, 2*time.Minute, 10)
	if err != nil {
		t.Fatal(err)
	}
	if batch.Attempted != 2 || batch.Synced != 2 {
		t.Fatalf("batch = %+v, want 2 synced", batch)
	}
	if batch, _ := agent.SyncPending(ctx, 0, 10); batch.Attempted != 0 {
		t.Fatalf("synced reservations retried: %+v", batch)
	}
}
