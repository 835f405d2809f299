package booking_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/rental-hold-engine/internal/booking"
	"github.com/iliyamo/rental-hold-engine/internal/channel"
	"github.com/iliyamo/rental-hold-engine/internal/clock"
	"github.com/iliyamo/rental-hold-engine/internal/database"
	"github.com/iliyamo/rental-hold-engine/internal/repository"
)

// 2026-06-01 09:00 UTC; stay dates in tests are after this.
var start = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type env struct {
	repo    *repository.ReservationRepo
	clock   *clock.FakeClock
	holds   *booking.HoldManager
	coord   *booking.Coordinator
	sweeper *booking.Sweeper
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "booking.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(context.Background(), db, database.SQLite); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	repo := repository.NewReservationRepo(db, database.SQLite)
	clk := clock.Fake(start)
	return &env{
		repo:    repo,
		clock:   clk,
		holds:   booking.NewHoldManager(repo, clk, booking.HoldOptions{DefaultTTL: 30 * time.Minute}, nil),
		coord:   booking.NewCoordinator(repo, clk, nil),
		sweeper: booking.NewSweeper(repo, clk, nil),
	}
}

func (e *env) hold(t *testing.T, unit, in, out string) string {
	t.Helper()
	res, err := e.holds.CreateHold(context.Background(), booking.HoldInput{
		UnitID:       unit,
		CheckIn:      in,
		CheckOut:     out,
		GuestCount:   2,
		ContactEmail: "ada@example.com",
		ContactName:  "Ada King Lovelace",
	})
	if err != nil {
		t.Fatalf("CreateHold(%s %s..%s): %v", unit, in, out, err)
	}
	return res.ID
}

func (e *env) confirm(t *testing.T, id string) {
	t.Helper()
	if _, err := e.coord.Confirm(context.Background(), booking.ConfirmInput{HoldID: id, SessionRef: "cs_" + id, EventRef: "evt_" + id}); err != nil {
		t.Fatalf("Confirm(%s): %v", id, err)
	}
}

// fakeChannel records calls and answers with a fixed id or error.
type fakeChannel struct {
	mu    sync.Mutex
	calls []channel.ReservationRequest
	id    string
	err   error
	// block, when set, is waited on before answering
	block chan struct{}
}

func (f *fakeChannel) CreateReservation(ctx context.Context, r channel.ReservationRequest) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, r)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return f.id, f.err
}

func (f *fakeChannel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// memLocker is an in-process Locker.
type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *memLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, true, nil
}
