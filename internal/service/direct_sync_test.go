package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/rental-hold-engine/internal/booking"
	q "github.com/iliyamo/rental-hold-engine/internal/queue"
)

type recordingSyncer struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingSyncer) Sync(ctx context.Context, id string) (booking.SyncResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return booking.SyncResult{ReservationID: id, Outcome: booking.OutcomeSynced}, nil
}

func TestDirectSyncRunsDetached(t *testing.T) {
	rec := &recordingSyncer{}
	d := NewDirectSync(rec, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // request context already gone
	for _, id := range []string{"a", "b"} {
		if err := d.PublishReservationConfirmed(ctx, q.ReservationConfirmedEvent{ReservationID: id}); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}
	d.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.ids) != 2 {
		t.Fatalf("synced %v, want 2 ids", rec.ids)
	}
}
