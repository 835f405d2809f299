package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/iliyamo/rental-hold-engine/internal/booking"
	q "github.com/iliyamo/rental-hold-engine/internal/queue"
)

// Syncer is the part of booking.SyncAgent DirectSync drives.
type Syncer interface {
	Sync(ctx context.Context, id string) (booking.SyncResult, error)
}

// DirectSync stands in for the broker when QUEUE_ENABLED is false: each
// announced confirmation is synced on its own goroutine, detached from the
// request that confirmed it.
type DirectSync struct {
	syncer  Syncer
	timeout time.Duration
	log     *slog.Logger
	wg      sync.WaitGroup
}

func NewDirectSync(syncer Syncer, timeout time.Duration, logger *slog.Logger) *DirectSync {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectSync{syncer: syncer, timeout: timeout, log: logger}
}

// PublishReservationConfirmed starts the sync and returns immediately.
func (d *DirectSync) PublishReservationConfirmed(_ context.Context, event q.ReservationConfirmedEvent) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		res, err := d.syncer.Sync(ctx, event.ReservationID)
		if err != nil {
			d.log.Error("sync: direct sync failed", "reservation_id", event.ReservationID, "err", err)
			return
		}
		d.log.Info("sync: direct sync done", "reservation_id", event.ReservationID, "outcome", res.Outcome, "reason", res.Reason)
	}()
	return nil
}

// Wait blocks until in-flight syncs finish.
func (d *DirectSync) Wait() { d.wg.Wait() }
