package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iliyamo/rental-hold-engine/internal/booking"
)

type countingSweeper struct{ n atomic.Int32 }

func (c *countingSweeper) Sweep(ctx context.Context) (int64, error) {
	c.n.Add(1)
	return 0, nil
}

type countingResyncer struct{ n atomic.Int32 }

func (c *countingResyncer) SyncPending(ctx context.Context, minAge time.Duration, limit int) (booking.SyncBatch, error) {
	c.n.Add(1)
	return booking.SyncBatch{}, nil
}

func TestSchedulerRunsJobs(t *testing.T) {
	sw := &countingSweeper{}
	rs := &countingResyncer{}
	s := New(Config{SweepSchedule: "@every 1s", ResyncSchedule: "@every 1s"}, sw, rs, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for sw.n.Load() == 0 || rs.n.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("jobs did not run: sweep=%d resync=%d", sw.n.Load(), rs.n.Load())
		}
		time.Sleep(50 * time.Millisecond)
	}
	s.Stop()
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := New(Config{SweepSchedule: "every minute"}, &countingSweeper{}, nil, nil)
	if err := s.Start(); err == nil {
		s.Stop()
		t.Fatal("Start accepted an invalid spec")
	}
}
