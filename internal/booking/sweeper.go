package booking

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/iliyamo/rental-hold-engine/internal/clock"
	"github.com/iliyamo/rental-hold-engine/internal/repository"
)

// Sweeper moves lapsed holds to expired.  Binding checks already ignore
// lapsed holds, so sweeping only tidies status; running it late or twice is
// harmless.
type Sweeper struct {
	repo  *repository.ReservationRepo
	clock clock.Clock
	log   *slog.Logger
}

func NewSweeper(repo *repository.ReservationRepo, clk clock.Clock, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{repo: repo, clock: clk, log: logger}
}

// Sweep expires every hold whose deadline is before now and returns the
// number of records changed.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireLapsed(ctx, s.clock.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("expire lapsed holds: %w", err)
	}
	if n > 0 {
		s.log.Info("booking: expired lapsed holds", "count", n)
	}
	return n, nil
}
