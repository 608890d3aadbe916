package inventory

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/pizza-delivery/internal/domain/ingredient"
)

const (
	retryBase = 10 * time.Second
	retryMax  = 10 * time.Minute

	// claimLease bounds how long a claimed entry stays hidden from other
	// sweepers while it is being applied.
	claimLease = 5 * time.Minute
)

// Sweeper periodically retries backlog entries.
type Sweeper struct {
	backlog  Backlog
	adjuster *Adjuster
	interval time.Duration
	batch    int
	now      func() time.Time
}

// NewSweeper creates a Sweeper that processes up to batch entries every interval.
func NewSweeper(backlog Backlog, adjuster *Adjuster, interval time.Duration, batch int) *Sweeper {
	return &Sweeper{
		backlog:  backlog,
		adjuster: adjuster,
		interval: interval,
		batch:    batch,
		now:      time.Now,
	}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	lg := zctx.From(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				lg.Error("Inventory backlog sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				lg.Info("Inventory backlog swept", zap.Int("processed", n))
			}
		}
	}
}

// Sweep claims one batch of due entries and returns how many it handled.
// Several sweepers may share a backlog; each entry is applied by at most one
// of them per lease.
// Entries that can never succeed (unknown ingredient, insufficient stock) are
// resolved with a warning; other failures are rescheduled with exponential
// backoff.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.backlog.Claim(ctx, now, now.Add(claimLease), s.batch)
	if err != nil {
		return 0, errors.Wrap(err, "claim due adjustments")
	}

	lg := zctx.From(ctx)
	for _, p := range due {
		applyErr := s.adjuster.apply(ctx, p.Ingredient, p.Quantity)
		switch {
		case applyErr == nil:
		case errors.Is(applyErr, ingredient.ErrInsufficientStock):
			lg.Warn("Dropping pending adjustment: insufficient stock",
				zap.String("ingredient", p.Ingredient),
				zap.Int("quantity", p.Quantity),
			)
		default:
			attempts := p.Attempts + 1
			next := now.Add(backoff(attempts))
			if err := s.backlog.Reschedule(ctx, p.ID, attempts, applyErr.Error(), next); err != nil {
				return 0, errors.Wrapf(err, "reschedule %s", p.ID)
			}
			continue
		}

		if err := s.backlog.Resolve(ctx, p.ID); err != nil {
			return 0, errors.Wrapf(err, "resolve %s", p.ID)
		}
	}
	return len(due), nil
}

func backoff(attempts int) time.Duration {
	d := retryBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= retryMax {
			return retryMax
		}
	}
	return d
}
