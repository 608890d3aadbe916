package inventory

import (
	"context"
	"time"
)

// PendingAdjustment is a stock decrement that could not be applied when its
// order was committed.
type PendingAdjustment struct {
	ID            string
	Ingredient    string
	Quantity      int
	Attempts      int
	LastError     string
	CreatedAt     time.Time
	NextAttemptAt time.Time
}

// Backlog durably stores pending adjustments until they are applied.
type Backlog interface {
	Record(ctx context.Context, p *PendingAdjustment) error
	// Claim leases up to limit entries whose NextAttemptAt is not after now,
	// oldest first, by moving their NextAttemptAt to until. An entry claimed
	// by one caller is not returned to another before until passes.
	Claim(ctx context.Context, now, until time.Time, limit int) ([]PendingAdjustment, error)
	Resolve(ctx context.Context, id string) error
	Reschedule(ctx context.Context, id string, attempts int, lastErr string, next time.Time) error
}
