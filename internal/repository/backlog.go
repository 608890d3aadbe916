package repository

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pizza-delivery/internal/domain/inventory"
)

const (
	recordAdjustmentSQL = `INSERT INTO inventory_backlog (id, ingredient, quantity, attempts, last_error, next_attempt_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	claimAdjustmentsSQL = `UPDATE inventory_backlog SET next_attempt_at = $2
		WHERE id IN (
			SELECT id FROM inventory_backlog WHERE next_attempt_at <= $1
			ORDER BY next_attempt_at LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, ingredient, quantity, attempts, last_error, created_at, next_attempt_at`

	resolveAdjustmentSQL = `DELETE FROM inventory_backlog WHERE id = $1`

	rescheduleAdjustmentSQL = `UPDATE inventory_backlog
		SET attempts = $2, last_error = $3, next_attempt_at = $4 WHERE id = $1`

	countAdjustmentsSQL = `SELECT count(*) FROM inventory_backlog`
)

var _ inventory.Backlog = (*BacklogRepository)(nil)

// BacklogRepository stores failed stock adjustments awaiting retry.
type BacklogRepository struct {
	pool *pgxpool.Pool
}

// NewBacklogRepository returns a BacklogRepository that uses the given pool.
func NewBacklogRepository(pool *pgxpool.Pool) *BacklogRepository {
	return &BacklogRepository{pool: pool}
}

// Record inserts a pending adjustment.
func (r *BacklogRepository) Record(ctx context.Context, p *inventory.PendingAdjustment) error {
	if err := r.pool.QueryRow(ctx, recordAdjustmentSQL,
		p.ID, p.Ingredient, p.Quantity, p.Attempts, p.LastError, p.NextAttemptAt,
	).Scan(&p.CreatedAt); err != nil {
		return fmt.Errorf("recording adjustment for %q: %w", p.Ingredient, err)
	}
	return nil
}

// Claim leases up to limit due entries until the given time. Rows locked by a
// concurrent claim are skipped, so parallel sweepers never share an entry.
func (r *BacklogRepository) Claim(ctx context.Context, now, until time.Time, limit int) ([]inventory.PendingAdjustment, error) {
	rows, err := r.pool.Query(ctx, claimAdjustmentsSQL, now, until, limit)
	if err != nil {
		return nil, fmt.Errorf("claiming due adjustments: %w", err)
	}
	claimed, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (inventory.PendingAdjustment, error) {
		var p inventory.PendingAdjustment
		err := row.Scan(&p.ID, &p.Ingredient, &p.Quantity, &p.Attempts, &p.LastError, &p.CreatedAt, &p.NextAttemptAt)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("claiming due adjustments: %w", err)
	}
	// RETURNING does not preserve the subquery order.
	slices.SortFunc(claimed, func(a, b inventory.PendingAdjustment) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return claimed, nil
}

// Resolve removes an entry.
func (r *BacklogRepository) Resolve(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, resolveAdjustmentSQL, id); err != nil {
		return fmt.Errorf("resolving adjustment %q: %w", id, err)
	}
	return nil
}

// Reschedule records a failed attempt and the time of the next one.
func (r *BacklogRepository) Reschedule(ctx context.Context, id string, attempts int, lastErr string, next time.Time) error {
	if _, err := r.pool.Exec(ctx, rescheduleAdjustmentSQL, id, attempts, lastErr, next); err != nil {
		return fmt.Errorf("rescheduling adjustment %q: %w", id, err)
	}
	return nil
}

// Count returns the number of entries awaiting retry.
func (r *BacklogRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countAdjustmentsSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting adjustments: %w", err)
	}
	return n, nil
}
