package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pizza-delivery/internal/domain/ingredient"
	"github.com/xenking/pizza-delivery/internal/restock"
)

const (
	listReceiptIDsSQL = `SELECT line_id FROM restock_receipts`

	receiptExistsSQL = `SELECT EXISTS (SELECT 1 FROM restock_receipts WHERE line_id = $1)`

	insertReceiptSQL = `INSERT INTO restock_receipts (line_id, ingredient, quantity)
		VALUES ($1, $2, $3) ON CONFLICT (line_id) DO NOTHING`

	incrementIngredientSQL = `UPDATE ingredients SET quantity = quantity + $2, updated_at = now()
		WHERE name = $1`
)

var _ restock.Store = (*RestockRepository)(nil)

// RestockRepository applies supplier restock lines exactly once.
type RestockRepository struct {
	pool *pgxpool.Pool
}

// NewRestockRepository returns a RestockRepository that uses the given pool.
func NewRestockRepository(pool *pgxpool.Pool) *RestockRepository {
	return &RestockRepository{pool: pool}
}

// AppliedLineIDs returns the IDs of every line already applied.
func (r *RestockRepository) AppliedLineIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listReceiptIDsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing restock receipts: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Applied reports whether the line has a receipt.
func (r *RestockRepository) Applied(ctx context.Context, lineID string) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, receiptExistsSQL, lineID).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking receipt %q: %w", lineID, err)
	}
	return exists, nil
}

// Apply records a receipt and increments stock in one transaction. It
// reports false when the line had already been applied.
func (r *RestockRepository) Apply(ctx context.Context, line restock.Line) (bool, error) {
	applied := false
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, insertReceiptSQL, line.ID, line.Ingredient, line.Quantity)
		if err != nil {
			return fmt.Errorf("inserting receipt: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		tag, err = tx.Exec(ctx, incrementIngredientSQL, line.Ingredient, line.Quantity)
		if err != nil {
			return fmt.Errorf("incrementing stock: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ingredient.ErrNotFound
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("applying restock line %q: %w", line.ID, err)
	}
	return applied, nil
}
