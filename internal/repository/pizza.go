package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pizza-delivery/internal/domain/pizza"
)

const (
	pizzaColumns = `id, name, description, image, category, variants, prices, created_at, updated_at`

	listPizzasSQL = `SELECT ` + pizzaColumns + ` FROM pizzas ORDER BY created_at, name`

	getPizzaByIDSQL = `SELECT ` + pizzaColumns + ` FROM pizzas WHERE id = $1`

	createPizzaSQL = `INSERT INTO pizzas (id, name, description, image, category, variants, prices)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	updatePizzaSQL = `UPDATE pizzas SET name = $2, description = $3, image = $4, category = $5,
			variants = $6, prices = $7, updated_at = now()
		WHERE id = $1 RETURNING updated_at`

	deletePizzaSQL = `DELETE FROM pizzas WHERE id = $1`
)

var _ pizza.Repository = (*PizzaRepository)(nil)

// PizzaRepository implements pizza.Repository backed by PostgreSQL.
type PizzaRepository struct {
	pool *pgxpool.Pool
}

// NewPizzaRepository returns a PizzaRepository that uses the given pool.
func NewPizzaRepository(pool *pgxpool.Pool) *PizzaRepository {
	return &PizzaRepository{pool: pool}
}

// List returns the whole menu.
func (r *PizzaRepository) List(ctx context.Context) ([]pizza.Pizza, error) {
	rows, err := r.pool.Query(ctx, listPizzasSQL)
	if err != nil {
		return nil, fmt.Errorf("listing pizzas: %w", err)
	}
	return pgx.CollectRows(rows, scanPizza)
}

// GetByID returns a single pizza by its identifier.
func (r *PizzaRepository) GetByID(ctx context.Context, id string) (*pizza.Pizza, error) {
	rows, err := r.pool.Query(ctx, getPizzaByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting pizza %q: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPizza)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pizza.ErrNotFound
		}
		return nil, fmt.Errorf("getting pizza %q: %w", id, err)
	}
	return &p, nil
}

// Create inserts a new menu entry, assigning an ID when none is set.
func (r *PizzaRepository) Create(ctx context.Context, p *pizza.Pizza) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	prices, err := json.Marshal(p.Prices)
	if err != nil {
		return fmt.Errorf("marshaling prices: %w", err)
	}
	if err := r.pool.QueryRow(ctx, createPizzaSQL,
		p.ID, p.Name, p.Description, p.Image, p.Category, p.Variants, prices,
	).Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("creating pizza %q: %w", p.Name, err)
	}
	return nil
}

// Update replaces every editable field of an existing pizza.
func (r *PizzaRepository) Update(ctx context.Context, p *pizza.Pizza) error {
	prices, err := json.Marshal(p.Prices)
	if err != nil {
		return fmt.Errorf("marshaling prices: %w", err)
	}
	err = r.pool.QueryRow(ctx, updatePizzaSQL,
		p.ID, p.Name, p.Description, p.Image, p.Category, p.Variants, prices,
	).Scan(&p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pizza.ErrNotFound
		}
		return fmt.Errorf("updating pizza %q: %w", p.ID, err)
	}
	return nil
}

// Delete removes a pizza from the menu.
func (r *PizzaRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deletePizzaSQL, id)
	if err != nil {
		return fmt.Errorf("deleting pizza %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return pizza.ErrNotFound
	}
	return nil
}

func scanPizza(row pgx.CollectableRow) (pizza.Pizza, error) {
	var (
		p      pizza.Pizza
		prices []byte
	)
	if err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Image, &p.Category,
		&p.Variants, &prices, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return p, err
	}
	if err := json.Unmarshal(prices, &p.Prices); err != nil {
		return p, fmt.Errorf("unmarshaling prices of %q: %w", p.ID, err)
	}
	return p, nil
}
