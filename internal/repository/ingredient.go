package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pizza-delivery/internal/domain/ingredient"
)

const (
	ingredientColumns = `id, category, name, description, price, quantity, threshold, created_at, updated_at`

	listIngredientsSQL = `SELECT ` + ingredientColumns + ` FROM ingredients ORDER BY category, name`

	listIngredientsByCategorySQL = `SELECT ` + ingredientColumns + `
		FROM ingredients WHERE category = $1 ORDER BY name`

	getIngredientByIDSQL = `SELECT ` + ingredientColumns + ` FROM ingredients WHERE id = $1`

	getIngredientsByNamesSQL = `SELECT ` + ingredientColumns + ` FROM ingredients WHERE name = ANY($1)`

	createIngredientSQL = `INSERT INTO ingredients (id, category, name, description, price, quantity, threshold)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	upsertIngredientSQL = `INSERT INTO ingredients (id, category, name, description, price, quantity, threshold)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			category = EXCLUDED.category,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			quantity = EXCLUDED.quantity,
			threshold = EXCLUDED.threshold,
			updated_at = now()`

	setIngredientQuantitySQL = `UPDATE ingredients SET quantity = $2, updated_at = now()
		WHERE id = $1 RETURNING ` + ingredientColumns

	// Conditional decrement: stock never goes below zero.
	decrementIngredientSQL = `UPDATE ingredients SET quantity = quantity - $2, updated_at = now()
		WHERE name = $1 AND quantity >= $2 RETURNING ` + ingredientColumns

	ingredientExistsSQL = `SELECT EXISTS (SELECT 1 FROM ingredients WHERE name = $1)`
)

var _ ingredient.Repository = (*IngredientRepository)(nil)

// IngredientRepository implements ingredient.Repository backed by PostgreSQL.
type IngredientRepository struct {
	pool *pgxpool.Pool
}

// NewIngredientRepository returns an IngredientRepository that uses the given pool.
func NewIngredientRepository(pool *pgxpool.Pool) *IngredientRepository {
	return &IngredientRepository{pool: pool}
}

// List returns all ingredients grouped by category.
func (r *IngredientRepository) List(ctx context.Context) ([]ingredient.Ingredient, error) {
	rows, err := r.pool.Query(ctx, listIngredientsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing ingredients: %w", err)
	}
	return pgx.CollectRows(rows, scanIngredient)
}

// ListByCategory returns the ingredients of one category ordered by name.
func (r *IngredientRepository) ListByCategory(ctx context.Context, category ingredient.Category) ([]ingredient.Ingredient, error) {
	rows, err := r.pool.Query(ctx, listIngredientsByCategorySQL, string(category))
	if err != nil {
		return nil, fmt.Errorf("listing %s ingredients: %w", category, err)
	}
	return pgx.CollectRows(rows, scanIngredient)
}

// GetByID returns a single ingredient by its identifier.
func (r *IngredientRepository) GetByID(ctx context.Context, id string) (*ingredient.Ingredient, error) {
	rows, err := r.pool.Query(ctx, getIngredientByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting ingredient %q: %w", id, err)
	}

	ing, err := pgx.CollectExactlyOneRow(rows, scanIngredient)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ingredient.ErrNotFound
		}
		return nil, fmt.Errorf("getting ingredient %q: %w", id, err)
	}
	return &ing, nil
}

// GetByNames returns the ingredients matching any of the given names.
func (r *IngredientRepository) GetByNames(ctx context.Context, names []string) ([]ingredient.Ingredient, error) {
	rows, err := r.pool.Query(ctx, getIngredientsByNamesSQL, names)
	if err != nil {
		return nil, fmt.Errorf("getting ingredients by names: %w", err)
	}
	return pgx.CollectRows(rows, scanIngredient)
}

// Create inserts a new ingredient, assigning an ID when none is set.
func (r *IngredientRepository) Create(ctx context.Context, ing *ingredient.Ingredient) error {
	if ing.ID == "" {
		ing.ID = uuid.New().String()
	}
	err := r.pool.QueryRow(ctx, createIngredientSQL,
		ing.ID, string(ing.Category), ing.Name, ing.Description, ing.Price, ing.Quantity, ing.Threshold,
	).Scan(&ing.CreatedAt, &ing.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return ingredient.ErrAlreadyExists
		}
		return fmt.Errorf("creating ingredient %q: %w", ing.Name, err)
	}
	return nil
}

// Upsert inserts or replaces an ingredient by name.
func (r *IngredientRepository) Upsert(ctx context.Context, ing *ingredient.Ingredient) error {
	if ing.ID == "" {
		ing.ID = uuid.New().String()
	}
	if _, err := r.pool.Exec(ctx, upsertIngredientSQL,
		ing.ID, string(ing.Category), ing.Name, ing.Description, ing.Price, ing.Quantity, ing.Threshold,
	); err != nil {
		return fmt.Errorf("upserting ingredient %q: %w", ing.Name, err)
	}
	return nil
}

// SetQuantity overwrites the quantity on hand.
func (r *IngredientRepository) SetQuantity(ctx context.Context, id string, quantity int) (*ingredient.Ingredient, error) {
	rows, err := r.pool.Query(ctx, setIngredientQuantitySQL, id, quantity)
	if err != nil {
		return nil, fmt.Errorf("setting quantity of %q: %w", id, err)
	}
	ing, err := pgx.CollectExactlyOneRow(rows, scanIngredient)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ingredient.ErrNotFound
		}
		return nil, fmt.Errorf("setting quantity of %q: %w", id, err)
	}
	return &ing, nil
}

// Decrement subtracts quantity from the named ingredient when stock allows.
func (r *IngredientRepository) Decrement(ctx context.Context, name string, quantity int) (*ingredient.Ingredient, error) {
	rows, err := r.pool.Query(ctx, decrementIngredientSQL, name, quantity)
	if err != nil {
		return nil, fmt.Errorf("decrementing %q: %w", name, err)
	}
	ing, err := pgx.CollectExactlyOneRow(rows, scanIngredient)
	if err == nil {
		return &ing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("decrementing %q: %w", name, err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, ingredientExistsSQL, name).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking ingredient %q: %w", name, err)
	}
	if !exists {
		return nil, ingredient.ErrNotFound
	}
	return nil, ingredient.ErrInsufficientStock
}

func scanIngredient(row pgx.CollectableRow) (ingredient.Ingredient, error) {
	var (
		ing      ingredient.Ingredient
		category string
	)
	err := row.Scan(
		&ing.ID, &category, &ing.Name, &ing.Description, &ing.Price,
		&ing.Quantity, &ing.Threshold, &ing.CreatedAt, &ing.UpdatedAt,
	)
	ing.Category = ingredient.Category(category)
	return ing, err
}
