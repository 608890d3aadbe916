package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pizza-delivery/internal/domain/auth"
)

const (
	upsertUserSQL = `INSERT INTO users (id, name, email) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email`

	getUserByIDSQL = `SELECT id, name, email FROM users WHERE id = $1`
)

// UserRepository stores user accounts in PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Upsert creates or updates a user by ID.
func (r *UserRepository) Upsert(ctx context.Context, u auth.User) error {
	if _, err := r.pool.Exec(ctx, upsertUserSQL, u.ID, u.Name, u.Email); err != nil {
		return fmt.Errorf("upserting user %q: %w", u.ID, err)
	}
	return nil
}

// GetByID returns a single user.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*auth.User, error) {
	var u auth.User
	if err := r.pool.QueryRow(ctx, getUserByIDSQL, id).Scan(&u.ID, &u.Name, &u.Email); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user %q: %w", id, err)
	}
	return &u, nil
}
