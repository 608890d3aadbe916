package pizza

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested pizza does not exist.
var ErrNotFound = errors.New("pizza not found")

// InvalidFieldError indicates a menu entry failed validation.
type InvalidFieldError struct {
	Field  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Pizza is a fixed menu item sold in one or more size variants.
type Pizza struct {
	ID          string
	Name        string
	Description string
	Image       string
	Category    string
	Variants    []string
	Prices      map[string]decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks that every required field is present and that each
// variant has a non-negative price.
func (p *Pizza) Validate() error {
	for _, f := range []struct{ name, value string }{
		{"name", p.Name},
		{"description", p.Description},
		{"image", p.Image},
		{"category", p.Category},
	} {
		if strings.TrimSpace(f.value) == "" {
			return &InvalidFieldError{Field: f.name, Reason: "required"}
		}
	}
	if len(p.Variants) == 0 {
		return &InvalidFieldError{Field: "variants", Reason: "at least one variant required"}
	}
	for _, v := range p.Variants {
		price, ok := p.Prices[v]
		if !ok {
			return &InvalidFieldError{Field: "prices", Reason: fmt.Sprintf("missing price for %q", v)}
		}
		if price.IsNegative() {
			return &InvalidFieldError{Field: "prices", Reason: fmt.Sprintf("negative price for %q", v)}
		}
	}
	return nil
}

// PriceOf returns the price of the given variant.
func (p *Pizza) PriceOf(variant string) (decimal.Decimal, bool) {
	price, ok := p.Prices[variant]
	return price, ok
}

// Repository defines persistence operations for the pizza menu.
type Repository interface {
	List(ctx context.Context) ([]Pizza, error)
	GetByID(ctx context.Context, id string) (*Pizza, error)
	Create(ctx context.Context, p *Pizza) error
	Update(ctx context.Context, p *Pizza) error
	Delete(ctx context.Context, id string) error
}
