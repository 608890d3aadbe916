package ingredient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Category groups ingredients by the slot they fill on a custom pizza.
type Category string

const (
	CategoryBase   Category = "base"
	CategorySauce  Category = "sauce"
	CategoryCheese Category = "cheese"
	CategoryVeggie Category = "veggie"
	CategoryMeat   Category = "meat"
)

// Categories lists every known category in display order.
var Categories = []Category{CategoryBase, CategorySauce, CategoryCheese, CategoryVeggie, CategoryMeat}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryBase, CategorySauce, CategoryCheese, CategoryVeggie, CategoryMeat:
		return true
	}
	return false
}

var (
	// ErrNotFound is returned when a requested ingredient does not exist.
	ErrNotFound = errors.New("ingredient not found")
	// ErrAlreadyExists is returned when adding an ingredient whose name is taken.
	ErrAlreadyExists = errors.New("ingredient already exists")
	// ErrInsufficientStock is returned when a decrement would take the
	// quantity on hand below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidCategory is returned for categories outside Categories.
	ErrInvalidCategory = errors.New("invalid category")
)

// InvalidFieldError reports a rejected ingredient field.
type InvalidFieldError struct {
	Field  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Ingredient is a selectable pizza component tracked as inventory.
// Name is unique across all categories.
type Ingredient struct {
	ID          string
	Category    Category
	Name        string
	Description string
	Price       decimal.Decimal
	Quantity    int
	Threshold   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LowStock reports whether the quantity on hand is below the reorder threshold.
func (i *Ingredient) LowStock() bool {
	return i.Quantity < i.Threshold
}

// Validate checks the fields an administrator supplies when adding an ingredient.
func (i *Ingredient) Validate() error {
	if !i.Category.Valid() {
		return ErrInvalidCategory
	}
	if strings.TrimSpace(i.Name) == "" {
		return &InvalidFieldError{Field: "name", Reason: "is required"}
	}
	if i.Price.IsNegative() {
		return &InvalidFieldError{Field: "price", Reason: "must not be negative"}
	}
	if i.Quantity < 0 {
		return &InvalidFieldError{Field: "quantity", Reason: "must not be negative"}
	}
	if i.Threshold < 0 {
		return &InvalidFieldError{Field: "threshold", Reason: "must not be negative"}
	}
	return nil
}

// Repository defines persistence operations for ingredient records.
type Repository interface {
	List(ctx context.Context) ([]Ingredient, error)
	ListByCategory(ctx context.Context, category Category) ([]Ingredient, error)
	GetByID(ctx context.Context, id string) (*Ingredient, error)
	GetByNames(ctx context.Context, names []string) ([]Ingredient, error)
	// Create returns ErrAlreadyExists when the name is taken.
	Create(ctx context.Context, ing *Ingredient) error
	// SetQuantity overwrites the quantity on hand and returns the updated record.
	SetQuantity(ctx context.Context, id string, quantity int) (*Ingredient, error)
	// Decrement atomically subtracts quantity from the named ingredient only
	// when enough stock is available, returning the updated record. It returns
	// ErrNotFound for unknown names and ErrInsufficientStock otherwise.
	Decrement(ctx context.Context, name string, quantity int) (*Ingredient, error)
}
