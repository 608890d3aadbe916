// Package pricing computes the price of a custom pizza.
//
// Two policies are available. FlatRate charges a fixed base price plus a fixed
// surcharge per veggie and per meat, ignoring the catalog's per-ingredient
// prices. UnitPrice sums the stored unit price of every selected ingredient.
package pricing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xenking/pizza-delivery/internal/domain/ingredient"
)

// Selection is the set of ingredient names making up one custom pizza.
type Selection struct {
	Base    string
	Sauce   string
	Cheese  string
	Veggies []string
	Meat    []string
}

// Names returns every consumed ingredient name, one entry per unit:
// base, sauce, cheese, then veggies and meats in selection order.
func (s Selection) Names() []string {
	names := make([]string, 0, 3+len(s.Veggies)+len(s.Meat))
	names = append(names, s.Base, s.Sauce, s.Cheese)
	names = append(names, s.Veggies...)
	names = append(names, s.Meat...)
	return names
}

// Pricer prices a selection.
type Pricer interface {
	Price(ctx context.Context, s Selection) (decimal.Decimal, error)
}

// Policy names a pricing strategy in configuration.
type Policy string

const (
	PolicyFlat Policy = "flat"
	PolicyUnit Policy = "unit"
)

// FlatRate is the reference policy: Base + VeggieSurcharge per veggie +
// MeatSurcharge per meat. It never fails.
type FlatRate struct {
	Base            decimal.Decimal
	VeggieSurcharge decimal.Decimal
	MeatSurcharge   decimal.Decimal
}

// DefaultFlatRate returns the reference policy: 300 + 20 per veggie + 40 per meat.
func DefaultFlatRate() FlatRate {
	return FlatRate{
		Base:            decimal.NewFromInt(300),
		VeggieSurcharge: decimal.NewFromInt(20),
		MeatSurcharge:   decimal.NewFromInt(40),
	}
}

// Price implements Pricer.
func (f FlatRate) Price(_ context.Context, s Selection) (decimal.Decimal, error) {
	return f.Total(s), nil
}

// Total is Price without the context and error plumbing.
func (f FlatRate) Total(s Selection) decimal.Decimal {
	veggies := f.VeggieSurcharge.Mul(decimal.NewFromInt(int64(len(s.Veggies))))
	meat := f.MeatSurcharge.Mul(decimal.NewFromInt(int64(len(s.Meat))))
	return f.Base.Add(veggies).Add(meat)
}

// UnknownIngredientError is returned by UnitPrice when a selected name has no
// catalog record and therefore no price.
type UnknownIngredientError struct {
	Name string
}

func (e *UnknownIngredientError) Error() string {
	return fmt.Sprintf("unknown ingredient %q", e.Name)
}

// Catalog is the read access UnitPrice needs.
type Catalog interface {
	GetByNames(ctx context.Context, names []string) ([]ingredient.Ingredient, error)
}

// UnitPrice sums the stored price of each selected ingredient, counting
// repeated names once per occurrence.
type UnitPrice struct {
	catalog Catalog
}

// NewUnitPrice creates a UnitPrice policy backed by catalog.
func NewUnitPrice(catalog Catalog) *UnitPrice {
	return &UnitPrice{catalog: catalog}
}

// Price implements Pricer.
func (u *UnitPrice) Price(ctx context.Context, s Selection) (decimal.Decimal, error) {
	names := s.Names()
	found, err := u.catalog.GetByNames(ctx, names)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get ingredients: %w", err)
	}

	prices := make(map[string]decimal.Decimal, len(found))
	for _, ing := range found {
		prices[ing.Name] = ing.Price
	}

	total := decimal.Zero
	for _, name := range names {
		p, ok := prices[name]
		if !ok {
			return decimal.Zero, &UnknownIngredientError{Name: name}
		}
		total = total.Add(p)
	}
	return total.Round(2), nil
}
