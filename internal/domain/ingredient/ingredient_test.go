package ingredient

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategory_Valid(t *testing.T) {
	for _, c := range Categories {
		assert.True(t, c.Valid(), c)
	}
	assert.False(t, Category("dessert").Valid())
	assert.False(t, Category("").Valid())
}

func TestIngredient_Validate(t *testing.T) {
	valid := func() Ingredient {
		return Ingredient{
			Category:  CategoryVeggie,
			Name:      "Olives",
			Price:     decimal.NewFromInt(20),
			Quantity:  150,
			Threshold: 20,
		}
	}

	tests := []struct {
		name      string
		mutate    func(i *Ingredient)
		wantErr   error
		wantField string
	}{
		{name: "valid", mutate: func(*Ingredient) {}},
		{
			name:    "unknown category",
			mutate:  func(i *Ingredient) { i.Category = "dessert" },
			wantErr: ErrInvalidCategory,
		},
		{
			name:      "blank name",
			mutate:    func(i *Ingredient) { i.Name = "  " },
			wantField: "name",
		},
		{
			name:      "negative price",
			mutate:    func(i *Ingredient) { i.Price = decimal.NewFromInt(-1) },
			wantField: "price",
		},
		{
			name:      "negative quantity",
			mutate:    func(i *Ingredient) { i.Quantity = -1 },
			wantField: "quantity",
		},
		{
			name:      "negative threshold",
			mutate:    func(i *Ingredient) { i.Threshold = -5 },
			wantField: "threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing := valid()
			tt.mutate(&ing)
			err := ing.Validate()

			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.wantField != "":
				var fieldErr *InvalidFieldError
				require.ErrorAs(t, err, &fieldErr)
				assert.Equal(t, tt.wantField, fieldErr.Field)
			default:
				require.NoError(t, err)
			}
		})
	}
}

func TestIngredient_LowStock(t *testing.T) {
	ing := Ingredient{Quantity: 9, Threshold: 10}
	assert.True(t, ing.LowStock())

	ing.Quantity = 10
	assert.False(t, ing.LowStock())
}
