package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/pizza-delivery/internal/domain/ingredient"
	"github.com/xenking/pizza-delivery/internal/domain/order"
)

// InventoryByCategory handles GET /api/inventory/category/{category}, used by
// the custom pizza builder.
func (h *Handler) InventoryByCategory(w http.ResponseWriter, r *http.Request) {
	category := ingredient.Category(chi.URLParam(r, "category"))
	if !category.Valid() {
		writeError(w, r, ingredient.ErrInvalidCategory, "Failed to fetch inventory")
		return
	}
	items, err := h.ingredients.ListByCategory(r.Context(), category)
	if err != nil {
		writeError(w, r, err, "Failed to fetch inventory")
		return
	}
	writeIngredients(w, r, items)
}

// ListInventory handles GET /api/inventory.
func (h *Handler) ListInventory(w http.ResponseWriter, r *http.Request) {
	items, err := h.ingredients.List(r.Context())
	if err != nil {
		writeError(w, r, err, "Error fetching all inventory")
		return
	}
	writeIngredients(w, r, items)
}

// AddInventoryItem handles POST /api/inventory.
func (h *Handler) AddInventoryItem(w http.ResponseWriter, r *http.Request) {
	var ing ingredient.Ingredient
	err := decode(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "category":
			var v string
			v, err = decodeString(d)
			ing.Category = ingredient.Category(v)
		case "item", "name":
			ing.Name, err = decodeString(d)
		case "description":
			ing.Description, err = decodeString(d)
		case "price":
			ing.Price, err = decodeDecimal(d)
		case "quantity":
			ing.Quantity, err = decodeInt(d)
		case "threshold":
			ing.Threshold, err = decodeInt(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err, "Error adding inventory item")
		return
	}
	if err := ing.Validate(); err != nil {
		writeError(w, r, err, "Error adding inventory item")
		return
	}
	if err := h.ingredients.Create(r.Context(), &ing); err != nil {
		writeError(w, r, err, "Error adding inventory item")
		return
	}
	writeJSON(w, r, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("message", func(e *jx.Encoder) { e.Str("Inventory item added") })
			e.Field("newItem", func(e *jx.Encoder) { encodeIngredient(e, &ing) })
		})
	})
}

// UpdateInventory handles PUT /api/inventory/{id}, setting the quantity on
// hand.
func (h *Handler) UpdateInventory(w http.ResponseWriter, r *http.Request) {
	quantity := -1
	err := decode(r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		v, err := decodeInt(d)
		quantity = v
		return err
	})
	if err != nil {
		writeError(w, r, err, "Error updating inventory")
		return
	}
	if quantity < 0 {
		writeError(w, r, &order.ValidationError{
			Field:   "quantity",
			Message: "Quantity must be a non-negative integer",
		}, "Error updating inventory")
		return
	}

	item, err := h.ingredients.SetQuantity(r.Context(), chi.URLParam(r, "id"), quantity)
	if err != nil {
		writeError(w, r, err, "Error updating inventory")
		return
	}
	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("message", func(e *jx.Encoder) { e.Str("Inventory updated") })
			e.Field("item", func(e *jx.Encoder) { encodeIngredient(e, item) })
		})
	})
}

func writeIngredients(w http.ResponseWriter, r *http.Request, items []ingredient.Ingredient) {
	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range items {
			encodeIngredient(e, &items[i])
		}
		e.ArrEnd()
	})
}

// encodeIngredient writes an ingredient; the name is sent as "item" to match
// the builder's field naming.
func encodeIngredient(e *jx.Encoder, ing *ingredient.Ingredient) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(ing.ID) })
		e.Field("category", func(e *jx.Encoder) { e.Str(string(ing.Category)) })
		e.Field("item", func(e *jx.Encoder) { e.Str(ing.Name) })
		if ing.Description != "" {
			e.Field("description", func(e *jx.Encoder) { e.Str(ing.Description) })
		}
		e.Field("price", func(e *jx.Encoder) { encodeDecimal(e, ing.Price) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(ing.Quantity) })
		e.Field("threshold", func(e *jx.Encoder) { e.Int(ing.Threshold) })
		e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, ing.CreatedAt) })
		e.Field("updatedAt", func(e *jx.Encoder) { encodeTime(e, ing.UpdatedAt) })
	})
}
