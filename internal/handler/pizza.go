package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/pizza-delivery/internal/domain/pizza"
)

// ListPizzas handles GET /api/pizzas.
func (h *Handler) ListPizzas(w http.ResponseWriter, r *http.Request) {
	pizzas, err := h.pizzas.List(r.Context())
	if err != nil {
		writeError(w, r, err, "Failed to fetch pizzas")
		return
	}
	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("success", func(e *jx.Encoder) { e.Bool(true) })
			e.Field("data", func(e *jx.Encoder) {
				e.ArrStart()
				for i := range pizzas {
					h.encodePizza(e, &pizzas[i])
				}
				e.ArrEnd()
			})
		})
	})
}

// GetPizza handles GET /api/pizzas/{id}.
func (h *Handler) GetPizza(w http.ResponseWriter, r *http.Request) {
	p, err := h.pizzas.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, "Failed to fetch pizza")
		return
	}
	h.writePizza(w, r, http.StatusOK, "", p)
}

// CreatePizza handles POST /api/pizzas.
func (h *Handler) CreatePizza(w http.ResponseWriter, r *http.Request) {
	var p pizza.Pizza
	if err := decodePizza(r, &p); err != nil {
		writeError(w, r, err, "Failed to create pizza")
		return
	}
	if err := p.Validate(); err != nil {
		writeError(w, r, err, "Failed to create pizza")
		return
	}
	if err := h.pizzas.Create(r.Context(), &p); err != nil {
		writeError(w, r, err, "Failed to create pizza")
		return
	}
	h.writePizza(w, r, http.StatusCreated, "Pizza created successfully", &p)
}

// UpdatePizza handles PUT /api/pizzas/{id}. Fields absent from the body keep
// their stored values.
func (h *Handler) UpdatePizza(w http.ResponseWriter, r *http.Request) {
	p, err := h.pizzas.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, "Failed to update pizza")
		return
	}
	if err := decodePizza(r, p); err != nil {
		writeError(w, r, err, "Failed to update pizza")
		return
	}
	if err := p.Validate(); err != nil {
		writeError(w, r, err, "Failed to update pizza")
		return
	}
	if err := h.pizzas.Update(r.Context(), p); err != nil {
		writeError(w, r, err, "Failed to update pizza")
		return
	}
	h.writePizza(w, r, http.StatusOK, "Pizza updated successfully", p)
}

// DeletePizza handles DELETE /api/pizzas/{id}.
func (h *Handler) DeletePizza(w http.ResponseWriter, r *http.Request) {
	if err := h.pizzas.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err, "Failed to delete pizza")
		return
	}
	writeMessage(w, r, http.StatusOK, "Pizza deleted successfully")
}

func (h *Handler) writePizza(w http.ResponseWriter, r *http.Request, status int, message string, p *pizza.Pizza) {
	writeJSON(w, r, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("success", func(e *jx.Encoder) { e.Bool(true) })
			if message != "" {
				e.Field("message", func(e *jx.Encoder) { e.Str(message) })
			}
			e.Field("data", func(e *jx.Encoder) { h.encodePizza(e, p) })
		})
	})
}

func (h *Handler) encodePizza(e *jx.Encoder, p *pizza.Pizza) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
		e.Field("image", func(e *jx.Encoder) { e.Str(h.imageURL(p.Image)) })
		e.Field("category", func(e *jx.Encoder) { e.Str(p.Category) })
		e.Field("variants", func(e *jx.Encoder) { encodeStrings(e, p.Variants) })
		e.Field("prices", func(e *jx.Encoder) {
			e.ObjStart()
			for _, v := range p.Variants {
				if price, ok := p.Prices[v]; ok {
					e.FieldStart(v)
					encodeDecimal(e, price)
				}
			}
			e.ObjEnd()
		})
		e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, p.CreatedAt) })
		e.Field("updatedAt", func(e *jx.Encoder) { encodeTime(e, p.UpdatedAt) })
	})
}

// imageURL resolves a stored image path against the configured base URL.
// Absolute URLs are returned unchanged.
func (h *Handler) imageURL(path string) string {
	if h.imageBaseURL == "" || path == "" ||
		strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(h.imageBaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// decodePizza overlays the request body onto p.
func decodePizza(r *http.Request, p *pizza.Pizza) error {
	return decode(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			p.Name, err = decodeString(d)
		case "description":
			p.Description, err = decodeString(d)
		case "image":
			p.Image, err = decodeString(d)
		case "category":
			p.Category, err = decodeString(d)
		case "variants":
			p.Variants, err = decodeStrings(d)
		case "prices":
			prices := make(map[string]decimal.Decimal)
			err = d.Obj(func(d *jx.Decoder, variant string) error {
				v, err := decodeDecimal(d)
				if err != nil {
					return err
				}
				prices[variant] = v
				return nil
			})
			p.Prices = prices
		default:
			err = d.Skip()
		}
		return err
	})
}
