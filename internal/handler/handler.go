// Package handler implements the JSON HTTP API on top of the domain
// services.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/pizza-delivery/internal/domain/auth"
	"github.com/xenking/pizza-delivery/internal/domain/ingredient"
	"github.com/xenking/pizza-delivery/internal/domain/order"
	"github.com/xenking/pizza-delivery/internal/domain/pizza"
	"github.com/xenking/pizza-delivery/internal/events"
	"github.com/xenking/pizza-delivery/pkg/httpmiddleware"
)

// OrderService is the checkout workflow and order lifecycle.
type OrderService interface {
	PlaceOrder(ctx context.Context, userID string, sel order.Selection) (*order.PlaceOrderResult, error)
	ConfirmPayment(ctx context.Context, userID string, req order.ConfirmPaymentRequest) (*order.Order, error)
	ListForUser(ctx context.Context, userID string) ([]order.Order, error)
	ListAll(ctx context.Context) ([]order.Order, error)
	UpdateStatus(ctx context.Context, id, status string) (*order.Order, error)
}

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to relative image paths in pizza responses.
	// When empty, image paths are returned as stored in the database.
	ImageBaseURL string
}

// Dependencies are the domain collaborators served over HTTP.
type Dependencies struct {
	Orders      OrderService
	Pizzas      pizza.Repository
	Ingredients ingredient.Repository
	Users       auth.UserRepository
	Events      events.Bus
	Security    *SecurityHandler
}

// Handler serves the /api routes.
type Handler struct {
	orders       OrderService
	pizzas       pizza.Repository
	ingredients  ingredient.Repository
	users        auth.UserRepository
	events       events.Bus
	security     *SecurityHandler
	imageBaseURL string
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(cfg HandlerConfig, deps Dependencies) *Handler {
	return &Handler{
		orders:       deps.Orders,
		pizzas:       deps.Pizzas,
		ingredients:  deps.Ingredients,
		users:        deps.Users,
		events:       deps.Events,
		security:     deps.Security,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Router returns the chi router for all /api routes.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(httpmiddleware.LogRequests(), httpmiddleware.Labeler())
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, r, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})

	authn := h.security.Authenticate
	r.Route("/api", func(r chi.Router) {
		r.Route("/pizzas", func(r chi.Router) {
			r.Get("/", h.ListPizzas)
			r.Get("/{id}", h.GetPizza)
			r.Group(func(r chi.Router) {
				r.Use(authn, RequireAdmin)
				r.Post("/", h.CreatePizza)
				r.Put("/{id}", h.UpdatePizza)
				r.Delete("/{id}", h.DeletePizza)
			})
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Get("/category/{category}", h.InventoryByCategory)
			r.Group(func(r chi.Router) {
				r.Use(authn, RequireAdmin)
				r.Get("/", h.ListInventory)
				r.Post("/", h.AddInventoryItem)
				r.Put("/{id}", h.UpdateInventory)
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Use(authn)
			r.Post("/custom", h.PlaceOrder)
			r.Post("/verify", h.VerifyPayment)
			r.Get("/my", h.MyOrders)
			r.Get("/live", h.LiveOrders)
			r.With(RequireAdmin).Get("/", h.AllOrders)
			r.With(RequireAdmin).Patch("/{id}/status", h.UpdateOrderStatus)
		})

		r.With(authn).Get("/users/profile", h.Profile)
	})
	return r
}

// principal returns the authenticated caller. Routes are only reachable
// through Authenticate, so a missing principal is a wiring bug.
func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}
