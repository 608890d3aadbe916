package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/pizza-delivery/internal/domain/auth"
	"github.com/xenking/pizza-delivery/internal/domain/ingredient"
	"github.com/xenking/pizza-delivery/internal/domain/order"
	"github.com/xenking/pizza-delivery/internal/domain/payment"
	"github.com/xenking/pizza-delivery/internal/domain/pizza"
	"github.com/xenking/pizza-delivery/internal/domain/pricing"
)

// writeError maps a domain error to a status code and client message.
// Unrecognized errors are logged and rendered as a 500 carrying fallback.
func writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status, message := classify(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error(fallback, zap.Error(err))
		message = fallback
	}
	writeMessage(w, r, status, message)
}

func classify(err error) (int, string) {
	var (
		bodyErr       *bodyError
		validationErr *order.ValidationError
		transitionErr *order.InvalidTransitionError
		unknownErr    *pricing.UnknownIngredientError
		ingredientErr *ingredient.InvalidFieldError
		pizzaErr      *pizza.InvalidFieldError
	)
	switch {
	case errors.As(err, &bodyErr):
		return http.StatusBadRequest, "Invalid request body"
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, validationErr.Message
	case errors.Is(err, payment.ErrSignatureMismatch):
		return http.StatusBadRequest, "Payment verification failed"
	case errors.As(err, &unknownErr):
		return http.StatusBadRequest, unknownErr.Error()
	case errors.As(err, &transitionErr):
		return http.StatusConflict, transitionErr.Error()
	case errors.Is(err, order.ErrStatusConflict):
		return http.StatusConflict, "Order status changed, reload and retry"
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, "Order not found"
	case errors.Is(err, pizza.ErrNotFound):
		return http.StatusNotFound, "Pizza not found"
	case errors.As(err, &pizzaErr):
		return http.StatusBadRequest, pizzaErr.Error()
	case errors.Is(err, ingredient.ErrNotFound):
		return http.StatusNotFound, "Item not found"
	case errors.Is(err, ingredient.ErrAlreadyExists):
		return http.StatusConflict, "Item already exists"
	case errors.Is(err, ingredient.ErrInvalidCategory):
		return http.StatusBadRequest, "Invalid category"
	case errors.As(err, &ingredientErr):
		return http.StatusBadRequest, ingredientErr.Error()
	case errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
