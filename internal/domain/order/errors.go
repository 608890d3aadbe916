package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when a requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicatePayment is returned by Repository.Create when the gateway
	// payment id has already committed an order.
	ErrDuplicatePayment = errors.New("payment already recorded")
	// ErrStatusConflict is returned when the order status changed between
	// read and update.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// ValidationError indicates a missing or malformed request field. No state
// has been changed when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// InvalidTransitionError indicates a status change the state machine forbids.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}

// PersistenceError wraps a store failure during order creation or lookup.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
