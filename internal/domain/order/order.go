package order

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/pizza-delivery/internal/domain/pricing"
)

// PaymentMethod is how the customer pays for an order.
type PaymentMethod string

const (
	PaymentOnline         PaymentMethod = "online"
	PaymentCashOnDelivery PaymentMethod = "cash-on-delivery"
)

// ParsePaymentMethod normalizes a client-declared payment method. "online"
// and "razorpay" (any case) select the gateway; every other non-empty value
// is treated as cash on delivery. It reports false for an empty value.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "":
		return "", false
	case string(PaymentOnline), "razorpay":
		return PaymentOnline, true
	default:
		return PaymentCashOnDelivery, true
	}
}

// PaymentStatus tracks whether an order has been paid.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// Status is the fulfilment state of an order.
//
//	processing -> dispatched -> delivered
//	processing -> cancelled
//	dispatched -> cancelled
type Status string

const (
	StatusProcessing Status = "processing"
	StatusDispatched Status = "dispatched"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusProcessing: {StatusDispatched, StatusCancelled},
	StatusDispatched: {StatusDelivered, StatusCancelled},
}

// ParseStatus reports whether s names one of the four order statuses.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusProcessing, StatusDispatched, StatusDelivered, StatusCancelled:
		return st, true
	}
	return "", false
}

// CanTransitionTo reports whether staff may move an order from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions leave s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Address is a delivery address. All fields are required.
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"pincode"`
	Country    string `json:"country"`
}

// Complete reports whether every field is non-blank.
func (a Address) Complete() bool {
	for _, v := range []string{a.Street, a.City, a.PostalCode, a.Country} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// CustomPizza is a user-composed pizza: one base, sauce and cheese plus any
// number of veggies and meats, each referenced by ingredient name.
type CustomPizza struct {
	Base    string   `json:"base"`
	Sauce   string   `json:"sauce"`
	Cheese  string   `json:"cheese"`
	Veggies []string `json:"veggies"`
	Meat    []string `json:"meat"`
}

// Selection converts the pizza into the pricing view.
func (c CustomPizza) Selection() pricing.Selection {
	return pricing.Selection{
		Base:    c.Base,
		Sauce:   c.Sauce,
		Cheese:  c.Cheese,
		Veggies: c.Veggies,
		Meat:    c.Meat,
	}
}

// LineItem is a single entry in an order: either a fixed-menu pizza
// (PizzaID) or an embedded custom pizza.
type LineItem struct {
	PizzaID  string          `json:"pizza,omitempty"`
	Custom   *CustomPizza    `json:"customPizza,omitempty"`
	Name     string          `json:"name"`
	Variant  string          `json:"variant,omitempty"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Customer is the owning user's public identity, joined into admin listings.
type Customer struct {
	Name  string
	Email string
}

// Order is a committed customer order. Total always equals the server-side
// sum of line item prices at creation time.
type Order struct {
	ID              string
	UserID          string
	Items           []LineItem
	ShippingAddress Address
	PaymentMethod   PaymentMethod
	PaymentStatus   PaymentStatus
	GatewayOrderID  string
	PaymentID       string
	Total           decimal.Decimal
	Status          Status
	Customer        *Customer
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Selection is a checkout request as submitted by the client. It is not
// persisted until the order is committed.
type Selection struct {
	Pizza           CustomPizza
	ShippingAddress Address
	PaymentMethod   string
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists a new order. It returns ErrDuplicatePayment when an
	// order with the same PaymentID already exists.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*Order, error)
	// ListByUser returns the user's orders, newest first.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// ListAll returns every order with Customer populated, newest first.
	ListAll(ctx context.Context) ([]Order, error)
	// UpdateStatus moves the order from one status to another. It returns
	// ErrStatusConflict when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to Status) (*Order, error)
}
