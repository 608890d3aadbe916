package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/pizza-delivery/internal/domain/payment"
	"github.com/xenking/pizza-delivery/internal/domain/pricing"
)

const instrumentationName = "github.com/xenking/pizza-delivery/internal/domain/order"

// InventoryConsumer removes consumed ingredients from stock.
type InventoryConsumer interface {
	Consume(ctx context.Context, name string, quantity int) error
}

// PaymentVerifier checks a gateway completion signature.
type PaymentVerifier interface {
	Verify(orderID, paymentID, signature string) error
}

// StatusPublisher fans out status changes to live subscribers.
type StatusPublisher interface {
	PublishStatusChange(ctx context.Context, o *Order) error
}

// PlaceOrderResult holds the output of a checkout. For online payment Intent
// is set and Order is nil; for cash on delivery Order is set.
type PlaceOrderResult struct {
	Intent    *payment.Intent
	Order     *Order
	Selection Selection
	Amount    decimal.Decimal
	Currency  string
}

// ConfirmPaymentRequest is the client callback after the gateway checkout.
type ConfirmPaymentRequest struct {
	GatewayOrderID string
	PaymentID      string
	Signature      string
	Selection      Selection
}

// Option configures a Service.
type Option func(*Service)

// WithCurrency sets the currency requested from the payment gateway.
func WithCurrency(currency string) Option {
	return func(s *Service) { s.currency = currency }
}

// WithMeterProvider sets the meter provider for order counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// WithTracerProvider sets the tracer provider for workflow spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service encapsulates the checkout workflow and order lifecycle.
type Service struct {
	orders   Repository
	pricer   pricing.Pricer
	gateway  payment.Gateway
	verifier PaymentVerifier
	stock    InventoryConsumer
	events   StatusPublisher

	currency       string
	now            func() time.Time
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider

	tracer    trace.Tracer
	placed    metric.Int64Counter
	confirmed metric.Int64Counter
	changed   metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	orders Repository,
	pricer pricing.Pricer,
	gateway payment.Gateway,
	verifier PaymentVerifier,
	stock InventoryConsumer,
	events StatusPublisher,
	opts ...Option,
) *Service {
	s := &Service{
		orders:         orders,
		pricer:         pricer,
		gateway:        gateway,
		verifier:       verifier,
		stock:          stock,
		events:         events,
		currency:       "INR",
		now:            time.Now,
		meterProvider:  metricnoop.NewMeterProvider(),
		tracerProvider: tracenoop.NewTracerProvider(),
	}
	for _, o := range opts {
		o(s)
	}

	meter := s.meterProvider.Meter(instrumentationName)
	s.tracer = s.tracerProvider.Tracer(instrumentationName)
	s.placed = counter(meter, "pizza.orders.placed", "Checkouts accepted, by payment method.")
	s.confirmed = counter(meter, "pizza.orders.payment_confirmed", "Online payments verified and committed.")
	s.changed = counter(meter, "pizza.orders.status_changed", "Order status transitions applied.")
	return s
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return metricnoop.Int64Counter{}
	}
	return c
}

// PlaceOrder validates a checkout and prices it server-side.
//
// Online payment creates a gateway intent for the computed total and
// persists nothing. Cash on delivery persists the order immediately and
// consumes one unit of each chosen ingredient.
func (s *Service) PlaceOrder(ctx context.Context, userID string, sel Selection) (*PlaceOrderResult, error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer span.End()

	if err := validatePizza(sel.Pizza, sel.ShippingAddress); err != nil {
		return nil, err
	}
	method, ok := ParsePaymentMethod(sel.PaymentMethod)
	if !ok {
		return nil, &ValidationError{Field: "paymentMethod", Message: "Payment method is required"}
	}
	span.SetAttributes(attribute.String("order.payment_method", string(method)))

	total, err := s.pricer.Price(ctx, sel.Pizza.Selection())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("price selection: %w", err)
	}

	result := &PlaceOrderResult{
		Selection: sel,
		Amount:    total,
		Currency:  s.currency,
	}

	if method == PaymentOnline {
		receipt := payment.Receipt(userID, s.now())
		intent, err := s.gateway.CreateIntent(ctx, payment.MinorUnits(total), s.currency, receipt)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("create payment intent: %w", err)
		}
		result.Intent = intent
		s.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", string(method))))
		return result, nil
	}

	o := s.newOrder(userID, sel, total, PaymentCashOnDelivery, PaymentPending)
	if err := s.orders.Create(ctx, o); err != nil {
		span.RecordError(err)
		return nil, &PersistenceError{Op: "create order", Err: err}
	}
	s.consumeStock(ctx, o)

	s.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", string(method))))
	result.Order = o
	return result, nil
}

// ConfirmPayment verifies a gateway signature, recomputes the
// total and persists the paid order.
//
// The signature only proves the payment happened, so the intent is fetched
// back from the gateway: it must have been issued to userID and be for
// exactly the recomputed total. Otherwise payment.ErrSignatureMismatch is
// returned and nothing is persisted.
//
// Confirmation is idempotent per payment id: replaying an already committed
// payment returns the stored order without consuming stock again.
func (s *Service) ConfirmPayment(ctx context.Context, userID string, req ConfirmPaymentRequest) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.ConfirmPayment")
	defer span.End()

	if req.GatewayOrderID == "" || req.PaymentID == "" || req.Signature == "" {
		return nil, &ValidationError{Field: "payment", Message: "Payment details are required"}
	}
	if err := s.verifier.Verify(req.GatewayOrderID, req.PaymentID, req.Signature); err != nil {
		return nil, fmt.Errorf("verify payment: %w", err)
	}
	if err := validatePizza(req.Selection.Pizza, req.Selection.ShippingAddress); err != nil {
		return nil, err
	}

	if existing, err := s.replay(ctx, userID, req.PaymentID); err != nil || existing != nil {
		return existing, err
	}

	total, err := s.pricer.Price(ctx, req.Selection.Pizza.Selection())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("price selection: %w", err)
	}

	intent, err := s.gateway.FetchIntent(ctx, req.GatewayOrderID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("fetch payment intent: %w", err)
	}
	if !intent.IssuedTo(userID) {
		return nil, errors.Wrapf(payment.ErrSignatureMismatch, "intent %s was issued to another user", intent.ID)
	}
	if err := intent.Covers(total, s.currency); err != nil {
		zctx.From(ctx).Warn("Payment does not cover selection",
			zap.String("gateway_order_id", req.GatewayOrderID),
			zap.Error(err),
		)
		return nil, err
	}

	o := s.newOrder(userID, req.Selection, total, PaymentOnline, PaymentPaid)
	o.GatewayOrderID = req.GatewayOrderID
	o.PaymentID = req.PaymentID

	if err := s.orders.Create(ctx, o); err != nil {
		if errors.Is(err, ErrDuplicatePayment) {
			// Lost a race with a concurrent confirmation of the same payment.
			if existing, rerr := s.replay(ctx, userID, req.PaymentID); rerr != nil || existing != nil {
				return existing, rerr
			}
		}
		span.RecordError(err)
		return nil, &PersistenceError{Op: "create order", Err: err}
	}
	s.consumeStock(ctx, o)

	s.confirmed.Add(ctx, 1)
	return o, nil
}

// replay returns the order already committed for paymentID, or nil when
// there is none.
func (s *Service) replay(ctx context.Context, userID, paymentID string) (*Order, error) {
	existing, err := s.orders.GetByPaymentID(ctx, paymentID)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, &PersistenceError{Op: "lookup payment", Err: err}
	}
	if existing.UserID != userID {
		return nil, fmt.Errorf("payment %s belongs to another user: %w", paymentID, payment.ErrSignatureMismatch)
	}
	zctx.From(ctx).Info("Payment already confirmed",
		zap.String("order_id", existing.ID),
		zap.String("payment_id", paymentID),
	)
	return existing, nil
}

func (s *Service) newOrder(userID string, sel Selection, total decimal.Decimal, method PaymentMethod, status PaymentStatus) *Order {
	pizza := sel.Pizza
	now := s.now()
	return &Order{
		ID:     uuid.New().String(),
		UserID: userID,
		Items: []LineItem{{
			Custom:   &pizza,
			Name:     "Custom Pizza",
			Quantity: 1,
			Price:    total,
		}},
		ShippingAddress: sel.ShippingAddress,
		PaymentMethod:   method,
		PaymentStatus:   status,
		Total:           total,
		Status:          StatusProcessing,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// consumeStock removes every ingredient of every custom line item from
// stock. The order is already committed, so failures are logged and the
// remaining ingredients are still processed.
func (s *Service) consumeStock(ctx context.Context, o *Order) {
	ctx = context.WithoutCancel(ctx)
	lg := zctx.From(ctx)
	for _, item := range o.Items {
		if item.Custom == nil {
			continue
		}
		for _, name := range item.Custom.Selection().Names() {
			if err := s.stock.Consume(ctx, name, item.Quantity); err != nil {
				lg.Warn("Stock adjustment failed",
					zap.String("order_id", o.ID),
					zap.String("ingredient", name),
					zap.Error(err),
				)
			}
		}
	}
}

// ListForUser returns the user's orders, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, &PersistenceError{Op: "list user orders", Err: err}
	}
	return orders, nil
}

// ListAll returns every order with the owning customer joined in.
func (s *Service) ListAll(ctx context.Context) ([]Order, error) {
	orders, err := s.orders.ListAll(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list orders", Err: err}
	}
	return orders, nil
}

// UpdateStatus moves an order along the status state machine. Setting the
// current status again is a no-op and publishes nothing.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.status", status),
	))
	defer span.End()

	next, ok := ParseStatus(status)
	if !ok {
		return nil, &ValidationError{Field: "status", Message: "Invalid status"}
	}

	cur, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "get order", Err: err}
	}
	if cur.Status == next {
		return cur, nil
	}
	if !cur.Status.CanTransitionTo(next) {
		return nil, &InvalidTransitionError{From: cur.Status, To: next}
	}

	updated, err := s.orders.UpdateStatus(ctx, id, cur.Status, next)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrStatusConflict) {
			return nil, err
		}
		span.RecordError(err)
		return nil, &PersistenceError{Op: "update order status", Err: err}
	}
	s.changed.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(next))))

	if err := s.events.PublishStatusChange(ctx, updated); err != nil {
		zctx.From(ctx).Warn("Failed to publish status change",
			zap.String("order_id", updated.ID),
			zap.Error(err),
		)
	}
	return updated, nil
}

func validatePizza(p CustomPizza, addr Address) error {
	if strings.TrimSpace(p.Base) == "" || strings.TrimSpace(p.Sauce) == "" || strings.TrimSpace(p.Cheese) == "" {
		return &ValidationError{Field: "pizza", Message: "Base, sauce, and cheese are required"}
	}
	for _, list := range [][]string{p.Veggies, p.Meat} {
		for _, name := range list {
			if strings.TrimSpace(name) == "" {
				return &ValidationError{Field: "pizza", Message: "Ingredient names must not be empty"}
			}
		}
	}
	if !addr.Complete() {
		return &ValidationError{Field: "shippingAddress", Message: "Complete shipping address is required"}
	}
	return nil
}
