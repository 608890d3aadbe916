package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pizza-delivery/internal/domain/order"
)

const (
	orderColumns = `o.id, o.user_id, o.items, o.shipping_address, o.payment_method, o.payment_status,
		o.gateway_order_id, o.payment_id, o.total, o.status, o.created_at, o.updated_at`

	createOrderSQL = `INSERT INTO orders (id, user_id, items, shipping_address, payment_method,
			payment_status, gateway_order_id, payment_id, total, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = $1`

	getOrderByPaymentIDSQL = `SELECT ` + orderColumns + ` FROM orders o WHERE o.payment_id = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + `
		FROM orders o WHERE o.user_id = $1 ORDER BY o.created_at DESC`

	listAllOrdersSQL = `SELECT ` + orderColumns + `, u.name, u.email
		FROM orders o JOIN users u ON u.id = o.user_id ORDER BY o.created_at DESC`

	updateOrderStatusSQL = `UPDATE orders o SET status = $3, updated_at = now()
		WHERE o.id = $1 AND o.status = $2 RETURNING ` + orderColumns

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	paymentIDConstraint = "orders_payment_id_key"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. Line items and the shipping address are
// serialized to JSON for storage in JSONB columns.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	addrJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, itemsJSON, addrJSON, string(o.PaymentMethod), string(o.PaymentStatus),
		nullString(o.GatewayOrderID), nullString(o.PaymentID), o.Total, string(o.Status),
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, paymentIDConstraint) {
			return order.ErrDuplicatePayment
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	return nil
}

// GetByID returns a single order.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByIDSQL, id)
}

// GetByPaymentID returns the order committed for a gateway payment.
func (r *OrderRepository) GetByPaymentID(ctx context.Context, paymentID string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByPaymentIDSQL, paymentID)
}

func (r *OrderRepository) getOne(ctx context.Context, query, arg string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}
	return &o, nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// ListAll returns every order joined with its owner, newest first.
func (r *OrderRepository) ListAll(ctx context.Context) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listAllOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrderWithCustomer)
}

// UpdateStatus sets the status only if it still equals from.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, updateOrderStatusSQL, id, string(from), string(to))
	if err != nil {
		return nil, fmt.Errorf("updating status of %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err == nil {
		return &o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("updating status of %q: %w", id, err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking order %q: %w", id, err)
	}
	if !exists {
		return nil, order.ErrNotFound
	}
	return nil, order.ErrStatusConflict
}

type orderRow struct {
	o                 order.Order
	items, address    []byte
	method, payStatus string
	gatewayID, payID  *string
	status            string
}

func (r *orderRow) dest() []any {
	return []any{
		&r.o.ID, &r.o.UserID, &r.items, &r.address, &r.method, &r.payStatus,
		&r.gatewayID, &r.payID, &r.o.Total, &r.status, &r.o.CreatedAt, &r.o.UpdatedAt,
	}
}

func (r *orderRow) finish() (order.Order, error) {
	o := r.o
	if err := json.Unmarshal(r.items, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling items of %q: %w", o.ID, err)
	}
	if err := json.Unmarshal(r.address, &o.ShippingAddress); err != nil {
		return o, fmt.Errorf("unmarshaling address of %q: %w", o.ID, err)
	}
	o.PaymentMethod = order.PaymentMethod(r.method)
	o.PaymentStatus = order.PaymentStatus(r.payStatus)
	o.GatewayOrderID = derefString(r.gatewayID)
	o.PaymentID = derefString(r.payID)
	o.Status = order.Status(r.status)
	return o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var r orderRow
	if err := row.Scan(r.dest()...); err != nil {
		return order.Order{}, err
	}
	return r.finish()
}

func scanOrderWithCustomer(row pgx.CollectableRow) (order.Order, error) {
	var (
		r    orderRow
		cust order.Customer
	)
	if err := row.Scan(append(r.dest(), &cust.Name, &cust.Email)...); err != nil {
		return order.Order{}, err
	}
	o, err := r.finish()
	o.Customer = &cust
	return o, err
}
