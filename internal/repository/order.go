package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/almacart/commerce/internal/domain/order"
)

const (
	orderColumns = `id, number, user_id, session_token, address_id, coupon_id, coupon_code,
		status, payment_status, subtotal, discount, shipping_fee, total, notes,
		deleted, placed_at, status_changed_at, shipped_at`

	createOrderSQL = `INSERT INTO orders (id, number, user_id, session_token, address_id, coupon_id, coupon_code,
		status, payment_status, subtotal, discount, shipping_fee, total, notes, placed_at, status_changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	createOrderItemSQL = `INSERT INTO order_items (id, order_id, variant_id, sku, product_name, quantity, unit_price, total_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	createPaymentSQL = `INSERT INTO payments (id, order_id, amount, method, transaction_id, status, raw_response, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	getOrderByIDSQL     = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND NOT deleted`
	getOrderByNumberSQL = `SELECT ` + orderColumns + ` FROM orders WHERE number = $1 AND NOT deleted`

	listOrdersByUserSQL = `SELECT ` + orderColumns + `
		FROM orders WHERE user_id = $1 AND NOT deleted ORDER BY placed_at DESC`

	listOrderItemsSQL = `SELECT id, order_id, variant_id, sku, product_name, quantity, unit_price, total_price
		FROM order_items WHERE order_id = $1 ORDER BY id`

	getPaymentByOrderSQL = `SELECT id, order_id, amount, method, transaction_id, status, raw_response, created_at, updated_at
		FROM payments WHERE order_id = $1`

	updateOrderStatusSQL = `UPDATE orders
		SET status = $2, status_changed_at = now(), shipped_at = COALESCE($3, shipped_at)
		WHERE id = $1 AND NOT deleted`

	updateOrderPaymentStatusSQL = `UPDATE orders SET payment_status = $2 WHERE id = $1 AND NOT deleted`

	updatePaymentSQL = `UPDATE payments
		SET status = $2, transaction_id = $3, raw_response = $4, updated_at = now()
		WHERE id = $1`

	// Atomic per-day sequence: insert the day's row or bump it, returning the
	// allocated value in one statement.
	nextOrderSeqSQL = `INSERT INTO order_sequences (day, last_seq) VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET last_seq = order_sequences.last_seq + 1
		RETURNING last_seq`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	q querier
}

// NewOrderRepository returns an OrderRepository over the given querier.
func NewOrderRepository(q querier) *OrderRepository {
	return &OrderRepository{q: q}
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	_, err := r.q.Exec(ctx, createOrderSQL,
		o.ID, o.Number, nullUUID(o.UserID), o.SessionToken, o.AddressID,
		nullUUID(o.CouponID), o.CouponCode, o.Status, o.PaymentStatus,
		o.Subtotal, o.Discount, o.ShippingFee, o.Total, o.Notes,
		o.PlacedAt, o.StatusChangedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.Number, err)
	}
	return nil
}

// CreateItems persists the order's immutable line snapshots.
func (r *OrderRepository) CreateItems(ctx context.Context, items []order.Item) error {
	for _, it := range items {
		_, err := r.q.Exec(ctx, createOrderItemSQL,
			it.ID, it.OrderID, it.VariantID, it.SKU, it.ProductName,
			it.Quantity, it.UnitPrice, it.TotalPrice,
		)
		if err != nil {
			return fmt.Errorf("creating order item %q: %w", it.SKU, err)
		}
	}
	return nil
}

// CreatePayment persists the order's single payment record.
func (r *OrderRepository) CreatePayment(ctx context.Context, p *order.Payment) error {
	_, err := r.q.Exec(ctx, createPaymentSQL,
		p.ID, p.OrderID, p.Amount, p.Method, p.TransactionID,
		p.Status, p.RawResponse, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating payment for order %q: %w", p.OrderID, err)
	}
	return nil
}

// GetByID returns an order by id. Soft-deleted orders are invisible.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return r.getOrder(ctx, getOrderByIDSQL, id)
}

// GetByNumber returns an order by its business number.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.getOrder(ctx, getOrderByNumberSQL, number)
}

func (r *OrderRepository) getOrder(ctx context.Context, sql string, arg any) (*order.Order, error) {
	rows, err := r.q.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}
	return &o, nil
}

// ItemsByOrder returns the order's line snapshots.
func (r *OrderRepository) ItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]order.Item, error) {
	rows, err := r.q.Query(ctx, listOrderItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing order items: %w", err)
	}
	return pgx.CollectRows(rows, scanOrderItem)
}

// PaymentByOrder returns the order's payment record.
func (r *OrderRepository) PaymentByOrder(ctx context.Context, orderID uuid.UUID) (*order.Payment, error) {
	rows, err := r.q.Query(ctx, getPaymentByOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting payment for order %q: %w", orderID, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting payment for order %q: %w", orderID, err)
	}
	return &p, nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]order.Order, error) {
	rows, err := r.q.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// UpdateStatus moves the order's fulfillment status, stamping
// status_changed_at and, when given, shipped_at.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID uuid.UUID, status order.Status, shippedAt *time.Time) error {
	tag, err := r.q.Exec(ctx, updateOrderStatusSQL, orderID, status, shippedAt)
	if err != nil {
		return fmt.Errorf("updating order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// UpdatePaymentStatus moves the order's payment status.
func (r *OrderRepository) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, ps order.PaymentStatus) error {
	tag, err := r.q.Exec(ctx, updateOrderPaymentStatusSQL, orderID, ps)
	if err != nil {
		return fmt.Errorf("updating order payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// UpdatePayment persists gateway-reported changes to the payment record.
func (r *OrderRepository) UpdatePayment(ctx context.Context, p *order.Payment) error {
	_, err := r.q.Exec(ctx, updatePaymentSQL, p.ID, p.Status, p.TransactionID, p.RawResponse)
	if err != nil {
		return fmt.Errorf("updating payment %q: %w", p.ID, err)
	}
	return nil
}

// NextNumber allocates the next order number for the given day.
func (r *OrderRepository) NextNumber(ctx context.Context, day time.Time) (string, error) {
	var seq int
	err := r.q.QueryRow(ctx, nextOrderSeqSQL, day.Format("2006-01-02")).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("allocating order number: %w", err)
	}
	return order.FormatNumber(day, seq), nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o        order.Order
		userID   *uuid.UUID
		couponID *uuid.UUID
	)
	err := row.Scan(
		&o.ID, &o.Number, &userID, &o.SessionToken, &o.AddressID, &couponID, &o.CouponCode,
		&o.Status, &o.PaymentStatus, &o.Subtotal, &o.Discount, &o.ShippingFee, &o.Total,
		&o.Notes, &o.Deleted, &o.PlacedAt, &o.StatusChangedAt, &o.ShippedAt,
	)
	if userID != nil {
		o.UserID = *userID
	}
	if couponID != nil {
		o.CouponID = *couponID
	}
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(&it.ID, &it.OrderID, &it.VariantID, &it.SKU, &it.ProductName,
		&it.Quantity, &it.UnitPrice, &it.TotalPrice)
	return it, err
}

func scanPayment(row pgx.CollectableRow) (order.Payment, error) {
	var p order.Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.TransactionID,
		&p.Status, &p.RawResponse, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
