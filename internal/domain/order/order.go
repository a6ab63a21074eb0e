// Package order holds the immutable order aggregate and its two lifecycle
// state machines: fulfillment status and payment status.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when an order does not exist (or is soft-deleted).
	ErrNotFound = errors.New("order not found")
	// ErrForbidden is returned when an order belongs to another identity.
	ErrForbidden = errors.New("order belongs to another identity")
)

// Status is the fulfillment lifecycle of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// PaymentStatus is the financial lifecycle of an order, independent from the
// fulfillment Status.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// PaymentState is the state of the Payment record reported by the gateway.
type PaymentState string

const (
	PaymentInitiated     PaymentState = "initiated"
	PaymentSuccess       PaymentState = "success"
	PaymentStateFailed   PaymentState = "failed"
	PaymentStateRefunded PaymentState = "refunded"
)

// Order is created exactly once from a validated cart. All monetary fields
// are snapshots; they are never recomputed from live prices after creation.
type Order struct {
	ID           uuid.UUID
	Number       string
	UserID       uuid.UUID // Nil for guest orders
	SessionToken string    // owner token for guest orders
	AddressID    uuid.UUID
	CouponID     uuid.UUID // Nil when no coupon was applied
	CouponCode   string    // snapshot of the code used

	Status        Status
	PaymentStatus PaymentStatus

	Subtotal    decimal.Decimal
	Discount    decimal.Decimal
	ShippingFee decimal.Decimal
	Total       decimal.Decimal
	Notes       string

	Deleted         bool
	PlacedAt        time.Time
	StatusChangedAt time.Time
	ShippedAt       *time.Time
}

// Item is an immutable snapshot of a purchased line, captured at
// order-creation time so later catalog changes never alter history.
type Item struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	VariantID   uuid.UUID
	SKU         string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	TotalPrice  decimal.Decimal
}

// Payment is the single financial record of an order. RawResponse holds the
// opaque gateway payload as received.
type Payment struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	Amount        decimal.Decimal
	Method        string
	TransactionID string
	Status        PaymentState
	RawResponse   []byte
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Repository defines order persistence. UpdateStatus stamps status_changed_at
// on every transition and shipped_at when provided.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	CreateItems(ctx context.Context, items []Item) error
	CreatePayment(ctx context.Context, p *Payment) error

	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	ItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]Item, error)
	PaymentByOrder(ctx context.Context, orderID uuid.UUID) (*Payment, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Order, error)

	UpdateStatus(ctx context.Context, orderID uuid.UUID, status Status, shippedAt *time.Time) error
	UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, ps PaymentStatus) error
	UpdatePayment(ctx context.Context, p *Payment) error

	// NextNumber allocates the next order number for the given day from a
	// per-day atomic sequence.
	NextNumber(ctx context.Context, day time.Time) (string, error)
}
