// Package cart owns the mutable pre-order basket and the guest-to-user merge.
package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the cart lifecycle state. A cart is mutable only while active;
// it becomes ordered (terminal) when an order is created from it.
type Status string

const (
	StatusActive    Status = "active"
	StatusOrdered   Status = "ordered"
	StatusAbandoned Status = "abandoned"
)

var (
	// ErrNotFound is returned when no matching cart exists.
	ErrNotFound = errors.New("cart not found")
	// ErrEmpty rejects checkout of a cart without items.
	ErrEmpty = errors.New("cart is empty")
	// ErrInvalidQuantity rejects non-positive item quantities.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	// ErrItemNotFound is returned when a cart line does not exist.
	ErrItemNotFound = errors.New("cart item not found")
)

// VariantUnavailableError reports a cart line whose variant was deactivated
// after it was added.
type VariantUnavailableError struct {
	SKU string
}

func (e *VariantUnavailableError) Error() string {
	return fmt.Sprintf("product %s is no longer available", e.SKU)
}

// Cart is the basket. It is owned by exactly one of user / session token, and
// at most one active cart exists per owner (enforced by partial unique
// indexes). Subtotal is denormalized and recomputed after every mutation.
type Cart struct {
	ID           uuid.UUID
	UserID       uuid.UUID // Nil for guest carts
	SessionToken string    // empty for user carts
	Status       Status
	Subtotal     decimal.Decimal
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Item is one cart line. UnitPrice is a snapshot of the variant's current
// selling price, refreshed on every add/update. LineTotal is always
// UnitPrice * Quantity.
type Item struct {
	ID          uuid.UUID
	CartID      uuid.UUID
	VariantID   uuid.UUID
	SKU         string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

// Repository defines cart persistence. ApplyMerge and the mutation methods
// must run atomically; the per-owner active-cart uniqueness lives in the
// schema, not in code.
type Repository interface {
	FindActiveByUser(ctx context.Context, userID uuid.UUID) (*Cart, error)
	FindActiveBySession(ctx context.Context, token string) (*Cart, error)
	Create(ctx context.Context, c *Cart) error
	Items(ctx context.Context, cartID uuid.UUID) ([]Item, error)

	// UpsertItem inserts the line or, when a line for the same variant exists,
	// overwrites its quantity, unit price, and line total.
	UpsertItem(ctx context.Context, it *Item) error
	DeleteItem(ctx context.Context, cartID, variantID uuid.UUID) error

	// RecomputeSubtotal sums the cart's line totals in storage and writes the
	// result back, returning it.
	RecomputeSubtotal(ctx context.Context, cartID uuid.UUID) (decimal.Decimal, error)

	// ApplyMerge atomically replaces the user cart's lines with the merged
	// set, deletes the guest cart (cascading its lines), and recomputes the
	// user cart's subtotal.
	ApplyMerge(ctx context.Context, userCartID, guestCartID uuid.UUID, merged []Item) error

	SetStatus(ctx context.Context, cartID uuid.UUID, status Status) error
}
