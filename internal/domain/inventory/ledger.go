// Package inventory models stock as an append-only movement ledger.
//
// Availability is never stored as a mutable counter: it is derived from the
// on-hand quantity of a stock row minus the reservations that are still
// outstanding (reserved but neither released nor converted to a sale).
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// EntryType classifies a stock movement.
type EntryType string

const (
	// EntryPurchase records stock received from a supplier (+qty).
	EntryPurchase EntryType = "purchase"
	// EntrySale records stock permanently leaving on payment commit (-qty).
	EntrySale EntryType = "sale"
	// EntryReserve records a provisional checkout hold (-qty).
	EntryReserve EntryType = "reserve"
	// EntryRelease returns a reservation to availability (+qty).
	EntryRelease EntryType = "release"
	// EntryAdjustment records a manual correction (either sign).
	EntryAdjustment EntryType = "adjustment"
)

// Entry is one immutable row of the movement ledger. OrderID links movements
// triggered by an order; it references the order without owning it, so orders
// can be soft-deleted without invalidating history.
type Entry struct {
	ID        int64
	VariantID uuid.UUID
	Quantity  int
	Type      EntryType
	OrderID   uuid.UUID
	Note      string
	CreatedAt time.Time
}

// InsufficientStockError reports a reservation or sale that cannot be covered
// by available stock.
type InsufficientStockError struct {
	SKU       string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for SKU %s: available %d, requested %d",
		e.SKU, e.Available, e.Requested)
}

// ErrNotTracked is returned when a variant has no stock row. Untracked
// variants sell without reservation.
var ErrNotTracked = errors.New("variant has no inventory tracking")

// Line is one (variant, quantity) pair of a reservation request.
type Line struct {
	VariantID uuid.UUID
	SKU       string
	Quantity  int
}

// Ledger is the stock-movement log. Every mutating call runs in its own
// atomic scope unless invoked through a surrounding transaction, and acquires
// an exclusive lock on each touched variant's stock row before reading derived
// availability.
type Ledger interface {
	// Reserve appends a RESERVE entry per line, all-or-nothing. A line whose
	// variant is untracked is skipped. Returns *InsufficientStockError when
	// any line cannot be covered.
	Reserve(ctx context.Context, orderID uuid.UUID, lines []Line) error

	// Release appends a RELEASE entry for every outstanding RESERVE tied to
	// the order. Idempotent: reservations already released or sold are left
	// alone, and an order that never reserved is a no-op.
	Release(ctx context.Context, orderID uuid.UUID) error

	// CommitSale converts the order's outstanding reservations into SALE
	// entries. Without reservations it falls back to validating current
	// availability per line and appending SALE entries directly.
	CommitSale(ctx context.Context, orderID uuid.UUID, lines []Line) error

	// Adjust appends an ADJUSTMENT entry and moves the on-hand quantity by
	// delta. Creates the stock row when missing.
	Adjust(ctx context.Context, variantID uuid.UUID, delta int, note string) error

	// Available returns the derived available quantity for a variant.
	Available(ctx context.Context, variantID uuid.UUID) (int, error)
}
