// Package coupon validates and prices discount codes.
package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no active coupon matches a code.
var ErrNotFound = errors.New("coupon not found")

// Coupon is a discount code. Exactly one of DiscountPercent / DiscountAmount
// is set. All limit fields are optional; nil means unlimited/unbounded.
type Coupon struct {
	ID          uuid.UUID
	Code        string
	Description string

	DiscountPercent *decimal.Decimal
	DiscountAmount  *decimal.Decimal

	ValidFrom *time.Time
	ValidTo   *time.Time
	Active    bool

	MaxUses        *int
	PerUserLimit   *int
	MinOrderAmount *decimal.Decimal
	// MaxDiscount caps the computed discount of percentage coupons only.
	MaxDiscount *decimal.Decimal
}

// Validate checks structural consistency: a coupon must carry exactly one
// discount kind and a percentage within (0, 100].
func (c *Coupon) Validate() error {
	if c.DiscountAmount == nil && c.DiscountPercent == nil {
		return errors.New("coupon must have either discount_amount or discount_percent")
	}
	if c.DiscountAmount != nil && c.DiscountPercent != nil {
		return errors.New("coupon cannot have both discount_amount and discount_percent")
	}
	if c.DiscountPercent != nil && c.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("discount percent cannot exceed 100")
	}
	return nil
}

// Usage is one successful redemption, recorded exactly once at order-creation
// time. DiscountApplied is the snapshotted amount that was actually granted.
type Usage struct {
	ID              uuid.UUID
	CouponID        uuid.UUID
	OrderID         uuid.UUID
	UserID          uuid.UUID // Nil for guest redemptions
	DiscountApplied decimal.Decimal
	CreatedAt       time.Time
}

// Repository provides coupon lookup and usage tracking. Usage counts consider
// only redemptions whose orders are not soft-deleted; whether cancelled orders
// also free their slot is a policy of the backing store.
type Repository interface {
	// FindByCode returns the active coupon for a code, or ErrNotFound.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// LockByCode is FindByCode with an exclusive row lock, for use inside the
	// checkout transaction so concurrent redemptions serialize on the coupon.
	LockByCode(ctx context.Context, code string) (*Coupon, error)
	CountUses(ctx context.Context, couponID uuid.UUID) (int, error)
	CountUserUses(ctx context.Context, couponID, userID uuid.UUID) (int, error)
	RecordUsage(ctx context.Context, u *Usage) error
}
