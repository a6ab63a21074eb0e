package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RejectReason is a machine-readable coupon rejection code.
type RejectReason string

const (
	ReasonNotFound   RejectReason = "not_found"
	ReasonNotValid   RejectReason = "not_valid"
	ReasonMinOrder   RejectReason = "below_min_order"
	ReasonUsageLimit RejectReason = "usage_limit_reached"
	ReasonUserLimit  RejectReason = "per_user_limit_reached"
)

// RejectedError explains why a coupon cannot be applied.
type RejectedError struct {
	Reason  RejectReason
	Message string
}

func (e *RejectedError) Error() string { return e.Message }

func reject(reason RejectReason, msg string) *RejectedError {
	return &RejectedError{Reason: reason, Message: msg}
}

var hundred = decimal.NewFromInt(100)

// Evaluator checks coupon eligibility and computes discounts. Usage counts are
// read through the repository so they share the caller's transaction scope.
type Evaluator struct {
	coupons Repository
	now     func() time.Time
}

// NewEvaluator creates an Evaluator backed by the given Repository.
func NewEvaluator(coupons Repository) *Evaluator {
	return &Evaluator{coupons: coupons, now: time.Now}
}

// Evaluate resolves code and applies the eligibility checks in fixed order:
// validity window, minimum order amount, global usage cap, per-user cap. The
// first failing check wins. On success it returns the coupon and the discount
// for the given subtotal. The lookup takes a row lock on the coupon, so
// concurrent redemptions of the same code serialize on the surrounding
// transaction.
func (e *Evaluator) Evaluate(ctx context.Context, code string, subtotal decimal.Decimal, userID uuid.UUID) (*Coupon, decimal.Decimal, error) {
	c, err := e.coupons.LockByCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return nil, decimal.Zero, reject(ReasonNotFound, fmt.Sprintf("invalid coupon code: %s", code))
	}
	if err != nil {
		return nil, decimal.Zero, errors.Wrap(err, "lookup coupon")
	}

	if err := e.checkEligibility(ctx, c, subtotal, userID); err != nil {
		return nil, decimal.Zero, err
	}

	return c, Discount(c, subtotal), nil
}

func (e *Evaluator) checkEligibility(ctx context.Context, c *Coupon, subtotal decimal.Decimal, userID uuid.UUID) error {
	now := e.now()

	if !c.Active ||
		(c.ValidFrom != nil && now.Before(*c.ValidFrom)) ||
		(c.ValidTo != nil && now.After(*c.ValidTo)) {
		return reject(ReasonNotValid, "coupon is not valid or expired")
	}

	if c.MinOrderAmount != nil && subtotal.LessThan(*c.MinOrderAmount) {
		return reject(ReasonMinOrder, fmt.Sprintf("minimum order amount is %s", c.MinOrderAmount))
	}

	if c.MaxUses != nil {
		uses, err := e.coupons.CountUses(ctx, c.ID)
		if err != nil {
			return errors.Wrap(err, "count coupon uses")
		}
		if uses >= *c.MaxUses {
			return reject(ReasonUsageLimit, "coupon usage limit reached")
		}
	}

	if c.PerUserLimit != nil && userID != uuid.Nil {
		uses, err := e.coupons.CountUserUses(ctx, c.ID, userID)
		if err != nil {
			return errors.Wrap(err, "count per-user coupon uses")
		}
		if uses >= *c.PerUserLimit {
			return reject(ReasonUserLimit, "you have reached the usage limit for this coupon")
		}
	}

	return nil
}

// Discount computes the amount granted by c against subtotal. Fixed-amount
// coupons grant min(amount, subtotal). Percentage coupons grant
// subtotal*percent/100, capped by MaxDiscount when set, then by the subtotal.
// The result is rounded to two decimal places and can never exceed subtotal,
// so an order total cannot go negative from a coupon alone.
func Discount(c *Coupon, subtotal decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch {
	case c.DiscountAmount != nil:
		d = *c.DiscountAmount
	case c.DiscountPercent != nil:
		d = subtotal.Mul(*c.DiscountPercent).Div(hundred)
		if c.MaxDiscount != nil {
			d = decimal.Min(d, *c.MaxDiscount)
		}
	default:
		return decimal.Zero
	}
	return decimal.Min(d, subtotal).Round(2)
}
