package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/almacart/commerce/internal/domain/coupon"
)

const (
	couponColumns = `id, code, description, discount_percent, discount_amount,
		valid_from, valid_to, active, max_uses, per_user_limit, min_order_amount, max_discount`

	getCouponByCodeSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE UPPER(code) = UPPER($1) AND active = TRUE`

	lockCouponByCodeSQL = getCouponByCodeSQL + ` FOR UPDATE`

	// Usage counts never include redemptions of soft-deleted orders. The
	// cancelled-order predicate is appended per policy.
	countCouponUsesSQL = `SELECT COUNT(*)
		FROM coupon_usages u
		JOIN orders o ON o.id = u.order_id
		WHERE u.coupon_id = $1 AND NOT o.deleted`

	countUserCouponUsesSQL = countCouponUsesSQL + ` AND u.user_id = $2`

	excludeCancelledPredicate = ` AND o.status <> 'cancelled'`

	recordCouponUsageSQL = `INSERT INTO coupon_usages (id, coupon_id, order_id, user_id, discount_applied, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	q      querier
	policy CouponPolicy
}

// NewCouponRepository returns a CouponRepository over the given querier.
func NewCouponRepository(q querier, policy CouponPolicy) *CouponRepository {
	return &CouponRepository{q: q, policy: policy}
}

// FindByCode looks up an active coupon by its code (case-insensitive).
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.findByCode(ctx, getCouponByCodeSQL, code)
}

// LockByCode is FindByCode with FOR UPDATE, serializing concurrent
// redemptions of the same code on the surrounding transaction.
func (r *CouponRepository) LockByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.findByCode(ctx, lockCouponByCodeSQL, code)
}

func (r *CouponRepository) findByCode(ctx context.Context, sql, code string) (*coupon.Coupon, error) {
	rows, err := r.q.Query(ctx, sql, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// CountUses returns the number of counted redemptions of the coupon.
func (r *CouponRepository) CountUses(ctx context.Context, couponID uuid.UUID) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, r.usesQuery(countCouponUsesSQL), couponID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting coupon uses: %w", err)
	}
	return n, nil
}

// CountUserUses returns the number of counted redemptions by one user.
func (r *CouponRepository) CountUserUses(ctx context.Context, couponID, userID uuid.UUID) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, r.usesQuery(countUserCouponUsesSQL), couponID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting per-user coupon uses: %w", err)
	}
	return n, nil
}

func (r *CouponRepository) usesQuery(base string) string {
	if r.policy.FreeSlotOnCancel {
		return base + excludeCancelledPredicate
	}
	return base
}

// RecordUsage persists one redemption.
func (r *CouponRepository) RecordUsage(ctx context.Context, u *coupon.Usage) error {
	_, err := r.q.Exec(ctx, recordCouponUsageSQL,
		u.ID, u.CouponID, u.OrderID, nullUUID(u.UserID), u.DiscountApplied, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("recording coupon usage: %w", err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var c coupon.Coupon
	err := row.Scan(
		&c.ID, &c.Code, &c.Description, &c.DiscountPercent, &c.DiscountAmount,
		&c.ValidFrom, &c.ValidTo, &c.Active, &c.MaxUses, &c.PerUserLimit,
		&c.MinOrderAmount, &c.MaxDiscount,
	)
	return c, err
}
