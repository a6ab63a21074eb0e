// Package checkout turns a validated active cart into an order inside a
// single transaction. Either every step lands (order, item snapshots,
// reservations, payment record, cart closed, coupon usage) or none do.
package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/almacart/commerce/internal/domain/address"
	"github.com/almacart/commerce/internal/domain/cart"
	"github.com/almacart/commerce/internal/domain/coupon"
	"github.com/almacart/commerce/internal/domain/identity"
	"github.com/almacart/commerce/internal/domain/inventory"
	"github.com/almacart/commerce/internal/domain/order"
	"github.com/almacart/commerce/internal/storage"
)

// MethodCOD marks cash-on-delivery payments, which settle without a gateway
// round trip.
const MethodCOD = "cod"

var (
	// ErrAddressRequired is returned when neither an address id nor an inline
	// address was supplied.
	ErrAddressRequired = errors.New("shipping address required")

	// ErrNegativeShippingFee is returned when a caller supplies a shipping
	// fee below zero.
	ErrNegativeShippingFee = errors.New("shipping fee must not be negative")

	// ErrAddressConflict is returned when both an address id and an inline
	// address were supplied.
	ErrAddressConflict = errors.New("provide either address_id or address, not both")
)

// Request carries the checkout input. Exactly one of AddressID / Address must
// be set. A nil ShippingFee uses the service's configured flat fee.
type Request struct {
	AddressID     uuid.UUID
	Address       *address.Address
	CouponCode    string
	PaymentMethod string
	ShippingFee   *decimal.Decimal
	Notes         string
}

// Result is the created order with its immutable snapshots.
type Result struct {
	Order   *order.Order
	Items   []order.Item
	Payment *order.Payment
}

// Service orchestrates checkout over a transactional store.
type Service struct {
	store       storage.Store
	shippingFee decimal.Decimal
	now         func() time.Time
}

// NewService creates a checkout Service with a flat shipping fee.
func NewService(store storage.Store, shippingFee decimal.Decimal) *Service {
	return &Service{store: store, shippingFee: shippingFee, now: time.Now}
}

// Checkout places an order from the identity's active cart. All pricing
// fields are snapshotted on the order; subsequent catalog or coupon changes
// never alter it.
func (s *Service) Checkout(ctx context.Context, ident identity.Identity, req Request) (*Result, error) {
	if !ident.Valid() {
		return nil, errors.New("identity required")
	}

	var res *Result
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		c, items, err := s.loadCart(ctx, tx, ident)
		if err != nil {
			return err
		}

		addr, err := s.resolveAddress(ctx, tx, ident, req)
		if err != nil {
			return err
		}

		subtotal := decimal.Zero
		for _, it := range items {
			subtotal = subtotal.Add(it.LineTotal)
		}

		var (
			appliedCoupon *coupon.Coupon
			discount      = decimal.Zero
		)
		if req.CouponCode != "" {
			appliedCoupon, discount, err = coupon.NewEvaluator(tx.Coupons()).
				Evaluate(ctx, req.CouponCode, subtotal, ident.UserID)
			if err != nil {
				return err
			}
		}

		shippingFee := s.shippingFee
		if req.ShippingFee != nil {
			if req.ShippingFee.IsNegative() {
				return ErrNegativeShippingFee
			}
			shippingFee = *req.ShippingFee
		}

		total := subtotal.Sub(discount).Add(shippingFee)
		if total.IsNegative() {
			total = decimal.Zero
		}

		placedAt := s.now()
		number, err := tx.Orders().NextNumber(ctx, placedAt)
		if err != nil {
			return errors.Wrap(err, "allocate order number")
		}

		o := &order.Order{
			ID:              uuid.New(),
			Number:          number,
			UserID:          ident.UserID,
			SessionToken:    sessionToken(ident),
			AddressID:       addr.ID,
			Status:          order.StatusPending,
			PaymentStatus:   order.PaymentPending,
			Subtotal:        subtotal,
			Discount:        discount,
			ShippingFee:     shippingFee,
			Total:           total,
			Notes:           req.Notes,
			PlacedAt:        placedAt,
			StatusChangedAt: placedAt,
		}
		if appliedCoupon != nil {
			o.CouponID = appliedCoupon.ID
			o.CouponCode = appliedCoupon.Code
		}
		if err := tx.Orders().Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}

		orderItems := snapshotItems(o.ID, items)
		if err := tx.Orders().CreateItems(ctx, orderItems); err != nil {
			return errors.Wrap(err, "create order items")
		}

		if err := tx.Ledger().Reserve(ctx, o.ID, reserveLines(items)); err != nil {
			return err
		}

		p := &order.Payment{
			ID:        uuid.New(),
			OrderID:   o.ID,
			Amount:    total,
			Method:    req.PaymentMethod,
			Status:    order.PaymentInitiated,
			CreatedAt: placedAt,
			UpdatedAt: placedAt,
		}
		if req.PaymentMethod == MethodCOD {
			p.Status = order.PaymentSuccess
		}
		if err := tx.Orders().CreatePayment(ctx, p); err != nil {
			return errors.Wrap(err, "create payment record")
		}

		if err := tx.Carts().SetStatus(ctx, c.ID, cart.StatusOrdered); err != nil {
			return errors.Wrap(err, "close cart")
		}

		if appliedCoupon != nil {
			usage := &coupon.Usage{
				ID:              uuid.New(),
				CouponID:        appliedCoupon.ID,
				OrderID:         o.ID,
				UserID:          ident.UserID,
				DiscountApplied: discount,
				CreatedAt:       placedAt,
			}
			if err := tx.Coupons().RecordUsage(ctx, usage); err != nil {
				return errors.Wrap(err, "record coupon usage")
			}
		}

		res = &Result{Order: o, Items: orderItems, Payment: p}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) loadCart(ctx context.Context, tx storage.Tx, ident identity.Identity) (*cart.Cart, []cart.Item, error) {
	var (
		c   *cart.Cart
		err error
	)
	if ident.Authenticated {
		c, err = tx.Carts().FindActiveByUser(ctx, ident.UserID)
	} else {
		c, err = tx.Carts().FindActiveBySession(ctx, ident.SessionToken)
	}
	if err != nil {
		return nil, nil, err
	}

	items, err := cart.NewService(tx.Carts(), tx.Variants()).ValidateForCheckout(ctx, c)
	if err != nil {
		return nil, nil, err
	}
	return c, items, nil
}

// resolveAddress returns the shipping address: an existing one owned by the
// identity, or a validated inline one persisted on the spot.
func (s *Service) resolveAddress(ctx context.Context, tx storage.Tx, ident identity.Identity, req Request) (*address.Address, error) {
	switch {
	case req.AddressID != uuid.Nil && req.Address != nil:
		return nil, ErrAddressConflict

	case req.AddressID != uuid.Nil:
		// Saved addresses are keyed by user, so guests have nothing to
		// reference and must ship the address inline.
		if !ident.Authenticated {
			return nil, address.ErrForbidden
		}
		addr, err := tx.Addresses().GetByID(ctx, req.AddressID)
		if err != nil {
			return nil, err
		}
		if addr.UserID != ident.UserID {
			return nil, address.ErrForbidden
		}
		return addr, nil

	case req.Address != nil:
		addr := *req.Address
		if err := addr.Validate(); err != nil {
			return nil, err
		}
		if addr.ID == uuid.Nil {
			addr.ID = uuid.New()
		}
		addr.UserID = ident.UserID
		if err := tx.Addresses().Create(ctx, &addr); err != nil {
			return nil, errors.Wrap(err, "create address")
		}
		return &addr, nil

	default:
		return nil, ErrAddressRequired
	}
}

func sessionToken(ident identity.Identity) string {
	if ident.Authenticated {
		return ""
	}
	return ident.SessionToken
}

func snapshotItems(orderID uuid.UUID, items []cart.Item) []order.Item {
	out := make([]order.Item, len(items))
	for i, it := range items {
		out[i] = order.Item{
			ID:          uuid.New(),
			OrderID:     orderID,
			VariantID:   it.VariantID,
			SKU:         it.SKU,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TotalPrice:  it.LineTotal,
		}
	}
	return out
}

func reserveLines(items []cart.Item) []inventory.Line {
	lines := make([]inventory.Line, len(items))
	for i, it := range items {
		lines[i] = inventory.Line{VariantID: it.VariantID, SKU: it.SKU, Quantity: it.Quantity}
	}
	return lines
}
