package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/almacart/commerce/internal/domain/address"
	"github.com/almacart/commerce/internal/domain/cart"
	"github.com/almacart/commerce/internal/domain/catalog"
	"github.com/almacart/commerce/internal/domain/coupon"
	"github.com/almacart/commerce/internal/domain/identity"
	"github.com/almacart/commerce/internal/domain/inventory"
	"github.com/almacart/commerce/internal/domain/order"
	"github.com/almacart/commerce/internal/storage"
)

type fakeCartRepo struct {
	cart.Repository

	cart     *cart.Cart
	items    []cart.Item
	statuses []cart.Status
}

func (f *fakeCartRepo) FindActiveByUser(_ context.Context, userID uuid.UUID) (*cart.Cart, error) {
	if f.cart == nil || f.cart.UserID != userID {
		return nil, cart.ErrNotFound
	}
	return f.cart, nil
}

func (f *fakeCartRepo) FindActiveBySession(_ context.Context, token string) (*cart.Cart, error) {
	if f.cart == nil || f.cart.SessionToken != token {
		return nil, cart.ErrNotFound
	}
	return f.cart, nil
}

func (f *fakeCartRepo) Items(_ context.Context, _ uuid.UUID) ([]cart.Item, error) {
	return f.items, nil
}

func (f *fakeCartRepo) SetStatus(_ context.Context, _ uuid.UUID, status cart.Status) error {
	f.statuses = append(f.statuses, status)
	return nil
}

type fakeVariantRepo struct {
	catalog.Repository

	variants map[uuid.UUID]catalog.Variant
}

func (f *fakeVariantRepo) GetByIDs(_ context.Context, ids []uuid.UUID) ([]catalog.Variant, error) {
	out := make([]catalog.Variant, 0, len(ids))
	for _, id := range ids {
		if v, ok := f.variants[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

type fakeCouponRepo struct {
	coupon.Repository

	coupon    *coupon.Coupon
	uses      int
	userUses  int
	usages    []coupon.Usage
	userCalls int
}

func (f *fakeCouponRepo) LockByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	if f.coupon == nil || f.coupon.Code != code {
		return nil, coupon.ErrNotFound
	}
	return f.coupon, nil
}

func (f *fakeCouponRepo) CountUses(_ context.Context, _ uuid.UUID) (int, error) {
	return f.uses, nil
}

func (f *fakeCouponRepo) CountUserUses(_ context.Context, _, _ uuid.UUID) (int, error) {
	f.userCalls++
	return f.userUses, nil
}

func (f *fakeCouponRepo) RecordUsage(_ context.Context, u *coupon.Usage) error {
	f.usages = append(f.usages, *u)
	return nil
}

type fakeOrderRepo struct {
	order.Repository

	created  *order.Order
	items    []order.Item
	payment  *order.Payment
	sequence int
}

func (f *fakeOrderRepo) Create(_ context.Context, o *order.Order) error {
	cp := *o
	f.created = &cp
	return nil
}

func (f *fakeOrderRepo) CreateItems(_ context.Context, items []order.Item) error {
	f.items = items
	return nil
}

func (f *fakeOrderRepo) CreatePayment(_ context.Context, p *order.Payment) error {
	cp := *p
	f.payment = &cp
	return nil
}

func (f *fakeOrderRepo) NextNumber(_ context.Context, day time.Time) (string, error) {
	f.sequence++
	return order.FormatNumber(day, f.sequence), nil
}

type fakeLedger struct {
	inventory.Ledger

	reserved   map[uuid.UUID][]inventory.Line
	reserveErr error
}

func (f *fakeLedger) Reserve(_ context.Context, orderID uuid.UUID, lines []inventory.Line) error {
	if f.reserveErr != nil {
		return f.reserveErr
	}
	if f.reserved == nil {
		f.reserved = make(map[uuid.UUID][]inventory.Line)
	}
	f.reserved[orderID] = lines
	return nil
}

type fakeAddressRepo struct {
	address.Repository

	addresses map[uuid.UUID]*address.Address
	created   *address.Address
}

func (f *fakeAddressRepo) GetByID(_ context.Context, id uuid.UUID) (*address.Address, error) {
	a, ok := f.addresses[id]
	if !ok {
		return nil, address.ErrNotFound
	}
	return a, nil
}

func (f *fakeAddressRepo) Create(_ context.Context, a *address.Address) error {
	cp := *a
	f.created = &cp
	return nil
}

type fakeTx struct {
	carts     *fakeCartRepo
	variants  *fakeVariantRepo
	coupons   *fakeCouponRepo
	orders    *fakeOrderRepo
	ledger    *fakeLedger
	addresses *fakeAddressRepo
}

func (t *fakeTx) Carts() cart.Repository        { return t.carts }
func (t *fakeTx) Variants() catalog.Repository  { return t.variants }
func (t *fakeTx) Coupons() coupon.Repository    { return t.coupons }
func (t *fakeTx) Orders() order.Repository      { return t.orders }
func (t *fakeTx) Ledger() inventory.Ledger      { return t.ledger }
func (t *fakeTx) Addresses() address.Repository { return t.addresses }

type fakeStore struct {
	*fakeTx
}

func (s *fakeStore) InTx(_ context.Context, fn func(tx storage.Tx) error) error {
	return fn(s.fakeTx)
}

type fixture struct {
	store  *fakeStore
	user   identity.Identity
	addrID uuid.UUID
}

func newFixture() fixture {
	userID := uuid.New()
	cartID := uuid.New()
	shirtID, mugID := uuid.New(), uuid.New()
	addrID := uuid.New()

	price := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }

	return fixture{
		user:   identity.User(userID),
		addrID: addrID,
		store: &fakeStore{fakeTx: &fakeTx{
			carts: &fakeCartRepo{
				cart: &cart.Cart{ID: cartID, UserID: userID, Status: cart.StatusActive},
				items: []cart.Item{
					{CartID: cartID, VariantID: shirtID, SKU: "SHIRT-M", ProductName: "Shirt", Quantity: 2, UnitPrice: price("7.50"), LineTotal: price("15.00")},
					{CartID: cartID, VariantID: mugID, SKU: "MUG-01", ProductName: "Mug", Quantity: 1, UnitPrice: price("5.00"), LineTotal: price("5.00")},
				},
			},
			variants: &fakeVariantRepo{variants: map[uuid.UUID]catalog.Variant{
				shirtID: {ID: shirtID, SKU: "SHIRT-M", Active: true},
				mugID:   {ID: mugID, SKU: "MUG-01", Active: true},
			}},
			coupons: &fakeCouponRepo{},
			orders:  &fakeOrderRepo{},
			ledger:  &fakeLedger{},
			addresses: &fakeAddressRepo{addresses: map[uuid.UUID]*address.Address{
				addrID: {ID: addrID, UserID: userID, Name: "A", Phone: "1", FullAddress: "x", Country: "TR", District: "Kadikoy"},
			}},
		}},
	}
}

func percentCoupon(code string, pct int64) *coupon.Coupon {
	p := decimal.NewFromInt(pct)
	return &coupon.Coupon{ID: uuid.New(), Code: code, Active: true, DiscountPercent: &p}
}

func TestCheckoutPercentCouponAndShipping(t *testing.T) {
	fx := newFixture()
	fx.store.coupons.coupon = percentCoupon("SAVE10", 10)
	svc := NewService(fx.store, decimal.NewFromInt(5))

	res, err := svc.Checkout(context.Background(), fx.user, Request{
		AddressID:     fx.addrID,
		CouponCode:    "SAVE10",
		PaymentMethod: "card",
	})
	require.NoError(t, err)

	o := res.Order
	assert.Equal(t, "20.00", o.Subtotal.StringFixed(2))
	assert.Equal(t, "2.00", o.Discount.StringFixed(2))
	assert.Equal(t, "5.00", o.ShippingFee.StringFixed(2))
	assert.Equal(t, "23.00", o.Total.StringFixed(2))
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, order.PaymentPending, o.PaymentStatus)
	assert.Equal(t, "SAVE10", o.CouponCode)
	assert.NotEmpty(t, o.Number)

	require.Len(t, res.Items, 2)
	assert.Equal(t, o.ID, res.Items[0].OrderID)
	assert.Equal(t, "SHIRT-M", res.Items[0].SKU)

	assert.Equal(t, order.PaymentInitiated, res.Payment.Status)
	assert.Equal(t, "23.00", res.Payment.Amount.StringFixed(2))

	require.Len(t, fx.store.ledger.reserved[o.ID], 2)
	assert.Equal(t, []cart.Status{cart.StatusOrdered}, fx.store.carts.statuses)

	require.Len(t, fx.store.coupons.usages, 1)
	assert.Equal(t, "2.00", fx.store.coupons.usages[0].DiscountApplied.StringFixed(2))
	assert.Equal(t, o.ID, fx.store.coupons.usages[0].OrderID)
}

func TestCheckoutFixedCouponCappedAtSubtotal(t *testing.T) {
	fx := newFixture()
	amount := decimal.NewFromInt(50)
	fx.store.coupons.coupon = &coupon.Coupon{ID: uuid.New(), Code: "BIG50", Active: true, DiscountAmount: &amount}
	svc := NewService(fx.store, decimal.NewFromInt(5))

	res, err := svc.Checkout(context.Background(), fx.user, Request{
		AddressID:     fx.addrID,
		CouponCode:    "BIG50",
		PaymentMethod: MethodCOD,
	})
	require.NoError(t, err)

	assert.Equal(t, "20.00", res.Order.Discount.StringFixed(2))
	assert.Equal(t, "5.00", res.Order.Total.StringFixed(2))
	assert.Equal(t, order.PaymentSuccess, res.Payment.Status)
}

func TestCheckoutReservationFailureAbortsEverything(t *testing.T) {
	fx := newFixture()
	fx.store.coupons.coupon = percentCoupon("SAVE10", 10)
	fx.store.ledger.reserveErr = &inventory.InsufficientStockError{SKU: "SHIRT-M", Available: 1, Requested: 2}
	svc := NewService(fx.store, decimal.NewFromInt(5))

	_, err := svc.Checkout(context.Background(), fx.user, Request{
		AddressID:     fx.addrID,
		CouponCode:    "SAVE10",
		PaymentMethod: "card",
	})
	var short *inventory.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, "SHIRT-M", short.SKU)

	assert.Empty(t, fx.store.carts.statuses)
	assert.Empty(t, fx.store.coupons.usages)
	assert.Nil(t, fx.store.orders.payment)
}

func TestCheckoutEmptyCart(t *testing.T) {
	fx := newFixture()
	fx.store.carts.items = nil
	svc := NewService(fx.store, decimal.NewFromInt(5))

	_, err := svc.Checkout(context.Background(), fx.user, Request{AddressID: fx.addrID})
	require.ErrorIs(t, err, cart.ErrEmpty)
	assert.Nil(t, fx.store.orders.created)
}

func TestCheckoutAddressRequired(t *testing.T) {
	fx := newFixture()
	svc := NewService(fx.store, decimal.NewFromInt(5))

	_, err := svc.Checkout(context.Background(), fx.user, Request{PaymentMethod: MethodCOD})
	require.ErrorIs(t, err, ErrAddressRequired)
}

func TestCheckoutForeignAddressForbidden(t *testing.T) {
	fx := newFixture()
	foreign := uuid.New()
	fx.store.addresses.addresses[foreign] = &address.Address{ID: foreign, UserID: uuid.New()}
	svc := NewService(fx.store, decimal.NewFromInt(5))

	_, err := svc.Checkout(context.Background(), fx.user, Request{AddressID: foreign})
	require.ErrorIs(t, err, address.ErrForbidden)
	assert.Nil(t, fx.store.orders.created)
}

func TestCheckoutInlineAddressPersisted(t *testing.T) {
	fx := newFixture()
	svc := NewService(fx.store, decimal.NewFromInt(5))

	res, err := svc.Checkout(context.Background(), fx.user, Request{
		Address: &address.Address{
			Name: "B", Phone: "2", FullAddress: "y", Country: "TR", District: "Besiktas",
		},
		PaymentMethod: MethodCOD,
	})
	require.NoError(t, err)

	created := fx.store.addresses.created
	require.NotNil(t, created)
	assert.Equal(t, fx.user.UserID, created.UserID)
	assert.Equal(t, created.ID, res.Order.AddressID)
}

func TestCheckoutInlineAddressMissingFields(t *testing.T) {
	fx := newFixture()
	svc := NewService(fx.store, decimal.NewFromInt(5))

	_, err := svc.Checkout(context.Background(), fx.user, Request{
		Address: &address.Address{Name: "B"},
	})
	var missing *address.MissingFieldsError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, missing.Fields, "phone")
}

func TestCheckoutGuestSkipsPerUserLimit(t *testing.T) {
	fx := newFixture()
	limit := 1
	c := percentCoupon("SAVE10", 10)
	c.PerUserLimit = &limit
	fx.store.coupons.coupon = c
	fx.store.coupons.userUses = 5

	guest := identity.Guest("sess-1")
	fx.store.carts.cart.UserID = uuid.Nil
	fx.store.carts.cart.SessionToken = "sess-1"
	svc := NewService(fx.store, decimal.NewFromInt(5))

	res, err := svc.Checkout(context.Background(), guest, Request{
		Address: &address.Address{
			Name: "G", Phone: "1", FullAddress: "x", Country: "TR", District: "Kadikoy",
		},
		CouponCode:    "SAVE10",
		PaymentMethod: MethodCOD,
	})
	require.NoError(t, err)
	assert.Zero(t, fx.store.coupons.userCalls)
	assert.Equal(t, "sess-1", res.Order.SessionToken)
	assert.Equal(t, uuid.Nil, res.Order.UserID)
}

func TestCheckoutGuestCannotUseSavedAddress(t *testing.T) {
	fx := newFixture()
	guest := identity.Guest("sess-1")
	fx.store.carts.cart.UserID = uuid.Nil
	fx.store.carts.cart.SessionToken = "sess-1"
	svc := NewService(fx.store, decimal.NewFromInt(5))

	_, err := svc.Checkout(context.Background(), guest, Request{
		AddressID:     fx.addrID,
		PaymentMethod: MethodCOD,
	})
	require.ErrorIs(t, err, address.ErrForbidden)
	assert.Nil(t, fx.store.orders.created)
}

func TestCheckoutRequestShippingFeeOverride(t *testing.T) {
	fx := newFixture()
	fee := decimal.RequireFromString("12.50")
	svc := NewService(fx.store, decimal.NewFromInt(5))

	res, err := svc.Checkout(context.Background(), fx.user, Request{
		AddressID:     fx.addrID,
		PaymentMethod: MethodCOD,
		ShippingFee:   &fee,
	})
	require.NoError(t, err)
	assert.Equal(t, "12.50", res.Order.ShippingFee.StringFixed(2))
	assert.Equal(t, "32.50", res.Order.Total.StringFixed(2))
}

func TestCheckoutRejectsNegativeShippingFee(t *testing.T) {
	fx := newFixture()
	fee := decimal.RequireFromString("-0.01")
	svc := NewService(fx.store, decimal.NewFromInt(5))

	_, err := svc.Checkout(context.Background(), fx.user, Request{
		AddressID:     fx.addrID,
		PaymentMethod: MethodCOD,
		ShippingFee:   &fee,
	})
	require.ErrorIs(t, err, ErrNegativeShippingFee)
	assert.Nil(t, fx.store.orders.created)
}

func TestCheckoutAddressIDAndInlineConflict(t *testing.T) {
	fx := newFixture()
	svc := NewService(fx.store, decimal.NewFromInt(5))

	_, err := svc.Checkout(context.Background(), fx.user, Request{
		AddressID: fx.addrID,
		Address: &address.Address{
			Name: "B", Phone: "2", FullAddress: "y", Country: "TR", District: "Besiktas",
		},
		PaymentMethod: MethodCOD,
	})
	require.ErrorIs(t, err, ErrAddressConflict)
	assert.Nil(t, fx.store.orders.created)
}

func TestCheckoutCouponRejectionAbortsOrder(t *testing.T) {
	fx := newFixture()
	max := 1
	c := percentCoupon("SAVE10", 10)
	c.MaxUses = &max
	fx.store.coupons.coupon = c
	fx.store.coupons.uses = 1
	svc := NewService(fx.store, decimal.NewFromInt(5))

	_, err := svc.Checkout(context.Background(), fx.user, Request{
		AddressID:  fx.addrID,
		CouponCode: "SAVE10",
	})
	var rejected *coupon.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, coupon.ReasonUsageLimit, rejected.Reason)
	assert.Nil(t, fx.store.orders.created)
}
