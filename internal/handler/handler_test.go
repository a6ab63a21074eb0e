package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/almacart/commerce/internal/domain/address"
	"github.com/almacart/commerce/internal/domain/cart"
	"github.com/almacart/commerce/internal/domain/catalog"
	"github.com/almacart/commerce/internal/domain/checkout"
	"github.com/almacart/commerce/internal/domain/coupon"
	"github.com/almacart/commerce/internal/domain/inventory"
	"github.com/almacart/commerce/internal/domain/lifecycle"
	"github.com/almacart/commerce/internal/domain/order"
	"github.com/almacart/commerce/internal/storage"
)

type memCartRepo struct {
	carts map[uuid.UUID]*cart.Cart
	items map[uuid.UUID][]cart.Item
}

func newMemCartRepo() *memCartRepo {
	return &memCartRepo{
		carts: make(map[uuid.UUID]*cart.Cart),
		items: make(map[uuid.UUID][]cart.Item),
	}
}

func (m *memCartRepo) FindActiveByUser(_ context.Context, userID uuid.UUID) (*cart.Cart, error) {
	for _, c := range m.carts {
		if c.UserID == userID && c.Status == cart.StatusActive {
			return c, nil
		}
	}
	return nil, cart.ErrNotFound
}

func (m *memCartRepo) FindActiveBySession(_ context.Context, token string) (*cart.Cart, error) {
	for _, c := range m.carts {
		if c.SessionToken == token && c.Status == cart.StatusActive {
			return c, nil
		}
	}
	return nil, cart.ErrNotFound
}

func (m *memCartRepo) Create(_ context.Context, c *cart.Cart) error {
	cp := *c
	m.carts[c.ID] = &cp
	return nil
}

func (m *memCartRepo) Items(_ context.Context, cartID uuid.UUID) ([]cart.Item, error) {
	return m.items[cartID], nil
}

func (m *memCartRepo) UpsertItem(_ context.Context, it *cart.Item) error {
	items := m.items[it.CartID]
	for i := range items {
		if items[i].VariantID == it.VariantID {
			items[i] = *it
			return nil
		}
	}
	m.items[it.CartID] = append(items, *it)
	return nil
}

func (m *memCartRepo) DeleteItem(_ context.Context, cartID, variantID uuid.UUID) error {
	items := m.items[cartID]
	for i := range items {
		if items[i].VariantID == variantID {
			m.items[cartID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memCartRepo) RecomputeSubtotal(_ context.Context, cartID uuid.UUID) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, it := range m.items[cartID] {
		sum = sum.Add(it.LineTotal)
	}
	if c, ok := m.carts[cartID]; ok {
		c.Subtotal = sum
	}
	return sum, nil
}

func (m *memCartRepo) ApplyMerge(_ context.Context, userCartID, guestCartID uuid.UUID, merged []cart.Item) error {
	for i := range merged {
		merged[i].CartID = userCartID
	}
	m.items[userCartID] = merged
	delete(m.carts, guestCartID)
	delete(m.items, guestCartID)
	_, err := m.RecomputeSubtotal(context.Background(), userCartID)
	return err
}

func (m *memCartRepo) SetStatus(_ context.Context, cartID uuid.UUID, status cart.Status) error {
	if c, ok := m.carts[cartID]; ok {
		c.Status = status
	}
	return nil
}

type memVariantRepo struct {
	variants map[uuid.UUID]catalog.Variant
}

func (m *memVariantRepo) GetByID(_ context.Context, id uuid.UUID) (*catalog.Variant, error) {
	v, ok := m.variants[id]
	if !ok {
		return nil, catalog.ErrVariantNotFound
	}
	return &v, nil
}

func (m *memVariantRepo) GetBySKU(_ context.Context, sku string) (*catalog.Variant, error) {
	for _, v := range m.variants {
		if v.SKU == sku {
			return &v, nil
		}
	}
	return nil, catalog.ErrVariantNotFound
}

func (m *memVariantRepo) GetByIDs(_ context.Context, ids []uuid.UUID) ([]catalog.Variant, error) {
	out := make([]catalog.Variant, 0, len(ids))
	for _, id := range ids {
		if v, ok := m.variants[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

type memCouponRepo struct {
	coupon.Repository
	byCode map[string]*coupon.Coupon
}

func (m *memCouponRepo) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := m.byCode[strings.ToUpper(code)]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return c, nil
}

func (m *memCouponRepo) LockByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return m.FindByCode(ctx, code)
}

func (m *memCouponRepo) CountUses(_ context.Context, _ uuid.UUID) (int, error)        { return 0, nil }
func (m *memCouponRepo) CountUserUses(_ context.Context, _, _ uuid.UUID) (int, error) { return 0, nil }
func (m *memCouponRepo) RecordUsage(_ context.Context, _ *coupon.Usage) error         { return nil }

type memLedger struct {
	inventory.Ledger
	available map[uuid.UUID]int
}

func (m *memLedger) Available(_ context.Context, variantID uuid.UUID) (int, error) {
	n, ok := m.available[variantID]
	if !ok {
		return 0, inventory.ErrNotTracked
	}
	return n, nil
}

func (m *memLedger) Reserve(_ context.Context, _ uuid.UUID, _ []inventory.Line) error { return nil }
func (m *memLedger) Release(_ context.Context, _ uuid.UUID) error                     { return nil }

func (m *memLedger) Adjust(_ context.Context, variantID uuid.UUID, delta int, _ string) error {
	m.available[variantID] += delta
	return nil
}
func (m *memLedger) CommitSale(_ context.Context, _ uuid.UUID, _ []inventory.Line) error {
	return nil
}

type memOrderRepo struct {
	order.Repository
}

type memAddressRepo struct {
	address.Repository
}

type memTx struct {
	carts     *memCartRepo
	variants  *memVariantRepo
	coupons   *memCouponRepo
	ledger    *memLedger
	orders    *memOrderRepo
	addresses *memAddressRepo
}

func (t *memTx) Carts() cart.Repository        { return t.carts }
func (t *memTx) Variants() catalog.Repository  { return t.variants }
func (t *memTx) Coupons() coupon.Repository    { return t.coupons }
func (t *memTx) Orders() order.Repository      { return t.orders }
func (t *memTx) Ledger() inventory.Ledger      { return t.ledger }
func (t *memTx) Addresses() address.Repository { return t.addresses }

type memStore struct {
	*memTx
}

func (s *memStore) InTx(_ context.Context, fn func(tx storage.Tx) error) error {
	return fn(s.memTx)
}

type testEnv struct {
	handler  http.Handler
	carts    *memCartRepo
	variants *memVariantRepo
	shirtID  uuid.UUID
}

func newTestEnv() *testEnv {
	shirtID := uuid.New()
	carts := newMemCartRepo()
	variants := &memVariantRepo{variants: map[uuid.UUID]catalog.Variant{
		shirtID: {ID: shirtID, SKU: "SHIRT-M", ProductName: "Shirt", Price: decimal.NewFromInt(10), Active: true},
	}}
	coupons := &memCouponRepo{byCode: map[string]*coupon.Coupon{}}
	ledger := &memLedger{available: map[uuid.UUID]int{shirtID: 7}}
	store := &memStore{memTx: &memTx{
		carts:     carts,
		variants:  variants,
		coupons:   coupons,
		ledger:    ledger,
		orders:    &memOrderRepo{},
		addresses: &memAddressRepo{},
	}}

	h := NewHandler(
		cart.NewService(carts, variants),
		checkout.NewService(store, decimal.NewFromInt(5)),
		lifecycle.NewService(store),
		store.orders,
		coupon.NewEvaluator(coupons),
		ledger,
	)
	return &testEnv{handler: h.Routes(), carts: carts, variants: variants, shirtID: shirtID}
}

func doRequest(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCartRequiresIdentity(t *testing.T) {
	env := newTestEnv()
	rec := doRequest(t, env.handler, http.MethodGet, "/api/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuestCartAddAndGet(t *testing.T) {
	env := newTestEnv()
	guest := map[string]string{"X-Session-Token": "sess-1"}

	rec := doRequest(t, env.handler, http.MethodPost, "/api/cart/items",
		`{"variant_id":"`+env.shirtID.String()+`","quantity":2}`, guest)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	item := decodeBody(t, rec)
	assert.Equal(t, "SHIRT-M", item["sku"])
	assert.Equal(t, float64(2), item["quantity"])
	assert.Equal(t, "20.00", item["line_total"])

	rec = doRequest(t, env.handler, http.MethodGet, "/api/cart", "", guest)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "20.00", body["subtotal"])
	assert.Len(t, body["items"], 1)
}

func TestAddCartItemInvalidQuantity(t *testing.T) {
	env := newTestEnv()
	rec := doRequest(t, env.handler, http.MethodPost, "/api/cart/items",
		`{"variant_id":"`+env.shirtID.String()+`","quantity":0}`,
		map[string]string{"X-Session-Token": "sess-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddCartItemUnknownVariant(t *testing.T) {
	env := newTestEnv()
	rec := doRequest(t, env.handler, http.MethodPost, "/api/cart/items",
		`{"variant_id":"`+uuid.NewString()+`","quantity":1}`,
		map[string]string{"X-Session-Token": "sess-1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateCartItemToZeroRemovesLine(t *testing.T) {
	env := newTestEnv()
	guest := map[string]string{"X-Session-Token": "sess-1"}

	doRequest(t, env.handler, http.MethodPost, "/api/cart/items",
		`{"variant_id":"`+env.shirtID.String()+`","quantity":2}`, guest)

	rec := doRequest(t, env.handler, http.MethodPut, "/api/cart/items/"+env.shirtID.String(),
		`{"quantity":0}`, guest)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, env.handler, http.MethodGet, "/api/cart", "", guest)
	body := decodeBody(t, rec)
	assert.Equal(t, "0.00", body["subtotal"])
	assert.Empty(t, body["items"])
}

func TestCheckoutEmptyCartRejected(t *testing.T) {
	env := newTestEnv()
	guest := map[string]string{"X-Session-Token": "sess-1"}
	doRequest(t, env.handler, http.MethodGet, "/api/cart", "", guest)

	rec := doRequest(t, env.handler, http.MethodPost, "/api/checkout",
		`{"address":{"name":"A","phone":"1","full_address":"x","country":"TR","district":"Kadikoy"}}`, guest)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateCouponRejectionIsOK(t *testing.T) {
	env := newTestEnv()
	rec := doRequest(t, env.handler, http.MethodPost, "/api/coupons/validate",
		`{"code":"NOPE","subtotal":"20"}`, map[string]string{"X-Session-Token": "sess-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, "not_found", body["reason"])
}

func TestVariantAvailability(t *testing.T) {
	env := newTestEnv()
	rec := doRequest(t, env.handler, http.MethodGet, "/api/variants/"+env.shirtID.String()+"/availability", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["tracked"])
	assert.Equal(t, float64(7), body["available"])
}

func TestVariantAvailabilityUntracked(t *testing.T) {
	env := newTestEnv()
	rec := doRequest(t, env.handler, http.MethodGet, "/api/variants/"+uuid.NewString()+"/availability", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, false, body["tracked"])
}

func TestAdjustStock(t *testing.T) {
	env := newTestEnv()
	rec := doRequest(t, env.handler, http.MethodPost, "/api/variants/"+env.shirtID.String()+"/adjust",
		`{"delta": 3, "note": "cycle count"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(10), body["available"])
}

func TestAdjustStockZeroDelta(t *testing.T) {
	env := newTestEnv()
	rec := doRequest(t, env.handler, http.MethodPost, "/api/variants/"+env.shirtID.String()+"/adjust",
		`{"delta": 0}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderListingRequiresUser(t *testing.T) {
	env := newTestEnv()
	rec := doRequest(t, env.handler, http.MethodGet, "/api/orders", "",
		map[string]string{"X-Session-Token": "sess-1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
