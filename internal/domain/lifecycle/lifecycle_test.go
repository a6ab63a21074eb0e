package lifecycle

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
	"github.com/almacart/commerce/internal/domain/inventory"
	"github.com/almacart/commerce/internal/domain/order"
	"github.com/almacart/commerce/internal/storage"
)

type fakeOrderRepo struct {
	order.Repository

	order   *order.Order
	payment *order.Payment
	items   []order.Item

	statusUpdates  []order.Status
	shippedAt      *time.Time
	paymentUpdates []order.PaymentStatus
	savedPayment   *order.Payment
}

func (f *fakeOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	if f.order == nil || f.order.ID != id {
		return nil, order.ErrNotFound
	}
	cp := *f.order
	return &cp, nil
}

func (f *fakeOrderRepo) PaymentByOrder(_ context.Context, orderID uuid.UUID) (*order.Payment, error) {
	if f.payment == nil || f.payment.OrderID != orderID {
		return nil, order.ErrNotFound
	}
	cp := *f.payment
	return &cp, nil
}

func (f *fakeOrderRepo) ItemsByOrder(_ context.Context, _ uuid.UUID) ([]order.Item, error) {
	return f.items, nil
}

func (f *fakeOrderRepo) UpdateStatus(_ context.Context, _ uuid.UUID, status order.Status, shippedAt *time.Time) error {
	f.statusUpdates = append(f.statusUpdates, status)
	if shippedAt != nil {
		f.shippedAt = shippedAt
	}
	return nil
}

func (f *fakeOrderRepo) UpdatePaymentStatus(_ context.Context, _ uuid.UUID, ps order.PaymentStatus) error {
	f.paymentUpdates = append(f.paymentUpdates, ps)
	return nil
}

func (f *fakeOrderRepo) UpdatePayment(_ context.Context, p *order.Payment) error {
	cp := *p
	f.savedPayment = &cp
	return nil
}

type fakeLedger struct {
	inventory.Ledger

	released  []uuid.UUID
	committed []uuid.UUID
	commitErr error
}

func (f *fakeLedger) Release(_ context.Context, orderID uuid.UUID) error {
	f.released = append(f.released, orderID)
	return nil
}

func (f *fakeLedger) CommitSale(_ context.Context, orderID uuid.UUID, _ []inventory.Line) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = append(f.committed, orderID)
	return nil
}

type fakeTx struct {
	orders *fakeOrderRepo
	ledger *fakeLedger
}

func (t *fakeTx) Carts() cart.Repository        { return nil }
func (t *fakeTx) Variants() catalog.Repository  { return nil }
func (t *fakeTx) Coupons() coupon.Repository    { return nil }
func (t *fakeTx) Orders() order.Repository      { return t.orders }
func (t *fakeTx) Ledger() inventory.Ledger      { return t.ledger }
func (t *fakeTx) Addresses() address.Repository { return nil }

type fakeStore struct {
	*fakeTx
}

func (s *fakeStore) InTx(_ context.Context, fn func(tx storage.Tx) error) error {
	return fn(s.fakeTx)
}

func newFixture(status order.Status, ps order.PaymentStatus, state order.PaymentState) (*fakeStore, *order.Order) {
	orderID := uuid.New()
	o := &order.Order{ID: orderID, Status: status, PaymentStatus: ps}
	store := &fakeStore{fakeTx: &fakeTx{
		orders: &fakeOrderRepo{
			order:   o,
			payment: &order.Payment{ID: uuid.New(), OrderID: orderID, Status: state},
			items: []order.Item{
				{OrderID: orderID, VariantID: uuid.New(), SKU: "SHIRT-M", Quantity: 2, UnitPrice: decimal.NewFromInt(12)},
			},
		},
		ledger: &fakeLedger{},
	}}
	return store, o
}

func TestUpdateStatusShippedStampsTime(t *testing.T) {
	store, o := newFixture(order.StatusProcessing, order.PaymentPaid, order.PaymentSuccess)
	svc := NewService(store)
	shipped := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return shipped }

	got, err := svc.UpdateStatus(context.Background(), o.ID, order.StatusShipped)
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, got.Status)
	require.NotNil(t, store.orders.shippedAt)
	assert.Equal(t, shipped, *store.orders.shippedAt)
	assert.Empty(t, store.ledger.released)
}

func TestUpdateStatusCancelReleasesStock(t *testing.T) {
	store, o := newFixture(order.StatusPending, order.PaymentPending, order.PaymentInitiated)
	svc := NewService(store)

	got, err := svc.UpdateStatus(context.Background(), o.ID, order.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)
	assert.Equal(t, []uuid.UUID{o.ID}, store.ledger.released)
}

func TestUpdateStatusRejectsInvalidTransition(t *testing.T) {
	store, o := newFixture(order.StatusDelivered, order.PaymentPaid, order.PaymentSuccess)
	svc := NewService(store)

	_, err := svc.UpdateStatus(context.Background(), o.ID, order.StatusPending)
	var invalid *order.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Empty(t, store.orders.statusUpdates)
	assert.Empty(t, store.ledger.released)
}

func TestPaymentCallbackSuccessCommitsAndConfirms(t *testing.T) {
	store, o := newFixture(order.StatusPending, order.PaymentPending, order.PaymentInitiated)
	svc := NewService(store)

	got, err := svc.HandlePaymentCallback(context.Background(), Callback{
		OrderID:       o.ID,
		Status:        order.PaymentSuccess,
		TransactionID: "txn-42",
		Raw:           []byte(`{"result":"ok"}`),
	})
	require.NoError(t, err)

	assert.Equal(t, order.StatusConfirmed, got.Status)
	assert.Equal(t, order.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, []uuid.UUID{o.ID}, store.ledger.committed)
	require.NotNil(t, store.orders.savedPayment)
	assert.Equal(t, order.PaymentSuccess, store.orders.savedPayment.Status)
	assert.Equal(t, "txn-42", store.orders.savedPayment.TransactionID)
}

func TestPaymentCallbackSuccessAbortsOnStockShortfall(t *testing.T) {
	store, o := newFixture(order.StatusPending, order.PaymentPending, order.PaymentInitiated)
	store.ledger.commitErr = &inventory.InsufficientStockError{SKU: "SHIRT-M", Available: 0, Requested: 2}
	svc := NewService(store)

	_, err := svc.HandlePaymentCallback(context.Background(), Callback{OrderID: o.ID, Status: order.PaymentSuccess})
	var short *inventory.InsufficientStockError
	require.ErrorAs(t, err, &short)

	assert.Empty(t, store.orders.paymentUpdates)
	assert.Empty(t, store.orders.statusUpdates)
}

func TestPaymentCallbackRepeatIsNoop(t *testing.T) {
	store, o := newFixture(order.StatusConfirmed, order.PaymentPaid, order.PaymentSuccess)
	svc := NewService(store)

	got, err := svc.HandlePaymentCallback(context.Background(), Callback{OrderID: o.ID, Status: order.PaymentSuccess})
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, got.Status)
	assert.Empty(t, store.ledger.committed)
	assert.Nil(t, store.orders.savedPayment)
}

func TestPaymentCallbackFailed(t *testing.T) {
	store, o := newFixture(order.StatusPending, order.PaymentPending, order.PaymentInitiated)
	svc := NewService(store)

	got, err := svc.HandlePaymentCallback(context.Background(), Callback{OrderID: o.ID, Status: order.PaymentStateFailed})
	require.NoError(t, err)
	assert.Equal(t, order.PaymentFailed, got.PaymentStatus)
	assert.Equal(t, order.StatusPending, got.Status)
	assert.Empty(t, store.ledger.committed)
}

func TestPaymentCallbackRefunded(t *testing.T) {
	store, o := newFixture(order.StatusDelivered, order.PaymentPaid, order.PaymentSuccess)
	store.orders.payment.Status = order.PaymentSuccess
	svc := NewService(store)

	got, err := svc.HandlePaymentCallback(context.Background(), Callback{OrderID: o.ID, Status: order.PaymentStateRefunded})
	require.NoError(t, err)
	assert.Equal(t, order.PaymentRefunded, got.PaymentStatus)
	assert.Equal(t, order.StatusRefunded, got.Status)
}

func TestPaymentCallbackUnknownState(t *testing.T) {
	store, o := newFixture(order.StatusPending, order.PaymentPending, order.PaymentInitiated)
	svc := NewService(store)

	_, err := svc.HandlePaymentCallback(context.Background(), Callback{OrderID: o.ID, Status: order.PaymentState("hold")})
	require.ErrorIs(t, err, ErrUnknownPaymentState)
}

func TestPaymentCallbackUnknownOrder(t *testing.T) {
	store, _ := newFixture(order.StatusPending, order.PaymentPending, order.PaymentInitiated)
	svc := NewService(store)

	_, err := svc.HandlePaymentCallback(context.Background(), Callback{OrderID: uuid.New(), Status: order.PaymentSuccess})
	require.ErrorIs(t, err, order.ErrNotFound)
}
