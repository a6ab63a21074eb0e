// Package lifecycle drives order and payment status transitions and their
// ledger side effects. Every transition and its side effects run inside one
// transaction, so a failed ledger commit rolls the status change back too.
package lifecycle

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/almacart/commerce/internal/domain/inventory"
	"github.com/almacart/commerce/internal/domain/order"
	"github.com/almacart/commerce/internal/storage"
)

// Callback is an asynchronous payment-gateway status report. Raw is the
// opaque gateway payload, stored as received.
type Callback struct {
	OrderID       uuid.UUID
	Status        order.PaymentState
	TransactionID string
	Raw           []byte
}

// ErrUnknownPaymentState rejects callbacks with a state the engine does not
// model.
var ErrUnknownPaymentState = errors.New("unknown payment state")

// Service is the order lifecycle state machine.
type Service struct {
	store storage.Store
	now   func() time.Time
}

// NewService creates a lifecycle Service.
func NewService(store storage.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// UpdateStatus moves an order's fulfillment status. Side effects fire exactly
// once per transition: CANCELLED releases outstanding reservations (a no-op
// when nothing was reserved), SHIPPED stamps shipped_at. status_changed_at is
// stamped on every transition by the repository.
func (s *Service) UpdateStatus(ctx context.Context, orderID uuid.UUID, to order.Status) (*order.Order, error) {
	var updated *order.Order
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		o, err := tx.Orders().GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.CanTransition(o.Status, to) {
			return &order.InvalidTransitionError{From: string(o.Status), To: string(to)}
		}

		var shippedAt *time.Time
		if to == order.StatusShipped {
			t := s.now()
			shippedAt = &t
		}
		if err := tx.Orders().UpdateStatus(ctx, orderID, to, shippedAt); err != nil {
			return errors.Wrap(err, "update order status")
		}

		if to == order.StatusCancelled {
			if err := tx.Ledger().Release(ctx, orderID); err != nil {
				return errors.Wrap(err, "release reserved stock")
			}
		}

		o.Status = to
		o.StatusChangedAt = s.now()
		o.ShippedAt = shippedAt
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// HandlePaymentCallback applies a gateway status report to the order's
// payment and, through the cross-trigger rules, to the order itself:
//
//   - success: commit the sale in the ledger, then payment_status=paid and
//     status=confirmed. If the commit fails (stock vanished between
//     reservation and confirmation) the whole transition rolls back.
//   - failed: payment_status=failed.
//   - refunded: payment_status=refunded, and the fulfillment status moves to
//     refunded when its state machine allows it.
//
// A callback repeating the payment record's current state is a no-op, so
// gateway retries never fire side effects twice.
func (s *Service) HandlePaymentCallback(ctx context.Context, cb Callback) (*order.Order, error) {
	var updated *order.Order
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		o, err := tx.Orders().GetByID(ctx, cb.OrderID)
		if err != nil {
			return err
		}
		p, err := tx.Orders().PaymentByOrder(ctx, cb.OrderID)
		if err != nil {
			return err
		}

		if p.Status == cb.Status {
			updated = o
			return nil
		}

		switch cb.Status {
		case order.PaymentSuccess:
			err = s.applySuccess(ctx, tx, o)
		case order.PaymentStateFailed:
			err = s.applyPaymentStatus(ctx, tx, o, order.PaymentFailed)
		case order.PaymentStateRefunded:
			err = s.applyRefund(ctx, tx, o)
		default:
			err = errors.Wrapf(ErrUnknownPaymentState, "%q", cb.Status)
		}
		if err != nil {
			return err
		}

		p.Status = cb.Status
		if cb.TransactionID != "" {
			p.TransactionID = cb.TransactionID
		}
		if len(cb.Raw) > 0 {
			p.RawResponse = cb.Raw
		}
		if err := tx.Orders().UpdatePayment(ctx, p); err != nil {
			return errors.Wrap(err, "update payment record")
		}

		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) applySuccess(ctx context.Context, tx storage.Tx, o *order.Order) error {
	if !order.CanTransitionPayment(o.PaymentStatus, order.PaymentPaid) {
		return &order.InvalidTransitionError{From: string(o.PaymentStatus), To: string(order.PaymentPaid)}
	}

	items, err := tx.Orders().ItemsByOrder(ctx, o.ID)
	if err != nil {
		return errors.Wrap(err, "load order items")
	}
	lines := make([]inventory.Line, len(items))
	for i, it := range items {
		lines[i] = inventory.Line{VariantID: it.VariantID, SKU: it.SKU, Quantity: it.Quantity}
	}

	// Commit before flipping statuses: an insufficient-stock error here must
	// abort the transition instead of marking the order paid without stock.
	if err := tx.Ledger().CommitSale(ctx, o.ID, lines); err != nil {
		return err
	}

	if err := tx.Orders().UpdatePaymentStatus(ctx, o.ID, order.PaymentPaid); err != nil {
		return errors.Wrap(err, "update payment status")
	}
	o.PaymentStatus = order.PaymentPaid

	if order.CanTransition(o.Status, order.StatusConfirmed) {
		if err := tx.Orders().UpdateStatus(ctx, o.ID, order.StatusConfirmed, nil); err != nil {
			return errors.Wrap(err, "confirm order")
		}
		o.Status = order.StatusConfirmed
	}
	return nil
}

func (s *Service) applyPaymentStatus(ctx context.Context, tx storage.Tx, o *order.Order, to order.PaymentStatus) error {
	if !order.CanTransitionPayment(o.PaymentStatus, to) {
		return &order.InvalidTransitionError{From: string(o.PaymentStatus), To: string(to)}
	}
	if err := tx.Orders().UpdatePaymentStatus(ctx, o.ID, to); err != nil {
		return errors.Wrap(err, "update payment status")
	}
	o.PaymentStatus = to
	return nil
}

func (s *Service) applyRefund(ctx context.Context, tx storage.Tx, o *order.Order) error {
	if err := s.applyPaymentStatus(ctx, tx, o, order.PaymentRefunded); err != nil {
		return err
	}
	if order.CanTransition(o.Status, order.StatusRefunded) {
		if err := tx.Orders().UpdateStatus(ctx, o.ID, order.StatusRefunded, nil); err != nil {
			return errors.Wrap(err, "set order refunded")
		}
		o.Status = order.StatusRefunded
	}
	return nil
}
