// Package storage defines the transactional boundary shared by the checkout
// and lifecycle services: one Tx view over every repository, and a Store that
// can run a function atomically against that view.
package storage

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/almacart/commerce/internal/domain/address"
	"github.com/almacart/commerce/internal/domain/cart"
	"github.com/almacart/commerce/internal/domain/catalog"
	"github.com/almacart/commerce/internal/domain/coupon"
	"github.com/almacart/commerce/internal/domain/inventory"
	"github.com/almacart/commerce/internal/domain/order"
)

// ErrContention is returned when a transaction could not acquire its row
// locks in time. Callers may retry the whole operation.
var ErrContention = errors.New("storage contention, retry")

// Tx is the repository view of one atomic scope.
type Tx interface {
	Carts() cart.Repository
	Variants() catalog.Repository
	Coupons() coupon.Repository
	Orders() order.Repository
	Ledger() inventory.Ledger
	Addresses() address.Repository
}

// Store is the top-level storage handle. Outside InTx its repositories run
// each call in its own implicit scope; InTx runs fn inside a single
// transaction and rolls everything back when fn fails.
type Store interface {
	Tx
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
