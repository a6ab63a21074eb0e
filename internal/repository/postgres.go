// Package repository implements the storage interfaces on PostgreSQL using
// pgx. Every repository runs against a querier, so the same code serves both
// pool-scoped reads and the checkout/lifecycle transactions.
package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/almacart/commerce/db"
	"github.com/almacart/commerce/internal/domain/address"
	"github.com/almacart/commerce/internal/domain/cart"
	"github.com/almacart/commerce/internal/domain/catalog"
	"github.com/almacart/commerce/internal/domain/coupon"
	"github.com/almacart/commerce/internal/domain/inventory"
	"github.com/almacart/commerce/internal/domain/order"
	"github.com/almacart/commerce/internal/storage"
)

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, db.Schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// CouponPolicy tunes how usage counts are derived from redemption history.
type CouponPolicy struct {
	// FreeSlotOnCancel excludes redemptions of cancelled orders from usage
	// counts, freeing their slot for someone else.
	FreeSlotOnCancel bool
}

var _ storage.Store = (*Store)(nil)

// Store bundles the PostgreSQL repositories behind one transactional
// boundary.
type Store struct {
	pool   *pgxpool.Pool
	policy CouponPolicy
	set
}

// set holds one repository instance per aggregate over a single querier.
type set struct {
	carts     *CartRepository
	variants  *VariantRepository
	coupons   *CouponRepository
	orders    *OrderRepository
	ledger    *StockLedger
	addresses *AddressRepository
}

func newSet(q querier, policy CouponPolicy) set {
	return set{
		carts:     NewCartRepository(q),
		variants:  NewVariantRepository(q),
		coupons:   NewCouponRepository(q, policy),
		orders:    NewOrderRepository(q),
		ledger:    NewStockLedger(q),
		addresses: NewAddressRepository(q),
	}
}

func (s set) Carts() cart.Repository        { return s.carts }
func (s set) Variants() catalog.Repository  { return s.variants }
func (s set) Coupons() coupon.Repository    { return s.coupons }
func (s set) Orders() order.Repository      { return s.orders }
func (s set) Ledger() inventory.Ledger      { return s.ledger }
func (s set) Addresses() address.Repository { return s.addresses }

// NewStore returns a Store that uses the given pool.
func NewStore(pool *pgxpool.Pool, policy CouponPolicy) *Store {
	return &Store{pool: pool, policy: policy, set: newSet(pool, policy)}
}

// lockNotAvailable is the SQLSTATE raised when lock_timeout expires.
const lockNotAvailable = "55P03"

// InTx runs fn inside a single transaction. A short lock_timeout bounds the
// time spent waiting on contended stock and coupon rows; when it expires the
// returned error matches storage.ErrContention so callers can retry.
func (s *Store) InTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SET LOCAL lock_timeout = '3s'`); err != nil {
			return fmt.Errorf("setting lock timeout: %w", err)
		}
		return fn(newSet(tx, s.policy))
	})

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == lockNotAvailable {
		return errors.Wrap(storage.ErrContention, pgErr.Message)
	}
	return err
}
