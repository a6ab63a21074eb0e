package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/almacart/commerce/internal/domain/cart"
)

const (
	cartColumns = `id, user_id, session_token, status, subtotal, created_at, updated_at`

	findActiveCartByUserSQL = `SELECT ` + cartColumns + `
		FROM carts WHERE user_id = $1 AND status = 'active'`

	findActiveCartBySessionSQL = `SELECT ` + cartColumns + `
		FROM carts WHERE session_token = $1 AND status = 'active'`

	createCartSQL = `INSERT INTO carts (id, user_id, session_token, status, subtotal)
		VALUES ($1, $2, $3, $4, $5)`

	listCartItemsSQL = `SELECT id, cart_id, variant_id, sku, product_name, quantity, unit_price, line_total
		FROM cart_items WHERE cart_id = $1 ORDER BY id`

	upsertCartItemSQL = `INSERT INTO cart_items (id, cart_id, variant_id, sku, product_name, quantity, unit_price, line_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (cart_id, variant_id) DO UPDATE
		SET quantity = EXCLUDED.quantity,
		    unit_price = EXCLUDED.unit_price,
		    line_total = EXCLUDED.line_total`

	deleteCartItemSQL = `DELETE FROM cart_items WHERE cart_id = $1 AND variant_id = $2`

	recomputeCartSubtotalSQL = `UPDATE carts
		SET subtotal = COALESCE((SELECT SUM(line_total) FROM cart_items WHERE cart_id = $1), 0),
		    updated_at = now()
		WHERE id = $1
		RETURNING subtotal`

	deleteCartItemsSQL = `DELETE FROM cart_items WHERE cart_id = $1`
	deleteCartSQL      = `DELETE FROM carts WHERE id = $1`

	setCartStatusSQL = `UPDATE carts SET status = $2, updated_at = now() WHERE id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	q querier
}

// NewCartRepository returns a CartRepository over the given querier.
func NewCartRepository(q querier) *CartRepository {
	return &CartRepository{q: q}
}

// FindActiveByUser returns the user's active cart or cart.ErrNotFound.
func (r *CartRepository) FindActiveByUser(ctx context.Context, userID uuid.UUID) (*cart.Cart, error) {
	return r.findActive(ctx, findActiveCartByUserSQL, userID)
}

// FindActiveBySession returns the session's active cart or cart.ErrNotFound.
func (r *CartRepository) FindActiveBySession(ctx context.Context, token string) (*cart.Cart, error) {
	return r.findActive(ctx, findActiveCartBySessionSQL, token)
}

func (r *CartRepository) findActive(ctx context.Context, sql string, owner any) (*cart.Cart, error) {
	rows, err := r.q.Query(ctx, sql, owner)
	if err != nil {
		return nil, fmt.Errorf("finding active cart: %w", err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCart)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("finding active cart: %w", err)
	}
	return &c, nil
}

// Create persists a new cart. The partial unique indexes on carts reject a
// second active cart for the same owner.
func (r *CartRepository) Create(ctx context.Context, c *cart.Cart) error {
	_, err := r.q.Exec(ctx, createCartSQL,
		c.ID, nullUUID(c.UserID), nullString(c.SessionToken), c.Status, c.Subtotal,
	)
	if err != nil {
		return fmt.Errorf("creating cart %q: %w", c.ID, err)
	}
	return nil
}

// Items returns the cart's lines ordered by id.
func (r *CartRepository) Items(ctx context.Context, cartID uuid.UUID) ([]cart.Item, error) {
	rows, err := r.q.Query(ctx, listCartItemsSQL, cartID)
	if err != nil {
		return nil, fmt.Errorf("listing cart items: %w", err)
	}
	return pgx.CollectRows(rows, scanCartItem)
}

// UpsertItem inserts the line or overwrites quantity, unit price, and line
// total when a line for the same variant already exists.
func (r *CartRepository) UpsertItem(ctx context.Context, it *cart.Item) error {
	_, err := r.q.Exec(ctx, upsertCartItemSQL,
		it.ID, it.CartID, it.VariantID, it.SKU, it.ProductName,
		it.Quantity, it.UnitPrice, it.LineTotal,
	)
	if err != nil {
		return fmt.Errorf("upserting cart item %q: %w", it.SKU, err)
	}
	return nil
}

// DeleteItem removes one line from the cart.
func (r *CartRepository) DeleteItem(ctx context.Context, cartID, variantID uuid.UUID) error {
	_, err := r.q.Exec(ctx, deleteCartItemSQL, cartID, variantID)
	if err != nil {
		return fmt.Errorf("deleting cart item: %w", err)
	}
	return nil
}

// RecomputeSubtotal sums the cart's line totals in SQL and writes the result
// back.
func (r *CartRepository) RecomputeSubtotal(ctx context.Context, cartID uuid.UUID) (decimal.Decimal, error) {
	var subtotal decimal.Decimal
	err := r.q.QueryRow(ctx, recomputeCartSubtotalSQL, cartID).Scan(&subtotal)
	if err != nil {
		return decimal.Zero, fmt.Errorf("recomputing cart subtotal: %w", err)
	}
	return subtotal, nil
}

// ApplyMerge replaces the user cart's lines with the merged set, removes the
// guest cart, and recomputes the subtotal. Callers run it inside a
// transaction through the store.
func (r *CartRepository) ApplyMerge(ctx context.Context, userCartID, guestCartID uuid.UUID, merged []cart.Item) error {
	if _, err := r.q.Exec(ctx, deleteCartItemsSQL, userCartID); err != nil {
		return fmt.Errorf("clearing user cart: %w", err)
	}
	for i := range merged {
		it := merged[i]
		it.CartID = userCartID
		if err := r.UpsertItem(ctx, &it); err != nil {
			return err
		}
	}
	if _, err := r.q.Exec(ctx, deleteCartSQL, guestCartID); err != nil {
		return fmt.Errorf("deleting guest cart: %w", err)
	}
	if _, err := r.RecomputeSubtotal(ctx, userCartID); err != nil {
		return err
	}
	return nil
}

// SetStatus moves the cart between active, ordered, and abandoned.
func (r *CartRepository) SetStatus(ctx context.Context, cartID uuid.UUID, status cart.Status) error {
	_, err := r.q.Exec(ctx, setCartStatusSQL, cartID, status)
	if err != nil {
		return fmt.Errorf("setting cart status: %w", err)
	}
	return nil
}

func scanCart(row pgx.CollectableRow) (cart.Cart, error) {
	var (
		c       cart.Cart
		userID  *uuid.UUID
		session *string
	)
	err := row.Scan(&c.ID, &userID, &session, &c.Status, &c.Subtotal, &c.CreatedAt, &c.UpdatedAt)
	if userID != nil {
		c.UserID = *userID
	}
	if session != nil {
		c.SessionToken = *session
	}
	return c, err
}

func scanCartItem(row pgx.CollectableRow) (cart.Item, error) {
	var it cart.Item
	err := row.Scan(&it.ID, &it.CartID, &it.VariantID, &it.SKU, &it.ProductName,
		&it.Quantity, &it.UnitPrice, &it.LineTotal)
	return it, err
}

// nullUUID maps uuid.Nil to SQL NULL.
func nullUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// nullString maps "" to SQL NULL.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
