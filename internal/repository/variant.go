package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/almacart/commerce/internal/domain/catalog"
)

const (
	variantColumns = `id, sku, product_name, name, price, on_sale, discount_type, discount_value, active`

	getVariantByIDSQL  = `SELECT ` + variantColumns + ` FROM variants WHERE id = $1`
	getVariantBySKUSQL = `SELECT ` + variantColumns + ` FROM variants WHERE sku = $1`
	getVariantsByIDsQL = `SELECT ` + variantColumns + ` FROM variants WHERE id = ANY($1)`
)

var _ catalog.Repository = (*VariantRepository)(nil)

// VariantRepository implements catalog.Repository backed by PostgreSQL.
type VariantRepository struct {
	q querier
}

// NewVariantRepository returns a VariantRepository over the given querier.
func NewVariantRepository(q querier) *VariantRepository {
	return &VariantRepository{q: q}
}

// GetByID returns a single variant by its identifier.
func (r *VariantRepository) GetByID(ctx context.Context, id uuid.UUID) (*catalog.Variant, error) {
	rows, err := r.q.Query(ctx, getVariantByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting variant %q: %w", id, err)
	}

	v, err := pgx.CollectExactlyOneRow(rows, scanVariant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrVariantNotFound
		}
		return nil, fmt.Errorf("getting variant %q: %w", id, err)
	}
	return &v, nil
}

// GetBySKU returns a single variant by its SKU.
func (r *VariantRepository) GetBySKU(ctx context.Context, sku string) (*catalog.Variant, error) {
	rows, err := r.q.Query(ctx, getVariantBySKUSQL, sku)
	if err != nil {
		return nil, fmt.Errorf("getting variant by sku %q: %w", sku, err)
	}

	v, err := pgx.CollectExactlyOneRow(rows, scanVariant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrVariantNotFound
		}
		return nil, fmt.Errorf("getting variant by sku %q: %w", sku, err)
	}
	return &v, nil
}

// GetByIDs returns variants matching any of the given IDs.
func (r *VariantRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]catalog.Variant, error) {
	rows, err := r.q.Query(ctx, getVariantsByIDsQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting variants by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanVariant)
}

func scanVariant(row pgx.CollectableRow) (catalog.Variant, error) {
	var (
		v            catalog.Variant
		discountType string
	)
	err := row.Scan(
		&v.ID, &v.SKU, &v.ProductName, &v.Name, &v.Price,
		&v.OnSale, &discountType, &v.DiscountValue, &v.Active,
	)
	v.DiscountType = catalog.DiscountType(discountType)
	return v, err
}
