// Package catalog exposes the narrow read-only view of the product catalog
// that the order engine needs: purchasable variants and their current price.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrVariantNotFound is returned when a requested variant does not exist.
var ErrVariantNotFound = errors.New("variant not found")

// DiscountType enumerates how an on-sale variant's discount is expressed.
type DiscountType string

const (
	DiscountAmount  DiscountType = "amount"
	DiscountPercent DiscountType = "percent"
)

// Variant is a purchasable product variant. Price is the list price;
// FinalPrice applies the sale discount when the variant is on sale.
type Variant struct {
	ID            uuid.UUID
	SKU           string
	ProductName   string
	Name          string
	Price         decimal.Decimal
	OnSale        bool
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	Active        bool
}

var hundred = decimal.NewFromInt(100)

// FinalPrice returns the effective selling price: the list price reduced by
// the sale discount, never below zero.
func (v Variant) FinalPrice() decimal.Decimal {
	if !v.OnSale || v.DiscountValue.IsZero() {
		return v.Price
	}

	var p decimal.Decimal
	switch v.DiscountType {
	case DiscountPercent:
		p = v.Price.Mul(hundred.Sub(v.DiscountValue)).Div(hundred)
	default:
		p = v.Price.Sub(v.DiscountValue)
	}
	if p.IsNegative() {
		return decimal.Zero
	}
	return p.Round(2)
}

// Repository defines catalog lookups used by the cart and checkout flows.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Variant, error)
	GetBySKU(ctx context.Context, sku string) (*Variant, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]Variant, error)
}
