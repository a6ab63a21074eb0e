package cart

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(variant uuid.UUID, qty int, price string) Item {
	p := decimal.RequireFromString(price)
	return Item{
		ID:        uuid.New(),
		VariantID: variant,
		Quantity:  qty,
		UnitPrice: p,
		LineTotal: p.Mul(decimal.NewFromInt(int64(qty))),
	}
}

func TestMergeItems(t *testing.T) {
	v1 := uuid.New()
	v2 := uuid.New()
	v3 := uuid.New()

	t.Run("disjoint carts concatenate", func(t *testing.T) {
		user := []Item{item(v1, 1, "10.00")}
		guest := []Item{item(v2, 2, "5.00")}

		merged := MergeItems(user, guest)

		require.Len(t, merged, 2)
		assert.Equal(t, v1, merged[0].VariantID)
		assert.Equal(t, v2, merged[1].VariantID)
	})

	t.Run("overlapping variant sums quantities", func(t *testing.T) {
		user := []Item{item(v1, 2, "10.00")}
		guest := []Item{item(v1, 3, "12.00"), item(v3, 1, "4.00")}

		merged := MergeItems(user, guest)

		require.Len(t, merged, 2)
		assert.Equal(t, 5, merged[0].Quantity)
		// user cart's price snapshot wins
		assert.True(t, decimal.RequireFromString("10.00").Equal(merged[0].UnitPrice))
		assert.True(t, decimal.RequireFromString("50.00").Equal(merged[0].LineTotal))
	})

	t.Run("empty guest cart is identity", func(t *testing.T) {
		user := []Item{item(v1, 2, "10.00"), item(v2, 1, "3.00")}

		merged := MergeItems(user, nil)

		require.Len(t, merged, 2)
		assert.Equal(t, user[0].Quantity, merged[0].Quantity)
	})

	t.Run("empty user cart takes guest lines", func(t *testing.T) {
		guest := []Item{item(v1, 2, "10.00")}

		merged := MergeItems(nil, guest)

		require.Len(t, merged, 1)
		assert.Equal(t, 2, merged[0].Quantity)
	})

	t.Run("inputs are not mutated", func(t *testing.T) {
		user := []Item{item(v1, 2, "10.00")}
		guest := []Item{item(v1, 3, "10.00")}

		_ = MergeItems(user, guest)

		assert.Equal(t, 2, user[0].Quantity)
		assert.Equal(t, 3, guest[0].Quantity)
	})
}
