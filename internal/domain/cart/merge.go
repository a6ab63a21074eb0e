package cart

import "github.com/shopspring/decimal"

func decimalFromInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}

// MergeItems reconciles a guest cart's lines into a user cart's lines:
// quantities of matching variants are summed, lines unique to either side are
// kept. The user cart's snapshotted unit price wins for matching variants.
// The result is a fresh slice; neither input is mutated.
func MergeItems(user, guest []Item) []Item {
	merged := make([]Item, len(user))
	index := make(map[[16]byte]int, len(user))
	for i, it := range user {
		merged[i] = it
		index[it.VariantID] = i
	}

	for _, g := range guest {
		i, ok := index[g.VariantID]
		if !ok {
			merged = append(merged, g)
			index[g.VariantID] = len(merged) - 1
			continue
		}
		merged[i].Quantity += g.Quantity
		merged[i].LineTotal = merged[i].UnitPrice.Mul(decimalFromInt(merged[i].Quantity))
	}
	return merged
}
