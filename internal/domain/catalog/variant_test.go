package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFinalPrice(t *testing.T) {
	tests := []struct {
		name    string
		variant Variant
		want    string
	}{
		{
			name:    "not on sale returns list price",
			variant: Variant{Price: decimal.RequireFromString("120.00")},
			want:    "120.00",
		},
		{
			name: "on sale without discount value returns list price",
			variant: Variant{
				Price:        decimal.RequireFromString("120.00"),
				OnSale:       true,
				DiscountType: DiscountAmount,
			},
			want: "120.00",
		},
		{
			name: "amount discount subtracts",
			variant: Variant{
				Price:         decimal.RequireFromString("120.00"),
				OnSale:        true,
				DiscountType:  DiscountAmount,
				DiscountValue: decimal.RequireFromString("20.00"),
			},
			want: "100.00",
		},
		{
			name: "percent discount",
			variant: Variant{
				Price:         decimal.RequireFromString("80.00"),
				OnSale:        true,
				DiscountType:  DiscountPercent,
				DiscountValue: decimal.RequireFromString("25"),
			},
			want: "60.00",
		},
		{
			name: "discount larger than price clamps at zero",
			variant: Variant{
				Price:         decimal.RequireFromString("10.00"),
				OnSale:        true,
				DiscountType:  DiscountAmount,
				DiscountValue: decimal.RequireFromString("15.00"),
			},
			want: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := decimal.RequireFromString(tt.want)
			assert.True(t, want.Equal(tt.variant.FinalPrice()),
				"want %s, got %s", want, tt.variant.FinalPrice())
		})
	}
}
