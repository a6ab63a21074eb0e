package order

import (
	"fmt"
	"time"
)

// numberPrefix prefixes every generated order number.
const numberPrefix = "ORD"

// FormatNumber renders an order number as ORD-YYYYMMDD-NNNNN. The per-day
// sequence comes from an atomic counter, not from scanning existing numbers,
// so two concurrent checkouts can never mint the same number.
func FormatNumber(day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%05d", numberPrefix, day.Format("20060102"), seq)
}
