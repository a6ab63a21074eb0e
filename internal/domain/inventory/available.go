package inventory

import "github.com/google/uuid"

type reservationKey struct {
	order   uuid.UUID
	variant uuid.UUID
}

// OutstandingReserved folds a variant's ledger entries into the quantity that
// is currently held by reservations. A RESERVE is outstanding until a RELEASE
// or SALE entry exists for the same (order, variant) pair.
func OutstandingReserved(entries []Entry) int {
	settled := make(map[reservationKey]bool)
	for _, e := range entries {
		if e.Type == EntryRelease || e.Type == EntrySale {
			settled[reservationKey{e.OrderID, e.VariantID}] = true
		}
	}

	reserved := 0
	for _, e := range entries {
		if e.Type != EntryReserve {
			continue
		}
		if settled[reservationKey{e.OrderID, e.VariantID}] {
			continue
		}
		q := e.Quantity
		if q < 0 {
			q = -q
		}
		reserved += q
	}
	return reserved
}

// AvailableFrom derives available stock from the on-hand quantity and the
// ledger entries of one variant, clamped at zero.
func AvailableFrom(onHand int, entries []Entry) int {
	avail := onHand - OutstandingReserved(entries)
	if avail < 0 {
		return 0
	}
	return avail
}
