package repository

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/almacart/commerce/internal/domain/inventory"
)

const (
	// Lock order is ascending variant id everywhere, so two transactions
	// touching the same variants never deadlock.
	lockStockRowsSQL = `SELECT variant_id, on_hand FROM stock
		WHERE variant_id = ANY($1) ORDER BY variant_id FOR UPDATE`

	// A RESERVE is outstanding until a RELEASE or SALE exists for the same
	// (order, variant) pair. RESERVE rows are stored with negative quantity
	// (stock leaving availability), hence the ABS.
	outstandingByVariantsSQL = `SELECT t.variant_id, COALESCE(SUM(ABS(t.quantity)), 0)::INT
		FROM inventory_transactions t
		WHERE t.variant_id = ANY($1) AND t.entry_type = 'reserve'
		  AND NOT EXISTS (
			SELECT 1 FROM inventory_transactions s
			WHERE s.order_id = t.order_id AND s.variant_id = t.variant_id
			  AND s.entry_type IN ('release', 'sale'))
		GROUP BY t.variant_id`

	outstandingByOrderSQL = `SELECT t.variant_id, COALESCE(SUM(ABS(t.quantity)), 0)::INT
		FROM inventory_transactions t
		WHERE t.order_id = $1 AND t.entry_type = 'reserve'
		  AND NOT EXISTS (
			SELECT 1 FROM inventory_transactions s
			WHERE s.order_id = t.order_id AND s.variant_id = t.variant_id
			  AND s.entry_type IN ('release', 'sale'))
		GROUP BY t.variant_id`

	insertLedgerEntrySQL = `INSERT INTO inventory_transactions (id, variant_id, order_id, entry_type, quantity, note)
		VALUES ($1, $2, $3, $4, $5, $6)`

	decrementOnHandSQL = `UPDATE stock SET on_hand = on_hand - $2 WHERE variant_id = $1`

	adjustOnHandSQL = `INSERT INTO stock (variant_id, on_hand) VALUES ($1, $2)
		ON CONFLICT (variant_id) DO UPDATE SET on_hand = stock.on_hand + EXCLUDED.on_hand`

	getStockRowSQL = `SELECT on_hand FROM stock WHERE variant_id = $1`
)

var _ inventory.Ledger = (*StockLedger)(nil)

// StockLedger implements inventory.Ledger on the append-only
// inventory_transactions table plus the per-variant stock rows.
type StockLedger struct {
	q querier
}

// NewStockLedger returns a StockLedger over the given querier.
func NewStockLedger(q querier) *StockLedger {
	return &StockLedger{q: q}
}

// Reserve appends a RESERVE entry per tracked line, all-or-nothing. Stock
// rows are locked before availability is derived, so two concurrent
// reservations of the last unit serialize and the loser gets
// *inventory.InsufficientStockError.
func (l *StockLedger) Reserve(ctx context.Context, orderID uuid.UUID, lines []inventory.Line) error {
	ids := variantIDs(lines)
	onHand, err := l.lockStock(ctx, ids)
	if err != nil {
		return err
	}
	reserved, err := l.outstandingByVariants(ctx, ids)
	if err != nil {
		return err
	}

	for _, line := range lines {
		oh, tracked := onHand[line.VariantID]
		if !tracked {
			continue
		}
		available := oh - reserved[line.VariantID]
		if available < 0 {
			available = 0
		}
		if available < line.Quantity {
			return &inventory.InsufficientStockError{SKU: line.SKU, Available: available, Requested: line.Quantity}
		}
	}

	for _, line := range lines {
		if _, tracked := onHand[line.VariantID]; !tracked {
			continue
		}
		if err := l.append(ctx, line.VariantID, &orderID, inventory.EntryReserve, -line.Quantity, ""); err != nil {
			return err
		}
	}
	return nil
}

// Release appends a RELEASE entry for every outstanding RESERVE of the
// order. Already-settled reservations are skipped, so the call is
// idempotent and an order without reservations is a no-op.
func (l *StockLedger) Release(ctx context.Context, orderID uuid.UUID) error {
	outstanding, err := l.outstandingByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if len(outstanding) == 0 {
		return nil
	}
	if _, err := l.lockStock(ctx, sortedKeys(outstanding)); err != nil {
		return err
	}

	// Re-read under the stock-row locks: a concurrent release or sale may
	// have settled some reservations between the first read and the lock.
	outstanding, err = l.outstandingByOrder(ctx, orderID)
	if err != nil {
		return err
	}

	for _, vid := range sortedKeys(outstanding) {
		if err := l.append(ctx, vid, &orderID, inventory.EntryRelease, outstanding[vid], ""); err != nil {
			return err
		}
	}
	return nil
}

// CommitSale converts the order's outstanding reservations into SALE entries
// and decrements on-hand stock. Lines without an outstanding reservation are
// validated against current availability before selling; untracked lines are
// skipped.
func (l *StockLedger) CommitSale(ctx context.Context, orderID uuid.UUID, lines []inventory.Line) error {
	ids := variantIDs(lines)
	onHand, err := l.lockStock(ctx, ids)
	if err != nil {
		return err
	}
	outstanding, err := l.outstandingByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	reserved, err := l.outstandingByVariants(ctx, ids)
	if err != nil {
		return err
	}

	type sale struct {
		variantID uuid.UUID
		quantity  int
	}
	var sales []sale
	for _, line := range lines {
		oh, tracked := onHand[line.VariantID]
		if !tracked {
			continue
		}
		qty := outstanding[line.VariantID]
		if qty == 0 {
			// Unreserved line: sell against what is available right now.
			available := oh - reserved[line.VariantID]
			if available < 0 {
				available = 0
			}
			if available < line.Quantity {
				return &inventory.InsufficientStockError{SKU: line.SKU, Available: available, Requested: line.Quantity}
			}
			qty = line.Quantity
		}
		sales = append(sales, sale{variantID: line.VariantID, quantity: qty})
	}

	for _, s := range sales {
		if err := l.append(ctx, s.variantID, &orderID, inventory.EntrySale, -s.quantity, ""); err != nil {
			return err
		}
		if _, err := l.q.Exec(ctx, decrementOnHandSQL, s.variantID, s.quantity); err != nil {
			return fmt.Errorf("decrementing on-hand stock: %w", err)
		}
	}
	return nil
}

// Adjust appends an ADJUSTMENT entry and moves on-hand stock by delta,
// creating the stock row for a previously untracked variant.
func (l *StockLedger) Adjust(ctx context.Context, variantID uuid.UUID, delta int, note string) error {
	if _, err := l.q.Exec(ctx, adjustOnHandSQL, variantID, delta); err != nil {
		return fmt.Errorf("adjusting on-hand stock: %w", err)
	}
	return l.append(ctx, variantID, nil, inventory.EntryAdjustment, delta, note)
}

// Available returns on-hand minus outstanding reservations, never negative.
func (l *StockLedger) Available(ctx context.Context, variantID uuid.UUID) (int, error) {
	var onHand int
	err := l.q.QueryRow(ctx, getStockRowSQL, variantID).Scan(&onHand)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, inventory.ErrNotTracked
		}
		return 0, fmt.Errorf("reading stock row: %w", err)
	}

	reserved, err := l.outstandingByVariants(ctx, []uuid.UUID{variantID})
	if err != nil {
		return 0, err
	}

	available := onHand - reserved[variantID]
	if available < 0 {
		available = 0
	}
	return available, nil
}

func (l *StockLedger) append(ctx context.Context, variantID uuid.UUID, orderID *uuid.UUID, et inventory.EntryType, qty int, note string) error {
	_, err := l.q.Exec(ctx, insertLedgerEntrySQL, uuid.New(), variantID, orderID, et, qty, note)
	if err != nil {
		return fmt.Errorf("appending %s entry: %w", et, err)
	}
	return nil
}

// lockStock locks the stock rows of ids and returns their on-hand counts.
// Variants without a row are untracked and absent from the result.
func (l *StockLedger) lockStock(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]int, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := l.q.Query(ctx, lockStockRowsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("locking stock rows: %w", err)
	}
	return collectQuantities(rows)
}

func (l *StockLedger) outstandingByVariants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]int, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := l.q.Query(ctx, outstandingByVariantsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("summing outstanding reservations: %w", err)
	}
	return collectQuantities(rows)
}

func (l *StockLedger) outstandingByOrder(ctx context.Context, orderID uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := l.q.Query(ctx, outstandingByOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("summing order reservations: %w", err)
	}
	return collectQuantities(rows)
}

func collectQuantities(rows pgx.Rows) (map[uuid.UUID]int, error) {
	defer rows.Close()
	out := make(map[uuid.UUID]int)
	for rows.Next() {
		var (
			id  uuid.UUID
			qty int
		)
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		out[id] = qty
	}
	return out, rows.Err()
}

// variantIDs returns the distinct variant ids of lines in ascending order.
func variantIDs(lines []inventory.Line) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(lines))
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.VariantID]; ok {
			continue
		}
		seen[line.VariantID] = struct{}{}
		ids = append(ids, line.VariantID)
	}
	sortUUIDs(ids)
	return ids
}

func sortedKeys(m map[uuid.UUID]int) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sortUUIDs(ids)
	return ids
}

func sortUUIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}
