package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// StockLedger is the append-only store of signed quantity deltas. Balances are always derived
// from it; there is no stored quantity anywhere else. Rows are never updated or deleted.
type StockLedger struct {
	pool *pgxpool.Pool
}

func NewStockLedger(pool *pgxpool.Pool) *StockLedger {
	return &StockLedger{pool: pool}
}

// Post appends specs in a transaction of its own.
func (l *StockLedger) Post(ctx context.Context, specs []EntrySpec) ([]LedgerEntry, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	entries, err := l.PostTx(ctx, tx, specs)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit ledger entries: %w", err)
	}
	return entries, nil
}

// PostTx appends specs inside the caller's transaction. Either every spec is written or the
// call fails before writing anything: all validation and lookups happen before the first insert.
func (l *StockLedger) PostTx(ctx context.Context, tx pgx.Tx, specs []EntrySpec) ([]LedgerEntry, error) {
	if len(specs) == 0 {
		return nil, newValidationError("entries", "no entries to post")
	}

	locIDs := make([]int, 0, len(specs))
	itemIDs := make([]string, 0, len(specs))
	seenLoc := make(map[int]bool)
	seenItem := make(map[string]bool)
	for i, s := range specs {
		if err := validateEntrySpec(s); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if !seenLoc[s.LocationID] {
			seenLoc[s.LocationID] = true
			locIDs = append(locIDs, s.LocationID)
		}
		if !seenItem[s.ItemID] {
			seenItem[s.ItemID] = true
			itemIDs = append(itemIDs, s.ItemID)
		}
	}

	locations, err := getLocations(ctx, tx, locIDs)
	if err != nil {
		return nil, err
	}
	for _, s := range specs {
		if loc := locations[s.LocationID]; loc.WarehouseID != s.WarehouseID {
			return nil, newValidationError("location",
				"location %d belongs to warehouse %d, not %d", loc.ID, loc.WarehouseID, s.WarehouseID)
		}
	}
	if err := requireItems(ctx, tx, itemIDs); err != nil {
		return nil, err
	}

	entries := make([]LedgerEntry, 0, len(specs))
	for _, s := range specs {
		e := LedgerEntry{
			WarehouseID:  s.WarehouseID,
			LocationID:   s.LocationID,
			ItemID:       s.ItemID,
			QtyDelta:     s.QtyDelta,
			MovementType: s.MovementType,
			RefModel:     s.RefModel,
			RefID:        s.RefID,
			Memo:         s.Memo,
			Actor:        s.Actor,
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO stock_ledger (warehouse_id, location_id, item_id, qty_delta, movement_type, ref_model, ref_id, memo, actor)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id, ts
		`, s.WarehouseID, s.LocationID, s.ItemID, s.QtyDelta, string(s.MovementType),
			s.RefModel, s.RefID, s.Memo, nullableString(s.Actor),
		).Scan(&e.ID, &e.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to insert ledger entry for item %s at location %d: %w", s.ItemID, s.LocationID, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func validateEntrySpec(s EntrySpec) error {
	if s.QtyDelta.IsZero() {
		return newValidationError("qty_delta", "quantity delta must be non-zero")
	}
	if err := checkQtyScale("qty_delta", s.QtyDelta); err != nil {
		return err
	}
	if !s.MovementType.Valid() {
		return newValidationError("movement_type", "unknown movement type %q", s.MovementType)
	}
	if strings.TrimSpace(s.ItemID) == "" {
		return newValidationError("item", "item id is required")
	}
	if s.WarehouseID <= 0 || s.LocationID <= 0 {
		return newValidationError("location", "warehouse and location are required")
	}
	return nil
}

func requireItems(ctx context.Context, q dbtx, ids []string) error {
	rows, err := q.Query(ctx, "SELECT id FROM items WHERE id = ANY($1)", ids)
	if err != nil {
		return fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	found := make(map[string]bool, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan item: %w", err)
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating items: %w", err)
	}
	for _, id := range ids {
		if !found[id] {
			return notFound("item", id)
		}
	}
	return nil
}

// Balance is the sum of qty_delta for the triple. No rows means zero.
func (l *StockLedger) Balance(ctx context.Context, warehouseID, locationID int, itemID string) (decimal.Decimal, error) {
	return balance(ctx, l.pool, warehouseID, locationID, itemID)
}

// BalanceTx reads the balance inside tx, so it sees the transaction's own uncommitted rows.
func (l *StockLedger) BalanceTx(ctx context.Context, tx pgx.Tx, warehouseID, locationID int, itemID string) (decimal.Decimal, error) {
	return balance(ctx, tx, warehouseID, locationID, itemID)
}

func balance(ctx context.Context, q dbtx, warehouseID, locationID int, itemID string) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(qty_delta), 0)
		FROM stock_ledger
		WHERE warehouse_id = $1 AND location_id = $2 AND item_id = $3
	`, warehouseID, locationID, itemID).Scan(&qty)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to compute balance for item %s at location %d: %w", itemID, locationID, err)
	}
	return qty, nil
}

// BinBalances returns every item with a non-zero net at the location, ordered by item id.
func (l *StockLedger) BinBalances(ctx context.Context, warehouseID, locationID int) ([]ItemBalance, error) {
	return binBalances(ctx, l.pool, warehouseID, locationID)
}

func binBalances(ctx context.Context, q dbtx, warehouseID, locationID int) ([]ItemBalance, error) {
	rows, err := q.Query(ctx, `
		SELECT item_id, SUM(qty_delta)
		FROM stock_ledger
		WHERE warehouse_id = $1 AND location_id = $2
		GROUP BY item_id
		HAVING SUM(qty_delta) <> 0
		ORDER BY item_id
	`, warehouseID, locationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances for location %d: %w", locationID, err)
	}
	defer rows.Close()

	var out []ItemBalance
	for rows.Next() {
		var b ItemBalance
		if err := rows.Scan(&b.ItemID, &b.Qty); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balances: %w", err)
	}
	return out, nil
}

// LocationStock lists items with a positive balance at the location; this is what a move can draw from.
func (l *StockLedger) LocationStock(ctx context.Context, warehouseID, locationID int) ([]ItemBalance, error) {
	all, err := l.BinBalances(ctx, warehouseID, locationID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, b := range all {
		if b.Qty.IsPositive() {
			out = append(out, b)
		}
	}
	return out, nil
}

// PutawayCandidates lists non-zero balances sitting in the warehouse's RETURN and RECEIVE bins.
func (l *StockLedger) PutawayCandidates(ctx context.Context, warehouseID int) ([]PutawayCandidate, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT sl.item_id, COALESCE(i.sku, ''), COALESCE(i.name, ''), loc.id, loc.subtype,
		       SUM(sl.qty_delta), MAX(sl.ts)
		FROM stock_ledger sl
		JOIN locations loc ON loc.id = sl.location_id
		LEFT JOIN items i ON i.id = sl.item_id
		WHERE sl.warehouse_id = $1
		  AND loc.type = 'VIRTUAL'
		  AND loc.subtype IN ('RETURN', 'RECEIVE')
		GROUP BY sl.item_id, i.sku, i.name, loc.id, loc.subtype
		HAVING SUM(sl.qty_delta) <> 0
		ORDER BY MAX(sl.ts) DESC, sl.item_id
	`, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query putaway candidates: %w", err)
	}
	defer rows.Close()

	var out []PutawayCandidate
	for rows.Next() {
		var c PutawayCandidate
		if err := rows.Scan(&c.ItemID, &c.SKU, &c.Name, &c.BinID, &c.Bin, &c.Qty, &c.LastMovedAt); err != nil {
			return nil, fmt.Errorf("failed to scan putaway candidate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating putaway candidates: %w", err)
	}
	return out, nil
}

// EntriesByBatch returns the rows written under one batch reference, oldest first.
func (l *StockLedger) EntriesByBatch(ctx context.Context, warehouseID int, refModel, refID string) ([]LedgerEntry, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, ts, warehouse_id, location_id, item_id, qty_delta, movement_type, ref_model, ref_id, memo, COALESCE(actor, '')
		FROM stock_ledger
		WHERE warehouse_id = $1 AND ref_model = $2 AND ref_id = $3
		ORDER BY id
	`, warehouseID, refModel, refID)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch %s/%s: %w", refModel, refID, err)
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.WarehouseID, &e.LocationID, &e.ItemID, &e.QtyDelta,
			&e.MovementType, &e.RefModel, &e.RefID, &e.Memo, &e.Actor); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}
	return out, nil
}

// BatchExists reports whether the batch reference was already used in the warehouse.
func (l *StockLedger) BatchExists(ctx context.Context, warehouseID int, refModel, refID string) (bool, error) {
	return batchExists(ctx, l.pool, warehouseID, refModel, refID)
}
