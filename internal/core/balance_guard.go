package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// StockKey identifies one balance: an item at a location in a warehouse.
type StockKey struct {
	WarehouseID int
	LocationID  int
	ItemID      string
}

func (k StockKey) String() string {
	return fmt.Sprintf("stock:%d:%d:%s", k.WarehouseID, k.LocationID, k.ItemID)
}

func (k StockKey) less(o StockKey) bool {
	if k.WarehouseID != o.WarehouseID {
		return k.WarehouseID < o.WarehouseID
	}
	if k.LocationID != o.LocationID {
		return k.LocationID < o.LocationID
	}
	return k.ItemID < o.ItemID
}

// Demand is a planned debit of Qty from one balance.
type Demand struct {
	StockKey
	Qty decimal.Decimal
}

// BalanceGuard serializes debits against the same balance. Each key maps to a transaction-scoped
// advisory lock, so two concurrent transactions drawing from one location cannot both pass the
// check and overdraw it. Locks are released at commit or rollback.
type BalanceGuard struct {
	ledger *StockLedger
}

func NewBalanceGuard(ledger *StockLedger) *BalanceGuard {
	return &BalanceGuard{ledger: ledger}
}

// Lock takes the advisory locks for keys in a stable order, deduplicated.
func (g *BalanceGuard) Lock(ctx context.Context, tx pgx.Tx, keys []StockKey) error {
	for _, k := range sortedKeys(keys) {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", k.String()); err != nil {
			return fmt.Errorf("failed to lock %s: %w", k, err)
		}
	}
	return nil
}

// Require locks every demanded balance and reports those that cannot cover their total demand.
// Demands on the same key are summed first. A nil slice means every demand is covered. The
// caller decides whether a shortfall aborts the whole operation or only the affected lines.
func (g *BalanceGuard) Require(ctx context.Context, tx pgx.Tx, demands []Demand) ([]*InsufficientBalanceError, error) {
	totals := make(map[StockKey]decimal.Decimal)
	keys := make([]StockKey, 0, len(demands))
	for _, d := range demands {
		if cur, ok := totals[d.StockKey]; ok {
			totals[d.StockKey] = cur.Add(d.Qty)
			continue
		}
		totals[d.StockKey] = d.Qty
		keys = append(keys, d.StockKey)
	}
	if err := g.Lock(ctx, tx, keys); err != nil {
		return nil, err
	}

	var shortfalls []*InsufficientBalanceError
	for _, k := range sortedKeys(keys) {
		available, err := g.ledger.BalanceTx(ctx, tx, k.WarehouseID, k.LocationID, k.ItemID)
		if err != nil {
			return nil, err
		}
		if requested := totals[k]; requested.GreaterThan(available) {
			shortfalls = append(shortfalls, &InsufficientBalanceError{
				WarehouseID: k.WarehouseID,
				LocationID:  k.LocationID,
				ItemID:      k.ItemID,
				Available:   available,
				Requested:   requested,
			})
		}
	}
	return shortfalls, nil
}

// lockedBinBalances locks every (location, item) pair that currently has a non-zero net in any of
// locationIDs, then re-reads the nets under those locks. Items that appear only after the first
// read are left for the next run.
func (g *BalanceGuard) lockedBinBalances(ctx context.Context, tx pgx.Tx, warehouseID int, locationIDs []int) (map[int][]ItemBalance, error) {
	items := make(map[string]bool)
	for _, locID := range locationIDs {
		bals, err := binBalances(ctx, tx, warehouseID, locID)
		if err != nil {
			return nil, err
		}
		for _, b := range bals {
			items[b.ItemID] = true
		}
	}
	var keys []StockKey
	for _, locID := range locationIDs {
		for item := range items {
			keys = append(keys, StockKey{WarehouseID: warehouseID, LocationID: locID, ItemID: item})
		}
	}
	if err := g.Lock(ctx, tx, keys); err != nil {
		return nil, err
	}

	out := make(map[int][]ItemBalance, len(locationIDs))
	for _, locID := range locationIDs {
		bals, err := binBalances(ctx, tx, warehouseID, locID)
		if err != nil {
			return nil, err
		}
		kept := bals[:0]
		for _, b := range bals {
			if items[b.ItemID] {
				kept = append(kept, b)
			}
		}
		out[locID] = kept
	}
	return out, nil
}

func sortedKeys(keys []StockKey) []StockKey {
	seen := make(map[StockKey]bool, len(keys))
	out := make([]StockKey, 0, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}
