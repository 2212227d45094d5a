package app

import (
	"warehouse-ledger/internal/core"

	"github.com/shopspring/decimal"
)

// WarehouseResult is returned by ProvisionWarehouse.
type WarehouseResult struct {
	Warehouse   *core.Warehouse
	BinsCreated int
}

// WarehouseListResult is returned by ListWarehouses.
type WarehouseListResult struct {
	Warehouses []core.Warehouse
}

// SyncBinsResult maps warehouse code to the number of bins created.
type SyncBinsResult struct {
	Created map[string]int
}

// LocationListResult is returned by ListLocations.
type LocationListResult struct {
	WarehouseCode string
	Locations     []core.Location
}

// BalanceResult is returned by GetBalance.
type BalanceResult struct {
	WarehouseCode string
	Location      *core.Location
	ItemID        string
	Qty           decimal.Decimal
}

// StockResult is returned by GetLocationStock.
type StockResult struct {
	WarehouseCode string
	Location      *core.Location
	Balances      []core.ItemBalance
}

// PutawayCandidatesResult is returned by ListPutawayCandidates.
type PutawayCandidatesResult struct {
	WarehouseCode string
	Candidates    []core.PutawayCandidate
}

// BatchResult is returned by GetBatch.
type BatchResult struct {
	WarehouseCode string
	RefModel      string
	RefID         string
	Entries       []core.LedgerEntry
}

// MoveResult is returned by MoveStock.
type MoveResult struct {
	WarehouseCode string
	*core.MoveResult
}

// PutawayResult is returned by Putaway.
type PutawayResult struct {
	WarehouseCode string
	*core.PutawaySummary
}

// AuditResult is returned by AuditBatches.
type AuditResult struct {
	WarehouseCode string
	Batches       []core.BatchAudit
}

// Anomalous returns the batches with at least one anomaly.
func (r *AuditResult) Anomalous() []core.BatchAudit {
	var out []core.BatchAudit
	for _, b := range r.Batches {
		if len(b.Anomalies) > 0 {
			out = append(out, b)
		}
	}
	return out
}
