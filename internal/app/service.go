package app

import (
	"context"

	"warehouse-ledger/internal/core"
)

// ApplicationService is the single interface the CLI and the scheduler call.
// It resolves warehouse and location codes, converts payloads into core requests and logs
// what was posted. Implementations must contain no display logic of any kind.
type ApplicationService interface {
	// ProvisionWarehouse creates a warehouse and its standard virtual bins.
	ProvisionWarehouse(ctx context.Context, req ProvisionWarehouseRequest) (*WarehouseResult, error)

	ListWarehouses(ctx context.Context) (*WarehouseListResult, error)

	// SyncVirtualBins ensures the standard bins in every warehouse.
	SyncVirtualBins(ctx context.Context) (*SyncBinsResult, error)

	// AddLocation creates a physical storage location.
	AddLocation(ctx context.Context, req AddLocationRequest) (*core.Location, error)

	ListLocations(ctx context.Context, warehouseRef string) (*LocationListResult, error)

	// SetLocationStatus activates or deactivates a physical location by code.
	SetLocationStatus(ctx context.Context, warehouseRef, locationCode, status string) (*core.Location, error)

	RegisterItem(ctx context.Context, req RegisterItemRequest) error

	// GetBalance returns one item's balance. locationRef is a physical code or a virtual bin name.
	GetBalance(ctx context.Context, warehouseRef, locationRef, itemID string) (*BalanceResult, error)

	// GetLocationStock returns every non-zero balance at a location.
	GetLocationStock(ctx context.Context, warehouseRef, locationRef string) (*StockResult, error)

	ListPutawayCandidates(ctx context.Context, warehouseRef string) (*PutawayCandidatesResult, error)

	GetBatch(ctx context.Context, warehouseRef, refModel, refID string) (*BatchResult, error)

	// MoveStock posts an internal movement between physical locations.
	MoveStock(ctx context.Context, req MoveRequest) (*MoveResult, error)

	// Putaway drains RETURN/RECEIVE bins into storage or LOST.
	Putaway(ctx context.Context, req PutawayRequest) (*PutawayResult, error)

	ReturnToLost(ctx context.Context, req core.ReturnToLostRequest) (*core.ReconcileReport, error)
	ZeroReturnBin(ctx context.Context, req core.ZeroReturnRequest) (*core.ReconcileReport, error)
	CleanupExcessPending(ctx context.Context, req core.ExcessCleanupRequest) (*core.ReconcileReport, error)
	ResetVirtualBins(ctx context.Context, req core.ResetBinsRequest) (*core.ReconcileReport, error)
	AuditBatches(ctx context.Context, req core.AuditRequest) (*AuditResult, error)
}
