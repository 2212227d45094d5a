package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type PutawayActionType string

const (
	PutawayToLocation PutawayActionType = "PUTAWAY"
	PutawayToLost     PutawayActionType = "LOST"
)

// ParsePutawayActionType accepts PUTAWAY or LOST in any case.
func ParsePutawayActionType(s string) (PutawayActionType, error) {
	switch t := PutawayActionType(strings.ToUpper(strings.TrimSpace(s))); t {
	case PutawayToLocation, PutawayToLost:
		return t, nil
	}
	return "", newValidationError("type", "invalid putaway action %q", s)
}

// PutawayAction drains Qty of an item from a RETURN or RECEIVE bin. PUTAWAY needs a target
// location; LOST always lands in the warehouse's LOST bin and ignores TargetLocationID.
type PutawayAction struct {
	Type             PutawayActionType
	ItemID           string
	SourceBinID      int
	Qty              decimal.Decimal
	TargetLocationID int
}

type PutawayRequest struct {
	WarehouseID int
	Actions     []PutawayAction
	Actor       string
	// ReasonMap overrides the memo per source bin subtype; missing entries use "putaway".
	ReasonMap map[LocationSubtype]string
	BatchRef  string
}

type PutawaySummary struct {
	PostedCount int
	RowsWritten int
	TotalQty    decimal.Decimal
	BatchRef    string
	Duplicate   bool
}

// PutawayService drains inbound virtual bins into physical storage or the LOST bin.
type PutawayService interface {
	// PostActions posts every action in one transaction and one batch, or nothing.
	PostActions(ctx context.Context, req PutawayRequest) (*PutawaySummary, error)
}

type putawayService struct {
	pool    *pgxpool.Pool
	posting PostingService
	guard   *BalanceGuard
}

func NewPutawayService(pool *pgxpool.Pool, posting PostingService, guard *BalanceGuard) PutawayService {
	return &putawayService{pool: pool, posting: posting, guard: guard}
}

const (
	defaultPutawayMemo = "putaway"
	lostPutawayMemo    = "lost via putaway"
)

func (s *putawayService) PostActions(ctx context.Context, req PutawayRequest) (*PutawaySummary, error) {
	if len(req.Actions) == 0 {
		return nil, newValidationError("actions", "no putaway actions")
	}
	for _, a := range req.Actions {
		if err := validatePutawayAction(a); err != nil {
			return nil, err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := requireWarehouseID(ctx, tx, req.WarehouseID); err != nil {
		return nil, err
	}
	merged := mergePutawayActions(req.Actions)

	var lostBin *Location
	locIDs := make([]int, 0, len(merged)*2)
	for _, a := range merged {
		locIDs = append(locIDs, a.SourceBinID)
		if a.Type == PutawayToLocation {
			locIDs = append(locIDs, a.TargetLocationID)
		} else if lostBin == nil {
			if lostBin, err = getVirtualBin(ctx, tx, req.WarehouseID, SubtypeLost); err != nil {
				return nil, err
			}
		}
	}
	locations, err := getLocations(ctx, tx, locIDs)
	if err != nil {
		return nil, err
	}
	for _, a := range merged {
		if err := validatePutawayLocations(req.WarehouseID, a, locations); err != nil {
			return nil, err
		}
	}

	summary := &PutawaySummary{BatchRef: req.BatchRef, TotalQty: decimal.Zero}
	if summary.BatchRef == "" {
		summary.BatchRef = newBatchRef("putaway")
	}
	claimed, err := claimBatch(ctx, tx, req.WarehouseID, RefPutaway, summary.BatchRef, req.Actor)
	if err != nil {
		return nil, err
	}
	if !claimed {
		summary.Duplicate = true
		return summary, nil
	}

	itemIDs := make([]string, 0, len(merged))
	for _, a := range merged {
		itemIDs = append(itemIDs, a.ItemID)
	}
	if err := requireItems(ctx, tx, itemIDs); err != nil {
		return nil, err
	}

	demands := make([]Demand, 0, len(merged))
	for _, a := range merged {
		demands = append(demands, Demand{
			StockKey: StockKey{WarehouseID: req.WarehouseID, LocationID: a.SourceBinID, ItemID: a.ItemID},
			Qty:      a.Qty,
		})
	}
	shortfalls, err := s.guard.Require(ctx, tx, demands)
	if err != nil {
		return nil, err
	}
	if len(shortfalls) > 0 {
		return nil, shortfalls[0]
	}

	for _, a := range merged {
		src := locations[a.SourceBinID]
		from := src.ID
		posting := PostingRequest{
			WarehouseID:    req.WarehouseID,
			FromLocationID: &from,
			ItemID:         a.ItemID,
			Qty:            a.Qty,
			RefModel:       RefPutaway,
			RefID:          summary.BatchRef,
			Actor:          req.Actor,
		}
		if a.Type == PutawayToLost {
			to := lostBin.ID
			posting.ToLocationID = &to
			posting.MovementType = MovementPutawayLost
			posting.Memo = lostPutawayMemo
		} else {
			to := a.TargetLocationID
			posting.ToLocationID = &to
			posting.MovementType = MovementPutaway
			posting.Memo = defaultPutawayMemo
			if reason := strings.TrimSpace(req.ReasonMap[src.Subtype]); reason != "" {
				posting.Memo = reason
			}
		}
		entries, err := s.posting.PostLedgerTx(ctx, tx, posting)
		if err != nil {
			return nil, err
		}
		summary.PostedCount++
		summary.RowsWritten += len(entries)
		summary.TotalQty = summary.TotalQty.Add(a.Qty)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit putaway: %w", err)
	}
	return summary, nil
}

func validatePutawayAction(a PutawayAction) error {
	if a.Type != PutawayToLocation && a.Type != PutawayToLost {
		return newValidationError("type", "invalid putaway action %q", a.Type)
	}
	if strings.TrimSpace(a.ItemID) == "" {
		return newValidationError("item", "item id is required")
	}
	if !a.Qty.IsPositive() {
		return newValidationError("qty", "quantity for item %s must be positive, got %s", a.ItemID, a.Qty.String())
	}
	if err := checkQtyScale("qty", a.Qty); err != nil {
		return err
	}
	if a.SourceBinID <= 0 {
		return newValidationError("source_bin", "source bin is required for item %s", a.ItemID)
	}
	if a.Type == PutawayToLocation && a.TargetLocationID <= 0 {
		return newValidationError("target_location", "target location is required for PUTAWAY of item %s", a.ItemID)
	}
	return nil
}

func validatePutawayLocations(warehouseID int, a PutawayAction, locations map[int]*Location) error {
	src := locations[a.SourceBinID]
	if src.WarehouseID != warehouseID {
		return newValidationError("source_bin", "bin %d is not in warehouse %d", src.ID, warehouseID)
	}
	if src.Type != LocationVirtual || (src.Subtype != SubtypeReturn && src.Subtype != SubtypeReceive) {
		return newValidationError("source_bin", "source must be a RETURN or RECEIVE bin, got %s", src.Label())
	}
	if a.Type == PutawayToLost {
		return nil
	}
	dst := locations[a.TargetLocationID]
	if dst.WarehouseID != warehouseID {
		return newValidationError("target_location", "location %s is not in warehouse %d", dst.Label(), warehouseID)
	}
	if !dst.IsPhysical() {
		return newValidationError("target_location", "target must be a physical location, got %s", dst.Label())
	}
	if dst.Status != StatusActive {
		return newValidationError("target_location", "location %s is inactive", dst.Label())
	}
	return nil
}

type putawayKey struct {
	typ    PutawayActionType
	itemID string
	src    int
	dst    int
}

// mergePutawayActions sums actions sharing (type, item, source, target), keeping first-seen order.
func mergePutawayActions(actions []PutawayAction) []PutawayAction {
	index := make(map[putawayKey]int, len(actions))
	var out []PutawayAction
	for _, a := range actions {
		if a.Type == PutawayToLost {
			a.TargetLocationID = 0
		}
		k := putawayKey{typ: a.Type, itemID: a.ItemID, src: a.SourceBinID, dst: a.TargetLocationID}
		if i, ok := index[k]; ok {
			out[i].Qty = out[i].Qty.Add(a.Qty)
			continue
		}
		index[k] = len(out)
		out = append(out, a)
	}
	return out
}
