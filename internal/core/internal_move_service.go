package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// MoveLine moves Qty of an item between two physical locations of one warehouse.
type MoveLine struct {
	ItemID           string
	SourceLocationID int
	TargetLocationID int
	Qty              decimal.Decimal
}

// RowLine is an item/quantity row of a MoveRowsRequest.
type RowLine struct {
	ItemID string
	Qty    decimal.Decimal
}

// MoveRowsRequest moves several items along one fixed source and target.
type MoveRowsRequest struct {
	WarehouseID      int
	SourceLocationID int
	TargetLocationID int
	Lines            []RowLine
	Memo             string
	Actor            string
	BatchRef         string
}

// MoveResult reports what a move call posted. Errors is keyed by item id and lists the lines
// that were skipped because their source could not cover them.
type MoveResult struct {
	Posted    int
	Lines     int
	TotalQty  decimal.Decimal
	BatchRef  string
	Duplicate bool
	Errors    map[string]string
}

// OK reports whether every requested line was posted.
func (r *MoveResult) OK() bool {
	return !r.Duplicate && len(r.Errors) == 0
}

// InternalMoveService relocates stock between physical locations of one warehouse.
type InternalMoveService interface {
	// PostInternalMove posts every line whose source can cover it and reports the rest in
	// MoveResult.Errors. Locations must be ACTIVE.
	PostInternalMove(ctx context.Context, actor string, lines []MoveLine, batchRef string) (*MoveResult, error)
	// MoveSingle posts one line or fails with InsufficientBalanceError.
	MoveSingle(ctx context.Context, actor string, line MoveLine, batchRef string) (*MoveResult, error)
	MoveRows(ctx context.Context, req MoveRowsRequest) (*MoveResult, error)
}

type internalMoveService struct {
	pool    *pgxpool.Pool
	posting PostingService
	guard   *BalanceGuard
}

func NewInternalMoveService(pool *pgxpool.Pool, posting PostingService, guard *BalanceGuard) InternalMoveService {
	return &internalMoveService{pool: pool, posting: posting, guard: guard}
}

type moveOptions struct {
	actor         string
	batchRef      string
	memo          string
	warehouseID   int
	requireActive bool
	partial       bool
}

const defaultMoveMemo = "internal move"

func (s *internalMoveService) PostInternalMove(ctx context.Context, actor string, lines []MoveLine, batchRef string) (*MoveResult, error) {
	return s.move(ctx, lines, moveOptions{
		actor:         actor,
		batchRef:      batchRef,
		memo:          defaultMoveMemo,
		requireActive: true,
		partial:       true,
	})
}

func (s *internalMoveService) MoveSingle(ctx context.Context, actor string, line MoveLine, batchRef string) (*MoveResult, error) {
	return s.move(ctx, []MoveLine{line}, moveOptions{
		actor:    actor,
		batchRef: batchRef,
		memo:     defaultMoveMemo,
	})
}

func (s *internalMoveService) MoveRows(ctx context.Context, req MoveRowsRequest) (*MoveResult, error) {
	lines := make([]MoveLine, 0, len(req.Lines))
	for _, r := range req.Lines {
		lines = append(lines, MoveLine{
			ItemID:           r.ItemID,
			SourceLocationID: req.SourceLocationID,
			TargetLocationID: req.TargetLocationID,
			Qty:              r.Qty,
		})
	}
	memo := strings.TrimSpace(req.Memo)
	if memo == "" {
		memo = defaultMoveMemo
	}
	return s.move(ctx, lines, moveOptions{
		actor:         req.Actor,
		batchRef:      req.BatchRef,
		memo:          memo,
		warehouseID:   req.WarehouseID,
		requireActive: true,
		partial:       true,
	})
}

func (s *internalMoveService) move(ctx context.Context, lines []MoveLine, opts moveOptions) (*MoveResult, error) {
	if len(lines) == 0 {
		return nil, newValidationError("lines", "no quantities entered")
	}
	for _, ln := range lines {
		if strings.TrimSpace(ln.ItemID) == "" {
			return nil, newValidationError("item", "item id is required")
		}
		if !ln.Qty.IsPositive() {
			return nil, newValidationError("qty", "quantity for item %s must be positive, got %s", ln.ItemID, ln.Qty.String())
		}
		if err := checkQtyScale("qty", ln.Qty); err != nil {
			return nil, err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	locIDs := make([]int, 0, len(lines)*2)
	for _, ln := range lines {
		locIDs = append(locIDs, ln.SourceLocationID, ln.TargetLocationID)
	}
	locations, err := getLocations(ctx, tx, locIDs)
	if err != nil {
		return nil, err
	}
	warehouseID, err := validateMoveLocations(lines, locations, opts)
	if err != nil {
		return nil, err
	}

	result := &MoveResult{BatchRef: opts.batchRef, TotalQty: decimal.Zero, Errors: map[string]string{}}
	if result.BatchRef == "" {
		result.BatchRef = newBatchRef("internal_move")
	}
	claimed, err := claimBatch(ctx, tx, warehouseID, RefInternalMove, result.BatchRef, opts.actor)
	if err != nil {
		return nil, err
	}
	if !claimed {
		result.Duplicate = true
		return result, nil
	}

	merged := mergeMoveLines(lines)
	if err := requireItems(ctx, tx, moveItemIDs(merged)); err != nil {
		return nil, err
	}
	demands := make([]Demand, 0, len(merged))
	for _, ln := range merged {
		demands = append(demands, Demand{
			StockKey: StockKey{WarehouseID: warehouseID, LocationID: ln.SourceLocationID, ItemID: ln.ItemID},
			Qty:      ln.Qty,
		})
	}
	shortfalls, err := s.guard.Require(ctx, tx, demands)
	if err != nil {
		return nil, err
	}
	if len(shortfalls) > 0 && !opts.partial {
		return nil, shortfalls[0]
	}
	short := make(map[StockKey]bool, len(shortfalls))
	for _, sf := range shortfalls {
		short[StockKey{WarehouseID: sf.WarehouseID, LocationID: sf.LocationID, ItemID: sf.ItemID}] = true
		msg := fmt.Sprintf("available=%s, requested=%s", sf.Available.String(), sf.Requested.String())
		if prev, ok := result.Errors[sf.ItemID]; ok {
			msg = prev + "; " + msg
		}
		result.Errors[sf.ItemID] = msg
	}

	for _, ln := range merged {
		if short[StockKey{WarehouseID: warehouseID, LocationID: ln.SourceLocationID, ItemID: ln.ItemID}] {
			continue
		}
		from, to := ln.SourceLocationID, ln.TargetLocationID
		entries, err := s.posting.PostLedgerTx(ctx, tx, PostingRequest{
			WarehouseID:    warehouseID,
			FromLocationID: &from,
			ToLocationID:   &to,
			ItemID:         ln.ItemID,
			Qty:            ln.Qty,
			MovementType:   MovementInternalTransfer,
			RefModel:       RefInternalMove,
			RefID:          result.BatchRef,
			Memo:           opts.memo,
			Actor:          opts.actor,
		})
		if err != nil {
			return nil, err
		}
		result.Posted += len(entries)
		result.Lines++
		result.TotalQty = result.TotalQty.Add(ln.Qty)
	}

	// Nothing posted: leave the batch ref unused so the caller can retry with it.
	if result.Lines == 0 {
		return result, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit internal move: %w", err)
	}
	return result, nil
}

// validateMoveLocations checks every line and returns the single warehouse they all belong to.
func validateMoveLocations(lines []MoveLine, locations map[int]*Location, opts moveOptions) (int, error) {
	warehouseID := opts.warehouseID
	for _, ln := range lines {
		src, dst := locations[ln.SourceLocationID], locations[ln.TargetLocationID]
		if src.ID == dst.ID {
			return 0, newValidationError("location", "source and target must be different for item %s", ln.ItemID)
		}
		for _, loc := range []*Location{src, dst} {
			if !loc.IsPhysical() {
				return 0, newValidationError("location", "%s is not a physical location", loc.Label())
			}
			if opts.requireActive && loc.Status != StatusActive {
				return 0, newValidationError("location", "location %s is inactive", loc.Label())
			}
			if warehouseID == 0 {
				warehouseID = loc.WarehouseID
			}
			if loc.WarehouseID != warehouseID {
				return 0, newValidationError("location", "location %s is not in warehouse %d", loc.Label(), warehouseID)
			}
		}
	}
	return warehouseID, nil
}

type moveKey struct {
	itemID string
	src    int
	dst    int
}

// mergeMoveLines sums lines sharing (item, source, target), keeping first-seen order.
func mergeMoveLines(lines []MoveLine) []MoveLine {
	index := make(map[moveKey]int, len(lines))
	var out []MoveLine
	for _, ln := range lines {
		k := moveKey{itemID: ln.ItemID, src: ln.SourceLocationID, dst: ln.TargetLocationID}
		if i, ok := index[k]; ok {
			out[i].Qty = out[i].Qty.Add(ln.Qty)
			continue
		}
		index[k] = len(out)
		out = append(out, ln)
	}
	return out
}

func moveItemIDs(lines []MoveLine) []string {
	seen := make(map[string]bool, len(lines))
	var ids []string
	for _, ln := range lines {
		if !seen[ln.ItemID] {
			seen[ln.ItemID] = true
			ids = append(ids, ln.ItemID)
		}
	}
	return ids
}
