package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// BinAdjustment is one planned or posted correction. An empty From or To means outside the system.
type BinAdjustment struct {
	ItemID string
	From   LocationSubtype
	To     LocationSubtype
	Qty    decimal.Decimal
}

// WarehouseReconcile is the outcome of a job for one warehouse.
type WarehouseReconcile struct {
	WarehouseID   int
	WarehouseCode string
	BatchRef      string
	Adjustments   []BinAdjustment
	RowsPosted    int
	Note          string
}

type ReconcileReport struct {
	Job        string
	DryRun     bool
	Warehouses []WarehouseReconcile
}

// RowsPosted is the total number of ledger rows the job wrote.
func (r *ReconcileReport) RowsPosted() int {
	n := 0
	for _, w := range r.Warehouses {
		n += w.RowsPosted
	}
	return n
}

// TotalQty sums the quantities of every adjustment, planned or posted.
func (r *ReconcileReport) TotalQty() decimal.Decimal {
	total := decimal.Zero
	for _, w := range r.Warehouses {
		for _, a := range w.Adjustments {
			total = total.Add(a.Qty)
		}
	}
	return total
}

type ReturnToLostRequest struct {
	WarehouseCode string
	BatchRef      string
	DryRun        bool
	Actor         string
}

type ZeroReturnRequest struct {
	WarehouseCode string
	BatchRef      string
	DryRun        bool
	Actor         string
}

// ExcessCleanupRequest scans one warehouse, or all of them when WarehouseCode is empty.
// Limit caps the number of items written off per warehouse; zero means no cap.
type ExcessCleanupRequest struct {
	WarehouseCode string
	DryRun        bool
	Limit         int
	Actor         string
}

// ResetBinsRequest zeroes the listed bins; an empty Bins list means RETURN and LOST.
type ResetBinsRequest struct {
	WarehouseCode string
	Bins          []LocationSubtype
	DryRun        bool
	Actor         string
}

// Batch anomalies reported by AuditBatches.
const (
	AnomalyUnregistered = "UNREGISTERED"
	AnomalyUnbalanced   = "UNBALANCED"
)

type AuditRequest struct {
	WarehouseCode string
	Since         time.Duration
	RefModel      string
	Limit         int
}

// BatchAudit summarizes the ledger rows sharing one batch reference.
type BatchAudit struct {
	RefModel      string
	RefID         string
	Rows          int
	NetQty        decimal.Decimal
	MovementTypes []MovementType
	Registered    bool
	LastAt        time.Time
	Anomalies     []string
}

// ReconcileService runs the maintenance jobs that drain virtual bins and audits batches.
type ReconcileService interface {
	ReturnToLost(ctx context.Context, req ReturnToLostRequest) (*ReconcileReport, error)
	ZeroReturnBin(ctx context.Context, req ZeroReturnRequest) (*ReconcileReport, error)
	CleanupExcessPending(ctx context.Context, req ExcessCleanupRequest) (*ReconcileReport, error)
	ResetVirtualBins(ctx context.Context, req ResetBinsRequest) (*ReconcileReport, error)
	// SyncVirtualBins ensures the standard bins in every warehouse and returns created counts by code.
	SyncVirtualBins(ctx context.Context) (map[string]int, error)
	AuditBatches(ctx context.Context, req AuditRequest) ([]BatchAudit, error)
}

type reconcileService struct {
	pool      *pgxpool.Pool
	posting   PostingService
	guard     *BalanceGuard
	locations LocationService
}

func NewReconcileService(pool *pgxpool.Pool, posting PostingService, guard *BalanceGuard, locations LocationService) ReconcileService {
	return &reconcileService{pool: pool, posting: posting, guard: guard, locations: locations}
}

const (
	returnToLostMemo  = "Return→Lost consolidation"
	zeroReturnMemo    = "Zero RETURN bin"
	excessCleanupMemo = "Cleanup: move pending EXCESS to null"
	resetBinsMemo     = "Reset virtual bin to zero"
)

func (s *reconcileService) ReturnToLost(ctx context.Context, req ReturnToLostRequest) (*ReconcileReport, error) {
	report := &ReconcileReport{Job: "return-to-lost", DryRun: req.DryRun}
	wh, err := getWarehouse(ctx, s.pool, req.WarehouseCode)
	if err != nil {
		return nil, err
	}
	result := WarehouseReconcile{WarehouseID: wh.ID, WarehouseCode: wh.Code}
	if err := s.checkExplicitRef(ctx, wh.ID, RefReturnToLost, req.BatchRef, req.DryRun); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	returnBin, err := getVirtualBin(ctx, tx, wh.ID, SubtypeReturn)
	if err != nil {
		return nil, err
	}
	lostBin, err := getVirtualBin(ctx, tx, wh.ID, SubtypeLost)
	if err != nil {
		return nil, err
	}
	nets, err := s.binNets(ctx, tx, wh.ID, []int{returnBin.ID}, req.DryRun)
	if err != nil {
		return nil, err
	}
	for _, b := range nets[returnBin.ID] {
		if b.Qty.IsPositive() {
			result.Adjustments = append(result.Adjustments, BinAdjustment{ItemID: b.ItemID, From: SubtypeReturn, To: SubtypeLost, Qty: b.Qty})
		}
	}

	if req.DryRun || len(result.Adjustments) == 0 {
		if len(result.Adjustments) == 0 {
			result.Note = "nothing to move"
		}
		report.Warehouses = append(report.Warehouses, result)
		return report, nil
	}

	result.BatchRef, err = s.claim(ctx, tx, wh.ID, RefReturnToLost, req.BatchRef, fmt.Sprintf("return_to_lost:%d", wh.ID), req.Actor)
	if err != nil {
		return nil, err
	}
	bins := map[LocationSubtype]int{SubtypeReturn: returnBin.ID, SubtypeLost: lostBin.ID}
	if result.RowsPosted, err = s.postAdjustments(ctx, tx, wh.ID, bins, result.Adjustments, MovementPutawayLost,
		RefReturnToLost, result.BatchRef, returnToLostMemo, req.Actor); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit return-to-lost: %w", err)
	}
	report.Warehouses = append(report.Warehouses, result)
	return report, nil
}

func (s *reconcileService) ZeroReturnBin(ctx context.Context, req ZeroReturnRequest) (*ReconcileReport, error) {
	report := &ReconcileReport{Job: "zero-return", DryRun: req.DryRun}
	wh, err := getWarehouse(ctx, s.pool, req.WarehouseCode)
	if err != nil {
		return nil, err
	}
	result := WarehouseReconcile{WarehouseID: wh.ID, WarehouseCode: wh.Code}
	if err := s.checkExplicitRef(ctx, wh.ID, RefZeroReturn, req.BatchRef, req.DryRun); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	returnBin, err := getVirtualBin(ctx, tx, wh.ID, SubtypeReturn)
	if err != nil {
		return nil, err
	}
	lostBin, err := getVirtualBin(ctx, tx, wh.ID, SubtypeLost)
	if err != nil {
		return nil, err
	}
	nets, err := s.binNets(ctx, tx, wh.ID, []int{returnBin.ID, lostBin.ID}, req.DryRun)
	if err != nil {
		return nil, err
	}
	lost := make(map[string]decimal.Decimal)
	for _, b := range nets[lostBin.ID] {
		lost[b.ItemID] = b.Qty
	}

	var shortages []*InsufficientBalanceError
	for _, b := range nets[returnBin.ID] {
		if b.Qty.IsPositive() {
			result.Adjustments = append(result.Adjustments, BinAdjustment{ItemID: b.ItemID, From: SubtypeReturn, To: SubtypeLost, Qty: b.Qty})
			continue
		}
		need := b.Qty.Neg()
		if have := lost[b.ItemID]; have.LessThan(need) {
			shortages = append(shortages, &InsufficientBalanceError{
				WarehouseID: wh.ID, LocationID: lostBin.ID, ItemID: b.ItemID, Available: have, Requested: need,
			})
			continue
		}
		result.Adjustments = append(result.Adjustments, BinAdjustment{ItemID: b.ItemID, From: SubtypeLost, To: SubtypeReturn, Qty: need})
	}
	if len(shortages) > 0 {
		return nil, joinShortages(shortages)
	}

	if req.DryRun || len(result.Adjustments) == 0 {
		if len(result.Adjustments) == 0 {
			result.Note = "RETURN already zero"
		}
		report.Warehouses = append(report.Warehouses, result)
		return report, nil
	}

	result.BatchRef, err = s.claim(ctx, tx, wh.ID, RefZeroReturn, req.BatchRef, fmt.Sprintf("zero_return:%d", wh.ID), req.Actor)
	if err != nil {
		return nil, err
	}
	bins := map[LocationSubtype]int{SubtypeReturn: returnBin.ID, SubtypeLost: lostBin.ID}
	if result.RowsPosted, err = s.postAdjustments(ctx, tx, wh.ID, bins, result.Adjustments, MovementPutawayLost,
		RefZeroReturn, result.BatchRef, zeroReturnMemo, req.Actor); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit zero-return: %w", err)
	}
	report.Warehouses = append(report.Warehouses, result)
	return report, nil
}

func (s *reconcileService) CleanupExcessPending(ctx context.Context, req ExcessCleanupRequest) (*ReconcileReport, error) {
	if req.Limit < 0 {
		return nil, newValidationError("limit", "limit must not be negative")
	}
	warehouses, named, err := s.targetWarehouses(ctx, req.WarehouseCode)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{Job: "fix-excess-pending", DryRun: req.DryRun}
	for _, wh := range warehouses {
		result, err := s.cleanupExcessWarehouse(ctx, wh, req)
		if err != nil {
			if !named && isMissingBin(err) {
				report.Warehouses = append(report.Warehouses, WarehouseReconcile{
					WarehouseID: wh.ID, WarehouseCode: wh.Code, Note: "no EXCESS_PENDING bin; skipped",
				})
				continue
			}
			return report, fmt.Errorf("warehouse %s: %w", wh.Code, err)
		}
		report.Warehouses = append(report.Warehouses, *result)
	}
	return report, nil
}

func (s *reconcileService) cleanupExcessWarehouse(ctx context.Context, wh Warehouse, req ExcessCleanupRequest) (*WarehouseReconcile, error) {
	result := &WarehouseReconcile{WarehouseID: wh.ID, WarehouseCode: wh.Code}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	bin, err := getVirtualBin(ctx, tx, wh.ID, SubtypeExcessPending)
	if err != nil {
		return nil, err
	}
	nets, err := s.binNets(ctx, tx, wh.ID, []int{bin.ID}, req.DryRun)
	if err != nil {
		return nil, err
	}
	for _, b := range nets[bin.ID] {
		if !b.Qty.IsPositive() {
			continue
		}
		if req.Limit > 0 && len(result.Adjustments) >= req.Limit {
			break
		}
		result.Adjustments = append(result.Adjustments, BinAdjustment{ItemID: b.ItemID, From: SubtypeExcessPending, Qty: b.Qty})
	}

	if req.DryRun || len(result.Adjustments) == 0 {
		if len(result.Adjustments) == 0 {
			result.Note = "no stuck EXCESS_PENDING qty"
		}
		return result, nil
	}

	if result.BatchRef, err = s.claim(ctx, tx, wh.ID, RefDataFix, "", "fix-excess:"+wh.Code, req.Actor); err != nil {
		return nil, err
	}
	bins := map[LocationSubtype]int{SubtypeExcessPending: bin.ID}
	if result.RowsPosted, err = s.postAdjustments(ctx, tx, wh.ID, bins, result.Adjustments, MovementAdjDeclineExcess,
		RefDataFix, result.BatchRef, excessCleanupMemo, req.Actor); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit excess cleanup: %w", err)
	}
	return result, nil
}

func (s *reconcileService) ResetVirtualBins(ctx context.Context, req ResetBinsRequest) (*ReconcileReport, error) {
	bins := req.Bins
	if len(bins) == 0 {
		bins = []LocationSubtype{SubtypeReturn, SubtypeLost}
	}
	for _, b := range bins {
		if !b.IsVirtual() {
			return nil, newValidationError("bins", "invalid virtual subtype: %s", b)
		}
	}
	warehouses, _, err := s.targetWarehouses(ctx, req.WarehouseCode)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{Job: "reset-bins", DryRun: req.DryRun}
	for _, wh := range warehouses {
		result, err := s.resetWarehouseBins(ctx, wh, bins, req)
		if err != nil {
			return report, fmt.Errorf("warehouse %s: %w", wh.Code, err)
		}
		report.Warehouses = append(report.Warehouses, *result)
	}
	return report, nil
}

func (s *reconcileService) resetWarehouseBins(ctx context.Context, wh Warehouse, subtypes []LocationSubtype, req ResetBinsRequest) (*WarehouseReconcile, error) {
	result := &WarehouseReconcile{WarehouseID: wh.ID, WarehouseCode: wh.Code}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	bins := make(map[LocationSubtype]int, len(subtypes))
	var locIDs []int
	var missing []LocationSubtype
	for _, st := range subtypes {
		bin, err := getVirtualBin(ctx, tx, wh.ID, st)
		if err != nil {
			if isMissingBin(err) {
				missing = append(missing, st)
				continue
			}
			return nil, err
		}
		bins[st] = bin.ID
		locIDs = append(locIDs, bin.ID)
	}
	if len(missing) > 0 {
		result.Note = fmt.Sprintf("missing bins skipped: %v", missing)
	}

	nets, err := s.binNets(ctx, tx, wh.ID, locIDs, req.DryRun)
	if err != nil {
		return nil, err
	}
	for _, st := range subtypes {
		id, ok := bins[st]
		if !ok {
			continue
		}
		for _, b := range nets[id] {
			if b.Qty.IsPositive() {
				result.Adjustments = append(result.Adjustments, BinAdjustment{ItemID: b.ItemID, From: st, Qty: b.Qty})
			} else {
				result.Adjustments = append(result.Adjustments, BinAdjustment{ItemID: b.ItemID, To: st, Qty: b.Qty.Neg()})
			}
		}
	}

	if req.DryRun || len(result.Adjustments) == 0 {
		if len(result.Adjustments) == 0 && result.Note == "" {
			result.Note = "bins already zero"
		}
		return result, nil
	}

	if result.BatchRef, err = s.claim(ctx, tx, wh.ID, RefResetBins, "", "reset:"+wh.Code, req.Actor); err != nil {
		return nil, err
	}
	if result.RowsPosted, err = s.postAdjustments(ctx, tx, wh.ID, bins, result.Adjustments, MovementTransfer,
		RefResetBins, result.BatchRef, resetBinsMemo, req.Actor); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit bin reset: %w", err)
	}
	return result, nil
}

func (s *reconcileService) SyncVirtualBins(ctx context.Context) (map[string]int, error) {
	warehouses, err := listWarehouses(ctx, s.pool)
	if err != nil {
		return nil, err
	}
	created := make(map[string]int, len(warehouses))
	for _, wh := range warehouses {
		n, err := s.locations.EnsureStandardBins(ctx, wh.ID)
		if err != nil {
			return created, fmt.Errorf("warehouse %s: %w", wh.Code, err)
		}
		created[wh.Code] = n
	}
	return created, nil
}

func (s *reconcileService) AuditBatches(ctx context.Context, req AuditRequest) ([]BatchAudit, error) {
	wh, err := getWarehouse(ctx, s.pool, req.WarehouseCode)
	if err != nil {
		return nil, err
	}
	since := req.Since
	if since <= 0 {
		since = 2 * time.Hour
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT sl.ref_model, sl.ref_id, sl.item_id, sl.movement_type,
		       COUNT(*), SUM(sl.qty_delta), MAX(sl.ts),
		       EXISTS (
		           SELECT 1 FROM ledger_batches lb
		           WHERE lb.warehouse_id = sl.warehouse_id AND lb.ref_model = sl.ref_model AND lb.ref_id = sl.ref_id
		       )
		FROM stock_ledger sl
		WHERE sl.warehouse_id = $1
		  AND sl.ts >= $2
		  AND ($3 = '' OR sl.ref_model = $3)
		GROUP BY sl.warehouse_id, sl.ref_model, sl.ref_id, sl.item_id, sl.movement_type
	`, wh.ID, time.Now().Add(-since), req.RefModel)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger batches: %w", err)
	}
	defer rows.Close()

	var groups []auditGroup
	for rows.Next() {
		var g auditGroup
		if err := rows.Scan(&g.refModel, &g.refID, &g.itemID, &g.movementType, &g.rows, &g.net, &g.lastAt, &g.registered); err != nil {
			return nil, fmt.Errorf("failed to scan ledger batch: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger batches: %w", err)
	}

	audits := summarizeBatches(groups)
	if len(audits) > limit {
		audits = audits[:limit]
	}
	return audits, nil
}

// auditGroup is the ledger aggregate for one (batch, item, movement type).
type auditGroup struct {
	refModel     string
	refID        string
	itemID       string
	movementType MovementType
	rows         int
	net          decimal.Decimal
	lastAt       time.Time
	registered   bool
}

type batchKey struct {
	refModel string
	refID    string
}

// summarizeBatches folds per-item groups into one audit per batch, newest first. A batch is
// UNBALANCED when all of its movement types are relocations yet some item does not net to zero.
func summarizeBatches(groups []auditGroup) []BatchAudit {
	index := make(map[batchKey]int)
	var audits []BatchAudit
	itemNets := make(map[batchKey]map[string]decimal.Decimal)
	relocationOnly := make(map[batchKey]bool)

	for _, g := range groups {
		k := batchKey{refModel: g.refModel, refID: g.refID}
		i, ok := index[k]
		if !ok {
			i = len(audits)
			index[k] = i
			audits = append(audits, BatchAudit{RefModel: g.refModel, RefID: g.refID, NetQty: decimal.Zero, Registered: g.registered})
			itemNets[k] = make(map[string]decimal.Decimal)
			relocationOnly[k] = true
		}
		a := &audits[i]
		a.Rows += g.rows
		a.NetQty = a.NetQty.Add(g.net)
		if g.lastAt.After(a.LastAt) {
			a.LastAt = g.lastAt
		}
		if !containsMovement(a.MovementTypes, g.movementType) {
			a.MovementTypes = append(a.MovementTypes, g.movementType)
		}
		if class, err := g.movementType.Class(); err != nil || class != ClassRelocation {
			relocationOnly[k] = false
		}
		itemNets[k][g.itemID] = itemNets[k][g.itemID].Add(g.net)
	}

	for i := range audits {
		a := &audits[i]
		k := batchKey{refModel: a.RefModel, refID: a.RefID}
		if !a.Registered {
			a.Anomalies = append(a.Anomalies, AnomalyUnregistered)
		}
		if relocationOnly[k] {
			for _, net := range itemNets[k] {
				if !net.IsZero() {
					a.Anomalies = append(a.Anomalies, AnomalyUnbalanced)
					break
				}
			}
		}
		sort.Slice(a.MovementTypes, func(x, y int) bool { return a.MovementTypes[x] < a.MovementTypes[y] })
	}
	sort.SliceStable(audits, func(i, j int) bool {
		if !audits[i].LastAt.Equal(audits[j].LastAt) {
			return audits[i].LastAt.After(audits[j].LastAt)
		}
		if audits[i].RefModel != audits[j].RefModel {
			return audits[i].RefModel < audits[j].RefModel
		}
		return audits[i].RefID < audits[j].RefID
	})
	return audits
}

func containsMovement(list []MovementType, m MovementType) bool {
	for _, v := range list {
		if v == m {
			return true
		}
	}
	return false
}

// checkExplicitRef rejects a caller-supplied batch ref that was already used. Dry runs skip it.
func (s *reconcileService) checkExplicitRef(ctx context.Context, warehouseID int, refModel, refID string, dryRun bool) error {
	if refID == "" || dryRun {
		return nil
	}
	exists, err := batchExists(ctx, s.pool, warehouseID, refModel, refID)
	if err != nil {
		return err
	}
	if exists {
		return &DuplicateBatchError{RefModel: refModel, RefID: refID}
	}
	return nil
}

// claim registers refID, or a fresh ref built from prefix when refID is empty.
func (s *reconcileService) claim(ctx context.Context, tx pgx.Tx, warehouseID int, refModel, refID, prefix, actor string) (string, error) {
	if refID == "" {
		refID = newBatchRef(prefix)
	}
	claimed, err := claimBatch(ctx, tx, warehouseID, refModel, refID, actor)
	if err != nil {
		return "", err
	}
	if !claimed {
		return "", &DuplicateBatchError{RefModel: refModel, RefID: refID}
	}
	return refID, nil
}

// binNets reads per-item nets for the bins. Unless dryRun, the balances are locked first so the
// adjustments computed from them cannot race a concurrent posting.
func (s *reconcileService) binNets(ctx context.Context, tx pgx.Tx, warehouseID int, locationIDs []int, dryRun bool) (map[int][]ItemBalance, error) {
	if !dryRun {
		return s.guard.lockedBinBalances(ctx, tx, warehouseID, locationIDs)
	}
	out := make(map[int][]ItemBalance, len(locationIDs))
	for _, id := range locationIDs {
		bals, err := binBalances(ctx, tx, warehouseID, id)
		if err != nil {
			return nil, err
		}
		out[id] = bals
	}
	return out, nil
}

func (s *reconcileService) postAdjustments(ctx context.Context, tx pgx.Tx, warehouseID int, bins map[LocationSubtype]int,
	adjustments []BinAdjustment, movement MovementType, refModel, refID, memo, actor string) (int, error) {
	rows := 0
	for _, a := range adjustments {
		req := PostingRequest{
			WarehouseID:  warehouseID,
			ItemID:       a.ItemID,
			Qty:          a.Qty,
			MovementType: movement,
			RefModel:     refModel,
			RefID:        refID,
			Memo:         memo,
			Actor:        actor,
		}
		if a.From != "" {
			from := bins[a.From]
			req.FromLocationID = &from
		}
		if a.To != "" {
			to := bins[a.To]
			req.ToLocationID = &to
		}
		entries, err := s.posting.PostLedgerTx(ctx, tx, req)
		if err != nil {
			return rows, err
		}
		rows += len(entries)
	}
	return rows, nil
}

// targetWarehouses resolves one named warehouse, or all of them when code is empty.
func (s *reconcileService) targetWarehouses(ctx context.Context, code string) ([]Warehouse, bool, error) {
	if code == "" {
		warehouses, err := listWarehouses(ctx, s.pool)
		return warehouses, false, err
	}
	wh, err := getWarehouse(ctx, s.pool, code)
	if err != nil {
		return nil, true, err
	}
	return []Warehouse{*wh}, true, nil
}

func isMissingBin(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Field == "bin"
}
