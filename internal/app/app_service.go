package app

import (
	"context"
	"fmt"
	"strings"

	"warehouse-ledger/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type appService struct {
	ledger    *core.StockLedger
	locations core.LocationService
	moves     core.InternalMoveService
	putaway   core.PutawayService
	reconcile core.ReconcileService
	log       zerolog.Logger
}

// NewAppService wires the core services over one pool.
func NewAppService(pool *pgxpool.Pool, log zerolog.Logger) ApplicationService {
	ledger := core.NewStockLedger(pool)
	posting := core.NewPostingService(pool, ledger)
	guard := core.NewBalanceGuard(ledger)
	locations := core.NewLocationService(pool)
	return &appService{
		ledger:    ledger,
		locations: locations,
		moves:     core.NewInternalMoveService(pool, posting, guard),
		putaway:   core.NewPutawayService(pool, posting, guard),
		reconcile: core.NewReconcileService(pool, posting, guard, locations),
		log:       log,
	}
}

// ProvisionWarehouse creates the warehouse, then its standard bins. A failure creating the bins
// leaves the warehouse in place; `warehouse sync-bins` repairs it.
func (s *appService) ProvisionWarehouse(ctx context.Context, req ProvisionWarehouseRequest) (*WarehouseResult, error) {
	wh, err := s.locations.CreateWarehouse(ctx, core.WarehouseInput{
		Code:         req.Code,
		Name:         req.Name,
		GSTIN:        req.GSTIN,
		AddressLine1: req.AddressLine1,
		AddressLine2: req.AddressLine2,
		City:         req.City,
		State:        req.State,
		Pincode:      req.Pincode,
		Country:      req.Country,
	})
	if err != nil {
		return nil, err
	}
	created, err := s.locations.EnsureStandardBins(ctx, wh.ID)
	if err != nil {
		return nil, fmt.Errorf("warehouse %s created but standard bins failed: %w", wh.Code, err)
	}
	s.log.Info().Str("warehouse", wh.Code).Int("bins_created", created).Msg("warehouse provisioned")
	return &WarehouseResult{Warehouse: wh, BinsCreated: created}, nil
}

func (s *appService) ListWarehouses(ctx context.Context) (*WarehouseListResult, error) {
	warehouses, err := s.locations.ListWarehouses(ctx)
	if err != nil {
		return nil, err
	}
	return &WarehouseListResult{Warehouses: warehouses}, nil
}

func (s *appService) SyncVirtualBins(ctx context.Context) (*SyncBinsResult, error) {
	created, err := s.reconcile.SyncVirtualBins(ctx)
	if err != nil {
		return nil, err
	}
	for code, n := range created {
		if n > 0 {
			s.log.Info().Str("warehouse", code).Int("bins_created", n).Msg("virtual bins synced")
		}
	}
	return &SyncBinsResult{Created: created}, nil
}

func (s *appService) AddLocation(ctx context.Context, req AddLocationRequest) (*core.Location, error) {
	wh, err := s.locations.GetWarehouse(ctx, req.Warehouse)
	if err != nil {
		return nil, err
	}
	return s.locations.CreatePhysicalLocation(ctx, wh.ID, req.Code, req.DisplayName)
}

func (s *appService) ListLocations(ctx context.Context, warehouseRef string) (*LocationListResult, error) {
	wh, err := s.locations.GetWarehouse(ctx, warehouseRef)
	if err != nil {
		return nil, err
	}
	locs, err := s.locations.ListLocations(ctx, wh.ID)
	if err != nil {
		return nil, err
	}
	return &LocationListResult{WarehouseCode: wh.Code, Locations: locs}, nil
}

func (s *appService) SetLocationStatus(ctx context.Context, warehouseRef, locationCode, status string) (*core.Location, error) {
	st, err := core.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	wh, err := s.locations.GetWarehouse(ctx, warehouseRef)
	if err != nil {
		return nil, err
	}
	loc, err := s.locations.GetLocationByCode(ctx, wh.ID, locationCode)
	if err != nil {
		return nil, err
	}
	if err := s.locations.SetLocationStatus(ctx, loc.ID, st); err != nil {
		return nil, err
	}
	loc.Status = st
	s.log.Info().Str("warehouse", wh.Code).Str("location", loc.Code).Str("status", string(st)).Msg("location status changed")
	return loc, nil
}

func (s *appService) RegisterItem(ctx context.Context, req RegisterItemRequest) error {
	return s.locations.RegisterItem(ctx, core.Item{ID: req.ID, SKU: req.SKU, Name: req.Name})
}

func (s *appService) GetBalance(ctx context.Context, warehouseRef, locationRef, itemID string) (*BalanceResult, error) {
	wh, loc, err := s.resolveLocation(ctx, warehouseRef, locationRef)
	if err != nil {
		return nil, err
	}
	qty, err := s.ledger.Balance(ctx, wh.ID, loc.ID, itemID)
	if err != nil {
		return nil, err
	}
	return &BalanceResult{WarehouseCode: wh.Code, Location: loc, ItemID: itemID, Qty: qty}, nil
}

func (s *appService) GetLocationStock(ctx context.Context, warehouseRef, locationRef string) (*StockResult, error) {
	wh, loc, err := s.resolveLocation(ctx, warehouseRef, locationRef)
	if err != nil {
		return nil, err
	}
	bals, err := s.ledger.BinBalances(ctx, wh.ID, loc.ID)
	if err != nil {
		return nil, err
	}
	return &StockResult{WarehouseCode: wh.Code, Location: loc, Balances: bals}, nil
}

func (s *appService) ListPutawayCandidates(ctx context.Context, warehouseRef string) (*PutawayCandidatesResult, error) {
	wh, err := s.locations.GetWarehouse(ctx, warehouseRef)
	if err != nil {
		return nil, err
	}
	cands, err := s.ledger.PutawayCandidates(ctx, wh.ID)
	if err != nil {
		return nil, err
	}
	return &PutawayCandidatesResult{WarehouseCode: wh.Code, Candidates: cands}, nil
}

func (s *appService) GetBatch(ctx context.Context, warehouseRef, refModel, refID string) (*BatchResult, error) {
	wh, err := s.locations.GetWarehouse(ctx, warehouseRef)
	if err != nil {
		return nil, err
	}
	entries, err := s.ledger.EntriesByBatch(ctx, wh.ID, refModel, refID)
	if err != nil {
		return nil, err
	}
	return &BatchResult{WarehouseCode: wh.Code, RefModel: refModel, RefID: refID, Entries: entries}, nil
}

func (s *appService) MoveStock(ctx context.Context, req MoveRequest) (*MoveResult, error) {
	wh, err := s.locations.GetWarehouse(ctx, req.Warehouse)
	if err != nil {
		return nil, err
	}
	if len(req.Lines) == 0 {
		return nil, &core.ValidationError{Field: "lines", Message: "no quantities entered"}
	}

	cache := map[string]*core.Location{}
	physical := func(code string) (*core.Location, error) {
		code = strings.TrimSpace(code)
		if code == "" {
			return nil, &core.ValidationError{Field: "location", Message: "source and target location codes are required"}
		}
		if loc, ok := cache[code]; ok {
			return loc, nil
		}
		loc, err := s.locations.GetLocationByCode(ctx, wh.ID, code)
		if err != nil {
			return nil, err
		}
		cache[code] = loc
		return loc, nil
	}

	lines := make([]core.MoveLine, 0, len(req.Lines))
	for _, in := range req.Lines {
		qty, err := parseQty(in.Item, in.Qty)
		if err != nil {
			return nil, err
		}
		src, err := physical(firstNonEmpty(in.From, req.From))
		if err != nil {
			return nil, err
		}
		dst, err := physical(firstNonEmpty(in.To, req.To))
		if err != nil {
			return nil, err
		}
		lines = append(lines, core.MoveLine{ItemID: strings.TrimSpace(in.Item), SourceLocationID: src.ID, TargetLocationID: dst.ID, Qty: qty})
	}

	var res *core.MoveResult
	switch {
	case req.Strict:
		if len(lines) != 1 {
			return nil, &core.ValidationError{Field: "lines", Message: "strict moves take exactly one line"}
		}
		res, err = s.moves.MoveSingle(ctx, req.Actor, lines[0], req.Ref)
	case sharesEndpoints(lines):
		rows := make([]core.RowLine, len(lines))
		for i, ln := range lines {
			rows[i] = core.RowLine{ItemID: ln.ItemID, Qty: ln.Qty}
		}
		res, err = s.moves.MoveRows(ctx, core.MoveRowsRequest{
			WarehouseID:      wh.ID,
			SourceLocationID: lines[0].SourceLocationID,
			TargetLocationID: lines[0].TargetLocationID,
			Lines:            rows,
			Memo:             req.Memo,
			Actor:            req.Actor,
			BatchRef:         req.Ref,
		})
	default:
		res, err = s.moves.PostInternalMove(ctx, req.Actor, lines, req.Ref)
	}
	if err != nil {
		return nil, err
	}

	ev := s.log.Info()
	if !res.OK() {
		ev = s.log.Warn()
	}
	ev.Str("warehouse", wh.Code).
		Str("batch_ref", res.BatchRef).
		Int("rows", res.Posted).
		Int("failed_lines", len(res.Errors)).
		Bool("duplicate", res.Duplicate).
		Msg("internal move")
	return &MoveResult{WarehouseCode: wh.Code, MoveResult: res}, nil
}

func (s *appService) Putaway(ctx context.Context, req PutawayRequest) (*PutawayResult, error) {
	wh, err := s.locations.GetWarehouse(ctx, req.Warehouse)
	if err != nil {
		return nil, err
	}

	reasons := make(map[core.LocationSubtype]string, len(req.Reasons))
	for bin, memo := range req.Reasons {
		st, err := core.ParseVirtualSubtype(bin)
		if err != nil {
			return nil, err
		}
		reasons[st] = memo
	}

	bins := map[core.LocationSubtype]*core.Location{}
	actions := make([]core.PutawayAction, 0, len(req.Actions))
	for _, in := range req.Actions {
		typ, err := core.ParsePutawayActionType(in.Type)
		if err != nil {
			return nil, err
		}
		qty, err := parseQty(in.Item, in.Qty)
		if err != nil {
			return nil, err
		}
		st, err := core.ParseVirtualSubtype(in.Source)
		if err != nil {
			return nil, err
		}
		bin, ok := bins[st]
		if !ok {
			if bin, err = s.locations.GetVirtualBin(ctx, wh.ID, st); err != nil {
				return nil, err
			}
			bins[st] = bin
		}
		action := core.PutawayAction{Type: typ, ItemID: strings.TrimSpace(in.Item), SourceBinID: bin.ID, Qty: qty}
		if typ == core.PutawayToLocation {
			if strings.TrimSpace(in.Target) == "" {
				return nil, &core.ValidationError{Field: "target", Message: fmt.Sprintf("target location is required for PUTAWAY of item %s", in.Item)}
			}
			target, err := s.locations.GetLocationByCode(ctx, wh.ID, in.Target)
			if err != nil {
				return nil, err
			}
			action.TargetLocationID = target.ID
		}
		actions = append(actions, action)
	}

	summary, err := s.putaway.PostActions(ctx, core.PutawayRequest{
		WarehouseID: wh.ID,
		Actions:     actions,
		Actor:       req.Actor,
		ReasonMap:   reasons,
		BatchRef:    req.Ref,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("warehouse", wh.Code).
		Str("batch_ref", summary.BatchRef).
		Int("actions", summary.PostedCount).
		Int("rows", summary.RowsWritten).
		Bool("duplicate", summary.Duplicate).
		Msg("putaway posted")
	return &PutawayResult{WarehouseCode: wh.Code, PutawaySummary: summary}, nil
}

func (s *appService) ReturnToLost(ctx context.Context, req core.ReturnToLostRequest) (*core.ReconcileReport, error) {
	report, err := s.reconcile.ReturnToLost(ctx, req)
	s.logReport(report, err)
	return report, err
}

func (s *appService) ZeroReturnBin(ctx context.Context, req core.ZeroReturnRequest) (*core.ReconcileReport, error) {
	report, err := s.reconcile.ZeroReturnBin(ctx, req)
	s.logReport(report, err)
	return report, err
}

func (s *appService) CleanupExcessPending(ctx context.Context, req core.ExcessCleanupRequest) (*core.ReconcileReport, error) {
	report, err := s.reconcile.CleanupExcessPending(ctx, req)
	s.logReport(report, err)
	return report, err
}

func (s *appService) ResetVirtualBins(ctx context.Context, req core.ResetBinsRequest) (*core.ReconcileReport, error) {
	report, err := s.reconcile.ResetVirtualBins(ctx, req)
	s.logReport(report, err)
	return report, err
}

func (s *appService) AuditBatches(ctx context.Context, req core.AuditRequest) (*AuditResult, error) {
	batches, err := s.reconcile.AuditBatches(ctx, req)
	if err != nil {
		return nil, err
	}
	result := &AuditResult{WarehouseCode: req.WarehouseCode, Batches: batches}
	for _, b := range result.Anomalous() {
		s.log.Warn().
			Str("warehouse", req.WarehouseCode).
			Str("ref_model", b.RefModel).
			Str("ref_id", b.RefID).
			Strs("anomalies", b.Anomalies).
			Msg("batch anomaly")
	}
	return result, nil
}

// logReport logs one line per warehouse a job touched. Reports may be partial on error.
func (s *appService) logReport(report *core.ReconcileReport, err error) {
	if report != nil {
		for _, w := range report.Warehouses {
			s.log.Info().
				Str("job", report.Job).
				Bool("dry_run", report.DryRun).
				Str("warehouse", w.WarehouseCode).
				Str("batch_ref", w.BatchRef).
				Int("adjustments", len(w.Adjustments)).
				Int("rows", w.RowsPosted).
				Str("note", w.Note).
				Msg("reconcile")
		}
	}
	if err != nil {
		s.log.Error().Err(err).Msg("reconcile failed")
	}
}

// resolveLocation accepts a virtual bin name (RETURN, LOST, ...) or a physical location code.
func (s *appService) resolveLocation(ctx context.Context, warehouseRef, locationRef string) (*core.Warehouse, *core.Location, error) {
	wh, err := s.locations.GetWarehouse(ctx, warehouseRef)
	if err != nil {
		return nil, nil, err
	}
	if st, err := core.ParseVirtualSubtype(locationRef); err == nil {
		loc, err := s.locations.GetVirtualBin(ctx, wh.ID, st)
		return wh, loc, err
	}
	loc, err := s.locations.GetLocationByCode(ctx, wh.ID, locationRef)
	return wh, loc, err
}

func parseQty(item, raw string) (decimal.Decimal, error) {
	qty, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, &core.ValidationError{Field: "qty", Message: fmt.Sprintf("invalid quantity %q for item %s", raw, item)}
	}
	return qty, nil
}

func sharesEndpoints(lines []core.MoveLine) bool {
	for _, ln := range lines[1:] {
		if ln.SourceLocationID != lines[0].SourceLocationID || ln.TargetLocationID != lines[0].TargetLocationID {
			return false
		}
	}
	return true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
