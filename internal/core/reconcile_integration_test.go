package core_test

import (
	"errors"
	"testing"
	"time"

	"warehouse-ledger/internal/core"

	"github.com/google/uuid"
)

func TestReturnToLost(t *testing.T) {
	f := setupTestDB(t)
	ret := f.bin(t, core.SubtypeReturn)
	lost := f.bin(t, core.SubtypeLost)
	f.seed(t, ret, "ITEM-1", "5")
	f.seed(t, ret, "ITEM-2", "-2")

	before := f.ledgerRows(t)
	dry, err := f.reconcile.ReturnToLost(f.ctx, core.ReturnToLostRequest{WarehouseCode: "WH1", DryRun: true})
	if err != nil {
		t.Fatalf("Dry run failed: %v", err)
	}
	if len(dry.Warehouses) != 1 || len(dry.Warehouses[0].Adjustments) != 1 {
		t.Fatalf("Expected one planned adjustment, got %+v", dry)
	}
	if after := f.ledgerRows(t); after != before {
		t.Errorf("Dry run wrote %d rows", after-before)
	}

	ref := uuid.NewString()
	report, err := f.reconcile.ReturnToLost(f.ctx, core.ReturnToLostRequest{WarehouseCode: "WH1", BatchRef: ref, Actor: "ops"})
	if err != nil {
		t.Fatalf("ReturnToLost failed: %v", err)
	}
	if report.RowsPosted() != 2 {
		t.Errorf("Expected exactly two rows, got %d", report.RowsPosted())
	}
	entries, err := f.ledger.EntriesByBatch(f.ctx, f.wh.ID, core.RefReturnToLost, ref)
	if err != nil {
		t.Fatalf("EntriesByBatch failed: %v", err)
	}
	if len(entries) != 2 || entries[0].MovementType != core.MovementPutawayLost {
		t.Errorf("Expected two PUTAWAY_LOST rows in the batch, got %+v", entries)
	}
	f.expectBalance(t, ret, "ITEM-1", "0")
	f.expectBalance(t, lost, "ITEM-1", "5")
	// Negative nets are left alone.
	f.expectBalance(t, ret, "ITEM-2", "-2")

	_, err = f.reconcile.ReturnToLost(f.ctx, core.ReturnToLostRequest{WarehouseCode: "WH1", BatchRef: ref})
	var dup *core.DuplicateBatchError
	if !errors.As(err, &dup) || dup.RefID != ref {
		t.Errorf("Expected DuplicateBatchError for reused ref, got %v", err)
	}

	again, err := f.reconcile.ReturnToLost(f.ctx, core.ReturnToLostRequest{WarehouseCode: "WH1"})
	if err != nil {
		t.Fatalf("Re-run failed: %v", err)
	}
	if again.RowsPosted() != 0 {
		t.Errorf("Expected re-run to be a no-op, got %d rows", again.RowsPosted())
	}
}

func TestReturnToLost_UnknownWarehouse(t *testing.T) {
	f := setupTestDB(t)

	_, err := f.reconcile.ReturnToLost(f.ctx, core.ReturnToLostRequest{WarehouseCode: "NOPE"})
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestCleanupExcessPending(t *testing.T) {
	f := setupTestDB(t)
	pending := f.bin(t, core.SubtypeExcessPending)
	f.seed(t, pending, "ITEM-1", "4")

	report, err := f.reconcile.CleanupExcessPending(f.ctx, core.ExcessCleanupRequest{WarehouseCode: "WH1"})
	if err != nil {
		t.Fatalf("CleanupExcessPending failed: %v", err)
	}
	if report.RowsPosted() != 1 {
		t.Errorf("Expected a single write-off row, got %d", report.RowsPosted())
	}
	f.expectBalance(t, pending, "ITEM-1", "0")

	entries, err := f.ledger.EntriesByBatch(f.ctx, f.wh.ID, core.RefDataFix, report.Warehouses[0].BatchRef)
	if err != nil {
		t.Fatalf("EntriesByBatch failed: %v", err)
	}
	if len(entries) != 1 || entries[0].MovementType != core.MovementAdjDeclineExcess {
		t.Errorf("Expected one ADJ_DECLINE_EXCESS row, got %+v", entries)
	}

	again, err := f.reconcile.CleanupExcessPending(f.ctx, core.ExcessCleanupRequest{WarehouseCode: "WH1"})
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if len(again.Warehouses[0].Adjustments) != 0 || again.RowsPosted() != 0 {
		t.Errorf("Expected second run to find nothing, got %+v", again.Warehouses[0])
	}
}

func TestCleanupExcessPending_LimitAndDryRun(t *testing.T) {
	f := setupTestDB(t)
	pending := f.bin(t, core.SubtypeExcessPending)
	f.seed(t, pending, "ITEM-1", "1")
	f.seed(t, pending, "ITEM-2", "2")
	f.seed(t, pending, "ITEM-3", "3")

	dry, err := f.reconcile.CleanupExcessPending(f.ctx, core.ExcessCleanupRequest{DryRun: true})
	if err != nil {
		t.Fatalf("Dry run failed: %v", err)
	}
	if !dry.TotalQty().Equal(dec("6")) || dry.RowsPosted() != 0 {
		t.Errorf("Expected 6 planned and nothing posted, got %s / %d", dry.TotalQty(), dry.RowsPosted())
	}

	report, err := f.reconcile.CleanupExcessPending(f.ctx, core.ExcessCleanupRequest{WarehouseCode: "WH1", Limit: 2})
	if err != nil {
		t.Fatalf("CleanupExcessPending failed: %v", err)
	}
	if report.RowsPosted() != 2 {
		t.Errorf("Expected limit of 2 items, got %d rows", report.RowsPosted())
	}
	f.expectBalance(t, pending, "ITEM-1", "0")
	f.expectBalance(t, pending, "ITEM-2", "0")
	f.expectBalance(t, pending, "ITEM-3", "3")
}

func TestCleanupExcessPending_MissingBin(t *testing.T) {
	f := setupTestDB(t)
	bare, err := f.locations.CreateWarehouse(f.ctx, core.WarehouseInput{Code: "BARE", Name: "No bins"})
	if err != nil {
		t.Fatalf("CreateWarehouse failed: %v", err)
	}

	_, err = f.reconcile.CleanupExcessPending(f.ctx, core.ExcessCleanupRequest{WarehouseCode: bare.Code})
	if !errors.Is(err, core.ErrValidation) {
		t.Errorf("Expected validation error for named warehouse without bin, got %v", err)
	}

	report, err := f.reconcile.CleanupExcessPending(f.ctx, core.ExcessCleanupRequest{})
	if err != nil {
		t.Fatalf("Scan of all warehouses failed: %v", err)
	}
	if len(report.Warehouses) != 2 {
		t.Fatalf("Expected both warehouses reported, got %+v", report.Warehouses)
	}
	for _, w := range report.Warehouses {
		if w.WarehouseCode == "BARE" && w.Note == "" {
			t.Error("Expected a skip note for BARE")
		}
	}
}

func TestZeroReturnBin(t *testing.T) {
	f := setupTestDB(t)
	ret := f.bin(t, core.SubtypeReturn)
	lost := f.bin(t, core.SubtypeLost)
	f.seed(t, ret, "ITEM-1", "4")
	f.seed(t, ret, "ITEM-2", "-3")
	f.seed(t, lost, "ITEM-2", "5")

	report, err := f.reconcile.ZeroReturnBin(f.ctx, core.ZeroReturnRequest{WarehouseCode: "WH1"})
	if err != nil {
		t.Fatalf("ZeroReturnBin failed: %v", err)
	}
	if report.RowsPosted() != 4 {
		t.Errorf("Expected 4 rows, got %d", report.RowsPosted())
	}
	f.expectBalance(t, ret, "ITEM-1", "0")
	f.expectBalance(t, lost, "ITEM-1", "4")
	f.expectBalance(t, ret, "ITEM-2", "0")
	f.expectBalance(t, lost, "ITEM-2", "2")
}

func TestZeroReturnBin_LostShortage(t *testing.T) {
	f := setupTestDB(t)
	ret := f.bin(t, core.SubtypeReturn)
	lost := f.bin(t, core.SubtypeLost)
	f.seed(t, ret, "ITEM-1", "-3")
	f.seed(t, lost, "ITEM-1", "1")

	_, err := f.reconcile.ZeroReturnBin(f.ctx, core.ZeroReturnRequest{WarehouseCode: "WH1"})
	if !errors.Is(err, core.ErrInsufficientBalance) {
		t.Fatalf("Expected insufficient balance, got %v", err)
	}
	f.expectBalance(t, ret, "ITEM-1", "-3")
	f.expectBalance(t, lost, "ITEM-1", "1")
}

func TestResetVirtualBins(t *testing.T) {
	f := setupTestDB(t)
	ret := f.bin(t, core.SubtypeReturn)
	lost := f.bin(t, core.SubtypeLost)
	hold := f.bin(t, core.SubtypeHold)
	f.seed(t, ret, "ITEM-1", "3")
	f.seed(t, lost, "ITEM-1", "-2")
	f.seed(t, hold, "ITEM-1", "7")

	report, err := f.reconcile.ResetVirtualBins(f.ctx, core.ResetBinsRequest{WarehouseCode: "WH1"})
	if err != nil {
		t.Fatalf("ResetVirtualBins failed: %v", err)
	}
	if report.RowsPosted() != 2 {
		t.Errorf("Expected 2 rows, got %d", report.RowsPosted())
	}
	f.expectBalance(t, ret, "ITEM-1", "0")
	f.expectBalance(t, lost, "ITEM-1", "0")
	// HOLD was not in the default bin list.
	f.expectBalance(t, hold, "ITEM-1", "7")

	if _, err := f.reconcile.ResetVirtualBins(f.ctx, core.ResetBinsRequest{Bins: []core.LocationSubtype{core.SubtypeHold}}); err != nil {
		t.Fatalf("ResetVirtualBins(HOLD) failed: %v", err)
	}
	f.expectBalance(t, hold, "ITEM-1", "0")
}

func TestSyncVirtualBins(t *testing.T) {
	f := setupTestDB(t)
	if _, err := f.locations.CreateWarehouse(f.ctx, core.WarehouseInput{Code: "BARE", Name: "No bins"}); err != nil {
		t.Fatalf("CreateWarehouse failed: %v", err)
	}

	created, err := f.reconcile.SyncVirtualBins(f.ctx)
	if err != nil {
		t.Fatalf("SyncVirtualBins failed: %v", err)
	}
	if created["BARE"] != len(core.StandardVirtualSubtypes) || created["WH1"] != 0 {
		t.Errorf("Unexpected created counts %v", created)
	}
}

func TestAuditBatches(t *testing.T) {
	f := setupTestDB(t)
	f.seed(t, f.a1, "ITEM-1", "10")

	res, err := f.moves.PostInternalMove(f.ctx, "alice", []core.MoveLine{
		{ItemID: "ITEM-1", SourceLocationID: f.a1.ID, TargetLocationID: f.a2.ID, Qty: dec("4")},
	}, "")
	if err != nil {
		t.Fatalf("PostInternalMove failed: %v", err)
	}

	// A registered relocation batch that does not net to zero.
	broken := uuid.NewString()
	if _, err := f.pool.Exec(f.ctx,
		"INSERT INTO ledger_batches (warehouse_id, ref_model, ref_id) VALUES ($1, $2, $3)",
		f.wh.ID, core.RefPutaway, broken); err != nil {
		t.Fatalf("register batch failed: %v", err)
	}
	if _, err := f.ledger.Post(f.ctx, []core.EntrySpec{{
		WarehouseID: f.wh.ID, LocationID: f.a2.ID, ItemID: "ITEM-1", QtyDelta: dec("1"),
		MovementType: core.MovementPutaway, RefModel: core.RefPutaway, RefID: broken,
	}}); err != nil {
		t.Fatalf("Post failed: %v", err)
	}

	audits, err := f.reconcile.AuditBatches(f.ctx, core.AuditRequest{WarehouseCode: "WH1", Since: time.Hour})
	if err != nil {
		t.Fatalf("AuditBatches failed: %v", err)
	}
	byRef := map[string]core.BatchAudit{}
	for _, a := range audits {
		byRef[a.RefID] = a
	}

	move := byRef[res.BatchRef]
	if move.Rows != 2 || !move.Registered || len(move.Anomalies) != 0 {
		t.Errorf("Expected clean internal move batch, got %+v", move)
	}
	if got := byRef[broken]; len(got.Anomalies) != 1 || got.Anomalies[0] != core.AnomalyUnbalanced {
		t.Errorf("Expected UNBALANCED, got %+v", got)
	}
	unregistered := 0
	for _, a := range audits {
		if a.RefModel == "test.Seed" {
			unregistered++
			if len(a.Anomalies) != 1 || a.Anomalies[0] != core.AnomalyUnregistered {
				t.Errorf("Expected seed batch to be UNREGISTERED, got %+v", a)
			}
		}
	}
	if unregistered != 1 {
		t.Errorf("Expected one seed batch, got %d", unregistered)
	}

	only, err := f.reconcile.AuditBatches(f.ctx, core.AuditRequest{WarehouseCode: "WH1", RefModel: core.RefInternalMove})
	if err != nil {
		t.Fatalf("AuditBatches(filter) failed: %v", err)
	}
	if len(only) != 1 || only[0].RefID != res.BatchRef {
		t.Errorf("Expected filter to keep only the move batch, got %+v", only)
	}
}
