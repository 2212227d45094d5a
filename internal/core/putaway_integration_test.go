package core_test

import (
	"errors"
	"testing"

	"warehouse-ledger/internal/core"

	"github.com/google/uuid"
)

func TestPutaway_DrainsReturnAndReceive(t *testing.T) {
	f := setupTestDB(t)
	ret := f.bin(t, core.SubtypeReturn)
	recv := f.bin(t, core.SubtypeReceive)
	lost := f.bin(t, core.SubtypeLost)
	f.seed(t, ret, "ITEM-1", "5")
	f.seed(t, recv, "ITEM-1", "7")

	summary, err := f.putaway.PostActions(f.ctx, core.PutawayRequest{
		WarehouseID: f.wh.ID,
		Actor:       "carol",
		Actions: []core.PutawayAction{
			{Type: core.PutawayToLocation, ItemID: "ITEM-1", SourceBinID: ret.ID, TargetLocationID: f.a1.ID, Qty: dec("3")},
			{Type: core.PutawayToLost, ItemID: "ITEM-1", SourceBinID: recv.ID, Qty: dec("2")},
		},
	})
	if err != nil {
		t.Fatalf("PostActions failed: %v", err)
	}
	if summary.PostedCount != 2 || summary.RowsWritten != 4 || !summary.TotalQty.Equal(dec("5")) {
		t.Errorf("Unexpected summary %+v", summary)
	}

	f.expectBalance(t, ret, "ITEM-1", "2")
	f.expectBalance(t, recv, "ITEM-1", "5")
	f.expectBalance(t, f.a1, "ITEM-1", "3")
	f.expectBalance(t, lost, "ITEM-1", "2")

	entries, err := f.ledger.EntriesByBatch(f.ctx, f.wh.ID, core.RefPutaway, summary.BatchRef)
	if err != nil {
		t.Fatalf("EntriesByBatch failed: %v", err)
	}
	counts := map[core.MovementType]int{}
	for _, e := range entries {
		counts[e.MovementType]++
		if e.MovementType == core.MovementPutawayLost && e.Memo != "lost via putaway" {
			t.Errorf("Unexpected LOST memo %q", e.Memo)
		}
		if e.MovementType == core.MovementPutaway && e.Memo != "putaway" {
			t.Errorf("Unexpected PUTAWAY memo %q", e.Memo)
		}
	}
	if counts[core.MovementPutaway] != 2 || counts[core.MovementPutawayLost] != 2 {
		t.Errorf("Expected two rows per action, got %v", counts)
	}
}

func TestPutaway_ReasonMapAndMerge(t *testing.T) {
	f := setupTestDB(t)
	ret := f.bin(t, core.SubtypeReturn)
	f.seed(t, ret, "ITEM-2", "4")

	summary, err := f.putaway.PostActions(f.ctx, core.PutawayRequest{
		WarehouseID: f.wh.ID,
		ReasonMap:   map[core.LocationSubtype]string{core.SubtypeReturn: "customer return restock"},
		Actions: []core.PutawayAction{
			{Type: core.PutawayToLocation, ItemID: "ITEM-2", SourceBinID: ret.ID, TargetLocationID: f.a2.ID, Qty: dec("1")},
			{Type: core.PutawayToLocation, ItemID: "ITEM-2", SourceBinID: ret.ID, TargetLocationID: f.a2.ID, Qty: dec("3")},
		},
	})
	if err != nil {
		t.Fatalf("PostActions failed: %v", err)
	}
	if summary.PostedCount != 1 || summary.RowsWritten != 2 {
		t.Errorf("Expected merged action, got %+v", summary)
	}
	entries, err := f.ledger.EntriesByBatch(f.ctx, f.wh.ID, core.RefPutaway, summary.BatchRef)
	if err != nil {
		t.Fatalf("EntriesByBatch failed: %v", err)
	}
	for _, e := range entries {
		if e.Memo != "customer return restock" {
			t.Errorf("Expected reason map memo, got %q", e.Memo)
		}
	}
	f.expectBalance(t, f.a2, "ITEM-2", "4")
}

func TestPutaway_InsufficientIsAllOrNothing(t *testing.T) {
	f := setupTestDB(t)
	ret := f.bin(t, core.SubtypeReturn)
	f.seed(t, ret, "ITEM-1", "5")
	f.seed(t, ret, "ITEM-2", "1")

	_, err := f.putaway.PostActions(f.ctx, core.PutawayRequest{
		WarehouseID: f.wh.ID,
		Actions: []core.PutawayAction{
			{Type: core.PutawayToLocation, ItemID: "ITEM-1", SourceBinID: ret.ID, TargetLocationID: f.a1.ID, Qty: dec("5")},
			{Type: core.PutawayToLocation, ItemID: "ITEM-2", SourceBinID: ret.ID, TargetLocationID: f.a1.ID, Qty: dec("2")},
		},
	})
	if !errors.Is(err, core.ErrInsufficientBalance) {
		t.Fatalf("Expected insufficient balance, got %v", err)
	}
	f.expectBalance(t, ret, "ITEM-1", "5")
	f.expectBalance(t, f.a1, "ITEM-1", "0")
}

func TestPutaway_LocationRules(t *testing.T) {
	f := setupTestDB(t)
	ret := f.bin(t, core.SubtypeReturn)
	damage := f.bin(t, core.SubtypeDamage)
	f.seed(t, ret, "ITEM-1", "5")
	f.seed(t, damage, "ITEM-1", "5")
	if err := f.locations.SetLocationStatus(f.ctx, f.a2.ID, core.StatusInactive); err != nil {
		t.Fatalf("SetLocationStatus failed: %v", err)
	}

	cases := []struct {
		name   string
		action core.PutawayAction
	}{
		{"source not inbound", core.PutawayAction{Type: core.PutawayToLocation, ItemID: "ITEM-1", SourceBinID: damage.ID, TargetLocationID: f.a1.ID, Qty: dec("1")}},
		{"physical source", core.PutawayAction{Type: core.PutawayToLocation, ItemID: "ITEM-1", SourceBinID: f.a1.ID, TargetLocationID: f.a2.ID, Qty: dec("1")}},
		{"inactive target", core.PutawayAction{Type: core.PutawayToLocation, ItemID: "ITEM-1", SourceBinID: ret.ID, TargetLocationID: f.a2.ID, Qty: dec("1")}},
		{"virtual target", core.PutawayAction{Type: core.PutawayToLocation, ItemID: "ITEM-1", SourceBinID: ret.ID, TargetLocationID: damage.ID, Qty: dec("1")}},
		{"missing target", core.PutawayAction{Type: core.PutawayToLocation, ItemID: "ITEM-1", SourceBinID: ret.ID, Qty: dec("1")}},
		{"bad type", core.PutawayAction{Type: "SHIP", ItemID: "ITEM-1", SourceBinID: ret.ID, Qty: dec("1")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.putaway.PostActions(f.ctx, core.PutawayRequest{WarehouseID: f.wh.ID, Actions: []core.PutawayAction{tc.action}})
			if !errors.Is(err, core.ErrValidation) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
}

func TestPutaway_DuplicateRef(t *testing.T) {
	f := setupTestDB(t)
	ret := f.bin(t, core.SubtypeReturn)
	f.seed(t, ret, "ITEM-1", "5")

	req := core.PutawayRequest{
		WarehouseID: f.wh.ID,
		BatchRef:    uuid.NewString(),
		Actions: []core.PutawayAction{
			{Type: core.PutawayToLocation, ItemID: "ITEM-1", SourceBinID: ret.ID, TargetLocationID: f.a1.ID, Qty: dec("2")},
		},
	}
	if _, err := f.putaway.PostActions(f.ctx, req); err != nil {
		t.Fatalf("First putaway failed: %v", err)
	}
	summary, err := f.putaway.PostActions(f.ctx, req)
	if err != nil {
		t.Fatalf("Second putaway failed: %v", err)
	}
	if !summary.Duplicate || summary.PostedCount != 0 {
		t.Errorf("Expected duplicate with nothing posted, got %+v", summary)
	}
	f.expectBalance(t, ret, "ITEM-1", "3")
}

func TestPutaway_UnknownItemIsNotFound(t *testing.T) {
	f := setupTestDB(t)
	ret := f.bin(t, core.SubtypeReturn)
	f.seed(t, ret, "ITEM-1", "5")
	rows := f.ledgerRows(t)

	_, err := f.putaway.PostActions(f.ctx, core.PutawayRequest{
		WarehouseID: f.wh.ID,
		Actions: []core.PutawayAction{
			{Type: core.PutawayToLocation, ItemID: "ITEM-1", SourceBinID: ret.ID, TargetLocationID: f.a1.ID, Qty: dec("1")},
			{Type: core.PutawayToLost, ItemID: "NO-SUCH-ITEM", SourceBinID: ret.ID, Qty: dec("1")},
		},
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Expected not found error, got %v", err)
	}
	if got := f.ledgerRows(t); got != rows {
		t.Errorf("Expected no rows written, got %d new", got-rows)
	}
}

func TestPutaway_UnknownWarehouseIsNotFound(t *testing.T) {
	f := setupTestDB(t)
	ret := f.bin(t, core.SubtypeReturn)

	_, err := f.putaway.PostActions(f.ctx, core.PutawayRequest{
		WarehouseID: f.wh.ID + 1000,
		Actions: []core.PutawayAction{
			{Type: core.PutawayToLost, ItemID: "ITEM-1", SourceBinID: ret.ID, Qty: dec("1")},
		},
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Expected not found error, got %v", err)
	}
}
