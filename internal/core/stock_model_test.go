package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestMovementClass_EveryTypeHandled(t *testing.T) {
	relocation := map[MovementType]bool{
		MovementInternalTransfer: true,
		MovementPutaway:          true,
		MovementPutawayLost:      true,
	}
	for _, m := range AllMovementTypes {
		class, err := m.Class()
		if err != nil {
			t.Errorf("%s: %v", m, err)
			continue
		}
		want := ClassBoundary
		if relocation[m] {
			want = ClassRelocation
		}
		if class != want {
			t.Errorf("%s: expected class %d, got %d", m, want, class)
		}
	}
	if MovementType("SHIPPED").Valid() {
		t.Error("unknown movement type reported as valid")
	}
}

func TestLocationSubtype_DisplayName(t *testing.T) {
	cases := map[LocationSubtype]string{
		SubtypeReturn:        "Return",
		SubtypeQC:            "Qc",
		SubtypeExcessPending: "Excess Pending",
		SubtypeDamagePending: "Damage Pending",
	}
	for st, want := range cases {
		if got := st.DisplayName(); got != want {
			t.Errorf("%s.DisplayName() = %q, want %q", st, got, want)
		}
	}
	if len(StandardVirtualSubtypes) != 11 {
		t.Errorf("expected 11 standard bins, got %d", len(StandardVirtualSubtypes))
	}
	if SubtypeStorage.IsVirtual() {
		t.Error("STORAGE must not be virtual")
	}
}

func TestParseVirtualSubtypes(t *testing.T) {
	got, err := ParseVirtualSubtypes(" return, lost,,RETURN ")
	if err != nil {
		t.Fatalf("ParseVirtualSubtypes failed: %v", err)
	}
	if len(got) != 2 || got[0] != SubtypeReturn || got[1] != SubtypeLost {
		t.Errorf("unexpected subtypes %v", got)
	}
	if _, err := ParseVirtualSubtypes("RETURN,STORAGE"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for STORAGE, got %v", err)
	}
	if _, err := ParseStatus("inactive"); err != nil {
		t.Errorf("ParseStatus(inactive) failed: %v", err)
	}
}

func TestErrorsMatchSentinels(t *testing.T) {
	cases := []struct {
		err    error
		target error
	}{
		{newValidationError("qty", "bad"), ErrValidation},
		{&InsufficientBalanceError{Available: decimal.NewFromInt(1), Requested: decimal.NewFromInt(2)}, ErrInsufficientBalance},
		{&DuplicateBatchError{RefModel: RefPutaway, RefID: "x"}, ErrDuplicateBatch},
		{notFound("item", "ITEM-1"), ErrNotFound},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("failed to post: %w", tc.err)
		if !errors.Is(wrapped, tc.target) {
			t.Errorf("%T does not match %v", tc.err, tc.target)
		}
	}

	joined := joinShortages([]*InsufficientBalanceError{{ItemID: "A"}, {ItemID: "B"}})
	if !errors.Is(joined, ErrInsufficientBalance) {
		t.Error("joined shortages should match ErrInsufficientBalance")
	}
	msg := (&InsufficientBalanceError{LocationID: 3, ItemID: "A", Available: decimal.NewFromInt(5), Requested: decimal.NewFromInt(6)}).Error()
	if msg != "insufficient stock at location 3 for item A: available=5, requested=6" {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestMergeMoveLines(t *testing.T) {
	lines := []MoveLine{
		{ItemID: "A", SourceLocationID: 1, TargetLocationID: 2, Qty: decimal.NewFromInt(2)},
		{ItemID: "B", SourceLocationID: 1, TargetLocationID: 2, Qty: decimal.NewFromInt(1)},
		{ItemID: "A", SourceLocationID: 1, TargetLocationID: 3, Qty: decimal.NewFromInt(4)},
		{ItemID: "A", SourceLocationID: 1, TargetLocationID: 2, Qty: decimal.NewFromInt(3)},
	}
	merged := mergeMoveLines(lines)
	if len(merged) != 3 {
		t.Fatalf("expected 3 merged lines, got %d", len(merged))
	}
	if merged[0].ItemID != "A" || merged[0].TargetLocationID != 2 || !merged[0].Qty.Equal(decimal.NewFromInt(5)) {
		t.Errorf("unexpected first line %+v", merged[0])
	}
	if merged[2].TargetLocationID != 3 {
		t.Errorf("expected first-seen order, got %+v", merged)
	}
}

func TestMergePutawayActions(t *testing.T) {
	actions := []PutawayAction{
		{Type: PutawayToLost, ItemID: "A", SourceBinID: 9, TargetLocationID: 4, Qty: decimal.NewFromInt(1)},
		{Type: PutawayToLost, ItemID: "A", SourceBinID: 9, Qty: decimal.NewFromInt(2)},
		{Type: PutawayToLocation, ItemID: "A", SourceBinID: 9, TargetLocationID: 4, Qty: decimal.NewFromInt(3)},
	}
	merged := mergePutawayActions(actions)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged actions, got %d", len(merged))
	}
	if !merged[0].Qty.Equal(decimal.NewFromInt(3)) || merged[0].TargetLocationID != 0 {
		t.Errorf("LOST actions should merge regardless of target, got %+v", merged[0])
	}
}

func TestPostingRequest_EntrySpecs(t *testing.T) {
	from, to := 1, 2
	specs, err := PostingRequest{WarehouseID: 1, FromLocationID: &from, ToLocationID: &to, ItemID: "A",
		Qty: decimal.RequireFromString("1.5"), MovementType: MovementTransfer}.entrySpecs()
	if err != nil {
		t.Fatalf("entrySpecs failed: %v", err)
	}
	if len(specs) != 2 || !specs[0].QtyDelta.Equal(decimal.RequireFromString("-1.5")) || specs[1].LocationID != 2 {
		t.Errorf("unexpected specs %+v", specs)
	}

	specs, err = PostingRequest{WarehouseID: 1, ToLocationID: &to, ItemID: "A", Qty: decimal.NewFromInt(1)}.entrySpecs()
	if err != nil || len(specs) != 1 {
		t.Errorf("expected a single credit row, got %+v %v", specs, err)
	}
}

func TestSortedKeys(t *testing.T) {
	keys := []StockKey{
		{WarehouseID: 2, LocationID: 1, ItemID: "A"},
		{WarehouseID: 1, LocationID: 5, ItemID: "B"},
		{WarehouseID: 1, LocationID: 5, ItemID: "A"},
		{WarehouseID: 1, LocationID: 5, ItemID: "B"},
	}
	got := sortedKeys(keys)
	want := []string{"stock:1:5:A", "stock:1:5:B", "stock:2:1:A"}
	if len(got) != len(want) {
		t.Fatalf("expected %d keys, got %v", len(want), got)
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Errorf("key %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSummarizeBatches(t *testing.T) {
	now := time.Now()
	groups := []auditGroup{
		{refModel: RefInternalMove, refID: "m1", itemID: "A", movementType: MovementInternalTransfer, rows: 2, net: decimal.Zero, lastAt: now, registered: true},
		{refModel: RefPutaway, refID: "p1", itemID: "A", movementType: MovementPutaway, rows: 1, net: decimal.NewFromInt(1), lastAt: now.Add(-time.Minute), registered: true},
		{refModel: RefDataFix, refID: "d1", itemID: "A", movementType: MovementAdjDeclineExcess, rows: 1, net: decimal.NewFromInt(-4), lastAt: now.Add(-2 * time.Minute), registered: false},
	}
	audits := summarizeBatches(groups)
	if len(audits) != 3 {
		t.Fatalf("expected 3 audits, got %d", len(audits))
	}
	if audits[0].RefID != "m1" || len(audits[0].Anomalies) != 0 {
		t.Errorf("expected clean newest batch first, got %+v", audits[0])
	}
	if len(audits[1].Anomalies) != 1 || audits[1].Anomalies[0] != AnomalyUnbalanced {
		t.Errorf("expected UNBALANCED putaway, got %+v", audits[1])
	}
	// Boundary movements may leave a net; only the missing registration is flagged.
	if len(audits[2].Anomalies) != 1 || audits[2].Anomalies[0] != AnomalyUnregistered {
		t.Errorf("expected UNREGISTERED data fix, got %+v", audits[2])
	}
}

func TestQtyScale(t *testing.T) {
	from, to := 1, 2
	for _, raw := range []string{"0.0004", "1.0004"} {
		q := decimal.RequireFromString(raw)
		_, err := PostingRequest{WarehouseID: 1, FromLocationID: &from, ToLocationID: &to, ItemID: "A",
			Qty: q, MovementType: MovementTransfer}.entrySpecs()
		if !errors.Is(err, ErrValidation) {
			t.Errorf("entrySpecs(%s): expected validation error, got %v", raw, err)
		}
		err = validateEntrySpec(EntrySpec{WarehouseID: 1, LocationID: 1, ItemID: "A", QtyDelta: q, MovementType: MovementTransfer})
		if !errors.Is(err, ErrValidation) {
			t.Errorf("validateEntrySpec(%s): expected validation error, got %v", raw, err)
		}
		err = validatePutawayAction(PutawayAction{Type: PutawayToLost, ItemID: "A", SourceBinID: 1, Qty: q})
		if !errors.Is(err, ErrValidation) {
			t.Errorf("validatePutawayAction(%s): expected validation error, got %v", raw, err)
		}
	}

	// Trailing zeros beyond the scale do not change the value.
	if _, err := (PostingRequest{WarehouseID: 1, ToLocationID: &to, ItemID: "A",
		Qty: decimal.RequireFromString("1.2500"), MovementType: MovementTransfer}).entrySpecs(); err != nil {
		t.Errorf("1.2500 rejected: %v", err)
	}
	if err := validateEntrySpec(EntrySpec{WarehouseID: 1, LocationID: 1, ItemID: "A",
		QtyDelta: decimal.RequireFromString("-0.001"), MovementType: MovementTransfer}); err != nil {
		t.Errorf("-0.001 rejected: %v", err)
	}
}
