package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// ParseStatus accepts ACTIVE/INACTIVE in any case.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusActive:
		return StatusActive, nil
	case StatusInactive:
		return StatusInactive, nil
	}
	return "", newValidationError("status", "invalid status %q", s)
}

type LocationType string

const (
	LocationPhysical LocationType = "PHYSICAL"
	LocationVirtual  LocationType = "VIRTUAL"
)

// LocationSubtype is STORAGE for physical locations and one of the system bin kinds for virtual ones.
type LocationSubtype string

const (
	SubtypeStorage       LocationSubtype = "STORAGE"
	SubtypeReceive       LocationSubtype = "RECEIVE"
	SubtypeDispatch      LocationSubtype = "DISPATCH"
	SubtypeReturn        LocationSubtype = "RETURN"
	SubtypeQC            LocationSubtype = "QC"
	SubtypeHold          LocationSubtype = "HOLD"
	SubtypeDamage        LocationSubtype = "DAMAGE"
	SubtypeLost          LocationSubtype = "LOST"
	SubtypeExcess        LocationSubtype = "EXCESS"
	SubtypeLostPending   LocationSubtype = "LOST_PENDING"
	SubtypeExcessPending LocationSubtype = "EXCESS_PENDING"
	SubtypeDamagePending LocationSubtype = "DAMAGE_PENDING"
)

// StandardVirtualSubtypes is the fixed set of system bins every warehouse carries.
var StandardVirtualSubtypes = []LocationSubtype{
	SubtypeReceive,
	SubtypeDispatch,
	SubtypeReturn,
	SubtypeQC,
	SubtypeHold,
	SubtypeDamage,
	SubtypeLost,
	SubtypeExcess,
	SubtypeLostPending,
	SubtypeExcessPending,
	SubtypeDamagePending,
}

// IsVirtual reports whether the subtype names a system bin.
func (s LocationSubtype) IsVirtual() bool {
	for _, v := range StandardVirtualSubtypes {
		if v == s {
			return true
		}
	}
	return false
}

// DisplayName is the human label used when a virtual bin is provisioned ("EXCESS_PENDING" -> "Excess Pending").
func (s LocationSubtype) DisplayName() string {
	words := strings.Split(strings.ToLower(string(s)), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// ParseVirtualSubtype accepts a virtual bin name in any case.
func ParseVirtualSubtype(s string) (LocationSubtype, error) {
	st := LocationSubtype(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsVirtual() {
		return "", newValidationError("subtype", "invalid virtual subtype: %s", s)
	}
	return st, nil
}

// ParseVirtualSubtypes parses a comma-separated bin list such as "RETURN,LOST". Blank parts are ignored.
func ParseVirtualSubtypes(csv string) ([]LocationSubtype, error) {
	var out []LocationSubtype
	seen := make(map[LocationSubtype]bool)
	for _, part := range strings.Split(csv, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		st, err := ParseVirtualSubtype(part)
		if err != nil {
			return nil, err
		}
		if !seen[st] {
			seen[st] = true
			out = append(out, st)
		}
	}
	return out, nil
}

// QtyScale is the number of decimal places stock_ledger.qty_delta stores.
const QtyScale = 3

// checkQtyScale rejects quantities the NUMERIC(18,3) column would round.
func checkQtyScale(field string, q decimal.Decimal) error {
	if !q.Equal(q.Round(QtyScale)) {
		return newValidationError(field, "quantity %s has more than %d decimal places", q.String(), QtyScale)
	}
	return nil
}

// MovementType tags the business reason of a ledger row. It never changes balance arithmetic.
type MovementType string

const (
	MovementTransfer         MovementType = "TRANSFER"
	MovementInternalTransfer MovementType = "INTERNAL_TRANSFER"
	MovementPutaway          MovementType = "PUTAWAY"
	MovementPutawayLost      MovementType = "PUTAWAY_LOST"
	MovementAdjReqDamage     MovementType = "ADJ_REQ_DAMAGE"
	MovementAdjReqLost       MovementType = "ADJ_REQ_LOST"
	MovementAdjReqExcess     MovementType = "ADJ_REQ_EXCESS"
	MovementAdjApproveDamage MovementType = "ADJ_APPROVE_DAMAGE"
	MovementAdjDeclineDamage MovementType = "ADJ_DECLINE_DAMAGE"
	MovementAdjApproveLost   MovementType = "ADJ_APPROVE_LOST"
	MovementAdjDeclineLost   MovementType = "ADJ_DECLINE_LOST"
	MovementAdjApproveExcess MovementType = "ADJ_APPROVE_EXCESS"
	MovementAdjDeclineExcess MovementType = "ADJ_DECLINE_EXCESS"
	MovementAdjDeleteRequest MovementType = "ADJ_DELETE_REQUEST"
)

// AllMovementTypes lists every known movement type; each must be handled by Class.
var AllMovementTypes = []MovementType{
	MovementTransfer,
	MovementInternalTransfer,
	MovementPutaway,
	MovementPutawayLost,
	MovementAdjReqDamage,
	MovementAdjReqLost,
	MovementAdjReqExcess,
	MovementAdjApproveDamage,
	MovementAdjDeclineDamage,
	MovementAdjApproveLost,
	MovementAdjDeclineLost,
	MovementAdjApproveExcess,
	MovementAdjDeclineExcess,
	MovementAdjDeleteRequest,
}

// MovementClass groups movement types by how their rows are expected to net out within a batch.
type MovementClass int

const (
	// ClassRelocation rows always come in -qty/+qty pairs inside the modelled system; a batch nets to zero per item.
	ClassRelocation MovementClass = iota + 1
	// ClassBoundary rows may have one endpoint outside the system (write-off, found stock), so batches need not net to zero.
	ClassBoundary
)

// Class returns the netting class of the movement type. Every type must be handled explicitly.
func (m MovementType) Class() (MovementClass, error) {
	switch m {
	case MovementInternalTransfer, MovementPutaway, MovementPutawayLost:
		return ClassRelocation, nil
	case MovementTransfer,
		MovementAdjReqDamage, MovementAdjReqLost, MovementAdjReqExcess,
		MovementAdjApproveDamage, MovementAdjDeclineDamage,
		MovementAdjApproveLost, MovementAdjDeclineLost,
		MovementAdjApproveExcess, MovementAdjDeclineExcess,
		MovementAdjDeleteRequest:
		return ClassBoundary, nil
	}
	return 0, fmt.Errorf("unhandled movement type %q", m)
}

// Valid reports whether m is a known movement type.
func (m MovementType) Valid() bool {
	_, err := m.Class()
	return err == nil
}

// Batch ref_model values written by the services in this package.
const (
	RefInternalMove = "INTERNAL_MOVE"
	RefPutaway      = "PUTAWAY"
	RefReturnToLost = "RETURN_TO_LOST"
	RefZeroReturn   = "ZERO_RETURN"
	RefDataFix      = "maintenance.DataFix"
	RefResetBins    = "maintenance.ResetBins"
)

type Warehouse struct {
	ID           int
	Code         string
	Name         string
	Status       Status
	GSTIN        string
	AddressLine1 string
	AddressLine2 string
	City         string
	State        string
	Pincode      string
	Country      string
	CreatedAt    time.Time
}

// WarehouseInput is the administrative payload for CreateWarehouse.
type WarehouseInput struct {
	Code         string
	Name         string
	GSTIN        string
	AddressLine1 string
	AddressLine2 string
	City         string
	State        string
	Pincode      string
	Country      string
}

type Location struct {
	ID            int
	WarehouseID   int
	Type          LocationType
	Subtype       LocationSubtype
	Code          string
	DisplayName   string
	SystemManaged bool
	Status        Status
}

func (l *Location) IsPhysical() bool { return l.Type == LocationPhysical }

// Label is Code for physical locations and the subtype for virtual bins.
func (l *Location) Label() string {
	if l.Type == LocationPhysical && l.Code != "" {
		return l.Code
	}
	return string(l.Subtype)
}

// Item is the catalog reference the ledger points at.
type Item struct {
	ID   string
	SKU  string
	Name string
}

// LedgerEntry is one committed, immutable row of stock_ledger.
type LedgerEntry struct {
	ID           int64
	Timestamp    time.Time
	WarehouseID  int
	LocationID   int
	ItemID       string
	QtyDelta     decimal.Decimal
	MovementType MovementType
	RefModel     string
	RefID        string
	Memo         string
	Actor        string // empty for system jobs
}

// EntrySpec describes a row to append. QtyDelta is signed and must not be zero.
type EntrySpec struct {
	WarehouseID  int
	LocationID   int
	ItemID       string
	QtyDelta     decimal.Decimal
	MovementType MovementType
	RefModel     string
	RefID        string
	Memo         string
	Actor        string
}

// ItemBalance is the net quantity of one item at one location.
type ItemBalance struct {
	ItemID string
	Qty    decimal.Decimal
}

// PutawayCandidate is stock waiting in a RETURN or RECEIVE bin.
type PutawayCandidate struct {
	ItemID      string
	SKU         string
	Name        string
	BinID       int
	Bin         LocationSubtype
	Qty         decimal.Decimal
	LastMovedAt time.Time
}
