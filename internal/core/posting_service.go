package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostingRequest describes one movement of Qty units of an item. A nil endpoint means the stock
// enters from, or leaves to, outside the modelled system (write-off, found stock).
type PostingRequest struct {
	WarehouseID    int
	FromLocationID *int
	ToLocationID   *int
	ItemID         string
	Qty            decimal.Decimal
	MovementType   MovementType
	RefModel       string
	RefID          string
	Memo           string
	Actor          string
}

// PostingService turns a movement into ledger rows. Every stock-changing workflow goes through it.
type PostingService interface {
	// PostLedger writes the movement in a transaction of its own.
	PostLedger(ctx context.Context, req PostingRequest) ([]LedgerEntry, error)
	// PostLedgerTx writes the movement inside the caller's transaction. It does not check
	// balances; callers guard debits with BalanceGuard first.
	PostLedgerTx(ctx context.Context, tx pgx.Tx, req PostingRequest) ([]LedgerEntry, error)
}

type postingService struct {
	pool   *pgxpool.Pool
	ledger *StockLedger
}

func NewPostingService(pool *pgxpool.Pool, ledger *StockLedger) PostingService {
	return &postingService{pool: pool, ledger: ledger}
}

func (s *postingService) PostLedger(ctx context.Context, req PostingRequest) ([]LedgerEntry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	entries, err := s.PostLedgerTx(ctx, tx, req)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit posting: %w", err)
	}
	return entries, nil
}

func (s *postingService) PostLedgerTx(ctx context.Context, tx pgx.Tx, req PostingRequest) ([]LedgerEntry, error) {
	specs, err := req.entrySpecs()
	if err != nil {
		return nil, err
	}
	return s.ledger.PostTx(ctx, tx, specs)
}

// entrySpecs expands the request into its debit row (-Qty at From) and credit row (+Qty at To).
func (r PostingRequest) entrySpecs() ([]EntrySpec, error) {
	if !r.Qty.IsPositive() {
		return nil, newValidationError("qty", "quantity must be positive, got %s", r.Qty.String())
	}
	if err := checkQtyScale("qty", r.Qty); err != nil {
		return nil, err
	}
	if r.FromLocationID == nil && r.ToLocationID == nil {
		return nil, newValidationError("location", "a movement needs at least one location")
	}
	if r.FromLocationID != nil && r.ToLocationID != nil && *r.FromLocationID == *r.ToLocationID {
		return nil, newValidationError("location", "source and destination are the same location")
	}

	base := EntrySpec{
		WarehouseID:  r.WarehouseID,
		ItemID:       r.ItemID,
		MovementType: r.MovementType,
		RefModel:     r.RefModel,
		RefID:        r.RefID,
		Memo:         r.Memo,
		Actor:        r.Actor,
	}
	var specs []EntrySpec
	if r.FromLocationID != nil {
		out := base
		out.LocationID = *r.FromLocationID
		out.QtyDelta = r.Qty.Neg()
		specs = append(specs, out)
	}
	if r.ToLocationID != nil {
		in := base
		in.LocationID = *r.ToLocationID
		in.QtyDelta = r.Qty
		specs = append(specs, in)
	}
	return specs, nil
}
