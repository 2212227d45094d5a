package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// newBatchRef builds a default batch reference such as "putaway:2026-10-19T08:00:00.123Z:1a2b3c4d".
func newBatchRef(prefix string) string {
	return fmt.Sprintf("%s:%s:%s", prefix, time.Now().UTC().Format(time.RFC3339Nano), uuid.NewString()[:8])
}

// claimBatch registers (warehouse, refModel, refID) inside tx. It returns false when the batch
// already exists; the unique constraint makes concurrent claims of the same ref serialize.
func claimBatch(ctx context.Context, tx pgx.Tx, warehouseID int, refModel, refID, actor string) (bool, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO ledger_batches (warehouse_id, ref_model, ref_id, actor)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (warehouse_id, ref_model, ref_id) DO NOTHING
		RETURNING id
	`, warehouseID, refModel, refID, nullableString(actor)).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to register batch %s/%s: %w", refModel, refID, err)
	}
	return true, nil
}

// batchExists also looks at ledger rows so refs written before registration was enforced still count.
func batchExists(ctx context.Context, q dbtx, warehouseID int, refModel, refID string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM ledger_batches WHERE warehouse_id = $1 AND ref_model = $2 AND ref_id = $3
		) OR EXISTS (
			SELECT 1 FROM stock_ledger WHERE warehouse_id = $1 AND ref_model = $2 AND ref_id = $3
		)
	`, warehouseID, refModel, refID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check batch %s/%s: %w", refModel, refID, err)
	}
	return exists, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
