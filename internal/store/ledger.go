package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/coveyapp/covey/internal/op"
)

// The applied-operation ledger is the idempotency guard: one row per
// operation ever applied, written in the same transaction as the row
// update it records. Entries are never removed.

// SeenTx reports whether an operation ID is already in the ledger.
func SeenTx(ctx context.Context, tx *sql.Tx, opID string) (bool, error) {
	var one int

	err := tx.QueryRowContext(ctx, `SELECT 1 FROM op_ledger WHERE op_id = ?`, opID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("store: checking ledger for %s: %w", opID, err)
	}

	return true, nil
}

// RecordTx appends one applied operation to the ledger.
func RecordTx(ctx context.Context, tx *sql.Tx, o *op.Operation) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO op_ledger
			(op_id, entity_type, entity_id, clock_ts, clock_count, clock_device, applied_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.ID, string(o.Entity), o.EntityID,
		o.Clock.TS, o.Clock.Count, o.Clock.Device,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store: recording %s in ledger: %w", o.ID, err)
	}

	return nil
}

// LedgerSize returns the number of operations ever applied.
func (s *Store) LedgerSize(ctx context.Context) (int, error) {
	var n int

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM op_ledger`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: counting ledger: %w", err)
	}

	return n, nil
}
