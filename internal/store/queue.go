package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/coveyapp/covey/internal/op"
)

// The pending queue holds locally captured operations that have not yet
// been uploaded. Payloads are stored as the exact JSON that will become
// a batch file line, so the wire form is fixed at capture time.

// PendingOp is one queued operation with its queue position.
type PendingOp struct {
	Seq int64
	Op  op.Operation
}

// EnqueueTx appends operations to the upload queue within the caller's
// transaction, so local apply and enqueue commit together.
func EnqueueTx(ctx context.Context, tx *sql.Tx, ops []op.Operation) error {
	now := time.Now().UnixMilli()

	for i := range ops {
		payload, err := json.Marshal(&ops[i])
		if err != nil {
			return fmt.Errorf("store: encoding pending op %s: %w", ops[i].ID, err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO pending_ops (op_id, payload, created_at) VALUES (?, ?, ?)`,
			ops[i].ID, string(payload), now,
		)
		if err != nil {
			return fmt.Errorf("store: enqueueing op %s: %w", ops[i].ID, err)
		}
	}

	return nil
}

// LoadPending returns all queued operations in capture order.
func (s *Store) LoadPending(ctx context.Context) ([]PendingOp, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, payload FROM pending_ops ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("store: loading pending ops: %w", err)
	}
	defer rows.Close()

	var pending []PendingOp

	for rows.Next() {
		var (
			p       PendingOp
			payload string
		)

		if err := rows.Scan(&p.Seq, &payload); err != nil {
			return nil, fmt.Errorf("store: scanning pending op: %w", err)
		}

		if err := json.Unmarshal([]byte(payload), &p.Op); err != nil {
			return nil, fmt.Errorf("store: decoding pending op %d: %w", p.Seq, err)
		}

		pending = append(pending, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating pending ops: %w", err)
	}

	return pending, nil
}

// DeletePending removes uploaded operations from the queue.
func (s *Store) DeletePending(ctx context.Context, seqs []int64) error {
	if len(seqs) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(seqs)), ",")
	args := make([]any, len(seqs))

	for i, seq := range seqs {
		args[i] = seq
	}

	//nolint:gosec // placeholders is a generated "?,?,..." list, not input
	query := `DELETE FROM pending_ops WHERE seq IN (` + placeholders + `)`

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("store: deleting pending ops: %w", err)
	}

	return nil
}

// PendingCount returns the number of operations awaiting upload.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_ops`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: counting pending ops: %w", err)
	}

	return n, nil
}
