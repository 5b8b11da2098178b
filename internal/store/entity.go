package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/coveyapp/covey/internal/hlc"
	"github.com/coveyapp/covey/internal/op"
)

// entityTable maps an entity type to its materialized table. The apply
// engine has already validated the type; an unknown one here is a bug.
func entityTable(t op.EntityType) (string, error) {
	switch t {
	case op.EntityQuail:
		return "quails", nil
	case op.EntityEvent:
		return "events", nil
	case op.EntityEgg:
		return "egg_records", nil
	case op.EntityPhoto:
		return "photos", nil
	default:
		return "", fmt.Errorf("store: no table for entity type %q", t)
	}
}

// RowState is the per-entity conflict-resolution state: the watermark
// clock of the last applied write and the soft-delete flag.
type RowState struct {
	Clock   hlc.Stamp
	Deleted bool
	Found   bool
}

// RowStateTx loads the watermark and deleted flag for one entity row.
// A missing row is not an error; Found is false and the zero clock
// ranks below any real stamp.
func RowStateTx(ctx context.Context, tx *sql.Tx, entity op.EntityType, id string) (RowState, error) {
	table, err := entityTable(entity)
	if err != nil {
		return RowState{}, err
	}

	var (
		st      RowState
		deleted int
	)

	//nolint:gosec // table comes from the closed entityTable mapping
	query := `SELECT clock_ts, clock_count, clock_device, deleted FROM ` + table + ` WHERE id = ?`

	err = tx.QueryRowContext(ctx, query, id).Scan(
		&st.Clock.TS, &st.Clock.Count, &st.Clock.Device, &deleted,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return RowState{}, nil
	}

	if err != nil {
		return RowState{}, fmt.Errorf("store: loading row state %s/%s: %w", entity, id, err)
	}

	st.Found = true
	st.Deleted = deleted != 0

	return st, nil
}

// EnsureRowTx creates an empty shadow row for the entity if absent, so
// operations arriving before the entity's first field write still have
// a row to land on.
func EnsureRowTx(ctx context.Context, tx *sql.Tx, entity op.EntityType, id string) error {
	table, err := entityTable(entity)
	if err != nil {
		return err
	}

	//nolint:gosec // table comes from the closed entityTable mapping
	query := `INSERT OR IGNORE INTO ` + table + ` (id) VALUES (?)`

	if _, err := tx.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("store: creating shadow row %s/%s: %w", entity, id, err)
	}

	return nil
}

// SetFieldTx writes one field value and advances the row watermark to
// the operation's clock. The column name has been resolved from the
// entity's closed field set by the caller; it is never raw wire input.
func SetFieldTx(ctx context.Context, tx *sql.Tx, entity op.EntityType, id, column string, value any, clock hlc.Stamp) error {
	table, err := entityTable(entity)
	if err != nil {
		return err
	}

	//nolint:gosec // table and column come from closed compile-time sets
	query := `UPDATE ` + table + ` SET ` + column + ` = ?,
		clock_ts = ?, clock_count = ?, clock_device = ? WHERE id = ?`

	if _, err := tx.ExecContext(ctx, query, value, clock.TS, clock.Count, clock.Device, id); err != nil {
		return fmt.Errorf("store: setting %s.%s on %s: %w", entity, column, id, err)
	}

	return nil
}

// IncrementTx adds delta to a counter column. advanceClock controls
// whether the row watermark moves to the operation's clock; increments
// commute, so the caller only advances when the op outranks the row.
func IncrementTx(ctx context.Context, tx *sql.Tx, entity op.EntityType, id, column string, delta int64, clock hlc.Stamp, advanceClock bool) error {
	table, err := entityTable(entity)
	if err != nil {
		return err
	}

	if advanceClock {
		//nolint:gosec // table and column come from closed compile-time sets
		query := `UPDATE ` + table + ` SET ` + column + ` = ` + column + ` + ?,
			clock_ts = ?, clock_count = ?, clock_device = ? WHERE id = ?`

		if _, err := tx.ExecContext(ctx, query, delta, clock.TS, clock.Count, clock.Device, id); err != nil {
			return fmt.Errorf("store: incrementing %s.%s on %s: %w", entity, column, id, err)
		}

		return nil
	}

	//nolint:gosec // table and column come from closed compile-time sets
	query := `UPDATE ` + table + ` SET ` + column + ` = ` + column + ` + ? WHERE id = ?`

	if _, err := tx.ExecContext(ctx, query, delta, id); err != nil {
		return fmt.Errorf("store: incrementing %s.%s on %s: %w", entity, column, id, err)
	}

	return nil
}

// MarkDeletedTx sets the deleted flag without touching the watermark,
// for tombstones that lose the clock comparison but still win the
// deleted-vs-write conflict.
func MarkDeletedTx(ctx context.Context, tx *sql.Tx, entity op.EntityType, id string) error {
	table, err := entityTable(entity)
	if err != nil {
		return err
	}

	//nolint:gosec // table comes from the closed entityTable mapping
	query := `UPDATE ` + table + ` SET deleted = 1 WHERE id = ?`

	if _, err := tx.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("store: marking %s/%s deleted: %w", entity, id, err)
	}

	return nil
}

// TombstoneTx marks the row logically deleted and advances the
// watermark. Rows are never physically removed.
func TombstoneTx(ctx context.Context, tx *sql.Tx, entity op.EntityType, id string, clock hlc.Stamp) error {
	table, err := entityTable(entity)
	if err != nil {
		return err
	}

	//nolint:gosec // table comes from the closed entityTable mapping
	query := `UPDATE ` + table + ` SET deleted = 1,
		clock_ts = ?, clock_count = ?, clock_device = ? WHERE id = ?`

	if _, err := tx.ExecContext(ctx, query, clock.TS, clock.Count, clock.Device, id); err != nil {
		return fmt.Errorf("store: tombstoning %s/%s: %w", entity, id, err)
	}

	return nil
}
