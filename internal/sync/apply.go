package sync

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/coveyapp/covey/internal/op"
	"github.com/coveyapp/covey/internal/store"
)

// Applier materializes operations into the local database. It is the
// only writer of entity rows during sync.
type Applier struct {
	store  *store.Store
	logger *slog.Logger
}

// NewApplier creates an apply engine over the given store.
func NewApplier(st *store.Store, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}

	return &Applier{store: st, logger: logger}
}

// Apply materializes a batch of operations. The batch is sorted into
// total clock order first, so pooled operations from any number of
// files apply identically regardless of arrival order. The whole batch
// commits in one transaction together with its ledger entries.
//
// Returns the number of operations that mutated state. Already-seen
// operations, stale writes, and writes against tombstoned rows are
// consumed without counting; operations naming an unknown entity or
// field, or carrying a value the schema cannot store, are logged and
// left out of the ledger so a newer build can pick them up.
func (a *Applier) Apply(ctx context.Context, ops []op.Operation) (int, error) {
	if len(ops) == 0 {
		return 0, nil
	}

	op.SortByClock(ops)

	var applied int

	err := a.store.WithTx(ctx, func(tx *sql.Tx) error {
		var txErr error
		applied, txErr = a.ApplyTx(ctx, tx, ops)

		return txErr
	})
	if err != nil {
		return 0, err
	}

	return applied, nil
}

// ApplyTx materializes already-sorted operations inside the caller's
// transaction. Capture uses it to commit local apply and enqueue
// atomically.
func (a *Applier) ApplyTx(ctx context.Context, tx *sql.Tx, ops []op.Operation) (int, error) {
	var applied int

	for i := range ops {
		did, err := a.applyOne(ctx, tx, &ops[i])
		if err != nil {
			return applied, err
		}

		if did {
			applied++
		}
	}

	return applied, nil
}

// applyOne processes a single operation inside the batch transaction.
func (a *Applier) applyOne(ctx context.Context, tx *sql.Tx, o *op.Operation) (bool, error) {
	seen, err := store.SeenTx(ctx, tx, o.ID)
	if err != nil {
		return false, err
	}

	if seen {
		return false, nil
	}

	if _, ok := op.ParseEntityType(string(o.Entity)); !ok {
		a.logger.Warn("skipping op with unknown entity type",
			slog.String("op_id", o.ID),
			slog.String("entity_type", string(o.Entity)),
		)

		return false, nil
	}

	if err := store.EnsureRowTx(ctx, tx, o.Entity, o.EntityID); err != nil {
		return false, err
	}

	row, err := store.RowStateTx(ctx, tx, o.Entity, o.EntityID)
	if err != nil {
		return false, err
	}

	did, record, err := a.applyMutation(ctx, tx, o, row)
	if err != nil {
		return false, err
	}

	if record {
		if err := store.RecordTx(ctx, tx, o); err != nil {
			return false, err
		}
	}

	return did, nil
}

// applyMutation runs the conflict rule for one mutation kind against
// the current row state. The second result reports whether the op
// should enter the ledger; unknown-field, unknown-kind, and
// unstorable-value ops stay out, so a newer build can apply them after
// a refetch.
func (a *Applier) applyMutation(ctx context.Context, tx *sql.Tx, o *op.Operation, row store.RowState) (bool, bool, error) {
	switch o.Mut.Kind {
	case op.KindTombstone:
		// Deletion wins every conflict; a stale tombstone still
		// deletes, it just leaves the watermark alone. A row already
		// deleted does not count as applied again.
		did := !row.Deleted

		if o.Clock.After(row.Clock) {
			return did, true, store.TombstoneTx(ctx, tx, o.Entity, o.EntityID, o.Clock)
		}

		return did, true, store.MarkDeletedTx(ctx, tx, o.Entity, o.EntityID)

	case op.KindSet:
		column, ok := op.ResolveField(o.Entity, o.Mut.Field)
		if !ok {
			a.logger.Warn("skipping op with unknown field",
				slog.String("op_id", o.ID),
				slog.String("entity_type", string(o.Entity)),
				slog.String("field", o.Mut.Field),
			)

			return false, false, nil
		}

		// A null aimed at a required column cannot be stored; failing
		// the statement would poison the whole batch on every refetch.
		if o.Mut.Value == nil && !op.Nullable(o.Entity, column) {
			a.logger.Warn("skipping null write to required field",
				slog.String("op_id", o.ID),
				slog.String("entity_type", string(o.Entity)),
				slog.String("field", column),
			)

			return false, false, nil
		}

		if row.Deleted {
			return false, true, nil
		}

		// Last writer wins under full clock order.
		if !o.Clock.After(row.Clock) {
			a.logger.Debug("dropping stale write",
				slog.String("op_id", o.ID),
				slog.String("entity_id", o.EntityID),
				slog.String("field", column),
			)

			return false, true, nil
		}

		return true, true, store.SetFieldTx(ctx, tx, o.Entity, o.EntityID, column, o.Mut.Value, o.Clock)

	case op.KindIncrement:
		column, ok := op.ResolveField(o.Entity, o.Mut.Field)
		if !ok || !op.IsCounter(o.Entity, column) {
			a.logger.Warn("skipping increment on non-counter field",
				slog.String("op_id", o.ID),
				slog.String("entity_type", string(o.Entity)),
				slog.String("field", o.Mut.Field),
			)

			return false, false, nil
		}

		if row.Deleted {
			return false, true, nil
		}

		// Increments commute, so every delta lands. The watermark only
		// advances when this op outranks the row, otherwise a later
		// stale SetField could overwrite a counter it never saw.
		advance := o.Clock.After(row.Clock)

		return true, true, store.IncrementTx(ctx, tx, o.Entity, o.EntityID, column, o.Mut.Delta, o.Clock, advance)

	default:
		a.logger.Warn("skipping op with unknown mutation kind",
			slog.String("op_id", o.ID),
			slog.String("kind", string(o.Mut.Kind)),
		)

		return false, false, nil
	}
}
