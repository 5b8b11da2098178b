package sync

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/coveyapp/covey/internal/hlc"
	"github.com/coveyapp/covey/internal/op"
	"github.com/coveyapp/covey/internal/store"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "covey.db"), testLogger(t))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}

	t.Cleanup(func() { s.Close() })

	return s
}

func stamp(ts int64, count uint32, device string) hlc.Stamp {
	return hlc.Stamp{TS: ts, Count: count, Device: device}
}

func TestApply_Idempotent(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	a := NewApplier(st, testLogger(t))
	ctx := context.Background()

	ops := []op.Operation{
		op.NewSet(op.EntityQuail, "q1", stamp(100, 0, "A"), op.FieldQuailName, "Bell"),
		op.NewIncrement(op.EntityEgg, "e1", stamp(101, 0, "A"), op.FieldEggTotal, 3),
	}

	applied, err := a.Apply(ctx, ops)
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}

	if applied != 2 {
		t.Errorf("first apply = %d ops, want 2", applied)
	}

	applied, err = a.Apply(ctx, ops)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}

	if applied != 0 {
		t.Errorf("second apply = %d ops, want 0", applied)
	}

	egg, err := st.GetEgg(ctx, "e1")
	if err != nil {
		t.Fatalf("get egg: %v", err)
	}

	if egg.TotalEggs != 3 {
		t.Errorf("total = %d after double apply, want 3", egg.TotalEggs)
	}
}

func TestApply_LastWriterWinsAcrossSkewedClocks(t *testing.T) {
	t.Parallel()

	// Device A's wall clock runs ahead; its earlier-in-real-time write
	// still wins because only the clock decides.
	winner := op.NewSet(op.EntityQuail, "q1", stamp(100, 0, "A"), op.FieldQuailName, "Bell")
	loser := op.NewSet(op.EntityQuail, "q1", stamp(90, 0, "B"), op.FieldQuailName, "Belle")

	for name, batch := range map[string][]op.Operation{
		"winner first": {winner, loser},
		"loser first":  {loser, winner},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			st := openTestStore(t)
			a := NewApplier(st, testLogger(t))
			ctx := context.Background()

			if _, err := a.Apply(ctx, batch); err != nil {
				t.Fatalf("apply: %v", err)
			}

			row, err := st.GetQuail(ctx, "q1")
			if err != nil {
				t.Fatalf("get quail: %v", err)
			}

			if row.Name != "Bell" {
				t.Errorf("name = %q, want Bell", row.Name)
			}

			if row.Clock != stamp(100, 0, "A") {
				t.Errorf("watermark = %v, want the winner's clock", row.Clock)
			}
		})
	}
}

func TestApply_SeparateBatchesConvergeEitherOrder(t *testing.T) {
	t.Parallel()

	winner := op.NewSet(op.EntityQuail, "q1", stamp(100, 0, "A"), op.FieldQuailName, "Bell")
	loser := op.NewSet(op.EntityQuail, "q1", stamp(90, 0, "B"), op.FieldQuailName, "Belle")

	for name, order := range map[string][]op.Operation{
		"stale arrives second": {winner, loser},
		"stale arrives first":  {loser, winner},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			st := openTestStore(t)
			a := NewApplier(st, testLogger(t))
			ctx := context.Background()

			for i := range order {
				if _, err := a.Apply(ctx, order[i:i+1]); err != nil {
					t.Fatalf("apply %d: %v", i, err)
				}
			}

			row, err := st.GetQuail(ctx, "q1")
			if err != nil {
				t.Fatalf("get quail: %v", err)
			}

			if row.Name != "Bell" {
				t.Errorf("name = %q, want Bell", row.Name)
			}
		})
	}
}

func TestApply_CounterAccumulatesInAnyOrder(t *testing.T) {
	t.Parallel()

	deltas := []op.Operation{
		op.NewIncrement(op.EntityEgg, "e1", stamp(100, 0, "A"), op.FieldEggTotal, 2),
		op.NewIncrement(op.EntityEgg, "e1", stamp(100, 0, "B"), op.FieldEggTotal, 3),
		op.NewIncrement(op.EntityEgg, "e1", stamp(105, 0, "C"), op.FieldEggTotal, -1),
	}

	orders := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 2, 0}}

	for _, order := range orders {
		st := openTestStore(t)
		a := NewApplier(st, testLogger(t))
		ctx := context.Background()

		for _, i := range order {
			if _, err := a.Apply(ctx, []op.Operation{deltas[i]}); err != nil {
				t.Fatalf("apply: %v", err)
			}
		}

		egg, err := st.GetEgg(ctx, "e1")
		if err != nil {
			t.Fatalf("get egg: %v", err)
		}

		if egg.TotalEggs != 4 {
			t.Errorf("order %v: total = %d, want 4", order, egg.TotalEggs)
		}
	}
}

func TestApply_TombstoneWinsOverLaterWrites(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	a := NewApplier(st, testLogger(t))
	ctx := context.Background()

	batch := []op.Operation{
		op.NewSet(op.EntityQuail, "q1", stamp(100, 0, "A"), op.FieldQuailName, "Bell"),
		op.NewTombstone(op.EntityQuail, "q1", stamp(110, 0, "A")),
		// A write clocked after the tombstone still loses.
		op.NewSet(op.EntityQuail, "q1", stamp(120, 0, "B"), op.FieldQuailName, "Belle"),
	}

	if _, err := a.Apply(ctx, batch); err != nil {
		t.Fatalf("apply: %v", err)
	}

	row, err := st.GetQuail(ctx, "q1")
	if err != nil {
		t.Fatalf("get quail: %v", err)
	}

	if !row.Deleted {
		t.Error("row not deleted")
	}

	if row.Name != "Bell" {
		t.Errorf("name = %q, post-tombstone write must not land", row.Name)
	}
}

func TestApply_StaleTombstoneStillDeletes(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	a := NewApplier(st, testLogger(t))
	ctx := context.Background()

	newer := stamp(200, 0, "A")

	if _, err := a.Apply(ctx, []op.Operation{
		op.NewSet(op.EntityQuail, "q1", newer, op.FieldQuailName, "Bell"),
	}); err != nil {
		t.Fatalf("apply set: %v", err)
	}

	// The tombstone arrives in a later batch with an older clock.
	if _, err := a.Apply(ctx, []op.Operation{
		op.NewTombstone(op.EntityQuail, "q1", stamp(150, 0, "B")),
	}); err != nil {
		t.Fatalf("apply tombstone: %v", err)
	}

	row, err := st.GetQuail(ctx, "q1")
	if err != nil {
		t.Fatalf("get quail: %v", err)
	}

	if !row.Deleted {
		t.Error("stale tombstone must still delete")
	}

	if row.Clock != newer {
		t.Errorf("watermark = %v, stale tombstone must not move it", row.Clock)
	}
}

func TestApply_OperationBeforeCreateLandsOnShadowRow(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	a := NewApplier(st, testLogger(t))
	ctx := context.Background()

	// The ring color arrives before the op that names the quail.
	batch := []op.Operation{
		op.NewSet(op.EntityQuail, "q1", stamp(105, 0, "B"), op.FieldQuailRingColor, "red"),
	}

	if _, err := a.Apply(ctx, batch); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if _, err := a.Apply(ctx, []op.Operation{
		op.NewSet(op.EntityQuail, "q1", stamp(100, 0, "A"), op.FieldQuailName, "Bell"),
	}); err != nil {
		t.Fatalf("apply name: %v", err)
	}

	row, err := st.GetQuail(ctx, "q1")
	if err != nil {
		t.Fatalf("get quail: %v", err)
	}

	if !row.RingColor.Valid || row.RingColor.String != "red" {
		t.Errorf("ring color = %+v, want red", row.RingColor)
	}
}

func TestApply_UnknownEntityAndFieldSkipped(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	a := NewApplier(st, testLogger(t))
	ctx := context.Background()

	unknownEntity := op.NewSet(op.EntityType("coop"), "c1", stamp(100, 0, "A"), "name", "west")
	unknownField := op.NewSet(op.EntityQuail, "q1", stamp(101, 0, "A"), "wingspan", 12)
	known := op.NewSet(op.EntityQuail, "q1", stamp(102, 0, "A"), op.FieldQuailName, "Bell")

	applied, err := a.Apply(ctx, []op.Operation{unknownEntity, unknownField, known})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if applied != 1 {
		t.Errorf("applied = %d, want only the known op", applied)
	}

	row, err := st.GetQuail(ctx, "q1")
	if err != nil {
		t.Fatalf("get quail: %v", err)
	}

	if row.Name != "Bell" {
		t.Errorf("name = %q, want Bell", row.Name)
	}
}

func TestApply_NullOnRequiredFieldSkippedNotFatal(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	a := NewApplier(st, testLogger(t))
	ctx := context.Background()

	// The name column rejects nulls; the op must not poison the batch.
	poison := op.NewSet(op.EntityQuail, "q1", stamp(100, 0, "B"), op.FieldQuailName, nil)
	good := op.NewSet(op.EntityQuail, "q1", stamp(101, 0, "B"), op.FieldQuailGender, "female")

	applied, err := a.Apply(ctx, []op.Operation{poison, good})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if applied != 1 {
		t.Errorf("applied = %d, want only the good op", applied)
	}

	row, err := st.GetQuail(ctx, "q1")
	if err != nil {
		t.Fatalf("get quail: %v", err)
	}

	if row.Gender != "female" {
		t.Errorf("gender = %q, the batch must still land its good op", row.Gender)
	}

	// The skipped op stays out of the ledger, like unknown fields do.
	size, err := st.LedgerSize(ctx)
	if err != nil {
		t.Fatalf("ledger size: %v", err)
	}

	if size != 1 {
		t.Errorf("ledger size = %d, want 1", size)
	}
}

func TestApply_NullOnNullableFieldClears(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	a := NewApplier(st, testLogger(t))
	ctx := context.Background()

	if _, err := a.Apply(ctx, []op.Operation{
		op.NewSet(op.EntityQuail, "q1", stamp(100, 0, "A"), op.FieldQuailRingColor, "red"),
	}); err != nil {
		t.Fatalf("apply set: %v", err)
	}

	applied, err := a.Apply(ctx, []op.Operation{
		op.NewSet(op.EntityQuail, "q1", stamp(110, 0, "A"), op.FieldQuailRingColor, nil),
	})
	if err != nil {
		t.Fatalf("apply null: %v", err)
	}

	if applied != 1 {
		t.Errorf("applied = %d, want 1", applied)
	}

	row, err := st.GetQuail(ctx, "q1")
	if err != nil {
		t.Fatalf("get quail: %v", err)
	}

	if row.RingColor.Valid {
		t.Errorf("ring color = %+v, want cleared", row.RingColor)
	}
}

func TestApply_RedundantTombstoneNotCountedAsApplied(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	a := NewApplier(st, testLogger(t))
	ctx := context.Background()

	applied, err := a.Apply(ctx, []op.Operation{
		op.NewTombstone(op.EntityQuail, "q1", stamp(100, 0, "A")),
	})
	if err != nil {
		t.Fatalf("first tombstone: %v", err)
	}

	if applied != 1 {
		t.Errorf("first tombstone applied = %d, want 1", applied)
	}

	// A second tombstone from another device changes nothing.
	applied, err = a.Apply(ctx, []op.Operation{
		op.NewTombstone(op.EntityQuail, "q1", stamp(110, 0, "B")),
	})
	if err != nil {
		t.Fatalf("second tombstone: %v", err)
	}

	if applied != 0 {
		t.Errorf("redundant tombstone applied = %d, want 0", applied)
	}

	row, err := st.GetQuail(ctx, "q1")
	if err != nil {
		t.Fatalf("get quail: %v", err)
	}

	if !row.Deleted {
		t.Error("row not deleted")
	}
}

func TestApply_IncrementDoesNotRegressWatermark(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	a := NewApplier(st, testLogger(t))
	ctx := context.Background()

	if _, err := a.Apply(ctx, []op.Operation{
		op.NewSet(op.EntityEgg, "e1", stamp(200, 0, "A"), op.FieldEggRecordDate, "2026-08-30"),
	}); err != nil {
		t.Fatalf("apply set: %v", err)
	}

	// Older increment: delta lands, watermark stays.
	if _, err := a.Apply(ctx, []op.Operation{
		op.NewIncrement(op.EntityEgg, "e1", stamp(150, 0, "B"), op.FieldEggTotal, 5),
	}); err != nil {
		t.Fatalf("apply increment: %v", err)
	}

	egg, err := st.GetEgg(ctx, "e1")
	if err != nil {
		t.Fatalf("get egg: %v", err)
	}

	if egg.TotalEggs != 5 {
		t.Errorf("total = %d, want 5", egg.TotalEggs)
	}

	if egg.Clock != stamp(200, 0, "A") {
		t.Errorf("watermark = %v, older increment must not move it", egg.Clock)
	}
}
