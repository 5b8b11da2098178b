package sync

import (
	"context"
	"testing"

	"github.com/coveyapp/covey/internal/hlc"
)

func TestCapture_CreateQuailAppliesAndEnqueues(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()
	c := NewCapture(st, hlc.New("dev-a"), testLogger(t))

	ring := "red"

	id, err := c.CreateQuail(ctx, QuailInput{Name: "Bell", Gender: "hen", RingColor: &ring})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	row, err := st.GetQuail(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if row.Name != "Bell" || row.Gender != "hen" {
		t.Errorf("row = %+v, want Bell/hen", row)
	}

	if !row.RingColor.Valid || row.RingColor.String != "red" {
		t.Errorf("ring color = %+v, want red", row.RingColor)
	}

	n, err := st.PendingCount(ctx)
	if err != nil {
		t.Fatalf("pending count: %v", err)
	}

	if n != 3 {
		t.Errorf("pending = %d ops, want one per populated field", n)
	}
}

func TestCapture_UpdateOnlyTouchesChangedFields(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()
	c := NewCapture(st, hlc.New("dev-a"), testLogger(t))

	id, err := c.CreateQuail(ctx, QuailInput{Name: "Bell", Gender: "hen"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	name := "Belle"
	if err := c.UpdateQuail(ctx, id, QuailChanges{Name: &name}); err != nil {
		t.Fatalf("update: %v", err)
	}

	row, err := st.GetQuail(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if row.Name != "Belle" {
		t.Errorf("name = %q, want Belle", row.Name)
	}

	if row.Gender != "hen" {
		t.Errorf("gender = %q, update must not touch it", row.Gender)
	}
}

func TestCapture_EggDeltasAccumulateLocally(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()
	c := NewCapture(st, hlc.New("dev-a"), testLogger(t))

	id, err := c.CreateEggRecord(ctx, "2026-08-30", 2, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := c.AddEggDelta(ctx, id, 3); err != nil {
		t.Fatalf("delta: %v", err)
	}

	if err := c.AddEggDelta(ctx, id, -1); err != nil {
		t.Fatalf("correction: %v", err)
	}

	egg, err := st.GetEgg(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if egg.TotalEggs != 4 {
		t.Errorf("total = %d, want 4", egg.TotalEggs)
	}
}

func TestCapture_DeleteHidesFromLocalReads(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()
	c := NewCapture(st, hlc.New("dev-a"), testLogger(t))

	id, err := c.CreateQuail(ctx, QuailInput{Name: "Bell", Gender: "hen"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := c.DeleteQuail(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}

	row, err := st.GetQuail(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if !row.Deleted {
		t.Error("row not tombstoned")
	}

	// A later edit cannot resurrect it.
	name := "Belle"
	if err := c.UpdateQuail(ctx, id, QuailChanges{Name: &name}); err != nil {
		t.Fatalf("update after delete: %v", err)
	}

	row, err = st.GetQuail(ctx, id)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}

	if row.Name != "Bell" {
		t.Errorf("name = %q, deleted row must not change", row.Name)
	}
}

func TestCapture_EmptyUpdateIsNoOp(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()
	c := NewCapture(st, hlc.New("dev-a"), testLogger(t))

	if err := c.UpdateQuail(ctx, "q-none", QuailChanges{}); err != nil {
		t.Fatalf("empty update: %v", err)
	}

	n, err := st.PendingCount(ctx)
	if err != nil {
		t.Fatalf("pending count: %v", err)
	}

	if n != 0 {
		t.Errorf("pending = %d, want 0 for empty update", n)
	}
}
