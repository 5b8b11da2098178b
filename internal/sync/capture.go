package sync

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/coveyapp/covey/internal/hlc"
	"github.com/coveyapp/covey/internal/op"
	"github.com/coveyapp/covey/internal/store"
)

// Capture is the boundary every local mutation goes through. It ticks
// the shared clock once per operation, applies the ops to the local
// database, and enqueues them for upload, all in one transaction. The
// UI layer never writes entity rows directly.
type Capture struct {
	store   *store.Store
	clock   *hlc.Clock
	applier *Applier
	logger  *slog.Logger
}

// NewCapture wires the capture boundary over the store and the shared
// device clock.
func NewCapture(st *store.Store, clock *hlc.Clock, logger *slog.Logger) *Capture {
	if logger == nil {
		logger = slog.Default()
	}

	return &Capture{
		store:   st,
		clock:   clock,
		applier: NewApplier(st, logger),
		logger:  logger,
	}
}

// commit applies the ops locally and enqueues them atomically.
func (c *Capture) commit(ctx context.Context, ops []op.Operation) error {
	if len(ops) == 0 {
		return nil
	}

	op.SortByClock(ops)

	return c.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := c.applier.ApplyTx(ctx, tx, ops); err != nil {
			return err
		}

		return store.EnqueueTx(ctx, tx, ops)
	})
}

// QuailInput describes a new quail profile. RingColor and ProfilePhoto
// are optional.
type QuailInput struct {
	Name         string
	Gender       string
	RingColor    *string
	ProfilePhoto *string
}

// CreateQuail captures a new quail profile as one SetField per
// populated field and returns the new entity ID.
func (c *Capture) CreateQuail(ctx context.Context, in QuailInput) (string, error) {
	id := op.NewID()

	ops := []op.Operation{
		op.NewSet(op.EntityQuail, id, c.clock.Tick(), op.FieldQuailName, in.Name),
		op.NewSet(op.EntityQuail, id, c.clock.Tick(), op.FieldQuailGender, in.Gender),
	}

	if in.RingColor != nil {
		ops = append(ops, op.NewSet(op.EntityQuail, id, c.clock.Tick(), op.FieldQuailRingColor, *in.RingColor))
	}

	if in.ProfilePhoto != nil {
		ops = append(ops, op.NewSet(op.EntityQuail, id, c.clock.Tick(), op.FieldQuailProfilePhoto, *in.ProfilePhoto))
	}

	return id, c.commit(ctx, ops)
}

// QuailChanges holds the fields of an update; nil fields are untouched.
type QuailChanges struct {
	Name         *string
	Gender       *string
	RingColor    *string
	ProfilePhoto *string
}

// UpdateQuail captures one SetField per changed field.
func (c *Capture) UpdateQuail(ctx context.Context, id string, ch QuailChanges) error {
	var ops []op.Operation

	for field, val := range map[string]*string{
		op.FieldQuailName:         ch.Name,
		op.FieldQuailGender:       ch.Gender,
		op.FieldQuailRingColor:    ch.RingColor,
		op.FieldQuailProfilePhoto: ch.ProfilePhoto,
	} {
		if val != nil {
			ops = append(ops, op.NewSet(op.EntityQuail, id, c.clock.Tick(), field, *val))
		}
	}

	return c.commit(ctx, ops)
}

// DeleteQuail captures a tombstone for the quail.
func (c *Capture) DeleteQuail(ctx context.Context, id string) error {
	return c.commit(ctx, []op.Operation{
		op.NewTombstone(op.EntityQuail, id, c.clock.Tick()),
	})
}

// EventInput describes a new life event for a quail.
type EventInput struct {
	QuailID   string
	EventType string
	EventDate string
	Notes     *string
}

// CreateEvent captures a new life event.
func (c *Capture) CreateEvent(ctx context.Context, in EventInput) (string, error) {
	id := op.NewID()

	ops := []op.Operation{
		op.NewSet(op.EntityEvent, id, c.clock.Tick(), op.FieldEventQuailID, in.QuailID),
		op.NewSet(op.EntityEvent, id, c.clock.Tick(), op.FieldEventType, in.EventType),
		op.NewSet(op.EntityEvent, id, c.clock.Tick(), op.FieldEventDate, in.EventDate),
	}

	if in.Notes != nil {
		ops = append(ops, op.NewSet(op.EntityEvent, id, c.clock.Tick(), op.FieldEventNotes, *in.Notes))
	}

	return id, c.commit(ctx, ops)
}

// EventChanges holds the fields of an event update.
type EventChanges struct {
	EventType *string
	EventDate *string
	Notes     *string
}

// UpdateEvent captures one SetField per changed field.
func (c *Capture) UpdateEvent(ctx context.Context, id string, ch EventChanges) error {
	var ops []op.Operation

	for field, val := range map[string]*string{
		op.FieldEventType:  ch.EventType,
		op.FieldEventDate:  ch.EventDate,
		op.FieldEventNotes: ch.Notes,
	} {
		if val != nil {
			ops = append(ops, op.NewSet(op.EntityEvent, id, c.clock.Tick(), field, *val))
		}
	}

	return c.commit(ctx, ops)
}

// DeleteEvent captures a tombstone for the event.
func (c *Capture) DeleteEvent(ctx context.Context, id string) error {
	return c.commit(ctx, []op.Operation{
		op.NewTombstone(op.EntityEvent, id, c.clock.Tick()),
	})
}

// CreateEggRecord captures a new daily egg record. The initial total
// is captured as an Increment so concurrent counts from other devices
// merge additively instead of overwriting each other.
func (c *Capture) CreateEggRecord(ctx context.Context, recordDate string, total int64, notes *string) (string, error) {
	id := op.NewID()

	ops := []op.Operation{
		op.NewSet(op.EntityEgg, id, c.clock.Tick(), op.FieldEggRecordDate, recordDate),
		op.NewIncrement(op.EntityEgg, id, c.clock.Tick(), op.FieldEggTotal, total),
	}

	if notes != nil {
		ops = append(ops, op.NewSet(op.EntityEgg, id, c.clock.Tick(), op.FieldEggNotes, *notes))
	}

	return id, c.commit(ctx, ops)
}

// AddEggDelta captures a counter adjustment on an existing record.
// Negative deltas correct over-counts.
func (c *Capture) AddEggDelta(ctx context.Context, id string, delta int64) error {
	return c.commit(ctx, []op.Operation{
		op.NewIncrement(op.EntityEgg, id, c.clock.Tick(), op.FieldEggTotal, delta),
	})
}

// EggChanges holds the non-counter fields of an egg record update.
type EggChanges struct {
	RecordDate *string
	Notes      *string
}

// UpdateEggRecord captures one SetField per changed non-counter field.
func (c *Capture) UpdateEggRecord(ctx context.Context, id string, ch EggChanges) error {
	var ops []op.Operation

	for field, val := range map[string]*string{
		op.FieldEggRecordDate: ch.RecordDate,
		op.FieldEggNotes:      ch.Notes,
	} {
		if val != nil {
			ops = append(ops, op.NewSet(op.EntityEgg, id, c.clock.Tick(), field, *val))
		}
	}

	return c.commit(ctx, ops)
}

// DeleteEggRecord captures a tombstone for the egg record.
func (c *Capture) DeleteEggRecord(ctx context.Context, id string) error {
	return c.commit(ctx, []op.Operation{
		op.NewTombstone(op.EntityEgg, id, c.clock.Tick()),
	})
}

// PhotoInput describes a new photo metadata record. The photo bytes
// themselves never go through sync; only the relative paths do.
type PhotoInput struct {
	QuailID       *string
	EventID       *string
	RelativePath  string
	RelativeThumb *string
}

// CreatePhoto captures a new photo metadata record.
func (c *Capture) CreatePhoto(ctx context.Context, in PhotoInput) (string, error) {
	id := op.NewID()

	ops := []op.Operation{
		op.NewSet(op.EntityPhoto, id, c.clock.Tick(), op.FieldPhotoRelativePath, in.RelativePath),
	}

	if in.QuailID != nil {
		ops = append(ops, op.NewSet(op.EntityPhoto, id, c.clock.Tick(), op.FieldPhotoQuailID, *in.QuailID))
	}

	if in.EventID != nil {
		ops = append(ops, op.NewSet(op.EntityPhoto, id, c.clock.Tick(), op.FieldPhotoEventID, *in.EventID))
	}

	if in.RelativeThumb != nil {
		ops = append(ops, op.NewSet(op.EntityPhoto, id, c.clock.Tick(), op.FieldPhotoRelativeThumb, *in.RelativeThumb))
	}

	return id, c.commit(ctx, ops)
}

// DeletePhoto captures a tombstone for the photo record.
func (c *Capture) DeletePhoto(ctx context.Context, id string) error {
	return c.commit(ctx, []op.Operation{
		op.NewTombstone(op.EntityPhoto, id, c.clock.Tick()),
	})
}
