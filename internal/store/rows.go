package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/coveyapp/covey/internal/hlc"
)

// Typed row readers for the materialized tables. The sync engine only
// needs RowStateTx; these exist for the UI/business layer and tests.

// QuailRow is one materialized quail profile.
type QuailRow struct {
	ID           string
	Name         string
	Gender       string
	RingColor    sql.NullString
	ProfilePhoto sql.NullString
	Clock        hlc.Stamp
	Deleted      bool
}

// GetQuail loads one quail row, tombstoned or not. Returns sql.ErrNoRows
// wrapped if the row has never been materialized.
func (s *Store) GetQuail(ctx context.Context, id string) (*QuailRow, error) {
	var (
		r       QuailRow
		deleted int
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, gender, ring_color, profile_photo,
			clock_ts, clock_count, clock_device, deleted
		 FROM quails WHERE id = ?`, id).Scan(
		&r.ID, &r.Name, &r.Gender, &r.RingColor, &r.ProfilePhoto,
		&r.Clock.TS, &r.Clock.Count, &r.Clock.Device, &deleted,
	)
	if err != nil {
		return nil, fmt.Errorf("store: loading quail %s: %w", id, err)
	}

	r.Deleted = deleted != 0

	return &r, nil
}

// EventRow is one materialized life event.
type EventRow struct {
	ID        string
	QuailID   string
	EventType string
	EventDate string
	Notes     sql.NullString
	Clock     hlc.Stamp
	Deleted   bool
}

// GetEvent loads one event row.
func (s *Store) GetEvent(ctx context.Context, id string) (*EventRow, error) {
	var (
		r       EventRow
		deleted int
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT id, quail_id, event_type, event_date, notes,
			clock_ts, clock_count, clock_device, deleted
		 FROM events WHERE id = ?`, id).Scan(
		&r.ID, &r.QuailID, &r.EventType, &r.EventDate, &r.Notes,
		&r.Clock.TS, &r.Clock.Count, &r.Clock.Device, &deleted,
	)
	if err != nil {
		return nil, fmt.Errorf("store: loading event %s: %w", id, err)
	}

	r.Deleted = deleted != 0

	return &r, nil
}

// EggRow is one materialized daily egg record.
type EggRow struct {
	ID         string
	RecordDate string
	TotalEggs  int64
	Notes      sql.NullString
	Clock      hlc.Stamp
	Deleted    bool
}

// GetEgg loads one egg record row.
func (s *Store) GetEgg(ctx context.Context, id string) (*EggRow, error) {
	var (
		r       EggRow
		deleted int
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT id, record_date, total_eggs, notes,
			clock_ts, clock_count, clock_device, deleted
		 FROM egg_records WHERE id = ?`, id).Scan(
		&r.ID, &r.RecordDate, &r.TotalEggs, &r.Notes,
		&r.Clock.TS, &r.Clock.Count, &r.Clock.Device, &deleted,
	)
	if err != nil {
		return nil, fmt.Errorf("store: loading egg record %s: %w", id, err)
	}

	r.Deleted = deleted != 0

	return &r, nil
}

// PhotoRow is one materialized photo metadata record.
type PhotoRow struct {
	ID            string
	QuailID       sql.NullString
	EventID       sql.NullString
	RelativePath  string
	RelativeThumb sql.NullString
	Clock         hlc.Stamp
	Deleted       bool
}

// GetPhoto loads one photo metadata row.
func (s *Store) GetPhoto(ctx context.Context, id string) (*PhotoRow, error) {
	var (
		r       PhotoRow
		deleted int
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT id, quail_id, event_id, relative_path, relative_thumb,
			clock_ts, clock_count, clock_device, deleted
		 FROM photos WHERE id = ?`, id).Scan(
		&r.ID, &r.QuailID, &r.EventID, &r.RelativePath, &r.RelativeThumb,
		&r.Clock.TS, &r.Clock.Count, &r.Clock.Device, &deleted,
	)
	if err != nil {
		return nil, fmt.Errorf("store: loading photo %s: %w", id, err)
	}

	r.Deleted = deleted != 0

	return &r, nil
}

// HasQuail reports whether a quail row exists (tombstoned counts).
func (s *Store) HasQuail(ctx context.Context, id string) (bool, error) {
	var one int

	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM quails WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("store: checking quail %s: %w", id, err)
	}

	return true, nil
}
