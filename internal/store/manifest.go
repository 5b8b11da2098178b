package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// The remote manifest maps each remote batch file path to the revision
// tag it carried when last downloaded. Discovery skips any path whose
// current tag matches the stored one.

// Manifest loads the full path-to-tag mapping.
func (s *Store) Manifest(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, etag FROM remote_manifest`)
	if err != nil {
		return nil, fmt.Errorf("store: loading manifest: %w", err)
	}
	defer rows.Close()

	m := make(map[string]string)

	for rows.Next() {
		var path, etag string
		if err := rows.Scan(&path, &etag); err != nil {
			return nil, fmt.Errorf("store: scanning manifest row: %w", err)
		}

		m[path] = etag
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating manifest rows: %w", err)
	}

	return m, nil
}

// ManifestEntry is one path/tag pair pending persistence.
type ManifestEntry struct {
	Path string
	ETag string
}

// SaveManifest upserts a set of manifest entries. Called after a batch
// of downloaded files has been applied; re-downloading after a crash in
// between is harmless because the ledger filters replayed operations.
func (s *Store) SaveManifest(ctx context.Context, entries []ManifestEntry) error {
	if len(entries) == 0 {
		return nil
	}

	now := time.Now().UnixMilli()

	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, e := range entries {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO remote_manifest (path, etag, updated_at) VALUES (?, ?, ?)
				 ON CONFLICT(path) DO UPDATE SET
				  etag = excluded.etag,
				  updated_at = excluded.updated_at`,
				e.Path, e.ETag, now,
			)
			if err != nil {
				return fmt.Errorf("store: saving manifest entry %s: %w", e.Path, err)
			}
		}

		return nil
	})
}

// ManifestSize returns the number of tracked remote files.
func (s *Store) ManifestSize(ctx context.Context) (int, error) {
	var n int

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM remote_manifest`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: counting manifest: %w", err)
	}

	return n, nil
}
