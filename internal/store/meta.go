package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SetMeta upserts one key in the meta table.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("store: setting meta %s: %w", key, err)
	}

	return nil
}

// GetMeta reads one key from the meta table. A missing key returns an
// empty string, not an error.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string

	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("store: reading meta %s: %w", key, err)
	}

	return value, nil
}
