package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

const metaKeyDeviceID = "device_id"

// DeviceID returns this installation's stable device identity,
// generating and persisting one on first call. Every clock stamp and
// every remote upload path for this device carries it.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	var id string

	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE key = ?`, metaKeyDeviceID).Scan(&id)
	if err == nil {
		return id, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("store: loading device ID: %w", err)
	}

	id = uuid.NewString()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)`, metaKeyDeviceID, id)
	if err != nil {
		return "", fmt.Errorf("store: persisting device ID: %w", err)
	}

	s.logger.Info("generated device identity", slog.String("device_id", id))

	return id, nil
}
