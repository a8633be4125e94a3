package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/yourusername/frc-picklist/internal/config"
)

// ErrDisabled is returned when the database section is not enabled
var ErrDisabled = errors.New("database not enabled")

// Schema is the team_metrics table read by the repository. One row holds one
// metric observation for a team; numeric observations are averaged per team
// and text observations concatenated.
const Schema = `
CREATE TABLE IF NOT EXISTS team_metrics (
	event_key   TEXT        NOT NULL,
	team_number INTEGER     NOT NULL CHECK (team_number > 0),
	nickname    TEXT        NOT NULL DEFAULT '',
	metric      TEXT        NOT NULL,
	value       DOUBLE PRECISION,
	text_value  TEXT,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS team_metrics_event_idx ON team_metrics (event_key, team_number);
`

// Initialize connects to the configured database and makes sure the
// team_metrics schema exists.
func Initialize(ctx context.Context, cfg *config.Config) (*DB, error) {
	if !cfg.Database.Enabled {
		return nil, ErrDisabled
	}

	db, err := NewDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	if err := EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates the team_metrics table when it is missing.
func EnsureSchema(ctx context.Context, db *DB) error {
	var exists bool
	err := db.pool.QueryRow(ctx, "SELECT to_regclass('public.team_metrics') IS NOT NULL").Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to inspect schema: %w", err)
	}
	if exists {
		return nil
	}
	if _, err := db.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create team_metrics table: %w", err)
	}
	return nil
}
