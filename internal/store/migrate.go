package store

import (
	"context"
	"fmt"

	"karaoke-service/internal/logging"
)

var migrations = []struct {
	name string
	sql  string
}{
	{"sessions", `
      CREATE TABLE IF NOT EXISTS sessions (
          id                  uuid PRIMARY KEY,
          link_token          TEXT NOT NULL,
          created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
          expires_at          TIMESTAMPTZ,
          require_singer_name BOOLEAN NOT NULL DEFAULT FALSE,
          pause_seconds       INT NOT NULL DEFAULT 0
      )
    `},
	{"playlists", `
      CREATE TABLE IF NOT EXISTS playlists (
          id         uuid PRIMARY KEY,
          session_id uuid NOT NULL UNIQUE REFERENCES sessions(id) ON DELETE CASCADE
      )
    `},
	{"playlist_items", `
      CREATE TABLE IF NOT EXISTS playlist_items (
          id          uuid PRIMARY KEY,
          playlist_id uuid NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
          position    INT NOT NULL,
          artist      TEXT NOT NULL,
          title       TEXT NOT NULL,
          singer_name TEXT,
          added_by    TEXT NOT NULL DEFAULT 'guest',
          created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
      )
    `},
	{"idx_playlist_items_position", `
      CREATE UNIQUE INDEX IF NOT EXISTS idx_playlist_items_position
      ON playlist_items(playlist_id, position)
    `},
	{"idx_sessions_expires_at", `
      CREATE INDEX IF NOT EXISTS idx_sessions_expires_at
      ON sessions(expires_at) WHERE expires_at IS NOT NULL
    `},
}

// AutoMigrate creates the schema if it does not exist yet.
func AutoMigrate(ctx context.Context, db DB) error {
	for _, m := range migrations {
		if _, err := db.Exec(ctx, m.sql); err != nil {
			logging.Error().Err(err).Str("migration", m.name).Msg("migrate failed")
			return fmt.Errorf("store: migrate %s: %w", m.name, err)
		}
	}
	logging.Info().Int("steps", len(migrations)).Msg("schema up to date")
	return nil
}
