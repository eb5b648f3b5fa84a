package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const sessionColumns = `id, link_token, created_at, expires_at, require_singer_name, pause_seconds`

func (s *PostgresStore) CreateSession(ctx context.Context, sess *Session, p *Playlist) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("store: create session begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO sessions (id, link_token, created_at, expires_at, require_singer_name, pause_seconds)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, sess.ID, sess.LinkToken, sess.CreatedAt, sess.ExpiresAt, sess.RequireSingerName, sess.PauseSeconds); err != nil {
		return mapError("create session", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO playlists (id, session_id)
		VALUES ($1, $2)
	`, p.ID, sess.ID); err != nil {
		return mapError("create playlist", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: create session commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	var sess Session
	err := s.db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE id = $1
	`, id).Scan(
		&sess.ID,
		&sess.LinkToken,
		&sess.CreatedAt,
		&sess.ExpiresAt,
		&sess.RequireSingerName,
		&sess.PauseSeconds,
	)
	if err != nil {
		return nil, mapError("get session", err)
	}
	return &sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, mapError("list sessions", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		if err := rows.Scan(
			&sess.ID,
			&sess.LinkToken,
			&sess.CreatedAt,
			&sess.ExpiresAt,
			&sess.RequireSingerName,
			&sess.PauseSeconds,
		); err != nil {
			return nil, fmt.Errorf("store: list sessions scan: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list sessions rows: %w", err)
	}
	return sessions, nil
}

func (s *PostgresStore) UpdateSession(ctx context.Context, sess *Session) error {
	res, err := s.db.Exec(ctx, `
		UPDATE sessions
		SET expires_at = $2,
			require_singer_name = $3,
			pause_seconds = $4
		WHERE id = $1
	`, sess.ID, sess.ExpiresAt, sess.RequireSingerName, sess.PauseSeconds)
	if err != nil {
		return mapError("update session", err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return mapError("delete session", err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetPlaylist(ctx context.Context, id uuid.UUID) (*Playlist, error) {
	var p Playlist
	err := s.db.QueryRow(ctx, `
		SELECT id, session_id
		FROM playlists
		WHERE id = $1
	`, id).Scan(&p.ID, &p.SessionID)
	if err != nil {
		return nil, mapError("get playlist", err)
	}
	if p.Items, err = s.loadItems(ctx, p.ID); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) GetPlaylistBySession(ctx context.Context, sessionID uuid.UUID) (*Playlist, error) {
	var p Playlist
	err := s.db.QueryRow(ctx, `
		SELECT id, session_id
		FROM playlists
		WHERE session_id = $1
	`, sessionID).Scan(&p.ID, &p.SessionID)
	if err != nil {
		return nil, mapError("get playlist by session", err)
	}
	if p.Items, err = s.loadItems(ctx, p.ID); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) loadItems(ctx context.Context, playlistID uuid.UUID) ([]Item, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, playlist_id, position, artist, title, singer_name, added_by, created_at
		FROM playlist_items
		WHERE playlist_id = $1
		ORDER BY position ASC
	`, playlistID)
	if err != nil {
		return nil, mapError("list items", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(
			&it.ID,
			&it.PlaylistID,
			&it.Position,
			&it.Artist,
			&it.Title,
			&it.SingerName,
			&it.AddedBy,
			&it.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: list items scan: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list items rows: %w", err)
	}
	return items, nil
}

var itemColumns = []string{"id", "playlist_id", "position", "artist", "title", "singer_name", "added_by", "created_at"}

// SavePlaylist rewrites the item rows inside one transaction. The playlist
// row is locked first so concurrent writers from another process queue up
// behind it.
func (s *PostgresStore) SavePlaylist(ctx context.Context, p *Playlist) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("store: save playlist begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id uuid.UUID
	if err := tx.QueryRow(ctx, `
		SELECT id FROM playlists WHERE id = $1 FOR UPDATE
	`, p.ID).Scan(&id); err != nil {
		return mapError("save playlist lock", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM playlist_items WHERE playlist_id = $1`, p.ID); err != nil {
		return mapError("save playlist clear", err)
	}

	if len(p.Items) > 0 {
		rows := make([][]any, len(p.Items))
		for i, it := range p.Items {
			rows[i] = []any{it.ID, p.ID, it.Position, it.Artist, it.Title, it.SingerName, it.AddedBy, it.CreatedAt}
		}
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"playlist_items"}, itemColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return mapError("save playlist insert", err)
		}
		if n != int64(len(rows)) {
			return fmt.Errorf("store: save playlist insert: copied %d of %d items", n, len(rows))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: save playlist commit: %w", err)
	}
	return nil
}

func mapError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrConflict
	}
	return fmt.Errorf("store: %s: %w", op, err)
}
