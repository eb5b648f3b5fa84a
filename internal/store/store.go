// Package store persists sessions and their playlists.
package store

import (
	"context"

	"github.com/google/uuid"

	"karaoke-service/internal/apperr"
)

var (
	ErrNotFound = apperr.New(apperr.KindNotFound, "not found")
	ErrConflict = apperr.New(apperr.KindConflict, "conflicting write")
)

// Store is durable access to the session and playlist aggregates. Callers
// serialize writes per session; implementations only need to make each call
// atomic.
type Store interface {
	// CreateSession stores a session together with its (empty) playlist.
	CreateSession(ctx context.Context, s *Session, p *Playlist) error
	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)
	ListSessions(ctx context.Context) ([]Session, error)
	UpdateSession(ctx context.Context, s *Session) error
	// DeleteSession removes the session, its playlist and its items.
	DeleteSession(ctx context.Context, id uuid.UUID) error

	GetPlaylist(ctx context.Context, id uuid.UUID) (*Playlist, error)
	GetPlaylistBySession(ctx context.Context, sessionID uuid.UUID) (*Playlist, error)
	// SavePlaylist replaces the stored items of p with p.Items.
	SavePlaylist(ctx context.Context, p *Playlist) error
}
