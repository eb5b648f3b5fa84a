package store

import (
	"time"

	"github.com/google/uuid"
)

// Session is a time-bounded karaoke event. A nil ExpiresAt never expires.
type Session struct {
	ID                uuid.UUID  `json:"id"`
	LinkToken         string     `json:"-"`
	CreatedAt         time.Time  `json:"createdAt"`
	ExpiresAt         *time.Time `json:"expiresAt,omitempty"`
	RequireSingerName bool       `json:"requireSingerName"`
	PauseSeconds      int        `json:"pauseSeconds"`
}

// Expired reports whether the session's expiry is at or before now.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}

// Playlist is the song queue of a session. Items are kept ordered by
// Position, which is always 0..len(Items)-1.
type Playlist struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"sessionId"`
	Items     []Item    `json:"items"`
}

// Item is one queued song.
type Item struct {
	ID         uuid.UUID `json:"id"`
	PlaylistID uuid.UUID `json:"playlistId"`
	Position   int       `json:"position"`
	Artist     string    `json:"artist"`
	Title      string    `json:"title"`
	SingerName *string   `json:"singerName,omitempty"`
	AddedBy    string    `json:"addedBy"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Clone returns a deep copy so callers can mutate it without touching the
// stored value.
func (p *Playlist) Clone() *Playlist {
	out := &Playlist{ID: p.ID, SessionID: p.SessionID, Items: make([]Item, len(p.Items))}
	for i, it := range p.Items {
		if it.SingerName != nil {
			name := *it.SingerName
			it.SingerName = &name
		}
		out.Items[i] = it
	}
	return out
}

func (s *Session) clone() *Session {
	out := *s
	if s.ExpiresAt != nil {
		exp := *s.ExpiresAt
		out.ExpiresAt = &exp
	}
	return &out
}
