package playlist

import (
	"time"

	"github.com/google/uuid"

	"karaoke-service/internal/store"
)

// Event types pushed to session groups.
const (
	EventPlaylistUpdated = "playlistUpdated"
	EventSessionEnded    = "sessionEnded"
)

// Message is one broadcast to a session group.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Snapshot is the canonical state of a playlist after a mutation. Clients
// replace their local copy with it wholesale.
type Snapshot struct {
	PlaylistID uuid.UUID      `json:"playlistId"`
	SessionID  uuid.UUID      `json:"sessionId"`
	Items      []SnapshotItem `json:"items"`
}

type SnapshotItem struct {
	ID         uuid.UUID `json:"id"`
	Artist     string    `json:"artist"`
	Title      string    `json:"title"`
	SingerName *string   `json:"singerName,omitempty"`
	AddedBy    string    `json:"addedBy"`
	Position   int       `json:"position"`
}

// SessionEnded is the payload of an EventSessionEnded message.
type SessionEnded struct {
	SessionID uuid.UUID `json:"sessionId"`
	Reason    string    `json:"reason,omitempty"`
}

// Reasons reported in SessionEnded.
const (
	ReasonEnded   = "ended"
	ReasonExpired = "expired"
)

func newSnapshot(p *store.Playlist) *Snapshot {
	snap := &Snapshot{
		PlaylistID: p.ID,
		SessionID:  p.SessionID,
		Items:      make([]SnapshotItem, len(p.Items)),
	}
	for i, it := range p.Items {
		snap.Items[i] = SnapshotItem{
			ID:         it.ID,
			Artist:     it.Artist,
			Title:      it.Title,
			SingerName: it.SingerName,
			AddedBy:    it.AddedBy,
			Position:   it.Position,
		}
	}
	return snap
}

// CreatedSession is returned once, at creation. It is the only place the
// link token is handed out.
type CreatedSession struct {
	ID                uuid.UUID  `json:"id"`
	Token             string     `json:"token"`
	ExpiresAt         *time.Time `json:"expiresAt,omitempty"`
	PlaylistID        uuid.UUID  `json:"playlistId"`
	RequireSingerName bool       `json:"requireSingerName"`
	PauseSeconds      int        `json:"pauseSeconds"`
}
