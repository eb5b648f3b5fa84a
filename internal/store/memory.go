package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps everything in process. It backs tests and the
// store.driver=memory mode; nothing survives a restart.
type MemoryStore struct {
	mu        sync.RWMutex
	sessions  map[uuid.UUID]*Session
	playlists map[uuid.UUID]*Playlist
	bySession map[uuid.UUID]uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[uuid.UUID]*Session),
		playlists: make(map[uuid.UUID]*Playlist),
		bySession: make(map[uuid.UUID]uuid.UUID),
	}
}

func (m *MemoryStore) CreateSession(ctx context.Context, s *Session, p *Playlist) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; ok {
		return ErrConflict
	}
	if _, ok := m.playlists[p.ID]; ok {
		return ErrConflict
	}
	m.sessions[s.ID] = s.clone()
	m.playlists[p.ID] = p.Clone()
	m.bySession[s.ID] = p.ID
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.clone(), nil
}

func (m *MemoryStore) ListSessions(ctx context.Context) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) UpdateSession(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; !ok {
		return ErrNotFound
	}
	m.sessions[s.ID] = s.clone()
	return nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	if pid, ok := m.bySession[id]; ok {
		delete(m.playlists, pid)
		delete(m.bySession, id)
	}
	return nil
}

func (m *MemoryStore) GetPlaylist(ctx context.Context, id uuid.UUID) (*Playlist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.playlists[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *MemoryStore) GetPlaylistBySession(ctx context.Context, sessionID uuid.UUID) (*Playlist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pid, ok := m.bySession[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return m.playlists[pid].Clone(), nil
}

func (m *MemoryStore) SavePlaylist(ctx context.Context, p *Playlist) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.playlists[p.ID]; !ok {
		return ErrNotFound
	}
	m.playlists[p.ID] = p.Clone()
	return nil
}
