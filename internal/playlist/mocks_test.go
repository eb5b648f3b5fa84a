package playlist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"karaoke-service/internal/auth"
	"karaoke-service/internal/store"
)

// MockStore implements store.Store for tests that need to inject failures.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateSession(ctx context.Context, s *store.Session, p *store.Playlist) error {
	args := m.Called(ctx, s, p)
	return args.Error(0)
}

func (m *MockStore) GetSession(ctx context.Context, id uuid.UUID) (*store.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Session), args.Error(1)
}

func (m *MockStore) ListSessions(ctx context.Context) ([]store.Session, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.Session), args.Error(1)
}

func (m *MockStore) UpdateSession(ctx context.Context, s *store.Session) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockStore) DeleteSession(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStore) GetPlaylist(ctx context.Context, id uuid.UUID) (*store.Playlist, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Playlist), args.Error(1)
}

func (m *MockStore) GetPlaylistBySession(ctx context.Context, sessionID uuid.UUID) (*store.Playlist, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Playlist), args.Error(1)
}

func (m *MockStore) SavePlaylist(ctx context.Context, p *store.Playlist) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

type published struct {
	sessionID uuid.UUID
	msg       Message
}

// fakePublisher records every publish. Setting err makes Publish fail.
type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, sessionID uuid.UUID, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{sessionID: sessionID, msg: msg})
	return nil
}

func (f *fakePublisher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakePublisher) all() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.msgs...)
}

type testEnv struct {
	coord *Coordinator
	store *store.MemoryStore
	pub   *fakePublisher
	auth  *auth.Authority
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	a, err := auth.NewAuthority([]byte("test-secret"))
	require.NoError(t, err)
	st := store.NewMemoryStore()
	pub := &fakePublisher{}
	return &testEnv{
		coord: NewCoordinator(st, pub, a, Options{SessionTTL: time.Hour, MaxExtendMinutes: 60}),
		store: st,
		pub:   pub,
		auth:  a,
	}
}

func (e *testEnv) createSession(t *testing.T, cmd CreateSessionCommand) *CreatedSession {
	t.Helper()
	created, err := e.coord.CreateSession(context.Background(), cmd)
	require.NoError(t, err)
	return created
}

func (e *testEnv) addItems(t *testing.T, s *CreatedSession, titles ...string) *Snapshot {
	t.Helper()
	var snap *Snapshot
	for _, title := range titles {
		var err error
		snap, err = e.coord.AddItem(context.Background(), AddItemCommand{
			SessionID:  s.ID,
			PlaylistID: s.PlaylistID,
			Artist:     "Artist " + title,
			Title:      title,
		})
		require.NoError(t, err)
	}
	return snap
}

func titles(snap *Snapshot) []string {
	out := make([]string, len(snap.Items))
	for i, it := range snap.Items {
		out[i] = it.Title
	}
	return out
}

func requireDense(t *testing.T, snap *Snapshot) {
	t.Helper()
	for i, it := range snap.Items {
		require.Equal(t, i, it.Position, "item %d (%s) has position %d", i, it.Title, it.Position)
	}
}

// hookStore runs callbacks right after selected reads return, to land a
// concurrent operation in the window between a read and what follows it.
type hookStore struct {
	store.Store
	afterList         func()
	afterGetBySession func()
}

func (h *hookStore) ListSessions(ctx context.Context) ([]store.Session, error) {
	out, err := h.Store.ListSessions(ctx)
	if h.afterList != nil {
		h.afterList()
	}
	return out, err
}

func (h *hookStore) GetPlaylistBySession(ctx context.Context, sessionID uuid.UUID) (*store.Playlist, error) {
	p, err := h.Store.GetPlaylistBySession(ctx, sessionID)
	if h.afterGetBySession != nil {
		h.afterGetBySession()
	}
	return p, err
}
