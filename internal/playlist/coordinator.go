package playlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"karaoke-service/internal/logging"
	"karaoke-service/internal/metrics"
	"karaoke-service/internal/store"
)

// Publisher delivers a message to every member of a session group.
type Publisher interface {
	Publish(ctx context.Context, sessionID uuid.UUID, msg Message) error
}

// TokenIssuer mints the link token handed out at session creation.
type TokenIssuer interface {
	Issue(sessionID uuid.UUID) string
}

type Options struct {
	// SessionTTL is the lifetime of a new session. Zero means sessions never
	// expire on their own.
	SessionTTL time.Duration
	// MaxExtendMinutes caps a single heartbeat extension.
	MaxExtendMinutes int
}

// Coordinator applies every mutation of a session's playlist and settings.
// Mutations of one session run one at a time, in arrival order of the lock;
// different sessions never wait on each other.
type Coordinator struct {
	store  store.Store
	pub    Publisher
	tokens TokenIssuer
	locks  *sessionLocks
	opts   Options
	now    func() time.Time
}

func NewCoordinator(st store.Store, pub Publisher, tokens TokenIssuer, opts Options) *Coordinator {
	if opts.MaxExtendMinutes <= 0 {
		opts.MaxExtendMinutes = 240
	}
	return &Coordinator{
		store:  st,
		pub:    pub,
		tokens: tokens,
		locks:  newSessionLocks(),
		opts:   opts,
		now:    time.Now,
	}
}

func (c *Coordinator) AddItem(ctx context.Context, cmd AddItemCommand) (snap *Snapshot, err error) {
	defer func() { metrics.RecordMutation("addItem", err) }()

	cmd.normalize()
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	return c.mutate(ctx, "addItem", cmd.SessionID, cmd.PlaylistID, func(sess *store.Session, p *store.Playlist) error {
		if sess.RequireSingerName && cmd.SingerName == nil {
			return ErrSingerNameRequired
		}
		p.Items = append(p.Items, store.Item{
			ID:         uuid.New(),
			PlaylistID: p.ID,
			Position:   len(p.Items),
			Artist:     cmd.Artist,
			Title:      cmd.Title,
			SingerName: cmd.SingerName,
			AddedBy:    cmd.AddedBy,
			CreatedAt:  c.now().UTC(),
		})
		return nil
	})
}

func (c *Coordinator) RemoveItem(ctx context.Context, cmd RemoveItemCommand) (snap *Snapshot, err error) {
	defer func() { metrics.RecordMutation("removeItem", err) }()

	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	return c.mutate(ctx, "removeItem", cmd.SessionID, cmd.PlaylistID, func(_ *store.Session, p *store.Playlist) error {
		for i := range p.Items {
			if p.Items[i].ID == cmd.ItemID {
				p.Items = append(p.Items[:i], p.Items[i+1:]...)
				return nil
			}
		}
		return ErrItemNotFound
	})
}

func (c *Coordinator) Reorder(ctx context.Context, cmd ReorderCommand) (snap *Snapshot, err error) {
	defer func() { metrics.RecordMutation("reorder", err) }()

	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	return c.mutate(ctx, "reorder", cmd.SessionID, cmd.PlaylistID, func(_ *store.Session, p *store.Playlist) error {
		n := len(p.Items)
		if cmd.FromIndex < 0 || cmd.FromIndex >= n || cmd.ToIndex < 0 || cmd.ToIndex >= n {
			return ErrInvalidIndex
		}
		p.Items = moveItem(p.Items, cmd.FromIndex, cmd.ToIndex)
		return nil
	})
}

// mutate runs fn on the session's playlist under the session lock, saves the
// result with dense positions and publishes the snapshot before releasing
// the lock, so publishes for one session leave in commit order.
func (c *Coordinator) mutate(ctx context.Context, op string, sessionID, playlistID uuid.UUID, fn func(*store.Session, *store.Playlist) error) (*Snapshot, error) {
	release := c.locks.acquire(sessionID)
	defer release()

	sess, err := c.liveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	p, err := c.store.GetPlaylist(ctx, playlistID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPlaylistNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("playlist: %s: load playlist: %w", op, err)
	}
	if p.SessionID != sessionID {
		return nil, ErrPlaylistNotFound
	}

	if err := fn(sess, p); err != nil {
		return nil, err
	}
	reindex(p.Items)

	if err := c.store.SavePlaylist(ctx, p); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPlaylistNotFound
		}
		return nil, fmt.Errorf("playlist: %s: save: %w", op, err)
	}

	snap := newSnapshot(p)
	if err := c.pub.Publish(ctx, sessionID, Message{Type: EventPlaylistUpdated, Data: snap}); err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("op", op).
			Str("session_id", sessionID.String()).
			Str("playlist_id", playlistID.String()).
			Msg("playlist update committed but not broadcast")
		return snap, &BroadcastError{Err: err}
	}
	return snap, nil
}

func (c *Coordinator) liveSession(ctx context.Context, id uuid.UUID) (*store.Session, error) {
	sess, err := c.store.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("playlist: load session: %w", err)
	}
	if sess.Expired(c.now()) {
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// CreateSession stores a new session with an empty playlist and returns its
// link token.
func (c *Coordinator) CreateSession(ctx context.Context, cmd CreateSessionCommand) (created *CreatedSession, err error) {
	defer func() { metrics.RecordMutation("createSession", err) }()

	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	now := c.now().UTC()
	sess := &store.Session{
		ID:                uuid.New(),
		CreatedAt:         now,
		RequireSingerName: cmd.RequireSingerName,
		PauseSeconds:      cmd.PauseSeconds,
	}
	if c.opts.SessionTTL > 0 {
		exp := now.Add(c.opts.SessionTTL)
		sess.ExpiresAt = &exp
	}
	sess.LinkToken = c.tokens.Issue(sess.ID)
	p := &store.Playlist{ID: uuid.New(), SessionID: sess.ID, Items: []store.Item{}}

	if err := c.store.CreateSession(ctx, sess, p); err != nil {
		return nil, fmt.Errorf("playlist: create session: %w", err)
	}

	logging.Ctx(ctx).Info().Str("session_id", sess.ID.String()).Msg("session created")
	return &CreatedSession{
		ID:                sess.ID,
		Token:             sess.LinkToken,
		ExpiresAt:         sess.ExpiresAt,
		PlaylistID:        p.ID,
		RequireSingerName: sess.RequireSingerName,
		PauseSeconds:      sess.PauseSeconds,
	}, nil
}

// Heartbeat pushes the expiry out by ExtendMinutes, counted from the later
// of now and the current expiry. Sessions without an expiry are left alone.
func (c *Coordinator) Heartbeat(ctx context.Context, cmd HeartbeatCommand) (sess *store.Session, err error) {
	defer func() { metrics.RecordMutation("heartbeat", err) }()

	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	release := c.locks.acquire(cmd.SessionID)
	defer release()

	sess, err = c.liveSession(ctx, cmd.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.ExpiresAt == nil {
		return sess, nil
	}

	ext := min(max(cmd.ExtendMinutes, 1), c.opts.MaxExtendMinutes)
	base := c.now().UTC()
	if sess.ExpiresAt.After(base) {
		base = *sess.ExpiresAt
	}
	exp := base.Add(time.Duration(ext) * time.Minute)
	sess.ExpiresAt = &exp

	if err := c.store.UpdateSession(ctx, sess); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("playlist: heartbeat: %w", err)
	}
	return sess, nil
}

func (c *Coordinator) UpdateSettings(ctx context.Context, cmd UpdateSettingsCommand) (sess *store.Session, err error) {
	defer func() { metrics.RecordMutation("updateSettings", err) }()

	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	release := c.locks.acquire(cmd.SessionID)
	defer release()

	sess, err = c.liveSession(ctx, cmd.SessionID)
	if err != nil {
		return nil, err
	}
	if cmd.RequireSingerName != nil {
		sess.RequireSingerName = *cmd.RequireSingerName
	}
	if cmd.PauseSeconds != nil {
		sess.PauseSeconds = *cmd.PauseSeconds
	}

	if err := c.store.UpdateSession(ctx, sess); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("playlist: update settings: %w", err)
	}
	return sess, nil
}

// EndSession is the explicit, token-guarded end of a session.
func (c *Coordinator) EndSession(ctx context.Context, cmd EndSessionCommand) (struct{}, error) {
	if err := validateCommand(cmd); err != nil {
		return struct{}{}, err
	}
	return struct{}{}, c.Terminate(ctx, cmd.SessionID, ReasonEnded)
}

// Terminate deletes the session with its playlist and notifies the group.
// With ReasonExpired the expiry is checked again under the session lock and
// a session renewed in the meantime is left alone with ErrSessionRenewed.
// A publish failure is returned as *BroadcastError after the delete.
func (c *Coordinator) Terminate(ctx context.Context, sessionID uuid.UUID, reason string) (err error) {
	defer func() { metrics.RecordMutation("terminate", err) }()

	release := c.locks.acquire(sessionID)
	defer release()

	if reason == ReasonExpired {
		sess, err := c.store.GetSession(ctx, sessionID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("playlist: terminate: %w", err)
		}
		if !sess.Expired(c.now()) {
			return ErrSessionRenewed
		}
	}

	if err := c.store.DeleteSession(ctx, sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("playlist: terminate: %w", err)
	}

	msg := Message{Type: EventSessionEnded, Data: SessionEnded{SessionID: sessionID, Reason: reason}}
	if err := c.pub.Publish(ctx, sessionID, msg); err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("session_id", sessionID.String()).
			Msg("session deleted but sessionEnded not broadcast")
		return &BroadcastError{Err: err}
	}

	logging.Ctx(ctx).Info().Str("session_id", sessionID.String()).Str("reason", reason).Msg("session terminated")
	return nil
}

// Subscribe runs join and reads the current snapshot under the session
// lock. No mutation can commit in between, so the caller's snapshot plus
// the broadcasts it receives after join cover every change exactly once.
// join does not run when the session is gone or expired.
func (c *Coordinator) Subscribe(ctx context.Context, sessionID uuid.UUID, join func()) (*Snapshot, error) {
	release := c.locks.acquire(sessionID)
	defer release()

	if _, err := c.liveSession(ctx, sessionID); err != nil {
		return nil, err
	}
	p, err := c.store.GetPlaylistBySession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPlaylistNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("playlist: subscribe: %w", err)
	}
	join()
	return newSnapshot(p), nil
}

// Playlist returns the current snapshot without taking the session lock.
func (c *Coordinator) Playlist(ctx context.Context, sessionID uuid.UUID) (*Snapshot, error) {
	if _, err := c.liveSession(ctx, sessionID); err != nil {
		return nil, err
	}
	p, err := c.store.GetPlaylistBySession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPlaylistNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("playlist: get playlist: %w", err)
	}
	return newSnapshot(p), nil
}

func (c *Coordinator) Session(ctx context.Context, sessionID uuid.UUID) (*store.Session, error) {
	return c.liveSession(ctx, sessionID)
}

func reindex(items []store.Item) {
	for i := range items {
		items[i].Position = i
	}
}

// moveItem removes the item at from and inserts it so that it ends up at
// index to of the result.
func moveItem(items []store.Item, from, to int) []store.Item {
	it := items[from]
	rest := make([]store.Item, 0, len(items))
	rest = append(rest, items[:from]...)
	rest = append(rest, items[from+1:]...)

	out := make([]store.Item, 0, len(items))
	out = append(out, rest[:to]...)
	out = append(out, it)
	out = append(out, rest[to:]...)
	return out
}
