// Package realtime keeps connected devices in per-session groups and pushes
// playlist state to them over WebSockets.
package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"karaoke-service/internal/apperr"
	"karaoke-service/internal/logging"
	"karaoke-service/internal/metrics"
	"karaoke-service/internal/playlist"
)

var ErrHubClosed = apperr.New(apperr.KindInternal, "hub closed")

// Hub is the group registry. One mutex guards membership and delivery, so a
// publish enqueues to every member before the next publish starts and each
// connection sees one session's messages in publish order.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	groups  map[uuid.UUID]map[*Client]struct{}
	members map[*Client]map[uuid.UUID]struct{}
	closed  bool
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		groups:  make(map[uuid.UUID]map[*Client]struct{}),
		members: make(map[*Client]map[uuid.UUID]struct{}),
	}
}

func (h *Hub) Register(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	h.clients[c] = struct{}{}
	metrics.TrackConnection(true)
	return nil
}

// Unregister removes c from every group and closes its send channel.
// Calling it again for the same client is a no-op.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	for id := range h.members[c] {
		h.leaveLocked(c, id)
	}
	delete(h.members, c)
	delete(h.clients, c)
	close(c.send)
	metrics.TrackConnection(false)
}

// Join adds c to the session group. Joining twice is the same as once.
func (h *Hub) Join(c *Client, sessionID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	g, ok := h.groups[sessionID]
	if !ok {
		g = make(map[*Client]struct{})
		h.groups[sessionID] = g
	}
	g[c] = struct{}{}

	m, ok := h.members[c]
	if !ok {
		m = make(map[uuid.UUID]struct{})
		h.members[c] = m
	}
	m[sessionID] = struct{}{}
}

// Leave removes c from the session group. Leaving a group c is not in does
// nothing.
func (h *Hub) Leave(c *Client, sessionID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, sessionID)
}

func (h *Hub) leaveLocked(c *Client, sessionID uuid.UUID) {
	if g, ok := h.groups[sessionID]; ok {
		delete(g, c)
		if len(g) == 0 {
			delete(h.groups, sessionID)
		}
	}
	if m, ok := h.members[c]; ok {
		delete(m, sessionID)
	}
}

// Publish implements playlist.Publisher.
func (h *Hub) Publish(_ context.Context, sessionID uuid.UUID, msg playlist.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("realtime: encode %s: %w", msg.Type, err)
	}
	return h.PublishRaw(sessionID, data)
}

// PublishRaw delivers an already encoded message to the session group. A
// member whose buffer is full is disconnected rather than stalling the
// others.
func (h *Hub) PublishRaw(sessionID uuid.UUID, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	for c := range h.groups[sessionID] {
		select {
		case c.send <- data:
		default:
			logging.Warn().
				Uint64("client_id", c.id).
				Str("session_id", sessionID.String()).
				Msg("realtime: send buffer full, dropping client")
			h.dropLocked(c)
			c.closeConn()
		}
	}
	return nil
}

// sendTo queues a direct reply to one client. It reports false when the
// client is gone or too slow.
func (h *Hub) sendTo(c *Client, data []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		h.dropLocked(c)
		c.closeConn()
		return false
	}
}

func (h *Hub) GroupSize(sessionID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.groups[sessionID])
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and makes later publishes fail.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
}

// RunWithContext blocks until ctx is done, then closes the hub.
func (h *Hub) RunWithContext(ctx context.Context) error {
	<-ctx.Done()
	logging.Info().Msg("realtime: hub shutting down")
	h.Close()
	return ctx.Err()
}

func (h *Hub) Serve(ctx context.Context) error {
	return h.RunWithContext(ctx)
}

func (h *Hub) String() string {
	return "realtime-hub"
}
