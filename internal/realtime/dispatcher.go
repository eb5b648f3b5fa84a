package realtime

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"karaoke-service/internal/apperr"
	"karaoke-service/internal/auth"
	"karaoke-service/internal/logging"
	"karaoke-service/internal/playlist"
)

// Operation names accepted in invoke frames.
const (
	OpJoinSession    = "JoinSession"
	OpLeaveSession   = "LeaveSession"
	OpAddItem        = "AddItem"
	OpRemoveItem     = "RemoveItem"
	OpReorder        = "Reorder"
	OpHeartbeat      = "Heartbeat"
	OpUpdateSettings = "UpdateSettings"
	OpEndSession     = "EndSession"
)

// GroupCommand names the session a client joins or leaves.
type GroupCommand struct {
	SessionID uuid.UUID `json:"sessionId"`
}

func (c GroupCommand) SessionKey() uuid.UUID { return c.SessionID }

type handlerFunc func(ctx context.Context, c *Client, args json.RawMessage) (any, error)

// Dispatcher routes invoke frames to operations. Every operation goes
// through the gate unless it was registered as exempt.
type Dispatcher struct {
	gate  *auth.Gate
	hub   *Hub
	coord *playlist.Coordinator
	ops   map[string]handlerFunc
}

func NewDispatcher(gate *auth.Gate, hub *Hub, coord *playlist.Coordinator) *Dispatcher {
	d := &Dispatcher{
		gate:  gate,
		hub:   hub,
		coord: coord,
		ops:   make(map[string]handlerFunc),
	}

	register(d, OpJoinSession, true, d.joinSession)
	register(d, OpLeaveSession, true, d.leaveSession)

	register(d, OpAddItem, false, withoutClient(coord.AddItem))
	register(d, OpRemoveItem, false, withoutClient(coord.RemoveItem))
	register(d, OpReorder, false, withoutClient(coord.Reorder))
	register(d, OpHeartbeat, false, withoutClient(coord.Heartbeat))
	register(d, OpUpdateSettings, false, withoutClient(coord.UpdateSettings))
	register(d, OpEndSession, false, withoutClient(coord.EndSession))

	return d
}

// register binds name to fn. Arguments are decoded into C before the gate
// sees them, so the gate reads the session id from the typed command.
func register[C auth.SessionScoped, R any](d *Dispatcher, name string, exempt bool, fn func(context.Context, *Client, C) (R, error)) {
	d.ops[name] = func(ctx context.Context, c *Client, args json.RawMessage) (any, error) {
		var cmd C
		if len(args) > 0 {
			if err := json.Unmarshal(args, &cmd); err != nil {
				if exempt {
					return nil, auth.ErrMalformedCall
				}
				// Report a missing token ahead of a malformed call.
				return nil, d.gate.Check(c.token, nil)
			}
		}

		if exempt {
			if cmd.SessionKey() == uuid.Nil {
				return nil, auth.ErrMalformedCall
			}
			return fn(ctx, c, cmd)
		}

		guarded := auth.Guard(d.gate, func(ctx context.Context, cmd C) (R, error) {
			return fn(ctx, c, cmd)
		})
		return guarded(ctx, c.token, cmd)
	}
}

func withoutClient[C any, R any](fn func(context.Context, C) (R, error)) func(context.Context, *Client, C) (R, error) {
	return func(ctx context.Context, _ *Client, cmd C) (R, error) {
		return fn(ctx, cmd)
	}
}

// Dispatch runs one invocation and returns the value for the result frame.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Client, op string, args json.RawMessage) (data any, err error) {
	h, ok := d.ops[op]
	if !ok {
		return nil, apperr.New(apperr.KindInvalidArgument, fmt.Sprintf("unknown operation %q", op))
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("panic", r).Str("op", op).Msg("realtime: operation panicked")
			data, err = nil, apperr.New(apperr.KindInternal, "internal error")
		}
	}()

	data, err = h(ctx, c, args)
	if err != nil && apperr.KindOf(err) == apperr.KindInternal {
		logging.Error().Err(err).Str("op", op).Uint64("client_id", c.id).Msg("realtime: operation failed")
	}
	return data, err
}

// joinSession adds the client to the session group and returns the current
// playlist. Both happen under the session lock, so every later mutation
// reaches the client as a broadcast.
func (d *Dispatcher) joinSession(ctx context.Context, c *Client, cmd GroupCommand) (*playlist.Snapshot, error) {
	return d.coord.Subscribe(ctx, cmd.SessionID, func() {
		d.hub.Join(c, cmd.SessionID)
	})
}

func (d *Dispatcher) leaveSession(_ context.Context, c *Client, cmd GroupCommand) (struct{}, error) {
	d.hub.Leave(c, cmd.SessionID)
	return struct{}{}, nil
}
