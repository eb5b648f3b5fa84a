package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"

	"karaoke-service/internal/logging"
	"karaoke-service/internal/metrics"
	"karaoke-service/internal/playlist"
)

const DefaultChannel = "karaoke:broadcast"

// Envelope is what travels over the Redis channel.
type Envelope struct {
	SessionID uuid.UUID       `json:"sessionId"`
	Message   json.RawMessage `json:"message"`
}

// RedisPublisher publishes playlist messages to Redis so that every replica
// running a Relay delivers them to its own connections.
type RedisPublisher struct {
	rdb     redis.UniversalClient
	channel string
	cb      *gobreaker.CircuitBreaker[int64]
}

func NewRedisPublisher(rdb redis.UniversalClient, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	name := "redis-publish"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[int64](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("realtime: circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})

	return &RedisPublisher{rdb: rdb, channel: channel, cb: cb}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Publish implements playlist.Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, sessionID uuid.UUID, msg playlist.Message) error {
	inner, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("realtime: encode %s: %w", msg.Type, err)
	}
	payload, err := json.Marshal(Envelope{SessionID: sessionID, Message: inner})
	if err != nil {
		return fmt.Errorf("realtime: encode envelope: %w", err)
	}

	_, err = p.cb.Execute(func() (int64, error) {
		return p.rdb.Publish(ctx, p.channel, payload).Result()
	})
	if err != nil {
		result := "failure"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			result = "rejected"
		}
		metrics.CircuitBreakerRequests.WithLabelValues(p.cb.Name(), result).Inc()
		return fmt.Errorf("realtime: redis publish: %w", err)
	}
	metrics.CircuitBreakerRequests.WithLabelValues(p.cb.Name(), "success").Inc()
	return nil
}

// Relay subscribes to the Redis channel and hands each envelope to the local
// hub, in the order Redis delivers them.
type Relay struct {
	rdb     redis.UniversalClient
	channel string
	hub     *Hub

	ready     chan struct{}
	readyOnce sync.Once
}

func NewRelay(rdb redis.UniversalClient, channel string, hub *Hub) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Relay{
		rdb:     rdb,
		channel: channel,
		hub:     hub,
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the first subscription is confirmed.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// Serve runs until ctx is cancelled. A dropped subscription returns an
// error so the supervisor restarts it.
func (r *Relay) Serve(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("realtime: subscribe %s: %w", r.channel, err)
	}
	r.readyOnce.Do(func() { close(r.ready) })
	logging.Info().Str("channel", r.channel).Msg("realtime: relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("realtime: relay subscription closed")
			}
			r.forward(msg.Payload)
		}
	}
}

func (r *Relay) forward(payload string) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		logging.Warn().Err(err).Msg("realtime: relay dropped malformed envelope")
		return
	}
	if env.SessionID == uuid.Nil || len(env.Message) == 0 {
		logging.Warn().Msg("realtime: relay dropped envelope without session or message")
		return
	}
	if err := r.hub.PublishRaw(env.SessionID, env.Message); err != nil {
		logging.Warn().Err(err).Str("session_id", env.SessionID.String()).Msg("realtime: relay delivery failed")
	}
}

func (r *Relay) String() string {
	return "redis-relay"
}
