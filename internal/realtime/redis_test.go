package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"karaoke-service/internal/playlist"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func startRelay(t *testing.T, rdb redis.UniversalClient, hub *Hub) {
	t.Helper()
	relay := NewRelay(rdb, "", hub)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-relay.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not subscribe")
	}
}

func TestRelay_ForwardsInOrder(t *testing.T) {
	_, rdb := newRedis(t)
	hub := NewHub()
	c := testClient(16)
	require.NoError(t, hub.Register(c))
	sid := uuid.New()
	hub.Join(c, sid)
	startRelay(t, rdb, hub)

	pub := NewRedisPublisher(rdb, "")
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		msg := playlist.Message{Type: playlist.EventPlaylistUpdated, Data: map[string]int{"seq": i}}
		require.NoError(t, pub.Publish(ctx, sid, msg))
	}
	// Another session's traffic does not reach c.
	require.NoError(t, pub.Publish(ctx, uuid.New(), playlist.Message{Type: playlist.EventSessionEnded}))

	var got []map[string]any
	require.Eventually(t, func() bool {
		for _, b := range drain(c) {
			var m map[string]any
			if json.Unmarshal(b, &m) == nil {
				got = append(got, m)
			}
		}
		return len(got) >= 5
	}, 2*time.Second, 10*time.Millisecond)

	require.Len(t, got, 5)
	for i, m := range got {
		assert.Equal(t, playlist.EventPlaylistUpdated, m["type"])
		assert.EqualValues(t, i, m["data"].(map[string]any)["seq"])
	}
}

func TestRelay_DropsMalformedEnvelopes(t *testing.T) {
	mr, rdb := newRedis(t)
	hub := NewHub()
	c := testClient(4)
	require.NoError(t, hub.Register(c))
	sid := uuid.New()
	hub.Join(c, sid)
	startRelay(t, rdb, hub)

	mr.Publish(DefaultChannel, "not json")
	mr.Publish(DefaultChannel, `{"sessionId":"`+uuid.Nil.String()+`","message":{}}`)
	mr.Publish(DefaultChannel, `{"sessionId":"`+sid.String()+`","message":{"type":"playlistUpdated"}}`)

	require.Eventually(t, func() bool {
		return len(c.send) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.JSONEq(t, `{"type":"playlistUpdated"}`, string(<-c.send))
}

func TestRedisPublisher_FailureOpensBreaker(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	pub := NewRedisPublisher(rdb, "")
	mr.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		assert.Error(t, pub.Publish(ctx, uuid.New(), playlist.Message{Type: playlist.EventPlaylistUpdated}))
	}
	err = pub.Publish(ctx, uuid.New(), playlist.Message{Type: playlist.EventPlaylistUpdated})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}

func TestRelay_ServeReturnsOnCancel(t *testing.T) {
	_, rdb := newRedis(t)
	relay := NewRelay(rdb, "room", NewHub())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Serve(ctx) }()

	<-relay.Ready()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
	assert.Equal(t, "redis-relay", relay.String())
}
