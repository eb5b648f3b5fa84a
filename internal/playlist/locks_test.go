package playlist

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSessionLocks_EntriesAreDropped(t *testing.T) {
	l := newSessionLocks()
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	var wg sync.WaitGroup
	counters := make(map[uuid.UUID]*int, len(ids))
	for _, id := range ids {
		counters[id] = new(int)
	}
	for i := 0; i < 300; i++ {
		id := ids[i%len(ids)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := l.acquire(id)
			defer release()
			*counters[id]++
		}()
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, 100, *counters[id])
	}
	assert.Zero(t, l.size())
}

func TestSessionLocks_ReleaseIsIdempotent(t *testing.T) {
	l := newSessionLocks()
	id := uuid.New()

	release := l.acquire(id)
	assert.Equal(t, 1, l.size())
	release()
	release()
	assert.Zero(t, l.size())

	// Still usable after a double release.
	release = l.acquire(id)
	release()
	assert.Zero(t, l.size())
}
