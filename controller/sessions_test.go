package controller

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(ttl time.Duration, limit int) (*SessionStore, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := NewSessionStore(ttl, limit)
	store.now = clock.now
	return store, clock
}

// commit runs one successful turn on id and returns the session id.
func commit(store *SessionStore, id, q, a string) string {
	lease := store.Acquire(id)
	defer lease.Release()
	return lease.Commit(q, a)
}

func TestSessionStore_CommitCreatesAndReuses(t *testing.T) {
	store, _ := newTestStore(0, 0)

	id := commit(store, "", "q", "a")
	require.NotEmpty(t, id)

	lease := store.Acquire(id)
	assert.Equal(t, 1, lease.History().Len())
	assert.Equal(t, id, lease.Commit("q2", "a2"))
	lease.Release()

	other := commit(store, "unknown", "q", "a")
	assert.NotEqual(t, "unknown", other)
	assert.NotEqual(t, id, other)
	assert.Equal(t, 2, store.Len())
}

func TestSessionStore_UncommittedLeaseStoresNothing(t *testing.T) {
	store, _ := newTestStore(0, 0)
	for i := 0; i < 10; i++ {
		lease := store.Acquire("")
		lease.Release()
	}
	assert.Equal(t, 0, store.Len())
}

func TestSessionStore_TurnsAndClear(t *testing.T) {
	store, _ := newTestStore(0, 0)
	id := commit(store, "", "q1", "a1")

	turns, ok := store.Turns(id)
	require.True(t, ok)
	require.Len(t, turns, 1)
	assert.Equal(t, "q1", turns[0].Question)

	assert.True(t, store.Clear(id))
	turns, ok = store.Turns(id)
	assert.True(t, ok)
	assert.Empty(t, turns)

	assert.False(t, store.Clear("missing"))
	_, ok = store.Turns("missing")
	assert.False(t, ok)
}

func TestSessionStore_IdleSessionsExpire(t *testing.T) {
	store, clock := newTestStore(time.Hour, 0)
	stale := commit(store, "", "q", "a")

	clock.advance(30 * time.Minute)
	fresh := commit(store, "", "q", "a")
	clock.advance(45 * time.Minute)

	_, ok := store.Turns(stale)
	assert.False(t, ok)
	_, ok = store.Turns(fresh)
	assert.True(t, ok)

	again := commit(store, stale, "q", "a")
	assert.NotEqual(t, stale, again)
}

func TestSessionStore_CapEvictsLeastRecentlyUsed(t *testing.T) {
	store, clock := newTestStore(0, 2)
	first := commit(store, "", "q", "a")
	clock.advance(time.Second)
	second := commit(store, "", "q", "a")
	clock.advance(time.Second)
	commit(store, first, "q", "a")
	clock.advance(time.Second)
	third := commit(store, "", "q", "a")

	assert.Equal(t, 2, store.Len())
	_, ok := store.Turns(second)
	assert.False(t, ok)
	_, ok = store.Turns(first)
	assert.True(t, ok)
	_, ok = store.Turns(third)
	assert.True(t, ok)
}

func TestSessionStore_SerializesOneSession(t *testing.T) {
	store := NewSessionStore(time.Hour, 100)
	id := commit(store, "", "q", "a")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			commit(store, id, "q", "a")
		}()
	}
	wg.Wait()

	turns, _ := store.Turns(id)
	assert.Len(t, turns, 51)
}
