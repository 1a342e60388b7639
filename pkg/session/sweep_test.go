package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadira/kirin/pkg/chat"
)

func TestSweeperRemovesIdleSessions(t *testing.T) {
	store := testStore(5)
	sw, err := NewSweeper(store, SweeperConfig{MaxIdle: 10 * time.Millisecond})
	require.NoError(t, err)

	store.Resolve("stale")
	store.Resolve("fresh")
	require.Equal(t, 2, store.Len())

	time.Sleep(20 * time.Millisecond)
	store.Append("fresh", chat.Message{Role: chat.RoleUser, Content: "still here"})

	removed := sw.Sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())

	fresh := store.Resolve("fresh")
	assert.Equal(t, 2, fresh.Len())
}

func TestSweeperKeepsActiveSessions(t *testing.T) {
	store := testStore(5)
	sw, err := NewSweeper(store, SweeperConfig{MaxIdle: time.Hour})
	require.NoError(t, err)

	store.Resolve("a")
	store.Resolve("b")

	assert.Equal(t, 0, sw.Sweep())
	assert.Equal(t, 2, store.Len())
}

func TestSweeperExpiredSessionStartsFresh(t *testing.T) {
	store := testStore(5)
	sw, err := NewSweeper(store, SweeperConfig{MaxIdle: 5 * time.Millisecond})
	require.NoError(t, err)

	store.Append("s1", chat.Message{Role: chat.RoleUser, Content: "old"})
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 1, sw.Sweep())

	sess := store.Resolve("s1")
	assert.Equal(t, 1, sess.Len())
}

func TestSweeperRequiresStore(t *testing.T) {
	_, err := NewSweeper(nil, SweeperConfig{})
	assert.Error(t, err)
}

func TestSweeperStartStop(t *testing.T) {
	store := testStore(5)
	sw, err := NewSweeper(store, SweeperConfig{MaxIdle: time.Hour, Interval: time.Minute})
	require.NoError(t, err)

	sw.Start()
	sw.Stop()
}
