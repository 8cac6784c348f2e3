package reader

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/warden/pkg/access"
	"github.com/cuemby/warden/pkg/cache"
	"github.com/cuemby/warden/pkg/storage"
	"github.com/cuemby/warden/pkg/types"
)

func userAdd(user string) *types.Event {
	ev := types.NewEvent(types.ActionAdd, types.KindUser)
	ev.User = user
	return ev.Stamp()
}

// TestRefreshColdStartReadsStore tests the first cycle with no tail yet
func TestRefreshColdStartReadsStore(t *testing.T) {
	store := storage.NewMemoryEventStore()
	events := []*types.Event{userAdd("u1"), userAdd("u2")}
	require.NoError(t, store.PersistBatch(context.Background(), events))

	n := NewNode(access.NewManager(), nil, store, Config{NodeID: "r1"})
	require.NoError(t, n.Refresh(context.Background()))

	assert.Equal(t, []string{"u1", "u2"}, n.Manager().Users())
	assert.Equal(t, events[1].ID, n.LastApplied())
}

// TestRefreshFastPathUsesCache tests tailing the writer's cache from the
// current tail
func TestRefreshFastPathUsesCache(t *testing.T) {
	store := storage.NewMemoryEventStore()
	c := cache.New(16)

	first := []*types.Event{userAdd("u1")}
	require.NoError(t, store.PersistBatch(context.Background(), first))
	c.Append(first)

	n := NewNode(access.NewManager(), c, store, Config{NodeID: "r1"})
	require.NoError(t, n.Refresh(context.Background()))
	require.Equal(t, first[0].ID, n.LastApplied())

	// New events reach the cache only; the fast path must pick them up
	second := []*types.Event{userAdd("u2")}
	c.Append(second)
	require.NoError(t, n.Refresh(context.Background()))

	assert.Equal(t, []string{"u1", "u2"}, n.Manager().Users())
	assert.Equal(t, second[0].ID, n.LastApplied())
}

// TestRefreshFallsBackToStoreOnEviction tests the cold path after the tail
// id is evicted from the cache
func TestRefreshFallsBackToStoreOnEviction(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryEventStore()
	c := cache.New(2)

	first := []*types.Event{userAdd("u1")}
	require.NoError(t, store.PersistBatch(ctx, first))
	c.Append(first)

	n := NewNode(access.NewManager(), c, store, Config{NodeID: "r1"})
	require.NoError(t, n.Refresh(ctx))

	// Enough traffic to evict u1 from the tiny cache
	burst := []*types.Event{userAdd("u2"), userAdd("u3"), userAdd("u4")}
	require.NoError(t, store.PersistBatch(ctx, burst))
	c.Append(burst)

	_, err := c.EventsSince(first[0].ID)
	require.ErrorIs(t, err, cache.ErrEventNotCached)

	require.NoError(t, n.Refresh(ctx))
	assert.Equal(t, []string{"u1", "u2", "u3", "u4"}, n.Manager().Users())
	assert.Equal(t, burst[2].ID, n.LastApplied())
}

// TestRefreshDedupsRedeliveredEvents tests at-least-once absorption inside
// the dedup window
func TestRefreshDedupsRedeliveredEvents(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryEventStore()

	remove := types.NewEvent(types.ActionRemove, types.KindUser)
	remove.User = "u1"
	events := []*types.Event{userAdd("u1"), remove.Stamp(), userAdd("u2")}
	require.NoError(t, store.PersistBatch(ctx, events))

	n := NewNode(access.NewManager(), nil, store, Config{NodeID: "r1", BatchLimit: 2})
	// Two cycles: the second batch starts after the first's tail position,
	// and a third cycle redelivers nothing new
	require.NoError(t, n.Refresh(ctx))
	require.NoError(t, n.Refresh(ctx))
	require.NoError(t, n.Refresh(ctx))

	assert.Equal(t, []string{"u2"}, n.Manager().Users())
	assert.Equal(t, events[2].ID, n.LastApplied())
}

// TestRefreshSkipsUnappliableEvents tests that a cyclic event does not stall
// the replica
func TestRefreshSkipsUnappliableEvents(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryEventStore()

	forward := types.NewEvent(types.ActionAdd, types.KindGroupToGroup)
	forward.FromGroup, forward.ToGroup = "a", "b"
	back := types.NewEvent(types.ActionAdd, types.KindGroupToGroup)
	back.FromGroup, back.ToGroup = "b", "a"
	after := userAdd("u1")
	require.NoError(t, store.PersistBatch(ctx, []*types.Event{forward.Stamp(), back.Stamp(), after}))

	n := NewNode(access.NewManager(), nil, store, Config{NodeID: "r1"})
	require.NoError(t, n.Refresh(ctx))

	// The cyclic event was skipped, everything after it applied
	assert.Equal(t, []string{"u1"}, n.Manager().Users())
	assert.Equal(t, after.ID, n.LastApplied())

	mappings, err := n.Manager().GetGroupToGroupMappings("a", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, mappings)
}

// TestLastAppliedStartsNil tests the initial tail
func TestLastAppliedStartsNil(t *testing.T) {
	n := NewNode(access.NewManager(), nil, storage.NewMemoryEventStore(), Config{NodeID: "r1"})
	assert.Equal(t, uuid.Nil, n.LastApplied())
}
