package writer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/warden/pkg/access"
	"github.com/cuemby/warden/pkg/storage"
	"github.com/cuemby/warden/pkg/types"
)

func userAdd(user string) *types.Event {
	ev := types.NewEvent(types.ActionAdd, types.KindUser)
	ev.User = user
	return ev.Stamp()
}

// TestMutationsBufferUntilFlush tests that mutations answer from memory
// immediately while persistence waits for the flush
func TestMutationsBufferUntilFlush(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryEventStore()
	n := NewNode(store, Config{NodeID: "w1"}, nil)

	require.NoError(t, n.AddUserToGroupMapping(ctx, "alice", "staff"))
	assert.True(t, n.Manager().ContainsUser("alice"))
	assert.Equal(t, 0, n.ActiveOperations())

	persisted, err := store.AllEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, persisted)

	n.Flush()
	persisted, err = store.AllEvents(ctx)
	require.NoError(t, err)
	// User creation, group creation, then the mapping itself
	require.Len(t, persisted, 3)
	assert.Equal(t, types.KindUserToGroup, persisted[2].Event.Kind)

	status, err := n.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, persisted[2].Event.ID.String(), status.LastEventID)

	// The flushed batch is tailable from the cache
	tail, err := n.EventsSince(persisted[0].Event.ID)
	require.NoError(t, err)
	assert.Len(t, tail, 2)
}

// TestLoadSnapshotRebuildsState tests crash recovery from the event log
func TestLoadSnapshotRebuildsState(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryEventStore()

	seed := NewNode(store, Config{NodeID: "w1"}, nil)
	require.NoError(t, seed.AddUserToGroupMapping(ctx, "alice", "staff"))
	require.NoError(t, seed.AddGroupToComponentAccess(ctx, "staff", "Orders", "View"))
	seed.Flush()

	n := NewNode(store, Config{NodeID: "w1"}, nil)
	require.NoError(t, n.LoadSnapshot(ctx))

	assert.True(t, n.Manager().ContainsUser("alice"))
	ok, err := n.Manager().HasAccessToComponent("alice", "Orders", "View")
	require.NoError(t, err)
	assert.True(t, ok)

	persisted, err := store.AllEvents(ctx)
	require.NoError(t, err)
	last := persisted[len(persisted)-1].Event

	status, err := n.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, last.ID.String(), status.LastEventID)

	// The cache is primed with the replayed tail
	tail, err := n.EventsSince(persisted[0].Event.ID)
	require.NoError(t, err)
	assert.Len(t, tail, len(persisted)-1)
}

// TestApplyEventsReplayIsHarmless tests at-least-once ingest: a redelivered
// batch changes neither the state nor the log
func TestApplyEventsReplayIsHarmless(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryEventStore()
	n := NewNode(store, Config{NodeID: "w1"}, nil)

	batch := []*types.Event{userAdd("u1"), userAdd("u2")}
	require.NoError(t, n.ApplyEvents(ctx, batch))
	n.Flush()
	require.NoError(t, n.ApplyEvents(ctx, batch))
	n.Flush()

	assert.Equal(t, []string{"u1", "u2"}, n.Manager().Users())

	persisted, err := store.AllEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, persisted, 2)
}

// failingStore rejects every persist
type failingStore struct {
	storage.EventStore
	err error
}

func (f *failingStore) PersistBatch(ctx context.Context, events []*types.Event) error {
	return f.err
}

// TestPersistFailureTripsSwitch tests that a failed flush actuates the trip
// switch and turns further mutations away
func TestPersistFailureTripsSwitch(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{EventStore: storage.NewMemoryEventStore(), err: errors.New("disk full")}
	n := NewNode(store, Config{NodeID: "w1"}, nil)

	require.NoError(t, n.AddUser(ctx, "alice"))
	require.False(t, n.Trip().Tripped())

	n.Flush()
	assert.True(t, n.Trip().Tripped())
	assert.ErrorContains(t, n.Trip().Cause(), "disk full")
}

// TestStrictMode tests the conflict-surfacing configuration
func TestStrictMode(t *testing.T) {
	ctx := context.Background()
	n := NewNode(storage.NewMemoryEventStore(), Config{NodeID: "w1", Strict: true}, nil)

	assert.ErrorIs(t, n.RemoveUser(ctx, "ghost"), access.ErrNotFound)
	require.NoError(t, n.AddUser(ctx, "alice"))
	assert.ErrorIs(t, n.AddUser(ctx, "alice"), access.ErrAlreadyExists)
}
