package splitter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/warden/pkg/client"
	"github.com/cuemby/warden/pkg/storage"
	"github.com/cuemby/warden/pkg/types"
)

func seedConfiguration(t *testing.T, config *storage.MemoryEventStore, sourceEndpoint string) {
	t.Helper()
	set := &types.ShardConfigurationSet{}
	for _, kind := range types.DataElementKinds {
		set.Items = append(set.Items, types.ShardConfiguration{
			Kind: kind, RangeStart: 0, RangeEnd: types.MaxHash, Endpoint: sourceEndpoint,
		})
	}
	require.NoError(t, config.SaveConfiguration(context.Background(), set))
}

// TestSplitMovesRangeToTarget tests the full protocol: dual-write, backfill,
// drain, cutover, range cleanup, and configuration carve
func TestSplitMovesRangeToTarget(t *testing.T) {
	ctx := context.Background()
	source := newFakeShard("http://source")
	target := newFakeShard("http://target")
	config := storage.NewMemoryEventStore()
	seedConfiguration(t, config, source.Endpoint())

	r := NewRouter(source)
	for _, user := range []string{"u1", "u2", "u3", "u4", "u5", "u6"} {
		require.NoError(t, r.AddUserToGroupMapping(ctx, user, "staff"))
	}
	require.NoError(t, r.AddUserToComponentAccess(ctx, "u2", "Orders", "View"))
	require.NoError(t, r.AddEntityType(ctx, "invoice"))
	source.Flush()

	// Move the slice of the user dimension holding u2 and u3
	lo, hi := types.HashElement("u2"), types.HashElement("u3")
	if lo > hi {
		lo, hi = hi, lo
	}
	o := NewOrchestrator(r, source, target, config, OrchestratorConfig{
		Kind: types.ElementUser, Lo: lo, Hi: hi,
		DrainRetries: 3, DrainInterval: time.Millisecond,
	})
	require.NoError(t, o.Run(ctx))

	// The target holds the moved users with their mappings intact
	assert.True(t, target.Manager().ContainsUser("u2"))
	assert.True(t, target.Manager().ContainsUser("u3"))
	assert.False(t, target.Manager().ContainsUser("u1"))
	ok, err := target.Manager().HasAccessToComponent("u2", "Orders", "View")
	require.NoError(t, err)
	assert.True(t, ok)

	// Broadcast events reached the target too
	assert.True(t, target.Manager().ContainsEntityType("invoice"))

	// The router now answers in-range queries from the target
	ok, err = r.HasAccessToComponent(ctx, "u2", "Orders", "View")
	require.NoError(t, err)
	assert.True(t, ok)
	groups, err := r.GetUserToGroupMappings(ctx, "u3", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"staff"}, groups)

	// The moved range left the source log; broadcast events stayed
	moved, err := source.store.GetEventsInHashRange(ctx, types.ElementUser, lo, hi, time.Unix(0, 0), 0)
	require.NoError(t, err)
	for _, pe := range moved {
		assert.Equal(t, types.DataElementKind(""), pe.Event.Dimension())
	}

	// The configuration gained the carved range
	set, err := config.LoadConfiguration(ctx)
	require.NoError(t, err)
	require.NoError(t, set.Validate())

	userItems := set.ForKind(types.ElementUser)
	require.Len(t, userItems, 3)
	assert.Equal(t, source.Endpoint(), userItems[0].Endpoint)
	assert.Equal(t, types.ShardConfiguration{
		Kind: types.ElementUser, RangeStart: lo, RangeEnd: hi, Endpoint: target.Endpoint(),
	}, userItems[1])
	assert.Equal(t, source.Endpoint(), userItems[2].Endpoint)

	// The other dimensions are untouched
	assert.Len(t, set.ForKind(types.ElementGroup), 1)
	assert.Len(t, set.ForKind(types.ElementGroupToGroup), 1)
}

// TestBackfillPagesThroughOneTransactionTime tests that a flush batch larger
// than the backfill read limit cannot stall the copy: every event shares one
// transaction time, so an at-or-after read keeps returning the same page until
// the read widens past it
func TestBackfillPagesThroughOneTransactionTime(t *testing.T) {
	ctx := context.Background()
	source := newFakeShard("http://source")
	target := newFakeShard("http://target")
	config := storage.NewMemoryEventStore()
	seedConfiguration(t, config, source.Endpoint())

	r := NewRouter(source)
	users := []string{"u1", "u2", "u3", "u4", "u5"}
	for _, user := range users {
		require.NoError(t, r.AddUser(ctx, user))
	}
	// One flush persists all five under a single transaction time
	source.Flush()

	o := NewOrchestrator(r, source, target, config, OrchestratorConfig{
		Kind: types.ElementUser, Lo: 0, Hi: types.MaxHash,
		BatchSize:    2,
		DrainRetries: 3, DrainInterval: time.Millisecond,
	})
	require.NoError(t, o.Run(ctx))

	for _, user := range users {
		assert.True(t, target.Manager().ContainsUser(user), user)
	}
}

// busyShard reports a permanently busy source
type busyShard struct {
	client.API
}

func (b *busyShard) Status(ctx context.Context) (*types.NodeStatus, error) {
	return &types.NodeStatus{Role: "writer", ActiveOperations: 1}, nil
}

// TestDrainTimeoutAbortsCleanly tests that a source that never quiesces
// aborts the split with the router reverted
func TestDrainTimeoutAbortsCleanly(t *testing.T) {
	ctx := context.Background()
	source := newFakeShard("http://source")
	target := newFakeShard("http://target")
	config := storage.NewMemoryEventStore()
	seedConfiguration(t, config, source.Endpoint())

	r := NewRouter(source)
	require.NoError(t, r.AddUser(ctx, "u1"))
	source.Flush()

	h := types.HashElement("u1")
	o := NewOrchestrator(r, &busyShard{API: source}, target, config, OrchestratorConfig{
		Kind: types.ElementUser, Lo: h, Hi: h,
		DrainRetries: 2, DrainInterval: time.Millisecond,
	})
	assert.ErrorIs(t, o.Run(ctx), ErrDrainTimeout)

	// Reverted to forwarding: nothing new reaches the target
	require.NoError(t, r.AddUserToComponentAccess(ctx, "u1", "Orders", "View"))
	ok, err := target.Manager().HasAccessToComponent("u1", "Orders", "View")
	require.NoError(t, err)
	assert.False(t, ok)

	// The source keeps its full range in the configuration
	set, err := config.LoadConfiguration(ctx)
	require.NoError(t, err)
	for _, item := range set.ForKind(types.ElementUser) {
		assert.Equal(t, source.Endpoint(), item.Endpoint)
	}
}

// downShard fails its status probe
type downShard struct {
	client.API
}

func (d *downShard) Status(ctx context.Context) (*types.NodeStatus, error) {
	return nil, client.ErrUnavailable
}

// TestUnreachableTargetAbortsBeforeAnyChange tests the prepare probe
func TestUnreachableTargetAbortsBeforeAnyChange(t *testing.T) {
	ctx := context.Background()
	source := newFakeShard("http://source")
	target := newFakeShard("http://target")
	config := storage.NewMemoryEventStore()
	seedConfiguration(t, config, source.Endpoint())

	r := NewRouter(source)
	h := types.HashElement("u1")
	o := NewOrchestrator(r, source, &downShard{API: target}, config, OrchestratorConfig{
		Kind: types.ElementUser, Lo: h, Hi: h,
	})
	assert.ErrorIs(t, o.Run(ctx), client.ErrUnavailable)

	// Still forwarding, nothing mirrored
	require.NoError(t, r.AddUser(ctx, "u1"))
	assert.False(t, target.Manager().ContainsUser("u1"))
}
