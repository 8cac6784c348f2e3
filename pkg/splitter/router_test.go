package splitter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/warden/pkg/storage"
	"github.com/cuemby/warden/pkg/types"
	"github.com/cuemby/warden/pkg/writer"
)

// fakeShard is an in-process shard: a real writer node over a memory store,
// completed to the full client surface
type fakeShard struct {
	*writer.Node
	store    *storage.MemoryEventStore
	endpoint string
}

func newFakeShard(endpoint string) *fakeShard {
	store := storage.NewMemoryEventStore()
	return &fakeShard{
		Node:     writer.NewNode(store, writer.Config{NodeID: endpoint}, nil),
		store:    store,
		endpoint: endpoint,
	}
}

func (f *fakeShard) Endpoint() string { return f.endpoint }
func (f *fakeShard) Close() error     { return nil }

func (f *fakeShard) Pause(ctx context.Context) error {
	f.Pauser().Pause()
	return nil
}

func (f *fakeShard) Resume(ctx context.Context) error {
	f.Pauser().Resume()
	return nil
}

func (f *fakeShard) RoutingOn(ctx context.Context) error  { return nil }
func (f *fakeShard) RoutingOff(ctx context.Context) error { return nil }

func (f *fakeShard) LoadConfiguration(ctx context.Context) (*types.ShardConfigurationSet, error) {
	return f.store.LoadConfiguration(ctx)
}

func (f *fakeShard) SaveConfiguration(ctx context.Context, set *types.ShardConfigurationSet) error {
	return f.store.SaveConfiguration(ctx, set)
}

// TestForwardingSendsEverythingToSource tests the initial router state
func TestForwardingSendsEverythingToSource(t *testing.T) {
	ctx := context.Background()
	source := newFakeShard("http://source")
	r := NewRouter(source)

	require.NoError(t, r.AddUser(ctx, "alice"))
	require.NoError(t, r.AddEntityType(ctx, "invoice"))

	assert.True(t, source.Manager().ContainsUser("alice"))
	assert.True(t, source.Manager().ContainsEntityType("invoice"))

	ok, err := r.ContainsUser(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestDualWriteMirrorsInRangeOnly tests that only mutations whose primary
// element hashes into the moving range reach the target
func TestDualWriteMirrorsInRangeOnly(t *testing.T) {
	ctx := context.Background()
	source := newFakeShard("http://source")
	target := newFakeShard("http://target")
	r := NewRouter(source)

	h := types.HashElement("u1")
	r.BeginDualWrite(types.ElementUser, h, h, target)

	require.NoError(t, r.AddUser(ctx, "u1"))
	require.NoError(t, r.AddUser(ctx, "u2"))
	require.NoError(t, r.AddGroup(ctx, "staff"))

	// Both sides see u1; only the source sees the rest
	assert.True(t, source.Manager().ContainsUser("u1"))
	assert.True(t, target.Manager().ContainsUser("u1"))
	assert.True(t, source.Manager().ContainsUser("u2"))
	assert.False(t, target.Manager().ContainsUser("u2"))
	assert.True(t, source.Manager().ContainsGroup("staff"))
	assert.False(t, target.Manager().ContainsGroup("staff"))

	// Broadcast mutations travel to both sides of an open window
	require.NoError(t, r.AddEntityType(ctx, "invoice"))
	assert.True(t, source.Manager().ContainsEntityType("invoice"))
	assert.True(t, target.Manager().ContainsEntityType("invoice"))

	// Queries stay on the source until cutover
	ok, err := r.ContainsUser(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestRoutingSwitchSuspendsMirroring tests the admin switch gates mirroring
// without tearing down the window
func TestRoutingSwitchSuspendsMirroring(t *testing.T) {
	ctx := context.Background()
	source := newFakeShard("http://source")
	target := newFakeShard("http://target")
	r := NewRouter(source)
	require.True(t, r.IsRoutingOn())

	h1, h2 := types.HashElement("u1"), types.HashElement("u2")
	lo, hi := h1, h2
	if lo > hi {
		lo, hi = hi, lo
	}
	r.BeginDualWrite(types.ElementUser, lo, hi, target)

	r.RoutingOff()
	require.False(t, r.IsRoutingOn())
	require.NoError(t, r.AddUser(ctx, "u1"))
	assert.True(t, source.Manager().ContainsUser("u1"))
	assert.False(t, target.Manager().ContainsUser("u1"))

	r.RoutingOn()
	require.NoError(t, r.AddUser(ctx, "u2"))
	assert.True(t, target.Manager().ContainsUser("u2"))
}

// TestEndDualWriteRevertsToForwarding tests the abort path
func TestEndDualWriteRevertsToForwarding(t *testing.T) {
	ctx := context.Background()
	source := newFakeShard("http://source")
	target := newFakeShard("http://target")
	r := NewRouter(source)

	h := types.HashElement("u1")
	r.BeginDualWrite(types.ElementUser, h, h, target)
	r.EndDualWrite()

	require.NoError(t, r.AddUser(ctx, "u1"))
	assert.True(t, source.Manager().ContainsUser("u1"))
	assert.False(t, target.Manager().ContainsUser("u1"))
}

// TestCutoverRoutesInRangeToTarget tests that after cutover, in-range
// mutations and queries reach the target alone
func TestCutoverRoutesInRangeToTarget(t *testing.T) {
	ctx := context.Background()
	source := newFakeShard("http://source")
	target := newFakeShard("http://target")
	r := NewRouter(source)

	h := types.HashElement("u1")
	r.BeginDualWrite(types.ElementUser, h, h, target)
	require.NoError(t, r.AddUser(ctx, "u1"))
	r.Cutover()

	require.NoError(t, r.AddUserToComponentAccess(ctx, "u1", "Orders", "View"))
	ok, err := target.Manager().HasAccessToComponent("u1", "Orders", "View")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = source.Manager().HasAccessToComponent("u1", "Orders", "View")
	require.NoError(t, err)
	assert.False(t, ok)

	// In-range reads go to the target, everything else to the source
	ok, err = r.HasAccessToComponent(ctx, "u1", "Orders", "View")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, r.AddUser(ctx, "u2"))
	assert.True(t, source.Manager().ContainsUser("u2"))
	assert.False(t, target.Manager().ContainsUser("u2"))
}
