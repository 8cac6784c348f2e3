package shard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/warden/pkg/storage"
	"github.com/cuemby/warden/pkg/types"
)

// TestRefreshOnceSwapsTable tests that a changed persisted configuration
// replaces the routing table
func TestRefreshOnceSwapsTable(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryEventStore()
	require.NoError(t, store.SaveConfiguration(ctx, twoShardSet(1<<30)))

	m := NewManager(stubFactory(nil))
	r := NewRefresher(m, store, time.Hour)

	require.NoError(t, r.RefreshOnce(ctx))
	api, err := m.RouteHash(types.ElementUser, types.MaxHash)
	require.NoError(t, err)
	assert.Equal(t, "http://s2:7601", api.Endpoint())

	// Moving the split relocates the boundary hash
	require.NoError(t, store.SaveConfiguration(ctx, twoShardSet(1<<29)))
	require.NoError(t, r.RefreshOnce(ctx))
	api, err = m.RouteHash(types.ElementUser, 1<<30)
	require.NoError(t, err)
	assert.Equal(t, "http://s2:7601", api.Endpoint())

	// An unchanged configuration is a no-op
	require.NoError(t, r.RefreshOnce(ctx))
}

// TestRefreshOnceBeforeInstall tests a fresh deployment with no persisted
// configuration yet
func TestRefreshOnceBeforeInstall(t *testing.T) {
	m := NewManager(stubFactory(nil))
	r := NewRefresher(m, storage.NewMemoryEventStore(), time.Hour)

	assert.Error(t, r.RefreshOnce(context.Background()))
	_, err := m.RouteHash(types.ElementUser, 0)
	assert.ErrorIs(t, err, ErrNoRoute)
}
