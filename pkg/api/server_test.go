package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/warden/pkg/access"
	"github.com/cuemby/warden/pkg/cache"
	"github.com/cuemby/warden/pkg/client"
	"github.com/cuemby/warden/pkg/storage"
	"github.com/cuemby/warden/pkg/types"
	"github.com/cuemby/warden/pkg/writer"
)

// fixture is a writer node served over a live httptest listener, reached
// through the real HTTP client
type fixture struct {
	node *writer.Node
	ts   *httptest.Server
	cl   *client.Client
}

func newWriterFixture(t *testing.T, apiCfg Config, nodeCfg writer.Config, opts ...Option) *fixture {
	t.Helper()
	if nodeCfg.NodeID == "" {
		nodeCfg.NodeID = "w1"
	}
	node := writer.NewNode(storage.NewMemoryEventStore(), nodeCfg, nil)

	opts = append([]Option{
		WithMappings(node),
		WithEventLog(node),
		WithRangeLog(node),
		WithPauser(node.Pauser()),
		WithTripSwitch(node.Trip()),
	}, opts...)
	srv := NewServer(node, node.Status, apiCfg, opts...)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cl := client.New(client.Config{Endpoint: ts.URL, Credential: apiCfg.Credential})
	t.Cleanup(func() { _ = cl.Close() })

	return &fixture{node: node, ts: ts, cl: cl}
}

func userEvent(user string) *types.Event {
	ev := types.NewEvent(types.ActionAdd, types.KindUser)
	ev.User = user
	return ev.Stamp()
}

// TestElementLifecycleOverHTTP tests mutations and queries through the full
// client, server, and node stack
func TestElementLifecycleOverHTTP(t *testing.T) {
	ctx := context.Background()
	f := newWriterFixture(t, Config{}, writer.Config{})

	require.NoError(t, f.cl.AddUserToGroupMapping(ctx, "alice", "staff"))
	require.NoError(t, f.cl.AddGroupToComponentAccess(ctx, "staff", "Orders", "View"))
	require.NoError(t, f.cl.AddEntityType(ctx, "invoice"))
	require.NoError(t, f.cl.AddEntity(ctx, "invoice", "inv-7"))
	require.NoError(t, f.cl.AddUserToEntity(ctx, "alice", "invoice", "inv-7"))

	ok, err := f.cl.ContainsUser(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.cl.ContainsUser(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.cl.ContainsEntity(ctx, "invoice", "inv-7")
	require.NoError(t, err)
	assert.True(t, ok)

	groups, err := f.cl.GetUserToGroupMappings(ctx, "alice", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"staff"}, groups)

	ok, err = f.cl.HasAccessToComponent(ctx, "alice", "Orders", "View")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.cl.HasAccessToEntity(ctx, "alice", "invoice", "inv-7")
	require.NoError(t, err)
	assert.True(t, ok)

	components, err := f.cl.ComponentsAccessibleByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []access.ComponentAccess{{Component: "Orders", Access: "View"}}, components)

	entities, err := f.cl.EntitiesAccessibleByUser(ctx, "alice", "invoice")
	require.NoError(t, err)
	assert.Equal(t, []access.EntityRef{{EntityType: "invoice", Entity: "inv-7"}}, entities)

	require.NoError(t, f.cl.RemoveUser(ctx, "alice"))
	ok, err = f.cl.ContainsUser(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestConflictAnswers tests the error mapping for cycles and strict-mode
// missing elements
func TestConflictAnswers(t *testing.T) {
	ctx := context.Background()
	f := newWriterFixture(t, Config{}, writer.Config{Strict: true})

	require.NoError(t, f.cl.AddGroup(ctx, "a"))
	require.NoError(t, f.cl.AddGroup(ctx, "b"))
	require.NoError(t, f.cl.AddGroupToGroupMapping(ctx, "a", "b"))
	assert.ErrorIs(t, f.cl.AddGroupToGroupMapping(ctx, "b", "a"), client.ErrConflict)

	assert.ErrorIs(t, f.cl.RemoveUser(ctx, "ghost"), client.ErrNotFound)
	assert.ErrorIs(t, f.cl.AddGroup(ctx, "a"), client.ErrConflict)
}

// TestCredentialGate tests bearer authentication with health left open
func TestCredentialGate(t *testing.T) {
	ctx := context.Background()
	f := newWriterFixture(t, Config{Credential: "s3cret"}, writer.Config{})

	require.NoError(t, f.cl.AddUser(ctx, "alice"))

	bad := client.New(client.Config{Endpoint: f.ts.URL, Credential: "wrong"})
	defer bad.Close()
	assert.Error(t, bad.AddUser(ctx, "bob"))
	_, err := bad.Status(ctx)
	assert.Error(t, err)

	resp, err := http.Get(f.ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(f.ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// TestTripFailsFast tests that an actuated trip switch turns the data
// surface away while the admin surface keeps answering
func TestTripFailsFast(t *testing.T) {
	ctx := context.Background()
	f := newWriterFixture(t, Config{}, writer.Config{})

	f.node.Trip().Trip(errors.New("event store failed"))

	assert.ErrorIs(t, f.cl.AddUser(ctx, "alice"), client.ErrUnavailable)
	_, err := f.cl.ContainsUser(ctx, "alice")
	assert.ErrorIs(t, err, client.ErrUnavailable)

	status, err := f.cl.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Tripped)
}

// TestPauseResumeAndStatus tests the admin gate endpoints
func TestPauseResumeAndStatus(t *testing.T) {
	ctx := context.Background()
	f := newWriterFixture(t, Config{}, writer.Config{})

	status, err := f.cl.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "writer", status.Role)
	assert.Equal(t, "w1", status.NodeID)
	assert.False(t, status.Paused)

	require.NoError(t, f.cl.Pause(ctx))
	assert.True(t, f.node.Pauser().Paused())

	// Status sits outside the pause checkpoint so a paused node stays
	// observable
	status, err = f.cl.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Paused)

	require.NoError(t, f.cl.Resume(ctx))
	assert.False(t, f.node.Pauser().Paused())
	require.NoError(t, f.cl.AddUser(ctx, "alice"))
}

// routingSwitch is an in-memory mirroring toggle
type routingSwitch struct {
	on bool
}

func (r *routingSwitch) RoutingOn() { r.on = true }

func (r *routingSwitch) RoutingOff() { r.on = false }

func (r *routingSwitch) IsRoutingOn() bool { return r.on }

// TestRoutingEndpoints tests the router node's admin switch
func TestRoutingEndpoints(t *testing.T) {
	ctx := context.Background()
	sw := &routingSwitch{on: true}
	f := newWriterFixture(t, Config{}, writer.Config{}, WithRouting(sw))

	require.NoError(t, f.cl.RoutingOff(ctx))
	assert.False(t, sw.on)

	status, err := f.cl.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.RoutingOn)

	require.NoError(t, f.cl.RoutingOn(ctx))
	assert.True(t, sw.on)
}

// TestEventBufferEndpoints tests batch ingest and cache tailing over HTTP
func TestEventBufferEndpoints(t *testing.T) {
	ctx := context.Background()
	f := newWriterFixture(t, Config{}, writer.Config{})

	events := []*types.Event{userEvent("u1"), userEvent("u2"), userEvent("u3")}
	require.NoError(t, f.cl.ApplyEvents(ctx, events))
	f.node.Flush()

	assert.True(t, f.node.Manager().ContainsUser("u1"))

	got, err := f.cl.EventsSince(events[0].ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, events[1].ID, got[0].ID)
	assert.Equal(t, events[2].ID, got[1].ID)

	_, err = f.cl.EventsSince(uuid.New())
	assert.ErrorIs(t, err, cache.ErrEventNotCached)

	// Ingest answers 201 Created
	body, err := types.MarshalEvents([]*types.Event{userEvent("u4")})
	require.NoError(t, err)
	resp, err := http.Post(f.ts.URL+"/api/v1/eventBufferItems", "application/json",
		bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// A malformed batch is rejected before ingest
	resp, err = http.Post(f.ts.URL+"/api/v1/eventBufferItems", "application/json",
		strings.NewReader(`[{"wat":true}]`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// TestHashRangeEndpoints tests the split backfill and cleanup surface
func TestHashRangeEndpoints(t *testing.T) {
	ctx := context.Background()
	f := newWriterFixture(t, Config{}, writer.Config{})

	require.NoError(t, f.cl.AddUser(ctx, "u1"))
	require.NoError(t, f.cl.AddUser(ctx, "u2"))
	f.node.Flush()

	events, err := f.cl.GetEventsInHashRange(ctx, types.ElementUser, 0, types.MaxHash, time.Unix(0, 0), 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "u1", events[0].Event.User)
	assert.True(t, events[0].Position.Before(events[1].Position))

	deleted, err := f.cl.DeleteEventsInHashRange(ctx, types.ElementUser, 0, types.MaxHash, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	events, err = f.cl.GetEventsInHashRange(ctx, types.ElementUser, 0, types.MaxHash, time.Unix(0, 0), 0)
	require.NoError(t, err)
	assert.Empty(t, events)

	// Unknown dimensions are rejected
	resp, err := http.Get(f.ts.URL + "/api/v1/events?kind=bogus&lo=0&hi=10")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// TestShardConfigurationEndpoints tests the coordinator's configuration
// surface, including validation before persistence
func TestShardConfigurationEndpoints(t *testing.T) {
	ctx := context.Background()
	configStore := storage.NewMemoryEventStore()
	f := newWriterFixture(t, Config{}, writer.Config{}, WithConfigAdmin(configStore))

	set := &types.ShardConfigurationSet{}
	for _, kind := range types.DataElementKinds {
		set.Items = append(set.Items, types.ShardConfiguration{
			Kind: kind, RangeStart: 0, RangeEnd: types.MaxHash, Endpoint: "http://s1:7601",
		})
	}
	require.NoError(t, f.cl.SaveConfiguration(ctx, set))

	loaded, err := f.cl.LoadConfiguration(ctx)
	require.NoError(t, err)
	assert.Equal(t, set.Items, loaded.Items)

	broken := &types.ShardConfigurationSet{Items: set.Items[1:]}
	assert.Error(t, f.cl.SaveConfiguration(ctx, broken))

	loaded, err = f.cl.LoadConfiguration(ctx)
	require.NoError(t, err)
	assert.Equal(t, set.Items, loaded.Items)
}

// TestAdminRateLimit tests the control endpoint limiter
func TestAdminRateLimit(t *testing.T) {
	ctx := context.Background()
	f := newWriterFixture(t, Config{AdminRatePerSecond: 1}, writer.Config{})

	// Burst of two, then the limiter pushes back
	_, err := f.cl.Status(ctx)
	require.NoError(t, err)
	_, err = f.cl.Status(ctx)
	require.NoError(t, err)
	_, err = f.cl.Status(ctx)
	assert.Error(t, err)
}
