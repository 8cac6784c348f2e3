package writer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/warden/pkg/access"
	"github.com/cuemby/warden/pkg/buffer"
	"github.com/cuemby/warden/pkg/cache"
	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/pause"
	"github.com/cuemby/warden/pkg/storage"
	"github.com/cuemby/warden/pkg/trip"
	"github.com/cuemby/warden/pkg/types"
	"github.com/google/uuid"
)

// Config holds configuration for creating a writer Node
type Config struct {
	NodeID string

	// CacheCapacity bounds the temporal event cache
	CacheCapacity int

	// SizeThreshold triggers a flush when this many events are buffered
	SizeThreshold int

	// FlushInterval adds a periodic flush; zero flushes on size alone
	FlushInterval time.Duration

	// TripMode selects what a persist failure does: reject or shutdown
	TripMode trip.Mode

	// Strict surfaces conflicts and missing elements instead of the
	// dependency-free no-op behavior
	Strict bool
}

// Node is the authoritative writer for one shard: mutations run against the
// in-memory access manager, the emitted events are buffered, and the flush
// worker persists them in order. Queries are served from the same manager.
type Node struct {
	manager *access.Manager
	buf     *buffer.Buffer
	flusher *buffer.Flusher
	cache   *cache.EventCache
	store   storage.EventStore
	pauser  *pause.Pauser
	trips   *trip.Switch
	cfg     Config

	active atomic.Int64

	mu     sync.Mutex
	lastID uuid.UUID
}

// NewNode assembles a writer node over an event store. onShutdown is invoked
// when the trip switch actuates in shutdown mode.
func NewNode(store storage.EventStore, cfg Config, onShutdown func()) *Node {
	if cfg.CacheCapacity == 0 {
		cfg.CacheCapacity = 8192
	}
	if cfg.SizeThreshold == 0 {
		cfg.SizeThreshold = 64
	}

	var opts []access.Option
	if cfg.Strict {
		opts = append(opts, access.WithStrictMode())
	}

	n := &Node{
		manager: access.NewManager(opts...),
		buf:     buffer.New(cfg.SizeThreshold),
		cache:   cache.New(cfg.CacheCapacity),
		store:   store,
		pauser:  pause.New(),
		cfg:     cfg,
	}
	n.trips = trip.New(cfg.TripMode, onShutdown)
	n.flusher = buffer.NewFlusher(n.buf, store, n.cache, buffer.FlusherConfig{
		Interval:  cfg.FlushInterval,
		OnFailure: n.trips.Trip,
	})
	return n
}

// LoadSnapshot replays the entire event log into the access manager,
// rebuilding the pre-crash state, and primes the cache with the tail
func (n *Node) LoadSnapshot(ctx context.Context) error {
	persisted, err := n.store.AllEvents(ctx)
	if err != nil {
		return err
	}
	events := make([]*types.Event, len(persisted))
	for i, pe := range persisted {
		events[i] = pe.Event
	}
	if err := n.manager.ApplyEvents(events); err != nil {
		return err
	}
	n.cache.Append(events)
	if len(events) > 0 {
		n.mu.Lock()
		n.lastID = events[len(events)-1].ID
		n.mu.Unlock()
	}
	logger := log.WithNodeID("writer", n.cfg.NodeID)
	logger.Info().Int("events", len(events)).Msg("snapshot loaded")
	return nil
}

// Start begins the flush worker
func (n *Node) Start() {
	n.flusher.Start()
}

// Stop drains and persists all buffered events, then stops the worker
func (n *Node) Stop() {
	n.flusher.Stop()
}

// Flush synchronously drains and persists the buffered events
func (n *Node) Flush() {
	n.flusher.Flush()
}

// Manager returns the node's access manager
func (n *Node) Manager() *access.Manager {
	return n.manager
}

// Cache returns the temporal event cache readers tail
func (n *Node) Cache() *cache.EventCache {
	return n.cache
}

// Pauser returns the node's request gate
func (n *Node) Pauser() *pause.Pauser {
	return n.pauser
}

// Trip returns the node's trip switch
func (n *Node) Trip() *trip.Switch {
	return n.trips
}

// ActiveOperations returns the number of in-flight mutations
func (n *Node) ActiveOperations() int {
	return int(n.active.Load())
}

// Status reports the node's state for coordinators and split orchestrators
func (n *Node) Status(ctx context.Context) (*types.NodeStatus, error) {
	n.mu.Lock()
	last := n.lastID
	n.mu.Unlock()

	status := &types.NodeStatus{
		NodeID:           n.cfg.NodeID,
		Role:             "writer",
		ActiveOperations: n.ActiveOperations(),
		Paused:           n.pauser.Paused(),
		Tripped:          n.trips.Tripped(),
	}
	if last != uuid.Nil {
		status.LastEventID = last.String()
	}
	return status, nil
}

// mutate wraps one manager mutation: the active operation count covers the
// window between the mutation and its events reaching the buffer, which is
// what the split drain phase waits on
func (n *Node) mutate(op func() (access.Outcome, []*types.Event, error)) error {
	n.active.Add(1)
	defer n.active.Add(-1)

	_, events, err := op()
	if err != nil {
		return err
	}
	n.buf.EnqueueAll(events)
	if len(events) > 0 {
		n.mu.Lock()
		n.lastID = events[len(events)-1].ID
		n.mu.Unlock()
	}
	return nil
}

// ApplyEvents ingests an externally produced event batch: dual-write
// mirrors and split backfills. Events are applied to the manager and
// re-buffered for persistence; the store skips ids it already holds, so
// replays are harmless.
func (n *Node) ApplyEvents(ctx context.Context, events []*types.Event) error {
	n.active.Add(1)
	defer n.active.Add(-1)

	if err := n.manager.ApplyEvents(events); err != nil {
		return err
	}
	n.buf.EnqueueAll(events)
	if len(events) > 0 {
		n.mu.Lock()
		n.lastID = events[len(events)-1].ID
		n.mu.Unlock()
	}
	return nil
}

// EventsSince serves the temporal cache tail; reader nodes fall back to the
// store on a miss
func (n *Node) EventsSince(priorID uuid.UUID) ([]*types.Event, error) {
	return n.cache.EventsSince(priorID)
}

// GetEventsInHashRange exposes the store's range read for split backfills
func (n *Node) GetEventsInHashRange(ctx context.Context, kind types.DataElementKind, lo, hi int32, since time.Time, limit int) ([]types.PersistedEvent, error) {
	return n.store.GetEventsInHashRange(ctx, kind, lo, hi, since, limit)
}

// DeleteEventsInHashRange exposes the store's range delete for split
// cleanup
func (n *Node) DeleteEventsInHashRange(ctx context.Context, kind types.DataElementKind, lo, hi int32, before time.Time) (int, error) {
	return n.store.DeleteEventsInHashRange(ctx, kind, lo, hi, before)
}

// Element mutations

func (n *Node) AddUser(ctx context.Context, user string) error {
	return n.mutate(func() (access.Outcome, []*types.Event, error) {
		return n.manager.AddUser(user)
	})
}

func (n *Node) RemoveUser(ctx context.Context, user string) error {
	return n.mutate(func() (access.Outcome, []*types.Event, error) {
		return n.manager.RemoveUser(user)
	})
}

func (n *Node) AddGroup(ctx context.Context, group string) error {
	return n.mutate(func() (access.Outcome, []*types.Event, error) {
		return n.manager.AddGroup(group)
	})
}

func (n *Node) RemoveGroup(ctx context.Context, group string) error {
	return n.mutate(func() (access.Outcome, []*types.Event, error) {
		return n.manager.RemoveGroup(group)
	})
}

func (n *Node) AddUserToGroupMapping(ctx context.Context, user, group string) error {
	return n.mutate(func() (access.Outcome, []*types.Event, error) {
		return n.manager.AddUserToGroupMapping(user, group)
	})
}

func (n *Node) RemoveUserToGroupMapping(ctx context.Context, user, group string) error {
	return n.mutate(func() (access.Outcome, []*types.Event, error) {
		return n.manager.RemoveUserToGroupMapping(user, group)
	})
}

func (n *Node) AddGroupToGroupMapping(ctx context.Context, fromGroup, toGroup string) error {
	return n.mutate(func() (access.Outcome, []*types.Event, error) {
		return n.manager.AddGroupToGroupMapping(fromGroup, toGroup)
	})
}

func (n *Node) RemoveGroupToGroupMapping(ctx context.Context, fromGroup, toGroup string) error {
	return n.mutate(func() (access.Outcome, []*types.Event, error) {
		return n.manager.RemoveGroupToGroupMapping(fromGroup, toGroup)
	})
}

func (n *Node) AddUserToComponentAccess(ctx context.Context, user, component, accessLevel string) error {
	return n.mutate(func() (access.Outcome, []*types.Event, error) {
		return n.manager.AddUserToComponentAccess(user, component, accessLevel)
	})
}

func (n *Node) RemoveUserToComponentAccess(ctx context.Context, user, component, accessLevel string) error {
	return n.mutate(func() (access.Outcome, []*types.Event, error) {
		return n.manager.RemoveUserToComponentAccess(user, component, accessLevel)
	})
}

func (n *Node) AddGroupToComponentAccess(ctx context.Context, group, component, accessLevel string) error {
	return n.mutate(func() (access.Outcome, []*types.Event, error) {
		return n.manager.AddGroupToComponentAccess(group, component, accessLevel)
	})
}

func (n *Node) RemoveGroupToComponentAccess(ctx context.Context, group, component, accessLevel string) error {
	return n.mutate(func() (access.Outcome, []*types.Event, error) {
		return n.manager.RemoveGroupToComponentAccess(group, component, accessLevel)
	})
}

func (n *Node) AddEntityType(ctx context.Context, entityType string) error {
	return n.mutate(func() (access.Outcome, []*types.Event, error) {
		return n.manager.AddEntityType(entityType)
	})
}

func (n *Node) RemoveEntityType(ctx context.Context, entityType string) error {
	return n.mutate(func() (access.Outcome, []*types.Event, error) {
		return n.manager.RemoveEntityType(entityType)
	})
}

func (n *Node) AddEntity(ctx context.Context, entityType, entity string) error {
	return n.mutate(func() (access.Outcome, []*types.Event, error) {
		return n.manager.AddEntity(entityType, entity)
	})
}

func (n *Node) RemoveEntity(ctx context.Context, entityType, entity string) error {
	return n.mutate(func() (access.Outcome, []*types.Event, error) {
		return n.manager.RemoveEntity(entityType, entity)
	})
}

func (n *Node) AddUserToEntity(ctx context.Context, user, entityType, entity string) error {
	return n.mutate(func() (access.Outcome, []*types.Event, error) {
		return n.manager.AddUserToEntity(user, entityType, entity)
	})
}

func (n *Node) RemoveUserToEntity(ctx context.Context, user, entityType, entity string) error {
	return n.mutate(func() (access.Outcome, []*types.Event, error) {
		return n.manager.RemoveUserToEntity(user, entityType, entity)
	})
}

func (n *Node) AddGroupToEntity(ctx context.Context, group, entityType, entity string) error {
	return n.mutate(func() (access.Outcome, []*types.Event, error) {
		return n.manager.AddGroupToEntity(group, entityType, entity)
	})
}

func (n *Node) RemoveGroupToEntity(ctx context.Context, group, entityType, entity string) error {
	return n.mutate(func() (access.Outcome, []*types.Event, error) {
		return n.manager.RemoveGroupToEntity(group, entityType, entity)
	})
}

// Queries

func (n *Node) ContainsUser(ctx context.Context, user string) (bool, error) {
	return n.manager.ContainsUser(user), nil
}

func (n *Node) ContainsGroup(ctx context.Context, group string) (bool, error) {
	return n.manager.ContainsGroup(group), nil
}

func (n *Node) ContainsEntityType(ctx context.Context, entityType string) (bool, error) {
	return n.manager.ContainsEntityType(entityType), nil
}

func (n *Node) ContainsEntity(ctx context.Context, entityType, entity string) (bool, error) {
	return n.manager.ContainsEntity(entityType, entity), nil
}

func (n *Node) GetUserToGroupMappings(ctx context.Context, user string, includeIndirect bool) ([]string, error) {
	return n.manager.GetUserToGroupMappings(user, includeIndirect)
}

func (n *Node) GetGroupToUserMappings(ctx context.Context, group string, includeIndirect bool) ([]string, error) {
	return n.manager.GetGroupToUserMappings(group, includeIndirect)
}

func (n *Node) GetGroupToGroupMappings(ctx context.Context, group string, includeIndirect bool) ([]string, error) {
	return n.manager.GetGroupToGroupMappings(group, includeIndirect)
}

func (n *Node) GetGroupToGroupReverseMappings(ctx context.Context, group string, includeIndirect bool) ([]string, error) {
	return n.manager.GetGroupToGroupReverseMappings(group, includeIndirect)
}

func (n *Node) HasAccessToComponent(ctx context.Context, user, component, accessLevel string) (bool, error) {
	return n.manager.HasAccessToComponent(user, component, accessLevel)
}

func (n *Node) GroupHasAccessToComponent(ctx context.Context, group, component, accessLevel string) (bool, error) {
	return n.manager.GroupHasAccessToComponent(group, component, accessLevel)
}

func (n *Node) HasAccessToEntity(ctx context.Context, user, entityType, entity string) (bool, error) {
	return n.manager.HasAccessToEntity(user, entityType, entity)
}

func (n *Node) GroupHasAccessToEntity(ctx context.Context, group, entityType, entity string) (bool, error) {
	return n.manager.GroupHasAccessToEntity(group, entityType, entity)
}

func (n *Node) ComponentsAccessibleByUser(ctx context.Context, user string) ([]access.ComponentAccess, error) {
	return n.manager.ComponentsAccessibleByUser(user)
}

func (n *Node) ComponentsAccessibleByGroup(ctx context.Context, group string) ([]access.ComponentAccess, error) {
	return n.manager.ComponentsAccessibleByGroup(group)
}

func (n *Node) EntitiesAccessibleByUser(ctx context.Context, user, entityType string) ([]access.EntityRef, error) {
	return n.manager.EntitiesAccessibleByUser(user, entityType)
}

func (n *Node) EntitiesAccessibleByGroup(ctx context.Context, group, entityType string) ([]access.EntityRef, error) {
	return n.manager.EntitiesAccessibleByGroup(group, entityType)
}

func (n *Node) GetUserToComponentAccessMappings(ctx context.Context, user string) ([]access.ComponentAccess, error) {
	return n.manager.GetUserToComponentAccessMappings(user)
}

func (n *Node) GetGroupToComponentAccessMappings(ctx context.Context, group string) ([]access.ComponentAccess, error) {
	return n.manager.GetGroupToComponentAccessMappings(group)
}

func (n *Node) GetUserToEntityMappings(ctx context.Context, user, entityType string) ([]access.EntityRef, error) {
	return n.manager.GetUserToEntityMappings(user, entityType)
}

func (n *Node) GetGroupToEntityMappings(ctx context.Context, group, entityType string) ([]access.EntityRef, error) {
	return n.manager.GetGroupToEntityMappings(group, entityType)
}
