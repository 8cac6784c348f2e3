package splitter

import (
	"context"
	"sync"

	"github.com/cuemby/warden/pkg/access"
	"github.com/cuemby/warden/pkg/client"
	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/pause"
	"github.com/cuemby/warden/pkg/types"
)

type routerState int

const (
	stateForwarding routerState = iota // everything to source
	stateDualWrite                     // in-range mutations mirrored to target
	stateCutover                       // in-range traffic to target only
)

// Router fronts a source shard during an online split. It forwards
// everything to the source until a dual-write window opens; then mutations
// whose primary element hashes into the moving range are mirrored to the
// target, and after cutover in-range traffic goes to the target alone.
//
// The admin routing switch gates mirroring without tearing down the window:
// with routing off, a dual-write router behaves as a plain forwarder.
type Router struct {
	source client.API
	pauser *pause.Pauser

	mu        sync.RWMutex
	state     routerState
	kind      types.DataElementKind
	lo, hi    int32
	target    client.API
	routingOn bool
}

// NewRouter creates a router forwarding everything to source
func NewRouter(source client.API) *Router {
	return &Router{
		source:    source,
		pauser:    pause.New(),
		routingOn: true,
	}
}

// Pauser returns the gate cutover synchronizes on
func (r *Router) Pauser() *pause.Pauser {
	return r.pauser
}

// BeginDualWrite opens the mirroring window for [lo,hi] of one dimension
func (r *Router) BeginDualWrite(kind types.DataElementKind, lo, hi int32, target client.API) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = stateDualWrite
	r.kind = kind
	r.lo = lo
	r.hi = hi
	r.target = target
	logger := log.WithComponent("router")
	logger.Info().
		Str("kind", string(kind)).Int32("lo", lo).Int32("hi", hi).
		Str("target", target.Endpoint()).Msg("dual write window opened")
}

// EndDualWrite reverts the router to plain forwarding, used on split abort
func (r *Router) EndDualWrite() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = stateForwarding
	r.target = nil
	logger := log.WithComponent("router")
	logger.Info().Msg("dual write window closed")
}

// Cutover moves in-range traffic to the target alone. Call it while the
// router is paused so no mutation is in flight past its checkpoint.
func (r *Router) Cutover() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = stateCutover
	logger := log.WithComponent("router")
	logger.Info().
		Str("kind", string(r.kind)).Int32("lo", r.lo).Int32("hi", r.hi).Msg("cutover complete")
}

// RoutingOn enables mirroring inside an open dual-write window
func (r *Router) RoutingOn() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routingOn = true
}

// RoutingOff suspends mirroring; the source remains authoritative
func (r *Router) RoutingOff() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routingOn = false
}

// IsRoutingOn reports the admin mirroring switch
func (r *Router) IsRoutingOn() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.routingOn
}

// inRange reports whether an element of one dimension falls in the moving
// range; broadcast mutations (dimension "") always travel to both sides of
// an open window
func (r *Router) inRangeLocked(kind types.DataElementKind, element string) bool {
	if kind == "" {
		return true
	}
	if kind != r.kind {
		return false
	}
	hash := types.HashElement(element)
	return hash >= r.lo && hash <= r.hi
}

// mutate applies op on the backing shards chosen by the router state
func (r *Router) mutate(ctx context.Context, kind types.DataElementKind, element string, op func(context.Context, client.API) error) error {
	if err := r.pauser.TestPause(ctx); err != nil {
		return err
	}

	r.mu.RLock()
	state := r.state
	target := r.target
	mirror := state == stateDualWrite && r.routingOn && r.inRangeLocked(kind, element)
	toTarget := state == stateCutover && kind != "" && r.inRangeLocked(kind, element)
	r.mu.RUnlock()

	if toTarget {
		return op(ctx, target)
	}
	if err := op(ctx, r.source); err != nil {
		return err
	}
	if mirror {
		return op(ctx, target)
	}
	return nil
}

// query picks the authoritative shard for a read
func (r *Router) query(kind types.DataElementKind, element string) client.API {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state == stateCutover && kind != "" && r.inRangeLocked(kind, element) {
		return r.target
	}
	return r.source
}

// Element mutations

func (r *Router) AddUser(ctx context.Context, user string) error {
	return r.mutate(ctx, types.ElementUser, user, func(ctx context.Context, api client.API) error {
		return api.AddUser(ctx, user)
	})
}

func (r *Router) RemoveUser(ctx context.Context, user string) error {
	return r.mutate(ctx, types.ElementUser, user, func(ctx context.Context, api client.API) error {
		return api.RemoveUser(ctx, user)
	})
}

func (r *Router) AddGroup(ctx context.Context, group string) error {
	return r.mutate(ctx, types.ElementGroup, group, func(ctx context.Context, api client.API) error {
		return api.AddGroup(ctx, group)
	})
}

func (r *Router) RemoveGroup(ctx context.Context, group string) error {
	return r.mutate(ctx, types.ElementGroup, group, func(ctx context.Context, api client.API) error {
		return api.RemoveGroup(ctx, group)
	})
}

func (r *Router) AddUserToGroupMapping(ctx context.Context, user, group string) error {
	return r.mutate(ctx, types.ElementUser, user, func(ctx context.Context, api client.API) error {
		return api.AddUserToGroupMapping(ctx, user, group)
	})
}

func (r *Router) RemoveUserToGroupMapping(ctx context.Context, user, group string) error {
	return r.mutate(ctx, types.ElementUser, user, func(ctx context.Context, api client.API) error {
		return api.RemoveUserToGroupMapping(ctx, user, group)
	})
}

func (r *Router) AddGroupToGroupMapping(ctx context.Context, fromGroup, toGroup string) error {
	return r.mutate(ctx, types.ElementGroupToGroup, fromGroup, func(ctx context.Context, api client.API) error {
		return api.AddGroupToGroupMapping(ctx, fromGroup, toGroup)
	})
}

func (r *Router) RemoveGroupToGroupMapping(ctx context.Context, fromGroup, toGroup string) error {
	return r.mutate(ctx, types.ElementGroupToGroup, fromGroup, func(ctx context.Context, api client.API) error {
		return api.RemoveGroupToGroupMapping(ctx, fromGroup, toGroup)
	})
}

func (r *Router) AddUserToComponentAccess(ctx context.Context, user, component, accessLevel string) error {
	return r.mutate(ctx, types.ElementUser, user, func(ctx context.Context, api client.API) error {
		return api.AddUserToComponentAccess(ctx, user, component, accessLevel)
	})
}

func (r *Router) RemoveUserToComponentAccess(ctx context.Context, user, component, accessLevel string) error {
	return r.mutate(ctx, types.ElementUser, user, func(ctx context.Context, api client.API) error {
		return api.RemoveUserToComponentAccess(ctx, user, component, accessLevel)
	})
}

func (r *Router) AddGroupToComponentAccess(ctx context.Context, group, component, accessLevel string) error {
	return r.mutate(ctx, types.ElementGroup, group, func(ctx context.Context, api client.API) error {
		return api.AddGroupToComponentAccess(ctx, group, component, accessLevel)
	})
}

func (r *Router) RemoveGroupToComponentAccess(ctx context.Context, group, component, accessLevel string) error {
	return r.mutate(ctx, types.ElementGroup, group, func(ctx context.Context, api client.API) error {
		return api.RemoveGroupToComponentAccess(ctx, group, component, accessLevel)
	})
}

func (r *Router) AddEntityType(ctx context.Context, entityType string) error {
	return r.mutate(ctx, "", entityType, func(ctx context.Context, api client.API) error {
		return api.AddEntityType(ctx, entityType)
	})
}

func (r *Router) RemoveEntityType(ctx context.Context, entityType string) error {
	return r.mutate(ctx, "", entityType, func(ctx context.Context, api client.API) error {
		return api.RemoveEntityType(ctx, entityType)
	})
}

func (r *Router) AddEntity(ctx context.Context, entityType, entity string) error {
	return r.mutate(ctx, "", entityType, func(ctx context.Context, api client.API) error {
		return api.AddEntity(ctx, entityType, entity)
	})
}

func (r *Router) RemoveEntity(ctx context.Context, entityType, entity string) error {
	return r.mutate(ctx, "", entityType, func(ctx context.Context, api client.API) error {
		return api.RemoveEntity(ctx, entityType, entity)
	})
}

func (r *Router) AddUserToEntity(ctx context.Context, user, entityType, entity string) error {
	return r.mutate(ctx, types.ElementUser, user, func(ctx context.Context, api client.API) error {
		return api.AddUserToEntity(ctx, user, entityType, entity)
	})
}

func (r *Router) RemoveUserToEntity(ctx context.Context, user, entityType, entity string) error {
	return r.mutate(ctx, types.ElementUser, user, func(ctx context.Context, api client.API) error {
		return api.RemoveUserToEntity(ctx, user, entityType, entity)
	})
}

func (r *Router) AddGroupToEntity(ctx context.Context, group, entityType, entity string) error {
	return r.mutate(ctx, types.ElementGroup, group, func(ctx context.Context, api client.API) error {
		return api.AddGroupToEntity(ctx, group, entityType, entity)
	})
}

func (r *Router) RemoveGroupToEntity(ctx context.Context, group, entityType, entity string) error {
	return r.mutate(ctx, types.ElementGroup, group, func(ctx context.Context, api client.API) error {
		return api.RemoveGroupToEntity(ctx, group, entityType, entity)
	})
}

// Queries

func (r *Router) ContainsUser(ctx context.Context, user string) (bool, error) {
	return r.query(types.ElementUser, user).ContainsUser(ctx, user)
}

func (r *Router) ContainsGroup(ctx context.Context, group string) (bool, error) {
	return r.query(types.ElementGroup, group).ContainsGroup(ctx, group)
}

func (r *Router) ContainsEntityType(ctx context.Context, entityType string) (bool, error) {
	return r.query("", entityType).ContainsEntityType(ctx, entityType)
}

func (r *Router) ContainsEntity(ctx context.Context, entityType, entity string) (bool, error) {
	return r.query("", entityType).ContainsEntity(ctx, entityType, entity)
}

func (r *Router) GetUserToGroupMappings(ctx context.Context, user string, includeIndirect bool) ([]string, error) {
	return r.query(types.ElementUser, user).GetUserToGroupMappings(ctx, user, includeIndirect)
}

func (r *Router) GetGroupToUserMappings(ctx context.Context, group string, includeIndirect bool) ([]string, error) {
	return r.query(types.ElementGroup, group).GetGroupToUserMappings(ctx, group, includeIndirect)
}

func (r *Router) GetGroupToGroupMappings(ctx context.Context, group string, includeIndirect bool) ([]string, error) {
	return r.query(types.ElementGroupToGroup, group).GetGroupToGroupMappings(ctx, group, includeIndirect)
}

func (r *Router) GetGroupToGroupReverseMappings(ctx context.Context, group string, includeIndirect bool) ([]string, error) {
	return r.query(types.ElementGroupToGroup, group).GetGroupToGroupReverseMappings(ctx, group, includeIndirect)
}

func (r *Router) HasAccessToComponent(ctx context.Context, user, component, accessLevel string) (bool, error) {
	return r.query(types.ElementUser, user).HasAccessToComponent(ctx, user, component, accessLevel)
}

func (r *Router) GroupHasAccessToComponent(ctx context.Context, group, component, accessLevel string) (bool, error) {
	return r.query(types.ElementGroup, group).GroupHasAccessToComponent(ctx, group, component, accessLevel)
}

func (r *Router) HasAccessToEntity(ctx context.Context, user, entityType, entity string) (bool, error) {
	return r.query(types.ElementUser, user).HasAccessToEntity(ctx, user, entityType, entity)
}

func (r *Router) GroupHasAccessToEntity(ctx context.Context, group, entityType, entity string) (bool, error) {
	return r.query(types.ElementGroup, group).GroupHasAccessToEntity(ctx, group, entityType, entity)
}

func (r *Router) ComponentsAccessibleByUser(ctx context.Context, user string) ([]access.ComponentAccess, error) {
	return r.query(types.ElementUser, user).ComponentsAccessibleByUser(ctx, user)
}

func (r *Router) ComponentsAccessibleByGroup(ctx context.Context, group string) ([]access.ComponentAccess, error) {
	return r.query(types.ElementGroup, group).ComponentsAccessibleByGroup(ctx, group)
}

func (r *Router) EntitiesAccessibleByUser(ctx context.Context, user, entityType string) ([]access.EntityRef, error) {
	return r.query(types.ElementUser, user).EntitiesAccessibleByUser(ctx, user, entityType)
}

func (r *Router) EntitiesAccessibleByGroup(ctx context.Context, group, entityType string) ([]access.EntityRef, error) {
	return r.query(types.ElementGroup, group).EntitiesAccessibleByGroup(ctx, group, entityType)
}
