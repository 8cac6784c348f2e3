package client

import (
	"context"
	"errors"
	"time"

	"github.com/cuemby/warden/pkg/access"
	"github.com/cuemby/warden/pkg/types"
	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates the shard answered 404
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates the shard answered 409
	ErrConflict = errors.New("conflict")

	// ErrUnavailable indicates a transport failure, an open circuit
	// breaker, or a shard answering 503
	ErrUnavailable = errors.New("upstream unavailable")
)

// API is the operation surface of one shard node. Every blocking call
// carries the caller's context; deadlines propagate to the wire.
type API interface {
	// Element mutations
	AddUser(ctx context.Context, user string) error
	RemoveUser(ctx context.Context, user string) error
	AddGroup(ctx context.Context, group string) error
	RemoveGroup(ctx context.Context, group string) error
	AddUserToGroupMapping(ctx context.Context, user, group string) error
	RemoveUserToGroupMapping(ctx context.Context, user, group string) error
	AddGroupToGroupMapping(ctx context.Context, fromGroup, toGroup string) error
	RemoveGroupToGroupMapping(ctx context.Context, fromGroup, toGroup string) error
	AddUserToComponentAccess(ctx context.Context, user, component, accessLevel string) error
	RemoveUserToComponentAccess(ctx context.Context, user, component, accessLevel string) error
	AddGroupToComponentAccess(ctx context.Context, group, component, accessLevel string) error
	RemoveGroupToComponentAccess(ctx context.Context, group, component, accessLevel string) error
	AddEntityType(ctx context.Context, entityType string) error
	RemoveEntityType(ctx context.Context, entityType string) error
	AddEntity(ctx context.Context, entityType, entity string) error
	RemoveEntity(ctx context.Context, entityType, entity string) error
	AddUserToEntity(ctx context.Context, user, entityType, entity string) error
	RemoveUserToEntity(ctx context.Context, user, entityType, entity string) error
	AddGroupToEntity(ctx context.Context, group, entityType, entity string) error
	RemoveGroupToEntity(ctx context.Context, group, entityType, entity string) error

	// Queries
	ContainsUser(ctx context.Context, user string) (bool, error)
	ContainsGroup(ctx context.Context, group string) (bool, error)
	ContainsEntityType(ctx context.Context, entityType string) (bool, error)
	ContainsEntity(ctx context.Context, entityType, entity string) (bool, error)
	GetUserToGroupMappings(ctx context.Context, user string, includeIndirect bool) ([]string, error)
	GetGroupToUserMappings(ctx context.Context, group string, includeIndirect bool) ([]string, error)
	GetGroupToGroupMappings(ctx context.Context, group string, includeIndirect bool) ([]string, error)
	GetGroupToGroupReverseMappings(ctx context.Context, group string, includeIndirect bool) ([]string, error)
	HasAccessToComponent(ctx context.Context, user, component, accessLevel string) (bool, error)
	GroupHasAccessToComponent(ctx context.Context, group, component, accessLevel string) (bool, error)
	HasAccessToEntity(ctx context.Context, user, entityType, entity string) (bool, error)
	GroupHasAccessToEntity(ctx context.Context, group, entityType, entity string) (bool, error)
	ComponentsAccessibleByUser(ctx context.Context, user string) ([]access.ComponentAccess, error)
	ComponentsAccessibleByGroup(ctx context.Context, group string) ([]access.ComponentAccess, error)
	EntitiesAccessibleByUser(ctx context.Context, user, entityType string) ([]access.EntityRef, error)
	EntitiesAccessibleByGroup(ctx context.Context, group, entityType string) ([]access.EntityRef, error)

	// Event log surface
	ApplyEvents(ctx context.Context, events []*types.Event) error
	EventsSince(priorID uuid.UUID) ([]*types.Event, error)
	GetEventsInHashRange(ctx context.Context, kind types.DataElementKind, lo, hi int32, since time.Time, limit int) ([]types.PersistedEvent, error)
	DeleteEventsInHashRange(ctx context.Context, kind types.DataElementKind, lo, hi int32, before time.Time) (int, error)

	// Shard configuration surface (coordinator nodes)
	LoadConfiguration(ctx context.Context) (*types.ShardConfigurationSet, error)
	SaveConfiguration(ctx context.Context, set *types.ShardConfigurationSet) error

	// Admin surface
	Status(ctx context.Context) (*types.NodeStatus, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	RoutingOn(ctx context.Context) error
	RoutingOff(ctx context.Context) error

	// Endpoint returns the base URL this client talks to
	Endpoint() string

	// Close releases the client
	Close() error
}
