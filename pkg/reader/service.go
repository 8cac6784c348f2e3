package reader

import (
	"context"
	"errors"

	"github.com/cuemby/warden/pkg/access"
	"github.com/cuemby/warden/pkg/types"
	"github.com/google/uuid"
)

// ErrReadOnly indicates a mutation sent to a reader node
var ErrReadOnly = errors.New("reader nodes are read-only")

// Status reports the replica's state
func (n *Node) Status(ctx context.Context) (*types.NodeStatus, error) {
	n.mu.Lock()
	tail := n.tailID
	n.mu.Unlock()

	status := &types.NodeStatus{
		NodeID: n.cfg.NodeID,
		Role:   "reader",
	}
	if tail != uuid.Nil {
		status.LastEventID = tail.String()
	}
	return status, nil
}

// Queries served from the local replica

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

// Mutations are rejected; writes go through the writer node

func (n *Node) AddUser(ctx context.Context, user string) error    { return ErrReadOnly }
func (n *Node) RemoveUser(ctx context.Context, user string) error { return ErrReadOnly }
func (n *Node) AddGroup(ctx context.Context, group string) error  { return ErrReadOnly }
func (n *Node) RemoveGroup(ctx context.Context, group string) error {
	return ErrReadOnly
}
func (n *Node) AddUserToGroupMapping(ctx context.Context, user, group string) error {
	return ErrReadOnly
}
func (n *Node) RemoveUserToGroupMapping(ctx context.Context, user, group string) error {
	return ErrReadOnly
}
func (n *Node) AddGroupToGroupMapping(ctx context.Context, fromGroup, toGroup string) error {
	return ErrReadOnly
}
func (n *Node) RemoveGroupToGroupMapping(ctx context.Context, fromGroup, toGroup string) error {
	return ErrReadOnly
}
func (n *Node) AddUserToComponentAccess(ctx context.Context, user, component, accessLevel string) error {
	return ErrReadOnly
}
func (n *Node) RemoveUserToComponentAccess(ctx context.Context, user, component, accessLevel string) error {
	return ErrReadOnly
}
func (n *Node) AddGroupToComponentAccess(ctx context.Context, group, component, accessLevel string) error {
	return ErrReadOnly
}
func (n *Node) RemoveGroupToComponentAccess(ctx context.Context, group, component, accessLevel string) error {
	return ErrReadOnly
}
func (n *Node) AddEntityType(ctx context.Context, entityType string) error {
	return ErrReadOnly
}
func (n *Node) RemoveEntityType(ctx context.Context, entityType string) error {
	return ErrReadOnly
}
func (n *Node) AddEntity(ctx context.Context, entityType, entity string) error {
	return ErrReadOnly
}
func (n *Node) RemoveEntity(ctx context.Context, entityType, entity string) error {
	return ErrReadOnly
}
func (n *Node) AddUserToEntity(ctx context.Context, user, entityType, entity string) error {
	return ErrReadOnly
}
func (n *Node) RemoveUserToEntity(ctx context.Context, user, entityType, entity string) error {
	return ErrReadOnly
}
func (n *Node) AddGroupToEntity(ctx context.Context, group, entityType, entity string) error {
	return ErrReadOnly
}
func (n *Node) RemoveGroupToEntity(ctx context.Context, group, entityType, entity string) error {
	return ErrReadOnly
}
