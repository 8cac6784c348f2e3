package access

import (
	"fmt"

	"github.com/cuemby/warden/pkg/types"
)

// Mutations generate the ordered event list that reproduces the state change
// on replay. Dependency prepends and cascade removes come first; the event
// for the requested operation is always last.

func userEvent(action types.EventAction, user string) *types.Event {
	ev := types.NewEvent(action, types.KindUser)
	ev.User = user
	return ev.Stamp()
}

func groupEvent(action types.EventAction, group string) *types.Event {
	ev := types.NewEvent(action, types.KindGroup)
	ev.Group = group
	return ev.Stamp()
}

func userToGroupEvent(action types.EventAction, user, group string) *types.Event {
	ev := types.NewEvent(action, types.KindUserToGroup)
	ev.User, ev.Group = user, group
	return ev.Stamp()
}

func groupToGroupEvent(action types.EventAction, from, to string) *types.Event {
	ev := types.NewEvent(action, types.KindGroupToGroup)
	ev.FromGroup, ev.ToGroup = from, to
	return ev.Stamp()
}

func userToComponentEvent(action types.EventAction, user, component, accessLevel string) *types.Event {
	ev := types.NewEvent(action, types.KindUserToComponent)
	ev.User, ev.ApplicationComponent, ev.AccessLevel = user, component, accessLevel
	return ev.Stamp()
}

func groupToComponentEvent(action types.EventAction, group, component, accessLevel string) *types.Event {
	ev := types.NewEvent(action, types.KindGroupToComponent)
	ev.Group, ev.ApplicationComponent, ev.AccessLevel = group, component, accessLevel
	return ev.Stamp()
}

func entityTypeEvent(action types.EventAction, entityType string) *types.Event {
	ev := types.NewEvent(action, types.KindEntityType)
	ev.EntityType = entityType
	return ev.Stamp()
}

func entityEvent(action types.EventAction, entityType, entity string) *types.Event {
	ev := types.NewEvent(action, types.KindEntity)
	ev.EntityType, ev.Entity = entityType, entity
	return ev.Stamp()
}

func userToEntityEvent(action types.EventAction, user, entityType, entity string) *types.Event {
	ev := types.NewEvent(action, types.KindUserToEntity)
	ev.User, ev.EntityType, ev.Entity = user, entityType, entity
	return ev.Stamp()
}

func groupToEntityEvent(action types.EventAction, group, entityType, entity string) *types.Event {
	ev := types.NewEvent(action, types.KindGroupToEntity)
	ev.Group, ev.EntityType, ev.Entity = group, entityType, entity
	return ev.Stamp()
}

// AddUser adds a user
func (m *Manager) AddUser(user string) (Outcome, []*types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.graph.ContainsLeaf(user) {
		if m.strict {
			return NoOpAlreadyPresent, nil, fmt.Errorf("user %q: %w", user, ErrAlreadyExists)
		}
		return NoOpAlreadyPresent, nil, nil
	}
	m.addUser(user)
	return Applied, []*types.Event{userEvent(types.ActionAdd, user)}, nil
}

// RemoveUser removes a user, cascading removal of every mapping that
// references it. The cascade is expressed as prepended remove events.
func (m *Manager) RemoveUser(user string) (Outcome, []*types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.graph.ContainsLeaf(user) {
		if m.strict {
			return NoOpAbsent, nil, fmt.Errorf("user %q: %w", user, ErrNotFound)
		}
		return NoOpAbsent, nil, nil
	}

	var events []*types.Event
	for _, group := range m.graph.Successors(user) {
		events = append(events, userToGroupEvent(types.ActionRemove, user, group))
	}
	for ca := range m.userComponents[user] {
		events = append(events, userToComponentEvent(types.ActionRemove, user, ca.Component, ca.Access))
	}
	for ref := range m.userEntities[user] {
		events = append(events, userToEntityEvent(types.ActionRemove, user, ref.EntityType, ref.Entity))
	}
	events = append(events, userEvent(types.ActionRemove, user))

	m.removeUser(user)
	return Applied, events, nil
}

// AddGroup adds a group
func (m *Manager) AddGroup(group string) (Outcome, []*types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.graph.ContainsNonLeaf(group) {
		if m.strict {
			return NoOpAlreadyPresent, nil, fmt.Errorf("group %q: %w", group, ErrAlreadyExists)
		}
		return NoOpAlreadyPresent, nil, nil
	}
	m.addGroup(group)
	return Applied, []*types.Event{groupEvent(types.ActionAdd, group)}, nil
}

// RemoveGroup removes a group, cascading removal of every edge and mapping
// touching it
func (m *Manager) RemoveGroup(group string) (Outcome, []*types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.graph.ContainsNonLeaf(group) {
		if m.strict {
			return NoOpAbsent, nil, fmt.Errorf("group %q: %w", group, ErrNotFound)
		}
		return NoOpAbsent, nil, nil
	}

	var events []*types.Event
	for _, from := range m.graph.Predecessors(group) {
		if m.graph.ContainsLeaf(from) {
			events = append(events, userToGroupEvent(types.ActionRemove, from, group))
		} else {
			events = append(events, groupToGroupEvent(types.ActionRemove, from, group))
		}
	}
	for _, to := range m.graph.Successors(group) {
		events = append(events, groupToGroupEvent(types.ActionRemove, group, to))
	}
	for ca := range m.grpComponents[group] {
		events = append(events, groupToComponentEvent(types.ActionRemove, group, ca.Component, ca.Access))
	}
	for ref := range m.grpEntities[group] {
		events = append(events, groupToEntityEvent(types.ActionRemove, group, ref.EntityType, ref.Entity))
	}
	events = append(events, groupEvent(types.ActionRemove, group))

	m.removeGroup(group)
	return Applied, events, nil
}

// AddUserToGroupMapping maps a user into a group. In dependency-free mode an
// absent user or group is created first via prepended add events.
func (m *Manager) AddUserToGroupMapping(user, group string) (Outcome, []*types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.graph.ContainsEdge(user, group) {
		if m.strict {
			return NoOpAlreadyPresent, nil, fmt.Errorf("mapping %q->%q: %w", user, group, ErrAlreadyExists)
		}
		return NoOpAlreadyPresent, nil, nil
	}

	var events []*types.Event
	if !m.graph.ContainsLeaf(user) {
		if m.strict {
			return NoOpAbsent, nil, fmt.Errorf("user %q: %w", user, ErrNotFound)
		}
		m.addUser(user)
		events = append(events, userEvent(types.ActionAdd, user))
	}
	if !m.graph.ContainsNonLeaf(group) {
		if m.strict {
			return NoOpAbsent, nil, fmt.Errorf("group %q: %w", group, ErrNotFound)
		}
		m.addGroup(group)
		events = append(events, groupEvent(types.ActionAdd, group))
	}
	if err := m.graph.AddEdge(user, group); err != nil {
		return NoOpAbsent, nil, err
	}
	events = append(events, userToGroupEvent(types.ActionAdd, user, group))
	return Applied, events, nil
}

// RemoveUserToGroupMapping removes a user→group mapping
func (m *Manager) RemoveUserToGroupMapping(user, group string) (Outcome, []*types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.graph.ContainsEdge(user, group) {
		if m.strict {
			return NoOpAbsent, nil, fmt.Errorf("mapping %q->%q: %w", user, group, ErrNotFound)
		}
		return NoOpAbsent, nil, nil
	}
	if err := m.graph.RemoveEdge(user, group); err != nil {
		return NoOpAbsent, nil, err
	}
	return Applied, []*types.Event{userToGroupEvent(types.ActionRemove, user, group)}, nil
}

// AddGroupToGroupMapping maps a group into another group. Fails with
// ErrCycle when the mapping would create a directed cycle, in every mode.
func (m *Manager) AddGroupToGroupMapping(fromGroup, toGroup string) (Outcome, []*types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.graph.ContainsEdge(fromGroup, toGroup) {
		if m.strict {
			return NoOpAlreadyPresent, nil, fmt.Errorf("mapping %q->%q: %w", fromGroup, toGroup, ErrAlreadyExists)
		}
		return NoOpAlreadyPresent, nil, nil
	}

	var events []*types.Event
	var created []string
	if !m.graph.ContainsNonLeaf(fromGroup) {
		if m.strict {
			return NoOpAbsent, nil, fmt.Errorf("group %q: %w", fromGroup, ErrNotFound)
		}
		m.addGroup(fromGroup)
		created = append(created, fromGroup)
		events = append(events, groupEvent(types.ActionAdd, fromGroup))
	}
	if !m.graph.ContainsNonLeaf(toGroup) {
		if m.strict {
			return NoOpAbsent, nil, fmt.Errorf("group %q: %w", toGroup, ErrNotFound)
		}
		m.addGroup(toGroup)
		created = append(created, toGroup)
		events = append(events, groupEvent(types.ActionAdd, toGroup))
	}
	if err := m.graph.AddEdge(fromGroup, toGroup); err != nil {
		// Roll back prepended creations so a rejected request leaves no trace
		for _, g := range created {
			m.removeGroup(g)
		}
		return NoOpAbsent, nil, err
	}
	events = append(events, groupToGroupEvent(types.ActionAdd, fromGroup, toGroup))
	return Applied, events, nil
}

// RemoveGroupToGroupMapping removes a group→group mapping
func (m *Manager) RemoveGroupToGroupMapping(fromGroup, toGroup string) (Outcome, []*types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.graph.ContainsEdge(fromGroup, toGroup) {
		if m.strict {
			return NoOpAbsent, nil, fmt.Errorf("mapping %q->%q: %w", fromGroup, toGroup, ErrNotFound)
		}
		return NoOpAbsent, nil, nil
	}
	if err := m.graph.RemoveEdge(fromGroup, toGroup); err != nil {
		return NoOpAbsent, nil, err
	}
	return Applied, []*types.Event{groupToGroupEvent(types.ActionRemove, fromGroup, toGroup)}, nil
}

// AddUserToComponentAccess grants a user an access level on a component
func (m *Manager) AddUserToComponentAccess(user, component, accessLevel string) (Outcome, []*types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ca := ComponentAccess{Component: component, Access: accessLevel}
	if _, ok := m.userComponents[user][ca]; ok {
		if m.strict {
			return NoOpAlreadyPresent, nil, fmt.Errorf("mapping %q->%v: %w", user, ca, ErrAlreadyExists)
		}
		return NoOpAlreadyPresent, nil, nil
	}

	var events []*types.Event
	if !m.graph.ContainsLeaf(user) {
		if m.strict {
			return NoOpAbsent, nil, fmt.Errorf("user %q: %w", user, ErrNotFound)
		}
		m.addUser(user)
		events = append(events, userEvent(types.ActionAdd, user))
	}
	m.addUserComponent(user, ca)
	events = append(events, userToComponentEvent(types.ActionAdd, user, component, accessLevel))
	return Applied, events, nil
}

// RemoveUserToComponentAccess revokes a user's access level on a component
func (m *Manager) RemoveUserToComponentAccess(user, component, accessLevel string) (Outcome, []*types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ca := ComponentAccess{Component: component, Access: accessLevel}
	if _, ok := m.userComponents[user][ca]; !ok {
		if m.strict {
			return NoOpAbsent, nil, fmt.Errorf("mapping %q->%v: %w", user, ca, ErrNotFound)
		}
		return NoOpAbsent, nil, nil
	}
	m.removeUserComponent(user, ca)
	return Applied, []*types.Event{userToComponentEvent(types.ActionRemove, user, component, accessLevel)}, nil
}

// AddGroupToComponentAccess grants a group an access level on a component
func (m *Manager) AddGroupToComponentAccess(group, component, accessLevel string) (Outcome, []*types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ca := ComponentAccess{Component: component, Access: accessLevel}
	if _, ok := m.grpComponents[group][ca]; ok {
		if m.strict {
			return NoOpAlreadyPresent, nil, fmt.Errorf("mapping %q->%v: %w", group, ca, ErrAlreadyExists)
		}
		return NoOpAlreadyPresent, nil, nil
	}

	var events []*types.Event
	if !m.graph.ContainsNonLeaf(group) {
		if m.strict {
			return NoOpAbsent, nil, fmt.Errorf("group %q: %w", group, ErrNotFound)
		}
		m.addGroup(group)
		events = append(events, groupEvent(types.ActionAdd, group))
	}
	m.addGroupComponent(group, ca)
	events = append(events, groupToComponentEvent(types.ActionAdd, group, component, accessLevel))
	return Applied, events, nil
}

// RemoveGroupToComponentAccess revokes a group's access level on a component
func (m *Manager) RemoveGroupToComponentAccess(group, component, accessLevel string) (Outcome, []*types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ca := ComponentAccess{Component: component, Access: accessLevel}
	if _, ok := m.grpComponents[group][ca]; !ok {
		if m.strict {
			return NoOpAbsent, nil, fmt.Errorf("mapping %q->%v: %w", group, ca, ErrNotFound)
		}
		return NoOpAbsent, nil, nil
	}
	m.removeGroupComponent(group, ca)
	return Applied, []*types.Event{groupToComponentEvent(types.ActionRemove, group, component, accessLevel)}, nil
}

// AddEntityType adds an entity type
func (m *Manager) AddEntityType(entityType string) (Outcome, []*types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entities[entityType]; ok {
		if m.strict {
			return NoOpAlreadyPresent, nil, fmt.Errorf("entity type %q: %w", entityType, ErrAlreadyExists)
		}
		return NoOpAlreadyPresent, nil, nil
	}
	m.addEntityType(entityType)
	return Applied, []*types.Event{entityTypeEvent(types.ActionAdd, entityType)}, nil
}

// RemoveEntityType removes an entity type, cascading removal of its entities
// and every mapping referencing them
func (m *Manager) RemoveEntityType(entityType string) (Outcome, []*types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entities[entityType]; !ok {
		if m.strict {
			return NoOpAbsent, nil, fmt.Errorf("entity type %q: %w", entityType, ErrNotFound)
		}
		return NoOpAbsent, nil, nil
	}

	var events []*types.Event
	for user, refs := range m.userEntities {
		for ref := range refs {
			if ref.EntityType == entityType {
				events = append(events, userToEntityEvent(types.ActionRemove, user, ref.EntityType, ref.Entity))
			}
		}
	}
	for group, refs := range m.grpEntities {
		for ref := range refs {
			if ref.EntityType == entityType {
				events = append(events, groupToEntityEvent(types.ActionRemove, group, ref.EntityType, ref.Entity))
			}
		}
	}
	for entity := range m.entities[entityType] {
		events = append(events, entityEvent(types.ActionRemove, entityType, entity))
	}
	events = append(events, entityTypeEvent(types.ActionRemove, entityType))

	m.removeEntityType(entityType)
	return Applied, events, nil
}

// AddEntity adds an entity of an entity type
func (m *Manager) AddEntity(entityType, entity string) (Outcome, []*types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entities[entityType][entity]; ok {
		if m.strict {
			return NoOpAlreadyPresent, nil, fmt.Errorf("entity %q/%q: %w", entityType, entity, ErrAlreadyExists)
		}
		return NoOpAlreadyPresent, nil, nil
	}

	var events []*types.Event
	if _, ok := m.entities[entityType]; !ok {
		if m.strict {
			return NoOpAbsent, nil, fmt.Errorf("entity type %q: %w", entityType, ErrNotFound)
		}
		m.addEntityType(entityType)
		events = append(events, entityTypeEvent(types.ActionAdd, entityType))
	}
	m.addEntity(entityType, entity)
	events = append(events, entityEvent(types.ActionAdd, entityType, entity))
	return Applied, events, nil
}

// RemoveEntity removes an entity, cascading removal of user and group
// mappings referencing it
func (m *Manager) RemoveEntity(entityType, entity string) (Outcome, []*types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entities[entityType][entity]; !ok {
		if m.strict {
			return NoOpAbsent, nil, fmt.Errorf("entity %q/%q: %w", entityType, entity, ErrNotFound)
		}
		return NoOpAbsent, nil, nil
	}

	ref := EntityRef{EntityType: entityType, Entity: entity}
	var events []*types.Event
	for user, refs := range m.userEntities {
		if _, ok := refs[ref]; ok {
			events = append(events, userToEntityEvent(types.ActionRemove, user, entityType, entity))
		}
	}
	for group, refs := range m.grpEntities {
		if _, ok := refs[ref]; ok {
			events = append(events, groupToEntityEvent(types.ActionRemove, group, entityType, entity))
		}
	}
	events = append(events, entityEvent(types.ActionRemove, entityType, entity))

	m.removeEntity(entityType, entity)
	return Applied, events, nil
}

// AddUserToEntity maps a user to an entity
func (m *Manager) AddUserToEntity(user, entityType, entity string) (Outcome, []*types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref := EntityRef{EntityType: entityType, Entity: entity}
	if _, ok := m.userEntities[user][ref]; ok {
		if m.strict {
			return NoOpAlreadyPresent, nil, fmt.Errorf("mapping %q->%v: %w", user, ref, ErrAlreadyExists)
		}
		return NoOpAlreadyPresent, nil, nil
	}

	var events []*types.Event
	if !m.graph.ContainsLeaf(user) {
		if m.strict {
			return NoOpAbsent, nil, fmt.Errorf("user %q: %w", user, ErrNotFound)
		}
		m.addUser(user)
		events = append(events, userEvent(types.ActionAdd, user))
	}
	if _, ok := m.entities[entityType]; !ok {
		if m.strict {
			return NoOpAbsent, nil, fmt.Errorf("entity type %q: %w", entityType, ErrNotFound)
		}
		m.addEntityType(entityType)
		events = append(events, entityTypeEvent(types.ActionAdd, entityType))
	}
	if _, ok := m.entities[entityType][entity]; !ok {
		if m.strict {
			return NoOpAbsent, nil, fmt.Errorf("entity %q/%q: %w", entityType, entity, ErrNotFound)
		}
		m.addEntity(entityType, entity)
		events = append(events, entityEvent(types.ActionAdd, entityType, entity))
	}
	m.addUserEntity(user, ref)
	events = append(events, userToEntityEvent(types.ActionAdd, user, entityType, entity))
	return Applied, events, nil
}

// RemoveUserToEntity removes a user→entity mapping
func (m *Manager) RemoveUserToEntity(user, entityType, entity string) (Outcome, []*types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref := EntityRef{EntityType: entityType, Entity: entity}
	if _, ok := m.userEntities[user][ref]; !ok {
		if m.strict {
			return NoOpAbsent, nil, fmt.Errorf("mapping %q->%v: %w", user, ref, ErrNotFound)
		}
		return NoOpAbsent, nil, nil
	}
	m.removeUserEntity(user, ref)
	return Applied, []*types.Event{userToEntityEvent(types.ActionRemove, user, entityType, entity)}, nil
}

// AddGroupToEntity maps a group to an entity
func (m *Manager) AddGroupToEntity(group, entityType, entity string) (Outcome, []*types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref := EntityRef{EntityType: entityType, Entity: entity}
	if _, ok := m.grpEntities[group][ref]; ok {
		if m.strict {
			return NoOpAlreadyPresent, nil, fmt.Errorf("mapping %q->%v: %w", group, ref, ErrAlreadyExists)
		}
		return NoOpAlreadyPresent, nil, nil
	}

	var events []*types.Event
	if !m.graph.ContainsNonLeaf(group) {
		if m.strict {
			return NoOpAbsent, nil, fmt.Errorf("group %q: %w", group, ErrNotFound)
		}
		m.addGroup(group)
		events = append(events, groupEvent(types.ActionAdd, group))
	}
	if _, ok := m.entities[entityType]; !ok {
		if m.strict {
			return NoOpAbsent, nil, fmt.Errorf("entity type %q: %w", entityType, ErrNotFound)
		}
		m.addEntityType(entityType)
		events = append(events, entityTypeEvent(types.ActionAdd, entityType))
	}
	if _, ok := m.entities[entityType][entity]; !ok {
		if m.strict {
			return NoOpAbsent, nil, fmt.Errorf("entity %q/%q: %w", entityType, entity, ErrNotFound)
		}
		m.addEntity(entityType, entity)
		events = append(events, entityEvent(types.ActionAdd, entityType, entity))
	}
	m.addGroupEntity(group, ref)
	events = append(events, groupToEntityEvent(types.ActionAdd, group, entityType, entity))
	return Applied, events, nil
}

// RemoveGroupToEntity removes a group→entity mapping
func (m *Manager) RemoveGroupToEntity(group, entityType, entity string) (Outcome, []*types.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref := EntityRef{EntityType: entityType, Entity: entity}
	if _, ok := m.grpEntities[group][ref]; !ok {
		if m.strict {
			return NoOpAbsent, nil, fmt.Errorf("mapping %q->%v: %w", group, ref, ErrNotFound)
		}
		return NoOpAbsent, nil, nil
	}
	m.removeGroupEntity(group, ref)
	return Applied, []*types.Event{groupToEntityEvent(types.ActionRemove, group, entityType, entity)}, nil
}

// Internal state mutators, callers hold the writer lock.

func (m *Manager) addUser(user string) {
	m.graph.AddLeaf(user)
}

func (m *Manager) removeUser(user string) {
	m.graph.RemoveLeaf(user)
	delete(m.userComponents, user)
	delete(m.userEntities, user)
}

func (m *Manager) addGroup(group string) {
	m.graph.AddNonLeaf(group)
}

func (m *Manager) removeGroup(group string) {
	m.graph.RemoveNonLeaf(group)
	delete(m.grpComponents, group)
	delete(m.grpEntities, group)
}

func (m *Manager) addUserComponent(user string, ca ComponentAccess) {
	if m.userComponents[user] == nil {
		m.userComponents[user] = make(map[ComponentAccess]struct{})
	}
	m.userComponents[user][ca] = struct{}{}
}

func (m *Manager) removeUserComponent(user string, ca ComponentAccess) {
	delete(m.userComponents[user], ca)
	if len(m.userComponents[user]) == 0 {
		delete(m.userComponents, user)
	}
}

func (m *Manager) addGroupComponent(group string, ca ComponentAccess) {
	if m.grpComponents[group] == nil {
		m.grpComponents[group] = make(map[ComponentAccess]struct{})
	}
	m.grpComponents[group][ca] = struct{}{}
}

func (m *Manager) removeGroupComponent(group string, ca ComponentAccess) {
	delete(m.grpComponents[group], ca)
	if len(m.grpComponents[group]) == 0 {
		delete(m.grpComponents, group)
	}
}

func (m *Manager) addEntityType(entityType string) {
	m.entities[entityType] = make(map[string]struct{})
}

func (m *Manager) removeEntityType(entityType string) {
	delete(m.entities, entityType)
	for user, refs := range m.userEntities {
		for ref := range refs {
			if ref.EntityType == entityType {
				delete(refs, ref)
			}
		}
		if len(refs) == 0 {
			delete(m.userEntities, user)
		}
	}
	for group, refs := range m.grpEntities {
		for ref := range refs {
			if ref.EntityType == entityType {
				delete(refs, ref)
			}
		}
		if len(refs) == 0 {
			delete(m.grpEntities, group)
		}
	}
}

func (m *Manager) addEntity(entityType, entity string) {
	if m.entities[entityType] == nil {
		m.entities[entityType] = make(map[string]struct{})
	}
	m.entities[entityType][entity] = struct{}{}
}

func (m *Manager) removeEntity(entityType, entity string) {
	delete(m.entities[entityType], entity)
	ref := EntityRef{EntityType: entityType, Entity: entity}
	for user, refs := range m.userEntities {
		delete(refs, ref)
		if len(refs) == 0 {
			delete(m.userEntities, user)
		}
	}
	for group, refs := range m.grpEntities {
		delete(refs, ref)
		if len(refs) == 0 {
			delete(m.grpEntities, group)
		}
	}
}

func (m *Manager) addUserEntity(user string, ref EntityRef) {
	if m.userEntities[user] == nil {
		m.userEntities[user] = make(map[EntityRef]struct{})
	}
	m.userEntities[user][ref] = struct{}{}
}

func (m *Manager) removeUserEntity(user string, ref EntityRef) {
	delete(m.userEntities[user], ref)
	if len(m.userEntities[user]) == 0 {
		delete(m.userEntities, user)
	}
}

func (m *Manager) addGroupEntity(group string, ref EntityRef) {
	if m.grpEntities[group] == nil {
		m.grpEntities[group] = make(map[EntityRef]struct{})
	}
	m.grpEntities[group][ref] = struct{}{}
}

func (m *Manager) removeGroupEntity(group string, ref EntityRef) {
	delete(m.grpEntities[group], ref)
	if len(m.grpEntities[group]) == 0 {
		delete(m.grpEntities, group)
	}
}
