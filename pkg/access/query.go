package access

import (
	"fmt"
	"sort"
)

// ContainsUser reports whether a user exists
func (m *Manager) ContainsUser(user string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.graph.ContainsLeaf(user)
}

// ContainsGroup reports whether a group exists
func (m *Manager) ContainsGroup(group string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.graph.ContainsNonLeaf(group)
}

// ContainsEntityType reports whether an entity type exists
func (m *Manager) ContainsEntityType(entityType string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entities[entityType]
	return ok
}

// ContainsEntity reports whether an entity exists within its type
func (m *Manager) ContainsEntity(entityType, entity string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entities[entityType][entity]
	return ok
}

// Users returns every user, sorted
func (m *Manager) Users() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var users []string
	m.graph.EachLeaf(func(v string) {
		users = append(users, v)
	})
	sort.Strings(users)
	return users
}

// Groups returns every group, sorted
func (m *Manager) Groups() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var groups []string
	m.graph.EachNonLeaf(func(v string) {
		groups = append(groups, v)
	})
	sort.Strings(groups)
	return groups
}

// EntityTypes returns every entity type, sorted
func (m *Manager) EntityTypes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.entities))
	for et := range m.entities {
		out = append(out, et)
	}
	sort.Strings(out)
	return out
}

// Entities returns every entity of a type, sorted
func (m *Manager) Entities(entityType string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.entities[entityType]
	if !ok {
		if m.strict {
			return nil, fmt.Errorf("entity type %q: %w", entityType, ErrNotFound)
		}
		return nil, nil
	}
	out := make([]string, 0, len(set))
	for e := range set {
		out = append(out, e)
	}
	sort.Strings(out)
	return out, nil
}

// GetUserToGroupMappings returns the groups a user is mapped to. With
// includeIndirect the reachability closure over group→group mappings is
// followed.
func (m *Manager) GetUserToGroupMappings(user string, includeIndirect bool) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.graph.ContainsLeaf(user) {
		if m.strict {
			return nil, fmt.Errorf("user %q: %w", user, ErrNotFound)
		}
		return nil, nil
	}
	if !includeIndirect {
		groups := m.graph.Successors(user)
		sort.Strings(groups)
		return groups, nil
	}
	return m.reachableGroups(user), nil
}

// GetGroupToUserMappings returns the users mapped to a group. With
// includeIndirect users reaching the group through group chains are included.
func (m *Manager) GetGroupToUserMappings(group string, includeIndirect bool) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.graph.ContainsNonLeaf(group) {
		if m.strict {
			return nil, fmt.Errorf("group %q: %w", group, ErrNotFound)
		}
		return nil, nil
	}
	var users []string
	if !includeIndirect {
		for _, v := range m.graph.Predecessors(group) {
			if m.graph.ContainsLeaf(v) {
				users = append(users, v)
			}
		}
	} else {
		m.graph.TraverseReverse(group, true, func(v string) bool {
			if m.graph.ContainsLeaf(v) {
				users = append(users, v)
			}
			return true
		})
	}
	sort.Strings(users)
	return users, nil
}

// GetGroupToGroupMappings returns the groups a group is mapped to, optionally
// following the reachability closure
func (m *Manager) GetGroupToGroupMappings(group string, includeIndirect bool) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.graph.ContainsNonLeaf(group) {
		if m.strict {
			return nil, fmt.Errorf("group %q: %w", group, ErrNotFound)
		}
		return nil, nil
	}
	if !includeIndirect {
		groups := m.graph.Successors(group)
		sort.Strings(groups)
		return groups, nil
	}
	return m.reachableGroups(group), nil
}

// GetGroupToGroupReverseMappings returns the groups mapped to a group,
// optionally following the reverse closure
func (m *Manager) GetGroupToGroupReverseMappings(group string, includeIndirect bool) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.graph.ContainsNonLeaf(group) {
		if m.strict {
			return nil, fmt.Errorf("group %q: %w", group, ErrNotFound)
		}
		return nil, nil
	}
	var groups []string
	if !includeIndirect {
		for _, v := range m.graph.Predecessors(group) {
			if m.graph.ContainsNonLeaf(v) {
				groups = append(groups, v)
			}
		}
	} else {
		m.graph.TraverseReverse(group, false, func(v string) bool {
			groups = append(groups, v)
			return true
		})
	}
	sort.Strings(groups)
	return groups, nil
}

// GetUserToComponentAccessMappings returns a user's direct component access
// mappings
func (m *Manager) GetUserToComponentAccessMappings(user string) ([]ComponentAccess, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.graph.ContainsLeaf(user) {
		if m.strict {
			return nil, fmt.Errorf("user %q: %w", user, ErrNotFound)
		}
		return nil, nil
	}
	return sortedComponents(m.userComponents[user]), nil
}

// GetGroupToComponentAccessMappings returns a group's direct component
// access mappings
func (m *Manager) GetGroupToComponentAccessMappings(group string) ([]ComponentAccess, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.graph.ContainsNonLeaf(group) {
		if m.strict {
			return nil, fmt.Errorf("group %q: %w", group, ErrNotFound)
		}
		return nil, nil
	}
	return sortedComponents(m.grpComponents[group]), nil
}

// GetUserToEntityMappings returns a user's direct entity mappings, optionally
// filtered to one entity type
func (m *Manager) GetUserToEntityMappings(user, entityType string) ([]EntityRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.graph.ContainsLeaf(user) {
		if m.strict {
			return nil, fmt.Errorf("user %q: %w", user, ErrNotFound)
		}
		return nil, nil
	}
	return sortedEntities(m.userEntities[user], entityType), nil
}

// GetGroupToEntityMappings returns a group's direct entity mappings,
// optionally filtered to one entity type
func (m *Manager) GetGroupToEntityMappings(group, entityType string) ([]EntityRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.graph.ContainsNonLeaf(group) {
		if m.strict {
			return nil, fmt.Errorf("group %q: %w", group, ErrNotFound)
		}
		return nil, nil
	}
	return sortedEntities(m.grpEntities[group], entityType), nil
}

// HasAccessToComponent reports whether a user holds an access level on a
// component, directly or through any reachable group
func (m *Manager) HasAccessToComponent(user, component, accessLevel string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.graph.ContainsLeaf(user) {
		if m.strict {
			return false, fmt.Errorf("user %q: %w", user, ErrNotFound)
		}
		return false, nil
	}
	ca := ComponentAccess{Component: component, Access: accessLevel}
	if _, ok := m.userComponents[user][ca]; ok {
		return true, nil
	}
	found := false
	m.graph.TraverseForward(user, func(group string) bool {
		if _, ok := m.grpComponents[group][ca]; ok {
			found = true
			return false
		}
		return true
	})
	return found, nil
}

// GroupHasAccessToComponent reports whether a group holds an access level on
// a component, directly or through any reachable group
func (m *Manager) GroupHasAccessToComponent(group, component, accessLevel string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.graph.ContainsNonLeaf(group) {
		if m.strict {
			return false, fmt.Errorf("group %q: %w", group, ErrNotFound)
		}
		return false, nil
	}
	ca := ComponentAccess{Component: component, Access: accessLevel}
	if _, ok := m.grpComponents[group][ca]; ok {
		return true, nil
	}
	found := false
	m.graph.TraverseForward(group, func(g string) bool {
		if _, ok := m.grpComponents[g][ca]; ok {
			found = true
			return false
		}
		return true
	})
	return found, nil
}

// HasAccessToEntity reports whether a user is mapped to an entity, directly
// or through any reachable group
func (m *Manager) HasAccessToEntity(user, entityType, entity string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.graph.ContainsLeaf(user) {
		if m.strict {
			return false, fmt.Errorf("user %q: %w", user, ErrNotFound)
		}
		return false, nil
	}
	ref := EntityRef{EntityType: entityType, Entity: entity}
	if _, ok := m.userEntities[user][ref]; ok {
		return true, nil
	}
	found := false
	m.graph.TraverseForward(user, func(group string) bool {
		if _, ok := m.grpEntities[group][ref]; ok {
			found = true
			return false
		}
		return true
	})
	return found, nil
}

// GroupHasAccessToEntity reports whether a group is mapped to an entity,
// directly or through any reachable group
func (m *Manager) GroupHasAccessToEntity(group, entityType, entity string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.graph.ContainsNonLeaf(group) {
		if m.strict {
			return false, fmt.Errorf("group %q: %w", group, ErrNotFound)
		}
		return false, nil
	}
	ref := EntityRef{EntityType: entityType, Entity: entity}
	if _, ok := m.grpEntities[group][ref]; ok {
		return true, nil
	}
	found := false
	m.graph.TraverseForward(group, func(g string) bool {
		if _, ok := m.grpEntities[g][ref]; ok {
			found = true
			return false
		}
		return true
	})
	return found, nil
}

// ComponentsAccessibleByUser unions the user's direct component mappings
// with those of every reachable group
func (m *Manager) ComponentsAccessibleByUser(user string) ([]ComponentAccess, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.graph.ContainsLeaf(user) {
		if m.strict {
			return nil, fmt.Errorf("user %q: %w", user, ErrNotFound)
		}
		return nil, nil
	}
	union := make(map[ComponentAccess]struct{})
	for ca := range m.userComponents[user] {
		union[ca] = struct{}{}
	}
	m.graph.TraverseForward(user, func(group string) bool {
		for ca := range m.grpComponents[group] {
			union[ca] = struct{}{}
		}
		return true
	})
	return sortedComponents(union), nil
}

// ComponentsAccessibleByGroup unions the group's direct component mappings
// with those of every reachable group
func (m *Manager) ComponentsAccessibleByGroup(group string) ([]ComponentAccess, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.graph.ContainsNonLeaf(group) {
		if m.strict {
			return nil, fmt.Errorf("group %q: %w", group, ErrNotFound)
		}
		return nil, nil
	}
	union := make(map[ComponentAccess]struct{})
	for ca := range m.grpComponents[group] {
		union[ca] = struct{}{}
	}
	m.graph.TraverseForward(group, func(g string) bool {
		for ca := range m.grpComponents[g] {
			union[ca] = struct{}{}
		}
		return true
	})
	return sortedComponents(union), nil
}

// EntitiesAccessibleByUser unions the user's direct entity mappings with
// those of every reachable group, optionally filtered to one entity type
func (m *Manager) EntitiesAccessibleByUser(user, entityType string) ([]EntityRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.graph.ContainsLeaf(user) {
		if m.strict {
			return nil, fmt.Errorf("user %q: %w", user, ErrNotFound)
		}
		return nil, nil
	}
	union := make(map[EntityRef]struct{})
	for ref := range m.userEntities[user] {
		union[ref] = struct{}{}
	}
	m.graph.TraverseForward(user, func(group string) bool {
		for ref := range m.grpEntities[group] {
			union[ref] = struct{}{}
		}
		return true
	})
	return sortedEntities(union, entityType), nil
}

// EntitiesAccessibleByGroup unions the group's direct entity mappings with
// those of every reachable group, optionally filtered to one entity type
func (m *Manager) EntitiesAccessibleByGroup(group, entityType string) ([]EntityRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.graph.ContainsNonLeaf(group) {
		if m.strict {
			return nil, fmt.Errorf("group %q: %w", group, ErrNotFound)
		}
		return nil, nil
	}
	union := make(map[EntityRef]struct{})
	for ref := range m.grpEntities[group] {
		union[ref] = struct{}{}
	}
	m.graph.TraverseForward(group, func(g string) bool {
		for ref := range m.grpEntities[g] {
			union[ref] = struct{}{}
		}
		return true
	})
	return sortedEntities(union, entityType), nil
}

// reachableGroups returns the forward closure of start, sorted. Caller holds
// a read lock.
func (m *Manager) reachableGroups(start string) []string {
	var groups []string
	m.graph.TraverseForward(start, func(group string) bool {
		groups = append(groups, group)
		return true
	})
	sort.Strings(groups)
	return groups
}

func sortedComponents(set map[ComponentAccess]struct{}) []ComponentAccess {
	out := make([]ComponentAccess, 0, len(set))
	for ca := range set {
		out = append(out, ca)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Component == out[j].Component {
			return out[i].Access < out[j].Access
		}
		return out[i].Component < out[j].Component
	})
	return out
}

func sortedEntities(set map[EntityRef]struct{}, entityType string) []EntityRef {
	out := make([]EntityRef, 0, len(set))
	for ref := range set {
		if entityType != "" && ref.EntityType != entityType {
			continue
		}
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityType == out[j].EntityType {
			return out[i].Entity < out[j].Entity
		}
		return out[i].EntityType < out[j].EntityType
	})
	return out
}
