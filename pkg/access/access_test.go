package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/warden/pkg/types"
)

// TestDirectComponentAccess tests a user granted an access level on a
// component directly
func TestDirectComponentAccess(t *testing.T) {
	m := NewManager()
	_, _, err := m.AddUser("alice")
	require.NoError(t, err)
	_, _, err = m.AddUserToComponentAccess("alice", "Orders", "View")
	require.NoError(t, err)

	ok, err := m.HasAccessToComponent("alice", "Orders", "View")
	require.NoError(t, err)
	assert.True(t, ok)

	// The access level is part of the grant, not just the component
	ok, err = m.HasAccessToComponent("alice", "Orders", "Edit")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.HasAccessToComponent("alice", "Billing", "View")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestIndirectAccessThroughGroupChain tests access inherited across a chain
// of group mappings
func TestIndirectAccessThroughGroupChain(t *testing.T) {
	m := NewManager()
	_, _, err := m.AddUserToGroupMapping("alice", "interns")
	require.NoError(t, err)
	_, _, err = m.AddGroupToGroupMapping("interns", "staff")
	require.NoError(t, err)
	_, _, err = m.AddGroupToGroupMapping("staff", "everyone")
	require.NoError(t, err)
	_, _, err = m.AddGroupToComponentAccess("everyone", "Wiki", "View")
	require.NoError(t, err)

	ok, err := m.HasAccessToComponent("alice", "Wiki", "View")
	require.NoError(t, err)
	assert.True(t, ok)

	// Indirect group membership follows the full closure
	groups, err := m.GetUserToGroupMappings("alice", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"everyone", "interns", "staff"}, groups)

	direct, err := m.GetUserToGroupMappings("alice", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"interns"}, direct)

	// The reverse query finds the user from the far end of the chain
	users, err := m.GetGroupToUserMappings("everyone", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, users)

	users, err = m.GetGroupToUserMappings("everyone", false)
	require.NoError(t, err)
	assert.Empty(t, users)
}

// TestIndirectEntityAccess tests entity access inherited through a group
func TestIndirectEntityAccess(t *testing.T) {
	m := NewManager()
	_, _, err := m.AddUserToGroupMapping("bob", "billing")
	require.NoError(t, err)
	_, _, err = m.AddGroupToEntity("billing", "invoice", "inv-7")
	require.NoError(t, err)

	ok, err := m.HasAccessToEntity("bob", "invoice", "inv-7")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.HasAccessToEntity("bob", "invoice", "inv-8")
	require.NoError(t, err)
	assert.False(t, ok)

	refs, err := m.EntitiesAccessibleByUser("bob", "")
	require.NoError(t, err)
	assert.Equal(t, []EntityRef{{EntityType: "invoice", Entity: "inv-7"}}, refs)
}

// TestCycleRejectionLeavesStateUnchanged tests that a cyclic group mapping
// fails with ErrCycle and rolls back any prepended group creations
func TestCycleRejectionLeavesStateUnchanged(t *testing.T) {
	m := NewManager()
	_, _, err := m.AddGroupToGroupMapping("a", "b")
	require.NoError(t, err)
	_, _, err = m.AddGroupToGroupMapping("b", "c")
	require.NoError(t, err)

	_, _, err = m.AddGroupToGroupMapping("c", "a")
	assert.ErrorIs(t, err, ErrCycle)

	mappings, err := m.GetGroupToGroupMappings("c", false)
	require.NoError(t, err)
	assert.Empty(t, mappings)
	assert.Equal(t, []string{"a", "b", "c"}, m.Groups())

	// A rejected self loop that would have created the group leaves no trace
	_, _, err = m.AddGroupToGroupMapping("ghost", "ghost")
	assert.ErrorIs(t, err, ErrCycle)
	assert.False(t, m.ContainsGroup("ghost"))
}

// TestDependencyFreeMappingPrependsCreations tests that mapping absent
// elements creates them first, with the mapping event last
func TestDependencyFreeMappingPrependsCreations(t *testing.T) {
	m := NewManager()
	outcome, events, err := m.AddUserToGroupMapping("carol", "ops")
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)

	require.Len(t, events, 3)
	assert.Equal(t, types.KindUser, events[0].Kind)
	assert.Equal(t, "carol", events[0].User)
	assert.Equal(t, types.KindGroup, events[1].Kind)
	assert.Equal(t, "ops", events[1].Group)
	assert.Equal(t, types.KindUserToGroup, events[2].Kind)

	assert.True(t, m.ContainsUser("carol"))
	assert.True(t, m.ContainsGroup("ops"))

	// Mapping between existing elements emits only the mapping event
	_, events, err = m.AddUserToGroupMapping("carol", "ops2")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, types.KindGroup, events[0].Kind)
}

// TestRemoveUserCascades tests that removing a user emits removes for every
// referencing mapping before the user remove itself
func TestRemoveUserCascades(t *testing.T) {
	m := NewManager()
	_, _, err := m.AddUserToGroupMapping("dave", "staff")
	require.NoError(t, err)
	_, _, err = m.AddUserToComponentAccess("dave", "Orders", "Edit")
	require.NoError(t, err)
	_, _, err = m.AddUserToEntity("dave", "invoice", "inv-1")
	require.NoError(t, err)

	outcome, events, err := m.RemoveUser("dave")
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)

	require.Len(t, events, 4)
	for _, ev := range events {
		assert.Equal(t, types.ActionRemove, ev.Action)
	}
	last := events[len(events)-1]
	assert.Equal(t, types.KindUser, last.Kind)
	assert.Equal(t, "dave", last.User)

	assert.False(t, m.ContainsUser("dave"))
	users, err := m.GetGroupToUserMappings("staff", false)
	require.NoError(t, err)
	assert.Empty(t, users)

	// The group and the entity survive the cascade
	assert.True(t, m.ContainsGroup("staff"))
	assert.True(t, m.ContainsEntity("invoice", "inv-1"))
}

// TestRemoveEntityTypeCascades tests that removing an entity type removes its
// entities and every mapping referencing them
func TestRemoveEntityTypeCascades(t *testing.T) {
	m := NewManager()
	_, _, err := m.AddUserToEntity("erin", "invoice", "inv-1")
	require.NoError(t, err)
	_, _, err = m.AddGroupToEntity("billing", "invoice", "inv-2")
	require.NoError(t, err)
	_, _, err = m.AddUserToEntity("erin", "report", "r-1")
	require.NoError(t, err)

	_, events, err := m.RemoveEntityType("invoice")
	require.NoError(t, err)

	// Two mapping removes, two entity removes, then the type remove
	require.Len(t, events, 5)
	assert.Equal(t, types.KindEntityType, events[len(events)-1].Kind)

	assert.False(t, m.ContainsEntityType("invoice"))
	ok, err := m.HasAccessToEntity("erin", "invoice", "inv-1")
	require.NoError(t, err)
	assert.False(t, ok)

	// The other type is untouched
	ok, err = m.HasAccessToEntity("erin", "report", "r-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestIdempotentAddAndInverseRemove tests the no-op outcomes and that a
// remove undoes its add exactly
func TestIdempotentAddAndInverseRemove(t *testing.T) {
	m := NewManager()

	outcome, events, err := m.AddUser("frank")
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)
	assert.Len(t, events, 1)

	outcome, events, err = m.AddUser("frank")
	require.NoError(t, err)
	assert.Equal(t, NoOpAlreadyPresent, outcome)
	assert.Empty(t, events)

	outcome, _, err = m.RemoveUser("frank")
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)
	assert.False(t, m.ContainsUser("frank"))

	outcome, events, err = m.RemoveUser("frank")
	require.NoError(t, err)
	assert.Equal(t, NoOpAbsent, outcome)
	assert.Empty(t, events)
}

// TestStrictModeSurfacesConflicts tests strict mode errors for duplicates,
// absences, and missing dependencies
func TestStrictModeSurfacesConflicts(t *testing.T) {
	m := NewManager(WithStrictMode())
	require.True(t, m.Strict())

	_, _, err := m.AddUser("gina")
	require.NoError(t, err)

	_, _, err = m.AddUser("gina")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, _, err = m.RemoveUser("nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	// No dependency prepending: the group must exist first
	_, _, err = m.AddUserToGroupMapping("gina", "ops")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, m.ContainsGroup("ops"))

	_, _, err = m.AddGroup("ops")
	require.NoError(t, err)
	_, _, err = m.AddUserToGroupMapping("gina", "ops")
	assert.NoError(t, err)

	// Cycles are rejected in strict mode too
	_, _, err = m.AddGroup("ops2")
	require.NoError(t, err)
	_, _, err = m.AddGroupToGroupMapping("ops", "ops2")
	require.NoError(t, err)
	_, _, err = m.AddGroupToGroupMapping("ops2", "ops")
	assert.ErrorIs(t, err, ErrCycle)
}

// TestReplayReproducesState tests that replaying the emitted event log into a
// fresh manager reproduces every query result
func TestReplayReproducesState(t *testing.T) {
	m := NewManager()
	var log []*types.Event

	record := func(events []*types.Event, err error) {
		require.NoError(t, err)
		log = append(log, events...)
	}

	_, evs, err := m.AddUserToGroupMapping("alice", "staff")
	record(evs, err)
	_, evs, err = m.AddUserToGroupMapping("bob", "staff")
	record(evs, err)
	_, evs, err = m.AddGroupToGroupMapping("staff", "everyone")
	record(evs, err)
	_, evs, err = m.AddGroupToComponentAccess("everyone", "Wiki", "View")
	record(evs, err)
	_, evs, err = m.AddUserToComponentAccess("alice", "Orders", "Edit")
	record(evs, err)
	_, evs, err = m.AddUserToEntity("bob", "invoice", "inv-7")
	record(evs, err)
	_, evs, err = m.RemoveUserToGroupMapping("bob", "staff")
	record(evs, err)
	_, evs, err = m.RemoveUser("alice")
	record(evs, err)
	_, evs, err = m.AddUser("alice")
	record(evs, err)

	replica := NewManager()
	require.NoError(t, replica.ApplyEvents(log))

	assert.Equal(t, m.Users(), replica.Users())
	assert.Equal(t, m.Groups(), replica.Groups())
	assert.Equal(t, m.EntityTypes(), replica.EntityTypes())

	for _, user := range m.Users() {
		want, err := m.GetUserToGroupMappings(user, true)
		require.NoError(t, err)
		got, err := replica.GetUserToGroupMappings(user, true)
		require.NoError(t, err)
		assert.Equal(t, want, got, user)

		wantCA, err := m.ComponentsAccessibleByUser(user)
		require.NoError(t, err)
		gotCA, err := replica.ComponentsAccessibleByUser(user)
		require.NoError(t, err)
		assert.Equal(t, wantCA, gotCA, user)

		wantRefs, err := m.EntitiesAccessibleByUser(user, "")
		require.NoError(t, err)
		gotRefs, err := replica.EntitiesAccessibleByUser(user, "")
		require.NoError(t, err)
		assert.Equal(t, wantRefs, gotRefs, user)
	}
	for _, group := range m.Groups() {
		want, err := m.GetGroupToUserMappings(group, true)
		require.NoError(t, err)
		got, err := replica.GetGroupToUserMappings(group, true)
		require.NoError(t, err)
		assert.Equal(t, want, got, group)
	}
}

// TestApplyEventIsIdempotent tests that replaying the same event twice leaves
// the model unchanged
func TestApplyEventIsIdempotent(t *testing.T) {
	m := NewManager()
	_, events, err := m.AddUserToGroupMapping("alice", "staff")
	require.NoError(t, err)

	replica := NewManager()
	require.NoError(t, replica.ApplyEvents(events))
	require.NoError(t, replica.ApplyEvents(events))

	assert.Equal(t, []string{"alice"}, replica.Users())
	groups, err := replica.GetUserToGroupMappings("alice", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"staff"}, groups)
}

// TestApplyEventSurfacesCycles tests that replay rejects only cyclic group
// mappings
func TestApplyEventSurfacesCycles(t *testing.T) {
	m := NewManager()
	_, evs1, err := m.AddGroupToGroupMapping("a", "b")
	require.NoError(t, err)

	replica := NewManager()
	require.NoError(t, replica.ApplyEvents(evs1))

	back := types.NewEvent(types.ActionAdd, types.KindGroupToGroup)
	back.FromGroup, back.ToGroup = "b", "a"
	assert.ErrorIs(t, replica.ApplyEvent(back.Stamp()), ErrCycle)
}

// TestQueryFilters tests entity type filtering and sorted output
func TestQueryFilters(t *testing.T) {
	m := NewManager()
	_, _, err := m.AddUserToEntity("alice", "invoice", "inv-2")
	require.NoError(t, err)
	_, _, err = m.AddUserToEntity("alice", "invoice", "inv-1")
	require.NoError(t, err)
	_, _, err = m.AddUserToEntity("alice", "report", "r-1")
	require.NoError(t, err)

	all, err := m.GetUserToEntityMappings("alice", "")
	require.NoError(t, err)
	assert.Equal(t, []EntityRef{
		{EntityType: "invoice", Entity: "inv-1"},
		{EntityType: "invoice", Entity: "inv-2"},
		{EntityType: "report", Entity: "r-1"},
	}, all)

	invoices, err := m.GetUserToEntityMappings("alice", "invoice")
	require.NoError(t, err)
	assert.Len(t, invoices, 2)

	entities, err := m.Entities("invoice")
	require.NoError(t, err)
	assert.Equal(t, []string{"inv-1", "inv-2"}, entities)
}
