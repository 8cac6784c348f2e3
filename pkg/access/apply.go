package access

import (
	"fmt"

	"github.com/cuemby/warden/pkg/types"
)

// ApplyEvent replays a single event into the model. Replay is idempotent and
// dependency-free regardless of the manager's mode: a valid log carries its
// own prepended dependency events, and shards replaying interleaved logs may
// see them out of order. The only surfaced failure is a group mapping that
// would create a cycle, which a well-formed log never contains.
func (m *Manager) ApplyEvent(ev *types.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Kind {
	case types.KindUser:
		if ev.Action == types.ActionAdd {
			m.addUser(ev.User)
		} else {
			m.removeUser(ev.User)
		}

	case types.KindGroup:
		if ev.Action == types.ActionAdd {
			m.addGroup(ev.Group)
		} else {
			m.removeGroup(ev.Group)
		}

	case types.KindUserToGroup:
		if ev.Action == types.ActionAdd {
			m.addUser(ev.User)
			m.addGroup(ev.Group)
			if err := m.graph.AddEdge(ev.User, ev.Group); err != nil {
				return fmt.Errorf("apply %s: %w", ev.ID, err)
			}
		} else {
			m.graph.RemoveEdge(ev.User, ev.Group)
		}

	case types.KindGroupToGroup:
		if ev.Action == types.ActionAdd {
			m.addGroup(ev.FromGroup)
			m.addGroup(ev.ToGroup)
			if err := m.graph.AddEdge(ev.FromGroup, ev.ToGroup); err != nil {
				return fmt.Errorf("apply %s: %w", ev.ID, err)
			}
		} else {
			m.graph.RemoveEdge(ev.FromGroup, ev.ToGroup)
		}

	case types.KindUserToComponent:
		ca := ComponentAccess{Component: ev.ApplicationComponent, Access: ev.AccessLevel}
		if ev.Action == types.ActionAdd {
			m.addUser(ev.User)
			m.addUserComponent(ev.User, ca)
		} else {
			m.removeUserComponent(ev.User, ca)
		}

	case types.KindGroupToComponent:
		ca := ComponentAccess{Component: ev.ApplicationComponent, Access: ev.AccessLevel}
		if ev.Action == types.ActionAdd {
			m.addGroup(ev.Group)
			m.addGroupComponent(ev.Group, ca)
		} else {
			m.removeGroupComponent(ev.Group, ca)
		}

	case types.KindEntityType:
		if ev.Action == types.ActionAdd {
			if _, ok := m.entities[ev.EntityType]; !ok {
				m.addEntityType(ev.EntityType)
			}
		} else {
			m.removeEntityType(ev.EntityType)
		}

	case types.KindEntity:
		if ev.Action == types.ActionAdd {
			m.addEntity(ev.EntityType, ev.Entity)
		} else {
			m.removeEntity(ev.EntityType, ev.Entity)
		}

	case types.KindUserToEntity:
		ref := EntityRef{EntityType: ev.EntityType, Entity: ev.Entity}
		if ev.Action == types.ActionAdd {
			m.addUser(ev.User)
			m.addEntity(ev.EntityType, ev.Entity)
			m.addUserEntity(ev.User, ref)
		} else {
			m.removeUserEntity(ev.User, ref)
		}

	case types.KindGroupToEntity:
		ref := EntityRef{EntityType: ev.EntityType, Entity: ev.Entity}
		if ev.Action == types.ActionAdd {
			m.addGroup(ev.Group)
			m.addEntity(ev.EntityType, ev.Entity)
			m.addGroupEntity(ev.Group, ref)
		} else {
			m.removeGroupEntity(ev.Group, ref)
		}

	default:
		return fmt.Errorf("apply %s: %w: unknown kind %q", ev.ID, types.ErrMalformedEvent, ev.Kind)
	}
	return nil
}

// ApplyEvents replays a batch in order, stopping at the first failure
func (m *Manager) ApplyEvents(events []*types.Event) error {
	for _, ev := range events {
		if err := m.ApplyEvent(ev); err != nil {
			return err
		}
	}
	return nil
}
