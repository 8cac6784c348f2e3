package types

import (
	"time"

	"github.com/google/uuid"
)

// EventAction defines whether an event adds or removes an element
type EventAction string

const (
	ActionAdd    EventAction = "add"
	ActionRemove EventAction = "remove"
)

// EventKind identifies which part of the access model an event mutates
type EventKind string

const (
	KindUser             EventKind = "user"
	KindGroup            EventKind = "group"
	KindUserToGroup      EventKind = "userToGroup"
	KindGroupToGroup     EventKind = "groupToGroup"
	KindUserToComponent  EventKind = "userToApplicationComponent"
	KindGroupToComponent EventKind = "groupToApplicationComponent"
	KindEntityType       EventKind = "entityType"
	KindEntity           EventKind = "entity"
	KindUserToEntity     EventKind = "userToEntity"
	KindGroupToEntity    EventKind = "groupToEntity"
)

// EventKinds lists every event kind in buffer queue order
var EventKinds = []EventKind{
	KindUser,
	KindGroup,
	KindUserToGroup,
	KindGroupToGroup,
	KindUserToComponent,
	KindGroupToComponent,
	KindEntityType,
	KindEntity,
	KindUserToEntity,
	KindGroupToEntity,
}

// DataElementKind is a partitioning dimension of the sharded namespace
type DataElementKind string

const (
	ElementUser         DataElementKind = "user"
	ElementGroup        DataElementKind = "group"
	ElementGroupToGroup DataElementKind = "groupToGroup"
)

// DataElementKinds lists the three partitioning dimensions
var DataElementKinds = []DataElementKind{ElementUser, ElementGroup, ElementGroupToGroup}

// Event is a durable record of a single state mutation, replayable into an
// access manager. The populated element fields depend on Kind; see the wire
// codec in event.go for the authoritative field combinations.
type Event struct {
	ID           uuid.UUID
	Action       EventAction
	Kind         EventKind
	OccurredTime time.Time
	HashCode     int32

	User                 string
	Group                string
	FromGroup            string
	ToGroup              string
	ApplicationComponent string
	AccessLevel          string
	EntityType           string
	Entity               string
}

// NewEvent creates an event with a fresh id, the current UTC occurred time
// truncated to wire precision, and the hash of its primary element
func NewEvent(action EventAction, kind EventKind) *Event {
	return &Event{
		ID:           uuid.New(),
		Action:       action,
		Kind:         kind,
		OccurredTime: time.Now().UTC().Truncate(100 * time.Nanosecond),
	}
}

// PrimaryElement returns the element whose hash partitions this event
func (e *Event) PrimaryElement() string {
	switch e.Kind {
	case KindUser, KindUserToGroup, KindUserToComponent, KindUserToEntity:
		return e.User
	case KindGroup, KindGroupToComponent, KindGroupToEntity:
		return e.Group
	case KindGroupToGroup:
		return e.FromGroup
	case KindEntityType, KindEntity:
		return e.EntityType
	}
	return ""
}

// Dimension returns the partitioning dimension this event belongs to, or ""
// for entity-type and entity events, which are broadcast to every shard
func (e *Event) Dimension() DataElementKind {
	switch e.Kind {
	case KindUser, KindUserToGroup, KindUserToComponent, KindUserToEntity:
		return ElementUser
	case KindGroup, KindGroupToComponent, KindGroupToEntity:
		return ElementGroup
	case KindGroupToGroup:
		return ElementGroupToGroup
	}
	return ""
}

// Stamp fills in HashCode from the primary element and returns the event
func (e *Event) Stamp() *Event {
	e.HashCode = HashElement(e.PrimaryElement())
	return e
}

// EventPosition locates an event in the durable log total order
type EventPosition struct {
	TransactionTime     time.Time
	TransactionSequence int
}

// Before reports whether p is strictly earlier than other in log order
func (p EventPosition) Before(other EventPosition) bool {
	if p.TransactionTime.Equal(other.TransactionTime) {
		return p.TransactionSequence < other.TransactionSequence
	}
	return p.TransactionTime.Before(other.TransactionTime)
}

// PersistedEvent pairs an event with its position in the durable log
type PersistedEvent struct {
	Event    *Event
	Position EventPosition
}
