package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrMalformedEvent indicates an event dictionary that does not match any of
// the defined key combinations
var ErrMalformedEvent = errors.New("malformed event")

// OccurredTimeLayout is the wire format for event occurred times: UTC with
// 100-nanosecond precision
const OccurredTimeLayout = "2006-01-02 15:04:05.0000000"

// wireEvent is the serialized dictionary form of an Event. Element fields
// are pointers so key presence survives the round trip; the set of present
// keys determines the event kind.
type wireEvent struct {
	EventID              string  `json:"eventId"`
	EventAction          string  `json:"eventAction"`
	OccurredTime         string  `json:"occurredTime"`
	HashCode             int32   `json:"hashCode"`
	EntityType           *string `json:"entityType,omitempty"`
	Entity               *string `json:"entity,omitempty"`
	User                 *string `json:"user,omitempty"`
	Group                *string `json:"group,omitempty"`
	FromGroup            *string `json:"fromGroup,omitempty"`
	ToGroup              *string `json:"toGroup,omitempty"`
	ApplicationComponent *string `json:"applicationComponent,omitempty"`
	AccessLevel          *string `json:"accessLevel,omitempty"`
}

// MarshalJSON encodes the event as its wire dictionary
func (e *Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{
		EventID:      e.ID.String(),
		EventAction:  string(e.Action),
		OccurredTime: e.OccurredTime.UTC().Format(OccurredTimeLayout),
		HashCode:     e.HashCode,
	}

	switch e.Kind {
	case KindUser:
		w.User = &e.User
	case KindGroup:
		w.Group = &e.Group
	case KindUserToGroup:
		w.User, w.Group = &e.User, &e.Group
	case KindGroupToGroup:
		w.FromGroup, w.ToGroup = &e.FromGroup, &e.ToGroup
	case KindUserToComponent:
		w.User, w.ApplicationComponent, w.AccessLevel = &e.User, &e.ApplicationComponent, &e.AccessLevel
	case KindGroupToComponent:
		w.Group, w.ApplicationComponent, w.AccessLevel = &e.Group, &e.ApplicationComponent, &e.AccessLevel
	case KindEntityType:
		w.EntityType = &e.EntityType
	case KindEntity:
		w.EntityType, w.Entity = &e.EntityType, &e.Entity
	case KindUserToEntity:
		w.EntityType, w.Entity, w.User = &e.EntityType, &e.Entity, &e.User
	case KindGroupToEntity:
		w.EntityType, w.Entity, w.Group = &e.EntityType, &e.Entity, &e.Group
	default:
		return nil, fmt.Errorf("%w: unknown event kind %q", ErrMalformedEvent, e.Kind)
	}

	return json.Marshal(w)
}

// UnmarshalJSON decodes a wire dictionary, deriving the event kind from the
// set of present element keys. Unknown keys and undefined key combinations
// are rejected with ErrMalformedEvent.
func (e *Event) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var w wireEvent
	if err := dec.Decode(&w); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	id, err := uuid.Parse(w.EventID)
	if err != nil {
		return fmt.Errorf("%w: invalid eventId %q", ErrMalformedEvent, w.EventID)
	}

	action := EventAction(w.EventAction)
	if action != ActionAdd && action != ActionRemove {
		return fmt.Errorf("%w: invalid eventAction %q", ErrMalformedEvent, w.EventAction)
	}

	occurred, err := time.ParseInLocation(OccurredTimeLayout, w.OccurredTime, time.UTC)
	if err != nil {
		return fmt.Errorf("%w: invalid occurredTime %q", ErrMalformedEvent, w.OccurredTime)
	}

	kind, err := kindFromPresence(&w)
	if err != nil {
		return err
	}

	*e = Event{
		ID:           id,
		Action:       action,
		Kind:         kind,
		OccurredTime: occurred,
		HashCode:     w.HashCode,
	}
	assign := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	assign(&e.User, w.User)
	assign(&e.Group, w.Group)
	assign(&e.FromGroup, w.FromGroup)
	assign(&e.ToGroup, w.ToGroup)
	assign(&e.ApplicationComponent, w.ApplicationComponent)
	assign(&e.AccessLevel, w.AccessLevel)
	assign(&e.EntityType, w.EntityType)
	assign(&e.Entity, w.Entity)
	return nil
}

// kindFromPresence maps the set of present element keys to an event kind
func kindFromPresence(w *wireEvent) (EventKind, error) {
	type presence struct {
		entityType, entity, user, group, fromGroup, toGroup, component, access bool
	}
	p := presence{
		entityType: w.EntityType != nil,
		entity:     w.Entity != nil,
		user:       w.User != nil,
		group:      w.Group != nil,
		fromGroup:  w.FromGroup != nil,
		toGroup:    w.ToGroup != nil,
		component:  w.ApplicationComponent != nil,
		access:     w.AccessLevel != nil,
	}

	switch p {
	case presence{entityType: true}:
		return KindEntityType, nil
	case presence{entityType: true, entity: true}:
		return KindEntity, nil
	case presence{entityType: true, entity: true, user: true}:
		return KindUserToEntity, nil
	case presence{entityType: true, entity: true, group: true}:
		return KindGroupToEntity, nil
	case presence{user: true}:
		return KindUser, nil
	case presence{user: true, group: true}:
		return KindUserToGroup, nil
	case presence{user: true, component: true, access: true}:
		return KindUserToComponent, nil
	case presence{group: true}:
		return KindGroup, nil
	case presence{group: true, component: true, access: true}:
		return KindGroupToComponent, nil
	case presence{fromGroup: true, toGroup: true}:
		return KindGroupToGroup, nil
	}
	return "", fmt.Errorf("%w: undefined key combination", ErrMalformedEvent)
}

// MarshalEvents encodes a batch as a JSON array in order
func MarshalEvents(events []*Event) ([]byte, error) {
	return json.Marshal(events)
}

// UnmarshalEvents decodes a JSON array of events, preserving order
func UnmarshalEvents(data []byte) ([]*Event, error) {
	var events []*Event
	if err := json.Unmarshal(data, &events); err != nil {
		if errors.Is(err, ErrMalformedEvent) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return events, nil
}

// persistedWire carries an event together with its log position for the
// hash-range read surface used by split backfills
type persistedWire struct {
	Event               json.RawMessage `json:"event"`
	TransactionTime     int64           `json:"transactionTime"` // unix nanoseconds
	TransactionSequence int             `json:"transactionSequence"`
}

// MarshalPersistedEvents encodes a batch with log positions
func MarshalPersistedEvents(events []PersistedEvent) ([]byte, error) {
	out := make([]persistedWire, len(events))
	for i, pe := range events {
		raw, err := json.Marshal(pe.Event)
		if err != nil {
			return nil, err
		}
		out[i] = persistedWire{
			Event:               raw,
			TransactionTime:     pe.Position.TransactionTime.UnixNano(),
			TransactionSequence: pe.Position.TransactionSequence,
		}
	}
	return json.Marshal(out)
}

// UnmarshalPersistedEvents decodes a batch with log positions
func UnmarshalPersistedEvents(data []byte) ([]PersistedEvent, error) {
	var in []persistedWire
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	out := make([]PersistedEvent, len(in))
	for i, w := range in {
		var ev Event
		if err := json.Unmarshal(w.Event, &ev); err != nil {
			return nil, err
		}
		out[i] = PersistedEvent{
			Event: &ev,
			Position: EventPosition{
				TransactionTime:     time.Unix(0, w.TransactionTime).UTC(),
				TransactionSequence: w.TransactionSequence,
			},
		}
	}
	return out, nil
}
