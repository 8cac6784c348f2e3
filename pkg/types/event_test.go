package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wireTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.ParseInLocation(OccurredTimeLayout, s, time.UTC)
	require.NoError(t, err)
	return ts
}

// TestEventRoundTrip tests that serialization preserves every field,
// including the exact occurredTime string, for each kind
func TestEventRoundTrip(t *testing.T) {
	occurred := wireTime(t, "2026-03-14 09:26:53.5897932")

	tests := []struct {
		name  string
		event Event
	}{
		{name: "user", event: Event{Kind: KindUser, User: "alice"}},
		{name: "group", event: Event{Kind: KindGroup, Group: "admins"}},
		{name: "user to group", event: Event{Kind: KindUserToGroup, User: "alice", Group: "admins"}},
		{name: "group to group", event: Event{Kind: KindGroupToGroup, FromGroup: "admins", ToGroup: "staff"}},
		{name: "user to component", event: Event{Kind: KindUserToComponent, User: "alice", ApplicationComponent: "Orders", AccessLevel: "View"}},
		{name: "group to component", event: Event{Kind: KindGroupToComponent, Group: "staff", ApplicationComponent: "Orders", AccessLevel: "Edit"}},
		{name: "entity type", event: Event{Kind: KindEntityType, EntityType: "invoice"}},
		{name: "entity", event: Event{Kind: KindEntity, EntityType: "invoice", Entity: "inv-7"}},
		{name: "user to entity", event: Event{Kind: KindUserToEntity, User: "alice", EntityType: "invoice", Entity: "inv-7"}},
		{name: "group to entity", event: Event{Kind: KindGroupToEntity, Group: "staff", EntityType: "invoice", Entity: "inv-7"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := tt.event
			ev.ID = uuid.New()
			ev.Action = ActionAdd
			ev.OccurredTime = occurred
			ev.Stamp()

			data, err := json.Marshal(&ev)
			require.NoError(t, err)
			assert.Contains(t, string(data), `"occurredTime":"2026-03-14 09:26:53.5897932"`)

			var back Event
			require.NoError(t, json.Unmarshal(data, &back))
			assert.Equal(t, ev, back)
		})
	}
}

// TestUnmarshalRejectsMalformedEvents tests the undefined key combinations
// and invalid scalar fields
func TestUnmarshalRejectsMalformedEvents(t *testing.T) {
	id := uuid.New().String()
	head := `"eventId":"` + id + `","eventAction":"add","occurredTime":"2026-03-14 09:26:53.5897932","hashCode":7`

	tests := []struct {
		name string
		body string
	}{
		{name: "no element keys", body: `{` + head + `}`},
		{name: "user and fromGroup", body: `{` + head + `,"user":"u","fromGroup":"g"}`},
		{name: "fromGroup alone", body: `{` + head + `,"fromGroup":"g"}`},
		{name: "entity without type", body: `{` + head + `,"entity":"e"}`},
		{name: "component without access", body: `{` + head + `,"user":"u","applicationComponent":"c"}`},
		{name: "group and user and component", body: `{` + head + `,"user":"u","group":"g","applicationComponent":"c","accessLevel":"a"}`},
		{name: "unknown key", body: `{` + head + `,"user":"u","color":"red"}`},
		{name: "bad action", body: `{"eventId":"` + id + `","eventAction":"upsert","occurredTime":"2026-03-14 09:26:53.5897932","hashCode":7,"user":"u"}`},
		{name: "bad event id", body: `{"eventId":"nope","eventAction":"add","occurredTime":"2026-03-14 09:26:53.5897932","hashCode":7,"user":"u"}`},
		{name: "bad occurred time", body: `{"eventId":"` + id + `","eventAction":"add","occurredTime":"2026-03-14T09:26:53Z","hashCode":7,"user":"u"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ev Event
			err := json.Unmarshal([]byte(tt.body), &ev)
			assert.ErrorIs(t, err, ErrMalformedEvent)
		})
	}
}

// TestKindDerivedFromPresence tests that the deserializer derives each kind
// from the present keys alone
func TestKindDerivedFromPresence(t *testing.T) {
	id := uuid.New().String()
	head := `"eventId":"` + id + `","eventAction":"remove","occurredTime":"2026-03-14 09:26:53.0000000","hashCode":0`

	tests := []struct {
		keys string
		kind EventKind
	}{
		{keys: `"user":"u"`, kind: KindUser},
		{keys: `"group":"g"`, kind: KindGroup},
		{keys: `"user":"u","group":"g"`, kind: KindUserToGroup},
		{keys: `"fromGroup":"a","toGroup":"b"`, kind: KindGroupToGroup},
		{keys: `"user":"u","applicationComponent":"c","accessLevel":"v"`, kind: KindUserToComponent},
		{keys: `"group":"g","applicationComponent":"c","accessLevel":"v"`, kind: KindGroupToComponent},
		{keys: `"entityType":"t"`, kind: KindEntityType},
		{keys: `"entityType":"t","entity":"e"`, kind: KindEntity},
		{keys: `"entityType":"t","entity":"e","user":"u"`, kind: KindUserToEntity},
		{keys: `"entityType":"t","entity":"e","group":"g"`, kind: KindGroupToEntity},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			var ev Event
			require.NoError(t, json.Unmarshal([]byte(`{`+head+`,`+tt.keys+`}`), &ev))
			assert.Equal(t, tt.kind, ev.Kind)
			assert.Equal(t, ActionRemove, ev.Action)
		})
	}
}

// TestMarshalEventsPreservesOrder tests the batch codec keeps order
func TestMarshalEventsPreservesOrder(t *testing.T) {
	var batch []*Event
	for _, user := range []string{"u1", "u2", "u3"} {
		ev := NewEvent(ActionAdd, KindUser)
		ev.User = user
		batch = append(batch, ev.Stamp())
	}

	data, err := MarshalEvents(batch)
	require.NoError(t, err)
	back, err := UnmarshalEvents(data)
	require.NoError(t, err)

	require.Len(t, back, 3)
	for i := range batch {
		assert.Equal(t, batch[i].ID, back[i].ID)
		assert.Equal(t, batch[i].User, back[i].User)
	}
}

// TestPersistedEventRoundTrip tests the range-read codec keeps log
// positions intact
func TestPersistedEventRoundTrip(t *testing.T) {
	txTime := time.Unix(0, 1700000000123456789).UTC()
	var batch []PersistedEvent
	for i, user := range []string{"u1", "u2"} {
		ev := NewEvent(ActionAdd, KindUser)
		ev.User = user
		batch = append(batch, PersistedEvent{
			Event:    ev.Stamp(),
			Position: EventPosition{TransactionTime: txTime, TransactionSequence: i},
		})
	}

	data, err := MarshalPersistedEvents(batch)
	require.NoError(t, err)
	back, err := UnmarshalPersistedEvents(data)
	require.NoError(t, err)

	require.Len(t, back, 2)
	for i := range batch {
		assert.Equal(t, batch[i].Event.ID, back[i].Event.ID)
		assert.True(t, batch[i].Position.TransactionTime.Equal(back[i].Position.TransactionTime))
		assert.Equal(t, batch[i].Position.TransactionSequence, back[i].Position.TransactionSequence)
	}
}

// TestEventPositionOrdering tests the (transactionTime, transactionSequence)
// total order
func TestEventPositionOrdering(t *testing.T) {
	base := time.Unix(100, 0).UTC()
	earlier := EventPosition{TransactionTime: base, TransactionSequence: 0}
	sameTimeLater := EventPosition{TransactionTime: base, TransactionSequence: 1}
	laterTime := EventPosition{TransactionTime: base.Add(time.Nanosecond), TransactionSequence: 0}

	assert.True(t, earlier.Before(sameTimeLater))
	assert.True(t, sameTimeLater.Before(laterTime))
	assert.False(t, sameTimeLater.Before(earlier))
	assert.False(t, earlier.Before(earlier))
}
