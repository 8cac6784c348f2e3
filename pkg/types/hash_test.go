package types

import (
	"hash/fnv"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestHashElementContract tests the cross-version hash contract: FNV-1a over
// the UTF-8 bytes with the sign bit masked off
func TestHashElementContract(t *testing.T) {
	// The empty string folds the FNV-1a offset basis
	assert.Equal(t, int32(18652613), HashElement(""))
	assert.Equal(t, int32(1678518572), HashElement("a"))

	for _, element := range []string{"alice", "admins", "Orders", "ünïcode", "group/with/slashes"} {
		h := fnv.New32a()
		h.Write([]byte(element))
		want := int32(h.Sum32() & 0x7fffffff)
		assert.Equal(t, want, HashElement(element), element)
	}
}

// TestHashElementNonNegative tests the folded hash never sets the sign bit
func TestHashElementNonNegative(t *testing.T) {
	for _, element := range []string{"", "a", "b", "carol", "warden", "x1", "x2", "x3", "costco", "zzzzzz"} {
		h := HashElement(element)
		assert.GreaterOrEqual(t, h, int32(0), element)
		assert.LessOrEqual(t, h, MaxHash, element)
	}
}

// TestStampUsesPrimaryElement tests that every event kind hashes its
// partitioning element
func TestStampUsesPrimaryElement(t *testing.T) {
	tests := []struct {
		name    string
		event   *Event
		primary string
	}{
		{name: "user", event: &Event{Kind: KindUser, User: "u"}, primary: "u"},
		{name: "user to group", event: &Event{Kind: KindUserToGroup, User: "u", Group: "g"}, primary: "u"},
		{name: "user to component", event: &Event{Kind: KindUserToComponent, User: "u", ApplicationComponent: "c"}, primary: "u"},
		{name: "user to entity", event: &Event{Kind: KindUserToEntity, User: "u", EntityType: "t", Entity: "e"}, primary: "u"},
		{name: "group", event: &Event{Kind: KindGroup, Group: "g"}, primary: "g"},
		{name: "group to component", event: &Event{Kind: KindGroupToComponent, Group: "g", ApplicationComponent: "c"}, primary: "g"},
		{name: "group to entity", event: &Event{Kind: KindGroupToEntity, Group: "g", EntityType: "t", Entity: "e"}, primary: "g"},
		{name: "group to group", event: &Event{Kind: KindGroupToGroup, FromGroup: "from", ToGroup: "to"}, primary: "from"},
		{name: "entity type", event: &Event{Kind: KindEntityType, EntityType: "t"}, primary: "t"},
		{name: "entity", event: &Event{Kind: KindEntity, EntityType: "t", Entity: "e"}, primary: "t"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.primary, tt.event.PrimaryElement())
			assert.Equal(t, HashElement(tt.primary), tt.event.Stamp().HashCode)
		})
	}
}
