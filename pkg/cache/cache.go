package cache

import (
	"container/list"
	"errors"
	"sync"

	"github.com/cuemby/warden/pkg/metrics"
	"github.com/cuemby/warden/pkg/types"
	"github.com/google/uuid"
)

// ErrEventNotCached indicates the prior event id has been evicted (or never
// cached); the caller falls back to the event store
var ErrEventNotCached = errors.New("event not cached")

// EventCache is a bounded ring of the most recent persisted events, indexed
// by event id, letting readers tail the log without touching the store.
// Readers take the read lock and do not block each other; the writer
// appending a persisted batch takes the write lock.
type EventCache struct {
	mu       sync.RWMutex
	capacity int
	events   *list.List
	index    map[uuid.UUID]*list.Element
}

// New creates a cache holding at most capacity events
func New(capacity int) *EventCache {
	return &EventCache{
		capacity: capacity,
		events:   list.New(),
		index:    make(map[uuid.UUID]*list.Element),
	}
}

// Append appends a persisted batch in order, evicting the oldest events to
// respect capacity
func (c *EventCache) Append(events []*types.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ev := range events {
		el := c.events.PushBack(ev)
		c.index[ev.ID] = el
		if c.events.Len() > c.capacity {
			oldest := c.events.Front()
			c.events.Remove(oldest)
			delete(c.index, oldest.Value.(*types.Event).ID)
		}
	}
}

// EventsSince returns all cached events strictly after priorID, in order.
// Fails with ErrEventNotCached when priorID is not in the cache.
func (c *EventCache) EventsSince(priorID uuid.UUID) ([]*types.Event, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	el, ok := c.index[priorID]
	if !ok {
		metrics.CacheMissesTotal.Inc()
		return nil, ErrEventNotCached
	}
	metrics.CacheHitsTotal.Inc()

	var out []*types.Event
	for el = el.Next(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*types.Event))
	}
	return out, nil
}

// Latest returns the id of the most recent cached event, or uuid.Nil when
// the cache is empty
func (c *EventCache) Latest() uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	back := c.events.Back()
	if back == nil {
		return uuid.Nil
	}
	return back.Value.(*types.Event).ID
}

// Len returns the number of cached events
func (c *EventCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.events.Len()
}
