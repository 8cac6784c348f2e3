package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/warden/pkg/types"
	"github.com/google/uuid"
)

// MemoryEventStore is an EventStore and ConfigStore kept entirely in memory,
// for tests and ephemeral single-process deployments. It honors the same
// contract as the BoltDB store: monotonic transaction times, per-time
// sequences, and append dedup by event id.
type MemoryEventStore struct {
	mu     sync.RWMutex
	log    []types.PersistedEvent
	index  map[uuid.UUID]types.EventPosition
	config *types.ShardConfigurationSet

	lastTx  int64
	lastSeq int

	// now is the transaction clock, replaceable in tests
	now func() time.Time
}

// NewMemoryEventStore creates an empty in-memory store
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		index: make(map[uuid.UUID]types.EventPosition),
		now:   time.Now,
	}
}

// Close releases nothing; the store lives and dies with the process
func (s *MemoryEventStore) Close() error {
	return nil
}

// PersistBatch appends a batch under one transaction time, skipping ids
// already recorded
func (s *MemoryEventStore) PersistBatch(ctx context.Context, events []*types.Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txTime := s.now().UTC().UnixNano()
	if txTime < s.lastTx {
		return fmt.Errorf("%w: clock %d precedes recorded maximum %d", ErrTimeRegression, txTime, s.lastTx)
	}
	seq := 0
	if txTime == s.lastTx {
		seq = s.lastSeq + 1
	}

	for _, ev := range events {
		if _, dup := s.index[ev.ID]; dup {
			continue
		}
		pos := types.EventPosition{
			TransactionTime:     time.Unix(0, txTime).UTC(),
			TransactionSequence: seq,
		}
		s.log = append(s.log, types.PersistedEvent{Event: ev, Position: pos})
		s.index[ev.ID] = pos
		seq++
	}
	s.lastTx = txTime
	s.lastSeq = seq - 1
	return nil
}

// GetEventsAfter returns up to limit events strictly after pos in log order
func (s *MemoryEventStore) GetEventsAfter(ctx context.Context, pos types.EventPosition, limit int) ([]types.PersistedEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	i := sort.Search(len(s.log), func(i int) bool {
		return pos.Before(s.log[i].Position)
	})
	out := append([]types.PersistedEvent(nil), s.log[i:]...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetEventsInHashRange returns events of one dimension in [lo,hi] at or
// after since, plus broadcast events, in log order
func (s *MemoryEventStore) GetEventsInHashRange(ctx context.Context, kind types.DataElementKind, lo, hi int32, since time.Time, limit int) ([]types.PersistedEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.PersistedEvent
	for _, pe := range s.log {
		if pe.Position.TransactionTime.Before(since) {
			continue
		}
		dim := pe.Event.Dimension()
		if dim != "" && (dim != kind || pe.Event.HashCode < lo || pe.Event.HashCode > hi) {
			continue
		}
		out = append(out, pe)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// DeleteEventsInHashRange deletes events of one dimension in [lo,hi] older
// than the cutoff; broadcast events are kept
func (s *MemoryEventStore) DeleteEventsInHashRange(ctx context.Context, kind types.DataElementKind, lo, hi int32, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.log[:0]
	deleted := 0
	for _, pe := range s.log {
		dim := pe.Event.Dimension()
		doomed := dim == kind &&
			pe.Event.HashCode >= lo && pe.Event.HashCode <= hi &&
			pe.Position.TransactionTime.Before(before)
		if doomed {
			delete(s.index, pe.Event.ID)
			deleted++
			continue
		}
		kept = append(kept, pe)
	}
	s.log = kept
	return deleted, nil
}

// PositionOf returns the recorded log position of an event id
func (s *MemoryEventStore) PositionOf(ctx context.Context, id uuid.UUID) (types.EventPosition, error) {
	if err := ctx.Err(); err != nil {
		return types.EventPosition{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.index[id]
	if !ok {
		return types.EventPosition{}, fmt.Errorf("event %s: %w", id, ErrEventNotFound)
	}
	return pos, nil
}

// AllEvents returns the entire log in order
func (s *MemoryEventStore) AllEvents(ctx context.Context) ([]types.PersistedEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.PersistedEvent(nil), s.log...), nil
}

// SaveConfiguration stores the shard routing configuration
func (s *MemoryEventStore) SaveConfiguration(ctx context.Context, set *types.ShardConfigurationSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *set
	copied.Items = append([]types.ShardConfiguration(nil), set.Items...)
	s.config = &copied
	return nil
}

// LoadConfiguration loads the shard routing configuration
func (s *MemoryEventStore) LoadConfiguration(ctx context.Context) (*types.ShardConfigurationSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.config == nil {
		return nil, fmt.Errorf("shard configuration: %w", ErrEventNotFound)
	}
	copied := *s.config
	copied.Items = append([]types.ShardConfiguration(nil), s.config.Items...)
	return &copied, nil
}
