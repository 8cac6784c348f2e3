package storage

import (
	"context"
	"errors"
	"time"

	"github.com/cuemby/warden/pkg/types"
	"github.com/google/uuid"
)

var (
	// ErrTimeRegression indicates a batch whose transaction time would
	// precede the recorded maximum; the store refuses it
	ErrTimeRegression = errors.New("transaction time regression")

	// ErrEventNotFound indicates an event id with no recorded position
	ErrEventNotFound = errors.New("event not found")
)

// EventStore defines the durable ordered event log. Batches are appended
// under a monotonically non-decreasing transaction time; within one
// transaction time a per-time sequence disambiguates, and the
// (transactionTime, transactionSequence) pair recorded per event id is the
// authoritative total order.
//
// Appends are at-least-once friendly: an event id already recorded is
// skipped, so dual-write and backfill replays are idempotent.
type EventStore interface {
	// PersistBatch durably appends a batch in the provided order. A partial
	// failure rolls back the whole batch.
	PersistBatch(ctx context.Context, events []*types.Event) error

	// GetEventsAfter returns up to limit events strictly after pos in log
	// order; limit <= 0 means no limit
	GetEventsAfter(ctx context.Context, pos types.EventPosition, limit int) ([]types.PersistedEvent, error)

	// GetEventsInHashRange returns events of one partitioning dimension
	// whose hash code falls in [lo,hi], at or after since, in log order.
	// Broadcast events (entity types and entities) belong to every range
	// and are included.
	GetEventsInHashRange(ctx context.Context, kind types.DataElementKind, lo, hi int32, since time.Time, limit int) ([]types.PersistedEvent, error)

	// DeleteEventsInHashRange deletes events of one partitioning dimension
	// whose hash code falls in [lo,hi] and whose transaction time is before
	// the cutoff. Broadcast events are never deleted. Returns the number of
	// deleted events.
	DeleteEventsInHashRange(ctx context.Context, kind types.DataElementKind, lo, hi int32, before time.Time) (int, error)

	// PositionOf returns the recorded log position of an event id
	PositionOf(ctx context.Context, id uuid.UUID) (types.EventPosition, error)

	// AllEvents returns the entire log in order; replaying it into an empty
	// access manager rebuilds the state
	AllEvents(ctx context.Context) ([]types.PersistedEvent, error)

	// Close releases the store
	Close() error
}

// ConfigStore persists the shard routing configuration
type ConfigStore interface {
	SaveConfiguration(ctx context.Context, set *types.ShardConfigurationSet) error
	LoadConfiguration(ctx context.Context) (*types.ShardConfigurationSet, error)
	Close() error
}
