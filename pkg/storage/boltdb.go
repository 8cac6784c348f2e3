package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/warden/pkg/types"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketEvents     = []byte("events")
	bucketEventIndex = []byte("eventIdToTransactionTimeMap")
	bucketMeta       = []byte("meta")
	bucketShardCfg   = []byte("shardConfigurations")

	metaLastTxTime = []byte("lastTransactionTime")
	metaLastSeq    = []byte("lastTransactionSequence")
	shardCfgKey    = []byte("current")
)

// BoltEventStore implements EventStore and ConfigStore using BoltDB. Event
// keys are 12 bytes: big-endian transaction-time nanoseconds followed by the
// big-endian per-time sequence, so a cursor walk is the log order.
type BoltEventStore struct {
	db *bolt.DB

	// now is the transaction clock, replaceable in tests
	now func() time.Time
}

// NewBoltEventStore creates a new BoltDB-backed event store
func NewBoltEventStore(dataDir string) (*BoltEventStore, error) {
	dbPath := filepath.Join(dataDir, "warden.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketEvents,
			bucketEventIndex,
			bucketMeta,
			bucketShardCfg,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltEventStore{db: db, now: time.Now}, nil
}

// OpenBoltEventStoreReadOnly opens an existing store without the write
// lock, for reader nodes tailing a writer's log out of process
func OpenBoltEventStoreReadOnly(dataDir string) (*BoltEventStore, error) {
	dbPath := filepath.Join(dataDir, "warden.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &BoltEventStore{db: db, now: time.Now}, nil
}

// Close closes the database
func (s *BoltEventStore) Close() error {
	return s.db.Close()
}

// PersistBatch appends a batch under one transaction time. The whole batch
// commits or rolls back atomically; events whose id is already recorded are
// skipped.
func (s *BoltEventStore) PersistBatch(ctx context.Context, events []*types.Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		evBucket := tx.Bucket(bucketEvents)
		idxBucket := tx.Bucket(bucketEventIndex)
		metaBucket := tx.Bucket(bucketMeta)

		lastTx := readInt64(metaBucket.Get(metaLastTxTime))
		lastSeq := readInt32(metaBucket.Get(metaLastSeq))

		txTime := s.now().UTC().UnixNano()
		if txTime < lastTx {
			return fmt.Errorf("%w: clock %d precedes recorded maximum %d",
				ErrTimeRegression, txTime, lastTx)
		}

		var seq int32
		if txTime == lastTx {
			seq = lastSeq + 1
		}

		for _, ev := range events {
			idKey := ev.ID[:]
			if idxBucket.Get(idKey) != nil {
				continue // already persisted, dedup by event id
			}
			key := positionKey(txTime, seq)
			data, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			if err := evBucket.Put(key, data); err != nil {
				return err
			}
			if err := idxBucket.Put(idKey, key); err != nil {
				return err
			}
			seq++
		}

		if err := metaBucket.Put(metaLastTxTime, writeInt64(txTime)); err != nil {
			return err
		}
		return metaBucket.Put(metaLastSeq, writeInt32(seq-1))
	})
}

// GetEventsAfter returns up to limit events strictly after pos in log order.
// A zero or pre-epoch position reads from the start of the log: the zero
// time.Time has a negative UnixNano whose big-endian cast would sort past
// every real key.
func (s *BoltEventStore) GetEventsAfter(ctx context.Context, pos types.EventPosition, limit int) ([]types.PersistedEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if pos.TransactionTime.Before(time.Unix(0, 0)) {
		pos = types.EventPosition{TransactionTime: time.Unix(0, 0), TransactionSequence: -1}
	}
	after := positionKey(pos.TransactionTime.UnixNano(), int32(pos.TransactionSequence))
	var out []types.PersistedEvent

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.Seek(after); k != nil; k, v = c.Next() {
			if string(k) <= string(after) {
				continue // Seek lands on the key itself when present
			}
			pe, err := decodePersisted(k, v)
			if err != nil {
				return err
			}
			out = append(out, pe)
			if limit > 0 && len(out) >= limit {
				return nil
			}
		}
		return nil
	})
	return out, err
}

// GetEventsInHashRange returns events of one dimension in [lo,hi] at or
// after since, plus broadcast events, in log order
func (s *BoltEventStore) GetEventsInHashRange(ctx context.Context, kind types.DataElementKind, lo, hi int32, since time.Time, limit int) ([]types.PersistedEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if since.Before(time.Unix(0, 0)) {
		since = time.Unix(0, 0)
	}
	from := positionKey(since.UnixNano(), 0)
	var out []types.PersistedEvent

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.Seek(from); k != nil; k, v = c.Next() {
			pe, err := decodePersisted(k, v)
			if err != nil {
				return err
			}
			dim := pe.Event.Dimension()
			if dim != "" && (dim != kind || pe.Event.HashCode < lo || pe.Event.HashCode > hi) {
				continue
			}
			out = append(out, pe)
			if limit > 0 && len(out) >= limit {
				return nil
			}
		}
		return nil
	})
	return out, err
}

// DeleteEventsInHashRange deletes events of one dimension in [lo,hi] older
// than the cutoff; broadcast events are kept
func (s *BoltEventStore) DeleteEventsInHashRange(ctx context.Context, kind types.DataElementKind, lo, hi int32, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	cutoff := positionKey(before.UnixNano(), 0)
	deleted := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		evBucket := tx.Bucket(bucketEvents)
		idxBucket := tx.Bucket(bucketEventIndex)

		var doomed [][]byte
		c := evBucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if string(k) >= string(cutoff) {
				break
			}
			pe, err := decodePersisted(k, v)
			if err != nil {
				return err
			}
			dim := pe.Event.Dimension()
			if dim != kind || pe.Event.HashCode < lo || pe.Event.HashCode > hi {
				continue
			}
			doomed = append(doomed, append([]byte(nil), k...))
			if err := idxBucket.Delete(pe.Event.ID[:]); err != nil {
				return err
			}
		}
		for _, k := range doomed {
			if err := evBucket.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// PositionOf returns the recorded log position of an event id
func (s *BoltEventStore) PositionOf(ctx context.Context, id uuid.UUID) (types.EventPosition, error) {
	if err := ctx.Err(); err != nil {
		return types.EventPosition{}, err
	}

	var pos types.EventPosition
	err := s.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(bucketEventIndex).Get(id[:])
		if key == nil {
			return fmt.Errorf("event %s: %w", id, ErrEventNotFound)
		}
		pos = decodePosition(key)
		return nil
	})
	return pos, err
}

// AllEvents returns the entire log in order
func (s *BoltEventStore) AllEvents(ctx context.Context) ([]types.PersistedEvent, error) {
	return s.GetEventsAfter(ctx, types.EventPosition{TransactionTime: time.Unix(0, 0), TransactionSequence: -1}, 0)
}

// SaveConfiguration stores the shard routing configuration
func (s *BoltEventStore) SaveConfiguration(ctx context.Context, set *types.ShardConfigurationSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(set)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketShardCfg).Put(shardCfgKey, data)
	})
}

// LoadConfiguration loads the shard routing configuration
func (s *BoltEventStore) LoadConfiguration(ctx context.Context) (*types.ShardConfigurationSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var set types.ShardConfigurationSet
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketShardCfg).Get(shardCfgKey)
		if data == nil {
			return fmt.Errorf("shard configuration: %w", ErrEventNotFound)
		}
		return json.Unmarshal(data, &set)
	})
	if err != nil {
		return nil, err
	}
	return &set, nil
}

func positionKey(txTimeNano int64, seq int32) []byte {
	key := make([]byte, 12)
	binary.BigEndian.PutUint64(key[:8], uint64(txTimeNano))
	binary.BigEndian.PutUint32(key[8:], uint32(seq))
	return key
}

func decodePosition(key []byte) types.EventPosition {
	return types.EventPosition{
		TransactionTime:     time.Unix(0, int64(binary.BigEndian.Uint64(key[:8]))).UTC(),
		TransactionSequence: int(binary.BigEndian.Uint32(key[8:])),
	}
}

func decodePersisted(key, value []byte) (types.PersistedEvent, error) {
	var ev types.Event
	if err := json.Unmarshal(value, &ev); err != nil {
		return types.PersistedEvent{}, err
	}
	return types.PersistedEvent{Event: &ev, Position: decodePosition(key)}, nil
}

func readInt64(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func writeInt64(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func readInt32(b []byte) int32 {
	if len(b) != 4 {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func writeInt32(v int32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v))
	return b
}
