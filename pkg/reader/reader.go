package reader

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cuemby/warden/pkg/access"
	"github.com/cuemby/warden/pkg/cache"
	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/metrics"
	"github.com/cuemby/warden/pkg/storage"
	"github.com/cuemby/warden/pkg/types"
	"github.com/google/uuid"
)

// EventSource is the fast path a reader tails: the writer's temporal event
// cache, either in-process or over its HTTP surface. A miss is reported as
// cache.ErrEventNotCached and the reader falls back to the event store.
type EventSource interface {
	EventsSince(priorID uuid.UUID) ([]*types.Event, error)
}

// Config holds configuration for creating a reader Node
type Config struct {
	// NodeID names the replica in its status report
	NodeID string

	// RefreshInterval is the poll period between catch-up cycles
	RefreshInterval time.Duration

	// BatchLimit bounds one store read during the cold path
	BatchLimit int

	// DedupWindow is how many recently applied event ids are remembered to
	// absorb at-least-once delivery
	DedupWindow int
}

// Node is a replica that reapplies events to a local access manager to
// serve queries. Queries served by the node reflect all events up to its
// current tail; the node is eventually consistent with the writer.
type Node struct {
	manager *access.Manager
	source  EventSource
	store   storage.EventStore
	cfg     Config

	mu      sync.Mutex
	tailID  uuid.UUID
	tailPos types.EventPosition
	applied map[uuid.UUID]struct{}
	order   []uuid.UUID

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewNode creates a reader node. source may be nil to poll the store alone.
func NewNode(manager *access.Manager, source EventSource, store storage.EventStore, cfg Config) *Node {
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = time.Second
	}
	if cfg.BatchLimit == 0 {
		cfg.BatchLimit = 1000
	}
	if cfg.DedupWindow == 0 {
		cfg.DedupWindow = 4096
	}
	return &Node{
		manager: manager,
		source:  source,
		store:   store,
		cfg:     cfg,
		applied: make(map[uuid.UUID]struct{}),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Manager returns the access manager the node serves queries from
func (n *Node) Manager() *access.Manager {
	return n.manager
}

// LastApplied returns the id of the last applied event, or uuid.Nil
func (n *Node) LastApplied() uuid.UUID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tailID
}

// Start begins the refresh loop
func (n *Node) Start() {
	go n.run()
}

// Stop stops the refresh loop
func (n *Node) Stop() {
	close(n.stopCh)
	<-n.doneCh
}

func (n *Node) run() {
	defer close(n.doneCh)
	logger := log.WithNodeID("reader", n.cfg.NodeID)

	ticker := time.NewTicker(n.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := n.Refresh(context.Background()); err != nil {
				logger.Error().Err(err).Msg("refresh cycle failed")
			}
		case <-n.stopCh:
			return
		}
	}
}

// Refresh runs one catch-up cycle: try the cache fast path from the current
// tail, fall back to the event store on a miss
func (n *Node) Refresh(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.tailID != uuid.Nil && n.source != nil {
		events, err := n.source.EventsSince(n.tailID)
		if err == nil {
			n.applyLocked(events, nil)
			return nil
		}
		if !errors.Is(err, cache.ErrEventNotCached) {
			return err
		}
		// Evicted from the cache; resolve the tail's log position and read
		// the store instead
		pos, perr := n.store.PositionOf(ctx, n.tailID)
		if perr == nil {
			n.tailPos = pos
		}
	}

	batch, err := n.store.GetEventsAfter(ctx, n.tailPos, n.cfg.BatchLimit)
	if err != nil {
		return err
	}
	events := make([]*types.Event, len(batch))
	positions := make([]types.EventPosition, len(batch))
	for i, pe := range batch {
		events[i] = pe.Event
		positions[i] = pe.Position
	}
	n.applyLocked(events, positions)
	return nil
}

// applyLocked applies events in order, skipping ids inside the dedup window.
// positions may be nil for cache-path events.
func (n *Node) applyLocked(events []*types.Event, positions []types.EventPosition) {
	logger := log.WithNodeID("reader", n.cfg.NodeID)
	for i, ev := range events {
		if _, seen := n.applied[ev.ID]; seen {
			continue
		}
		if err := n.manager.ApplyEvent(ev); err != nil {
			// A malformed or cyclic event cannot come from a well-formed
			// log; skip it rather than stall the replica
			logger.Error().Err(err).Str("event_id", ev.ID.String()).Msg("event apply failed")
		}
		n.remember(ev.ID)
		n.tailID = ev.ID
		if positions != nil {
			n.tailPos = positions[i]
		}
		metrics.ReaderEventsAppliedTotal.Inc()
		metrics.ReaderLagSeconds.Set(time.Since(ev.OccurredTime).Seconds())
	}
}

func (n *Node) remember(id uuid.UUID) {
	n.applied[id] = struct{}{}
	n.order = append(n.order, id)
	for len(n.order) > n.cfg.DedupWindow {
		delete(n.applied, n.order[0])
		n.order = n.order[1:]
	}
}
