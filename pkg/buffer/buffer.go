package buffer

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cuemby/warden/pkg/metrics"
	"github.com/cuemby/warden/pkg/types"
)

// Buffer holds generated events until a flush drains them to the event
// store. One FIFO queue per event kind, each guarded by its own mutex, so
// producers of different kinds never contend. A global sequence number
// assigned at enqueue restores the total order when the queues are merged at
// drain time.
type Buffer struct {
	queues map[types.EventKind]*queue
	seq    atomic.Uint64
	total  atomic.Int64
	signal chan struct{}

	// sizeThreshold pulses the flush signal when total buffered reaches it;
	// zero disables size-triggered flushes
	sizeThreshold int
}

type queue struct {
	mu    sync.Mutex
	items []sequenced
}

type sequenced struct {
	seq   uint64
	event *types.Event
}

// New creates a buffer that pulses its flush signal whenever the total
// buffered event count reaches sizeThreshold
func New(sizeThreshold int) *Buffer {
	b := &Buffer{
		queues:        make(map[types.EventKind]*queue, len(types.EventKinds)),
		signal:        make(chan struct{}, 1),
		sizeThreshold: sizeThreshold,
	}
	for _, kind := range types.EventKinds {
		b.queues[kind] = &queue{}
	}
	return b
}

// Enqueue appends an event to its kind's queue. Non-blocking: the only lock
// held is the queue's own mutex for the append.
func (b *Buffer) Enqueue(ev *types.Event) {
	q := b.queues[ev.Kind]
	seq := b.seq.Add(1)

	q.mu.Lock()
	q.items = append(q.items, sequenced{seq: seq, event: ev})
	depth := len(q.items)
	q.mu.Unlock()

	metrics.EventsBuffered.WithLabelValues(string(ev.Kind)).Set(float64(depth))

	total := b.total.Add(1)
	if b.sizeThreshold > 0 && total >= int64(b.sizeThreshold) {
		b.pulse()
	}
}

// EnqueueAll appends a batch in order
func (b *Buffer) EnqueueAll(events []*types.Event) {
	for _, ev := range events {
		b.Enqueue(ev)
	}
}

// Drain empties every queue and returns the merged batch ordered by enqueue
// sequence
func (b *Buffer) Drain() []*types.Event {
	var all []sequenced
	for _, kind := range types.EventKinds {
		q := b.queues[kind]
		q.mu.Lock()
		all = append(all, q.items...)
		q.items = nil
		q.mu.Unlock()
		metrics.EventsBuffered.WithLabelValues(string(kind)).Set(0)
	}
	b.total.Add(int64(-len(all)))

	sort.Slice(all, func(i, j int) bool {
		return all[i].seq < all[j].seq
	})
	out := make([]*types.Event, len(all))
	for i, s := range all {
		out[i] = s.event
	}
	return out
}

// Len returns the total number of buffered events
func (b *Buffer) Len() int {
	return int(b.total.Load())
}

// Signal returns the channel pulsed when the size threshold is reached
func (b *Buffer) Signal() <-chan struct{} {
	return b.signal
}

func (b *Buffer) pulse() {
	select {
	case b.signal <- struct{}{}:
	default:
		// A pulse is already pending
	}
}
