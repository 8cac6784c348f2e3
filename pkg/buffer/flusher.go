package buffer

import (
	"context"
	"time"

	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/metrics"
	"github.com/cuemby/warden/pkg/types"
	"github.com/rs/zerolog"
)

// Persister durably appends ordered event batches
type Persister interface {
	PersistBatch(ctx context.Context, events []*types.Event) error
}

// Appender receives persisted events, typically the temporal event cache
type Appender interface {
	Append(events []*types.Event)
}

// FlusherConfig holds configuration for creating a Flusher
type FlusherConfig struct {
	// Interval adds a periodic wake-up in addition to the buffer's size
	// signal (the loop-limited strategy); zero waits on the signal alone
	// (the size-limited strategy)
	Interval time.Duration

	// PersistTimeout bounds a single batch persist
	PersistTimeout time.Duration

	// OnFailure is invoked when a batch persist fails, after logging;
	// typically the trip switch
	OnFailure func(error)
}

// Flusher is the background worker that drains the buffer and bulk-persists
// batches in sequence order. Batches reach the persister in enqueue order;
// the cache sees every event only after it is durable.
type Flusher struct {
	buffer    *Buffer
	persister Persister
	cache     Appender
	cfg       FlusherConfig

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewFlusher creates a flusher for the given buffer and persister. cache may
// be nil when no temporal cache is attached.
func NewFlusher(buf *Buffer, persister Persister, cache Appender, cfg FlusherConfig) *Flusher {
	if cfg.PersistTimeout == 0 {
		cfg.PersistTimeout = 30 * time.Second
	}
	return &Flusher{
		buffer:    buf,
		persister: persister,
		cache:     cache,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the flush worker loop
func (f *Flusher) Start() {
	go f.run()
}

// Stop stops the worker after draining and persisting all remaining events
func (f *Flusher) Stop() {
	close(f.stopCh)
	<-f.doneCh
}

// Flush drains and persists synchronously on the calling goroutine,
// independent of the worker loop
func (f *Flusher) Flush() {
	f.flush(log.WithComponent("flusher"))
}

func (f *Flusher) run() {
	defer close(f.doneCh)
	logger := log.WithComponent("flusher")

	var tick <-chan time.Time
	if f.cfg.Interval > 0 {
		ticker := time.NewTicker(f.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-f.buffer.Signal():
			f.flush(logger)
		case <-tick:
			f.flush(logger)
		case <-f.stopCh:
			// Final drain before exit
			f.flush(logger)
			return
		}
	}
}

func (f *Flusher) flush(logger zerolog.Logger) {
	batch := f.buffer.Drain()
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.cfg.PersistTimeout)
	defer cancel()

	start := time.Now()
	if err := f.persister.PersistBatch(ctx, batch); err != nil {
		metrics.FlushFailuresTotal.Inc()
		logger.Error().Err(err).Int("events", len(batch)).Msg("batch persist failed")
		if f.cfg.OnFailure != nil {
			f.cfg.OnFailure(err)
		}
		return
	}

	metrics.EventsFlushedTotal.Add(float64(len(batch)))
	metrics.FlushBatchSize.Observe(float64(len(batch)))
	metrics.FlushDuration.Observe(time.Since(start).Seconds())

	if f.cache != nil {
		f.cache.Append(batch)
	}
	logger.Debug().Int("events", len(batch)).Msg("batch persisted")
}
