package splitter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/warden/pkg/client"
	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/metrics"
	"github.com/cuemby/warden/pkg/types"
)

// ConfigAccess reads and writes the global shard routing configuration,
// usually through a coordinator's configuration endpoint
type ConfigAccess interface {
	LoadConfiguration(ctx context.Context) (*types.ShardConfigurationSet, error)
	SaveConfiguration(ctx context.Context, set *types.ShardConfigurationSet) error
}

// ErrDrainTimeout indicates the source shard kept reporting active
// operations past the configured retry budget; the split aborted cleanly
var ErrDrainTimeout = errors.New("split drain timed out")

// Split phases reported on the split phase gauge
const (
	PhaseIdle      = 0
	PhasePrepare   = 1
	PhaseDualWrite = 2
	PhaseBackfill  = 3
	PhaseDrain     = 4
	PhaseCutover   = 5
	PhaseCleanup   = 6
)

// OrchestratorConfig holds configuration for driving one split
type OrchestratorConfig struct {
	// Kind and the inclusive range being moved to the target shard group
	Kind types.DataElementKind
	Lo   int32
	Hi   int32

	// BatchSize bounds one backfill read; BatchTimeout bounds one
	// read-and-apply round trip
	BatchSize    int
	BatchTimeout time.Duration

	// DrainRetries and DrainInterval bound the wait for the source's active
	// operation count to reach zero
	DrainRetries  int
	DrainInterval time.Duration
}

func (c *OrchestratorConfig) withDefaults() OrchestratorConfig {
	out := *c
	if out.BatchSize == 0 {
		out.BatchSize = 500
	}
	if out.BatchTimeout == 0 {
		out.BatchTimeout = 30 * time.Second
	}
	if out.DrainRetries == 0 {
		out.DrainRetries = 10
	}
	if out.DrainInterval == 0 {
		out.DrainInterval = time.Second
	}
	return out
}

// Orchestrator drives one online split: dual-write, backfill, drain,
// cutover, cleanup. Aborting from any phase before cutover reverts the
// router and leaves the source authoritative for the whole range.
type Orchestrator struct {
	router *Router
	source client.API
	target client.API
	config ConfigAccess
	cfg    OrchestratorConfig
}

// NewOrchestrator creates an orchestrator. The source's events are read
// through its hash-range surface and the target is written through its
// writer API, so appends stay idempotent by event id.
func NewOrchestrator(router *Router, source, target client.API, config ConfigAccess, cfg OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		router: router,
		source: source,
		target: target,
		config: config,
		cfg:    cfg.withDefaults(),
	}
}

// Run executes the split protocol to completion or clean abort
func (o *Orchestrator) Run(ctx context.Context) (err error) {
	logger := log.WithComponent("splitter").With().
		Str("kind", string(o.cfg.Kind)).
		Int32("lo", o.cfg.Lo).Int32("hi", o.cfg.Hi).
		Logger()

	defer func() {
		metrics.SplitPhase.Set(PhaseIdle)
		if err != nil {
			logger.Error().Err(err).Msg("split aborted")
		}
	}()

	// Prepare: the target must be reachable before any state changes
	metrics.SplitPhase.Set(PhasePrepare)
	if _, err := o.target.Status(ctx); err != nil {
		return fmt.Errorf("target not reachable: %w", err)
	}
	logger.Info().Str("target", o.target.Endpoint()).Msg("split prepared")

	// Dual-write: from here on, any in-range mutation reaches both sides
	metrics.SplitPhase.Set(PhaseDualWrite)
	o.router.BeginDualWrite(o.cfg.Kind, o.cfg.Lo, o.cfg.Hi, o.target)

	abort := func(cause error) error {
		o.router.EndDualWrite()
		return cause
	}

	// Backfill: copy the historical in-range events in log order
	metrics.SplitPhase.Set(PhaseBackfill)
	watermark, err := o.copyRange(ctx, types.EventPosition{})
	if err != nil {
		return abort(fmt.Errorf("backfill: %w", err))
	}
	logger.Info().Msg("backfill complete")

	// Drain: wait until the source reports no in-flight operations
	metrics.SplitPhase.Set(PhaseDrain)
	if err := o.drain(ctx); err != nil {
		return abort(err)
	}

	// Cutover: pause in-range traffic, copy the final delta, flip the
	// router. The pause window covers only the delta copy.
	metrics.SplitPhase.Set(PhaseCutover)
	o.router.Pauser().Pause()
	if _, err = o.copyRange(ctx, watermark); err != nil {
		o.router.Pauser().Resume()
		return abort(fmt.Errorf("cutover delta: %w", err))
	}
	o.router.Cutover()
	o.router.Pauser().Resume()
	logger.Info().Msg("cutover complete")

	// Cleanup: the moved events leave the source, and the global routing
	// configuration gains the new range
	metrics.SplitPhase.Set(PhaseCleanup)
	deleted, err := o.source.DeleteEventsInHashRange(ctx, o.cfg.Kind, o.cfg.Lo, o.cfg.Hi, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	if err := o.updateConfiguration(ctx); err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	logger.Info().Int("deleted", deleted).Msg("split complete")
	return nil
}

// copyRange streams in-range events after pos to the target writer in
// batches, each under its own timeout, and returns the final watermark
func (o *Orchestrator) copyRange(ctx context.Context, pos types.EventPosition) (types.EventPosition, error) {
	since := pos.TransactionTime
	limit := o.cfg.BatchSize
	for {
		batchCtx, cancel := context.WithTimeout(ctx, o.cfg.BatchTimeout)
		batch, err := o.source.GetEventsInHashRange(batchCtx, o.cfg.Kind, o.cfg.Lo, o.cfg.Hi, since, limit)
		if err != nil {
			cancel()
			return pos, err
		}

		// The read is at-or-after; skip anything at or before the watermark
		prev := pos
		events := make([]*types.Event, 0, len(batch))
		for _, pe := range batch {
			if !pos.Before(pe.Position) {
				continue
			}
			events = append(events, pe.Event)
			pos = pe.Position
		}

		if len(events) > 0 {
			if err := o.target.ApplyEvents(batchCtx, events); err != nil {
				cancel()
				return pos, err
			}
			metrics.SplitEventsCopiedTotal.Add(float64(len(events)))
		}
		cancel()

		if len(batch) < limit {
			return pos, nil
		}
		// A full batch that shares one transaction time cannot advance an
		// at-or-after read past itself; widen the next read until the
		// watermark moves again
		if !prev.Before(pos) {
			limit *= 2
		} else {
			limit = o.cfg.BatchSize
		}
		since = pos.TransactionTime
	}
}

// drain polls the source's active operation count until it reaches zero or
// the retry budget is exhausted
func (o *Orchestrator) drain(ctx context.Context) error {
	for attempt := 0; attempt < o.cfg.DrainRetries; attempt++ {
		status, err := o.source.Status(ctx)
		if err != nil {
			return err
		}
		if status.ActiveOperations == 0 {
			return nil
		}
		select {
		case <-time.After(o.cfg.DrainInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ErrDrainTimeout
}

// updateConfiguration carves [lo,hi] out of the source's range and assigns
// it to the target endpoint
func (o *Orchestrator) updateConfiguration(ctx context.Context) error {
	set, err := o.config.LoadConfiguration(ctx)
	if err != nil {
		return err
	}

	var items []types.ShardConfiguration
	carved := false
	for _, item := range set.Items {
		if item.Kind != o.cfg.Kind || !item.Contains(o.cfg.Lo) || !item.Contains(o.cfg.Hi) {
			items = append(items, item)
			continue
		}
		carved = true
		if item.RangeStart < o.cfg.Lo {
			left := item
			left.RangeEnd = o.cfg.Lo - 1
			items = append(items, left)
		}
		items = append(items, types.ShardConfiguration{
			Kind:       o.cfg.Kind,
			RangeStart: o.cfg.Lo,
			RangeEnd:   o.cfg.Hi,
			Endpoint:   o.target.Endpoint(),
		})
		if item.RangeEnd > o.cfg.Hi {
			right := item
			right.RangeStart = o.cfg.Hi + 1
			items = append(items, right)
		}
	}
	if !carved {
		return fmt.Errorf("%w: no range of kind %s contains [%d,%d]",
			types.ErrInvalidShardConfiguration, o.cfg.Kind, o.cfg.Lo, o.cfg.Hi)
	}

	next := &types.ShardConfigurationSet{Items: items}
	if err := next.Validate(); err != nil {
		return err
	}
	return o.config.SaveConfiguration(ctx, next)
}
