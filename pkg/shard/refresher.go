package shard

import (
	"context"
	"reflect"
	"time"

	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/storage"
	"github.com/cuemby/warden/pkg/types"
)

// Refresher keeps a Manager's routing table in sync with the persisted
// shard configuration so that a running coordinator picks up splits
// without a restart
type Refresher struct {
	manager  *Manager
	store    storage.ConfigStore
	interval time.Duration

	last *types.ShardConfigurationSet

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewRefresher creates a refresher polling store every interval
func NewRefresher(manager *Manager, store storage.ConfigStore, interval time.Duration) *Refresher {
	if interval == 0 {
		interval = 30 * time.Second
	}
	return &Refresher{
		manager:  manager,
		store:    store,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start loads the configuration once and begins the poll loop. The loop
// runs even when the initial load fails, so a fresh deployment converges
// once a configuration is installed; the initial error is returned for the
// caller to log.
func (r *Refresher) Start(ctx context.Context) error {
	err := r.RefreshOnce(ctx)
	go r.run()
	return err
}

// Stop stops the poll loop
func (r *Refresher) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

// RefreshOnce reloads the configuration and swaps the routing table when
// it changed
func (r *Refresher) RefreshOnce(ctx context.Context) error {
	set, err := r.store.LoadConfiguration(ctx)
	if err != nil {
		return err
	}
	if r.last != nil && reflect.DeepEqual(r.last, set) {
		return nil
	}
	if err := r.manager.Refresh(set); err != nil {
		return err
	}
	r.last = set
	logger := log.WithComponent("shard")
	logger.Info().Int("ranges", len(set.Items)).Msg("routing configuration refreshed")
	return nil
}

func (r *Refresher) run() {
	defer close(r.doneCh)
	logger := log.WithComponent("shard")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := r.RefreshOnce(ctx); err != nil {
				logger.Error().Err(err).Msg("configuration refresh failed")
			}
			cancel()
		case <-r.stopCh:
			return
		}
	}
}
