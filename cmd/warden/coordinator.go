package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/warden/pkg/api"
	"github.com/cuemby/warden/pkg/coordinator"
	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/shard"
	"github.com/cuemby/warden/pkg/storage"
)

var coordinatorCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Run the client-facing coordinator node",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := storage.NewBoltEventStore(cfg.Coordinator.ConfigPath)
		if err != nil {
			return fmt.Errorf("opening configuration store: %w", err)
		}
		defer store.Close()

		shards := shard.NewManager(nil)
		defer shards.Close()

		refresher := shard.NewRefresher(shards, store, cfg.Coordinator.RefreshInterval)
		if err := refresher.Start(context.Background()); err != nil {
			// A fresh deployment has no configuration yet; the config
			// surface stays up so one can be installed, and the poll loop
			// picks it up
			logger := log.WithComponent("coordinator")
			logger.Warn().Err(err).
				Msg("no usable shard configuration, waiting for one")
		}
		defer refresher.Stop()

		coord := coordinator.New(shards, store, coordinator.Config{
			FanoutParallelism: cfg.Coordinator.FanoutParallelism,
		})

		server := api.NewServer(coord, coord.Status,
			api.Config{ListenAddr: cfg.Coordinator.ListenAddr},
			api.WithConfigAdmin(coord),
		)

		errCh := make(chan error, 1)
		go func() {
			if err := server.Start(); err != nil {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
		case err := <-errCh:
			return err
		}
		return server.Stop()
	},
}
