package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/warden/pkg/api"
	"github.com/cuemby/warden/pkg/storage"
	"github.com/cuemby/warden/pkg/trip"
	"github.com/cuemby/warden/pkg/writer"
)

var writerCmd = &cobra.Command{
	Use:   "writer",
	Short: "Run the authoritative writer node of one shard",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := storage.NewBoltEventStore(cfg.Writer.DataPath)
		if err != nil {
			return fmt.Errorf("opening event store: %w", err)
		}
		defer store.Close()

		// SIGTERM doubles as the trip switch's shutdown hook
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		shutdown := func() {
			sigCh <- syscall.SIGTERM
		}

		node := writer.NewNode(store, writer.Config{
			NodeID:        cfg.Writer.NodeID,
			CacheCapacity: cfg.Writer.CacheCapacity,
			SizeThreshold: cfg.Writer.SizeThreshold,
			FlushInterval: cfg.Writer.FlushInterval,
			TripMode:      trip.Mode(cfg.Writer.TripMode),
			Strict:        cfg.Writer.Strict,
		}, shutdown)

		if err := node.LoadSnapshot(context.Background()); err != nil {
			return fmt.Errorf("loading snapshot: %w", err)
		}
		node.Start()

		server := api.NewServer(node, node.Status,
			api.Config{ListenAddr: cfg.Writer.ListenAddr},
			api.WithMappings(node),
			api.WithEventLog(node),
			api.WithRangeLog(node),
			api.WithPauser(node.Pauser()),
			api.WithTripSwitch(node.Trip()),
		)

		errCh := make(chan error, 1)
		go func() {
			if err := server.Start(); err != nil {
				errCh <- err
			}
		}()

		select {
		case <-sigCh:
		case err := <-errCh:
			node.Stop()
			return err
		}

		// Drain buffered events before the listener and store go away
		if err := server.Stop(); err != nil {
			return err
		}
		node.Stop()
		return nil
	},
}
