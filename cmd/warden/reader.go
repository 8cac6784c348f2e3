package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/warden/pkg/access"
	"github.com/cuemby/warden/pkg/api"
	"github.com/cuemby/warden/pkg/client"
	"github.com/cuemby/warden/pkg/reader"
	"github.com/cuemby/warden/pkg/storage"
)

var readerCmd = &cobra.Command{
	Use:   "reader",
	Short: "Run a read replica tailing a writer's event log",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		source := client.New(client.Config{
			Endpoint:   cfg.Reader.WriterEndpoint,
			Credential: cfg.Reader.WriterCredential,
		})
		defer source.Close()

		store, err := storage.OpenBoltEventStoreReadOnly(cfg.Reader.DataPath)
		if err != nil {
			return fmt.Errorf("opening event store: %w", err)
		}
		defer store.Close()

		node := reader.NewNode(access.NewManager(), source, store, reader.Config{
			NodeID:          cfg.Reader.NodeID,
			RefreshInterval: cfg.Reader.RefreshInterval,
			BatchLimit:      cfg.Reader.BatchLimit,
		})
		node.Start()

		server := api.NewServer(node, node.Status,
			api.Config{ListenAddr: cfg.Reader.ListenAddr},
			api.WithMappings(node),
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
			node.Stop()
			return err
		}

		if err := server.Stop(); err != nil {
			return err
		}
		node.Stop()
		return nil
	},
}
