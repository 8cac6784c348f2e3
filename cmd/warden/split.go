package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/warden/pkg/client"
	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/splitter"
	"github.com/cuemby/warden/pkg/types"
)

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Move a hash sub-range from a source shard to a new target shard",
	Long: `Split runs a router in front of the source shard and drives the online
split protocol: dual-write, backfill, drain, cutover, cleanup. Clients must
be pointed at the router's listen address before the split starts; the
router keeps serving after cutover until coordinators refresh the updated
shard configuration, then the process can be stopped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		kind, _ := cmd.Flags().GetString("kind")
		lo, _ := cmd.Flags().GetInt32("lo")
		hi, _ := cmd.Flags().GetInt32("hi")
		target, _ := cmd.Flags().GetString("target")
		targetCred, _ := cmd.Flags().GetString("target-credential")
		coordEndpoint, _ := cmd.Flags().GetString("coordinator")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		drainRetries, _ := cmd.Flags().GetInt("drain-retries")
		drainInterval, _ := cmd.Flags().GetDuration("drain-interval")

		elementKind := types.DataElementKind(kind)
		switch elementKind {
		case types.ElementUser, types.ElementGroup, types.ElementGroupToGroup:
		default:
			return fmt.Errorf("invalid --kind %q", kind)
		}

		source := client.New(client.Config{
			Endpoint:   cfg.Router.SourceEndpoint,
			Credential: cfg.Router.SourceCredential,
		})
		defer source.Close()

		targetAPI := client.New(client.Config{Endpoint: target, Credential: targetCred})
		defer targetAPI.Close()

		coord := client.New(client.Config{Endpoint: coordEndpoint})
		defer coord.Close()

		router := splitter.NewRouter(source)
		server := routerServer(router, cfg.Router.ListenAddr)

		errCh := make(chan error, 1)
		go func() {
			if err := server.Start(); err != nil {
				errCh <- err
			}
		}()

		orch := splitter.NewOrchestrator(router, source, targetAPI, coord, splitter.OrchestratorConfig{
			Kind:          elementKind,
			Lo:            lo,
			Hi:            hi,
			BatchSize:     batchSize,
			DrainRetries:  drainRetries,
			DrainInterval: drainInterval,
		})

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-sigCh
			cancel()
		}()

		if err := orch.Run(ctx); err != nil {
			_ = server.Stop()
			return err
		}

		logger := log.WithComponent("splitter")
		logger.Info().
			Msg("split complete, router serving until interrupted")

		select {
		case <-ctx.Done():
		case err := <-errCh:
			return err
		}
		return server.Stop()
	},
}

func init() {
	splitCmd.Flags().String("kind", "", "Partitioning dimension: user, group or groupToGroup")
	splitCmd.Flags().Int32("lo", 0, "Inclusive lower bound of the moving hash range")
	splitCmd.Flags().Int32("hi", 0, "Inclusive upper bound of the moving hash range")
	splitCmd.Flags().String("target", "", "Target shard writer endpoint")
	splitCmd.Flags().String("target-credential", "", "Target shard credential")
	splitCmd.Flags().String("coordinator", "http://localhost:7600", "Coordinator endpoint for configuration updates")
	splitCmd.Flags().Int("batch-size", 500, "Backfill batch size")
	splitCmd.Flags().Int("drain-retries", 10, "Drain poll attempts before aborting")
	splitCmd.Flags().Duration("drain-interval", time.Second, "Interval between drain polls")
	_ = splitCmd.MarkFlagRequired("kind")
	_ = splitCmd.MarkFlagRequired("target")
}
