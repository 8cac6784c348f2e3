package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/warden/pkg/api"
	"github.com/cuemby/warden/pkg/client"
	"github.com/cuemby/warden/pkg/splitter"
	"github.com/cuemby/warden/pkg/types"
)

var routerCmd = &cobra.Command{
	Use:   "router",
	Short: "Run a split-time router in front of a source shard",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		source := client.New(client.Config{
			Endpoint:   cfg.Router.SourceEndpoint,
			Credential: cfg.Router.SourceCredential,
		})
		defer source.Close()

		router := splitter.NewRouter(source)
		server := routerServer(router, cfg.Router.ListenAddr)

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

func routerServer(router *splitter.Router, listenAddr string) *api.Server {
	status := func(ctx context.Context) (*types.NodeStatus, error) {
		return &types.NodeStatus{
			Role:      "router",
			Paused:    router.Pauser().Paused(),
			RoutingOn: router.IsRoutingOn(),
		}, nil
	}
	return api.NewServer(router, status,
		api.Config{ListenAddr: listenAddr},
		api.WithPauser(router.Pauser()),
		api.WithRouting(router),
	)
}
