package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/warden/pkg/config"
	"github.com/cuemby/warden/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Warden - Horizontally sharded authorization service",
	Long: `Warden is an event-sourced authorization service that answers
"may this user act on this resource" queries over a model of users,
groups, application components and entities, sharded by element hash
across writer nodes with online shard splitting.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Warden version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML configuration file")

	rootCmd.AddCommand(writerCmd)
	rootCmd.AddCommand(readerCmd)
	rootCmd.AddCommand(coordinatorCmd)
	rootCmd.AddCommand(routerCmd)
	rootCmd.AddCommand(splitCmd)
	rootCmd.AddCommand(shardsCmd)
}

// loadConfig reads the configuration file and initializes logging
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.Format == "json",
	})
	return cfg, nil
}
