package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/warden/pkg/client"
	"github.com/cuemby/warden/pkg/types"
)

var shardsCmd = &cobra.Command{
	Use:   "shards",
	Short: "Inspect and install the shard routing configuration",
}

var shardsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current shard configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint, _ := cmd.Flags().GetString("coordinator")
		coord := client.New(client.Config{Endpoint: endpoint})
		defer coord.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		set, err := coord.LoadConfiguration(ctx)
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(set)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

var shardsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Install a shard configuration from a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint, _ := cmd.Flags().GetString("coordinator")
		file, _ := cmd.Flags().GetString("file")

		data, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		var set types.ShardConfigurationSet
		if err := yaml.Unmarshal(data, &set); err != nil {
			return fmt.Errorf("parsing %s: %w", file, err)
		}
		if err := set.Validate(); err != nil {
			return err
		}

		coord := client.New(client.Config{Endpoint: endpoint})
		defer coord.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := coord.SaveConfiguration(ctx, &set); err != nil {
			return err
		}
		fmt.Printf("Installed %d shard ranges\n", len(set.Items))
		return nil
	},
}

func init() {
	shardsCmd.AddCommand(shardsShowCmd)
	shardsCmd.AddCommand(shardsSetCmd)

	shardsCmd.PersistentFlags().String("coordinator", "http://localhost:7600", "Coordinator endpoint")
	shardsSetCmd.Flags().String("file", "", "YAML file with the shard configuration")
	_ = shardsSetCmd.MarkFlagRequired("file")
}
