package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lkarlslund/redflag/pkg/config"
	"github.com/lkarlslund/redflag/pkg/kv"
)

var configServerPath string

func init() {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Write a default server config if none exists and show it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrCreateServerConfig(configServerPath)
			if err != nil {
				return fmt.Errorf("load server config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config: %s\n", configServerPath)
			fmt.Fprintf(out, "listen_addr: %s\n", cfg.ListenAddr)
			fmt.Fprintf(out, "redis: %s\n", describeRedis(cfg))
			fmt.Fprintf(out, "api keys: %d\n", len(cfg.APIKeys))
			if cfg.Retention.Days > 0 {
				fmt.Fprintf(out, "retention: %d days\n", cfg.Retention.Days)
			} else {
				fmt.Fprintln(out, "retention: disabled")
			}
			return nil
		},
	}
	configCmd.Flags().StringVar(&configServerPath, "config", config.DefaultServerConfigPath(), "Server config TOML path")
	rootCmd.AddCommand(configCmd)
}

func describeRedis(cfg *config.ServerConfig) string {
	if cfg.Redis.Mode == kv.ModeCluster {
		return fmt.Sprintf("cluster %v", cfg.Redis.Addrs)
	}
	return fmt.Sprintf("standalone %s", cfg.Redis.Addr)
}
