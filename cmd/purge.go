package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lkarlslund/redflag/pkg/config"
	"github.com/lkarlslund/redflag/pkg/event"
	"github.com/lkarlslund/redflag/pkg/eventstore"
	"github.com/lkarlslund/redflag/pkg/kv"
)

var (
	purgeConfigPath string
	purgeFrom       int64
	purgeTo         int64
	purgeOlderThan  time.Duration
)

func init() {
	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete events in a time window",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := event.Query{From: purgeFrom, To: purgeTo}
			if cmd.Flags().Changed("older-than") {
				if purgeOlderThan <= 0 {
					return fmt.Errorf("older-than must be positive")
				}
				q = event.Query{From: 0, To: time.Now().UTC().Add(-purgeOlderThan).UnixMilli()}
			} else if !cmd.Flags().Changed("to") {
				return fmt.Errorf("either --older-than or --to is required")
			}
			cfg, err := config.LoadServerConfig(purgeConfigPath)
			if err != nil {
				return fmt.Errorf("load server config: %w", err)
			}
			ctx := cmd.Context()
			conn, err := kv.Connect(ctx, cfg.KVOptions())
			if err != nil {
				return fmt.Errorf("connect to redis: %w", err)
			}
			defer conn.Close()
			removed, err := eventstore.New(conn).Purge(ctx, q)
			if err != nil {
				return fmt.Errorf("purge: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d events\n", removed)
			return nil
		},
	}
	purgeCmd.Flags().StringVar(&purgeConfigPath, "config", config.DefaultServerConfigPath(), "Server config TOML path")
	purgeCmd.Flags().Int64Var(&purgeFrom, "from", 0, "Window start in unix milliseconds")
	purgeCmd.Flags().Int64Var(&purgeTo, "to", 0, "Window end in unix milliseconds, inclusive")
	purgeCmd.Flags().DurationVar(&purgeOlderThan, "older-than", 0, "Delete events older than this duration (e.g. 720h)")
	rootCmd.AddCommand(purgeCmd)
}
