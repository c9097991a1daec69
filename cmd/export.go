package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lkarlslund/redflag/pkg/config"
	"github.com/lkarlslund/redflag/pkg/event"
	"github.com/lkarlslund/redflag/pkg/eventstore"
	"github.com/lkarlslund/redflag/pkg/kv"
)

var (
	exportConfigPath string
	exportFrom       int64
	exportTo         int64
	exportLimit      int
	exportOut        string
)

func init() {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export events in a time window as zstd-compressed JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			to := exportTo
			if !cmd.Flags().Changed("to") {
				to = time.Now().UTC().UnixMilli()
			}
			q := event.Query{From: exportFrom, To: to, Limit: exportLimit}
			cfg, err := config.LoadServerConfig(exportConfigPath)
			if err != nil {
				return fmt.Errorf("load server config: %w", err)
			}
			ctx := cmd.Context()
			conn, err := kv.Connect(ctx, cfg.KVOptions())
			if err != nil {
				return fmt.Errorf("connect to redis: %w", err)
			}
			defer conn.Close()

			store := eventstore.New(conn)
			if exportOut == "-" {
				n, err := store.ExportJSONL(ctx, q, cmd.OutOrStdout())
				if err != nil {
					return fmt.Errorf("export: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "exported %d events\n", n)
				return nil
			}
			f, err := os.Create(exportOut)
			if err != nil {
				return fmt.Errorf("create %s: %w", exportOut, err)
			}
			n, err := store.ExportJSONL(ctx, q, f)
			cerr := f.Close()
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			if cerr != nil {
				return fmt.Errorf("close %s: %w", exportOut, cerr)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d events to %s\n", n, exportOut)
			return nil
		},
	}
	exportCmd.Flags().StringVar(&exportConfigPath, "config", config.DefaultServerConfigPath(), "Server config TOML path")
	exportCmd.Flags().Int64Var(&exportFrom, "from", 0, "Window start in unix milliseconds")
	exportCmd.Flags().Int64Var(&exportTo, "to", 0, "Window end in unix milliseconds, inclusive (default now)")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "Maximum events to export (default store ceiling)")
	exportCmd.Flags().StringVar(&exportOut, "out", "events.jsonl.zst", "Output file, - for stdout")
	rootCmd.AddCommand(exportCmd)
}
