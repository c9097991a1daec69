package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lkarlslund/redflag/pkg/logutil"
)

var rootLogLevel string

var rootCmd = &cobra.Command{
	Use:   "redflag",
	Short: "Redis-backed feature flag and usage event store",
	Long:  "Redis-backed feature flag and usage event store with an HTTP API, live event feed, and retention.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)
	rootCmd.SilenceUsage = true
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "loglevel", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if os.Geteuid() == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning: running as root")
		}
		return logutil.Configure(rootLogLevel)
	}
}
