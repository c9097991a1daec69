package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lkarlslund/redflag/pkg/version"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print redflag version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "redflag %s\n", version.String())
		},
	})
}
