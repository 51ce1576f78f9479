// Command gridcache-demo exercises a continuous query cache against an
// in-process fake remote cache, the way a real deployment would against a
// grid node reached through package gridrpc.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/gridcache/cmd/gridcache-demo/internal/demolog"
)

var rootCmd = &cobra.Command{
	Use:   "gridcache-demo",
	Short: "Drive a continuous query cache against a demo cache",
	Long: `gridcache-demo builds a continuous query cache (a client-resident,
incrementally-maintained materialized view of a filtered subset of a remote
cache) and exercises it against an in-process fake cache, printing the
events and reads that flow through it.

Examples:
  gridcache-demo watch --filter-threshold 300
  gridcache-demo populate --count 1000`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		if err := demolog.Initialize(jsonOutput); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json", false, "structured JSON log output")
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(populateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
