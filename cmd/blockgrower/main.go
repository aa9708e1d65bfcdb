// Command blockgrower crawls the AT Protocol follow graph outward from
// a seed block list, caches the result locally, and ranks discovered
// accounts to propose new block candidates.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configFile string
	traceFlag  bool

	rootCtx    context.Context
	rootCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:   "blockgrower",
	Short: "blockgrower grows a moderation block list from a seed account set",
	Long:  `Crawls the AT Protocol follow graph from a seed block list to a bounded depth, caches it locally, and ranks accounts by a block-seed-biased PageRank.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "blockgrower.json", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&traceFlag, "trace", false, "emit OpenTelemetry traces/metrics to stdout")
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(rankCmd)
	rootCmd.AddCommand(runCmd)
}

func main() {
	defer func() {
		if rootCancel != nil {
			rootCancel()
		}
	}()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
