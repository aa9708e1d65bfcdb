package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/blockgrower/blockgrower/internal/blocklist"
	"github.com/blockgrower/blockgrower/internal/crawl"
)

var forceFlag bool

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "crawl the follow graph for every bad account in the block list",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := rootCtx
		a, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		list, err := blocklist.Load(a.cfg.BlockedCSV, a.cfg.DefaultBad)
		if err != nil {
			return fmt.Errorf("load block list: %w", err)
		}

		var dids []string
		for did := range list.BadDIDs() {
			dids = append(dids, did)
		}

		engine := crawl.New(a.store, a.gw, a.cfg.MaxFollowers)
		engine.Logger = slog.Default()
		engine.Progress = newTerminalProgress("expanding")

		notFound, err := engine.Run(ctx, dids, a.cfg.Depth, forceFlag)
		if err != nil {
			return fmt.Errorf("crawl: %w", err)
		}

		for _, did := range notFound {
			list.AnnotateRemoved(did)
		}
		if err := list.Write(); err != nil {
			return fmt.Errorf("write block list: %w", err)
		}

		slog.Info("update complete", "seeds", len(dids), "removed", len(notFound))
		return nil
	},
}

func init() {
	updateCmd.Flags().BoolVar(&forceFlag, "force", false, "re-expand accounts already marked fetched")
}
