package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/blockgrower/blockgrower/internal/blocklist"
	"github.com/blockgrower/blockgrower/internal/rank"
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "rank cached accounts by seed-biased PageRank and propose new block candidates",
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

		badDIDs := list.BadDIDs()
		badUIDs, err := a.store.ResolveExisting(ctx, keys(badDIDs))
		if err != nil {
			return fmt.Errorf("resolve bad dids: %w", err)
		}
		badUIDSet := make(map[int64]bool, len(badUIDs))
		for _, uid := range badUIDs {
			badUIDSet[uid] = true
		}

		ranker := rank.New(a.store, a.cfg.PageRankDamping)
		results, err := ranker.RankAll(ctx, badUIDSet)
		if err != nil {
			return fmt.Errorf("rank_all: %w", err)
		}

		if err := rank.WriteCSV(a.cfg.OutputCSV, results); err != nil {
			return fmt.Errorf("write output csv: %w", err)
		}

		candidates := rank.NewBlockCandidates(results, a.cfg.RankThreshold)
		for _, did := range candidates {
			list.Add(did, "", "")
		}
		if err := list.Write(); err != nil {
			return fmt.Errorf("write block list: %w", err)
		}

		slog.Info("rank complete", "scored", len(results), "new_candidates", len(candidates))
		return nil
	},
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
