package crawl

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/blockgrower/blockgrower/internal/cache"
)

// Run is the depth-bounded wrapper generalizing Phase 2 (spec ยง5.2
// "Depth (optional extension)"): after completing expansion at depth
// d, the DIDs newly discovered at that depth become the seed set for
// depth d+1, until d = depth-1. depth=1 runs exactly the core
// single-level protocol.
//
// Run returns the union of all DIDs reported as actor-not-found across
// every depth level.
func (e *Engine) Run(ctx context.Context, seeds []string, depth int, force bool) ([]string, error) {
	if depth < 1 {
		return nil, fmt.Errorf("crawl: depth must be >= 1, got %d", depth)
	}

	runID := uuid.New().String()
	e.Logger.Info("crawl run starting", "run_id", runID, "seeds", len(seeds), "depth", depth)

	var allNotFound []string
	frontier := seeds
	seen := make(map[string]bool, len(seeds))
	for _, d := range seeds {
		seen[d] = true
	}

	for level := 0; level < depth; level++ {
		if len(frontier) == 0 {
			break
		}

		if _, err := e.EnsureUsers(ctx, frontier); err != nil {
			return allNotFound, fmt.Errorf("crawl depth %d: %w", level, err)
		}

		before, err := e.Cache.AllEdges(ctx)
		if err != nil {
			return allNotFound, fmt.Errorf("crawl depth %d: snapshot edges before expand: %w", level, err)
		}

		notFound, err := e.EnsureGraph(ctx, frontier, force)
		if err != nil {
			return allNotFound, fmt.Errorf("crawl depth %d: %w", level, err)
		}
		allNotFound = append(allNotFound, notFound...)

		if level == depth-1 {
			break
		}

		frontier, err = e.newlyDiscovered(ctx, before, seen)
		if err != nil {
			return allNotFound, fmt.Errorf("crawl depth %d: discover next frontier: %w", level, err)
		}
	}

	e.Logger.Info("crawl run finished", "run_id", runID, "not_found", len(allNotFound))
	return allNotFound, nil
}

// newlyDiscovered computes the next frontier: DIDs reachable by an edge
// added since before, that have not already been seeded at an earlier
// depth.
func (e *Engine) newlyDiscovered(ctx context.Context, before []cache.Edge, seen map[string]bool) ([]string, error) {
	beforeSet := make(map[edgeKey]bool, len(before))
	for _, edge := range before {
		beforeSet[edgeKey{From: edge.FromUID, To: edge.ToUID}] = true
	}

	after, err := e.Cache.AllEdges(ctx)
	if err != nil {
		return nil, err
	}

	newUIDs := make(map[int64]bool)
	for _, edge := range after {
		k := edgeKey{From: edge.FromUID, To: edge.ToUID}
		if beforeSet[k] {
			continue
		}
		newUIDs[edge.FromUID] = true
		newUIDs[edge.ToUID] = true
	}

	var frontier []string
	for uid := range newUIDs {
		account, err := e.Cache.LoadAccount(ctx, uid)
		if err != nil {
			continue
		}
		if seen[account.DID] {
			continue
		}
		seen[account.DID] = true
		frontier = append(frontier, account.DID)
	}
	return frontier, nil
}

type edgeKey struct {
	From, To int64
}
