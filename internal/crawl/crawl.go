// Package crawl implements the two-phase, resumable crawl engine (spec
// ยง4.4, component C4): ensure_users resolves or creates cache rows for
// a batch of DIDs, ensure_graph expands each DID's follow graph exactly
// once per cache lifetime. Concurrency is bounded with
// golang.org/x/sync/errgroup, the same fan-out primitive the standalone
// crawler example uses over its rate limiter.
package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/blockgrower/blockgrower/internal/atclient"
	"github.com/blockgrower/blockgrower/internal/cache"
	"github.com/blockgrower/blockgrower/internal/gateway"
)

const (
	// resolveBatchSize bounds a single resolve_existing lookup (spec ยง5.1
	// step 1).
	resolveBatchSize = 512
	// profileBatchSize bounds a single remote profile-fetch call, mirroring
	// atclient.MaxProfilesPerCall.
	profileBatchSize = atclient.MaxProfilesPerCall
	// maxConcurrentBatches bounds how many profile/expansion goroutines run
	// at once; the rate limiter inside gateway is the real throttle, this
	// just keeps the errgroup from spawning unbounded goroutines for very
	// large seed sets.
	maxConcurrentBatches = 16
)

// ProgressObserver receives expansion progress as a count of DIDs done
// out of the total, the Go-native replacement for the tqdm bar the original crawler
// printed to a terminal.
type ProgressObserver interface {
	Progress(done, total int)
}

// NoopProgress discards all progress reports.
type NoopProgress struct{}

// Progress implements ProgressObserver.
func (NoopProgress) Progress(int, int) {}

// Engine drives ensure_users/ensure_graph against a cache and gateway.
type Engine struct {
	Cache        *cache.Store
	Gateway      *gateway.Gateway
	MaxFollowers int
	Logger       *slog.Logger
	Progress     ProgressObserver
}

// New constructs an Engine with sane defaults for Logger/Progress when
// left nil.
func New(store *cache.Store, gw *gateway.Gateway, maxFollowers int) *Engine {
	return &Engine{
		Cache:        store,
		Gateway:      gw,
		MaxFollowers: maxFollowers,
		Logger:       slog.Default(),
		Progress:     NoopProgress{},
	}
}

// EnsureUsers implements Phase 1 (spec ยง5.1): resolve dids to uids,
// creating rows for any not yet cached. Per-batch failures are logged
// and skipped, never fatal to the phase.
func (e *Engine) EnsureUsers(ctx context.Context, dids []string) (map[string]int64, error) {
	result := make(map[string]int64, len(dids))
	var resultMu sync.Mutex

	for _, batch := range chunkStrings(dids, resolveBatchSize) {
		existing, err := e.Cache.ResolveExisting(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("ensure_users: resolve_existing: %w", err)
		}

		var missing []string
		for _, did := range batch {
			if uid, ok := existing[did]; ok {
				resultMu.Lock()
				result[did] = uid
				resultMu.Unlock()
			} else {
				missing = append(missing, did)
			}
		}

		if len(missing) == 0 {
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxConcurrentBatches)
		for _, profileBatch := range chunkStrings(missing, profileBatchSize) {
			profileBatch := profileBatch
			g.Go(func() error {
				profiles, err := e.Gateway.GetProfiles(gctx, profileBatch)
				if err != nil {
					e.Logger.Warn("ensure_users: profile batch failed, skipping",
						"batch_size", len(profileBatch), "error", err)
					return nil
				}
				accounts := make([]cache.Account, 0, len(profiles))
				for _, p := range profiles {
					accounts = append(accounts, cache.Account{
						DID: p.DID, Handle: p.Handle, Nick: p.DisplayName,
						Desc: p.Description, Followers: p.FollowersCount, Following: p.FollowsCount,
					})
				}
				uids, err := e.Cache.InsertAccounts(gctx, accounts)
				if err != nil {
					e.Logger.Warn("ensure_users: insert_accounts failed, skipping",
						"batch_size", len(accounts), "error", err)
					return nil
				}
				resultMu.Lock()
				for did, uid := range uids {
					result[did] = uid
				}
				resultMu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("ensure_users: %w", err)
		}
	}

	return result, nil
}

func chunkStrings(items []string, size int) [][]string {
	if len(items) == 0 {
		return nil
	}
	var out [][]string
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}
