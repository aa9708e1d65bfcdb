package crawl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/blockgrower/blockgrower/internal/cache"
	"github.com/blockgrower/blockgrower/internal/gateway"
)

// EnsureGraph implements Phase 2 (spec ยง5.2): expand each DID's follow
// graph exactly once per cache lifetime, unless force is set. Returns
// the DIDs that could not be expanded because they are absent from the
// cache or the remote actor no longer exists, for the block-list
// annotation step.
func (e *Engine) EnsureGraph(ctx context.Context, dids []string, force bool) ([]string, error) {
	var (
		mu       sync.Mutex
		notFound []string
		done     int32
	)
	total := len(dids)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentBatches)
	for _, did := range dids {
		did := did
		g.Go(func() error {
			defer func() {
				n := atomic.AddInt32(&done, 1)
				e.Progress.Progress(int(n), total)
			}()

			missing, err := e.expandOne(gctx, did, force)
			if err != nil {
				e.Logger.Warn("ensure_graph: expansion failed, left unfetched",
					"did", did, "error", err)
				return nil
			}
			if missing {
				mu.Lock()
				notFound = append(notFound, did)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ensure_graph: %w", err)
	}
	return notFound, nil
}

// expandOne runs the per-DID algorithm of spec ยง5.2. It returns
// missing=true when the account could not be loaded or both directions
// report actor-not-found, distinct from a transient failure (returned
// as err).
func (e *Engine) expandOne(ctx context.Context, did string, force bool) (missing bool, err error) {
	uids, err := e.Cache.UIDsFor(ctx, []string{did})
	if err != nil {
		if cache.IsNotFound(err) {
			return true, nil
		}
		return false, fmt.Errorf("load_account %s: %w", did, err)
	}
	uid := uids[did]

	account, err := e.Cache.LoadAccount(ctx, uid)
	if err != nil {
		return false, fmt.Errorf("load_account %s: %w", did, err)
	}
	if account.Fetched && !force {
		return false, nil
	}

	_, followersNotFound, err := e.expandDirection(ctx, did, uid, account.Followers, directionFollowers)
	if err != nil {
		return false, fmt.Errorf("expand followers of %s: %w", did, err)
	}
	_, followsNotFound, err := e.expandDirection(ctx, did, uid, account.Following, directionFollows)
	if err != nil {
		return false, fmt.Errorf("expand follows of %s: %w", did, err)
	}

	// Spec ยง5.2: a DID is terminally missing only when both directions
	// were actually queried and both report ActorNotFound.
	if followersNotFound && followsNotFound {
		return true, nil
	}

	if err := e.Cache.MarkFetched(ctx, uid); err != nil {
		return false, fmt.Errorf("mark_fetched %s: %w", did, err)
	}
	return false, nil
}

type direction int

const (
	directionFollowers direction = iota
	directionFollows
)

// expandDirection pages through one direction for did, inserting edges
// as pages complete. ok=false with notFound=false means the direction
// was skipped (count is 0 or a hub at or above MaxFollowers); notFound=true
// means the remote reported ActorNotFound for this direction.
func (e *Engine) expandDirection(ctx context.Context, did string, uid int64, count int, dir direction) (ok bool, notFound bool, err error) {
	if count <= 0 || count >= e.MaxFollowers {
		return false, false, nil
	}

	fetchPage := e.Gateway.GetFollowers
	if dir == directionFollows {
		fetchPage = e.Gateway.GetFollows
	}

	var cursor string
	var peerDIDs []string
	for {
		page, pErr := fetchPage(ctx, did, cursor)
		if pErr != nil {
			if errors.Is(pErr, gateway.ErrActorNotFound) {
				return false, true, nil
			}
			return false, false, pErr
		}
		for _, a := range page.Actors {
			peerDIDs = append(peerDIDs, a.DID)
		}

		if page.Cursor == "" || page.Cursor == cursor {
			break
		}
		cursor = page.Cursor
	}

	if len(peerDIDs) == 0 {
		return true, false, nil
	}

	peerUIDs, err := e.EnsureUsers(ctx, peerDIDs)
	if err != nil {
		return false, false, err
	}

	edges := make([]cache.Edge, 0, len(peerUIDs))
	for _, peerUID := range peerUIDs {
		switch dir {
		case directionFollowers:
			edges = append(edges, cache.Edge{FromUID: peerUID, ToUID: uid})
		case directionFollows:
			edges = append(edges, cache.Edge{FromUID: uid, ToUID: peerUID})
		}
	}
	if err := e.Cache.InsertEdges(ctx, edges); err != nil {
		return false, false, err
	}
	return true, false, nil
}
