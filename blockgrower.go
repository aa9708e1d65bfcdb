// Package blockgrower provides a minimal public API for embedding the
// crawl/cache/rank pipeline in other Go programs, without pulling in
// the cmd/blockgrower CLI.
package blockgrower

import (
	"github.com/blockgrower/blockgrower/internal/blocklist"
	"github.com/blockgrower/blockgrower/internal/cache"
	"github.com/blockgrower/blockgrower/internal/crawl"
	"github.com/blockgrower/blockgrower/internal/gateway"
	"github.com/blockgrower/blockgrower/internal/rank"
)

// Core types for working with the cache and crawl engine.
type (
	Account          = cache.Account
	Edge             = cache.Edge
	CrawlEngine      = crawl.Engine
	ProgressObserver = crawl.ProgressObserver
	RankResult       = rank.Result
	BlockList        = blocklist.List
)

// Store is the durable cache of accounts and edges.
type Store = cache.Store

// OpenCache opens (or creates) a cache database at dbPath for
// programmatic use.
func OpenCache(dbPath string) (*Store, error) {
	return cache.Open(dbPath)
}

// NewGateway constructs a rate-limited, session-aware remote gateway.
func NewGateway(opts gateway.Options) *gateway.Gateway {
	return gateway.New(opts)
}

// NewCrawlEngine constructs a crawl engine bound to store and gw.
func NewCrawlEngine(store *Store, gw *gateway.Gateway, maxFollowers int) *CrawlEngine {
	return crawl.New(store, gw, maxFollowers)
}

// NewRanker constructs a PageRank ranker bound to store.
func NewRanker(store *Store, damping float64) *rank.Ranker {
	return rank.New(store, damping)
}

// LoadBlockList reads a block-list CSV from path.
func LoadBlockList(path string, defaultBad bool) (*BlockList, error) {
	return blocklist.Load(path, defaultBad)
}
