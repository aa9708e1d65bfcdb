// Package cache implements the durable, keyed Account/Edge store (spec
// ยง4.2, component C2): a single-writer, many-reader SQLite store that
// deduplicates accounts, memoizes expansion via the Account.fetched bit,
// and is safe to reopen against a file left by a previous run.
//
// The single-connection-pool-per-discipline approach is grounded on the
// teacher's internal/storage/ephemeral.Store (SQLite-backed, WAL mode,
// mutex-guarded) and internal/storage/dolt.DoltStore (sync.RWMutex
// "Protects concurrent access", OTel span/metric wrapping of every
// exec/query).
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	_ "modernc.org/sqlite"
)

// Store is the durable keyed store of Accounts and Edges described in
// spec ยง4.2. All mutating operations are serialized through mu; readers
// may run concurrently with each other but never with a writer.
type Store struct {
	db     *sql.DB
	path   string
	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the cache database at path, running schema
// creation idempotently. Returns ErrStoreCorrupt if the file exists but
// cannot be recognized as a fresh or existing schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStoreCorrupt, path, err)
	}
	// A single writer, many readers: cap the pool so the application-level
	// mu (not connection contention) is what serializes writes.
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(8)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", ErrStoreCorrupt, path, err)
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: init schema: %v", ErrStoreCorrupt, err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range schemaStatements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("exec schema statement %q: %w", stmt, err)
		}
	}
	return tx.Commit()
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// cacheTracer/cacheMetrics instrument every write against the cache and
// the resolve_existing read, the same wrapping pattern as internal/storage/dolt/store.go's
// doltTracer/doltMetrics. The global provider is a no-op until
// internal/telemetry.Init is called from cmd/blockgrower.
var cacheTracer = otel.Tracer("github.com/blockgrower/blockgrower/cache")

var cacheMetrics struct {
	retryCount metric.Int64Counter
	writeWaitMs metric.Float64Histogram
}

func init() {
	m := otel.Meter("github.com/blockgrower/blockgrower/cache")
	cacheMetrics.retryCount, _ = m.Int64Counter("blockgrower.cache.retry_count",
		metric.WithDescription("cache writes retried due to SQLITE_BUSY/locked"),
		metric.WithUnit("{retry}"),
	)
	cacheMetrics.writeWaitMs, _ = m.Float64Histogram("blockgrower.cache.write_wait_ms",
		metric.WithDescription("time spent waiting to acquire the cache write lock"),
		metric.WithUnit("ms"),
	)
}

// withWrite serializes op against all other writers, recording retry
// counts and lock-wait time, the same shape as DoltStore.withRetry plus
// its sync.RWMutex "Protects concurrent access" field.
func (s *Store) withWrite(ctx context.Context, spanName string, op func(tx *sql.Tx) error) error {
	start := time.Now()
	s.mu.Lock()
	cacheMetrics.writeWaitMs.Record(ctx, float64(time.Since(start).Milliseconds()))
	defer s.mu.Unlock()

	ctx, span := cacheTracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("db.system", "sqlite")))
	defer span.End()

	attempts := 0
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 5 * time.Second
	err := backoff.Retry(func() error {
		attempts++
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			if isBusyErr(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if err := op(tx); err != nil {
			tx.Rollback()
			if isBusyErr(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if err := tx.Commit(); err != nil {
			if isBusyErr(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if attempts > 1 {
		cacheMetrics.retryCount.Add(ctx, int64(attempts-1))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, sub := range []string{"SQLITE_BUSY", "database is locked", "SQLITE_LOCKED"} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}
