// Package gateway wraps the low-level atclient transport with the
// behavior spec ยง4.3 (component C3) requires of a remote capability:
// token-bucket rate limiting, bounded retry of transient failures, and
// session persistence across runs. The retry shape is grounded on
// DoltStore.withRetry (internal/storage/dolt/store.go); the token
// bucket on the standalone crawler's
// rate.NewLimiter(rate.Limit(cfg.RateLimit), ...) usage.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/blockgrower/blockgrower/internal/atclient"
)

// maxAttempts bounds retry of a transient error at 3 total attempts,
// spec ยง6's explicit retry budget.
const maxAttempts = 3

// ErrAuthFailed is re-exported so callers need not import atclient to
// classify a fatal login failure.
var ErrAuthFailed = atclient.ErrAuthFailed

// ErrActorNotFound is re-exported for the same reason: a benign,
// terminal per-account outcome, not a crawl failure.
var ErrActorNotFound = atclient.ErrActorNotFound

// ErrRemoteUnavailable is returned when a call has failed with a
// transient error on every one of its maxAttempts attempts. It wraps
// the last transient error.
var ErrRemoteUnavailable = errors.New("gateway: remote unavailable")

// Gateway is the rate-limited, retrying, session-aware remote
// capability used by the crawl engine (C4). It is safe for concurrent
// use by multiple goroutines: the limiter and session are both
// internally synchronized.
type Gateway struct {
	client      *atclient.Client
	limiter     *rate.Limiter
	sessionPath string
	identifier  string
	password    string

	sessMu    sync.Mutex
	sessToken string
	sessDID   string
}

// Options configures a new Gateway.
type Options struct {
	Endpoint    string
	SessionPath string
	Identifier  string
	Password    string
	// RateLimit is the sustained requests-per-second budget (spec ยง4.3).
	RateLimit int
}

// New constructs a Gateway. It does not contact the network; call Login
// to establish or resume a session.
func New(opts Options) *Gateway {
	burst := opts.RateLimit / 10
	if burst < 1 {
		burst = 1
	}
	return &Gateway{
		client:      atclient.New(opts.Endpoint),
		limiter:     rate.NewLimiter(rate.Limit(opts.RateLimit), burst),
		sessionPath: opts.SessionPath,
		identifier:  opts.Identifier,
		password:    opts.Password,
	}
}

var gatewayTracer = otel.Tracer("github.com/blockgrower/blockgrower/gateway")

var gatewayMetrics struct {
	retryCount   metric.Int64Counter
	rateWaitMs   metric.Float64Histogram
	actorMissing metric.Int64Counter
}

func init() {
	m := otel.Meter("github.com/blockgrower/blockgrower/gateway")
	gatewayMetrics.retryCount, _ = m.Int64Counter("blockgrower.gateway.retry_count",
		metric.WithDescription("remote calls retried after a transient failure"))
	gatewayMetrics.rateWaitMs, _ = m.Float64Histogram("blockgrower.gateway.rate_wait_ms",
		metric.WithDescription("time spent waiting on the rate limiter"), metric.WithUnit("ms"))
	gatewayMetrics.actorMissing, _ = m.Int64Counter("blockgrower.gateway.actor_not_found",
		metric.WithDescription("remote calls that resolved to an actor-not-found outcome"))
}

// sessionFile is the on-disk shape of a persisted session (spec ยง4.3,
// supplemented feature: session file lifecycle).
type sessionFile struct {
	DID        string `json:"did"`
	Handle     string `json:"handle"`
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
}

// Login establishes a session, preferring a persisted session file over
// identifier/password so repeated runs don't re-authenticate
// needlessly. A session file that the server rejects falls back to
// identifier/password and rewrites the file on success.
func (g *Gateway) Login(ctx context.Context) error {
	if g.sessionPath != "" {
		if sess, err := g.loadSessionFile(); err == nil {
			if _, verifyErr := g.client.GetSession(ctx, sess.AccessJwt); verifyErr == nil {
				g.sessMu.Lock()
				g.sessToken, g.sessDID = sess.AccessJwt, sess.DID
				g.sessMu.Unlock()
				return nil
			}
		}
	}

	if g.identifier == "" || g.password == "" {
		return fmt.Errorf("%w: no usable session file and no identifier/password configured", ErrAuthFailed)
	}

	sess, err := g.client.CreateSession(ctx, g.identifier, g.password)
	if err != nil {
		return err
	}
	g.sessMu.Lock()
	g.sessToken, g.sessDID = sess.AccessJwt, sess.DID
	g.sessMu.Unlock()

	if g.sessionPath != "" {
		return g.saveSessionFile(sessionFile{
			DID: sess.DID, Handle: sess.Handle,
			AccessJwt: sess.AccessJwt, RefreshJwt: sess.RefreshJwt,
		})
	}
	return nil
}

func (g *Gateway) loadSessionFile() (sessionFile, error) {
	var sf sessionFile
	data, err := os.ReadFile(g.sessionPath)
	if err != nil {
		return sf, err
	}
	if err := json.Unmarshal(data, &sf); err != nil {
		return sf, fmt.Errorf("parse session file %s: %w", g.sessionPath, err)
	}
	return sf, nil
}

func (g *Gateway) saveSessionFile(sf sessionFile) error {
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session file: %w", err)
	}
	if err := os.WriteFile(g.sessionPath, data, 0o600); err != nil {
		return fmt.Errorf("write session file %s: %w", g.sessionPath, err)
	}
	return nil
}

func (g *Gateway) token() string {
	g.sessMu.Lock()
	defer g.sessMu.Unlock()
	return g.sessToken
}

// acquire blocks for the rate limiter's turn, recording wait time.
func (g *Gateway) acquire(ctx context.Context) error {
	start := time.Now()
	err := g.limiter.Wait(ctx)
	gatewayMetrics.rateWaitMs.Record(ctx, float64(time.Since(start).Milliseconds()))
	return err
}

// withRetry runs op up to maxAttempts times, retrying only
// atclient.ErrTransient, the same classify-then-retry shape as
// DoltStore.withRetry.
func (g *Gateway) withRetry(ctx context.Context, spanName string, op func() error) error {
	ctx, span := gatewayTracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxAttempts-1)
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		if err := g.acquire(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, atclient.ErrActorNotFound) {
			gatewayMetrics.actorMissing.Add(ctx, 1)
			return backoff.Permanent(err)
		}
		if errors.Is(err, atclient.ErrTransient) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bo, ctx))

	if attempts > 1 {
		gatewayMetrics.retryCount.Add(ctx, int64(attempts-1))
	}
	if errors.Is(err, atclient.ErrTransient) {
		err = fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	if err != nil && !errors.Is(err, atclient.ErrActorNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Int("blockgrower.attempts", attempts))
	return err
}

// GetProfiles fetches up to atclient.MaxProfilesPerCall profiles,
// rate-limited and retried.
func (g *Gateway) GetProfiles(ctx context.Context, dids []string) ([]atclient.Profile, error) {
	var out []atclient.Profile
	err := g.withRetry(ctx, "gateway.get_profiles", func() error {
		profiles, err := g.client.GetProfiles(ctx, g.token(), dids)
		if err != nil {
			return err
		}
		out = profiles
		return nil
	})
	return out, err
}

// GetFollowers fetches one page of did's followers, rate-limited and
// retried. ErrActorNotFound is returned unwrapped-enough for
// errors.Is but is a terminal, non-fatal outcome the caller should
// treat as "this account no longer exists" (spec ยง6, ยง8 scenario 4).
func (g *Gateway) GetFollowers(ctx context.Context, did, cursor string) (atclient.FollowPage, error) {
	var out atclient.FollowPage
	err := g.withRetry(ctx, "gateway.get_followers", func() error {
		page, err := g.client.GetFollowers(ctx, g.token(), did, cursor)
		if err != nil {
			return err
		}
		out = page
		return nil
	})
	return out, err
}

// GetFollows fetches one page of who did follows, rate-limited and
// retried.
func (g *Gateway) GetFollows(ctx context.Context, did, cursor string) (atclient.FollowPage, error) {
	var out atclient.FollowPage
	err := g.withRetry(ctx, "gateway.get_follows", func() error {
		page, err := g.client.GetFollows(ctx, g.token(), did, cursor)
		if err != nil {
			return err
		}
		out = page
		return nil
	})
	return out, err
}
