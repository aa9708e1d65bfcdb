package crawl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/blockgrower/blockgrower/internal/cache"
	"github.com/blockgrower/blockgrower/internal/gateway"
)

type profile struct {
	DID            string `json:"did"`
	Handle         string `json:"handle"`
	FollowersCount int    `json:"followersCount"`
	FollowsCount   int    `json:"followsCount"`
}

func newTestEngine(t *testing.T, handler http.HandlerFunc) (*Engine, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/xrpc/com.atproto.server.createSession" {
			json.NewEncoder(w).Encode(map[string]string{"did": "did:crawler", "accessJwt": "tok"})
			return
		}
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	gw := gateway.New(gateway.Options{Endpoint: server.URL, Identifier: "x.test", Password: "pw", RateLimit: 1000})
	if err := gw.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	return New(store, gw, 1000), server
}

// TestColdStartSingleSeed is spec scenario 1: a seed with two followers
// and no follows ends up fully cached with both follower edges and
// fetched=true.
func TestColdStartSingleSeed(t *testing.T) {
	profiles := map[string]profile{
		"did:x": {DID: "did:x", Handle: "x.test", FollowersCount: 2, FollowsCount: 0},
		"did:a": {DID: "did:a", Handle: "a.test"},
		"did:b": {DID: "did:b", Handle: "b.test"},
	}

	engine, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/xrpc/app.bsky.actor.getProfiles":
			var out []profile
			for _, did := range r.URL.Query()["actors"] {
				if p, ok := profiles[did]; ok {
					out = append(out, p)
				}
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"profiles": out})
		case "/xrpc/app.bsky.graph.getFollowers":
			if r.URL.Query().Get("cursor") != "" {
				json.NewEncoder(w).Encode(map[string]interface{}{"followers": []profile{}, "cursor": ""})
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"followers": []profile{{DID: "did:a"}, {DID: "did:b"}},
				"cursor":    "",
			})
		case "/xrpc/app.bsky.graph.getFollows":
			json.NewEncoder(w).Encode(map[string]interface{}{"follows": []profile{}, "cursor": ""})
		}
	})

	ctx := context.Background()
	notFound, err := engine.Run(ctx, []string{"did:x"}, 1, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(notFound) != 0 {
		t.Fatalf("expected no not-found DIDs, got %v", notFound)
	}

	uids, err := engine.Cache.ResolveExisting(ctx, []string{"did:x", "did:a", "did:b"})
	if err != nil {
		t.Fatalf("ResolveExisting: %v", err)
	}
	if len(uids) != 3 {
		t.Fatalf("expected 3 cached accounts, got %d: %v", len(uids), uids)
	}

	xAccount, err := engine.Cache.LoadAccount(ctx, uids["did:x"])
	if err != nil {
		t.Fatalf("LoadAccount: %v", err)
	}
	if !xAccount.Fetched {
		t.Fatalf("expected did:x to be fetched")
	}

	edges, err := engine.Cache.AllEdges(ctx)
	if err != nil {
		t.Fatalf("AllEdges: %v", err)
	}
	if len(edges) != 2 {
		t.Fatalf("expected 2 follower edges, got %d: %v", len(edges), edges)
	}
	for _, e := range edges {
		if e.ToUID != uids["did:x"] {
			t.Fatalf("expected all edges to point at did:x, got %+v", e)
		}
	}
}

// TestHubSkip is spec scenario 2: an account over max_followers is
// marked fetched without ever calling getFollowers.
func TestHubSkip(t *testing.T) {
	var followersCalls int
	engine, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/xrpc/app.bsky.actor.getProfiles":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"profiles": []profile{{DID: "did:y", Handle: "y.test", FollowersCount: 1000000}},
			})
		case "/xrpc/app.bsky.graph.getFollowers":
			followersCalls++
			json.NewEncoder(w).Encode(map[string]interface{}{"followers": []profile{}, "cursor": ""})
		case "/xrpc/app.bsky.graph.getFollows":
			json.NewEncoder(w).Encode(map[string]interface{}{"follows": []profile{}, "cursor": ""})
		}
	})
	engine.MaxFollowers = 100000

	ctx := context.Background()
	if _, err := engine.Run(ctx, []string{"did:y"}, 1, false); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if followersCalls != 0 {
		t.Fatalf("expected zero getFollowers calls for a hub account, got %d", followersCalls)
	}

	uids, err := engine.Cache.ResolveExisting(ctx, []string{"did:y"})
	if err != nil {
		t.Fatalf("ResolveExisting: %v", err)
	}
	account, err := engine.Cache.LoadAccount(ctx, uids["did:y"])
	if err != nil {
		t.Fatalf("LoadAccount: %v", err)
	}
	if !account.Fetched {
		t.Fatalf("hub account should still be marked fetched")
	}

	edges, err := engine.Cache.AllEdges(ctx)
	if err != nil {
		t.Fatalf("AllEdges: %v", err)
	}
	if len(edges) != 0 {
		t.Fatalf("expected zero edges touching the hub account, got %d", len(edges))
	}
}

// TestActorRemoved is spec scenario 4: both directions report
// ActorNotFound, so the DID is reported missing and left unfetched.
func TestActorRemoved(t *testing.T) {
	engine, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/xrpc/app.bsky.actor.getProfiles":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"profiles": []profile{{DID: "did:z", Handle: "z.test", FollowersCount: 5, FollowsCount: 5}},
			})
		case "/xrpc/app.bsky.graph.getFollowers", "/xrpc/app.bsky.graph.getFollows":
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "InvalidRequest", "message": "actor not found"})
		}
	})

	ctx := context.Background()
	notFound, err := engine.Run(ctx, []string{"did:z"}, 1, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(notFound) != 1 || notFound[0] != "did:z" {
		t.Fatalf("expected did:z reported not found, got %v", notFound)
	}

	uids, err := engine.Cache.ResolveExisting(ctx, []string{"did:z"})
	if err != nil {
		t.Fatalf("ResolveExisting: %v", err)
	}
	account, err := engine.Cache.LoadAccount(ctx, uids["did:z"])
	if err != nil {
		t.Fatalf("LoadAccount: %v", err)
	}
	if account.Fetched {
		t.Fatalf("account removed on both directions should not be marked fetched")
	}
}

// TestResumeIsIdempotent is spec scenario 3: a second run over the same
// seed after a successful expansion issues no further getFollowers
// calls (the account is already Expanded).
func TestResumeIsIdempotent(t *testing.T) {
	profiles := map[string]profile{
		"did:x": {DID: "did:x", Handle: "x.test", FollowersCount: 1, FollowsCount: 0},
		"did:a": {DID: "did:a", Handle: "a.test"},
	}

	calls := 0
	engine, _ := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/xrpc/app.bsky.actor.getProfiles":
			var out []profile
			for _, did := range r.URL.Query()["actors"] {
				if p, ok := profiles[did]; ok {
					out = append(out, p)
				}
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"profiles": out})
		case "/xrpc/app.bsky.graph.getFollowers":
			calls++
			json.NewEncoder(w).Encode(map[string]interface{}{"followers": []profile{{DID: "did:a"}}, "cursor": ""})
		case "/xrpc/app.bsky.graph.getFollows":
			json.NewEncoder(w).Encode(map[string]interface{}{"follows": []profile{}, "cursor": ""})
		}
	})

	ctx := context.Background()
	if _, err := engine.Run(ctx, []string{"did:x"}, 1, false); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	callsAfterFirst := calls
	if callsAfterFirst == 0 {
		t.Fatalf("expected at least one getFollowers call on the first run")
	}

	if _, err := engine.Run(ctx, []string{"did:x"}, 1, false); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if calls != callsAfterFirst {
		t.Fatalf("expected zero additional pagination calls on resume, got %d more", calls-callsAfterFirst)
	}
}
