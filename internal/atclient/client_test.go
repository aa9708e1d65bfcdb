package atclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateSession_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/xrpc/com.atproto.server.createSession" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Session{DID: "did:x", Handle: "x.test", AccessJwt: "tok"})
	}))
	defer server.Close()

	c := New(server.URL)
	sess, err := c.CreateSession(context.Background(), "x.test", "pw")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.DID != "did:x" || sess.AccessJwt != "tok" {
		t.Fatalf("unexpected session: %+v", sess)
	}
}

func TestCreateSession_AuthFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "AuthenticationRequired", "message": "bad creds"})
	}))
	defer server.Close()

	c := New(server.URL)
	_, err := c.CreateSession(context.Background(), "x.test", "wrong")
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestGetProfiles_RespectsMaxBatch(t *testing.T) {
	c := New("http://unused.invalid")
	dids := make([]string, MaxProfilesPerCall+1)
	for i := range dids {
		dids[i] = "did:x"
	}
	_, err := c.GetProfiles(context.Background(), "tok", dids)
	if err == nil {
		t.Fatalf("expected error for batch exceeding max size")
	}
}

func TestGetProfiles_DecodesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"profiles": []Profile{
				{DID: "did:a", Handle: "a.test", FollowersCount: 3, FollowsCount: 1},
			},
		})
	}))
	defer server.Close()

	c := New(server.URL)
	profiles, err := c.GetProfiles(context.Background(), "tok", []string{"did:a"})
	if err != nil {
		t.Fatalf("GetProfiles: %v", err)
	}
	if len(profiles) != 1 || profiles[0].DID != "did:a" {
		t.Fatalf("unexpected profiles: %+v", profiles)
	}
}

func TestGetFollowers_ClassifiesActorNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "InvalidRequest", "message": "Unable to resolve did"})
	}))
	defer server.Close()

	c := New(server.URL)
	_, err := c.GetFollowers(context.Background(), "tok", "did:gone", "")
	if !errors.Is(err, ErrActorNotFound) {
		t.Fatalf("expected ErrActorNotFound, got %v", err)
	}
}

func TestGetFollowers_ClassifiesTransientOn5xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := New(server.URL)
	_, err := c.GetFollowers(context.Background(), "tok", "did:x", "")
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
}

func TestGetFollows_PaginatesViaCursor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cursor := r.URL.Query().Get("cursor")
		if cursor == "" {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"follows": []Actor{{DID: "did:a"}},
				"cursor":  "page2",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"follows": []Actor{{DID: "did:b"}},
			"cursor":  "",
		})
	}))
	defer server.Close()

	c := New(server.URL)
	page1, err := c.GetFollows(context.Background(), "tok", "did:x", "")
	if err != nil {
		t.Fatalf("GetFollows page1: %v", err)
	}
	if len(page1.Actors) != 1 || page1.Actors[0].DID != "did:a" || page1.Cursor != "page2" {
		t.Fatalf("unexpected page1: %+v", page1)
	}

	page2, err := c.GetFollows(context.Background(), "tok", "did:x", page1.Cursor)
	if err != nil {
		t.Fatalf("GetFollows page2: %v", err)
	}
	if len(page2.Actors) != 1 || page2.Actors[0].DID != "did:b" || page2.Cursor != "" {
		t.Fatalf("unexpected page2: %+v", page2)
	}
}
