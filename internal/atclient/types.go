// Package atclient is the thin, single-call HTTP transport over the AT
// Protocol XRPC surface (com.atproto.server.*, app.bsky.actor.*,
// app.bsky.graph.*). It owns request construction and response
// decoding only; rate limiting, retry, and session lifecycle are the
// internal/gateway package's concern (spec ยง4.3 separates the
// "opaque remote capability" from its rate-limited wrapper). Grounded
// on the request/response shape of internal/github/client.go's
// doRequest, minus its own retry loop.
package atclient

import "time"

const (
	// DefaultEndpoint is the public Bluesky network entryway.
	DefaultEndpoint = "https://bsky.social"

	// DefaultTimeout bounds a single HTTP round trip.
	DefaultTimeout = 30 * time.Second

	// MaxProfilesPerCall is the server-side cap on getProfiles batch size
	// (spec ยง5.1 phase 1: "profiles are fetched in batches of 25").
	MaxProfilesPerCall = 25

	// FollowPageSize is the page size requested when paginating followers
	// or follows (spec ยง5.2 phase 2).
	FollowPageSize = 100
)

// Session is the bearer credential returned by createSession and
// accepted back by the session-string login path.
type Session struct {
	DID        string `json:"did"`
	Handle     string `json:"handle"`
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
}

// Profile is the subset of app.bsky.actor.defs#profileView this system
// persists.
type Profile struct {
	DID            string `json:"did"`
	Handle         string `json:"handle"`
	DisplayName    string `json:"displayName"`
	Description    string `json:"description"`
	FollowersCount int    `json:"followersCount"`
	FollowsCount   int    `json:"followsCount"`
}

// Actor is one entry in a followers/follows listing: lighter than a
// full Profile, but enough to enqueue for the next crawl depth.
type Actor struct {
	DID    string `json:"did"`
	Handle string `json:"handle"`
}

// FollowPage is one page of a followers or follows listing, normalized
// to a single shape regardless of which XRPC endpoint produced it.
type FollowPage struct {
	Actors []Actor
	Cursor string
}
