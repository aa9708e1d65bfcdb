package atclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Sentinel classification errors. The gateway inspects these with
// errors.Is to decide whether a failure is retryable, a terminal data
// outcome, or fatal (spec ยง6).
var (
	// ErrAuthFailed means the credentials themselves are rejected; retrying
	// the same session or password will not help.
	ErrAuthFailed = errors.New("atclient: authentication failed")
	// ErrActorNotFound means the server affirmatively reports the actor
	// does not exist (HTTP 400 with a recognizable "not found" message),
	// as distinct from a transient failure.
	ErrActorNotFound = errors.New("atclient: actor not found")
	// ErrTransient covers rate limiting (429), server errors (5xx), and
	// transport or response-read failures: exactly the conditions the
	// gateway should retry.
	ErrTransient = errors.New("atclient: transient remote error")
)

// Client is a single XRPC HTTP transport, carrying no retry or rate
// limiting of its own.
type Client struct {
	Endpoint   string
	HTTPClient *http.Client
}

// New returns a Client against endpoint (or DefaultEndpoint if empty).
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		Endpoint:   endpoint,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
	}
}

func (c *Client) buildURL(method string, params map[string]string) string {
	u := c.Endpoint + "/xrpc/" + method
	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			if v != "" {
				values.Set(k, v)
			}
		}
		if enc := values.Encode(); enc != "" {
			u += "?" + enc
		}
	}
	return u
}

// do performs a single procedure or query call, classifying any
// non-2xx response into one of the sentinel errors above.
func (c *Client) do(ctx context.Context, method, httpMethod, xrpcMethod string, params map[string]string, body, authToken interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("atclient: marshal %s body: %w", xrpcMethod, err)
		}
		reqBody = bytes.NewReader(b)
	}

	urlStr := c.buildURL(xrpcMethod, params)
	req, err := http.NewRequestWithContext(ctx, httpMethod, urlStr, reqBody)
	if err != nil {
		return fmt.Errorf("atclient: build %s request: %w", xrpcMethod, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token, ok := authToken.(string); ok && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransient, xrpcMethod, err)
	}
	defer resp.Body.Close()

	const maxResponseSize = 10 * 1024 * 1024
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: read %s response: %v", ErrTransient, xrpcMethod, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("atclient: decode %s response: %w", xrpcMethod, err)
		}
		return nil
	}

	return classifyError(xrpcMethod, resp.StatusCode, respBody)
}

func classifyError(xrpcMethod string, status int, body []byte) error {
	var apiErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &apiErr)

	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s: %s", ErrAuthFailed, xrpcMethod, apiErr.Message)
	case status == http.StatusBadRequest && (apiErr.Error == "InvalidRequest" && looksLikeNotFound(apiErr.Message)):
		return fmt.Errorf("%w: %s: %s", ErrActorNotFound, xrpcMethod, apiErr.Message)
	case status == http.StatusTooManyRequests, status >= 500:
		return fmt.Errorf("%w: %s: status %d: %s", ErrTransient, xrpcMethod, status, apiErr.Message)
	default:
		return fmt.Errorf("atclient: %s: status %d: %s", xrpcMethod, status, string(body))
	}
}

func looksLikeNotFound(msg string) bool {
	lower := strings.ToLower(msg)
	for _, needle := range []string{"not found", "unable to resolve", "could not be found"} {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}

// CreateSession exchanges identifier/password for a Session.
func (c *Client) CreateSession(ctx context.Context, identifier, password string) (Session, error) {
	var sess Session
	body := map[string]string{"identifier": identifier, "password": password}
	err := c.do(ctx, "create_session", http.MethodPost, "com.atproto.server.createSession", nil, body, nil, &sess)
	return sess, err
}

// GetSession validates an access token still refers to a live session,
// used to decide whether a persisted session file can be reused as-is.
func (c *Client) GetSession(ctx context.Context, accessJwt string) (Session, error) {
	var sess Session
	err := c.do(ctx, "get_session", http.MethodGet, "com.atproto.server.getSession", nil, nil, accessJwt, &sess)
	return sess, err
}

// GetProfiles fetches up to MaxProfilesPerCall actor profiles in one
// call (spec ยง5.1 phase 1).
func (c *Client) GetProfiles(ctx context.Context, accessJwt string, dids []string) ([]Profile, error) {
	if len(dids) > MaxProfilesPerCall {
		return nil, fmt.Errorf("atclient: get_profiles: %d dids exceeds max batch %d", len(dids), MaxProfilesPerCall)
	}
	values := url.Values{}
	for _, d := range dids {
		values.Add("actors", d)
	}
	var resp struct {
		Profiles []Profile `json:"profiles"`
	}
	urlStr := c.buildURL("app.bsky.actor.getProfiles", nil) + "?" + values.Encode()
	err := c.doRaw(ctx, http.MethodGet, urlStr, nil, accessJwt, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Profiles, nil
}

// doRaw is do without the buildURL step, for callers (like GetProfiles)
// that must build a query string with repeated keys that url.Values'
// map-based Encode in buildURL's params map cannot express.
func (c *Client) doRaw(ctx context.Context, httpMethod, urlStr string, body interface{}, authToken interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("atclient: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, httpMethod, urlStr, reqBody)
	if err != nil {
		return fmt.Errorf("atclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token, ok := authToken.(string); ok && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrTransient, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil {
			return json.Unmarshal(respBody, out)
		}
		return nil
	}
	return classifyError(urlStr, resp.StatusCode, respBody)
}

// GetFollowers fetches one page of did's followers.
func (c *Client) GetFollowers(ctx context.Context, accessJwt, did, cursor string) (FollowPage, error) {
	var resp struct {
		Followers []Actor `json:"followers"`
		Cursor    string  `json:"cursor"`
	}
	params := map[string]string{"actor": did, "limit": strconv.Itoa(FollowPageSize), "cursor": cursor}
	err := c.do(ctx, "get_followers", http.MethodGet, "app.bsky.graph.getFollowers", params, nil, accessJwt, &resp)
	if err != nil {
		return FollowPage{}, err
	}
	return FollowPage{Actors: resp.Followers, Cursor: resp.Cursor}, nil
}

// GetFollows fetches one page of who did follows.
func (c *Client) GetFollows(ctx context.Context, accessJwt, did, cursor string) (FollowPage, error) {
	var resp struct {
		Follows []Actor `json:"follows"`
		Cursor  string  `json:"cursor"`
	}
	params := map[string]string{"actor": did, "limit": strconv.Itoa(FollowPageSize), "cursor": cursor}
	err := c.do(ctx, "get_follows", http.MethodGet, "app.bsky.graph.getFollows", params, nil, accessJwt, &resp)
	if err != nil {
		return FollowPage{}, err
	}
	return FollowPage{Actors: resp.Follows, Cursor: resp.Cursor}, nil
}
