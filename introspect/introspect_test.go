package introspect

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/dr0pi/rusty-tokens/internal/testutil"
)

// tokenInfoEndpoint records token-info requests and serves a fixed
// response.
type tokenInfoEndpoint struct {
	mu       sync.Mutex
	status   int
	body     string
	requests []*http.Request
}

func newTokenInfoEndpoint(status int, body string) *tokenInfoEndpoint {
	return &tokenInfoEndpoint{status: status, body: body}
}

func (e *tokenInfoEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.mu.Lock()
	e.requests = append(e.requests, r)
	status, body := e.status, e.body
	e.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func (e *tokenInfoEndpoint) requestCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requests)
}

func (e *tokenInfoEndpoint) lastRequest() *http.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.requests) == 0 {
		return nil
	}
	return e.requests[len(e.requests)-1]
}

func TestNewClient_Validation(t *testing.T) {
	if _, err := NewClient(""); err == nil {
		t.Error("expected error for missing token-info URL")
	}
}

func TestIntrospect_Success(t *testing.T) {
	endpoint := newTokenInfoEndpoint(http.StatusOK,
		`{"uid": "my_app", "scope": ["uid", "entities.read"], "expires_in": 30, "realm": "/services"}`)
	server := testutil.NewLocalHTTPServer(t, endpoint)

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()

	info, err := client.Introspect(context.Background(), "opaque-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if info.UID != "my_app" {
		t.Errorf("unexpected uid: %q", info.UID)
	}
	if !info.HasScopes("uid", "entities.read") {
		t.Errorf("unexpected scopes: %v", info.Scopes)
	}
	if realm, _ := info.Raw["realm"].(string); realm != "/services" {
		t.Errorf("raw claims not preserved: %v", info.Raw)
	}

	request := endpoint.lastRequest()
	if request.Method != http.MethodGet {
		t.Errorf("token-info lookups must be GET, got %s", request.Method)
	}
	if got := request.URL.Query().Get("access_token"); got != "opaque-token" {
		t.Errorf("expected the token in the access_token query parameter, got %q", got)
	}
}

func TestIntrospect_CustomQueryParameter(t *testing.T) {
	endpoint := newTokenInfoEndpoint(http.StatusOK, `{"uid": "my_app", "expires_in": 30}`)
	server := testutil.NewLocalHTTPServer(t, endpoint)

	client, err := NewClient(server.URL, WithQueryParameter("token"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()

	if _, err := client.Introspect(context.Background(), "opaque-token"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := endpoint.lastRequest().URL.Query().Get("token"); got != "opaque-token" {
		t.Errorf("expected the token in the configured parameter, got %q", got)
	}
}

func TestIntrospect_CachesUntilExpiry(t *testing.T) {
	endpoint := newTokenInfoEndpoint(http.StatusOK, `{"uid": "my_app", "expires_in": 300}`)
	server := testutil.NewLocalHTTPServer(t, endpoint)

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()

	for i := 0; i < 3; i++ {
		if _, err := client.Introspect(context.Background(), "opaque-token"); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
	}

	if got := endpoint.requestCount(); got != 1 {
		t.Errorf("expected repeated lookups to be served from cache, got %d requests", got)
	}
}

func TestIntrospect_CacheEntryExpires(t *testing.T) {
	endpoint := newTokenInfoEndpoint(http.StatusOK, `{"uid": "my_app", "expires_in": 1}`)
	server := testutil.NewLocalHTTPServer(t, endpoint)

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()

	if _, err := client.Introspect(context.Background(), "opaque-token"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Past the token's own expiry the cached answer must be gone and
	// the next lookup goes upstream again.
	time.Sleep(1200 * time.Millisecond)

	if _, err := client.Introspect(context.Background(), "opaque-token"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := endpoint.requestCount(); got != 2 {
		t.Errorf("expected a second upstream lookup after cache expiry, got %d requests", got)
	}
}

func TestIntrospect_FallbackOnServerError(t *testing.T) {
	primary := newTokenInfoEndpoint(http.StatusInternalServerError, "")
	primaryServer := testutil.NewLocalHTTPServer(t, primary)

	fallback := newTokenInfoEndpoint(http.StatusOK, `{"uid": "my_app", "expires_in": 300}`)
	fallbackServer := testutil.NewLocalHTTPServer(t, fallback)

	client, err := NewClient(primaryServer.URL, WithFallbackURL(fallbackServer.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()

	info, err := client.Introspect(context.Background(), "opaque-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.UID != "my_app" {
		t.Errorf("unexpected uid: %q", info.UID)
	}

	// The fallback's answer is cached like any other.
	if _, err := client.Introspect(context.Background(), "opaque-token"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.requestCount() != 1 || fallback.requestCount() != 1 {
		t.Errorf("expected one request per endpoint, got %d/%d", primary.requestCount(), fallback.requestCount())
	}
}

func TestIntrospect_RejectionIsNotRetried(t *testing.T) {
	primary := newTokenInfoEndpoint(http.StatusBadRequest, `{"error": "invalid_token"}`)
	primaryServer := testutil.NewLocalHTTPServer(t, primary)

	fallback := newTokenInfoEndpoint(http.StatusOK, `{"uid": "my_app", "expires_in": 300}`)
	fallbackServer := testutil.NewLocalHTTPServer(t, fallback)

	client, err := NewClient(primaryServer.URL, WithFallbackURL(fallbackServer.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()

	_, err = client.Introspect(context.Background(), "opaque-token")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
	if fallback.requestCount() != 0 {
		t.Errorf("authoritative rejection must not hit the fallback, got %d requests", fallback.requestCount())
	}
}

func TestIntrospect_AllEndpointsUnavailable(t *testing.T) {
	primary := newTokenInfoEndpoint(http.StatusBadGateway, "")
	primaryServer := testutil.NewLocalHTTPServer(t, primary)

	fallback := newTokenInfoEndpoint(http.StatusServiceUnavailable, "")
	fallbackServer := testutil.NewLocalHTTPServer(t, fallback)

	client, err := NewClient(primaryServer.URL, WithFallbackURL(fallbackServer.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()

	_, err = client.Introspect(context.Background(), "opaque-token")
	if !errors.Is(err, ErrTokenInfoUnavailable) {
		t.Fatalf("expected ErrTokenInfoUnavailable, got %v", err)
	}
	if errors.Is(err, ErrTokenInvalid) {
		t.Error("an unreachable authority must not be reported as an invalid token")
	}
}

func TestIntrospect_InactiveToken(t *testing.T) {
	endpoint := newTokenInfoEndpoint(http.StatusOK, `{"active": false}`)
	server := testutil.NewLocalHTTPServer(t, endpoint)

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()

	if _, err := client.Introspect(context.Background(), "opaque-token"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestIntrospect_MalformedResponse(t *testing.T) {
	endpoint := newTokenInfoEndpoint(http.StatusOK, "surely not json")
	server := testutil.NewLocalHTTPServer(t, endpoint)

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()

	if _, err := client.Introspect(context.Background(), "opaque-token"); !errors.Is(err, ErrResponseMalformed) {
		t.Fatalf("expected ErrResponseMalformed, got %v", err)
	}
}

func TestIntrospect_EmptyToken(t *testing.T) {
	endpoint := newTokenInfoEndpoint(http.StatusOK, `{"uid": "my_app"}`)
	server := testutil.NewLocalHTTPServer(t, endpoint)

	client, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()

	if _, err := client.Introspect(context.Background(), ""); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
	if endpoint.requestCount() != 0 {
		t.Errorf("an empty token must be rejected locally, got %d requests", endpoint.requestCount())
	}
}

func TestParseTokenInfo_Variants(t *testing.T) {
	client := &Client{now: func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }}

	t.Run("scope as string", func(t *testing.T) {
		info, err := client.parseTokenInfo([]byte(`{"sub": "my_app", "scope": "uid entities.read", "expires_in": 30}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if info.UID != "my_app" {
			t.Errorf("expected sub to serve as the uid, got %q", info.UID)
		}
		if !info.HasScopes("uid", "entities.read") {
			t.Errorf("unexpected scopes: %v", info.Scopes)
		}
	})

	t.Run("exp as unix seconds", func(t *testing.T) {
		exp := time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)
		info, err := client.parseTokenInfo([]byte(`{"client_id": "my_app", "exp": 1714568400}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !info.ExpiresAt.Equal(exp) {
			t.Errorf("unexpected expiry: %s", info.ExpiresAt)
		}
	})

	t.Run("already expired", func(t *testing.T) {
		if _, err := client.parseTokenInfo([]byte(`{"uid": "my_app", "expires_in": 0}`)); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected ErrTokenInvalid, got %v", err)
		}
	})

	t.Run("unusable expiry", func(t *testing.T) {
		if _, err := client.parseTokenInfo([]byte(`{"uid": "my_app", "expires_in": {}}`)); !errors.Is(err, ErrResponseMalformed) {
			t.Fatalf("expected ErrResponseMalformed, got %v", err)
		}
	})
}

func TestTokenInfo_Authorize(t *testing.T) {
	info := &TokenInfo{UID: "my_app", Scopes: []string{"uid", "entities.read"}}

	if err := info.Authorize("entities.read"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	err := info.Authorize("entities.write")
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	var notAuthorized *NotAuthorizedError
	if !errors.As(err, &notAuthorized) || notAuthorized.Scope != "entities.write" {
		t.Errorf("unexpected error details: %v", err)
	}
}
