package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// NewLocalHTTPServer starts an HTTP server bound to IPv4 loopback only.
// The sandbox blocks IPv6 listeners, so force tcp4 to keep tests runnable.
func NewLocalHTTPServer(tb testing.TB, handler http.Handler) *httptest.Server {
	tb.Helper()

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("failed to create IPv4 listener: %v", err)
	}

	server := httptest.NewUnstartedServer(handler)
	server.Listener = listener
	server.Start()
	tb.Cleanup(server.Close)

	return server
}

// RoundTripFunc allows inlining http.RoundTripper implementations.
type RoundTripFunc func(*http.Request) (*http.Response, error)

// RoundTrip calls the underlying function.
func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// StaticJSONResponse returns a RoundTripper that always responds with
// the provided JSON body and status.
func StaticJSONResponse(status int, body string) RoundTripFunc {
	return func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    req,
		}, nil
	}
}

// TokenEndpoint is a scripted token provider endpoint. It records every
// request it receives and serves configurable responses, which makes
// fallback and retry behavior observable in tests.
type TokenEndpoint struct {
	mu        sync.Mutex
	requests  []*http.Request
	bodies    []string
	responses []scriptedResponse

	// Default response when the script is exhausted.
	defaultStatus int
	defaultBody   string
}

type scriptedResponse struct {
	status int
	body   string
}

// NewTokenEndpoint creates an endpoint that by default answers with a
// successful token response.
func NewTokenEndpoint() *TokenEndpoint {
	return &TokenEndpoint{
		defaultStatus: http.StatusOK,
		defaultBody:   TokenResponseBody("default-token", 3600, "uid"),
	}
}

// TokenResponseBody builds a provider token response body.
func TokenResponseBody(token string, expiresIn int, scopes ...string) string {
	response := map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   expiresIn,
	}
	if len(scopes) > 0 {
		response["scope"] = strings.Join(scopes, " ")
	}
	raw, _ := json.Marshal(response)
	return string(raw)
}

// Respond sets the default response.
func (e *TokenEndpoint) Respond(status int, body string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.defaultStatus = status
	e.defaultBody = body
}

// Script queues a one-shot response served before the default.
func (e *TokenEndpoint) Script(status int, body string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.responses = append(e.responses, scriptedResponse{status: status, body: body})
}

// ServeHTTP implements http.Handler.
func (e *TokenEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	e.mu.Lock()
	e.requests = append(e.requests, r)
	e.bodies = append(e.bodies, string(body))
	response := scriptedResponse{status: e.defaultStatus, body: e.defaultBody}
	if len(e.responses) > 0 {
		response = e.responses[0]
		e.responses = e.responses[1:]
	}
	e.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(response.status)
	fmt.Fprint(w, response.body)
}

// Requests returns a copy of the recorded requests.
func (e *TokenEndpoint) Requests() []*http.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*http.Request(nil), e.requests...)
}

// RequestBodies returns the recorded request bodies in order.
func (e *TokenEndpoint) RequestBodies() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.bodies...)
}

// RequestCount returns the number of requests served so far.
func (e *TokenEndpoint) RequestCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requests)
}
