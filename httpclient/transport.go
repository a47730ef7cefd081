package httpclient

import (
	"fmt"
	"net/http"

	"github.com/dr0pi/rusty-tokens/tokens"
)

// BearerTransport is an http.RoundTripper that automatically adds
// bearer tokens from a token slot to outgoing HTTP requests.
//
// It wraps an existing transport (typically http.DefaultTransport) and
// injects the Authorization header before each request.
type BearerTransport struct {
	// Base is the underlying HTTP transport. If nil, http.DefaultTransport is used.
	Base http.RoundTripper

	// Manager provides access tokens.
	Manager *tokens.Manager

	// Slot names the token slot to draw from.
	Slot string
}

// RoundTrip implements the http.RoundTripper interface.
// It fetches a valid token for the configured slot and adds it as
// "Authorization: Bearer <token>" to the request headers before
// delegating to the base transport. The token fetch respects the
// request context's cancellation and deadline.
func (t *BearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Manager == nil {
		return nil, fmt.Errorf("httpclient: Manager is nil")
	}

	token, err := t.Manager.GetToken(req.Context(), t.Slot)
	if err != nil {
		return nil, fmt.Errorf("httpclient: failed to get token: %w", err)
	}

	// Clone the request to avoid modifying the original.
	reqClone := req.Clone(req.Context())
	reqClone.Header.Set("Authorization", "Bearer "+token.Value)

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	return base.RoundTrip(reqClone)
}

// NewBearerTransport creates a BearerTransport drawing tokens from the
// named slot. The base transport defaults to http.DefaultTransport if
// not specified.
func NewBearerTransport(manager *tokens.Manager, slot string, base http.RoundTripper) *BearerTransport {
	if base == nil {
		base = http.DefaultTransport
	}

	return &BearerTransport{
		Base:    base,
		Manager: manager,
		Slot:    slot,
	}
}
