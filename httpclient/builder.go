package httpclient

import (
	"errors"
	"net/http"
	"time"

	"github.com/dr0pi/rusty-tokens/tokens"
)

// Builder provides a fluent interface for constructing HTTP clients
// that authenticate through a token slot.
type Builder struct {
	manager *tokens.Manager
	slot    string

	timeout         time.Duration
	baseTransport   http.RoundTripper
	followRedirects bool
}

// NewBuilder creates a new HTTP client builder.
func NewBuilder() *Builder {
	return &Builder{
		timeout:         30 * time.Second, // Default 30s timeout
		followRedirects: true,
	}
}

// WithTokenSlot sets the token manager and the slot used for
// authentication.
func (b *Builder) WithTokenSlot(manager *tokens.Manager, slot string) *Builder {
	b.manager = manager
	b.slot = slot
	return b
}

// WithTimeout sets the overall request timeout. Zero disables it.
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.timeout = timeout
	return b
}

// WithBaseTransport sets the transport requests are ultimately sent
// through.
func (b *Builder) WithBaseTransport(transport http.RoundTripper) *Builder {
	b.baseTransport = transport
	return b
}

// WithoutRedirects disables following redirects.
func (b *Builder) WithoutRedirects() *Builder {
	b.followRedirects = false
	return b
}

// Build assembles the HTTP client.
func (b *Builder) Build() (*http.Client, error) {
	if b.manager == nil {
		return nil, errors.New("httpclient: token manager is required")
	}
	if b.slot == "" {
		return nil, errors.New("httpclient: token slot name is required")
	}

	client := &http.Client{
		Timeout:   b.timeout,
		Transport: NewBearerTransport(b.manager, b.slot, b.baseTransport),
	}

	if !b.followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return client, nil
}
