// Package provider implements the network exchange that turns
// credentials into access tokens.
//
// A Client posts a grant request to an ordered list of token endpoints,
// primary first, and falls back to the next endpoint on transport
// errors, server-side failures and unusable response bodies.
// Authoritative rejections (4xx) are not retried. Supported grants are
// client-credentials and resource-owner-password.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dr0pi/rusty-tokens/credentials"
	"github.com/dr0pi/rusty-tokens/tokens"
)

var (
	// ErrProviderUnavailable indicates that every configured endpoint
	// failed with a transport error or a server-side failure.
	ErrProviderUnavailable = errors.New("provider: all endpoints unavailable")

	// ErrProviderRejected indicates an authoritative 4xx rejection. It
	// is not retried against the fallback endpoint.
	ErrProviderRejected = errors.New("provider: request rejected")

	// ErrResponseMalformed indicates a 2xx response whose body could not
	// be used.
	ErrResponseMalformed = errors.New("provider: response malformed")
)

// DefaultTokenLifetime is assumed for a provider response that omits
// expires_in. A token without a known expiry cannot be scheduled for
// refresh, so instead of rejecting the response outright the client
// assigns this deliberately short lifetime and lets the normal refresh
// cycle replace the token quickly.
const DefaultTokenLifetime = 60 * time.Second

// GrantType selects the OAuth2 grant used for token requests.
type GrantType string

const (
	// GrantClientCredentials authenticates the application itself.
	GrantClientCredentials GrantType = "client_credentials"
	// GrantPassword authenticates a resource owner through the user
	// credential (resource-owner-password grant).
	GrantPassword GrantType = "password"
)

// Logger is an interface for optional debug logging in the Client.
type Logger interface {
	Printf(format string, args ...any)
}

// Client requests access tokens from a token provider. It implements
// tokens.Provider.
type Client struct {
	endpoints   []string
	realm       string
	grant       GrantType
	credentials credentials.Provider
	httpClient  *http.Client
	logger      Logger

	now func() time.Time
}

// ClientOption is a functional option for configuring a Client.
type ClientOption func(*Client)

// WithFallbackURL appends a fallback endpoint tried when the endpoints
// before it fail.
func WithFallbackURL(url string) ClientOption {
	return func(c *Client) {
		if url != "" {
			c.endpoints = append(c.endpoints, url)
		}
	}
}

// WithRealm sets the realm sent as a query parameter on token requests.
func WithRealm(realm string) ClientOption {
	return func(c *Client) {
		c.realm = realm
	}
}

// WithGrantType selects the grant used for token requests. The default
// is GrantPassword, matching deployments where tokens are issued for a
// service user.
func WithGrantType(grant GrantType) ClientOption {
	return func(c *Client) {
		c.grant = grant
	}
}

// WithHTTPClient sets the HTTP client used for token requests
// (optional, uses http.DefaultClient if nil).
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithLogger sets a custom logger for request events.
// If not set, no logging will occur.
func WithLogger(logger Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a token provider client.
//
// Parameters:
//   - providerURL: primary token endpoint
//   - creds: source of the client and user credentials
//   - opts: optional configuration (WithFallbackURL, WithRealm,
//     WithGrantType, WithHTTPClient, WithLogger)
func NewClient(providerURL string, creds credentials.Provider, opts ...ClientOption) (*Client, error) {
	if providerURL == "" {
		return nil, errors.New("provider: provider URL is required")
	}
	if creds == nil {
		return nil, errors.New("provider: credentials provider is required")
	}

	c := &Client{
		endpoints:   []string{providerURL},
		grant:       GrantPassword,
		credentials: creds,
		httpClient:  http.DefaultClient,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Acquire requests an access token for the given scopes. Endpoints are
// tried in order with a single retry budget; the first success or 4xx
// rejection wins. Any other failure, a garbled response body included,
// moves on to the next endpoint and is surfaced only once the list is
// exhausted.
func (c *Client) Acquire(ctx context.Context, scopes []string) (tokens.AccessToken, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	snapshot := c.credentials.Current()

	var lastErr error
	for i, endpoint := range c.endpoints {
		if i > 0 && c.logger != nil {
			c.logger.Printf("provider: falling back to %s", endpoint)
		}

		tok, err := c.acquireFrom(ctx, endpoint, snapshot, scopes)
		if err == nil {
			return tok, nil
		}
		if errors.Is(err, ErrProviderRejected) {
			return tokens.AccessToken{}, err
		}
		if ctx.Err() != nil {
			return tokens.AccessToken{}, fmt.Errorf("provider: request cancelled: %w", ctx.Err())
		}
		lastErr = err
	}

	if errors.Is(lastErr, ErrResponseMalformed) {
		return tokens.AccessToken{}, lastErr
	}
	return tokens.AccessToken{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, lastErr)
}

func (c *Client) acquireFrom(ctx context.Context, endpoint string, snapshot credentials.Snapshot, scopes []string) (tokens.AccessToken, error) {
	req, err := c.newTokenRequest(ctx, endpoint, snapshot, scopes)
	if err != nil {
		return tokens.AccessToken{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return tokens.AccessToken{}, fmt.Errorf("provider: request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return tokens.AccessToken{}, fmt.Errorf("provider: failed to read response from %s: %w", endpoint, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return c.parseTokenResponse(body)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return tokens.AccessToken{}, fmt.Errorf("%w: %s returned status %d", ErrProviderRejected, endpoint, resp.StatusCode)
	default:
		return tokens.AccessToken{}, fmt.Errorf("provider: %s returned status %d", endpoint, resp.StatusCode)
	}
}

func (c *Client) newTokenRequest(ctx context.Context, endpoint string, snapshot credentials.Snapshot, scopes []string) (*http.Request, error) {
	form := url.Values{}
	form.Set("grant_type", string(c.grant))
	if c.grant == GrantPassword {
		form.Set("username", snapshot.User.Username)
		form.Set("password", snapshot.User.Password)
	}
	if len(scopes) > 0 {
		form.Set("scope", strings.Join(scopes, " "))
	}

	requestURL := endpoint
	if c.realm != "" {
		separator := "?"
		if strings.Contains(endpoint, "?") {
			separator = "&"
		}
		requestURL = endpoint + separator + "realm=" + url.QueryEscape(c.realm)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("provider: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(snapshot.Client.ID, snapshot.Client.Secret)

	return req, nil
}

type tokenResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresIn   json.RawMessage `json:"expires_in"`
	Scope       string          `json:"scope"`
}

func (c *Client) parseTokenResponse(body []byte) (tokens.AccessToken, error) {
	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return tokens.AccessToken{}, fmt.Errorf("%w: %v", ErrResponseMalformed, err)
	}
	if parsed.AccessToken == "" {
		return tokens.AccessToken{}, fmt.Errorf("%w: access_token is missing", ErrResponseMalformed)
	}

	lifetime, err := parseExpiresIn(parsed.ExpiresIn)
	if err != nil {
		return tokens.AccessToken{}, err
	}
	if lifetime == 0 {
		if c.logger != nil {
			c.logger.Printf("provider: response omits expires_in, assuming %s lifetime", DefaultTokenLifetime)
		}
		lifetime = DefaultTokenLifetime
	}

	now := c.now()
	return tokens.AccessToken{
		Value:     parsed.AccessToken,
		IssuedAt:  now,
		ExpiresAt: now.Add(lifetime),
		Scopes:    strings.Fields(parsed.Scope),
	}, nil
}

// parseExpiresIn accepts expires_in as a JSON number or a numeric
// string; both occur in the wild. A zero return with nil error means
// the field was absent.
func parseExpiresIn(raw json.RawMessage) (time.Duration, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}

	var seconds float64
	if err := json.Unmarshal(raw, &seconds); err != nil {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, fmt.Errorf("%w: unusable expires_in %q", ErrResponseMalformed, raw)
		}
		if _, err := fmt.Sscanf(text, "%f", &seconds); err != nil {
			return 0, fmt.Errorf("%w: unusable expires_in %q", ErrResponseMalformed, raw)
		}
	}
	if seconds < 0 {
		return 0, fmt.Errorf("%w: negative expires_in %q", ErrResponseMalformed, raw)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}
