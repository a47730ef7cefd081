// Package introspect implements the resource-server side of the
// library: resolving opaque bearer tokens against a remote token-info
// authority.
//
// A Client asks the primary token-info endpoint whether a token is
// valid and what it authorizes, falls back to a secondary endpoint when
// the primary is unreachable, and caches successful answers under the
// token value until the token's own expiry. An unreachable authority
// (ErrTokenInfoUnavailable) is reported distinctly from an explicit
// rejection (ErrTokenInvalid), so the resource server can choose its
// own fail-open or fail-closed policy.
package introspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrTokenInfoUnavailable indicates that every configured token-info
	// endpoint failed. The token's validity is undecided; treating this
	// as "token invalid" is the caller's policy decision, not the
	// library's.
	ErrTokenInfoUnavailable = errors.New("introspect: token-info unavailable")

	// ErrTokenInvalid indicates that the authority explicitly refused
	// the token.
	ErrTokenInvalid = errors.New("introspect: token invalid")

	// ErrResponseMalformed indicates a 2xx answer whose body could not
	// be used.
	ErrResponseMalformed = errors.New("introspect: response malformed")
)

const (
	// DefaultQueryParameter carries the bearer token on token-info
	// calls unless configured otherwise.
	DefaultQueryParameter = "access_token"

	cacheNumCounters = 100_000
	cacheMaxCost     = 10_000
)

// Logger is an interface for optional debug logging in the Client.
type Logger interface {
	Printf(format string, args ...any)
}

// Client validates opaque bearer tokens against a token-info authority
// with caching and fallback. It is safe for concurrent use; concurrent
// cache misses for the same token collapse into a single upstream call.
type Client struct {
	endpoints      []string
	queryParameter string
	httpClient     *http.Client
	logger         Logger

	cache *ristretto.Cache[string, *TokenInfo]
	group singleflight.Group

	now func() time.Time
}

// ClientOption is a functional option for configuring a Client.
type ClientOption func(*Client)

// WithFallbackURL appends a fallback token-info endpoint tried when the
// endpoints before it fail.
func WithFallbackURL(url string) ClientOption {
	return func(c *Client) {
		if url != "" {
			c.endpoints = append(c.endpoints, url)
		}
	}
}

// WithQueryParameter sets the name of the query parameter carrying the
// bearer token. The default is "access_token".
func WithQueryParameter(name string) ClientOption {
	return func(c *Client) {
		if name != "" {
			c.queryParameter = name
		}
	}
}

// WithHTTPClient sets the HTTP client used for token-info requests
// (optional, uses http.DefaultClient if nil).
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithLogger sets a custom logger for debugging.
// If not set, no logging will occur.
func WithLogger(logger Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a token introspection client.
//
// Parameters:
//   - tokenInfoURL: primary token-info endpoint
//   - opts: optional configuration (WithFallbackURL, WithQueryParameter,
//     WithHTTPClient, WithLogger)
func NewClient(tokenInfoURL string, opts ...ClientOption) (*Client, error) {
	if tokenInfoURL == "" {
		return nil, errors.New("introspect: token-info URL is required")
	}

	c := &Client{
		endpoints:      []string{tokenInfoURL},
		queryParameter: DefaultQueryParameter,
		httpClient:     http.DefaultClient,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, *TokenInfo]{
		NumCounters: cacheNumCounters,
		MaxCost:     cacheMaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("introspect: failed to initialize cache: %w", err)
	}
	c.cache = cache

	return c, nil
}

// Close releases the result cache.
func (c *Client) Close() {
	c.cache.Close()
}

// Introspect resolves a bearer token to its TokenInfo. Cached answers
// are served until the token's own expiry; entries are never kept past
// it.
func (c *Client) Introspect(ctx context.Context, token string) (*TokenInfo, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if token == "" {
		return nil, fmt.Errorf("%w: token is empty", ErrTokenInvalid)
	}

	if info, ok := c.cache.Get(token); ok {
		return info, nil
	}

	result, err, _ := c.group.Do(token, func() (any, error) {
		// A concurrent call may have filled the cache while we queued.
		if info, ok := c.cache.Get(token); ok {
			return info, nil
		}

		info, err := c.fetch(ctx, token)
		if err != nil {
			return nil, err
		}

		if ttl := info.ExpiresAt.Sub(c.now()); ttl > 0 {
			c.cache.SetWithTTL(token, info, 1, ttl)
			c.cache.Wait()
		}

		return info, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*TokenInfo), nil
}

// fetch asks the configured endpoints in order. The first authoritative
// answer wins; transport errors and server-side failures move on to the
// next endpoint.
func (c *Client) fetch(ctx context.Context, token string) (*TokenInfo, error) {
	var lastErr error
	for i, endpoint := range c.endpoints {
		if i > 0 && c.logger != nil {
			c.logger.Printf("introspect: falling back to %s", endpoint)
		}

		info, err := c.fetchFrom(ctx, endpoint, token)
		if err == nil {
			return info, nil
		}
		if errors.Is(err, ErrTokenInvalid) || errors.Is(err, ErrResponseMalformed) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("introspect: request cancelled: %w", ctx.Err())
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w: %v", ErrTokenInfoUnavailable, lastErr)
}

func (c *Client) fetchFrom(ctx context.Context, endpoint, token string) (*TokenInfo, error) {
	requestURL, err := buildTokenInfoURL(endpoint, c.queryParameter, token)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("introspect: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("introspect: request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("introspect: failed to read response from %s: %w", endpoint, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return c.parseTokenInfo(body)
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s returned status %d", ErrTokenInvalid, endpoint, resp.StatusCode)
	default:
		return nil, fmt.Errorf("introspect: %s returned status %d", endpoint, resp.StatusCode)
	}
}

func buildTokenInfoURL(endpoint, parameter, token string) (string, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("introspect: invalid endpoint %q: %w", endpoint, err)
	}

	query := parsed.Query()
	query.Set(parameter, token)
	parsed.RawQuery = query.Encode()

	return parsed.String(), nil
}

func (c *Client) parseTokenInfo(body []byte) (*TokenInfo, error) {
	var claims map[string]any
	if err := json.Unmarshal(body, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseMalformed, err)
	}

	// RFC 7662 style authorities report validity in-band.
	if active, ok := claims["active"].(bool); ok && !active {
		return nil, fmt.Errorf("%w: authority reports token inactive", ErrTokenInvalid)
	}

	info := &TokenInfo{
		UID:    firstNonEmpty(claimString(claims, "uid"), claimString(claims, "sub"), claimString(claims, "client_id")),
		Scopes: extractScopes(claims["scope"]),
		Raw:    claims,
	}

	now := c.now()
	if raw, ok := claims["expires_in"]; ok {
		seconds, err := claimNumber(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid expires_in: %v", ErrResponseMalformed, err)
		}
		info.ExpiresAt = now.Add(time.Duration(seconds * float64(time.Second)))
	} else if raw, ok := claims["exp"]; ok {
		seconds, err := claimNumber(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid exp: %v", ErrResponseMalformed, err)
		}
		info.ExpiresAt = time.Unix(int64(seconds), 0)
	}

	if !info.ExpiresAt.IsZero() && !info.ExpiresAt.After(now) {
		return nil, fmt.Errorf("%w: token already expired", ErrTokenInvalid)
	}

	return info, nil
}

func extractScopes(raw any) []string {
	switch value := raw.(type) {
	case []any:
		scopes := make([]string, 0, len(value))
		for _, element := range value {
			if scope, ok := element.(string); ok {
				scopes = append(scopes, scope)
			}
		}
		return scopes
	case []string:
		return append([]string(nil), value...)
	case string:
		return strings.Fields(value)
	default:
		return []string{}
	}
}

func claimString(claims map[string]any, key string) string {
	value, ok := claims[key].(string)
	if !ok {
		return ""
	}
	return value
}

func claimNumber(raw any) (float64, error) {
	switch value := raw.(type) {
	case float64:
		return value, nil
	case json.Number:
		return value.Float64()
	case string:
		return strconv.ParseFloat(value, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", raw)
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
