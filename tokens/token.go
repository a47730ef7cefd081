package tokens

import (
	"context"
	"errors"
	"slices"
	"time"

	"golang.org/x/oauth2"
)

var (
	// ErrTokenUnavailable indicates that a slot has no token yet and the
	// acquisition attempt did not succeed.
	ErrTokenUnavailable = errors.New("tokens: no token available")

	// ErrTokenExpired indicates that the slot's token has passed its
	// expiry without a successful refresh. This is the hard safety
	// boundary: an expired token is never served.
	ErrTokenExpired = errors.New("tokens: token expired")

	// ErrUnknownSlot indicates a lookup for a slot name that was never
	// registered.
	ErrUnknownSlot = errors.New("tokens: unknown slot")

	// ErrShutdown indicates the manager has been shut down.
	ErrShutdown = errors.New("tokens: manager is shut down")
)

// AccessToken is an issued OAuth2 access token together with its
// metadata. It is immutable; slots hand it to callers by value and a
// caller may keep using it until its own natural expiry.
type AccessToken struct {
	// Value is the opaque token string. Never log it.
	Value string

	IssuedAt  time.Time
	ExpiresAt time.Time

	// Scopes granted with this token.
	Scopes []string
}

// Valid reports whether the token is usable at the given instant.
func (t AccessToken) Valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// HasScope reports whether the token was granted the given scope.
func (t AccessToken) HasScope(scope string) bool {
	return slices.Contains(t.Scopes, scope)
}

// OAuth2Token converts the token into the golang.org/x/oauth2
// representation for interoperability with that ecosystem.
func (t AccessToken) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: t.Value,
		TokenType:   "Bearer",
		Expiry:      t.ExpiresAt,
	}
}

// Provider performs the network exchange that turns credentials into an
// access token. Implementations must be safe for concurrent use; the
// manager guarantees at most one in-flight call per slot.
type Provider interface {
	Acquire(ctx context.Context, scopes []string) (AccessToken, error)
}

// Logger is an interface for optional debug logging in the Manager.
type Logger interface {
	Printf(format string, args ...any)
}
