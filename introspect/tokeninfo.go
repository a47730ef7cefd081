package introspect

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrNotAuthorized indicates that a token does not carry a required
// scope.
var ErrNotAuthorized = errors.New("introspect: not authorized")

// NotAuthorizedError carries the details of a failed scope check.
type NotAuthorizedError struct {
	UID   string
	Scope string
}

// Error returns a concise authorization error message.
func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("introspect: %q does not have the scope %q", e.UID, e.Scope)
}

// Is enables errors.Is(err, ErrNotAuthorized).
func (e *NotAuthorizedError) Is(target error) bool {
	return target == ErrNotAuthorized
}

// TokenInfo is the authority's answer about a bearer token. Once the
// token has been introspected it can be used for authorization
// decisions through HasScope and Authorize.
type TokenInfo struct {
	// UID identifies the owner of the token.
	UID string

	// Scopes granted to the token.
	Scopes []string

	// ExpiresAt is the token's expiry as reported by the authority.
	ExpiresAt time.Time

	// Raw holds the full claim set returned by the authority.
	Raw map[string]any
}

// HasScope reports whether the token was granted the given scope.
func (t *TokenInfo) HasScope(scope string) bool {
	return slices.Contains(t.Scopes, scope)
}

// HasScopes reports whether the token was granted all of the given
// scopes.
func (t *TokenInfo) HasScopes(scopes ...string) bool {
	for _, scope := range scopes {
		if !t.HasScope(scope) {
			return false
		}
	}
	return true
}

// Authorize checks the token for the given scope and fails with a
// NotAuthorizedError when it is absent.
func (t *TokenInfo) Authorize(scope string) error {
	if t.HasScope(scope) {
		return nil
	}
	return &NotAuthorizedError{UID: t.UID, Scope: scope}
}
