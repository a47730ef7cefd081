// Package jwtvalidator verifies self-contained (JWT) bearer tokens
// locally, without contacting a remote authority.
//
// This is the fallback validation path for deployments where the
// token-info authority is unavailable or inapplicable; the introspect
// package is the primary path, and the two are never silently mixed for
// the same request. Scope here is deliberately narrow: structural
// parsing plus signature verification against a fixed key set, not
// general claim policy.
package jwtvalidator

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrSignatureInvalid indicates that the token's signature does not
	// verify against the configured keys.
	ErrSignatureInvalid = errors.New("jwtvalidator: signature invalid")

	// ErrExpired indicates a structurally valid token past its expiry.
	ErrExpired = errors.New("jwtvalidator: token expired")

	// ErrMalformed indicates that the token is not a parsable JWT.
	ErrMalformed = errors.New("jwtvalidator: token malformed")

	// ErrClaimsMissing indicates that a required claim is absent or does
	// not match expectations.
	ErrClaimsMissing = errors.New("jwtvalidator: required claim missing")
)

// Claims is the verified content of a self-contained token, in the
// shape issued by Plan B style providers.
type Claims struct {
	Subject   string
	Realm     string
	Scopes    []string
	Issuer    string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// HasScope reports whether the token was granted the given scope.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Logger is an interface for optional debug logging in the Validator.
type Logger interface {
	Printf(format string, args ...any)
}

// Validator verifies self-contained tokens against a static JWKS.
// Verification is purely local; the key set is given at construction
// and never fetched over the network.
type Validator struct {
	jwks   *keyfunc.JWKS
	parser *jwt.Parser
	logger Logger
}

// ValidatorOption is a functional option for configuring a Validator.
type ValidatorOption func(*Validator)

// WithLogger sets a custom logger for validation events.
// If not set, no logging will occur.
func WithLogger(logger Logger) ValidatorOption {
	return func(v *Validator) {
		v.logger = logger
	}
}

// New creates a validator from a raw JWKS document and an expected
// issuer.
//
// Parameters:
//   - jwksJSON: the JSON web key set containing the trusted public keys
//   - issuer: expected iss claim; empty disables the issuer check
//   - opts: optional configuration (WithLogger)
func New(jwksJSON json.RawMessage, issuer string, opts ...ValidatorOption) (*Validator, error) {
	if len(jwksJSON) == 0 {
		return nil, errors.New("jwtvalidator: JWKS is required")
	}

	jwks, err := keyfunc.NewJSON(jwksJSON)
	if err != nil {
		return nil, fmt.Errorf("jwtvalidator: failed to parse JWKS: %w", err)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(issuer))
	}

	v := &Validator{
		jwks:   jwks,
		parser: jwt.NewParser(parserOpts...),
	}
	for _, opt := range opts {
		opt(v)
	}

	return v, nil
}

// Verify parses the token, checks its signature against the configured
// keys and extracts the claims.
func (v *Validator) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: token is empty", ErrMalformed)
	}

	parsed, err := v.parser.ParseWithClaims(tokenString, jwt.MapClaims{}, v.jwks.Keyfunc)
	if err != nil {
		return nil, classifyParseError(err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrMalformed)
	}

	claims, err := buildClaims(mapClaims)
	if err != nil {
		return nil, err
	}

	if v.logger != nil {
		v.logger.Printf("jwtvalidator: verified token for subject %s with scopes %v", claims.Subject, claims.Scopes)
	}

	return claims, nil
}

// classifyParseError maps golang-jwt errors onto this package's error
// taxonomy.
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: %v", ErrClaimsMissing, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return fmt.Errorf("%w: %v", ErrClaimsMissing, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	default:
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
}

func buildClaims(mapClaims jwt.MapClaims) (*Claims, error) {
	subject, err := mapClaims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("%w: sub", ErrClaimsMissing)
	}

	expiry, err := mapClaims.GetExpirationTime()
	if err != nil || expiry == nil {
		return nil, fmt.Errorf("%w: exp", ErrClaimsMissing)
	}

	claims := &Claims{
		Subject:   subject,
		ExpiresAt: expiry.Time,
	}

	if issuedAt, err := mapClaims.GetIssuedAt(); err == nil && issuedAt != nil {
		claims.IssuedAt = issuedAt.Time
	}
	if issuer, err := mapClaims.GetIssuer(); err == nil {
		claims.Issuer = issuer
	}
	if realm, ok := mapClaims["realm"].(string); ok {
		claims.Realm = realm
	}
	claims.Scopes = extractScopes(mapClaims["scope"])

	return claims, nil
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
	default:
		return nil
	}
}
