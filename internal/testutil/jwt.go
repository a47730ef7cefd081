package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTTestSetup bundles an RSA signing key with the matching JWKS
// document, so tests can mint tokens a validator built from JWKSJSON
// will accept.
type JWTTestSetup struct {
	Key   *rsa.PrivateKey
	KeyID string
}

// NewJWTTestSetup generates a fresh RSA key pair for signing test
// tokens.
func NewJWTTestSetup(tb testing.TB) *JWTTestSetup {
	tb.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		tb.Fatalf("failed to generate RSA key: %v", err)
	}

	return &JWTTestSetup{Key: key, KeyID: "test-key"}
}

// JWKSJSON returns the JWKS document for the public half of the key.
func (s *JWTTestSetup) JWKSJSON(tb testing.TB) json.RawMessage {
	tb.Helper()

	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": s.KeyID,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(s.Key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(s.Key.PublicKey.E)).Bytes()),
			},
		},
	}

	raw, err := json.Marshal(jwks)
	if err != nil {
		tb.Fatalf("failed to marshal JWKS: %v", err)
	}
	return raw
}

// SignToken creates a signed RS256 token with the given claims.
func (s *JWTTestSetup) SignToken(tb testing.TB, claims jwt.MapClaims) string {
	tb.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.KeyID

	signed, err := token.SignedString(s.Key)
	if err != nil {
		tb.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

// StandardClaims returns a Plan B shaped claim set expiring at the
// given time.
func (s *JWTTestSetup) StandardClaims(subject string, scopes []string, expiresAt time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   subject,
		"realm": "/services",
		"scope": scopes,
		"iss":   "B",
		"exp":   expiresAt.Unix(),
		"iat":   time.Now().Unix(),
	}
}
