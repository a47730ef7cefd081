package jwtvalidator

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dr0pi/rusty-tokens/internal/testutil"
)

func newValidator(t *testing.T, setup *testutil.JWTTestSetup, issuer string) *Validator {
	t.Helper()
	v, err := New(setup.JWKSJSON(t), issuer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return v
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, ""); err == nil {
		t.Error("expected error for missing JWKS")
	}
	if _, err := New([]byte("surely not json"), ""); err == nil {
		t.Error("expected error for unparsable JWKS")
	}
}

func TestVerify_ValidToken(t *testing.T) {
	setup := testutil.NewJWTTestSetup(t)
	validator := newValidator(t, setup, "B")

	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	token := setup.SignToken(t, setup.StandardClaims("my_app", []string{"uid", "entities.read"}, expiry))

	claims, err := validator.Verify(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if claims.Subject != "my_app" {
		t.Errorf("unexpected subject: %q", claims.Subject)
	}
	if claims.Realm != "/services" {
		t.Errorf("unexpected realm: %q", claims.Realm)
	}
	if claims.Issuer != "B" {
		t.Errorf("unexpected issuer: %q", claims.Issuer)
	}
	if !claims.HasScope("entities.read") || claims.HasScope("entities.write") {
		t.Errorf("unexpected scopes: %v", claims.Scopes)
	}
	if !claims.ExpiresAt.Equal(expiry) {
		t.Errorf("unexpected expiry: %s, want %s", claims.ExpiresAt, expiry)
	}
}

func TestVerify_WrongKey(t *testing.T) {
	trusted := testutil.NewJWTTestSetup(t)
	validator := newValidator(t, trusted, "")

	// Same key id, different key pair.
	impostor := testutil.NewJWTTestSetup(t)
	token := impostor.SignToken(t, impostor.StandardClaims("my_app", nil, time.Now().Add(time.Hour)))

	if _, err := validator.Verify(token); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestVerify_ExpiredToken(t *testing.T) {
	setup := testutil.NewJWTTestSetup(t)
	validator := newValidator(t, setup, "")

	token := setup.SignToken(t, setup.StandardClaims("my_app", nil, time.Now().Add(-time.Minute)))

	if _, err := validator.Verify(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerify_MalformedToken(t *testing.T) {
	setup := testutil.NewJWTTestSetup(t)
	validator := newValidator(t, setup, "")

	for _, token := range []string{"", "garbage", "a.b", "a.b.c"} {
		if _, err := validator.Verify(token); !errors.Is(err, ErrMalformed) {
			t.Errorf("token %q: expected ErrMalformed, got %v", token, err)
		}
	}
}

func TestVerify_MissingSubject(t *testing.T) {
	setup := testutil.NewJWTTestSetup(t)
	validator := newValidator(t, setup, "")

	token := setup.SignToken(t, jwt.MapClaims{
		"realm": "/services",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	if _, err := validator.Verify(token); !errors.Is(err, ErrClaimsMissing) {
		t.Fatalf("expected ErrClaimsMissing, got %v", err)
	}
}

func TestVerify_MissingExpiry(t *testing.T) {
	setup := testutil.NewJWTTestSetup(t)
	validator := newValidator(t, setup, "")

	token := setup.SignToken(t, jwt.MapClaims{
		"sub": "my_app",
		"iat": time.Now().Unix(),
	})

	if _, err := validator.Verify(token); !errors.Is(err, ErrClaimsMissing) {
		t.Fatalf("expected ErrClaimsMissing, got %v", err)
	}
}

func TestVerify_WrongIssuer(t *testing.T) {
	setup := testutil.NewJWTTestSetup(t)
	validator := newValidator(t, setup, "B")

	token := setup.SignToken(t, jwt.MapClaims{
		"sub": "my_app",
		"iss": "someone-else",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if _, err := validator.Verify(token); !errors.Is(err, ErrClaimsMissing) {
		t.Fatalf("expected ErrClaimsMissing, got %v", err)
	}
}

func TestVerify_UnknownKeyID(t *testing.T) {
	trusted := testutil.NewJWTTestSetup(t)
	validator := newValidator(t, trusted, "")

	other := testutil.NewJWTTestSetup(t)
	other.KeyID = "some-other-key"
	token := other.SignToken(t, other.StandardClaims("my_app", nil, time.Now().Add(time.Hour)))

	if _, err := validator.Verify(token); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}
