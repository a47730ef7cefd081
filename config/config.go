// Package config loads the process-wide configuration for the token
// trust infrastructure from environment variables.
//
// Configuration is immutable once loaded. Both the client role (token
// acquisition) and the resource-server role (token introspection) read
// from the same Config; each consumer only validates the options it
// actually needs at construction time, while Load enforces the
// cross-cutting invariants up front.
package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for the library.
type Config struct {
	// Token provider (client role). The fallback URL is tried when the
	// primary endpoint fails with a transport error or a 5xx response.
	ProviderURL         string `env:"TOKENS_PROVIDER_URL"`
	FallbackProviderURL string `env:"TOKENS_FALLBACK_PROVIDER_URL"`

	// Optional realm sent as a query parameter on token requests.
	ProviderRealm string `env:"TOKENS_PROVIDER_REALM"`

	// Token introspection (resource-server role).
	TokenInfoURL         string `env:"TOKENS_TOKEN_INFO_URL"`
	FallbackTokenInfoURL string `env:"TOKENS_FALLBACK_TOKEN_INFO_URL"`

	// Name of the query parameter carrying the bearer token on
	// introspection calls.
	TokenInfoQueryParameter string `env:"TOKENS_TOKEN_INFO_QUERY_PARAMETER" envDefault:"access_token"`

	// Credential files. Both files live in CredentialsDir.
	CredentialsDir            string `env:"TOKENS_CREDENTIALS_DIR"`
	ClientCredentialsFileName string `env:"TOKENS_CLIENT_CREDENTIALS_FILE_NAME" envDefault:"client.json"`
	UserCredentialsFileName   string `env:"TOKENS_USER_CREDENTIALS_FILE_NAME" envDefault:"user.json"`

	// RefreshFactor is the fraction of a token's lifetime at which a
	// proactive refresh is scheduled. WarningFactor is the fraction past
	// which a stale-but-valid token triggers a warning signal. The
	// invariant 0 < RefreshFactor < WarningFactor < 1 is enforced by
	// Validate.
	RefreshFactor float64 `env:"TOKENS_REFRESH_FACTOR" envDefault:"0.8"`
	WarningFactor float64 `env:"TOKENS_WARNING_FACTOR" envDefault:"0.9"`
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first when present, without overriding
// variables already set in the environment.
//
// Configuration errors at startup are fatal by contract: Load returns an
// error and the caller is expected to fail fast.
func Load() (*Config, error) {
	// Best effort; a missing .env file is not an error.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the cross-cutting configuration invariants.
func (c *Config) Validate() error {
	if c.RefreshFactor <= 0 || c.RefreshFactor >= 1 {
		return fmt.Errorf("config: refresh factor must be in (0,1), got %v", c.RefreshFactor)
	}
	if c.WarningFactor <= 0 || c.WarningFactor >= 1 {
		return fmt.Errorf("config: warning factor must be in (0,1), got %v", c.WarningFactor)
	}
	if c.RefreshFactor >= c.WarningFactor {
		return fmt.Errorf("config: refresh factor (%v) must be less than warning factor (%v)",
			c.RefreshFactor, c.WarningFactor)
	}
	if c.FallbackProviderURL != "" && c.ProviderURL == "" {
		return errors.New("config: fallback provider URL set without a primary provider URL")
	}
	if c.FallbackTokenInfoURL != "" && c.TokenInfoURL == "" {
		return errors.New("config: fallback token-info URL set without a primary token-info URL")
	}
	if c.TokenInfoQueryParameter == "" {
		return errors.New("config: token-info query parameter must not be empty")
	}
	return nil
}

// ProviderURLs returns the ordered list of token provider endpoints,
// primary first.
func (c *Config) ProviderURLs() []string {
	return appendNonEmpty(c.ProviderURL, c.FallbackProviderURL)
}

// TokenInfoURLs returns the ordered list of token-info endpoints,
// primary first.
func (c *Config) TokenInfoURLs() []string {
	return appendNonEmpty(c.TokenInfoURL, c.FallbackTokenInfoURL)
}

func appendNonEmpty(urls ...string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}
