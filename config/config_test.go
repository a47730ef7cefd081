package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TOKENS_PROVIDER_URL", "https://token.example.com/oauth2/access_token")
	t.Setenv("TOKENS_TOKEN_INFO_URL", "https://info.example.com/oauth2/tokeninfo")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "access_token", cfg.TokenInfoQueryParameter)
	assert.Equal(t, "client.json", cfg.ClientCredentialsFileName)
	assert.Equal(t, "user.json", cfg.UserCredentialsFileName)
	assert.InDelta(t, 0.8, cfg.RefreshFactor, 1e-9)
	assert.InDelta(t, 0.9, cfg.WarningFactor, 1e-9)
}

func TestLoad_ReadsAllOptions(t *testing.T) {
	t.Setenv("TOKENS_PROVIDER_URL", "https://token.example.com")
	t.Setenv("TOKENS_FALLBACK_PROVIDER_URL", "https://token-fallback.example.com")
	t.Setenv("TOKENS_PROVIDER_REALM", "/services")
	t.Setenv("TOKENS_TOKEN_INFO_URL", "https://info.example.com")
	t.Setenv("TOKENS_FALLBACK_TOKEN_INFO_URL", "https://info-fallback.example.com")
	t.Setenv("TOKENS_TOKEN_INFO_QUERY_PARAMETER", "token")
	t.Setenv("TOKENS_CREDENTIALS_DIR", "/meta/credentials")
	t.Setenv("TOKENS_CLIENT_CREDENTIALS_FILE_NAME", "c.json")
	t.Setenv("TOKENS_USER_CREDENTIALS_FILE_NAME", "u.json")
	t.Setenv("TOKENS_REFRESH_FACTOR", "0.6")
	t.Setenv("TOKENS_WARNING_FACTOR", "0.8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://token.example.com", cfg.ProviderURL)
	assert.Equal(t, "https://token-fallback.example.com", cfg.FallbackProviderURL)
	assert.Equal(t, "/services", cfg.ProviderRealm)
	assert.Equal(t, "token", cfg.TokenInfoQueryParameter)
	assert.Equal(t, "/meta/credentials", cfg.CredentialsDir)
	assert.Equal(t, "c.json", cfg.ClientCredentialsFileName)
	assert.Equal(t, "u.json", cfg.UserCredentialsFileName)
	assert.InDelta(t, 0.6, cfg.RefreshFactor, 1e-9)
	assert.InDelta(t, 0.8, cfg.WarningFactor, 1e-9)
}

func TestValidate_FactorInvariant(t *testing.T) {
	tests := []struct {
		name    string
		refresh float64
		warning float64
		wantErr bool
	}{
		{"valid defaults", 0.8, 0.9, false},
		{"refresh equals warning", 0.8, 0.8, true},
		{"refresh above warning", 0.9, 0.8, true},
		{"refresh zero", 0, 0.9, true},
		{"warning one", 0.8, 1, true},
		{"refresh negative", -0.1, 0.9, true},
		{"tight but valid", 0.01, 0.02, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				RefreshFactor:           tt.refresh,
				WarningFactor:           tt.warning,
				TokenInfoQueryParameter: "access_token",
			}
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_FallbackWithoutPrimary(t *testing.T) {
	cfg := &Config{
		RefreshFactor:           0.8,
		WarningFactor:           0.9,
		TokenInfoQueryParameter: "access_token",
		FallbackProviderURL:     "https://token-fallback.example.com",
	}
	require.Error(t, cfg.Validate())

	cfg = &Config{
		RefreshFactor:           0.8,
		WarningFactor:           0.9,
		TokenInfoQueryParameter: "access_token",
		FallbackTokenInfoURL:    "https://info-fallback.example.com",
	}
	require.Error(t, cfg.Validate())
}

func TestValidate_EmptyQueryParameter(t *testing.T) {
	cfg := &Config{RefreshFactor: 0.8, WarningFactor: 0.9}
	assert.Error(t, cfg.Validate())
}

func TestLoad_InvalidFactorFailsFast(t *testing.T) {
	t.Setenv("TOKENS_REFRESH_FACTOR", "1.5")

	_, err := Load()
	require.Error(t, err)
}

func TestURLOrdering(t *testing.T) {
	cfg := &Config{
		ProviderURL:          "https://token.example.com",
		FallbackProviderURL:  "https://token-fallback.example.com",
		TokenInfoURL:         "https://info.example.com",
		FallbackTokenInfoURL: "",
	}

	assert.Equal(t,
		[]string{"https://token.example.com", "https://token-fallback.example.com"},
		cfg.ProviderURLs())
	assert.Equal(t, []string{"https://info.example.com"}, cfg.TokenInfoURLs())
}
