package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseSections = `
	"front": {"baseURL": "https://style.example.com", "addr": ":8080"},
	"api": {"baseURL": "https://api.example.com"},`

func TestValidateFile(t *testing.T) {
	tests := []struct {
		name          string
		config        string
		wantErrors    []string
		wantWarnings  []string
		wantErrCount  int
		wantWarnCount int
	}{
		{
			name: "valid_minimal_config",
			config: `{
				"version": "v0.0.1-DEV_EDITION",` + baseSections + `
				"auth": {
					"loginURL": "https://auth.example.com/",
					"cookieSecret": {"$env": "COOKIE_SECRET"}
				}
			}`,
		},
		{
			name: "valid_redis_cache",
			config: `{
				"version": "v0.0.1-DEV_EDITION",` + baseSections + `
				"auth": {
					"loginURL": "https://auth.example.com/",
					"cookieSecret": {"$env": "COOKIE_SECRET"}
				},
				"userCache": {
					"kind": "redis",
					"redisAddr": "localhost:6379",
					"redisPassword": {"$env": "REDIS_PASSWORD"}
				}
			}`,
		},
		{
			name: "missing_sections",
			config: `{
				"version": "v0.0.1-DEV_EDITION"
			}`,
			wantErrors:   []string{"front field is required", "api field is required", "auth field is required"},
			wantErrCount: 3,
		},
		{
			name: "missing_required_fields",
			config: `{
				"version": "v0.0.1-DEV_EDITION",
				"front": {},
				"api": {},
				"auth": {}
			}`,
			wantErrors: []string{
				"baseURL is required. Example: \"https://style.example.com\"",
				"addr is required",
				"baseURL is required. Example: \"https://api.style.example.com\"",
				"loginURL is required",
				"cookieSecret is required",
			},
			wantErrCount: 5,
		},
		{
			name: "plain_text_cookie_secret",
			config: `{
				"version": "v0.0.1-DEV_EDITION",` + baseSections + `
				"auth": {
					"loginURL": "https://auth.example.com/",
					"cookieSecret": "hardcoded-secret"
				}
			}`,
			wantErrors:   []string{"cookieSecret must use environment variable reference"},
			wantErrCount: 1,
		},
		{
			name: "bash_style_cookie_secret",
			config: `{
				"version": "v0.0.1-DEV_EDITION",` + baseSections + `
				"auth": {
					"loginURL": "https://auth.example.com/",
					"cookieSecret": "$COOKIE_SECRET"
				}
			}`,
			wantErrors:    []string{"found bash-style syntax '$COOKIE_SECRET'"},
			wantWarnings:  []string{"use {\"$env\": \"COOKIE_SECRET\"} instead"},
			wantErrCount:  1,
			wantWarnCount: 1,
		},
		{
			name: "bad_version",
			config: `{
				"version": "v1",` + baseSections + `
				"auth": {
					"loginURL": "https://auth.example.com/",
					"cookieSecret": {"$env": "COOKIE_SECRET"}
				}
			}`,
			wantErrors:   []string{"unsupported version 'v1'"},
			wantErrCount: 1,
		},
		{
			name: "landing_equals_public",
			config: `{
				"version": "v0.0.1-DEV_EDITION",` + baseSections + `
				"auth": {
					"loginURL": "https://auth.example.com/",
					"cookieSecret": {"$env": "COOKIE_SECRET"},
					"landingPath": "/",
					"publicPath": "/"
				}
			}`,
			wantErrors:    []string{"landingPath must differ from publicPath"},
			wantWarnings:  []string{"identity provider redirect URL must match"},
			wantErrCount:  1,
			wantWarnCount: 1,
		},
		{
			name: "relative_path",
			config: `{
				"version": "v0.0.1-DEV_EDITION",` + baseSections + `
				"auth": {
					"loginURL": "https://auth.example.com/",
					"cookieSecret": {"$env": "COOKIE_SECRET"},
					"authenticatedPath": "dashboard"
				}
			}`,
			wantErrors:   []string{"authenticatedPath must be a path starting with /"},
			wantErrCount: 1,
		},
		{
			name: "page_durations",
			config: `{
				"version": "v0.0.1-DEV_EDITION",` + baseSections + `
				"auth": {
					"loginURL": "https://auth.example.com/",
					"cookieSecret": {"$env": "COOKIE_SECRET"},
					"settleTimeout": "30s"
				},
				"pages": {
					"timeout": "1m",
					"cleanupInterval": "5m",
					"browserTimeout": "forever",
					"maxPerBrowser": 0
				}
			}`,
			wantErrors: []string{"invalid duration 'forever'"},
			wantWarnings: []string{
				"holds requests for a long time",
				"Idle pages will remain in memory until cleanup runs",
				"maxPerBrowser is 0 (unlimited)",
			},
			wantErrCount:  1,
			wantWarnCount: 3,
		},
		{
			name: "negative_max_per_browser",
			config: `{
				"version": "v0.0.1-DEV_EDITION",` + baseSections + `
				"auth": {
					"loginURL": "https://auth.example.com/",
					"cookieSecret": {"$env": "COOKIE_SECRET"}
				},
				"pages": {"maxPerBrowser": -2}
			}`,
			wantErrors:   []string{"maxPerBrowser cannot be negative"},
			wantErrCount: 1,
		},
		{
			name: "cache_kinds",
			config: `{
				"version": "v0.0.1-DEV_EDITION",` + baseSections + `
				"auth": {
					"loginURL": "https://auth.example.com/",
					"cookieSecret": {"$env": "COOKIE_SECRET"}
				},
				"userCache": {"kind": "firestore"}
			}`,
			wantErrors:   []string{"gcpProject is required when kind is firestore"},
			wantErrCount: 1,
		},
		{
			name: "cache_disabled",
			config: `{
				"version": "v0.0.1-DEV_EDITION",` + baseSections + `
				"auth": {
					"loginURL": "https://auth.example.com/",
					"cookieSecret": {"$env": "COOKIE_SECRET"}
				},
				"userCache": {"kind": "none"}
			}`,
			wantWarnings:  []string{"user cache disabled"},
			wantWarnCount: 1,
		},
		{
			name: "unknown_cache_kind",
			config: `{
				"version": "v0.0.1-DEV_EDITION",` + baseSections + `
				"auth": {
					"loginURL": "https://auth.example.com/",
					"cookieSecret": {"$env": "COOKIE_SECRET"}
				},
				"userCache": {"kind": "localstorage"}
			}`,
			wantErrors:   []string{"unknown kind 'localstorage'"},
			wantErrCount: 1,
		},
		{
			name: "bash_style_in_plain_field",
			config: `{
				"version": "v0.0.1-DEV_EDITION",
				"front": {"baseURL": "${FRONT_URL}", "addr": ":8080"},
				"api": {"baseURL": "https://api.example.com"},
				"auth": {
					"loginURL": "https://auth.example.com/",
					"cookieSecret": {"$env": "COOKIE_SECRET"}
				}
			}`,
			wantWarnings:  []string{"found bash-style syntax '${FRONT_URL}'"},
			wantWarnCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(configPath, []byte(tt.config), 0644))

			result, err := ValidateFile(configPath)
			require.NoError(t, err)

			assert.Equal(t, tt.wantErrCount, len(result.Errors), "errors: %v", result.Errors)
			assert.Equal(t, tt.wantWarnCount, len(result.Warnings), "warnings: %v", result.Warnings)
			assert.Equal(t, tt.wantErrCount == 0, result.IsValid())

			for _, wantErr := range tt.wantErrors {
				assert.True(t, containsMessage(result.Errors, wantErr), "expected error containing '%s' not found in %v", wantErr, result.Errors)
			}
			for _, wantWarn := range tt.wantWarnings {
				assert.True(t, containsMessage(result.Warnings, wantWarn), "expected warning containing '%s' not found in %v", wantWarn, result.Warnings)
			}
		})
	}
}

func containsMessage(list []ValidationError, want string) bool {
	for _, e := range list {
		if strings.Contains(e.Message, want) {
			return true
		}
	}
	return false
}

func TestValidateFile_InvalidJSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{invalid json`), 0644))

	result, err := ValidateFile(configPath)
	assert.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 1, len(result.Errors))
	assert.Contains(t, result.Errors[0].Message, "invalid JSON")
}

func TestValidateFile_FileNotFound(t *testing.T) {
	result, err := ValidateFile("/nonexistent/file.json")
	assert.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "reading config file")
}
