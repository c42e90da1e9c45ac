package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/dgellow/stylefront/internal/log"
)

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse processes raw config bytes the same way Load does
func Parse(data []byte) (Config, error) {
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, VersionPrefix) {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately.
	// maxPerBrowser is preset so an explicit 0 can be told from a missing value.
	config := Config{Pages: PagesConfig{MaxPerBrowser: DefaultMaxPerBrowser}}
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	ApplyDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validateRawConfig validates the config structure before environment resolution
func validateRawConfig(rawConfig map[string]any) error {
	secrets := []struct {
		section string
		name    string
	}{
		{"auth", "cookieSecret"},
		{"userCache", "redisPassword"},
	}

	for _, secret := range secrets {
		section, ok := rawConfig[secret.section].(map[string]any)
		if !ok {
			continue
		}
		value, exists := section[secret.name]
		if !exists {
			continue
		}
		// Check if it's a string (bad) or a map (good - env ref)
		if _, isString := value.(string); isString {
			return fmt.Errorf("%s.%s must use environment variable reference for security", secret.section, secret.name)
		}
		if refMap, isMap := value.(map[string]any); isMap {
			if _, hasEnv := refMap["$env"]; !hasEnv {
				return fmt.Errorf("%s.%s must use {\"$env\": \"VAR_NAME\"} format", secret.section, secret.name)
			}
		}
	}
	return nil
}

// ApplyDefaults fills in every optional field left at its zero value
func ApplyDefaults(config *Config) {
	if config.Front.Name == "" {
		config.Front.Name = DefaultName
	}
	if config.API.Timeout == 0 {
		config.API.Timeout = DefaultAPITimeout
	}

	auth := &config.Auth
	if auth.LandingPath == "" {
		auth.LandingPath = DefaultLandingPath
	}
	if auth.PublicPath == "" {
		auth.PublicPath = DefaultPublicPath
	}
	if auth.AuthenticatedPath == "" {
		auth.AuthenticatedPath = DefaultAuthenticatedPath
	}
	if auth.SettleTimeout == 0 {
		auth.SettleTimeout = DefaultSettleTimeout
	}

	pages := &config.Pages
	if pages.Timeout == 0 {
		pages.Timeout = DefaultPageTimeout
	}
	if pages.BrowserTimeout == 0 {
		pages.BrowserTimeout = DefaultBrowserTimeout
	}
	if pages.CleanupInterval == 0 {
		pages.CleanupInterval = DefaultCleanupInterval
	}

	if config.UserCache.Kind == "" {
		config.UserCache.Kind = UserCacheMemory
	}
	if config.UserCache.TTL == 0 {
		config.UserCache.TTL = DefaultUserCacheTTL
	}
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.Front.BaseURL == "" {
		return fmt.Errorf("front.baseURL is required")
	}
	if config.Front.Addr == "" {
		return fmt.Errorf("front.addr is required")
	}

	if err := validateHTTPURL("api.baseURL", config.API.BaseURL); err != nil {
		return err
	}
	if config.API.Timeout < 0 {
		return fmt.Errorf("api.timeout cannot be negative")
	}

	if err := validateAuthConfig(&config.Auth); err != nil {
		return fmt.Errorf("auth config: %w", err)
	}

	pages := config.Pages
	if pages.Timeout < 0 {
		return fmt.Errorf("pages.timeout cannot be negative")
	}
	if pages.BrowserTimeout < 0 {
		return fmt.Errorf("pages.browserTimeout cannot be negative")
	}
	if pages.CleanupInterval < 0 {
		return fmt.Errorf("pages.cleanupInterval cannot be negative")
	}
	if pages.Timeout > 0 && pages.CleanupInterval > pages.Timeout {
		log.LogWarn("Page cleanup interval is greater than page timeout")
	}
	if pages.MaxPerBrowser < 0 {
		return fmt.Errorf("pages.maxPerBrowser cannot be negative")
	}
	if pages.MaxPerBrowser == 0 {
		log.LogWarn("Page maxPerBrowser is 0 (unlimited) - this may allow resource exhaustion")
	}

	if err := validateUserCacheConfig(&config.UserCache); err != nil {
		return fmt.Errorf("userCache config: %w", err)
	}
	return nil
}

func validateHTTPURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL", field)
	}
	return nil
}

func validateAuthConfig(auth *AuthConfig) error {
	if err := validateHTTPURL("loginURL", auth.LoginURL); err != nil {
		return err
	}
	if len(auth.CookieSecret) < 32 {
		return fmt.Errorf("cookieSecret must be at least 32 characters (got %d). Generate with: openssl rand -base64 32", len(auth.CookieSecret))
	}
	for name, path := range map[string]string{
		"landingPath":       auth.LandingPath,
		"publicPath":        auth.PublicPath,
		"authenticatedPath": auth.AuthenticatedPath,
	} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("%s must start with /", name)
		}
	}
	if auth.LandingPath == auth.PublicPath {
		return fmt.Errorf("landingPath must differ from publicPath")
	}
	if auth.AuthenticatedPath == auth.PublicPath {
		return fmt.Errorf("authenticatedPath must differ from publicPath")
	}
	if auth.SettleTimeout < 0 {
		return fmt.Errorf("settleTimeout cannot be negative")
	}
	return nil
}

func validateUserCacheConfig(c *UserCacheConfig) error {
	if c.TTL < 0 {
		return fmt.Errorf("ttl cannot be negative")
	}
	switch c.Kind {
	case UserCacheNone, UserCacheMemory:
	case UserCacheRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redisAddr is required when using redis")
		}
		if c.RedisDB < 0 {
			return fmt.Errorf("redisDB cannot be negative")
		}
	case UserCacheFirestore:
		if c.GCPProject == "" {
			return fmt.Errorf("gcpProject is required when using firestore")
		}
	default:
		return fmt.Errorf("unknown kind %q (use none, memory, redis or firestore)", c.Kind)
	}
	return nil
}
