package config

import "encoding/json"

// GenerateDefault returns a starter config file. Secrets are env references
// so the file can be committed as is.
func GenerateDefault() ([]byte, error) {
	defaultConfig := map[string]any{
		"version": VersionPrefix,
		"front": map[string]any{
			"baseURL": "https://style.yourcompany.com",
			"addr":    ":8080",
			"name":    DefaultName,
		},
		"api": map[string]any{
			"baseURL": "https://api.style.yourcompany.com",
			"timeout": DefaultAPITimeout.String(),
		},
		"auth": map[string]any{
			"loginURL":          "https://auth.yourcompany.com/",
			"landingPath":       DefaultLandingPath,
			"publicPath":        DefaultPublicPath,
			"authenticatedPath": DefaultAuthenticatedPath,
			"settleTimeout":     DefaultSettleTimeout.String(),
			"cookieSecret":      map[string]string{"$env": "STYLEFRONT_COOKIE_SECRET"},
			"allowedOrigins":    []string{"https://style.yourcompany.com"},
		},
		"pages": map[string]any{
			"timeout":         DefaultPageTimeout.String(),
			"browserTimeout":  DefaultBrowserTimeout.String(),
			"cleanupInterval": DefaultCleanupInterval.String(),
			"maxPerBrowser":   DefaultMaxPerBrowser,
		},
		"userCache": map[string]any{
			"kind": string(UserCacheMemory),
			"ttl":  DefaultUserCacheTTL.String(),
		},
	}

	return json.MarshalIndent(defaultConfig, "", "  ")
}
