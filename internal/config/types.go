package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// VersionPrefix is the config version this build understands
const VersionPrefix = "v0.0.1-DEV_EDITION"

// Defaults applied to fields left out of the config file
const (
	DefaultName              = "stylefront"
	DefaultAPITimeout        = 10 * time.Second
	DefaultLandingPath       = "/profile"
	DefaultPublicPath        = "/"
	DefaultAuthenticatedPath = "/dashboard"
	DefaultSettleTimeout     = 1500 * time.Millisecond
	DefaultPageTimeout       = 10 * time.Minute
	DefaultBrowserTimeout    = 24 * time.Hour
	DefaultCleanupInterval   = 1 * time.Minute
	DefaultMaxPerBrowser     = 8
	DefaultUserCacheTTL      = 24 * time.Hour
)

// UserCacheKind selects the user cache backend
type UserCacheKind string

const (
	UserCacheNone      UserCacheKind = "none"
	UserCacheMemory    UserCacheKind = "memory"
	UserCacheRedis     UserCacheKind = "redis"
	UserCacheFirestore UserCacheKind = "firestore"
)

// FrontConfig is the public face of the service
type FrontConfig struct {
	BaseURL string `json:"baseURL"`
	Addr    string `json:"addr"`
	Name    string `json:"name"`
}

// APIConfig points at the backend that owns sessions
type APIConfig struct {
	BaseURL string        `json:"baseURL"`
	Timeout time.Duration `json:"timeout"`
}

// AuthConfig configures the login flow and the guards
type AuthConfig struct {
	// LoginURL is the identity provider entry point. The provider redirects
	// back to LandingPath with a session_id.
	LoginURL          string        `json:"loginURL"`
	LandingPath       string        `json:"landingPath"`
	PublicPath        string        `json:"publicPath"`
	AuthenticatedPath string        `json:"authenticatedPath"`
	SettleTimeout     time.Duration `json:"settleTimeout"`
	CookieSecret      Secret        `json:"cookieSecret"`
	AllowedOrigins    []string      `json:"allowedOrigins"`
}

// PagesConfig bounds the per-browser page registry
type PagesConfig struct {
	Timeout         time.Duration
	BrowserTimeout  time.Duration
	CleanupInterval time.Duration
	MaxPerBrowser   int
}

// UserCacheConfig selects and configures the user cache
type UserCacheConfig struct {
	Kind UserCacheKind `json:"kind"`
	TTL  time.Duration `json:"ttl"`

	RedisAddr     string `json:"redisAddr,omitempty"`
	RedisPassword Secret `json:"redisPassword,omitempty"`
	RedisDB       int    `json:"redisDB,omitempty"`

	GCPProject          string `json:"gcpProject,omitempty"`
	FirestoreDatabase   string `json:"firestoreDatabase,omitempty"`
	FirestoreCollection string `json:"firestoreCollection,omitempty"`
}

// Config represents the config structure with resolved values
type Config struct {
	Version   string          `json:"version"`
	Front     FrontConfig     `json:"front"`
	API       APIConfig       `json:"api"`
	Auth      AuthConfig      `json:"auth"`
	Pages     PagesConfig     `json:"pages"`
	UserCache UserCacheConfig `json:"userCache"`
}

// ParseConfigValue parses a JSON value that is either a plain string or an
// {"$env": "VAR"} reference, resolving the reference immediately.
//
// The explicit JSON syntax is used instead of bash-like $VAR substitution so
// that config files passed through shell scripts are never expanded early.
func ParseConfigValue(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, nil
}
