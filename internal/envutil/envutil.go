// Package envutil reads the deployment mode from STYLEFRONT_ENV.
package envutil

import (
	"os"
	"strings"
)

// EnvVar selects the deployment mode.
const EnvVar = "STYLEFRONT_ENV"

// Env is a deployment mode.
type Env string

const (
	Production  Env = "production"
	Development Env = "development"
)

// Current returns the mode from STYLEFRONT_ENV. Anything unrecognized,
// including an unset variable, is production.
func Current() Env {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvVar))) {
	case "dev", "development", "local":
		return Development
	default:
		return Production
	}
}

// IsDev reports whether we run in development mode. Cookies then drop the
// Secure flag so plain HTTP works on localhost, and violated auth state
// invariants panic instead of being logged.
func IsDev() bool {
	return Current() == Development
}
