package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

var bashStyleRegex = regexp.MustCompile(`\$\{?([A-Z_][A-Z0-9_]*)\}?`)

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ValidateBytes(data), nil
}

// ValidateBytes validates raw config bytes without requiring env vars
func ValidateBytes(data []byte) *ValidationResult {
	result := &ValidationResult{}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": %q", VersionPrefix)
	} else if !strings.HasPrefix(version, VersionPrefix) {
		result.addError("version", "unsupported version '%s' - use '%s' or '%s-<variant>'", version, VersionPrefix, VersionPrefix)
	}

	validateFrontStructure(rawConfig, result)
	validateAPIStructure(rawConfig, result)
	validateAuthStructure(rawConfig, result)
	validatePagesStructure(rawConfig, result)
	validateUserCacheStructure(rawConfig, result)

	return result
}

func section(rawConfig map[string]any, name string, required bool, result *ValidationResult) (map[string]any, bool) {
	value, exists := rawConfig[name]
	if !exists {
		if required {
			result.addError(name, "%s field is required and must be an object", name)
		}
		return nil, false
	}
	m, ok := value.(map[string]any)
	if !ok {
		result.addError(name, "%s must be an object", name)
		return nil, false
	}
	return m, true
}

func validateFrontStructure(rawConfig map[string]any, result *ValidationResult) {
	front, ok := section(rawConfig, "front", true, result)
	if !ok {
		return
	}
	if _, ok := front["baseURL"]; !ok {
		result.addError("front.baseURL", "baseURL is required. Example: \"https://style.example.com\"")
	}
	if _, ok := front["addr"]; !ok {
		result.addError("front.addr", "addr is required. Example: \":8080\" or \"0.0.0.0:8080\"")
	}
}

func validateAPIStructure(rawConfig map[string]any, result *ValidationResult) {
	api, ok := section(rawConfig, "api", true, result)
	if !ok {
		return
	}
	if base, ok := api["baseURL"]; !ok {
		result.addError("api.baseURL", "baseURL is required. Example: \"https://api.style.example.com\"")
	} else if s, isString := base.(string); isString {
		if err := validateHTTPURL("baseURL", s); err != nil {
			result.addError("api.baseURL", "%v", err)
		}
	}
	validateDurationField(api, "timeout", "api.timeout", result)
}

func validateAuthStructure(rawConfig map[string]any, result *ValidationResult) {
	auth, ok := section(rawConfig, "auth", true, result)
	if !ok {
		return
	}

	if _, ok := auth["loginURL"]; !ok {
		result.addError("auth.loginURL", "loginURL is required. Example: \"https://auth.example.com/\"")
	}

	if secret, ok := auth["cookieSecret"]; !ok {
		result.addError("auth.cookieSecret", "cookieSecret is required. Example: {\"$env\": \"STYLEFRONT_COOKIE_SECRET\"}")
	} else if err := validateEnvVarReference(secret, "cookieSecret", "auth.cookieSecret"); err != nil {
		result.Errors = append(result.Errors, *err)
	}

	paths := map[string]string{}
	for _, name := range []string{"landingPath", "publicPath", "authenticatedPath"} {
		value, exists := auth[name]
		if !exists {
			continue
		}
		s, isString := value.(string)
		if !isString || !strings.HasPrefix(s, "/") {
			result.addError("auth."+name, "%s must be a path starting with /", name)
			continue
		}
		paths[name] = s
	}
	landing := pathOrDefault(paths, "landingPath", DefaultLandingPath)
	public := pathOrDefault(paths, "publicPath", DefaultPublicPath)
	if landing == public {
		result.addError("auth.landingPath", "landingPath must differ from publicPath (%s)", public)
	}
	if landing != DefaultLandingPath {
		result.addWarning("auth.landingPath", "landingPath %s differs from %s - the identity provider redirect URL must match", landing, DefaultLandingPath)
	}

	validateDurationField(auth, "settleTimeout", "auth.settleTimeout", result)
	if raw, ok := auth["settleTimeout"].(string); ok {
		if d, err := time.ParseDuration(raw); err == nil && d > 5*time.Second {
			result.addWarning("auth.settleTimeout", "settleTimeout %s holds requests for a long time; the waiting screen already polls", raw)
		}
	}

	if origins, ok := auth["allowedOrigins"]; ok {
		list, isList := origins.([]any)
		if !isList {
			result.addError("auth.allowedOrigins", "allowedOrigins must be an array of origins")
		}
		for i, o := range list {
			if s, isString := o.(string); !isString || s == "" {
				result.addError(fmt.Sprintf("auth.allowedOrigins[%d]", i), "origin must be a non-empty string")
			}
		}
	}
}

func pathOrDefault(paths map[string]string, name, def string) string {
	if p, ok := paths[name]; ok {
		return p
	}
	return def
}

// validatePagesStructure checks page registry configuration
func validatePagesStructure(rawConfig map[string]any, result *ValidationResult) {
	pages, ok := section(rawConfig, "pages", false, result)
	if !ok {
		return
	}

	timeout := validateDurationField(pages, "timeout", "pages.timeout", result)
	validateDurationField(pages, "browserTimeout", "pages.browserTimeout", result)
	cleanup := validateDurationField(pages, "cleanupInterval", "pages.cleanupInterval", result)

	if timeout > 0 && cleanup > timeout {
		result.addWarning("pages",
			"cleanupInterval (%s) is longer than timeout (%s). Idle pages will remain in memory until cleanup runs.",
			cleanup, timeout,
		)
	}

	if raw, exists := pages["maxPerBrowser"]; exists {
		n, isNumber := raw.(float64)
		switch {
		case !isNumber || n != float64(int(n)):
			result.addError("pages.maxPerBrowser", "maxPerBrowser must be an integer")
		case n < 0:
			result.addError("pages.maxPerBrowser", "maxPerBrowser cannot be negative")
		case n == 0:
			result.addWarning("pages.maxPerBrowser", "maxPerBrowser is 0 (unlimited) - this may allow resource exhaustion")
		}
	}
}

func validateUserCacheStructure(rawConfig map[string]any, result *ValidationResult) {
	cache, ok := section(rawConfig, "userCache", false, result)
	if !ok {
		return
	}

	validateDurationField(cache, "ttl", "userCache.ttl", result)

	kind, _ := cache["kind"].(string)
	switch UserCacheKind(kind) {
	case "", UserCacheMemory:
	case UserCacheNone:
		result.addWarning("userCache.kind", "user cache disabled - signed-in visitors see no name until the session check returns")
	case UserCacheRedis:
		if _, ok := cache["redisAddr"]; !ok {
			result.addError("userCache.redisAddr", "redisAddr is required when kind is redis. Example: \"localhost:6379\"")
		}
		if password, ok := cache["redisPassword"]; ok {
			if err := validateEnvVarReference(password, "redisPassword", "userCache.redisPassword"); err != nil {
				result.Errors = append(result.Errors, *err)
			}
		}
	case UserCacheFirestore:
		if _, ok := cache["gcpProject"]; !ok {
			result.addError("userCache.gcpProject", "gcpProject is required when kind is firestore")
		}
	default:
		result.addError("userCache.kind", "unknown kind '%s' - use none, memory, redis or firestore", kind)
	}
}

// validateDurationField reports an unparsable duration and returns the
// parsed value, or zero when absent or invalid.
func validateDurationField(m map[string]any, key, path string, result *ValidationResult) time.Duration {
	raw, exists := m[key]
	if !exists {
		return 0
	}
	s, ok := raw.(string)
	if !ok {
		result.addError(path, "%s must be a duration string like \"10s\" or \"5m\"", key)
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		result.addError(path, "invalid duration '%s': %v", s, err)
		return 0
	}
	if d < 0 {
		result.addError(path, "%s cannot be negative", key)
		return 0
	}
	return d
}

// validateEnvVarReference validates that a field uses proper env var reference format
func validateEnvVarReference(value any, fieldName, path string) *ValidationError {
	switch v := value.(type) {
	case string:
		if matches := bashStyleRegex.FindStringSubmatch(v); len(matches) > 1 {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", v, matches[1]),
			}
		}
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use environment variable reference {\"$env\": \"YOUR_ENV_VAR\"} instead of plain text. Hint: This keeps secrets out of config files", fieldName),
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("%s must use {\"$env\": \"YOUR_ENV_VAR\"} format", fieldName),
			}
		}
		return nil
	default:
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must be an environment variable reference {\"$env\": \"YOUR_ENV_VAR\"}, not %T", fieldName, value),
		}
	}
}

// checkBashStyleSyntax recursively checks for bash-style env var syntax
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion in scripts/CI", match, varName)
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
