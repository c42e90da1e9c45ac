package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Entropy, in bytes, of the random values the front end mints.
const (
	NonceSize  = 16
	SecretSize = 32
)

// RandomString returns size random bytes as unpadded base64url, so the value
// fits in a cookie, a form field or a URL without escaping.
func RandomString(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("random size must be positive, got %d", size)
	}
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateCookieSecret returns a value suitable for auth.cookieSecret. It is
// longer than the 32 characters the config requires.
func GenerateCookieSecret() (string, error) {
	return RandomString(SecretSize)
}
