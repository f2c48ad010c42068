package capability

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Key length constants. Capability keys are bare alphanumeric strings
// carried in URLs; API keys carry a mode prefix.
const (
	CapabilityKeyLength = 28
	CapabilityKeyMin    = 22
	CapabilityKeyMax    = 32
	APIKeyRandomLength  = 24
	WebhookSecretLength = 32
)

var (
	capabilityKeyPattern = regexp.MustCompile(`^[A-Za-z0-9]{22,32}$`)
	apiKeyPattern        = regexp.MustCompile(`^sk_(live|test)_[A-Za-z0-9]{20,}$`)
)

// IsCapabilityKeySyntax reports whether a string has the shape of a
// capability key: 22-32 alphanumeric characters.
func IsCapabilityKeySyntax(key string) bool {
	return capabilityKeyPattern.MatchString(key)
}

// IsAPIKeySyntax reports whether a string has the shape of an API key:
// sk_live_ or sk_test_ followed by at least 20 alphanumerics.
func IsAPIKeySyntax(key string) bool {
	return apiKeyPattern.MatchString(key)
}

// APIKeyMode extracts the mode ("live" or "test") from a well-formed API
// key plaintext.
func APIKeyMode(key string) string {
	if strings.HasPrefix(key, "sk_live_") {
		return "live"
	}
	if strings.HasPrefix(key, "sk_test_") {
		return "test"
	}
	return ""
}

// HashKey returns the hex SHA-256 digest stored for a plaintext key.
func HashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// randomToken draws n characters from the key alphabet using crypto/rand.
func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = keyAlphabet[int(b)%len(keyAlphabet)]
	}
	return string(out), nil
}

// GenerateCapabilityKey mints a new capability key plaintext.
// The caller stores only the hash and the 4-char display prefix.
func GenerateCapabilityKey() (plaintext, prefix, hash string, err error) {
	plaintext, err = randomToken(CapabilityKeyLength)
	if err != nil {
		return "", "", "", err
	}
	return plaintext, plaintext[:4], HashKey(plaintext), nil
}

// GenerateAPIKey mints a new API key plaintext for the given mode.
// The display prefix is the first 12 characters plus "...".
func GenerateAPIKey(mode string) (plaintext, displayPrefix, hash string, err error) {
	if mode != "live" && mode != "test" {
		return "", "", "", fmt.Errorf("invalid API key mode: %q", mode)
	}
	token, err := randomToken(APIKeyRandomLength)
	if err != nil {
		return "", "", "", err
	}
	plaintext = "sk_" + mode + "_" + token
	return plaintext, plaintext[:12] + "...", HashKey(plaintext), nil
}

// GenerateWebhookSecret mints a signing secret for webhook deliveries.
func GenerateWebhookSecret() (string, error) {
	token, err := randomToken(WebhookSecretLength)
	if err != nil {
		return "", err
	}
	return "whsec_" + token, nil
}
