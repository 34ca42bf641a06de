package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
)

const (
	// KeyEnv is the env var name for the fingerprint HMAC secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	KeyEnv = "CAELIUM_TOKEN_FINGERPRINT_KEY"

	fingerprintLen = 12
)

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// KeyFromEnv returns the configured key bytes (trimmed), enforcing a minimum byte length.
func KeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(KeyEnv))
	if raw == "" {
		return nil, ErrKeyMissing
	}
	if minBytes > 0 && len(raw) < minBytes {
		return nil, ErrKeyTooShort
	}
	return []byte(raw), nil
}

// Fingerprinter produces short, stable token identifiers for logs.
// The zero value uses plain SHA-256.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter returns a Fingerprinter keyed with key (nil for SHA-256 mode).
func NewFingerprinter(key []byte) Fingerprinter {
	if len(key) == 0 {
		return Fingerprinter{}
	}
	k := make([]byte, len(key))
	copy(k, key)
	return Fingerprinter{key: k}
}

// Of returns the fingerprint of tok. Empty tokens fingerprint to "-".
func (f Fingerprinter) Of(tok string) string {
	if tok == "" {
		return "-"
	}
	var sum string
	if len(f.key) > 0 {
		sum = HashHMACSHA256Hex(tok, f.key)
	} else {
		sum = HashSHA256Hex(tok)
	}
	return sum[:fingerprintLen]
}

// Fingerprint fingerprints tok using the env-configured key when present.
func Fingerprint(tok string) string {
	key, err := KeyFromEnv(0)
	if err != nil {
		return Fingerprinter{}.Of(tok)
	}
	return NewFingerprinter(key).Of(tok)
}
