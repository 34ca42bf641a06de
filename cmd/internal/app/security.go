package app

import (
	"errors"
	"fmt"

	"github.com/Jerit-Baiju/caelium-admin/cmd/security/token"
)

// ValidateSecurityConfig enforces the token-at-rest and logging policy at startup.
//
// Fail-fast: a run that was told to seal the store never falls back to plaintext.
func ValidateSecurityConfig(cfg Config) error {
	if cfg.RequireSealedStore && cfg.StorePassphrase == "" {
		return errors.New("security policy: CAELIUM_REQUIRE_SEALED_STORE=true but CAELIUM_STORE_PASSPHRASE is missing")
	}
	if cfg.StorePassphrase != "" {
		if err := cfg.Sealer.Validate(cfg.StorePassphrase); err != nil {
			return fmt.Errorf("security policy: CAELIUM_STORE_PASSPHRASE: %w", err)
		}
	}

	if !cfg.RequireFingerprintKey {
		return nil
	}
	// Minimum 32 bytes for the HMAC-SHA256 secret, measured in bytes.
	if _, err := token.KeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrKeyMissing):
			return errors.New("security policy: CAELIUM_REQUIRE_FINGERPRINT_KEY=true but CAELIUM_TOKEN_FINGERPRINT_KEY is missing")
		case errors.Is(err, token.ErrKeyTooShort):
			return errors.New("security policy: CAELIUM_REQUIRE_FINGERPRINT_KEY=true but CAELIUM_TOKEN_FINGERPRINT_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}
	return nil
}

// fingerprinter returns an HMAC fingerprinter when a key is configured.
func fingerprinter() token.Fingerprinter {
	key, err := token.KeyFromEnv(0)
	if err != nil {
		return token.NewFingerprinter(nil)
	}
	return token.NewFingerprinter(key)
}
