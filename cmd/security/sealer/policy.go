package sealer

import (
	"strings"
	"unicode/utf8"
)

// Validate checks the passphrase policy.
func (c Config) Validate(passphrase string) error {
	n := utf8.RuneCountInString(passphrase)

	if n < c.Policy.MinLength {
		return ErrPassphraseTooShort
	}
	if n > c.Policy.MaxLength {
		return ErrPassphraseTooLong
	}
	if c.Policy.RejectVeryWeak && looksVeryWeak(passphrase) {
		return ErrWeakPassphrase
	}
	return nil
}

// looksVeryWeak only catches the obvious cases: a single repeated rune or a
// short list of placeholder phrases.
func looksVeryWeak(p string) bool {
	s := strings.TrimSpace(p)
	if s == "" {
		return true
	}

	first, _ := utf8.DecodeRuneInString(s)
	if strings.Trim(s, string(first)) == "" {
		return true
	}

	switch strings.ToLower(s) {
	case "passphrase", "password123", "changeme1234", "caelium-admin", "123456789012":
		return true
	}
	return false
}
