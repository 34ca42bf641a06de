// Package token derives log-safe fingerprints from bearer tokens.
//
// Raw access and refresh tokens never reach a log line. Call sites log
// Fingerprint(tok) instead: the first 12 hex chars of SHA-256(tok), or of
// HMAC-SHA256(tok, key) when CAELIUM_TOKEN_FINGERPRINT_KEY is configured so
// that fingerprints cannot be matched against a leaked token list.
package token
