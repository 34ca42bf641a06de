// Package tokenstore persists the dashboard credential pair in a single named
// slot ("authTokens") so that a session survives process restarts.
//
// The slot holds the JSON object {"access": "...", "refresh": "..."}. A pair is
// either fully present or fully absent: partial pairs are refused on Save and
// reported as corrupt on Load. With a passphrase configured the JSON is sealed
// (see security/sealer) before it reaches the backend.
//
// Backends:
//   - BoltStore: local bbolt file, bucket "session"
//   - PostgresStore: caelium.token_slots row
//   - RedisStore: "<prefix>authTokens" key, no TTL
//   - MemoryStore: in-process, for tests and one-shot commands
package tokenstore
