package realtime

import (
	"time"

	"github.com/Jerit-Baiju/caelium-admin/cmd/identity/ids"
)

// NewConnID returns a ULID naming one connection lifetime in logs.
func NewConnID(now time.Time) string {
	return ids.MustULID(now)
}

// NewEnvelopeID returns a ULID used as the id of an outbound frame.
func NewEnvelopeID(now time.Time) string {
	return ids.MustULID(now)
}
