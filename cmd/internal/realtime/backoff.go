package realtime

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// newReconnectBackoff yields min(base*2^n, max) for the n-th consecutive
// failure, without jitter and without an elapsed-time cutoff. The attempt
// budget is enforced by the Manager's retry counter.
func newReconnectBackoff(base, max time.Duration, clock backoff.Clock) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         max,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               clock,
	}
	b.Reset()
	return b
}
