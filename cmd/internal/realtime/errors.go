package realtime

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotOpen is returned by Send while no connection is open.
	ErrNotOpen = errors.New("channel not open")

	// ErrRateLimited is returned by Send when the outbound window is full.
	ErrRateLimited = errors.New("channel send rate limited")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("channel closed")
)

// RateLimitError carries the wait before the next Send can succeed.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%v (retry after %s)", ErrRateLimited, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }
