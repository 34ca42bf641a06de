package tokenstore

import "errors"

var (
	// ErrPartialPair is returned when a pair is missing its access or refresh half.
	ErrPartialPair = errors.New("partial credential pair")

	// ErrCorrupt is returned when the slot exists but cannot be decoded (or unsealed).
	ErrCorrupt = errors.New("token slot corrupt")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("token store closed")
)
