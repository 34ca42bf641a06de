package sealer

import "errors"

// Public, stable errors for callers.
var (
	ErrPassphraseTooShort = errors.New("passphrase too short")
	ErrPassphraseTooLong  = errors.New("passphrase too long")
	ErrWeakPassphrase     = errors.New("weak passphrase")
	ErrInvalidSealed      = errors.New("invalid sealed value")
	ErrOpenFailed         = errors.New("sealed value could not be opened")
)
