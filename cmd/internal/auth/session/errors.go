package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is the only login failure callers ever see.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrRejected is returned by an Exchanger when the backend answers non-2xx.
	ErrRejected = errors.New("exchange rejected")

	// ErrMalformedToken is returned when an access token cannot be decoded.
	ErrMalformedToken = errors.New("malformed token")

	// ErrNotAuthenticated is returned by operations that need a session.
	ErrNotAuthenticated = errors.New("not logged in")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// DecodeError reports why an access token could not be projected into Claims.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrMalformedToken.Error(), e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrMalformedToken.Error(), e.Reason)
}

// Unwrap exposes both ErrMalformedToken and the underlying cause, if any.
func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedToken}
	}
	return []error{ErrMalformedToken, e.Err}
}
