package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSessionExpired is returned when a near-expired token could not be refreshed.
	// The request is not sent.
	ErrSessionExpired = errors.New("session expired")

	// ErrInvalidToken is returned when the session holds a token without a usable expiry.
	ErrInvalidToken = errors.New("invalid token")

	// ErrHTTPStatus is the sentinel behind StatusError.
	ErrHTTPStatus = errors.New("unexpected http status")
)

// StatusError reports a non-2xx backend answer.
type StatusError struct {
	Method string
	Path   string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
}

func (e *StatusError) Unwrap() error { return ErrHTTPStatus }

// IsUnauthorized reports whether err is a 401 StatusError.
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusUnauthorized
}
