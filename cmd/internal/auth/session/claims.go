package session

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Claims is the typed projection of the access token the backend issues.
type Claims struct {
	ExpiresAt time.Time
	UserID    string
	Email     string
	IsStaff   bool
}

// Remaining returns the validity left at now (negative once expired).
func (c Claims) Remaining(now time.Time) time.Duration {
	return c.ExpiresAt.Sub(now)
}

// DecodeClaims reads the access token payload without verifying the signature
// or validating time claims. The signature is the backend's concern; an
// expired token must still decode so the renewal path can see its expiry.
func DecodeClaims(access string) (Claims, error) {
	access = strings.TrimSpace(access)
	if access == "" {
		return Claims{}, &DecodeError{Reason: "empty token"}
	}

	tok, err := jwt.ParseString(access,
		jwt.WithVerify(false),
		jwt.WithValidate(false),
	)
	if err != nil {
		return Claims{}, &DecodeError{Reason: "parse", Err: err}
	}

	exp := tok.Expiration()
	if exp.IsZero() {
		return Claims{}, &DecodeError{Reason: "missing exp"}
	}

	c := Claims{ExpiresAt: exp.UTC()}

	if v, ok := tok.Get("user_id"); ok {
		id, err := stringifyID(v)
		if err != nil {
			return Claims{}, &DecodeError{Reason: "user_id", Err: err}
		}
		c.UserID = id
	}
	if v, ok := tok.Get("email"); ok {
		if s, ok := v.(string); ok {
			c.Email = s
		}
	}
	if v, ok := tok.Get("is_staff"); ok {
		if b, ok := v.(bool); ok {
			c.IsStaff = b
		}
	}

	return c, nil
}

func stringifyID(v any) (string, error) {
	switch id := v.(type) {
	case string:
		return id, nil
	case json.Number:
		return id.String(), nil
	case float64:
		if id != math.Trunc(id) || math.IsInf(id, 0) {
			return "", fmt.Errorf("non-integer id %v", id)
		}
		return strconv.FormatFloat(id, 'f', -1, 64), nil
	case int64:
		return strconv.FormatInt(id, 10), nil
	case int:
		return strconv.Itoa(id), nil
	default:
		return "", fmt.Errorf("unsupported id type %T", v)
	}
}
