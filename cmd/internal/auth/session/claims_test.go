package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jerit-Baiju/caelium-admin/cmd/internal/auth/session/sessiontest"
)

func TestDecodeError_UnwrapsSentinelAndCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("bad segment")
	err := error(&DecodeError{Reason: "parse", Err: cause})
	assert.ErrorIs(t, err, ErrMalformedToken)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "malformed token: parse: bad segment", err.Error())

	bare := error(&DecodeError{Reason: "missing exp"})
	assert.ErrorIs(t, bare, ErrMalformedToken)
	assert.NotErrorIs(t, bare, cause)
}

func TestDecodeClaims_NumericUserID(t *testing.T) {
	t.Parallel()

	exp := time.Date(2026, 10, 18, 12, 15, 0, 0, time.UTC)
	c, err := DecodeClaims(sessiontest.Mint(t, exp, 42))
	require.NoError(t, err)

	assert.True(t, c.ExpiresAt.Equal(exp))
	assert.Equal(t, "42", c.UserID)
	assert.Equal(t, "user42@caelium.co", c.Email)
	assert.True(t, c.IsStaff)
	assert.Equal(t, 5*time.Minute, c.Remaining(exp.Add(-5*time.Minute)))
}

func TestDecodeClaims_StringUserIDAndExpired(t *testing.T) {
	t.Parallel()

	// Long expired tokens must still decode.
	exp := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	c, err := DecodeClaims(sessiontest.Mint(t, exp, "01J9Z3ABCD"))
	require.NoError(t, err)
	assert.Equal(t, "01J9Z3ABCD", c.UserID)
	assert.True(t, c.ExpiresAt.Equal(exp))
}

func TestDecodeClaims_Malformed(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"",
		"   ",
		"not-a-jwt",
		"a.b.c",
		// header {"alg":"none"} / payload {"user_id":1} without exp
		"eyJhbGciOiJub25lIn0.eyJ1c2VyX2lkIjoxfQ.",
	} {
		_, err := DecodeClaims(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, ErrMalformedToken), "%q: %v", in, err)

		var de *DecodeError
		assert.True(t, errors.As(err, &de), in)
	}
}
