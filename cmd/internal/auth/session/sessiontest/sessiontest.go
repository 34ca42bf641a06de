// Package sessiontest provides access-token minting and a scriptable
// Exchanger for tests of packages that sit on top of a session.Manager.
package sessiontest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/Jerit-Baiju/caelium-admin/cmd/internal/auth/tokenstore"
)

var signingKey = []byte("sessiontest-signing-key-0123456789")

// Mint returns an HS256 access token expiring at exp for userID.
func Mint(tb testing.TB, exp time.Time, userID any) string {
	tb.Helper()

	tok := jwt.New()
	require.NoError(tb, tok.Set(jwt.ExpirationKey, exp))
	require.NoError(tb, tok.Set(jwt.IssuedAtKey, exp.Add(-15*time.Minute)))
	require.NoError(tb, tok.Set("token_type", "access"))
	require.NoError(tb, tok.Set("user_id", userID))
	require.NoError(tb, tok.Set("email", fmt.Sprintf("user%v@caelium.co", userID)))
	require.NoError(tb, tok.Set("is_staff", true))

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, signingKey))
	require.NoError(tb, err)
	return string(signed)
}

// RefreshFunc scripts one refresh exchange.
type RefreshFunc func(ctx context.Context, refresh string) (string, error)

// Exchanger is a scriptable session.Exchanger.
type Exchanger struct {
	mu        sync.Mutex
	loginPair tokenstore.Pair
	loginErr  error
	refresh   []RefreshFunc
	fallback  RefreshFunc

	logins    int
	refreshes int
	lastSeen  string
}

// SetLogin sets the answer for every following Login.
func (x *Exchanger) SetLogin(p tokenstore.Pair, err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.loginPair, x.loginErr = p, err
}

// QueueRefresh appends one-shot refresh answers, consumed in order.
func (x *Exchanger) QueueRefresh(fns ...RefreshFunc) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.refresh = append(x.refresh, fns...)
}

// SetRefresh sets the answer used once the queue is empty.
func (x *Exchanger) SetRefresh(fn RefreshFunc) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.fallback = fn
}

// Returns is a RefreshFunc that always answers access.
func Returns(access string) RefreshFunc {
	return func(context.Context, string) (string, error) { return access, nil }
}

// Fails is a RefreshFunc that always answers err.
func Fails(err error) RefreshFunc {
	return func(context.Context, string) (string, error) { return "", err }
}

func (x *Exchanger) Login(_ context.Context, _, _ string) (tokenstore.Pair, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.logins++
	return x.loginPair, x.loginErr
}

func (x *Exchanger) Refresh(ctx context.Context, refresh string) (string, error) {
	x.mu.Lock()
	x.refreshes++
	x.lastSeen = refresh
	fn := x.fallback
	if len(x.refresh) > 0 {
		fn = x.refresh[0]
		x.refresh = x.refresh[1:]
	}
	x.mu.Unlock()

	if fn == nil {
		return "", fmt.Errorf("sessiontest: no refresh scripted")
	}
	return fn(ctx, refresh)
}

// Logins returns how many Login calls were made.
func (x *Exchanger) Logins() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.logins
}

// Refreshes returns how many Refresh calls were made.
func (x *Exchanger) Refreshes() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.refreshes
}

// LastRefreshToken returns the refresh token presented most recently.
func (x *Exchanger) LastRefreshToken() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.lastSeen
}
