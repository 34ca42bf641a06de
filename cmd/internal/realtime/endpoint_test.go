package realtime

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpoint(t *testing.T) {
	t.Parallel()

	cases := []struct {
		host, access, want string
	}{
		{"http://localhost:8000", "abc", "ws://localhost:8000/ws/dash/abc/"},
		{"https://api.caelium.co", "x.y.z", "wss://api.caelium.co/ws/dash/x.y.z/"},
		{"https://api.caelium.co/", "t", "wss://api.caelium.co/ws/dash/t/"},
		{"https://caelium.co/backend/", "t", "wss://caelium.co/backend/ws/dash/t/"},
		{"http://h:1?debug=1", "t", "ws://h:1/ws/dash/t/"},
		{"http://h", "a/b", "ws://h/ws/dash/a%2Fb/"},
	}
	for _, tc := range cases {
		got, err := Endpoint(tc.host, tc.access)
		require.NoError(t, err, tc.host)
		assert.Equal(t, tc.want, got)
	}
}

func TestEndpoint_Rejects(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct{ host, access string }{
		{"ftp://h", "t"},
		{"http://", "t"},
		{"localhost:8000", "t"},
		{"http://h", " "},
	} {
		_, err := Endpoint(tc.host, tc.access)
		assert.Error(t, err, "%q %q", tc.host, tc.access)
	}
}

func TestReconnectBackoff_SequenceAndReset(t *testing.T) {
	t.Parallel()

	b := newReconnectBackoff(500*time.Millisecond, 10*time.Second, clockwork.NewFakeClock())
	want := []time.Duration{
		500 * time.Millisecond, time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		10 * time.Second, 10 * time.Second, 10 * time.Second,
	}
	for i, d := range want {
		assert.Equal(t, d, b.NextBackOff(), "failure %d", i+1)
	}

	b.Reset()
	assert.Equal(t, 500*time.Millisecond, b.NextBackOff())
	assert.Equal(t, time.Second, b.NextBackOff())
}

func TestReconnectBackoff_NeverStops(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	b := newReconnectBackoff(500*time.Millisecond, 10*time.Second, clock)
	clock.Advance(24 * time.Hour)
	for i := 0; i < 50; i++ {
		assert.NotEqual(t, backoff.Stop, b.NextBackOff())
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("CAELIUM_API_HOST", "https://api.caelium.co")
	t.Setenv("CAELIUM_CHANNEL_MAX_RETRIES", "4")
	t.Setenv("CAELIUM_CHANNEL_BASE_DELAY", "250ms")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "https://api.caelium.co", cfg.APIHost)
	assert.Equal(t, 4, cfg.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.BaseDelay)
	assert.Equal(t, DefaultMaxDelay, cfg.MaxDelay)

	t.Setenv("CAELIUM_API_HOST", "ftp://nope")
	_, err = LoadConfigFromEnv()
	assert.Error(t, err)
}
