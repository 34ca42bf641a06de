package app

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrettyHandler_PlainOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false))

	log.Info("channel.reconnect.scheduled", "delay_ms", int64(2000), "attempt", 3, "conn", "a b")
	got := buf.String()

	for _, want := range []string{
		"lvl=[INFO]",
		"msg=channel.reconnect.scheduled",
		" delay=2000ms",
		" attempt=3",
		` conn="a b"`,
	} {
		assert.Contains(t, got, want)
	}
	assert.NotContains(t, got, "\x1b[")
}

func TestPrettyHandler_RequestLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, nil, false))

	log.Info("http.request", "method", "get", "path", "/readyz", "status", 503,
		"status_class", "5xx", "duration_ms", int64(12))
	log.Info("channel.status", "status", "Waiting", "state", "open")
	got := buf.String()

	for _, want := range []string{
		" method=GET path=/readyz status=503 class=5xx duration=12ms\n",
		" status=waiting state=open\n",
	} {
		assert.Contains(t, got, want)
	}
}

func TestPrettyHandler_LevelFilterAndGroups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, false))

	log.Info("dropped")
	log.WithGroup("session").With("reason", "user").Warn("session.logout", slog.Group("pair", "expired", true))
	got := buf.String()

	assert.NotContains(t, got, "dropped")
	assert.Contains(t, got, "lvl=[WARN] msg=session.logout session.reason=user session.pair.expired=true\n")
}

func TestPrettyHandler_Colors(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, nil, true))

	log.Error("session.ended", "reason", "channel_retries", "state", "anonymous", "attempt", 9)
	got := buf.String()

	assert.Contains(t, got, ansiRed+"[ERROR]"+ansiReset)
	assert.Contains(t, got, "reason="+ansiRed+"channel_retries"+ansiReset)
	assert.Contains(t, got, "state="+ansiDim+"anonymous"+ansiReset)
	assert.Contains(t, got, "attempt="+ansiRed+"9"+ansiReset)
}

func TestIntValue(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   slog.Value
		want int64
		ok   bool
	}{
		{slog.Int64Value(7), 7, true},
		{slog.Uint64Value(8), 8, true},
		{slog.Uint64Value(1 << 63), 0, false},
		{slog.StringValue("42"), 0, false},
		{slog.DurationValue(time.Second), 0, false},
	}
	for _, tc := range cases {
		got, ok := intValue(tc.in)
		assert.Equal(t, tc.want, got, "%v", tc.in)
		assert.Equal(t, tc.ok, ok, "%v", tc.in)
	}
}
