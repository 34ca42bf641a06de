package v1

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_KnownAndUnknownTypes(t *testing.T) {
	t.Parallel()

	env, err := Decode([]byte(`{"type":"log_entry","level":"WARN","message":"disk","timestamp":"2026-10-18T10:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeLogEntry, env.Type)

	var entry LogEntry
	require.NoError(t, env.Into(&entry))
	assert.Equal(t, LevelWarn, entry.Level)
	assert.Equal(t, "disk", entry.Message)
	assert.True(t, entry.Timestamp.Equal(time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)))

	env, err = Decode([]byte(`  {"type":"chat_stats","count":3}`))
	require.NoError(t, err)
	assert.Equal(t, "chat_stats", env.Type)
	assert.JSONEq(t, `{"type":"chat_stats","count":3}`, string(env.Raw))
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want error
	}{
		{name: "garbage", in: "not json"},
		{name: "truncated", in: `{"type":"log_entry"`},
		{name: "array", in: `[1,2]`, want: ErrNotObject},
		{name: "no type", in: `{"level":"INFO"}`, want: ErrMissingType},
		{name: "blank type", in: `{"type":"  "}`, want: ErrMissingType},
		{name: "numeric type", in: `{"type":7}`, want: ErrMissingType},
	}

	for _, tc := range cases {
		_, err := Decode([]byte(tc.in))
		require.Error(t, err, tc.name)
		if tc.want != nil {
			assert.True(t, errors.Is(err, tc.want), "%s: got %v", tc.name, err)
		}
	}
}

func TestDecode_IDOfAnyKindPassesThrough(t *testing.T) {
	t.Parallel()

	env, err := Decode([]byte(`{"type":"new_message","id":42,"text":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "new_message", env.Type)
	assert.Empty(t, env.ID)
	assert.JSONEq(t, `{"type":"new_message","id":42,"text":"hi"}`, string(env.Raw))

	env, err = Decode([]byte(`{"type":"user_online","id":null}`))
	require.NoError(t, err)
	assert.Empty(t, env.ID)

	env, err = Decode([]byte(`{"type":"ack","id":"01J00000000000000000000000"}`))
	require.NoError(t, err)
	assert.Equal(t, "01J00000000000000000000000", env.ID)
}

func TestLogEntry_LenientTimestamp(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		ts   string
		want time.Time
	}{
		{name: "rfc3339", ts: `"2024-05-01T12:00:00Z"`, want: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		{name: "offset", ts: `"2024-05-01T14:00:00+02:00"`, want: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		{name: "naive isoformat", ts: `"2024-05-01T12:00:00.123456"`, want: time.Date(2024, 5, 1, 12, 0, 0, 123456000, time.Local)},
		{name: "naive seconds", ts: `"2024-05-01T12:00:00"`, want: time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)},
		{name: "space separated", ts: `"2024-05-01 12:00:00.5+00:00"`, want: time.Date(2024, 5, 1, 12, 0, 0, 500000000, time.UTC)},
		{name: "garbage", ts: `"yesterday"`},
		{name: "number", ts: `1714564800`},
		{name: "null", ts: `null`},
	}

	for _, tc := range cases {
		var e LogEntry
		in := `{"type":"log_entry","level":"INFO","message":"m","timestamp":` + tc.ts + `}`
		require.NoError(t, json.Unmarshal([]byte(in), &e), tc.name)
		assert.Equal(t, "m", e.Message, tc.name)
		assert.Equal(t, "INFO", e.Level, tc.name)
		if tc.want.IsZero() {
			assert.True(t, e.Timestamp.IsZero(), "%s: got %v", tc.name, e.Timestamp)
			continue
		}
		assert.True(t, e.Timestamp.Equal(tc.want), "%s: got %v want %v", tc.name, e.Timestamp, tc.want)
	}

	var e LogEntry
	require.NoError(t, json.Unmarshal([]byte(`{"type":"log_entry","message":"no ts"}`), &e))
	assert.True(t, e.Timestamp.IsZero())
}

func TestEncode_MergesTypeAndID(t *testing.T) {
	t.Parallel()

	b, err := Encode("logs.pause", "01J00000000000000000000000", map[string]any{"paused": true})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "logs.pause", got["type"])
	assert.Equal(t, "01J00000000000000000000000", got["id"])
	assert.Equal(t, true, got["paused"])

	b, err = Encode("ping", "", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ping"}`, string(b))

	_, err = Encode("", "", nil)
	assert.ErrorIs(t, err, ErrMissingType)

	_, err = Encode("x", "", []int{1})
	assert.ErrorIs(t, err, ErrNotObject)
}
