package livelogs

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/Jerit-Baiju/caelium-admin/shared/contracts/realtime/v1"
)

func entry(msg string) v1.LogEntry {
	return v1.LogEntry{Type: v1.TypeLogEntry, Level: v1.LevelInfo, Message: msg}
}

func messages(es []v1.LogEntry) []string {
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, e.Message)
	}
	return out
}

func TestTail_NewestFirstAndBounded(t *testing.T) {
	t.Parallel()
	tl := NewTail(3, nil)

	for _, m := range []string{"a", "b", "c", "d"} {
		tl.Add(entry(m))
	}
	assert.Equal(t, []string{"d", "c", "b"}, messages(tl.Entries()))
	assert.Equal(t, 1, tl.Evicted())

	tl.Clear()
	assert.Zero(t, tl.Len())
}

func TestTail_PauseHoldsDeliveryButKeepsCollecting(t *testing.T) {
	t.Parallel()
	tl := NewTail(10, nil)

	var got []string
	tl.Follow(func(e v1.LogEntry) { got = append(got, e.Message) })

	tl.Add(entry("a"))
	assert.True(t, tl.Toggle())
	tl.Add(entry("b"))
	tl.Add(entry("c"))

	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, []string{"c", "b", "a"}, messages(tl.Entries()))

	assert.Equal(t, 2, tl.Resume())
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.False(t, tl.Paused())
	assert.Zero(t, tl.Resume())
}

func TestTail_FollowCancel(t *testing.T) {
	t.Parallel()
	tl := NewTail(10, nil)

	n := 0
	cancel := tl.Follow(func(v1.LogEntry) { n++ })
	tl.Add(entry("a"))
	cancel()
	tl.Add(entry("b"))
	assert.Equal(t, 1, n)
}

type fakeSource struct {
	mu  sync.Mutex
	fns map[string]func(v1.Envelope)
}

func (s *fakeSource) Subscribe(typ string, fn func(v1.Envelope)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = map[string]func(v1.Envelope){}
	}
	s.fns[typ] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.fns, typ)
	}
}

func (s *fakeSource) emit(t *testing.T, frame string) {
	t.Helper()
	env, err := v1.Decode([]byte(frame))
	require.NoError(t, err)
	s.mu.Lock()
	fn := s.fns[env.Type]
	s.mu.Unlock()
	if fn != nil {
		fn(env)
	}
}

func TestTail_AttachDecodesLogEntries(t *testing.T) {
	t.Parallel()
	src := &fakeSource{}
	tl := NewTail(10, nil)
	cancel := tl.Attach(src)

	src.emit(t, `{"type":"log_entry","level":"warning","message":"slow query","timestamp":"2026-10-18T09:05:00Z"}`)
	src.emit(t, `{"type":"log_entry","level":"ERROR","message":7}`)
	src.emit(t, `{"type":"user_online"}`)

	es := tl.Entries()
	require.Len(t, es, 1)
	assert.Equal(t, v1.LevelWarn, es[0].Level)
	assert.Equal(t, time.Date(2026, 10, 18, 9, 5, 0, 0, time.UTC), es[0].Timestamp)

	cancel()
	src.emit(t, `{"type":"log_entry","level":"INFO","message":"after"}`)
	assert.Equal(t, 1, tl.Len())
}

func TestTail_AttachKeepsEntriesWithOddTimestamps(t *testing.T) {
	t.Parallel()
	src := &fakeSource{}
	tl := NewTail(10, nil)
	defer tl.Attach(src)()

	src.emit(t, `{"type":"log_entry","level":"INFO","message":"naive","timestamp":"2024-05-01T12:00:00.123456"}`)
	src.emit(t, `{"type":"log_entry","level":"INFO","message":"unreadable","timestamp":"soon"}`)

	es := tl.Entries()
	require.Len(t, es, 2)
	assert.Equal(t, "unreadable", es[0].Message)
	assert.True(t, es[0].Timestamp.IsZero())
	assert.Equal(t, "--:-- | --/--/---- INFO  unreadable", Format(es[0], time.UTC))
	assert.Equal(t, "naive", es[1].Message)
	assert.True(t, es[1].Timestamp.Equal(time.Date(2024, 5, 1, 12, 0, 0, 123456000, time.Local)))
}

func TestFormat(t *testing.T) {
	t.Parallel()

	e := v1.LogEntry{
		Level:     "error",
		Message:   "disk full",
		Timestamp: time.Date(2026, 10, 18, 21, 7, 0, 0, time.UTC),
	}
	assert.Equal(t, "21:07 | 18/10/2026 ERROR disk full", Format(e, time.UTC))
	assert.Equal(t, "--:-- | --/--/---- INFO  boot", Format(v1.LogEntry{Message: "boot"}, nil))
}
