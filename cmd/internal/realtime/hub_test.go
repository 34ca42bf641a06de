package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/Jerit-Baiju/caelium-admin/shared/contracts/realtime/v1"
)

func TestHub_RoutesByType(t *testing.T) {
	t.Parallel()
	h := NewHub(nil, 4)
	t.Cleanup(h.Close)

	logs := make(chan string, 4)
	wild := make(chan string, 4)
	h.Subscribe(v1.TypeLogEntry, func(e v1.Envelope) { logs <- e.ID })
	cancel := h.Subscribe(v1.TypeAny, func(e v1.Envelope) { wild <- e.ID })

	h.Publish(v1.Envelope{Type: v1.TypeLogEntry, ID: "1"})
	h.Publish(v1.Envelope{Type: "user_online", ID: "2"})

	assert.Equal(t, "1", recv(t, logs))
	assert.ElementsMatch(t, []string{"1", "2"}, []string{recv(t, wild), recv(t, wild)})

	cancel()
	h.Publish(v1.Envelope{Type: "user_online", ID: "3"})
	select {
	case id := <-wild:
		t.Fatalf("cancelled subscriber got %s", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_FullQueueDrops(t *testing.T) {
	t.Parallel()
	h := NewHub(nil, 1)
	t.Cleanup(h.Close)

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	got := make(chan string, 4)
	h.Subscribe("t", func(e v1.Envelope) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		got <- e.ID
	})

	require.Zero(t, h.Publish(v1.Envelope{Type: "t", ID: "1"}))
	<-entered
	assert.Zero(t, h.Publish(v1.Envelope{Type: "t", ID: "2"}))
	assert.Equal(t, 1, h.Publish(v1.Envelope{Type: "t", ID: "3"}))

	close(release)
	assert.Equal(t, "1", recv(t, got))
	assert.Equal(t, "2", recv(t, got))
}

func TestHub_ClosedIgnoresSubscribe(t *testing.T) {
	t.Parallel()
	h := NewHub(nil, 1)
	h.Close()

	cancel := h.Subscribe("t", func(v1.Envelope) { t.Error("delivered after close") })
	assert.Zero(t, h.Publish(v1.Envelope{Type: "t"}))
	cancel()
	h.Close()
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(2, time.Second)
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	ok, _ := rl.Allow(now)
	assert.True(t, ok)
	ok, _ = rl.Allow(now.Add(100 * time.Millisecond))
	assert.True(t, ok)
	ok, wait := rl.Allow(now.Add(200 * time.Millisecond))
	assert.False(t, ok)
	assert.Equal(t, 800*time.Millisecond, wait)

	ok, _ = rl.Allow(now.Add(1001 * time.Millisecond))
	assert.True(t, ok)

	rl.Reset()
	ok, _ = rl.Allow(now.Add(1002 * time.Millisecond))
	assert.True(t, ok)
}

func recv(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("nothing received")
		return ""
	}
}
