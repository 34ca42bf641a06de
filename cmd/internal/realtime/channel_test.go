package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jerit-Baiju/caelium-admin/cmd/internal/auth/session"
	v1 "github.com/Jerit-Baiju/caelium-admin/shared/contracts/realtime/v1"
)

const (
	wait = 2 * time.Second
	tick = 5 * time.Millisecond
)

func TestManager_ConnectsWithAccessToken(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "tok-a")

	h.m.Start()
	require.Eventually(t, h.m.Connected, wait, tick)
	assert.Equal(t, "ws://localhost:8000/ws/dash/tok-a/", h.dialer.lastEndpoint())
	assert.Equal(t, StatusOpen, h.m.Status())
	assert.Equal(t, []time.Duration{DefaultStableAfter}, h.armed())
}

func TestManager_AnonymousStaysIdle(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "")

	h.m.Start()
	h.fake.Advance(time.Minute)
	assert.Equal(t, StatusIdle, h.m.Status())
	assert.Equal(t, 0, h.dialer.dials())

	h.sess.set(authed("tok-a"))
	require.Eventually(t, h.m.Connected, wait, tick)
}

func TestManager_BackoffSequenceThenLogout(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "tok-a")
	h.dialer.setFail(true)
	h.m.Start()

	want := []time.Duration{
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second, 10 * time.Second, 10 * time.Second, 10 * time.Second, 10 * time.Second,
	}
	for i, d := range want {
		require.Eventually(t, func() bool { return len(h.reconnects()) == i+1 }, wait, tick, "attempt %d", i)
		assert.Equal(t, d, h.reconnects()[i])
		assert.Equal(t, i+1, h.m.RetryCount())
		assert.Empty(t, h.sess.reasons())
		h.fake.Advance(d)
	}

	require.Eventually(t, func() bool { return len(h.sess.reasons()) == 1 }, wait, tick)
	assert.Equal(t, []string{session.ReasonChannelRetries}, h.sess.reasons())
	assert.Equal(t, want, h.reconnects())
	assert.Equal(t, want, h.obs.reconnectDelays())
	assert.Equal(t, 11, h.dialer.dials())
	assert.Equal(t, 1, h.obs.gaveUpCount())
	assert.Equal(t, StatusIdle, h.m.Status())

	h.fake.Advance(time.Minute)
	assert.Equal(t, 11, h.dialer.dials())
}

func TestManager_DropsBeforeStableKeepGrowing(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "tok-a")
	h.m.Start()

	for i, d := range []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second} {
		require.Eventually(t, func() bool { return h.dialer.connCount() == i+1 && h.m.Connected() }, wait, tick)
		h.dialer.conn(i).Close()
		require.Eventually(t, func() bool { return len(h.reconnects()) == i+1 }, wait, tick)
		assert.Equal(t, d, h.reconnects()[i])
		h.fake.Advance(d)
	}
}

func TestManager_StableConnectionResetsBackoff(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "tok-a")
	h.dialer.setFail(true)
	h.m.Start()

	delays := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}
	for i, d := range delays {
		require.Eventually(t, func() bool { return len(h.reconnects()) == i+1 }, wait, tick)
		if i == len(delays)-1 {
			h.dialer.setFail(false)
		}
		h.fake.Advance(d)
	}

	require.Eventually(t, h.m.Connected, wait, tick)
	assert.Equal(t, 3, h.m.RetryCount())

	h.fake.Advance(DefaultStableAfter)
	require.Eventually(t, func() bool { return h.m.RetryCount() == 0 }, wait, tick)

	h.dialer.conn(0).Close()
	require.Eventually(t, func() bool { return len(h.reconnects()) == 4 }, wait, tick)
	assert.Equal(t, 500*time.Millisecond, h.reconnects()[3])
}

func TestManager_LogoutTearsDownWithoutReconnect(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "tok-a")
	h.m.Start()
	require.Eventually(t, h.m.Connected, wait, tick)
	conn := h.dialer.conn(0)

	h.sess.set(session.State{})
	require.Eventually(t, conn.closed, wait, tick)
	assert.Equal(t, StatusIdle, h.m.Status())
	assert.Equal(t, 0, h.m.RetryCount())

	h.fake.Advance(time.Minute)
	assert.Equal(t, 1, h.dialer.dials())
	assert.Empty(t, h.reconnects())
	assert.Equal(t, 0, h.clock.Active())
}

func TestManager_CredentialChangeRebinds(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "tok-a")
	h.m.Start()
	require.Eventually(t, h.m.Connected, wait, tick)
	first := h.dialer.conn(0)

	h.sess.set(authed("tok-b"))
	require.Eventually(t, func() bool { return h.dialer.connCount() == 2 && h.m.Connected() }, wait, tick)
	require.Eventually(t, first.closed, wait, tick)

	assert.Equal(t, "ws://localhost:8000/ws/dash/tok-b/", h.dialer.lastEndpoint())
	assert.Empty(t, h.reconnects(), "an intentional teardown is not a failure")
	assert.Equal(t, 0, h.m.RetryCount())

	// The same credentials again are not a change.
	h.sess.set(authed("tok-b"))
	assert.Equal(t, 2, h.dialer.dials())
}

func TestManager_CredentialChangeResetsRetries(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "tok-a")
	h.dialer.setFail(true)
	h.m.Start()
	require.Eventually(t, func() bool { return len(h.reconnects()) == 1 }, wait, tick)
	h.fake.Advance(500 * time.Millisecond)
	require.Eventually(t, func() bool { return len(h.reconnects()) == 2 }, wait, tick)
	assert.Equal(t, 2, h.m.RetryCount())

	h.dialer.setFail(false)
	h.sess.set(authed("tok-b"))
	require.Eventually(t, h.m.Connected, wait, tick)
	assert.Equal(t, 0, h.m.RetryCount())

	// The reconnect armed for tok-a was cancelled with the old lifetime.
	h.fake.Advance(time.Minute)
	assert.Equal(t, 1, h.dialer.connCount())
}

func TestManager_PendingDialDiscardedOnLogout(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "tok-a")
	h.dialer.block = make(chan struct{})
	h.m.Start()
	require.Eventually(t, func() bool { return h.dialer.dials() == 1 }, wait, tick)
	assert.Equal(t, StatusConnecting, h.m.Status())

	h.sess.set(session.State{})
	close(h.dialer.block)

	h.fake.Advance(time.Minute)
	assert.Equal(t, StatusIdle, h.m.Status())
	assert.Empty(t, h.reconnects())
	assert.Equal(t, 0, h.dialer.connCount())
}

func TestManager_MalformedFramesAreDropped(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "tok-a")
	h.m.Start()
	require.Eventually(t, h.m.Connected, wait, tick)

	logs := make(chan v1.Envelope, 4)
	all := make(chan v1.Envelope, 4)
	h.m.Subscribe(v1.TypeLogEntry, func(e v1.Envelope) { logs <- e })
	h.m.Subscribe(v1.TypeAny, func(e v1.Envelope) { all <- e })

	c := h.dialer.conn(0)
	c.frames <- []byte("not json")
	c.frames <- []byte(`[1,2]`)
	c.frames <- []byte(`{"level":"INFO"}`)
	c.frames <- []byte(`{"type":"log_entry","level":"INFO","message":"up","timestamp":"2026-10-18T09:00:00Z"}`)
	c.frames <- []byte(`{"type":"user_online","id":"7"}`)

	select {
	case e := <-logs:
		var entry v1.LogEntry
		require.NoError(t, e.Into(&entry))
		assert.Equal(t, "up", entry.Message)
		assert.Equal(t, v1.LevelInfo, entry.Level)
	case <-time.After(wait):
		t.Fatal("log_entry not delivered")
	}

	var types []string
	for i := 0; i < 2; i++ {
		select {
		case e := <-all:
			types = append(types, e.Type)
		case <-time.After(wait):
			t.Fatal("wildcard subscriber starved")
		}
	}
	assert.ElementsMatch(t, []string{v1.TypeLogEntry, "user_online"}, types)
	assert.Equal(t, []string{DropMalformed, DropMalformed, DropMalformed}, h.obs.drops())
	assert.True(t, h.m.Connected(), "malformed frames do not close the channel")
}

func TestManager_SendRequiresOpenAndIsRateLimited(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "tok-a", func(c *Config) { c.SendRateEvents = 2 })
	ctx := context.Background()

	_, err := h.m.Send(ctx, "dash_ping", nil)
	require.ErrorIs(t, err, ErrNotOpen)
	assert.Contains(t, h.logs.String(), "msg=channel.send.rejected type=dash_ping state=idle")

	h.m.Start()
	require.Eventually(t, h.m.Connected, wait, tick)

	id, err := h.m.Send(ctx, "dash_ping", map[string]any{"n": 1})
	require.NoError(t, err)
	assert.Len(t, id, 26)
	_, err = h.m.Send(ctx, "dash_ping", nil)
	require.NoError(t, err)

	_, err = h.m.Send(ctx, "dash_ping", nil)
	require.ErrorIs(t, err, ErrRateLimited)
	var rl *RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, DefaultConfig().SendRateWindow, rl.RetryAfter)

	frames := h.dialer.conn(0).written()
	require.Len(t, frames, 2)
	env, err := v1.Decode(frames[0])
	require.NoError(t, err)
	assert.Equal(t, "dash_ping", env.Type)
	assert.Equal(t, id, env.ID)
}

func TestManager_OnStatusReportsFlips(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "tok-a")

	var mu sync.Mutex
	var seen []bool
	h.m.OnStatus(func(connected bool) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, connected)
	})
	snapshot := func() []bool {
		mu.Lock()
		defer mu.Unlock()
		return append([]bool(nil), seen...)
	}

	h.m.Start()
	require.Eventually(t, func() bool { return len(snapshot()) == 1 }, wait, tick)

	h.dialer.conn(0).Close()
	require.Eventually(t, func() bool { return len(snapshot()) == 2 }, wait, tick)

	require.Eventually(t, func() bool { return len(h.reconnects()) == 1 }, wait, tick)
	h.fake.Advance(500 * time.Millisecond)
	require.Eventually(t, func() bool { return len(snapshot()) == 3 }, wait, tick)

	assert.Equal(t, []bool{true, false, true}, snapshot())
}

func TestManager_HeartbeatFailureCountsAsClose(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "tok-a", func(c *Config) { c.HeartbeatInterval = 25 * time.Second })
	h.m.Start()
	require.Eventually(t, h.m.Connected, wait, tick)

	c := h.dialer.conn(0)
	c.mu.Lock()
	c.pingErr = errors.New("no pong")
	c.mu.Unlock()

	require.Eventually(t, func() bool {
		h.fake.Advance(heartbeatInterval)
		return c.closed()
	}, wait, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(h.reconnects()) >= 1 }, wait, tick)
	assert.Equal(t, 500*time.Millisecond, h.reconnects()[0])
}

func TestManager_CloseStopsEverything(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "tok-a")
	h.m.Start()
	require.Eventually(t, h.m.Connected, wait, tick)
	conn := h.dialer.conn(0)

	h.m.Close()
	assert.True(t, conn.closed())
	assert.Equal(t, 0, h.clock.Active())
	assert.Equal(t, StatusIdle, h.m.Status())

	_, err := h.m.Send(context.Background(), "dash_ping", nil)
	assert.ErrorIs(t, err, ErrClosed)

	h.sess.set(authed("tok-b"))
	h.fake.Advance(time.Minute)
	assert.Equal(t, 1, h.dialer.dials())

	h.m.Close()
}

func TestManager_CloseWhileWaitingCancelsReconnect(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "tok-a")
	h.dialer.setFail(true)
	h.m.Start()
	require.Eventually(t, func() bool { return len(h.reconnects()) == 1 }, wait, tick)

	h.m.Close()
	assert.Equal(t, 0, h.clock.Active())
	h.fake.Advance(time.Minute)
	assert.Equal(t, 1, h.dialer.dials())
	assert.Empty(t, h.sess.reasons())
}
