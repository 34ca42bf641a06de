package realtime

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Jerit-Baiju/caelium-admin/cmd/internal/auth/session"
	"github.com/Jerit-Baiju/caelium-admin/cmd/internal/auth/tokenstore"
	"github.com/Jerit-Baiju/caelium-admin/cmd/internal/clocktest"
)

var t0 = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

var errRefused = errors.New("connection refused")

type fakeConn struct {
	frames chan []byte
	done   chan struct{}
	once   sync.Once

	mu      sync.Mutex
	writes  [][]byte
	pingErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 16), done: make(chan struct{})}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case b := <-c.frames:
		return b, nil
	case <-c.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(_ context.Context, data []byte) error {
	select {
	case <-c.done:
		return io.ErrClosedPipe
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, data)
	return nil
}

func (c *fakeConn) Ping(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pingErr
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *fakeConn) written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

// fakeDialer fails while fail is set and hands out fakeConns otherwise.
type fakeDialer struct {
	mu        sync.Mutex
	fail      bool
	block     chan struct{}
	endpoints []string
	conns     []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	d.mu.Lock()
	d.endpoints = append(d.endpoints, endpoint)
	block := d.block
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.fail {
		return nil, errRefused
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) setFail(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = v
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.endpoints)
}

func (d *fakeDialer) lastEndpoint() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.endpoints) == 0 {
		return ""
	}
	return d.endpoints[len(d.endpoints)-1]
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func (d *fakeDialer) connCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// fakeSession is a minimal session: a state plus synchronous subscribers.
type fakeSession struct {
	mu          sync.Mutex
	st          session.State
	subs        map[int]func(session.State)
	next        int
	invalidated []string
}

func newFakeSession(access string) *fakeSession {
	s := &fakeSession{subs: map[int]func(session.State){}}
	if access != "" {
		s.st = authed(access)
	}
	return s
}

func authed(access string) session.State {
	return session.State{Authenticated: true, Pair: tokenstore.Pair{Access: access, Refresh: "r"}}
}

func (s *fakeSession) Subscribe(fn func(session.State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := s.next
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *fakeSession) State() session.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

func (s *fakeSession) Invalidate(_ context.Context, reason string) {
	s.mu.Lock()
	s.invalidated = append(s.invalidated, reason)
	s.mu.Unlock()
	s.set(session.State{})
}

func (s *fakeSession) set(st session.State) {
	s.mu.Lock()
	s.st = st
	fns := make([]func(session.State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

func (s *fakeSession) reasons() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.invalidated...)
}

type recordingObserver struct {
	mu         sync.Mutex
	statuses   []Status
	delays     []time.Duration
	gaveUp     int
	received   []string
	dropReason []string
}

func (o *recordingObserver) StatusChanged(s Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, s)
}

func (o *recordingObserver) ReconnectScheduled(d time.Duration, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delays = append(o.delays, d)
}

func (o *recordingObserver) GaveUp() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gaveUp++
}

func (o *recordingObserver) FrameReceived(typ string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.received = append(o.received, typ)
}

func (o *recordingObserver) FrameDropped(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropReason = append(o.dropReason, reason)
}

func (o *recordingObserver) drops() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.dropReason...)
}

func (o *recordingObserver) reconnectDelays() []time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]time.Duration(nil), o.delays...)
}

func (o *recordingObserver) gaveUpCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gaveUp
}

type harness struct {
	m      *Manager
	sess   *fakeSession
	dialer *fakeDialer
	clock  *clocktest.Clock
	fake   interface{ Advance(time.Duration) }
	obs    *recordingObserver
	logs   *logBuffer
}

// logBuffer collects log output written from several goroutines.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newHarness(t *testing.T, access string, mutate ...func(*Config)) *harness {
	t.Helper()

	cfg := DefaultConfig()
	cfg.HeartbeatInterval = 0
	for _, fn := range mutate {
		fn(&cfg)
	}

	fake := clockwork.NewFakeClockAt(t0)
	h := &harness{
		sess:   newFakeSession(access),
		dialer: &fakeDialer{},
		clock:  clocktest.New(fake),
		fake:   fake,
		obs:    &recordingObserver{},
		logs:   &logBuffer{},
	}
	log := slog.New(slog.NewTextHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h.m = NewManager(cfg, h.sess, h.dialer, WithClock(h.clock), WithObserver(h.obs), WithLogger(log))
	t.Cleanup(h.m.Close)
	return h
}

func (h *harness) armed() []time.Duration { return h.clock.Armed() }

// reconnects filters the stable timer out of the armed delays.
func (h *harness) reconnects() []time.Duration {
	var out []time.Duration
	for _, d := range h.clock.Armed() {
		if d != DefaultStableAfter {
			out = append(out, d)
		}
	}
	return out
}
