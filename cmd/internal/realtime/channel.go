package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"

	"github.com/Jerit-Baiju/caelium-admin/cmd/internal/auth/session"
	"github.com/Jerit-Baiju/caelium-admin/cmd/security/token"
	v1 "github.com/Jerit-Baiju/caelium-admin/shared/contracts/realtime/v1"
)

// Status is the channel's lifecycle state.
type Status int

const (
	// StatusIdle: no credentials, or the manager gave up or was closed.
	StatusIdle Status = iota
	StatusConnecting
	StatusOpen
	// StatusWaiting: an unintentional close happened and a reconnect is armed.
	StatusWaiting
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusWaiting:
		return "waiting"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Session is what the channel needs from the session manager.
type Session interface {
	Subscribe(fn func(session.State)) (cancel func())
	State() session.State
	Invalidate(ctx context.Context, reason string)
}

// Observer receives channel events. Implementations must be cheap and
// must not call back into the Manager.
type Observer interface {
	StatusChanged(s Status)
	ReconnectScheduled(delay time.Duration, attempt int)
	GaveUp()
	FrameReceived(typ string)
	FrameDropped(reason string)
}

type nopObserver struct{}

func (nopObserver) StatusChanged(Status)                  {}
func (nopObserver) ReconnectScheduled(time.Duration, int) {}
func (nopObserver) GaveUp()                               {}
func (nopObserver) FrameReceived(string)                  {}
func (nopObserver) FrameDropped(string)                   {}

// Drop reasons reported to Observer.FrameDropped.
const (
	DropMalformed = "malformed"
	DropQueueFull = "queue_full"
)

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for the stable, reconnect and heartbeat timers.
func WithClock(c clockwork.Clock) Option { return func(m *Manager) { m.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.log = l } }

// WithObserver sets the event observer.
func WithObserver(o Observer) Option { return func(m *Manager) { m.obs = o } }

// WithFingerprinter controls how access tokens appear in logs.
func WithFingerprinter(f token.Fingerprinter) Option { return func(m *Manager) { m.fp = f } }

type statusSub struct {
	id uint64
	fn func(bool)
}

// Manager owns the dashboard's realtime connection.
type Manager struct {
	cfg    Config
	sess   Session
	dialer Dialer
	clock  clockwork.Clock
	log    *slog.Logger
	obs    Observer
	fp     token.Fingerprinter
	hub    *Hub

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	status  Status
	access  string
	retry   int
	backoff *backoff.ExponentialBackOff
	conn    Conn
	connID  string
	limiter *RateLimiter
	// gen names the current connection lifetime. Anything carrying an older
	// value belongs to a connection that has been torn down.
	gen        uint64
	stable     clockwork.Timer
	reconnect  clockwork.Timer
	cancelDial context.CancelFunc
	started    bool
	closed     bool
	unsub      func()

	statusSubs  []statusSub
	nextSubID   uint64
	published   bool
	dispatching bool
	dirty       bool
}

// NewManager builds an idle Manager. Start binds it to the session.
func NewManager(cfg Config, sess Session, dialer Dialer, opts ...Option) *Manager {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:    cfg,
		sess:   sess,
		dialer: dialer,
		clock:  clockwork.NewRealClock(),
		log:    slog.Default(),
		obs:    nopObserver{},
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.hub = NewHub(m.log, cfg.SubscriberQueue)
	m.limiter = NewRateLimiter(cfg.SendRateEvents, cfg.SendRateWindow)
	m.backoff = newReconnectBackoff(cfg.BaseDelay, cfg.MaxDelay, m.clock)
	return m
}

// Start subscribes to the session and connects if credentials are present.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started || m.closed {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	unsub := m.sess.Subscribe(m.onSession)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		unsub()
		return
	}
	m.unsub = unsub
	m.mu.Unlock()

	m.onSession(m.sess.State())
}

// Subscribe delivers incoming frames of type typ (v1.TypeAny for all).
func (m *Manager) Subscribe(typ string, fn func(v1.Envelope)) (cancel func()) {
	return m.hub.Subscribe(typ, fn)
}

// Connected reports whether a connection is open.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status == StatusOpen
}

// Status returns the lifecycle state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// RetryCount returns consecutive unintentional closes since the last stable
// connection or credential change.
func (m *Manager) RetryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retry
}

// OnStatus registers fn for connectivity changes. fn runs outside the lock
// and only when the boolean actually flips.
func (m *Manager) OnStatus(fn func(connected bool)) (cancel func()) {
	m.mu.Lock()
	m.nextSubID++
	id := m.nextSubID
	m.statusSubs = append(m.statusSubs, statusSub{id: id, fn: fn})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, s := range m.statusSubs {
				if s.id == id {
					m.statusSubs = append(m.statusSubs[:i:i], m.statusSubs[i+1:]...)
					return
				}
			}
		})
	}
}

// Send writes one frame of type typ built from payload's fields and returns
// the generated frame id. Frames are never queued.
func (m *Manager) Send(ctx context.Context, typ string, payload any) (string, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrClosed
	}
	conn := m.conn
	if m.status != StatusOpen || conn == nil {
		status := m.status
		m.mu.Unlock()
		m.log.Debug("channel.send.rejected", "type", typ, "state", status.String())
		return "", ErrNotOpen
	}
	m.mu.Unlock()

	now := m.clock.Now()
	if ok, wait := m.limiter.Allow(now); !ok {
		return "", &RateLimitError{RetryAfter: wait}
	}

	id := NewEnvelopeID(now)
	frame, err := v1.Encode(typ, id, payload)
	if err != nil {
		return "", fmt.Errorf("channel send: %w", err)
	}

	wctx, cancel := context.WithTimeout(ctx, m.cfg.WriteTimeout)
	defer cancel()
	if err := conn.Write(wctx, frame); err != nil {
		return "", fmt.Errorf("channel send: %w", err)
	}
	return id, nil
}

// Close tears down the connection and cancels every timer. Nothing fires
// afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.teardownLocked()
	m.setStatusLocked(StatusIdle)
	unsub := m.unsub
	m.unsub = nil
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	m.cancel()
	m.publishStatus()
	m.wg.Wait()
	m.hub.Close()
}

func (m *Manager) onSession(st session.State) {
	access := ""
	if st.Authenticated {
		access = st.Pair.Access
	}

	m.mu.Lock()
	if m.closed || !m.started || access == m.access {
		m.mu.Unlock()
		return
	}
	rebind := m.access != "" && access != ""
	m.access = access
	m.teardownLocked()
	m.resetRetryLocked()
	if access == "" {
		m.log.Info("channel.idle")
		m.setStatusLocked(StatusIdle)
	} else {
		if rebind {
			m.log.Info("channel.rebind", "token_fp", m.fp.Of(access))
		}
		m.connectLocked()
	}
	m.mu.Unlock()

	m.publishStatus()
}

// connectLocked starts a dial for the current credentials.
func (m *Manager) connectLocked() {
	m.gen++
	gen := m.gen
	m.setStatusLocked(StatusConnecting)

	endpoint, err := Endpoint(m.cfg.APIHost, m.access)
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.DialTimeout)
	m.cancelDial = cancel

	m.log.Debug("channel.dial", "attempt", m.retry, "token_fp", m.fp.Of(m.access))

	m.wg.Add(1)
	go m.dial(ctx, cancel, gen, endpoint, err)
}

func (m *Manager) dial(ctx context.Context, cancel context.CancelFunc, gen uint64, endpoint string, endpointErr error) {
	defer m.wg.Done()
	defer cancel()

	var conn Conn
	err := endpointErr
	if err == nil {
		conn, err = m.dialer.Dial(ctx, endpoint)
	}

	m.mu.Lock()
	if gen != m.gen || m.closed {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	m.cancelDial = nil

	if err != nil {
		m.log.Warn("channel.dial.failed", "attempt", m.retry, "err", err)
		after := m.onClosedLocked()
		m.mu.Unlock()
		m.publishStatus()
		after()
		return
	}

	now := m.clock.Now()
	m.conn = conn
	m.connID = NewConnID(now)
	m.limiter.Reset()
	m.setStatusLocked(StatusOpen)
	m.stable = m.clock.AfterFunc(m.cfg.StableAfter, func() { m.onStable(gen) })
	m.log.Info("channel.open", "conn_id", m.connID, "attempt", m.retry)

	m.wg.Add(1)
	go m.read(gen, conn)
	if m.cfg.HeartbeatInterval > 0 {
		m.wg.Add(1)
		go m.heartbeat(gen, conn)
	}
	m.mu.Unlock()

	m.publishStatus()
}

func (m *Manager) read(gen uint64, conn Conn) {
	defer m.wg.Done()

	for {
		data, err := conn.Read(m.ctx)
		if err != nil {
			m.mu.Lock()
			if gen != m.gen || m.closed {
				m.mu.Unlock()
				return
			}
			m.log.Warn("channel.closed", "conn_id", m.connID, "err", err)
			after := m.onClosedLocked()
			m.mu.Unlock()
			m.publishStatus()
			after()
			return
		}

		env, err := v1.Decode(data)
		if err != nil {
			m.log.Warn("channel.frame.malformed", "err", err, "bytes", len(data))
			m.obs.FrameDropped(DropMalformed)
			continue
		}

		if !m.current(gen) {
			return
		}
		m.obs.FrameReceived(env.Type)
		if n := m.hub.Publish(env); n > 0 {
			for i := 0; i < n; i++ {
				m.obs.FrameDropped(DropQueueFull)
			}
		}
	}
}

// heartbeat pings the peer. After maxPingFailures consecutive failures the
// connection is closed, which the reader reports as an unintentional close.
func (m *Manager) heartbeat(gen uint64, conn Conn) {
	defer m.wg.Done()

	ticker := m.clock.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.Chan():
		}
		if !m.current(gen) {
			return
		}

		ctx, cancel := context.WithTimeout(m.ctx, m.cfg.HeartbeatTimeout)
		err := conn.Ping(ctx)
		cancel()
		if err == nil {
			failures = 0
			continue
		}

		failures++
		m.log.Debug("channel.ping.failed", "failures", failures, "err", err)
		if failures >= maxPingFailures {
			m.log.Warn("channel.ping.dead", "failures", failures)
			_ = conn.Close()
			return
		}
	}
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen && !m.closed
}

// onClosedLocked handles an unintentional close of the current connection.
// The returned func must run after the lock is released.
func (m *Manager) onClosedLocked() (after func()) {
	m.gen++
	m.stopTimersLocked()
	m.closeConnLocked()

	if m.retry >= m.cfg.MaxRetries {
		m.log.Error("channel.reconnect.exhausted", "attempt", m.retry)
		m.setStatusLocked(StatusIdle)
		m.obs.GaveUp()
		return func() {
			m.sess.Invalidate(context.Background(), session.ReasonChannelRetries)
		}
	}

	delay := m.backoff.NextBackOff()
	m.retry++
	m.setStatusLocked(StatusWaiting)

	gen := m.gen
	m.reconnect = m.clock.AfterFunc(delay, func() { m.onReconnect(gen) })
	m.log.Info("channel.reconnect.scheduled", "delay_ms", delay.Milliseconds(), "attempt", m.retry)
	m.obs.ReconnectScheduled(delay, m.retry)
	return func() {}
}

func (m *Manager) onReconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.closed || m.access == "" {
		m.mu.Unlock()
		return
	}
	m.reconnect = nil
	m.connectLocked()
	m.mu.Unlock()

	m.publishStatus()
}

func (m *Manager) onStable(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.closed || m.status != StatusOpen {
		return
	}
	m.stable = nil
	if m.retry != 0 {
		m.log.Info("channel.stable", "conn_id", m.connID, "attempt", m.retry)
	}
	m.resetRetryLocked()
}

func (m *Manager) resetRetryLocked() {
	m.retry = 0
	m.backoff.Reset()
}

// teardownLocked ends the current lifetime on purpose: no reconnect follows.
func (m *Manager) teardownLocked() {
	m.gen++
	m.stopTimersLocked()
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	m.closeConnLocked()
}

func (m *Manager) stopTimersLocked() {
	if m.stable != nil {
		m.stable.Stop()
		m.stable = nil
	}
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
}

func (m *Manager) closeConnLocked() {
	if m.conn == nil {
		return
	}
	conn := m.conn
	m.conn = nil
	m.connID = ""
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_ = conn.Close()
	}()
}

func (m *Manager) setStatusLocked(s Status) {
	if m.status == s {
		return
	}
	m.status = s
	m.dirty = true
	m.obs.StatusChanged(s)
}

// publishStatus notifies OnStatus subscribers of the latest connectivity.
// Transitions that land while subscribers run are coalesced.
func (m *Manager) publishStatus() {
	m.mu.Lock()
	if m.dispatching || !m.dirty {
		m.mu.Unlock()
		return
	}
	m.dispatching = true
	last := m.published
	for m.dirty {
		m.dirty = false
		connected := m.status == StatusOpen
		if connected == last {
			continue
		}
		last = connected
		m.published = connected
		fns := make([]func(bool), 0, len(m.statusSubs))
		for _, s := range m.statusSubs {
			fns = append(fns, s.fn)
		}
		m.mu.Unlock()
		for _, fn := range fns {
			fn(connected)
		}
		m.mu.Lock()
	}
	m.dispatching = false
	m.mu.Unlock()
}
