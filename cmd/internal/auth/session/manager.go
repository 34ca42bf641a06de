package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Jerit-Baiju/caelium-admin/cmd/internal/auth/tokenstore"
	"github.com/Jerit-Baiju/caelium-admin/cmd/security/token"
)

// Logout reasons reported to logs and the Observer.
const (
	ReasonUser           = "user"
	ReasonLoginFailed    = "login_failed"
	ReasonRefreshFailed  = "refresh_failed"
	ReasonDecodeFailed   = "decode_failed"
	ReasonStoreCorrupt   = "store_corrupt"
	ReasonUnauthorized   = "unauthorized"
	ReasonInvalidToken   = "invalid_token"
	ReasonChannelRetries = "channel_retries"
)

// Refresh outcomes reported to the Observer.
const (
	RefreshOK        = "ok"
	RefreshRejected  = "rejected"
	RefreshError     = "error"
	RefreshMalformed = "malformed"
	RefreshDiscarded = "discarded"
	RefreshAbandoned = "abandoned"
)

const persistTimeout = 5 * time.Second

// State is a snapshot of the session. Authenticated implies Pair and Claims
// are set; anonymous implies both are zero.
type State struct {
	Authenticated bool
	Pair          tokenstore.Pair
	Claims        Claims
	// Err is the last user-visible failure (only ErrInvalidCredentials today).
	Err error
}

// Observer receives session events, typically for metrics.
type Observer interface {
	LoginAttempt(ok bool)
	RefreshAttempt(outcome string)
	LoggedOut(reason string)
}

type nopObserver struct{}

func (nopObserver) LoginAttempt(bool) {}

func (nopObserver) RefreshAttempt(string) {}

func (nopObserver) LoggedOut(string) {}

// Option configures a Manager.
type Option func(*Manager)

// WithClock injects the clock used for renewal scheduling.
func WithClock(c clockwork.Clock) Option { return func(m *Manager) { m.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.log = l } }

// WithObserver sets the event observer.
func WithObserver(o Observer) Option { return func(m *Manager) { m.obs = o } }

// WithFingerprinter sets how tokens are fingerprinted in logs.
func WithFingerprinter(f token.Fingerprinter) Option { return func(m *Manager) { m.fp = f } }

type subscriber struct {
	id uint64
	fn func(State)
}

// Manager is the single authority for credential validity.
type Manager struct {
	cfg   Config
	store tokenstore.Store
	ex    Exchanger
	clock clockwork.Clock
	log   *slog.Logger
	obs   Observer
	fp    token.Fingerprinter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	authed  bool
	pair    tokenstore.Pair
	claims  Claims
	lastErr error
	// epoch changes whenever a session begins or ends. Work started in an
	// older epoch never mutates the current one.
	epoch    uint64
	renewal  clockwork.Timer
	renewGen uint64
	closed   bool

	subs        []subscriber
	nextSubID   uint64
	dispatching bool
	dirty       bool

	persistMu sync.Mutex
}

// NewManager builds an anonymous Manager. Call Restore to adopt a stored pair.
func NewManager(cfg Config, store tokenstore.Store, ex Exchanger, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:    cfg,
		store:  store,
		ex:     ex,
		clock:  clockwork.NewRealClock(),
		log:    slog.Default(),
		obs:    nopObserver{},
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current snapshot.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Current returns the access token and its claims when authenticated.
func (m *Manager) Current() (string, Claims, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.authed {
		return "", Claims{}, false
	}
	return m.pair.Access, m.claims, true
}

// Now returns the manager's clock reading.
func (m *Manager) Now() time.Time { return m.clock.Now() }

// Subscribe registers fn to run after every transition, in registration order,
// outside the manager lock. Transitions that land while subscribers are still
// running are coalesced: subscribers always receive the latest state.
func (m *Manager) Subscribe(fn func(State)) (cancel func()) {
	m.mu.Lock()
	m.nextSubID++
	id := m.nextSubID
	m.subs = append(m.subs, subscriber{id: id, fn: fn})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, s := range m.subs {
				if s.id == id {
					m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Restore adopts the stored pair, if any. An undecodable or corrupt slot ends
// the session and is cleared; only store I/O failures are returned.
func (m *Manager) Restore(ctx context.Context) error {
	p, found, err := m.store.Load(ctx)
	if err != nil {
		if errors.Is(err, tokenstore.ErrCorrupt) {
			m.log.Warn("session.restore.corrupt", "err", err)
			m.terminate(ctx, ReasonStoreCorrupt, nil, 0, true)
			return nil
		}
		return err
	}
	if !found {
		m.log.Debug("session.restore.empty")
		return nil
	}

	claims, err := DecodeClaims(p.Access)
	if err != nil {
		m.log.Warn("session.restore.decode.fail", "token", m.fp.Of(p.Access), "err", err)
		m.terminate(ctx, ReasonDecodeFailed, nil, 0, true)
		return nil
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.epoch++
	m.authed, m.pair, m.claims, m.lastErr = true, p, claims, nil
	m.scheduleRenewalLocked()
	m.mu.Unlock()

	m.log.Info("session.restore.ok",
		"user_id", claims.UserID,
		"token", m.fp.Of(p.Access),
		"expires_in", claims.Remaining(m.clock.Now()).Round(time.Second),
	)
	m.publish()
	return nil
}

// Login exchanges identifier/secret for a credential pair. On failure any
// existing session is cleared and State().Err becomes ErrInvalidCredentials.
func (m *Manager) Login(ctx context.Context, identifier, secret string) bool {
	pair, err := m.ex.Login(ctx, identifier, secret)
	var claims Claims
	if err == nil {
		claims, err = DecodeClaims(pair.Access)
	}
	if err != nil {
		m.log.Warn("session.login.fail", "err", err)
		m.obs.LoginAttempt(false)
		m.terminate(ctx, ReasonLoginFailed, ErrInvalidCredentials, 0, true)
		return false
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.epoch++
	m.authed, m.pair, m.claims, m.lastErr = true, pair, claims, nil
	m.scheduleRenewalLocked()
	m.mu.Unlock()

	m.persist(ctx)
	m.obs.LoginAttempt(true)
	m.log.Info("session.login.ok",
		"user_id", claims.UserID,
		"staff", claims.IsStaff,
		"token", m.fp.Of(pair.Access),
		"expires_at", claims.ExpiresAt,
	)
	m.publish()
	return true
}

// Refresh trades the stored refresh token for a new access token. The refresh
// token is kept as-is. Any failure (except the caller abandoning ctx, or the
// session having ended meanwhile) logs the session out and returns false.
//
// Concurrent calls are not coalesced; each successful response is applied in
// completion order.
func (m *Manager) Refresh(ctx context.Context) (tokenstore.Pair, bool) {
	m.mu.Lock()
	if m.closed || !m.authed {
		m.mu.Unlock()
		return tokenstore.Pair{}, false
	}
	epoch := m.epoch
	refresh := m.pair.Refresh
	m.mu.Unlock()

	access, err := m.ex.Refresh(ctx, refresh)
	if err != nil {
		if ctx.Err() != nil || m.ctx.Err() != nil {
			m.log.Debug("session.refresh.abandoned", "err", err)
			m.obs.RefreshAttempt(RefreshAbandoned)
			return tokenstore.Pair{}, false
		}
		outcome := RefreshError
		if errors.Is(err, ErrRejected) {
			outcome = RefreshRejected
		}
		m.log.Warn("session.refresh.fail", "outcome", outcome, "err", err)
		m.failRefresh(ctx, epoch, outcome, ReasonRefreshFailed)
		return tokenstore.Pair{}, false
	}

	claims, err := DecodeClaims(access)
	if err != nil {
		m.log.Warn("session.refresh.decode.fail", "token", m.fp.Of(access), "err", err)
		m.failRefresh(ctx, epoch, RefreshMalformed, ReasonDecodeFailed)
		return tokenstore.Pair{}, false
	}

	m.mu.Lock()
	if m.closed || !m.authed || m.epoch != epoch {
		m.mu.Unlock()
		m.log.Debug("session.refresh.discarded", "token", m.fp.Of(access))
		m.obs.RefreshAttempt(RefreshDiscarded)
		return tokenstore.Pair{}, false
	}
	m.pair = tokenstore.Pair{Access: access, Refresh: m.pair.Refresh}
	m.claims = claims
	m.lastErr = nil
	pair := m.pair
	m.scheduleRenewalLocked()
	m.mu.Unlock()

	m.persist(ctx)
	m.obs.RefreshAttempt(RefreshOK)
	m.log.Info("session.refresh.ok",
		"user_id", claims.UserID,
		"token", m.fp.Of(access),
		"expires_at", claims.ExpiresAt,
	)
	m.publish()
	return pair, true
}

// Logout ends the session. It is idempotent.
func (m *Manager) Logout(ctx context.Context) {
	m.terminate(ctx, ReasonUser, nil, 0, true)
}

// Invalidate ends the session on behalf of a dependent (gateway, channel),
// recording why.
func (m *Manager) Invalidate(ctx context.Context, reason string) {
	m.terminate(ctx, reason, nil, 0, true)
}

// Close stops the renewal timer and waits for in-flight renewals. The stored
// pair is left in place for the next process.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.stopRenewalLocked()
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

func (m *Manager) failRefresh(ctx context.Context, epoch uint64, outcome, reason string) {
	if !m.terminate(ctx, reason, nil, epoch, false) {
		outcome = RefreshDiscarded
	}
	m.obs.RefreshAttempt(outcome)
}

// terminate clears the session. Unless anyEpoch is set it only acts when the
// session is still in epoch. It reports whether it acted.
func (m *Manager) terminate(ctx context.Context, reason string, lastErr error, epoch uint64, anyEpoch bool) bool {
	m.mu.Lock()
	if !anyEpoch && (m.epoch != epoch || !m.authed) {
		m.mu.Unlock()
		return false
	}
	wasAuthed := m.authed
	prevErr := m.lastErr
	m.stopRenewalLocked()
	m.epoch++
	m.authed, m.pair, m.claims, m.lastErr = false, tokenstore.Pair{}, Claims{}, lastErr
	m.mu.Unlock()

	m.persist(ctx)

	if wasAuthed {
		m.obs.LoggedOut(reason)
		m.log.Info("session.logout", "reason", reason)
	}
	if wasAuthed || prevErr != lastErr {
		m.publish()
	}
	return true
}

// persist writes whatever the session currently is: the pair when
// authenticated, an empty slot otherwise. Serialized so the slot converges
// on the latest state even when callers race.
func (m *Manager) persist(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	authed, pair := m.authed, m.pair
	m.mu.Unlock()

	var err error
	op := "delete"
	if authed {
		op = "save"
		err = m.store.Save(ctx, pair)
	} else {
		err = m.store.Delete(ctx)
	}
	if err != nil {
		m.log.Error("session.store.fail", "op", op, "err", err)
	}
}

func (m *Manager) scheduleRenewalLocked() {
	m.stopRenewalLocked()
	if m.closed || !m.authed {
		return
	}

	m.renewGen++
	gen, epoch := m.renewGen, m.epoch
	delay := m.claims.ExpiresAt.Add(-m.cfg.RenewBefore).Sub(m.clock.Now())

	if delay <= 0 {
		m.log.Info("session.renewal.immediate", "overdue", (-delay).Round(time.Second))
		go m.renew(gen, epoch)
		return
	}

	m.renewal = m.clock.AfterFunc(delay, func() { m.renew(gen, epoch) })
	m.log.Debug("session.renewal.armed", "delay", delay.Round(time.Second))
}

func (m *Manager) stopRenewalLocked() {
	if m.renewal != nil {
		m.renewal.Stop()
		m.renewal = nil
	}
}

func (m *Manager) renew(gen, epoch uint64) {
	m.mu.Lock()
	if m.closed || gen != m.renewGen || epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	m.renewal = nil
	m.wg.Add(1)
	m.mu.Unlock()
	defer m.wg.Done()

	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.ExchangeTimeout)
	defer cancel()
	m.Refresh(ctx)
}

func (m *Manager) snapshotLocked() State {
	return State{
		Authenticated: m.authed,
		Pair:          m.pair,
		Claims:        m.claims,
		Err:           m.lastErr,
	}
}

func (m *Manager) publish() {
	m.mu.Lock()
	m.dirty = true
	if m.dispatching {
		m.mu.Unlock()
		return
	}
	m.dispatching = true
	for m.dirty {
		m.dirty = false
		st := m.snapshotLocked()
		fns := make([]func(State), 0, len(m.subs))
		for _, s := range m.subs {
			fns = append(fns, s.fn)
		}
		m.mu.Unlock()
		for _, fn := range fns {
			fn(st)
		}
		m.mu.Lock()
	}
	m.dispatching = false
	m.mu.Unlock()
}
