// Package app wires the caelium admin runtime: config, logging, the token
// store, session, gateway, realtime channel, metrics and the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/Jerit-Baiju/caelium-admin/cmd/internal/auth/session"
	"github.com/Jerit-Baiju/caelium-admin/cmd/internal/auth/tokenstore"
	"github.com/Jerit-Baiju/caelium-admin/cmd/internal/gateway"
	"github.com/Jerit-Baiju/caelium-admin/cmd/internal/metrics"
	"github.com/Jerit-Baiju/caelium-admin/cmd/internal/realtime"
)

// Version is reported by /healthz and `caelium version`.
var Version = "dev"

// Option overrides a dependency, mostly for tests.
type Option func(*deps)

type deps struct {
	store     tokenstore.Store
	exchanger session.Exchanger
	dialer    realtime.Dialer
	transport http.RoundTripper
}

// WithStore replaces the configured backend.
func WithStore(s tokenstore.Store) Option { return func(d *deps) { d.store = s } }

// WithExchanger replaces the HTTP login/refresh exchanger.
func WithExchanger(x session.Exchanger) Option { return func(d *deps) { d.exchanger = x } }

// WithDialer replaces the websocket dialer.
func WithDialer(dl realtime.Dialer) Option { return func(d *deps) { d.dialer = dl } }

// WithTransport replaces the base transport under the gateway.
func WithTransport(rt http.RoundTripper) Option { return func(d *deps) { d.transport = rt } }

// App owns every long-lived component of one CLI invocation.
type App struct {
	cfg Config
	log Logger

	reg     *prometheus.Registry
	metrics *metrics.Metrics
	health  *metrics.Health

	store   tokenstore.Store
	dbPool  *pgxpool.Pool
	rdb     *redis.Client
	session *session.Manager
	client  *gateway.Client
	channel *realtime.Manager

	unsub func()
}

// New constructs a fully wired App. Nothing connects to the channel until
// StartChannel; the stored session is not adopted until Restore.
func New(ctx context.Context, cfg Config, log Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogColor)
	}
	var d deps
	for _, opt := range opts {
		opt(&d)
	}

	a := &App{cfg: cfg, log: log, reg: prometheus.NewRegistry()}
	a.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.reg)

	st := d.store
	if st == nil {
		var err error
		st, err = a.openStore(ctx)
		if err != nil {
			a.closeBackends()
			return nil, err
		}
	}
	a.store = st

	fp := fingerprinter()

	ex := d.exchanger
	if ex == nil {
		ex = session.NewHTTPExchanger(cfg.Session, &http.Client{Timeout: cfg.Session.ExchangeTimeout})
	}
	a.session = session.NewManager(cfg.Session, st, ex,
		session.WithLogger(log.With("component", "session")),
		session.WithObserver(a.metrics),
		session.WithFingerprinter(fp),
	)
	a.unsub = a.session.Subscribe(func(s session.State) {
		a.metrics.SetAuthenticated(s.Authenticated)
	})

	base := d.transport
	if base == nil {
		base = http.DefaultTransport
	}
	tr := gateway.NewTransport(base, a.session, cfg.RefreshThreshold, log.With("component", "gateway"))
	tr.Observer = a.metrics
	client, err := gateway.NewClient(cfg.APIHost, tr, cfg.RequestTimeout)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.client = client

	dialer := d.dialer
	if dialer == nil {
		dialer = realtime.WSDialer{Origin: cfg.Origin}
	}
	a.channel = realtime.NewManager(cfg.Channel, a.session, dialer,
		realtime.WithLogger(log.With("component", "channel")),
		realtime.WithObserver(a.metrics),
		realtime.WithFingerprinter(fp),
	)

	checks := []metrics.Check{
		{Name: "session", Ready: func() (bool, string) {
			return a.session.State().Authenticated, "not logged in"
		}},
		{Name: "channel", Ready: func() (bool, string) {
			return a.channel.Connected(), a.channel.Status().String()
		}},
	}
	if a.dbPool != nil {
		checks = append(checks, metrics.Check{Name: "store", Ready: func() (bool, string) {
			return pingCheck(PingDB(context.Background(), a.dbPool, storePingTimeout))
		}})
	}
	if a.rdb != nil {
		checks = append(checks, metrics.Check{Name: "store", Ready: func() (bool, string) {
			return pingCheck(PingRedis(context.Background(), a.rdb, storePingTimeout))
		}})
	}
	a.health = metrics.NewHealth(Version, checks...)
	return a, nil
}

const storePingTimeout = 2 * time.Second

func pingCheck(err error) (bool, string) {
	if err != nil {
		return false, err.Error()
	}
	return true, "ok"
}

// openStore opens the configured backend, sealed when a passphrase is set.
func (a *App) openStore(ctx context.Context) (tokenstore.Store, error) {
	codec := tokenstore.PlainCodec()
	if a.cfg.StorePassphrase != "" {
		c, err := tokenstore.SealedCodec(a.cfg.Sealer, a.cfg.StorePassphrase)
		if err != nil {
			return nil, err
		}
		codec = c
	}

	switch a.cfg.StoreBackend {
	case StoreMemory:
		a.log.Info("store.memory")
		return tokenstore.NewMemoryStore(codec), nil

	case StorePostgres:
		pool, err := NewDBPool(ctx, a.cfg)
		if err != nil {
			return nil, fmt.Errorf("store postgres: %w", err)
		}
		a.dbPool = pool
		s := tokenstore.NewPostgresStore(pool, codec)
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("store postgres: %w", err)
		}
		a.log.Info("store.postgres", "sealed", codec.Sealed())
		return s, nil

	case StoreRedis:
		rdb, err := NewRedisClient(ctx, a.cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("store redis: %w", err)
		}
		a.rdb = rdb
		s := tokenstore.NewRedisStore(rdb, a.cfg.RedisPrefix, codec)
		a.log.Info("store.redis", "key", s.Key(), "sealed", codec.Sealed())
		return s, nil

	default:
		s, err := tokenstore.NewBoltStore(a.cfg.BoltPath(), codec)
		if err != nil {
			return nil, fmt.Errorf("store bolt: %w", err)
		}
		a.log.Debug("store.bolt", "path", a.cfg.BoltPath(), "sealed", codec.Sealed())
		return s, nil
	}
}

// Session returns the session manager.
func (a *App) Session() *session.Manager { return a.session }

// Client returns the authenticated API client.
func (a *App) Client() *gateway.Client { return a.client }

// Channel returns the realtime channel manager.
func (a *App) Channel() *realtime.Manager { return a.channel }

// Metrics returns the collectors.
func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Restore adopts the stored credentials, if any.
func (a *App) Restore(ctx context.Context) error {
	return a.session.Restore(ctx)
}

// StartChannel binds the channel to the session.
func (a *App) StartChannel() { a.channel.Start() }

// RequireSession is the guard for commands that need credentials.
func (a *App) RequireSession() (session.Claims, error) {
	_, claims, ok := a.session.Current()
	if !ok {
		return session.Claims{}, session.ErrNotAuthenticated
	}
	return claims, nil
}

// Login exchanges credentials. Every failure is reported as invalid credentials.
func (a *App) Login(ctx context.Context, identifier, secret string) (session.Claims, error) {
	if !a.session.Login(ctx, identifier, secret) {
		return session.Claims{}, session.ErrInvalidCredentials
	}
	return a.RequireSession()
}

// Logout ends the session and clears the stored slot.
func (a *App) Logout(ctx context.Context) {
	a.session.Logout(ctx)
}

// Whoami fetches the logged-in account.
func (a *App) Whoami(ctx context.Context) (gateway.Account, error) {
	claims, err := a.RequireSession()
	if err != nil {
		return gateway.Account{}, err
	}
	return a.client.Me(ctx, claims.UserID)
}

// maxGetBody caps how much of a `get` response is copied out.
const maxGetBody = 16 << 20

// Get performs an authenticated GET and copies the body to w.
func (a *App) Get(ctx context.Context, path string, w io.Writer) error {
	if _, err := a.RequireSession(); err != nil {
		return err
	}

	resp, err := a.client.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxGetBody))
		return &gateway.StatusError{Method: http.MethodGet, Path: path, Code: resp.StatusCode}
	}
	_, err = io.Copy(w, io.LimitReader(resp.Body, maxGetBody))
	return err
}

// Close releases everything in reverse construction order.
func (a *App) Close() {
	if a.channel != nil {
		a.channel.Close()
	}
	if a.unsub != nil {
		a.unsub()
	}
	if a.session != nil {
		a.session.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Error("store.close.fail", "err", err)
		}
	}
	a.closeBackends()
}

func (a *App) closeBackends() {
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			a.log.Error("redis.close.fail", "err", err)
		}
		a.rdb = nil
	}
}
