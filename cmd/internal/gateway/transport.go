package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Jerit-Baiju/caelium-admin/cmd/internal/auth/session"
	"github.com/Jerit-Baiju/caelium-admin/cmd/internal/auth/tokenstore"
)

// DefaultRefreshThreshold is the minimum validity a token must have to be sent as-is.
const DefaultRefreshThreshold = 60 * time.Second

// Session is the slice of session.Manager the gateway needs.
type Session interface {
	Current() (access string, claims session.Claims, ok bool)
	Refresh(ctx context.Context) (tokenstore.Pair, bool)
	Invalidate(ctx context.Context, reason string)
	Now() time.Time
}

// Observer receives one call per dispatched (or refused) request.
type Observer interface {
	Request(outcome string, refreshed bool)
}

// Request outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeStatus       = "status"
	OutcomeUnauthorized = "unauthorized"
	OutcomeExpired      = "expired"
	OutcomeTransport    = "transport_error"
)

// Transport injects Authorization headers. The zero Base uses http.DefaultTransport.
type Transport struct {
	Base      http.RoundTripper
	Session   Session
	Threshold time.Duration
	Log       *slog.Logger
	Observer  Observer
}

// NewTransport wraps base for s.
func NewTransport(base http.RoundTripper, s Session, threshold time.Duration, log *slog.Logger) *Transport {
	return &Transport{Base: base, Session: s, Threshold: threshold, Log: log}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	log := t.logger()

	access, claims, ok := t.Session.Current()
	refreshed := false

	if ok {
		if claims.ExpiresAt.IsZero() {
			closeBody(req)
			t.Session.Invalidate(ctx, session.ReasonInvalidToken)
			t.observe(OutcomeExpired, false)
			return nil, ErrInvalidToken
		}

		if left := claims.Remaining(t.Session.Now()); left < t.threshold() {
			log.Debug("gateway.refresh.before_dispatch", "path", req.URL.Path, "remaining", left.Round(time.Second))
			pair, ok := t.Session.Refresh(ctx)
			if !ok {
				closeBody(req)
				log.Info("gateway.refuse.expired", "method", req.Method, "path", req.URL.Path)
				t.observe(OutcomeExpired, true)
				return nil, ErrSessionExpired
			}
			access = pair.Access
			refreshed = true
		}
	}

	out := req.Clone(ctx)
	if ok {
		out.Header.Set("Authorization", "Bearer "+access)
	} else {
		out.Header.Del("Authorization")
	}

	resp, err := t.base().RoundTrip(out)
	if err != nil {
		t.observe(OutcomeTransport, refreshed)
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		log.Warn("gateway.unauthorized", "method", req.Method, "path", req.URL.Path)
		t.Session.Invalidate(ctx, session.ReasonUnauthorized)
		t.observe(OutcomeUnauthorized, refreshed)
	case resp.StatusCode >= 300:
		t.observe(OutcomeStatus, refreshed)
	default:
		t.observe(OutcomeOK, refreshed)
	}
	return resp, nil
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) threshold() time.Duration {
	if t.Threshold > 0 {
		return t.Threshold
	}
	return DefaultRefreshThreshold
}

func (t *Transport) logger() *slog.Logger {
	if t.Log != nil {
		return t.Log
	}
	return slog.Default()
}

func (t *Transport) observe(outcome string, refreshed bool) {
	if t.Observer != nil {
		t.Observer.Request(outcome, refreshed)
	}
}

// closeBody honors the RoundTripper contract on early returns.
func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}
