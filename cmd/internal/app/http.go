package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/Jerit-Baiju/caelium-admin/cmd/internal/metrics"
)

func registerHTTP(mux *http.ServeMux, a *App) {
	mux.Handle("/healthz", a.health.HealthHandler())
	mux.Handle("/readyz", a.health.ReadyHandler())
	mux.Handle("/metrics", metrics.Handler(a.reg))
}

// Handler is the ops HTTP surface: /healthz, /readyz and /metrics.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a)
	return WithSecurityHeaders(WithRequestLogging(mux, a.log))
}

// Serve keeps the session and channel alive and exposes the ops surface
// until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.OpsAddr)
	if err != nil {
		return err
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	a.StartChannel()

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.OpsReadHeaderTimeout, 5*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.OpsWriteTimeout, 15*time.Second),
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	a.log.Info("ops.start",
		"addr", ln.Addr().String(),
		"authenticated", a.session.State().Authenticated,
		"store", a.cfg.StoreBackend,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("ops.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("ops.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("ops.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("ops.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
