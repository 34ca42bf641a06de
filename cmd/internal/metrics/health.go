package metrics

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// HealthStatus is the JSON body of /healthz and /readyz.
type HealthStatus struct {
	Status     string            `json:"status"` // "healthy", "ready", "not_ready"
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

// Check reports whether one readiness component is satisfied and, if not, why.
type Check struct {
	Name  string
	Ready func() (bool, string)
}

// Health answers liveness and readiness from a fixed set of checks.
type Health struct {
	Version string
	Checks  []Check
	Now     func() time.Time

	start time.Time
}

// NewHealth starts the uptime clock.
func NewHealth(version string, checks ...Check) *Health {
	return &Health{Version: version, Checks: checks, Now: time.Now, start: time.Now()}
}

// Liveness always reports healthy while the process runs.
func (h *Health) Liveness() HealthStatus {
	now := h.Now()
	return HealthStatus{
		Status:    "healthy",
		Timestamp: now,
		Version:   h.Version,
		Uptime:    now.Sub(h.start).Round(time.Second).String(),
	}
}

// Readiness runs every check; one failure makes the whole answer not_ready.
func (h *Health) Readiness() HealthStatus {
	now := h.Now()
	st := HealthStatus{
		Status:     "ready",
		Timestamp:  now,
		Components: make(map[string]string, len(h.Checks)),
		Version:    h.Version,
		Uptime:     now.Sub(h.start).Round(time.Second).String(),
	}

	var waiting []string
	for _, c := range h.Checks {
		ok, why := c.Ready()
		if ok {
			st.Components[c.Name] = "ready"
			continue
		}
		st.Status = "not_ready"
		st.Components[c.Name] = "not ready: " + why
		waiting = append(waiting, c.Name)
	}
	if len(waiting) > 0 {
		sort.Strings(waiting)
		st.Message = "waiting for " + waiting[0]
	}
	return st
}

// HealthHandler serves Liveness.
func (h *Health) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, h.Liveness())
	}
}

// ReadyHandler serves Readiness with 503 until every check passes.
func (h *Health) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		st := h.Readiness()
		code := http.StatusOK
		if st.Status != "ready" {
			code = http.StatusServiceUnavailable
		}
		writeStatus(w, code, st)
	}
}

func writeStatus(w http.ResponseWriter, code int, st HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(st)
}
