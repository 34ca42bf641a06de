package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Jerit-Baiju/caelium-admin/cmd/internal/realtime"
	v1 "github.com/Jerit-Baiju/caelium-admin/shared/contracts/realtime/v1"
)

const namespace = "caelium"

// Metrics holds every collector. Build it with New.
type Metrics struct {
	// Session metrics
	SessionAuthenticated prometheus.Gauge
	LoginsTotal          *prometheus.CounterVec
	RefreshesTotal       *prometheus.CounterVec
	LogoutsTotal         *prometheus.CounterVec

	// Gateway metrics
	RequestsTotal *prometheus.CounterVec

	// Channel metrics
	ChannelConnected    prometheus.Gauge
	ChannelStatus       *prometheus.GaugeVec
	ReconnectsTotal     prometheus.Counter
	ReconnectDelay      prometheus.Histogram
	ChannelGaveUpTotal  prometheus.Counter
	FramesReceivedTotal *prometheus.CounterVec
	FramesDroppedTotal  *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionAuthenticated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_authenticated",
			Help:      "Whether credentials are present (1 = authenticated, 0 = anonymous)",
		}),
		LoginsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_logins_total",
			Help:      "Login exchanges by result",
		}, []string{"result"}),
		RefreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_refreshes_total",
			Help:      "Refresh exchanges by outcome",
		}, []string{"outcome"}),
		LogoutsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_logouts_total",
			Help:      "Session terminations by reason",
		}, []string{"reason"}),

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Requests through the authenticated gateway by outcome and whether a refresh preceded them",
		}, []string{"outcome", "refreshed"}),

		ChannelConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_connected",
			Help:      "Whether the realtime channel is open (1 = open, 0 = not open)",
		}),
		ChannelStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_status",
			Help:      "Current channel lifecycle state (1 for the active state)",
		}, []string{"state"}),
		ReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_reconnects_scheduled_total",
			Help:      "Reconnect attempts scheduled after unintentional closes",
		}),
		ReconnectDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "channel_reconnect_delay_seconds",
			Help:      "Backoff delay before each reconnect attempt",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 10},
		}),
		ChannelGaveUpTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_gave_up_total",
			Help:      "Times the channel exhausted its reconnect budget and ended the session",
		}),
		FramesReceivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_frames_received_total",
			Help:      "Decoded frames by type (unknown types are counted as other)",
		}, []string{"type"}),
		FramesDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_frames_dropped_total",
			Help:      "Frames dropped by reason",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.SessionAuthenticated,
		m.LoginsTotal,
		m.RefreshesTotal,
		m.LogoutsTotal,
		m.RequestsTotal,
		m.ChannelConnected,
		m.ChannelStatus,
		m.ReconnectsTotal,
		m.ReconnectDelay,
		m.ChannelGaveUpTotal,
		m.FramesReceivedTotal,
		m.FramesDroppedTotal,
	)
	m.StatusChanged(realtime.StatusIdle)
	return m
}

// Handler serves the collectors registered on g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// SetAuthenticated records whether credentials are present.
func (m *Metrics) SetAuthenticated(ok bool) {
	m.SessionAuthenticated.Set(boolGauge(ok))
}

// ---- session.Observer ----

func (m *Metrics) LoginAttempt(ok bool) {
	result := "failed"
	if ok {
		result = "ok"
	}
	m.LoginsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RefreshAttempt(outcome string) {
	m.RefreshesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) LoggedOut(reason string) {
	m.LogoutsTotal.WithLabelValues(reason).Inc()
	m.SessionAuthenticated.Set(0)
}

// ---- gateway.Observer ----

func (m *Metrics) Request(outcome string, refreshed bool) {
	m.RequestsTotal.WithLabelValues(outcome, strconv.FormatBool(refreshed)).Inc()
}

// ---- realtime.Observer ----

var channelStates = []realtime.Status{
	realtime.StatusIdle,
	realtime.StatusConnecting,
	realtime.StatusOpen,
	realtime.StatusWaiting,
}

func (m *Metrics) StatusChanged(s realtime.Status) {
	m.ChannelConnected.Set(boolGauge(s == realtime.StatusOpen))
	for _, st := range channelStates {
		m.ChannelStatus.WithLabelValues(st.String()).Set(boolGauge(st == s))
	}
}

func (m *Metrics) ReconnectScheduled(delay time.Duration, _ int) {
	m.ReconnectsTotal.Inc()
	m.ReconnectDelay.Observe(delay.Seconds())
}

func (m *Metrics) GaveUp() {
	m.ChannelGaveUpTotal.Inc()
}

func (m *Metrics) FrameReceived(typ string) {
	if typ != v1.TypeLogEntry {
		typ = "other"
	}
	m.FramesReceivedTotal.WithLabelValues(typ).Inc()
}

func (m *Metrics) FrameDropped(reason string) {
	m.FramesDroppedTotal.WithLabelValues(reason).Inc()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
