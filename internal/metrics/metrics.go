package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamgate",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "streamgate",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	StreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamgate",
		Name:      "stream_requests_total",
		Help:      "Total proxied stream fetches by kind (master, variant, segment, other).",
	}, []string{"kind"})

	StreamUpstreamErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamgate",
		Name:      "stream_upstream_errors_total",
		Help:      "Upstream fetch failures by reason (network, auth, status, mismatch).",
	}, []string{"reason"})

	TokenRefreshesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamgate",
		Name:      "token_refreshes_total",
		Help:      "Upstream credential refreshes by outcome (ok, fallback).",
	}, []string{"outcome"})

	PlaybackSessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "streamgate",
		Name:      "playback_sessions_active",
		Help:      "Number of currently live playback sessions.",
	})

	PlaybackTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamgate",
		Name:      "playback_state_transitions_total",
		Help:      "Playback session state transitions.",
	}, []string{"from", "to"})

	PlaybackSwitchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamgate",
		Name:      "playback_switches_total",
		Help:      "Pipeline reloads by trigger (audio, quality, source, recovery).",
	}, []string{"trigger"})

	PlaybackRecoveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamgate",
		Name:      "playback_recoveries_total",
		Help:      "In-place engine recoveries by error kind.",
	}, []string{"kind"})

	ProgressSavesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamgate",
		Name:      "progress_saves_total",
		Help:      "Watch-position persistence attempts by outcome.",
	}, []string{"outcome"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		StreamRequestsTotal,
		StreamUpstreamErrors,
		TokenRefreshesTotal,
		PlaybackSessionsActive,
		PlaybackTransitionsTotal,
		PlaybackSwitchesTotal,
		PlaybackRecoveriesTotal,
		ProgressSavesTotal,
	)
}
