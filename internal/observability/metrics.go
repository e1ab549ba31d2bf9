package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions   prometheus.Gauge
	SessionEvents    *prometheus.CounterVec
	StateTransitions *prometheus.CounterVec
	WSMessages       *prometheus.CounterVec
	CaptureErrors    *prometheus.CounterVec
	CaptureRestarts  *prometheus.CounterVec
	EchoSuppressions prometheus.Counter
	SendLatency      prometheus.Histogram

	stageWindow *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active voice sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		StateTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Voice session state transitions by target state.",
		}, []string{"state"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		CaptureErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_errors_total",
			Help:      "Recognizer errors by code and class.",
		}, []string{"code", "class"}),
		CaptureRestarts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_restarts_total",
			Help:      "Recognizer restarts by cause.",
		}, []string{"cause"}),
		EchoSuppressions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "echo_suppressions_total",
			Help:      "Recognition events discarded as playback echo.",
		}),
		SendLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_latency_ms",
			Help:      "Latency of the chat send call in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 15000},
		}),
		stageWindow: newStageWindow(256),
	}
}

func (m *Metrics) ObserveSendLatency(d time.Duration) {
	m.SendLatency.Observe(float64(d.Milliseconds()))
}

// ObserveStage records a pipeline stage latency into the sliding window
// served by the perf endpoint.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil || m.stageWindow == nil {
		return
	}
	m.stageWindow.Observe(stage, float64(d.Milliseconds()))
}

// ObserveIndicator counts a named pipeline indicator in the perf window.
func (m *Metrics) ObserveIndicator(name string) {
	if m == nil || m.stageWindow == nil {
		return
	}
	m.stageWindow.ObserveIndicator(name)
}

// SnapshotStages exposes the perf window for the HTTP API.
func (m *Metrics) SnapshotStages() StageSnapshot {
	if m == nil || m.stageWindow == nil {
		return StageSnapshot{}
	}
	return m.stageWindow.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
