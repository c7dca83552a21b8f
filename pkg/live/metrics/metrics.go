package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics for live sessions. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration *prometheus.HistogramVec

	// Media metrics
	AudioChunksTotal *prometheus.CounterVec
	AudioBytesTotal  *prometheus.CounterVec
	FramesTotal      *prometheus.CounterVec

	// Model interaction metrics
	ToolCallsTotal      *prometheus.CounterVec
	InterruptionsTotal  prometheus.Counter
	DecodeFailuresTotal prometheus.Counter

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
}

// New creates a Metrics instance with every metric registered on a private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "vinyasa"
	}

	registry := prometheus.NewRegistry()

	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_sessions_active",
			Help:      "Number of active live sessions",
		},
	)

	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_sessions_total",
			Help:      "Total number of live sessions by final status",
		},
		[]string{"status"},
	)

	sessionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "live_session_duration_seconds",
			Help:      "Live session duration in seconds",
			Buckets:   []float64{5, 30, 60, 300, 600, 1200, 1800, 3600},
		},
		[]string{"model"},
	)

	audioChunksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_audio_chunks_total",
			Help:      "Audio chunks exchanged with the model",
		},
		[]string{"direction"},
	)

	audioBytesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_audio_bytes_total",
			Help:      "PCM bytes exchanged with the model",
		},
		[]string{"direction"},
	)

	framesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_frames_total",
			Help:      "Frame sampler ticks by outcome",
		},
		[]string{"outcome"},
	)

	toolCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_tool_calls_total",
			Help:      "Tool calls answered by result",
		},
		[]string{"tool", "result"},
	)

	interruptionsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_interruptions_total",
			Help:      "Model turns interrupted by the practitioner",
		},
	)

	decodeFailuresTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_decode_failures_total",
			Help:      "Inbound audio chunks dropped because they could not be decoded",
		},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of errors",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(
		sessionsActive,
		sessionsTotal,
		sessionDuration,
		audioChunksTotal,
		audioBytesTotal,
		framesTotal,
		toolCallsTotal,
		interruptionsTotal,
		decodeFailuresTotal,
		errorsTotal,
	)

	return &Metrics{
		registry:            registry,
		SessionsActive:      sessionsActive,
		SessionsTotal:       sessionsTotal,
		SessionDuration:     sessionDuration,
		AudioChunksTotal:    audioChunksTotal,
		AudioBytesTotal:     audioBytesTotal,
		FramesTotal:         framesTotal,
		ToolCallsTotal:      toolCallsTotal,
		InterruptionsTotal:  interruptionsTotal,
		DecodeFailuresTotal: decodeFailuresTotal,
		ErrorsTotal:         errorsTotal,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSessionStart records a live session starting.
func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a live session ending with its final status.
func (m *Metrics) RecordSessionEnd(model, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(status).Inc()
	m.SessionDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordAudio records one audio chunk. direction is "in" (to the model) or "out".
func (m *Metrics) RecordAudio(direction string, bytes int) {
	if m == nil {
		return
	}
	m.AudioChunksTotal.WithLabelValues(direction).Inc()
	m.AudioBytesTotal.WithLabelValues(direction).Add(float64(bytes))
}

// RecordFrame records a sampler tick outcome such as "sent" or a skip reason.
func (m *Metrics) RecordFrame(outcome string) {
	if m == nil {
		return
	}
	m.FramesTotal.WithLabelValues(outcome).Inc()
}

// RecordToolCall records one answered tool call.
func (m *Metrics) RecordToolCall(tool string, ok bool) {
	if m == nil {
		return
	}
	result := "error"
	if ok {
		result = "ok"
	}
	m.ToolCallsTotal.WithLabelValues(tool, result).Inc()
}

// RecordInterruption records a barge-in.
func (m *Metrics) RecordInterruption() {
	if m == nil {
		return
	}
	m.InterruptionsTotal.Inc()
}

// RecordDecodeFailure records a dropped inbound audio chunk.
func (m *Metrics) RecordDecodeFailure() {
	if m == nil {
		return
	}
	m.DecodeFailuresTotal.Inc()
}

// RecordError records an error.
func (m *Metrics) RecordError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
