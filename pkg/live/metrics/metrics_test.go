package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_SessionLifecycle(t *testing.T) {
	m := New("")
	m.RecordSessionStart()
	if got := testutil.ToFloat64(m.SessionsActive); got != 1 {
		t.Fatalf("active=%v, want 1", got)
	}
	m.RecordSessionEnd("gemini-live", "closed", 90*time.Second)
	if got := testutil.ToFloat64(m.SessionsActive); got != 0 {
		t.Fatalf("active=%v, want 0", got)
	}
	if got := testutil.ToFloat64(m.SessionsTotal.WithLabelValues("closed")); got != 1 {
		t.Fatalf("sessions_total{closed}=%v, want 1", got)
	}
}

func TestMetrics_MediaAndTools(t *testing.T) {
	m := New("test")
	m.RecordAudio("in", 8192)
	m.RecordAudio("in", 8192)
	m.RecordAudio("out", 100)
	m.RecordFrame("sent")
	m.RecordFrame("compression_in_flight")
	m.RecordToolCall("setPoseIndex", true)
	m.RecordToolCall("setPoseIndex", false)
	m.RecordInterruption()
	m.RecordDecodeFailure()
	m.RecordError("connection")

	if got := testutil.ToFloat64(m.AudioChunksTotal.WithLabelValues("in")); got != 2 {
		t.Fatalf("chunks in=%v, want 2", got)
	}
	if got := testutil.ToFloat64(m.AudioBytesTotal.WithLabelValues("in")); got != 16384 {
		t.Fatalf("bytes in=%v, want 16384", got)
	}
	if got := testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("setPoseIndex", "error")); got != 1 {
		t.Fatalf("tool errors=%v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DecodeFailuresTotal); got != 1 {
		t.Fatalf("decode failures=%v, want 1", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordSessionStart()
	m.RecordAudio("in", 1)
	m.RecordFrame("sent")
	m.RecordToolCall("x", true)
	m.RecordInterruption()
	m.RecordDecodeFailure()
	m.RecordError("x")
	m.RecordSessionEnd("m", "closed", time.Second)
}

func TestMetrics_Handler(t *testing.T) {
	m := New("vinyasa")
	m.RecordFrame("sent")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `vinyasa_live_frames_total{outcome="sent"} 1`) {
		t.Fatalf("metrics output missing frame counter:\n%s", body)
	}
}
