package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

var vinyasaEnvKeys = []string{
	"VINYASA_LIVE_MODEL",
	"VINYASA_VOICE",
	"VINYASA_TRANSPORT",
	"VINYASA_LIVE_URL",
	"VINYASA_WS_PING_INTERVAL",
	"VINYASA_WS_WRITE_TIMEOUT",
	"VINYASA_FRAME_INTERVAL",
	"VINYASA_FRAME_QUALITY",
	"VINYASA_FRAME_MAX_WIDTH",
	"VINYASA_MIC_SAMPLE_RATE",
	"VINYASA_MIC_PERIOD_FRAMES",
	"VINYASA_FFMPEG",
	"VINYASA_CAMERA_FORMAT",
	"VINYASA_CAMERA_DEVICE",
	"VINYASA_CAMERA_WIDTH",
	"VINYASA_CAMERA_HEIGHT",
	"VINYASA_CAMERA_FPS",
	"VINYASA_CAMERA_START_TIMEOUT",
	"VINYASA_TEXT_MODEL",
	"VINYASA_IMAGE_MODEL",
	"VINYASA_IMAGE_PRO_MODEL",
	"VINYASA_VIDEO_MODEL",
	"VINYASA_SPEECH_MODEL",
	"VINYASA_VIDEO_POLL_INTERVAL",
	"VINYASA_REQUEST_TIMEOUT",
	"VINYASA_LOG_LEVEL",
	"VINYASA_LOG_FILE",
	"VINYASA_METRICS_ADDR",
	"VINYASA_SHUTDOWN_GRACE_PERIOD",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range vinyasaEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.LiveModel != DefaultLiveModel {
		t.Fatalf("LiveModel = %q, want %q", cfg.LiveModel, DefaultLiveModel)
	}
	if cfg.Transport != TransportGenAI {
		t.Fatalf("Transport = %q, want %q", cfg.Transport, TransportGenAI)
	}
	if cfg.Sampler.Interval != 500*time.Millisecond {
		t.Fatalf("Sampler.Interval = %v, want 500ms", cfg.Sampler.Interval)
	}
	if cfg.Capture.Microphone.SampleRate != 16000 {
		t.Fatalf("Microphone.SampleRate = %d, want 16000", cfg.Capture.Microphone.SampleRate)
	}
	if cfg.Capture.Microphone.PeriodFrames != 4096 {
		t.Fatalf("Microphone.PeriodFrames = %d, want 4096", cfg.Capture.Microphone.PeriodFrames)
	}
	if cfg.Capture.Camera.FFmpegPath != "ffmpeg" {
		t.Fatalf("Camera.FFmpegPath = %q, want ffmpeg", cfg.Capture.Camera.FFmpegPath)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v, want info", cfg.LogLevel)
	}
	if cfg.MetricsAddr != "" {
		t.Fatalf("MetricsAddr = %q, want disabled", cfg.MetricsAddr)
	}
	if cfg.VideoPollInterval != 10*time.Second {
		t.Fatalf("VideoPollInterval = %v, want 10s", cfg.VideoPollInterval)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("VINYASA_TRANSPORT", "WebSocket")
	t.Setenv("VINYASA_LIVE_URL", "ws://127.0.0.1:9000/live")
	t.Setenv("VINYASA_VOICE", "Puck")
	t.Setenv("VINYASA_FRAME_INTERVAL", "250ms")
	t.Setenv("VINYASA_CAMERA_DEVICE", "/dev/video2")
	t.Setenv("VINYASA_LOG_LEVEL", "DEBUG")
	t.Setenv("VINYASA_METRICS_ADDR", ":9090")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Transport != TransportWebSocket {
		t.Fatalf("Transport = %q, want websocket", cfg.Transport)
	}
	if cfg.Voice != "Puck" {
		t.Fatalf("Voice = %q, want Puck", cfg.Voice)
	}
	if cfg.Sampler.Interval != 250*time.Millisecond {
		t.Fatalf("Sampler.Interval = %v, want 250ms", cfg.Sampler.Interval)
	}
	if cfg.Capture.Camera.Device != "/dev/video2" {
		t.Fatalf("Camera.Device = %q", cfg.Capture.Camera.Device)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v, want debug", cfg.LogLevel)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Fatalf("MetricsAddr = %q", cfg.MetricsAddr)
	}
}

func TestLoadFromEnv_InvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("VINYASA_FRAME_INTERVAL", "soon")
	t.Setenv("VINYASA_CAMERA_FPS", "thirty")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Sampler.Interval != 500*time.Millisecond {
		t.Fatalf("Sampler.Interval = %v, want default", cfg.Sampler.Interval)
	}
	if cfg.Capture.Camera.FrameRate != 30 {
		t.Fatalf("Camera.FrameRate = %d, want default", cfg.Capture.Camera.FrameRate)
	}
}

func TestLoadFromEnv_Validation(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"VINYASA_TRANSPORT", "grpc"},
		{"VINYASA_LOG_LEVEL", "loud"},
		{"VINYASA_FRAME_INTERVAL", "0s"},
		{"VINYASA_FRAME_QUALITY", "101"},
		{"VINYASA_FRAME_MAX_WIDTH", "0"},
		{"VINYASA_MIC_SAMPLE_RATE", "-1"},
		{"VINYASA_MIC_PERIOD_FRAMES", "0"},
		{"VINYASA_CAMERA_WIDTH", "0"},
		{"VINYASA_CAMERA_FPS", "0"},
		{"VINYASA_CAMERA_START_TIMEOUT", "-1s"},
		{"VINYASA_WS_PING_INTERVAL", "0s"},
		{"VINYASA_VIDEO_POLL_INTERVAL", "0s"},
		{"VINYASA_REQUEST_TIMEOUT", "0s"},
		{"VINYASA_SHUTDOWN_GRACE_PERIOD", "0s"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := LoadFromEnv()
			if err == nil {
				t.Fatalf("LoadFromEnv() error = nil for %s=%s", tt.key, tt.value)
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Fatalf("error %q does not name %s", err, tt.key)
			}
		})
	}
}

func TestLoadFromEnv_WebSocketNeedsWSURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("VINYASA_TRANSPORT", "websocket")
	t.Setenv("VINYASA_LIVE_URL", "https://example.com/live")

	_, err := LoadFromEnv()
	if err == nil || !strings.Contains(err.Error(), "VINYASA_LIVE_URL") {
		t.Fatalf("LoadFromEnv() error = %v, want VINYASA_LIVE_URL error", err)
	}
}
