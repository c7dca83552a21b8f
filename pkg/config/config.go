package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vango-go/vinyasa/pkg/live/capture"
	"github.com/vango-go/vinyasa/pkg/live/stream"
	"github.com/vango-go/vinyasa/pkg/live/video"
	"github.com/vango-go/vinyasa/pkg/studio"
)

type Transport string

const (
	TransportGenAI     Transport = "genai"
	TransportWebSocket Transport = "websocket"
)

const DefaultLiveModel = "gemini-2.5-flash-native-audio-preview-09-2025"

type Config struct {
	// Live session.
	LiveModel      string
	Voice          string
	Transport      Transport
	LiveURL        string
	WSPingInterval time.Duration
	WSWriteTimeout time.Duration
	Sampler        video.SamplerConfig
	Capture        capture.Config

	// Generation.
	TextModel         string
	ImageModel        string
	ImageProModel     string
	VideoModel        string
	SpeechModel       string
	VideoPollInterval time.Duration
	RequestTimeout    time.Duration

	// Operational.
	LogLevel            slog.Level
	LogFile             string
	MetricsAddr         string
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		LiveModel:      envOr("VINYASA_LIVE_MODEL", DefaultLiveModel),
		Voice:          envOr("VINYASA_VOICE", studio.DefaultVoice),
		Transport:      Transport(strings.ToLower(envOr("VINYASA_TRANSPORT", string(TransportGenAI)))),
		LiveURL:        envOr("VINYASA_LIVE_URL", stream.DefaultLiveURL),
		WSPingInterval: envDurationOr("VINYASA_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout: envDurationOr("VINYASA_WS_WRITE_TIMEOUT", 5*time.Second),
		Sampler: video.SamplerConfig{
			Interval: envDurationOr("VINYASA_FRAME_INTERVAL", video.DefaultInterval),
			Quality:  envIntOr("VINYASA_FRAME_QUALITY", video.DefaultQuality),
			MaxWidth: envIntOr("VINYASA_FRAME_MAX_WIDTH", video.DefaultMaxWidth),
		},
		Capture: capture.Config{
			Microphone: capture.MicrophoneConfig{
				SampleRate:   envIntOr("VINYASA_MIC_SAMPLE_RATE", 16000),
				PeriodFrames: envIntOr("VINYASA_MIC_PERIOD_FRAMES", 4096),
			},
			Camera: capture.CameraConfig{
				FFmpegPath:   envOr("VINYASA_FFMPEG", "ffmpeg"),
				InputFormat:  envOr("VINYASA_CAMERA_FORMAT", ""),
				Device:       envOr("VINYASA_CAMERA_DEVICE", ""),
				Width:        envIntOr("VINYASA_CAMERA_WIDTH", 640),
				Height:       envIntOr("VINYASA_CAMERA_HEIGHT", 480),
				FrameRate:    envIntOr("VINYASA_CAMERA_FPS", 30),
				StartTimeout: envDurationOr("VINYASA_CAMERA_START_TIMEOUT", 10*time.Second),
			},
		},
		TextModel:           envOr("VINYASA_TEXT_MODEL", studio.DefaultTextModel),
		ImageModel:          envOr("VINYASA_IMAGE_MODEL", studio.DefaultImageModel),
		ImageProModel:       envOr("VINYASA_IMAGE_PRO_MODEL", studio.DefaultImageProModel),
		VideoModel:          envOr("VINYASA_VIDEO_MODEL", studio.DefaultVideoModel),
		SpeechModel:         envOr("VINYASA_SPEECH_MODEL", studio.DefaultSpeechModel),
		VideoPollInterval:   envDurationOr("VINYASA_VIDEO_POLL_INTERVAL", studio.DefaultPollInterval),
		RequestTimeout:      envDurationOr("VINYASA_REQUEST_TIMEOUT", 2*time.Minute),
		LogFile:             envOr("VINYASA_LOG_FILE", ""),
		MetricsAddr:         envOr("VINYASA_METRICS_ADDR", ""),
		ShutdownGracePeriod: envDurationOr("VINYASA_SHUTDOWN_GRACE_PERIOD", 5*time.Second),
	}

	level, err := parseLevel(envOr("VINYASA_LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel = level

	switch cfg.Transport {
	case TransportGenAI, TransportWebSocket:
	default:
		return Config{}, fmt.Errorf("VINYASA_TRANSPORT must be one of genai|websocket")
	}

	if cfg.Sampler.Interval <= 0 {
		return Config{}, fmt.Errorf("VINYASA_FRAME_INTERVAL must be > 0")
	}
	if cfg.Sampler.Quality < 1 || cfg.Sampler.Quality > 100 {
		return Config{}, fmt.Errorf("VINYASA_FRAME_QUALITY must be between 1 and 100")
	}
	if cfg.Sampler.MaxWidth <= 0 {
		return Config{}, fmt.Errorf("VINYASA_FRAME_MAX_WIDTH must be > 0")
	}
	if cfg.Capture.Microphone.SampleRate <= 0 {
		return Config{}, fmt.Errorf("VINYASA_MIC_SAMPLE_RATE must be > 0")
	}
	if cfg.Capture.Microphone.PeriodFrames <= 0 {
		return Config{}, fmt.Errorf("VINYASA_MIC_PERIOD_FRAMES must be > 0")
	}
	if cfg.Capture.Camera.Width <= 0 || cfg.Capture.Camera.Height <= 0 {
		return Config{}, fmt.Errorf("VINYASA_CAMERA_WIDTH and VINYASA_CAMERA_HEIGHT must be > 0")
	}
	if cfg.Capture.Camera.FrameRate <= 0 {
		return Config{}, fmt.Errorf("VINYASA_CAMERA_FPS must be > 0")
	}
	if cfg.Capture.Camera.StartTimeout <= 0 {
		return Config{}, fmt.Errorf("VINYASA_CAMERA_START_TIMEOUT must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("VINYASA_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("VINYASA_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.VideoPollInterval <= 0 {
		return Config{}, fmt.Errorf("VINYASA_VIDEO_POLL_INTERVAL must be > 0")
	}
	if cfg.RequestTimeout <= 0 {
		return Config{}, fmt.Errorf("VINYASA_REQUEST_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VINYASA_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.Transport == TransportWebSocket && !strings.HasPrefix(cfg.LiveURL, "ws") {
		return Config{}, fmt.Errorf("VINYASA_LIVE_URL must be a ws:// or wss:// URL")
	}

	return cfg, nil
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("VINYASA_LOG_LEVEL must be one of debug|info|warn|error")
	}
	return level, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
