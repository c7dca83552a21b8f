// Package studio wraps the generative calls that prepare a practice: the
// sequence itself and per-pose media and feedback.
package studio

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/genai"
)

const (
	DefaultTextModel     = "gemini-2.5-flash"
	DefaultImageModel    = "gemini-2.5-flash-image"
	DefaultImageProModel = "gemini-3-pro-image-preview"
	DefaultVideoModel    = "veo-3.1-fast-generate-preview"
	DefaultSpeechModel   = "gemini-2.5-flash-preview-tts"
	DefaultVoice         = "Kore"
	DefaultPollInterval  = 10 * time.Second
)

// ErrGenerationFailed marks a sequence the upstream model could not produce in a usable form.
var ErrGenerationFailed = errors.New("sequence generation failed")

// Backend is the subset of the Gen AI client studio calls.
type Backend interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
	GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation, cfg *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error)
	DownloadVideo(ctx context.Context, video *genai.Video) ([]byte, error)
}

type clientBackend struct {
	models     *genai.Models
	operations *genai.Operations
	files      *genai.Files
}

// NewBackend adapts a Gen AI client.
func NewBackend(client *genai.Client) Backend {
	return &clientBackend{models: client.Models, operations: client.Operations, files: client.Files}
}

func (b *clientBackend) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return b.models.GenerateContent(ctx, model, contents, cfg)
}

func (b *clientBackend) GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	return b.models.GenerateVideos(ctx, model, prompt, image, cfg)
}

func (b *clientBackend) GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation, cfg *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error) {
	return b.operations.GetVideosOperation(ctx, op, cfg)
}

func (b *clientBackend) DownloadVideo(ctx context.Context, video *genai.Video) ([]byte, error) {
	return b.files.Download(ctx, genai.NewDownloadURIFromVideo(video), nil)
}

type settings struct {
	textModel     string
	imageModel    string
	imageProModel string
	videoModel    string
	speechModel   string
	voice         string
	pollInterval  time.Duration
	logger        *slog.Logger
}

func defaultSettings() settings {
	return settings{
		textModel:     DefaultTextModel,
		imageModel:    DefaultImageModel,
		imageProModel: DefaultImageProModel,
		videoModel:    DefaultVideoModel,
		speechModel:   DefaultSpeechModel,
		voice:         DefaultVoice,
		pollInterval:  DefaultPollInterval,
		logger:        slog.Default(),
	}
}

// Option configures a generator.
type Option func(*settings)

// WithTextModel sets the model used for sequences and form analysis.
func WithTextModel(model string) Option {
	return func(s *settings) {
		if model != "" {
			s.textModel = model
		}
	}
}

// WithImageModels sets the standard and high-quality image models.
func WithImageModels(standard, high string) Option {
	return func(s *settings) {
		if standard != "" {
			s.imageModel = standard
		}
		if high != "" {
			s.imageProModel = high
		}
	}
}

// WithVideoModel sets the video model.
func WithVideoModel(model string) Option {
	return func(s *settings) {
		if model != "" {
			s.videoModel = model
		}
	}
}

// WithSpeech sets the text-to-speech model and prebuilt voice.
func WithSpeech(model, voice string) Option {
	return func(s *settings) {
		if model != "" {
			s.speechModel = model
		}
		if voice != "" {
			s.voice = voice
		}
	}
}

// WithPollInterval sets how often a pending video operation is checked.
func WithPollInterval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func apply(opts []Option) settings {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
