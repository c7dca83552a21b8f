package studio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/vango-go/vinyasa/pkg/core"
)

// Quality selects the image model.
type Quality string

const (
	QualityStandard Quality = "standard"
	QualityHigh     Quality = "high"
)

// ParseQuality maps user input to a Quality, defaulting to standard for empty input.
func ParseQuality(s string) (Quality, error) {
	switch Quality(strings.ToLower(strings.TrimSpace(s))) {
	case "", QualityStandard:
		return QualityStandard, nil
	case QualityHigh:
		return QualityHigh, nil
	default:
		return "", fmt.Errorf("unknown image quality %q", s)
	}
}

var aspectRatios = map[string]bool{"16:9": true, "9:16": true}

var ErrAspectRatio = errors.New("aspect ratio must be 16:9 or 9:16")

// Image is generated image bytes.
type Image struct {
	Data     []byte
	MIMEType string
}

// Video is a generated clip. URI is set when the service hosts the file; Data
// when it returned the bytes inline.
type Video struct {
	URI      string
	Data     []byte
	MIMEType string
}

// MediaGenerator produces per-pose media and form feedback. Every call is a
// single request and may be retried by the caller.
type MediaGenerator struct {
	backend Backend
	s       settings
}

func NewMediaGenerator(backend Backend, opts ...Option) *MediaGenerator {
	return &MediaGenerator{backend: backend, s: apply(opts)}
}

// GenerateImage renders a reference illustration of a pose. It returns nil
// when the model answered without an image.
func (g *MediaGenerator) GenerateImage(ctx context.Context, name, modification string, quality Quality) (*Image, error) {
	model := g.s.imageModel
	imageCfg := &genai.ImageConfig{AspectRatio: "1:1"}
	if quality == QualityHigh {
		model = g.s.imageProModel
		imageCfg.ImageSize = "2K"
	}
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityImage)},
		ImageConfig:        imageCfg,
	}
	prompt := fmt.Sprintf("A clean, instructional illustration of a person on a mat in the yoga pose %s, shown with this modification: %s. Plain light background, full body visible.", name, modification)

	resp, err := g.backend.GenerateContent(ctx, model, []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, cfg)
	if err != nil {
		return nil, core.Classify("generate image", err)
	}
	blob := inlineData(resp, "image/")
	if blob == nil {
		g.s.logger.Warn("image generation returned no image", "pose", name, "model", model)
		return nil, nil
	}
	return &Image{Data: blob.Data, MIMEType: blob.MIMEType}, nil
}

// GenerateVideo starts a video generation and polls it until the operation
// finishes or ctx ends. It returns nil when the operation produced no clip.
func (g *MediaGenerator) GenerateVideo(ctx context.Context, name, modification, aspectRatio string) (*Video, error) {
	if aspectRatio == "" {
		aspectRatio = "16:9"
	}
	if !aspectRatios[aspectRatio] {
		return nil, fmt.Errorf("%w: %q", ErrAspectRatio, aspectRatio)
	}
	cfg := &genai.GenerateVideosConfig{NumberOfVideos: 1, AspectRatio: aspectRatio}
	prompt := fmt.Sprintf("A calm instructor slowly demonstrates the yoga pose %s using this modification: %s. Steady camera, full body in frame, soft natural light.", name, modification)

	op, err := g.backend.GenerateVideos(ctx, g.s.videoModel, prompt, nil, cfg)
	if err != nil {
		return nil, core.Classify("generate video", err)
	}
	if op == nil {
		return nil, core.Classify("generate video", errors.New("empty operation"))
	}
	logger := g.s.logger.With("pose", name, "operation", op.Name)
	logger.Info("video generation started")

	timer := time.NewTimer(g.s.pollInterval)
	defer timer.Stop()
	for !op.Done {
		select {
		case <-ctx.Done():
			return nil, core.Classify("generate video", ctx.Err())
		case <-timer.C:
		}
		next, err := g.backend.GetVideosOperation(ctx, op, nil)
		if err != nil {
			return nil, core.Classify("poll video", err)
		}
		if next == nil {
			return nil, core.Classify("poll video", errors.New("empty operation"))
		}
		op = next
		logger.Debug("video operation polled", "done", op.Done)
		timer.Reset(g.s.pollInterval)
	}

	if len(op.Error) > 0 {
		return nil, core.Classify("generate video", errors.New(operationError(op.Error)))
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 || op.Response.GeneratedVideos[0].Video == nil {
		filtered := int32(0)
		if op.Response != nil {
			filtered = op.Response.RAIMediaFilteredCount
		}
		logger.Warn("video generation returned no clip", "filtered", filtered)
		return nil, nil
	}
	v := op.Response.GeneratedVideos[0].Video
	return &Video{URI: v.URI, Data: v.VideoBytes, MIMEType: v.MIMEType}, nil
}

// Fetch fills in v.Data for a clip the service only returned by URI.
func (g *MediaGenerator) Fetch(ctx context.Context, v *Video) error {
	if v == nil || len(v.Data) > 0 {
		return nil
	}
	if v.URI == "" {
		return errors.New("video has neither data nor uri")
	}
	data, err := g.backend.DownloadVideo(ctx, &genai.Video{URI: v.URI, MIMEType: v.MIMEType})
	if err != nil {
		return core.Classify("download video", err)
	}
	v.Data = data
	return nil
}

// GenerateAudio speaks text with the configured voice. The result is 16-bit
// little-endian mono PCM at 24 kHz, or nil when no audio came back.
func (g *MediaGenerator) GenerateAudio(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("text is empty")
	}
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityAudio)},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.s.voice},
			},
		},
	}
	resp, err := g.backend.GenerateContent(ctx, g.s.speechModel, []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, cfg)
	if err != nil {
		return nil, core.Classify("generate audio", err)
	}
	blob := inlineData(resp, "audio/")
	if blob == nil {
		return nil, nil
	}
	return blob.Data, nil
}

// AnalyzeForm compares a still of the practitioner with the intended pose and
// returns short spoken-style feedback.
func (g *MediaGenerator) AnalyzeForm(ctx context.Context, image []byte, name, instructions, modification string) (string, error) {
	if len(image) == 0 {
		return "", errors.New("image is empty")
	}
	prompt := fmt.Sprintf("This photo shows a practitioner attempting %s.\nInstructions: %s\nModification for their injuries: %s\n"+
		"In two or three sentences, say what looks good, the single most important correction, and whether they should switch to the modification.",
		name, instructions, modification)
	parts := []*genai.Part{
		genai.NewPartFromBytes(image, "image/jpeg"),
		genai.NewPartFromText(prompt),
	}
	resp, err := g.backend.GenerateContent(ctx, g.s.textModel, []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, nil)
	if err != nil {
		return "", core.Classify("analyze form", err)
	}
	return strings.TrimSpace(responseText(resp)), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	return resp.Text()
}

func inlineData(resp *genai.GenerateContentResponse, mimePrefix string) *genai.Blob {
	if resp == nil {
		return nil
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 &&
				strings.HasPrefix(part.InlineData.MIMEType, mimePrefix) {
				return part.InlineData
			}
		}
	}
	return nil
}

func operationError(m map[string]any) string {
	if msg, ok := m["message"].(string); ok && msg != "" {
		return msg
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return "video operation failed: " + strings.Join(parts, " ")
}
