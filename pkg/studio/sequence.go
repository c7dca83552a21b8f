package studio

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/vango-go/vinyasa/pkg/core"
	"github.com/vango-go/vinyasa/pkg/core/types"
)

// SequenceGenerator turns practitioner preferences into a therapeutic sequence.
type SequenceGenerator struct {
	backend Backend
	s       settings
}

func NewSequenceGenerator(backend Backend, opts ...Option) *SequenceGenerator {
	return &SequenceGenerator{backend: backend, s: apply(opts)}
}

var sequenceSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title":                {Type: genai.TypeString},
		"totalDurationMinutes": {Type: genai.TypeInteger},
		"poses": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"sanskritName":    {Type: genai.TypeString},
					"englishName":     {Type: genai.TypeString},
					"durationSeconds": {Type: genai.TypeInteger},
					"instructions":    {Type: genai.TypeString},
					"modification":    {Type: genai.TypeString, Description: "A safer variation for the stated injuries."},
					"focus":           {Type: genai.TypeString, Description: "The body area or therapeutic aim of the pose."},
				},
				Required:         []string{"sanskritName", "englishName", "durationSeconds", "instructions", "modification"},
				PropertyOrdering: []string{"sanskritName", "englishName", "durationSeconds", "instructions", "modification", "focus"},
			},
		},
	},
	Required:         []string{"title", "totalDurationMinutes", "poses"},
	PropertyOrdering: []string{"title", "totalDurationMinutes", "poses"},
}

// Generate asks the text model for a sequence. A failed call, an empty reply or
// a reply that does not decode into a valid sequence all wrap ErrGenerationFailed.
func (g *SequenceGenerator) Generate(ctx context.Context, prefs types.Preferences) (*types.Sequence, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText("You are an experienced yoga therapist who designs safe, therapeutic sequences.", genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    sequenceSchema,
	}
	contents := []*genai.Content{genai.NewContentFromText(sequencePrompt(prefs), genai.RoleUser)}

	resp, err := g.backend.GenerateContent(ctx, g.s.textModel, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, core.Classify("generate sequence", err))
	}
	text := strings.TrimSpace(responseText(resp))
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrGenerationFailed)
	}

	var seq types.Sequence
	if err := json.Unmarshal([]byte(text), &seq); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrGenerationFailed, err)
	}
	if err := seq.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	g.s.logger.Debug("sequence generated", "title", seq.Title, "poses", len(seq.Poses))
	return &seq, nil
}

func sequencePrompt(p types.Preferences) string {
	var b strings.Builder
	minutes := p.DurationMinutes
	if minutes <= 0 {
		minutes = 20
	}
	experience := p.Experience
	if experience == "" {
		experience = types.ExperienceBeginner
	}
	fmt.Fprintf(&b, "Create a %d minute yoga sequence for a %s practitioner.\n", minutes, experience)
	if s := strings.TrimSpace(p.Injuries); s != "" {
		fmt.Fprintf(&b, "Injuries or limitations: %s.\n", s)
	} else {
		b.WriteString("No injuries reported.\n")
	}
	if s := strings.TrimSpace(p.Goals); s != "" {
		fmt.Fprintf(&b, "Goals: %s.\n", s)
	}
	b.WriteString("Every pose needs clear instructions and a modification that protects the injured areas. ")
	b.WriteString("Pose durations should add up to the total duration.")
	return b.String()
}
