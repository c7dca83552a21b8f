package types

import (
	"errors"
	"fmt"
	"strings"
)

// Experience is the practitioner's self-reported level.
type Experience string

const (
	ExperienceBeginner     Experience = "beginner"
	ExperienceIntermediate Experience = "intermediate"
	ExperienceAdvanced     Experience = "advanced"
)

// ParseExperience maps user input to an Experience, defaulting to beginner for empty input.
func ParseExperience(s string) (Experience, error) {
	switch Experience(strings.ToLower(strings.TrimSpace(s))) {
	case "", ExperienceBeginner:
		return ExperienceBeginner, nil
	case ExperienceIntermediate:
		return ExperienceIntermediate, nil
	case ExperienceAdvanced:
		return ExperienceAdvanced, nil
	default:
		return "", fmt.Errorf("unknown experience level %q", s)
	}
}

// Preferences describe what a generated sequence should address.
type Preferences struct {
	Injuries        string     `json:"injuries" yaml:"injuries"`
	Goals           string     `json:"goals" yaml:"goals"`
	DurationMinutes int        `json:"duration_minutes" yaml:"duration_minutes"`
	Experience      Experience `json:"experience" yaml:"experience"`
}

// Pose is one step of a therapeutic sequence.
type Pose struct {
	SanskritName    string `json:"sanskritName" yaml:"sanskrit_name"`
	EnglishName     string `json:"englishName" yaml:"english_name"`
	DurationSeconds int    `json:"durationSeconds" yaml:"duration_seconds"`
	Instructions    string `json:"instructions" yaml:"instructions"`
	Modification    string `json:"modification" yaml:"modification"`
	Focus           string `json:"focus,omitempty" yaml:"focus,omitempty"`

	// Generated media, filled in after the sequence exists.
	ImageURI string `json:"imageUri,omitempty" yaml:"image_uri,omitempty"`
	VideoURI string `json:"videoUri,omitempty" yaml:"video_uri,omitempty"`
}

// Validate reports the first missing or invalid field.
func (p Pose) Validate() error {
	switch {
	case strings.TrimSpace(p.EnglishName) == "":
		return errors.New("englishName is required")
	case strings.TrimSpace(p.SanskritName) == "":
		return errors.New("sanskritName is required")
	case p.DurationSeconds <= 0:
		return errors.New("durationSeconds must be > 0")
	case strings.TrimSpace(p.Modification) == "":
		return errors.New("modification is required")
	}
	return nil
}

// Sequence is an ordered list of poses. The live session treats it as read-only.
type Sequence struct {
	Title        string `json:"title" yaml:"title"`
	TotalMinutes int    `json:"totalDurationMinutes" yaml:"total_minutes"`
	Poses        []Pose `json:"poses" yaml:"poses"`
}

// Validate checks that the sequence has poses and that each one is usable.
func (s *Sequence) Validate() error {
	if s == nil {
		return errors.New("sequence is nil")
	}
	if len(s.Poses) == 0 {
		return errors.New("sequence has no poses")
	}
	for i, p := range s.Poses {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("poses[%d]: %w", i, err)
		}
	}
	return nil
}

// Pose returns the pose at index, or false when index is out of range.
func (s *Sequence) Pose(index int) (Pose, bool) {
	if s == nil || index < 0 || index >= len(s.Poses) {
		return Pose{}, false
	}
	return s.Poses[index], true
}
