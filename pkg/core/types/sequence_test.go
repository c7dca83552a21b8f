package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func validPose(name string) Pose {
	return Pose{
		SanskritName:    "Tadasana",
		EnglishName:     name,
		DurationSeconds: 30,
		Instructions:    "Stand tall.",
		Modification:    "Use a wall for balance.",
	}
}

func TestSequenceValidate(t *testing.T) {
	tests := []struct {
		name    string
		seq     *Sequence
		wantErr string
	}{
		{name: "nil", seq: nil, wantErr: "nil"},
		{name: "empty", seq: &Sequence{Title: "x"}, wantErr: "no poses"},
		{
			name:    "missing modification",
			seq:     &Sequence{Poses: []Pose{{SanskritName: "a", EnglishName: "b", DurationSeconds: 10}}},
			wantErr: "poses[0]: modification is required",
		},
		{
			name:    "zero duration",
			seq:     &Sequence{Poses: []Pose{validPose("Mountain"), {SanskritName: "a", EnglishName: "b", Modification: "m"}}},
			wantErr: "poses[1]: durationSeconds",
		},
		{name: "ok", seq: &Sequence{Poses: []Pose{validPose("Mountain"), validPose("Tree")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.seq.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err=%v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSequencePoseBounds(t *testing.T) {
	seq := &Sequence{Poses: []Pose{validPose("Mountain"), validPose("Tree")}}
	if _, ok := seq.Pose(-1); ok {
		t.Fatalf("expected -1 to be out of range")
	}
	if _, ok := seq.Pose(2); ok {
		t.Fatalf("expected 2 to be out of range")
	}
	p, ok := seq.Pose(1)
	if !ok || p.EnglishName != "Tree" {
		t.Fatalf("Pose(1)=%+v ok=%v", p, ok)
	}
}

func TestSequenceJSONFieldNames(t *testing.T) {
	var seq Sequence
	raw := `{"title":"Back care","totalDurationMinutes":15,"poses":[{"sanskritName":"Balasana","englishName":"Child's Pose","durationSeconds":60,"instructions":"Rest.","modification":"Knees wide."}]}`
	if err := json.Unmarshal([]byte(raw), &seq); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if seq.TotalMinutes != 15 || len(seq.Poses) != 1 || seq.Poses[0].Modification != "Knees wide." {
		t.Fatalf("unexpected decode: %+v", seq)
	}
	if err := seq.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestParseExperience(t *testing.T) {
	for in, want := range map[string]Experience{
		"":              ExperienceBeginner,
		"Beginner":      ExperienceBeginner,
		" intermediate": ExperienceIntermediate,
		"ADVANCED":      ExperienceAdvanced,
	} {
		got, err := ParseExperience(in)
		if err != nil || got != want {
			t.Fatalf("ParseExperience(%q)=%q,%v want %q", in, got, err, want)
		}
	}
	if _, err := ParseExperience("guru"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
