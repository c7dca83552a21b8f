package session

import (
	"fmt"
	"strings"

	"github.com/vango-go/vinyasa/pkg/core/types"
	"github.com/vango-go/vinyasa/pkg/live/tools"
)

// BuildInstruction renders the directive sent in the session setup. Every pose is
// listed as "index. english name (modification)" in sequence order.
func BuildInstruction(seq *types.Sequence) string {
	var b strings.Builder
	b.WriteString("You are a calm, attentive yoga therapist guiding a live practice")
	if seq != nil && strings.TrimSpace(seq.Title) != "" {
		fmt.Fprintf(&b, " called %q", strings.TrimSpace(seq.Title))
	}
	b.WriteString(".\n")
	b.WriteString("You can hear the practitioner and you receive a camera frame about twice a second. ")
	b.WriteString("Give short spoken cues about breath and alignment, watch for strain, and offer the modification whenever their form looks unsafe.\n\n")

	b.WriteString("The sequence, in order:\n")
	if seq != nil {
		for i, p := range seq.Poses {
			fmt.Fprintf(&b, "%d. %s (%s)\n", i, p.EnglishName, p.Modification)
		}
	}

	b.WriteString("\nThe practitioner's screen shows one pose at a time. ")
	fmt.Fprintf(&b, "When you move them to another pose, call %s with that pose's index so the screen follows you. ", tools.SetPoseIndex)
	b.WriteString("Only use indexes from the list above.")
	return b.String()
}
