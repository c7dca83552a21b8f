package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vango-go/vinyasa/pkg/live/stream"
)

const (
	colorPrimary   = "#7D56F4"
	colorSuccess   = "#10B981"
	colorWarning   = "#F59E0B"
	colorError     = "#EF4444"
	colorMuted     = "#9CA3AF"
	colorLightBlue = "#60A5FA"

	defaultWidth = 72
)

var (
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(colorPrimary))
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorPrimary))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(colorMuted))
	labelStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorLightBlue))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(colorWarning)).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(colorError))
	speakStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(colorSuccess)).Bold(true)
	currentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(colorPrimary)).Bold(true)
)

func (m Model) View() string {
	width := m.width
	if width <= 0 {
		width = defaultWidth
	}

	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n\n")
	b.WriteString(m.poseCard(width))
	b.WriteString("\n\n")
	b.WriteString(m.progress())
	b.WriteString("\n")

	if m.state.Notice != "" {
		b.WriteString("\n" + noticeStyle.Render(m.state.Notice) + "\n")
	}
	if m.err != "" {
		b.WriteString("\n" + errorStyle.Render(m.err) + "\n")
	}
	b.WriteString("\n" + m.help.View(m.keys))
	return b.String()
}

func (m Model) header() string {
	title := "Live session"
	if m.seq != nil && m.seq.Title != "" {
		title = m.seq.Title
	}
	parts := []string{titleStyle.Render(title), m.statusBadge()}
	if m.state.Speaking {
		parts = append(parts, speakStyle.Render("● speaking"))
	}
	return strings.Join(parts, "  ")
}

func (m Model) statusBadge() string {
	if m.starting && m.state.Status == stream.StatusIdle {
		return m.spinner.View() + " starting"
	}
	switch m.state.Status {
	case stream.StatusConnecting:
		return m.spinner.View() + " connecting"
	case stream.StatusConnected:
		return speakStyle.Render("connected")
	case stream.StatusErrored:
		return errorStyle.Render("stopped with an error")
	case stream.StatusClosed:
		return mutedStyle.Render("ended")
	default:
		return mutedStyle.Render("press s to start")
	}
}

func (m Model) poseCard(width int) string {
	pose, ok := m.seq.Pose(m.state.PoseIndex)
	if !ok {
		return mutedStyle.Render("No pose selected.")
	}
	card := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(colorPrimary)).
		Padding(0, 1).
		Width(max(20, width-4))

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", currentStyle.Render(pose.EnglishName), mutedStyle.Render("("+pose.SanskritName+")"))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Hold"), formatSeconds(pose.DurationSeconds))
	if pose.Focus != "" {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Focus"), pose.Focus)
	}
	fmt.Fprintf(&b, "\n%s\n", pose.Instructions)
	fmt.Fprintf(&b, "\n%s %s", labelStyle.Render("Modification"), pose.Modification)
	return card.Render(b.String())
}

func (m Model) progress() string {
	if m.seq == nil {
		return ""
	}
	marks := make([]string, len(m.seq.Poses))
	for i := range m.seq.Poses {
		switch {
		case i == m.state.PoseIndex:
			marks[i] = currentStyle.Render("●")
		case i < m.state.PoseIndex:
			marks[i] = accentStyle.Render("●")
		default:
			marks[i] = mutedStyle.Render("○")
		}
	}
	return fmt.Sprintf("%s  %s", strings.Join(marks, " "),
		mutedStyle.Render(fmt.Sprintf("pose %d of %d", m.state.PoseIndex+1, len(m.seq.Poses))))
}

func formatSeconds(s int) string {
	if s < 60 {
		return fmt.Sprintf("%ds", s)
	}
	if s%60 == 0 {
		return fmt.Sprintf("%dm", s/60)
	}
	return fmt.Sprintf("%dm %ds", s/60, s%60)
}
