package tui

import (
	"context"
	"errors"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/vinyasa/pkg/core/types"
	"github.com/vango-go/vinyasa/pkg/live/session"
	"github.com/vango-go/vinyasa/pkg/live/stream"
)

type fakeController struct {
	mu       sync.Mutex
	state    session.State
	startErr error
	calls    []string
	deltas   []int
	jumps    []int
}

func (f *fakeController) Start(context.Context, *types.Sequence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "start")
	if f.startErr == nil {
		f.state.Status = stream.StatusConnecting
	} else {
		f.state.Status = stream.StatusErrored
	}
	return f.startErr
}

func (f *fakeController) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "stop")
	f.state.Status = stream.StatusClosed
}

func (f *fakeController) Navigate(delta int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deltas = append(f.deltas, delta)
}

func (f *fakeController) NavigateTo(index int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jumps = append(f.jumps, index)
}

func (f *fakeController) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func testSequence() *types.Sequence {
	return &types.Sequence{
		Title: "Morning Reset",
		Poses: []types.Pose{
			{SanskritName: "Tadasana", EnglishName: "Mountain", DurationSeconds: 30, Instructions: "Stand tall.", Modification: "Feet hip width."},
			{SanskritName: "Uttanasana", EnglishName: "Forward Fold", DurationSeconds: 90, Instructions: "Hinge at the hips.", Modification: "Bend the knees.", Focus: "hamstrings"},
		},
	}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

func TestStartKeyStartsSession(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(context.Background(), ctrl, testSequence())

	m, cmd := press(t, m, runes("s"))
	require.NotNil(t, cmd)
	assert.True(t, m.starting)

	// A second press while starting is ignored.
	_, again := press(t, m, runes("s"))
	assert.Nil(t, again)

	msg := cmd()
	m, _ = press(t, m, msg)
	assert.False(t, m.starting)
	assert.Empty(t, m.err)
	assert.Equal(t, stream.StatusConnecting, m.state.Status)
	assert.Equal(t, []string{"start"}, ctrl.calls)
}

func TestStartErrorIsShown(t *testing.T) {
	ctrl := &fakeController{startErr: errors.New("camera refused")}
	m := NewModel(context.Background(), ctrl, testSequence())

	m, cmd := press(t, m, runes("s"))
	m, _ = press(t, m, cmd())
	assert.Equal(t, "camera refused", m.err)
	assert.Contains(t, m.View(), "camera refused")
}

func TestNavigationKeys(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(context.Background(), ctrl, testSequence())

	_, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyRight})
	require.Nil(t, cmd())
	_, cmd = press(t, m, runes("h"))
	require.Nil(t, cmd())
	_, cmd = press(t, m, runes("2"))
	require.Nil(t, cmd())

	assert.Equal(t, []int{1, -1}, ctrl.deltas)
	assert.Equal(t, []int{1}, ctrl.jumps)
}

func TestStateMsgUpdatesView(t *testing.T) {
	m := NewModel(context.Background(), &fakeController{}, testSequence())
	m, _ = press(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})

	m, _ = press(t, m, StateMsg{PoseIndex: 1, Status: stream.StatusConnected, Speaking: true, Notice: session.NoticeGoAway})
	view := m.View()
	assert.Contains(t, view, "Morning Reset")
	assert.Contains(t, view, "Forward Fold")
	assert.Contains(t, view, "Bend the knees.")
	assert.Contains(t, view, "1m 30s")
	assert.Contains(t, view, "speaking")
	assert.Contains(t, view, "pose 2 of 2")
	assert.Contains(t, view, session.NoticeGoAway)
}

func TestQuitReturnsCommand(t *testing.T) {
	ctrl := &fakeController{}
	m := NewModel(context.Background(), ctrl, testSequence())

	_, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd, "quit should stop the session and exit")

	_, cmd = press(t, m, runes("q"))
	require.NotNil(t, cmd)
}

func TestStopKey(t *testing.T) {
	ctrl := &fakeController{state: session.State{Status: stream.StatusConnected}}
	m := NewModel(context.Background(), ctrl, testSequence())

	m, cmd := press(t, m, runes("x"))
	m, _ = press(t, m, cmd())
	assert.Equal(t, stream.StatusClosed, m.state.Status)
	assert.Equal(t, []string{"stop"}, ctrl.calls)
	assert.Contains(t, m.View(), "ended")
}

func TestAutoStart(t *testing.T) {
	m := NewModel(context.Background(), &fakeController{}, testSequence(), WithAutoStart())
	require.True(t, m.autoStart)
	require.NotNil(t, m.Init())
}

func TestBridgeWithoutProgramIsNoop(t *testing.T) {
	var b Bridge
	b.OnChange(session.State{PoseIndex: 1})
}

func TestFormatSeconds(t *testing.T) {
	tests := map[int]string{45: "45s", 60: "1m", 90: "1m 30s", 600: "10m"}
	for in, want := range tests {
		assert.Equal(t, want, formatSeconds(in))
	}
}
