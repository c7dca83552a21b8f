// Package tui renders a live guided session in the terminal and forwards the
// practitioner's keys to the session controller.
package tui

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vango-go/vinyasa/pkg/core/types"
	"github.com/vango-go/vinyasa/pkg/live/session"
	"github.com/vango-go/vinyasa/pkg/live/stream"
)

// Controller is the part of session.Controller the view drives.
type Controller interface {
	Start(ctx context.Context, seq *types.Sequence) error
	Stop()
	Navigate(delta int)
	NavigateTo(index int)
	State() session.State
}

// StateMsg carries a session snapshot into the program.
type StateMsg session.State

type startedMsg struct{ err error }

type stoppedMsg struct{}

// Bridge forwards controller state changes to a running program. Its OnChange
// goes in session.Dependencies before the program exists.
type Bridge struct {
	p atomic.Pointer[tea.Program]
}

func (b *Bridge) Attach(p *tea.Program) { b.p.Store(p) }

func (b *Bridge) OnChange(s session.State) {
	if p := b.p.Load(); p != nil {
		p.Send(StateMsg(s))
	}
}

// Model is the root bubbletea model. Controller calls run inside commands so
// the update loop never waits on the session's event loop.
type Model struct {
	ctx  context.Context
	ctrl Controller
	seq  *types.Sequence

	state    session.State
	starting bool
	err      string

	keys     keyMap
	help     help.Model
	showHelp bool
	spinner  spinner.Model

	autoStart bool
	width     int
	height    int
}

type Option func(*Model)

// WithAutoStart starts the session as soon as the program runs.
func WithAutoStart() Option {
	return func(m *Model) { m.autoStart = true }
}

func NewModel(ctx context.Context, ctrl Controller, seq *types.Sequence, opts ...Option) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = accentStyle
	m := Model{
		ctx:     ctx,
		ctrl:    ctrl,
		seq:     seq,
		state:   ctrl.State(),
		keys:    defaultKeys(),
		help:    help.New(),
		spinner: sp,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick}
	if m.autoStart {
		cmds = append(cmds, m.startCmd())
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case StateMsg:
		m.state = session.State(msg)
		return m, nil

	case startedMsg:
		m.starting = false
		m.err = ""
		if msg.err != nil {
			m.err = msg.err.Error()
		}
		m.state = m.ctrl.State()
		return m, nil

	case stoppedMsg:
		m.state = m.ctrl.State()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Sequence(m.stopCmd(), tea.Quit)

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp

	case key.Matches(msg, m.keys.Start):
		if m.starting || m.active() {
			return m, nil
		}
		m.starting = true
		m.err = ""
		return m, m.startCmd()

	case key.Matches(msg, m.keys.Stop):
		return m, m.stopCmd()

	case key.Matches(msg, m.keys.Prev):
		return m, m.navigateCmd(-1)

	case key.Matches(msg, m.keys.Next):
		return m, m.navigateCmd(1)

	case key.Matches(msg, m.keys.Jump):
		index := int(msg.Runes[0] - '1')
		ctrl := m.ctrl
		return m, func() tea.Msg {
			ctrl.NavigateTo(index)
			return nil
		}
	}
	return m, nil
}

func (m Model) active() bool {
	switch m.state.Status {
	case stream.StatusConnecting, stream.StatusConnected:
		return true
	}
	return false
}

func (m Model) startCmd() tea.Cmd {
	ctx, ctrl, seq := m.ctx, m.ctrl, m.seq
	return func() tea.Msg {
		return startedMsg{err: ctrl.Start(ctx, seq)}
	}
}

func (m Model) stopCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctrl.Stop()
		return stoppedMsg{}
	}
}

func (m Model) navigateCmd(delta int) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctrl.Navigate(delta)
		return nil
	}
}

// Run starts the program on the alternate screen and blocks until it quits or
// ctx is cancelled. The session is stopped on the way out.
func Run(ctx context.Context, ctrl Controller, bridge *Bridge, seq *types.Sequence, opts ...Option) error {
	p := tea.NewProgram(NewModel(ctx, ctrl, seq, opts...), tea.WithAltScreen(), tea.WithContext(ctx))
	bridge.Attach(p)
	_, err := p.Run()
	ctrl.Stop()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
