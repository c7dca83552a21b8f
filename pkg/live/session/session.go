// Package session runs one guided live session: it owns the capture devices,
// both audio contexts, the frame sampler and the streaming client, and funnels
// every callback through a single ordered event loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/vinyasa/pkg/core/types"
	"github.com/vango-go/vinyasa/pkg/live/audio"
	"github.com/vango-go/vinyasa/pkg/live/capture"
	"github.com/vango-go/vinyasa/pkg/live/metrics"
	"github.com/vango-go/vinyasa/pkg/live/sessions"
	"github.com/vango-go/vinyasa/pkg/live/stream"
	"github.com/vango-go/vinyasa/pkg/live/video"
)

const (
	NoticePermission = "Camera and microphone access was denied."
	NoticeDevice     = "No camera or microphone was found."
	NoticeConnection = "Connection lost. Start the session again."
	NoticeGoAway     = "The session will end shortly."
)

var (
	ErrRunning  = errors.New("session: already running")
	ErrStopped  = errors.New("session: stopped before it started")
	ErrSequence = errors.New("session: invalid sequence")
)

// Status mirrors the streaming client state.
type Status = stream.Status

// State is the snapshot the presentation layer renders.
type State struct {
	SessionID string
	PoseIndex int
	Status    Status
	Speaking  bool
	NextStart time.Duration
	Notice    string
}

// Devices is the capture adapter.
type Devices interface {
	Acquire(ctx context.Context) (capture.Tracks, error)
	Bind(surface *video.Surface)
	Release()
}

// InputContext is the capture-side audio graph.
type InputContext interface {
	Connect(fn func(block []float32))
	Disconnect()
	Resume() error
	Close() error
}

// OutputContext is the playback device and its clock.
type OutputContext interface {
	audio.Output
	Resume() error
	Close() error
}

type Config struct {
	Model   string
	Voice   string
	Sampler video.SamplerConfig
}

type Dependencies struct {
	Devices Devices
	Dialer  stream.Dialer

	// NewInputContext defaults to a 16 kHz InputContext re-blocking into 4096-sample blocks.
	NewInputContext func(src audio.Source) (InputContext, error)
	// NewOutputContext defaults to a 24 kHz Speaker. ended must be called once per finished unit.
	NewOutputContext func(ended func(id uint64)) (OutputContext, error)

	Config   Config
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Tracker  *sessions.Tracker
	OnChange func(State)
	Now      func() time.Time
}

// Controller drives at most one live session at a time.
type Controller struct {
	devices   Devices
	dialer    stream.Dialer
	newInput  func(src audio.Source) (InputContext, error)
	newOutput func(ended func(id uint64)) (OutputContext, error)
	cfg       Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracker   *sessions.Tracker
	onChange  func(State)
	now       func() time.Time

	surface *video.Surface

	mu    sync.Mutex
	state State
	seq   *types.Sequence
	run   *run
}

func New(deps Dependencies) (*Controller, error) {
	if deps.Devices == nil {
		return nil, fmt.Errorf("devices are required")
	}
	if deps.Dialer == nil {
		return nil, fmt.Errorf("dialer is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.NewInputContext == nil {
		deps.NewInputContext = func(src audio.Source) (InputContext, error) {
			return audio.NewInputContext(src, audio.BlockSize), nil
		}
	}
	if deps.NewOutputContext == nil {
		deps.NewOutputContext = func(ended func(id uint64)) (OutputContext, error) {
			return audio.OpenSpeaker(audio.OutputSampleRate, ended)
		}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	c := &Controller{
		devices:   deps.Devices,
		dialer:    deps.Dialer,
		newInput:  deps.NewInputContext,
		newOutput: deps.NewOutputContext,
		cfg:       deps.Config,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		tracker:   deps.Tracker,
		onChange:  deps.OnChange,
		now:       deps.Now,
		surface:   video.NewSurface(),
	}
	c.devices.Bind(c.surface)
	return c, nil
}

// Surface is the mirror view the camera renders into and the sampler reads from.
func (c *Controller) Surface() *video.Surface { return c.surface }

// State returns a snapshot of the session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Sequence returns the sequence of the current or last session.
func (c *Controller) Sequence() *types.Sequence {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Start acquires devices, opens both audio contexts and begins connecting in the
// background. It returns once the session is Connecting, or with the capture
// error that made it Errored.
func (c *Controller) Start(ctx context.Context, seq *types.Sequence) error {
	if seq == nil {
		return fmt.Errorf("%w: nil sequence", ErrSequence)
	}
	if err := seq.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrSequence, err)
	}

	id := uuid.NewString()
	c.mu.Lock()
	if c.run != nil && !c.run.finished() {
		c.mu.Unlock()
		return ErrRunning
	}
	unregister, err := c.tracker.Register(id, sessions.Handle{
		Cancel: c.Stop,
		Notify: c.Notify,
	})
	if err != nil {
		c.mu.Unlock()
		return err
	}
	r := newRun(c, id, seq, unregister)
	c.run = r
	index := 0
	if c.seq == seq {
		index = c.state.PoseIndex
	}
	c.seq = seq
	c.state = State{SessionID: id, PoseIndex: index, Status: stream.StatusIdle}
	c.mu.Unlock()

	go r.loop()
	return r.start(ctx)
}

// Stop ends the session from any state and waits for teardown. It is safe to call
// repeatedly and before Start has returned, but not from OnChange.
func (c *Controller) Stop() {
	c.mu.Lock()
	r := c.run
	c.mu.Unlock()
	if r == nil {
		return
	}
	r.stop()
}

// Navigate moves the pose index by delta, clamped to the sequence.
func (c *Controller) Navigate(delta int) { c.navigate(event{kind: evNavigate, index: delta, relative: true}) }

// NavigateTo jumps to index. Out-of-range indexes are ignored.
func (c *Controller) NavigateTo(index int) { c.navigate(event{kind: evNavigate, index: index}) }

func (c *Controller) navigate(ev event) {
	c.mu.Lock()
	r := c.run
	c.mu.Unlock()
	if r != nil && r.events.push(ev) {
		return
	}
	// No loop is running; the controller is the only writer.
	c.update(func(*State) { c.applyNavigate(ev) })
}

// Notify shows a notice without changing the session status.
func (c *Controller) Notify(notice string) {
	c.mu.Lock()
	r := c.run
	c.mu.Unlock()
	if r != nil && r.events.push(event{kind: evNotice, notice: notice}) {
		return
	}
	c.update(func(s *State) { s.Notice = notice })
}

// applyNavigate must be called with c.mu held.
func (c *Controller) applyNavigate(ev event) {
	if c.seq == nil || len(c.seq.Poses) == 0 {
		return
	}
	target := ev.index
	if ev.relative {
		target = max(0, min(c.state.PoseIndex+ev.index, len(c.seq.Poses)-1))
	} else if target < 0 || target >= len(c.seq.Poses) {
		return
	}
	c.state.PoseIndex = target
}

func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	before := c.state
	fn(&c.state)
	after := c.state
	c.mu.Unlock()
	if after != before && c.onChange != nil {
		c.onChange(after)
	}
}

func noticeFor(err error) string {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return NoticePermission
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return NoticeDevice
	default:
		return NoticeConnection
	}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return "device_unavailable"
	default:
		return "connection"
	}
}
