package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-go/vinyasa/pkg/core/types"
	"github.com/vango-go/vinyasa/pkg/live/audio"
	"github.com/vango-go/vinyasa/pkg/live/capture"
	"github.com/vango-go/vinyasa/pkg/live/stream"
	"github.com/vango-go/vinyasa/pkg/live/tools"
	"github.com/vango-go/vinyasa/pkg/live/video"
)

// run is one session from Start to teardown.
type run struct {
	c          *Controller
	id         string
	seq        *types.Sequence
	logger     *slog.Logger
	events     *queue
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	unregister func()
	startedAt  time.Time
	stopping   atomic.Bool

	// Owned by the event loop once evConnecting has been handled.
	scheduler *audio.Scheduler
	encoder   *audio.Encoder

	mu            sync.Mutex
	torn          bool
	devicesHeld   bool
	input         InputContext
	output        OutputContext
	client        *stream.Client
	samplerCancel context.CancelFunc
	samplerDone   chan struct{}

	teardownOnce sync.Once
}

func newRun(c *Controller, id string, seq *types.Sequence, unregister func()) *run {
	ctx, cancel := context.WithCancel(context.Background())
	return &run{
		c:          c,
		id:         id,
		seq:        seq,
		logger:     c.logger.With("session_id", id),
		events:     newQueue(),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		unregister: unregister,
		startedAt:  c.now(),
		encoder:    audio.NewEncoder(audio.InputSampleRate),
	}
}

func (r *run) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// hold stores a freshly created resource unless teardown already ran.
func (r *run) hold(fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.torn {
		return false
	}
	fn()
	return true
}

func (r *run) start(ctx context.Context) error {
	r.c.metrics.RecordSessionStart()

	acquireCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(r.ctx, cancel)()

	tracks, err := r.c.devices.Acquire(acquireCtx)
	if err != nil {
		if r.stopping.Load() {
			<-r.done
			return ErrStopped
		}
		return r.fail(err)
	}
	if !r.hold(func() { r.devicesHeld = true }) {
		r.c.devices.Release()
		return ErrStopped
	}

	in, err := r.c.newInput(tracks.Audio)
	if err != nil {
		return r.fail(fmt.Errorf("%w: input context: %v", capture.ErrDeviceUnavailable, err))
	}
	if !r.hold(func() { r.input = in }) {
		_ = in.Close()
		return ErrStopped
	}
	out, err := r.c.newOutput(r.playbackEnded)
	if err != nil {
		return r.fail(fmt.Errorf("%w: output context: %v", capture.ErrDeviceUnavailable, err))
	}
	if !r.hold(func() { r.output = out }) {
		_ = out.Close()
		return ErrStopped
	}
	if err := in.Resume(); err != nil {
		return r.fail(fmt.Errorf("%w: resume input: %v", capture.ErrDeviceUnavailable, err))
	}
	if err := out.Resume(); err != nil {
		return r.fail(fmt.Errorf("%w: resume output: %v", capture.ErrDeviceUnavailable, err))
	}

	r.scheduler = audio.NewScheduler(out, audio.OutputSampleRate, r.logger)
	client := stream.NewClient(r.c.dialer, r.logger)
	if !r.hold(func() { r.client = client }) {
		return ErrStopped
	}
	r.events.push(event{kind: evConnecting})
	go r.connect(client)
	return nil
}

// fail reports a start failure through the loop and waits for teardown.
func (r *run) fail(err error) error {
	r.events.push(event{kind: evFailed, err: err, notice: noticeFor(err)})
	<-r.done
	if r.stopping.Load() {
		return ErrStopped
	}
	return err
}

func (r *run) connect(client *stream.Client) {
	setup := stream.Setup{
		Model:       r.c.cfg.Model,
		Instruction: BuildInstruction(r.seq),
		Voice:       r.c.cfg.Voice,
		Tools:       []types.Tool{tools.Declaration()},
	}
	err := client.Connect(r.ctx, setup, stream.Callbacks{
		OnOpen:    func() { r.events.push(event{kind: evOpened}) },
		OnMessage: r.onMessage,
		OnClose:   func() { r.events.push(event{kind: evClosed}) },
		OnError:   func(err error) { r.events.push(event{kind: evErrored, err: err}) },
	})
	if err != nil && !errors.Is(err, stream.ErrClosed) {
		r.logger.Debug("live connect returned", "error", err)
	}
}

// onMessage runs on the client's reader goroutine and only enqueues.
func (r *run) onMessage(m stream.Message) {
	for range m.Dropped {
		r.c.metrics.RecordDecodeFailure()
	}
	if m.Interrupted {
		r.events.push(event{kind: evInterrupted})
	}
	if len(m.Audio) > 0 {
		r.events.push(event{kind: evAudioReceived, audio: m.Audio})
	}
	if len(m.ToolCalls) > 0 {
		r.events.push(event{kind: evToolCallReceived, calls: m.ToolCalls})
	}
	if m.GoAway {
		r.logger.Info("live server requested shutdown")
		r.events.push(event{kind: evNotice, notice: NoticeGoAway})
	}
}

// playbackEnded runs on the output device goroutine.
func (r *run) playbackEnded(id uint64) {
	r.events.push(event{kind: evPlaybackEnded, unitID: id})
}

func (r *run) loop() {
	defer close(r.done)
	for {
		ev, ok := r.events.next()
		if !ok {
			return
		}
		if r.handle(ev) {
			r.finish()
			return
		}
	}
}

// handle applies one event and reports whether the session has ended.
func (r *run) handle(ev event) bool {
	switch ev.kind {
	case evConnecting:
		r.c.update(func(s *State) { s.Status = stream.StatusConnecting })
	case evOpened:
		r.opened()
	case evAudioReceived:
		r.schedule(ev.audio)
	case evToolCallReceived:
		r.dispatch(ev.calls)
	case evInterrupted:
		if r.scheduler != nil && r.scheduler.Interrupt() > 0 {
			r.c.metrics.RecordInterruption()
		}
		r.syncPlayback()
	case evPlaybackEnded:
		if r.scheduler != nil && r.scheduler.Ended(ev.unitID) {
			r.syncPlayback()
		}
	case evNavigate:
		r.c.update(func(*State) { r.c.applyNavigate(ev) })
	case evNotice:
		r.c.update(func(s *State) { s.Notice = ev.notice })
	case evFailed:
		r.logger.Warn("live session failed to start", "error", ev.err)
		r.c.metrics.RecordError(errorType(ev.err))
		r.c.update(func(s *State) {
			s.Status = stream.StatusErrored
			s.Notice = ev.notice
			s.Speaking = false
		})
		return true
	case evErrored:
		r.logger.Error("live session error", "error", ev.err)
		r.c.metrics.RecordError(errorType(ev.err))
		r.c.update(func(s *State) {
			s.Status = stream.StatusErrored
			s.Notice = NoticeConnection
			s.Speaking = false
		})
		return true
	case evClosed, evStop:
		r.c.update(func(s *State) {
			if !s.Status.Terminal() {
				s.Status = stream.StatusClosed
			}
			s.Speaking = false
		})
		return true
	}
	return false
}

func (r *run) opened() {
	var (
		in     InputContext
		client *stream.Client
	)
	r.mu.Lock()
	in, client = r.input, r.client
	r.mu.Unlock()
	if in == nil || client == nil {
		return
	}

	metrics := r.c.metrics
	in.Connect(func(block []float32) {
		if client.SendAudio(r.encoder.Encode(block)) {
			metrics.RecordAudio("in", len(block)*2)
		}
	})

	sampler := video.NewSampler(r.c.surface, r.c.cfg.Sampler, func(frame types.Blob) {
		if client.SendFrame(frame) {
			metrics.RecordFrame("sent")
		}
	}, r.logger)
	sampler.OnSkip = func(reason video.SkipReason) { metrics.RecordFrame(string(reason)) }

	ctx, cancel := context.WithCancel(r.ctx)
	done := make(chan struct{})
	if !r.hold(func() { r.samplerCancel, r.samplerDone = cancel, done }) {
		cancel()
		return
	}
	go func() {
		defer close(done)
		sampler.Run(ctx)
	}()

	r.logger.Info("live session connected", "poses", len(r.seq.Poses))
	r.c.update(func(s *State) {
		s.Status = stream.StatusConnected
		s.Notice = ""
	})
}

func (r *run) schedule(chunks [][]byte) {
	if r.scheduler == nil {
		return
	}
	for _, pcm := range chunks {
		if _, err := r.scheduler.Enqueue(pcm); err != nil {
			if errors.Is(err, audio.ErrDecode) {
				r.c.metrics.RecordDecodeFailure()
				r.logger.Warn("dropping undecodable audio chunk", "bytes", len(pcm), "error", err)
				continue
			}
			r.logger.Warn("audio chunk not scheduled", "error", err)
			continue
		}
		r.c.metrics.RecordAudio("out", len(pcm))
	}
	r.syncPlayback()
}

func (r *run) syncPlayback() {
	if r.scheduler == nil {
		return
	}
	speaking, next := r.scheduler.Speaking(), r.scheduler.NextStart()
	r.c.update(func(s *State) {
		s.Speaking = speaking
		s.NextStart = next
	})
}

// sessionNavigator applies setPoseIndex to the controller state from the loop.
type sessionNavigator struct{ r *run }

func (n sessionNavigator) PoseCount() int { return len(n.r.seq.Poses) }

func (n sessionNavigator) SetPoseIndex(index int) {
	n.r.c.update(func(s *State) { s.PoseIndex = index })
}

func (r *run) dispatch(calls []types.ToolCall) {
	responses := tools.Dispatch(calls, sessionNavigator{r: r})
	for _, resp := range responses {
		ok := tools.IsOK(resp)
		r.c.metrics.RecordToolCall(resp.Name, ok)
		if !ok {
			r.logger.Info("tool call rejected", "tool", resp.Name, "id", resp.ID, "result", resp.Response["result"])
		}
	}

	r.mu.Lock()
	client := r.client
	r.mu.Unlock()
	if client == nil || !client.SendToolResponses(responses) {
		r.logger.Warn("tool responses not sent; channel is not open", "count", len(responses))
	}
}

func (r *run) stop() {
	r.stopping.Store(true)
	r.events.push(event{kind: evStop})
	r.teardown()
	r.cancel()
	<-r.done
}

func (r *run) finish() {
	if dropped := r.events.close(); dropped > 0 {
		r.logger.Debug("session events discarded at shutdown", "count", dropped)
	}
	r.teardown()
	r.cancel()

	st := r.c.State()
	r.c.metrics.RecordSessionEnd(r.c.cfg.Model, strings.ToLower(st.Status.String()), r.c.now().Sub(r.startedAt))
	r.unregister()
	r.logger.Info("live session ended", "status", st.Status.String(), "pose_index", st.PoseIndex)
}

// teardown releases every resource exactly once, in a fixed order: frame timer,
// processing node, streaming client, capture tracks, input context, output context.
func (r *run) teardown() {
	r.teardownOnce.Do(func() {
		r.mu.Lock()
		r.torn = true
		samplerCancel, samplerDone := r.samplerCancel, r.samplerDone
		input, output, client := r.input, r.output, r.client
		devicesHeld := r.devicesHeld
		r.samplerCancel, r.samplerDone = nil, nil
		r.input, r.output, r.client = nil, nil, nil
		r.devicesHeld = false
		r.mu.Unlock()

		if samplerCancel != nil {
			samplerCancel()
			<-samplerDone
		}
		if input != nil {
			input.Disconnect()
		}
		if client != nil {
			if err := client.Close(); err != nil {
				r.logger.Debug("live channel close failed", "error", err)
			}
		}
		if devicesHeld {
			r.c.devices.Release()
		}
		if input != nil {
			if err := input.Close(); err != nil {
				r.logger.Debug("input context close failed", "error", err)
			}
		}
		if output != nil {
			if err := output.Close(); err != nil {
				r.logger.Debug("output context close failed", "error", err)
			}
		}
		r.logger.Debug("live session resources released")
	})
}
