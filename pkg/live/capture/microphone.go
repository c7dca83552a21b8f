package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// MicrophoneConfig selects the capture format. Defaults: 16 kHz mono, 4096-frame periods.
type MicrophoneConfig struct {
	SampleRate   int
	PeriodFrames int
}

// Microphone captures mono float32 samples from the default input device.
type Microphone struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	logger *slog.Logger

	mu      sync.Mutex
	subs    map[int]func([]float32)
	nextSub int

	stopOnce sync.Once
}

// OpenMicrophone starts capturing immediately; samples are dropped until someone subscribes.
func OpenMicrophone(_ context.Context, cfg MicrophoneConfig, logger *slog.Logger) (*Microphone, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.PeriodFrames <= 0 {
		cfg.PeriodFrames = 4096
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: init audio context: %v", ErrDeviceUnavailable, err)
	}
	m := &Microphone{ctx: mctx, logger: logger, subs: make(map[int]func([]float32))}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.Capture.Format = malgo.FormatF32
	devCfg.Capture.Channels = 1
	devCfg.SampleRate = uint32(cfg.SampleRate)
	devCfg.PeriodSizeInFrames = uint32(cfg.PeriodFrames)

	device, err := malgo.InitDevice(mctx.Context, devCfg, malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) { m.deliver(in) },
	})
	if err != nil {
		m.freeContext()
		return nil, classifyMicError("open microphone", err)
	}
	m.device = device
	if err := device.Start(); err != nil {
		device.Uninit()
		m.freeContext()
		return nil, classifyMicError("start microphone", err)
	}
	logger.Debug("microphone started", "sample_rate", cfg.SampleRate, "period_frames", cfg.PeriodFrames)
	return m, nil
}

func classifyMicError(op string, err error) error {
	if errors.Is(err, malgo.ErrAccessDenied) {
		return fmt.Errorf("%w: %s: %v", ErrPermissionDenied, op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, op, err)
}

func (m *Microphone) deliver(in []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.subs) == 0 {
		return
	}
	samples := decodeF32(in)
	for _, fn := range m.subs {
		fn(samples)
	}
}

func decodeF32(in []byte) []float32 {
	out := make([]float32, len(in)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(in[4*i:]))
	}
	return out
}

// Subscribe registers fn for every captured period.
func (m *Microphone) Subscribe(fn func([]float32)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// Stop releases the device and its context.
func (m *Microphone) Stop() error {
	var err error
	m.stopOnce.Do(func() {
		if m.device != nil {
			err = m.device.Stop()
			m.device.Uninit()
		}
		m.freeContext()
		m.mu.Lock()
		m.subs = make(map[int]func([]float32))
		m.mu.Unlock()
	})
	return err
}

func (m *Microphone) freeContext() {
	if m.ctx == nil {
		return
	}
	if err := m.ctx.Uninit(); err != nil {
		m.logger.Debug("audio context uninit failed", "error", err)
	}
	m.ctx.Free()
	m.ctx = nil
}
