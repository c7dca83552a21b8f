// Package capture acquires the camera and microphone once and shares them
// between the preview and the live session.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vango-go/vinyasa/pkg/live/video"
)

var (
	ErrPermissionDenied  = errors.New("capture: permission denied")
	ErrDeviceUnavailable = errors.New("capture: device unavailable")
	ErrAcquireInProgress = errors.New("capture: acquisition already in progress")
)

// VideoTrack is a running camera. Bind re-targets frames without reopening the device.
type VideoTrack interface {
	Bind(surface *video.Surface)
	Stop() error
}

// AudioTrack is a running microphone. Subscribers receive device periods of
// mono float samples on the device goroutine.
type AudioTrack interface {
	Subscribe(fn func(samples []float32)) (cancel func())
	Stop() error
}

// Tracks is the pair held by an Adapter.
type Tracks struct {
	Video VideoTrack
	Audio AudioTrack
}

// Drivers open the platform devices.
type Drivers struct {
	OpenMicrophone func(ctx context.Context) (AudioTrack, error)
	OpenCamera     func(ctx context.Context) (VideoTrack, error)
}

// Adapter holds at most one pair of tracks at a time.
type Adapter struct {
	drivers Drivers
	logger  *slog.Logger

	mu        sync.Mutex
	tracks    *Tracks
	acquiring context.CancelFunc
	surface   *video.Surface
}

func NewAdapter(drivers Drivers, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{drivers: drivers, logger: logger}
}

// Acquire opens the microphone and camera, or returns the tracks already held.
// Errors wrap ErrPermissionDenied or ErrDeviceUnavailable.
func (a *Adapter) Acquire(ctx context.Context) (Tracks, error) {
	a.mu.Lock()
	if a.tracks != nil {
		t := *a.tracks
		a.mu.Unlock()
		return t, nil
	}
	if a.acquiring != nil {
		a.mu.Unlock()
		return Tracks{}, ErrAcquireInProgress
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.acquiring = cancel
	a.mu.Unlock()

	tracks, err := a.open(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.acquiring = nil
	if err != nil {
		return Tracks{}, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		stopTracks(tracks, a.logger)
		return Tracks{}, ctxErr
	}
	if a.surface != nil {
		tracks.Video.Bind(a.surface)
	}
	a.tracks = &tracks
	a.logger.Info("capture devices acquired")
	return tracks, nil
}

func (a *Adapter) open(ctx context.Context) (Tracks, error) {
	if a.drivers.OpenMicrophone == nil || a.drivers.OpenCamera == nil {
		return Tracks{}, fmt.Errorf("%w: no capture drivers configured", ErrDeviceUnavailable)
	}
	mic, err := a.drivers.OpenMicrophone(ctx)
	if err != nil {
		return Tracks{}, fmt.Errorf("microphone: %w", err)
	}
	cam, err := a.drivers.OpenCamera(ctx)
	if err != nil {
		if stopErr := mic.Stop(); stopErr != nil {
			a.logger.Warn("microphone stop failed", "error", stopErr)
		}
		return Tracks{}, fmt.Errorf("camera: %w", err)
	}
	return Tracks{Video: cam, Audio: mic}, nil
}

// Bind points the camera at surface. The binding is kept across re-acquisition.
func (a *Adapter) Bind(surface *video.Surface) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.surface = surface
	if a.tracks != nil {
		a.tracks.Video.Bind(surface)
	}
}

// Held reports whether tracks are currently open.
func (a *Adapter) Held() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tracks != nil
}

// Release stops both tracks and aborts an acquisition in progress. It never
// fails and is safe to call repeatedly.
func (a *Adapter) Release() {
	a.mu.Lock()
	if a.acquiring != nil {
		a.acquiring()
	}
	tracks := a.tracks
	a.tracks = nil
	a.mu.Unlock()

	if tracks == nil {
		return
	}
	stopTracks(*tracks, a.logger)
	a.logger.Info("capture devices released")
}

func stopTracks(t Tracks, logger *slog.Logger) {
	if t.Video != nil {
		if err := t.Video.Stop(); err != nil {
			logger.Warn("camera stop failed", "error", err)
		}
	}
	if t.Audio != nil {
		if err := t.Audio.Stop(); err != nil {
			logger.Warn("microphone stop failed", "error", err)
		}
	}
}

// Config configures the default device drivers.
type Config struct {
	Microphone MicrophoneConfig
	Camera     CameraConfig
}

// DefaultDrivers opens the microphone through miniaudio and the camera through ffmpeg.
func DefaultDrivers(cfg Config, logger *slog.Logger) Drivers {
	return Drivers{
		OpenMicrophone: func(ctx context.Context) (AudioTrack, error) {
			return OpenMicrophone(ctx, cfg.Microphone, logger)
		},
		OpenCamera: func(ctx context.Context) (VideoTrack, error) {
			return OpenCamera(ctx, cfg.Camera, logger)
		},
	}
}
