package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-go/vinyasa/pkg/live/video"
)

// CameraConfig describes how ffmpeg reads the camera. Zero fields take
// platform defaults.
type CameraConfig struct {
	FFmpegPath   string
	InputFormat  string
	Device       string
	Width        int
	Height       int
	FrameRate    int
	StartTimeout time.Duration
}

func (c CameraConfig) withDefaults() CameraConfig {
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.InputFormat == "" || c.Device == "" {
		format, device := platformCamera()
		if c.InputFormat == "" {
			c.InputFormat = format
		}
		if c.Device == "" {
			c.Device = device
		}
	}
	if c.Width <= 0 || c.Height <= 0 {
		c.Width, c.Height = 640, 480
	}
	if c.FrameRate <= 0 {
		c.FrameRate = 30
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = 10 * time.Second
	}
	return c
}

func platformCamera() (format, device string) {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation", "0:none"
	case "windows":
		return "dshow", "video=Integrated Camera"
	default:
		return "v4l2", "/dev/video0"
	}
}

func (c CameraConfig) args() []string {
	size := strconv.Itoa(c.Width) + "x" + strconv.Itoa(c.Height)
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", c.InputFormat,
		"-framerate", strconv.Itoa(c.FrameRate),
		"-video_size", size,
		"-i", c.Device,
		"-vf", "scale=" + strconv.Itoa(c.Width) + ":" + strconv.Itoa(c.Height),
		"-pix_fmt", "rgba",
		"-f", "rawvideo",
		"-",
	}
}

// Camera streams RGBA frames from an ffmpeg child process into a bound surface.
type Camera struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailBuffer
	width  int
	height int
	logger *slog.Logger

	mu      sync.Mutex
	surface *video.Surface

	done     chan struct{}
	stopping atomic.Bool
	stopOnce sync.Once
}

// OpenCamera starts ffmpeg and waits for the first frame, an early exit, or ctx.
func OpenCamera(ctx context.Context, cfg CameraConfig, logger *slog.Logger) (*Camera, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	path, err := exec.LookPath(cfg.FFmpegPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	cmd := exec.Command(path, cfg.args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start ffmpeg: %v", ErrDeviceUnavailable, err)
	}

	c := &Camera{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		width:  cfg.Width,
		height: cfg.Height,
		logger: logger,
		done:   make(chan struct{}),
	}
	first := make(chan error, 1)
	go c.readLoop(first)

	timer := time.NewTimer(cfg.StartTimeout)
	defer timer.Stop()
	select {
	case err := <-first:
		if err != nil {
			_ = c.Stop()
			return nil, classifyCameraError(err, stderr.String())
		}
	case <-ctx.Done():
		_ = c.Stop()
		return nil, ctx.Err()
	case <-timer.C:
		_ = c.Stop()
		return nil, fmt.Errorf("%w: no frames within %s", ErrDeviceUnavailable, cfg.StartTimeout)
	}
	logger.Debug("camera started", "device", cfg.Device, "width", cfg.Width, "height", cfg.Height)
	return c, nil
}

func classifyCameraError(err error, stderr string) error {
	detail := strings.TrimSpace(stderr)
	if detail == "" {
		detail = err.Error()
	}
	lower := strings.ToLower(detail)
	for _, marker := range []string{"denied", "not authorized", "not permitted"} {
		if strings.Contains(lower, marker) {
			return fmt.Errorf("%w: %s", ErrPermissionDenied, detail)
		}
	}
	return fmt.Errorf("%w: %s", ErrDeviceUnavailable, detail)
}

func (c *Camera) readLoop(first chan<- error) {
	defer close(c.done)
	frameSize := c.width * c.height * 4
	reported := false
	for {
		buf := make([]byte, frameSize)
		if _, err := io.ReadFull(c.stdout, buf); err != nil {
			if !reported {
				if errors.Is(err, io.ErrUnexpectedEOF) {
					err = io.EOF
				}
				first <- err
				return
			}
			if !c.stopping.Load() {
				// Leave no stale frame behind for the sampler to resend.
				c.logger.Warn("camera stream ended", "error", err, "ffmpeg", c.stderrTail())
				c.mu.Lock()
				surface := c.surface
				c.mu.Unlock()
				surface.Clear()
			}
			return
		}
		img := &image.RGBA{Pix: buf, Stride: c.width * 4, Rect: image.Rect(0, 0, c.width, c.height)}
		c.mu.Lock()
		surface := c.surface
		c.mu.Unlock()
		if surface != nil {
			surface.Present(img)
		}
		if !reported {
			reported = true
			first <- nil
		}
	}
}

// Bind sends subsequent frames to surface. A nil surface pauses presentation.
func (c *Camera) Bind(surface *video.Surface) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.surface = surface
}

// Stop terminates ffmpeg and waits for the reader to drain.
func (c *Camera) Stop() error {
	var err error
	c.stopOnce.Do(func() {
		c.stopping.Store(true)
		if c.cmd.Process != nil {
			if killErr := c.cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
				c.logger.Debug("ffmpeg kill failed", "error", killErr)
			}
		}
		<-c.done
		if waitErr := c.cmd.Wait(); waitErr != nil {
			var exitErr *exec.ExitError
			if !errors.As(waitErr, &exitErr) {
				err = waitErr
			}
		}
	})
	return err
}

func (c *Camera) stderrTail() string {
	if c.stderr == nil {
		return ""
	}
	return strings.TrimSpace(c.stderr.String())
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
	if over := b.buf.Len() - b.max; over > 0 {
		b.buf.Next(over)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
