package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/vinyasa/pkg/live/video"
)

type fakeVideo struct {
	mu      sync.Mutex
	bound   *video.Surface
	stopped int
}

func (v *fakeVideo) Bind(s *video.Surface) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.bound = s
}

func (v *fakeVideo) Stop() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stopped++
	return nil
}

type fakeAudio struct {
	mu      sync.Mutex
	stopped int
}

func (a *fakeAudio) Subscribe(func([]float32)) func() { return func() {} }

func (a *fakeAudio) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped++
	return nil
}

func fakeDrivers(mic *fakeAudio, cam *fakeVideo, micErr, camErr error) (Drivers, *int) {
	opens := 0
	return Drivers{
		OpenMicrophone: func(context.Context) (AudioTrack, error) {
			opens++
			if micErr != nil {
				return nil, micErr
			}
			return mic, nil
		},
		OpenCamera: func(context.Context) (VideoTrack, error) {
			if camErr != nil {
				return nil, camErr
			}
			return cam, nil
		},
	}, &opens
}

func TestAdapter_AcquireIsIdempotent(t *testing.T) {
	mic, cam := &fakeAudio{}, &fakeVideo{}
	drivers, opens := fakeDrivers(mic, cam, nil, nil)
	a := NewAdapter(drivers, nil)

	first, err := a.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	second, err := a.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if *opens != 1 {
		t.Fatalf("opens=%d, want 1", *opens)
	}
	if first.Video != second.Video || first.Audio != second.Audio {
		t.Fatalf("second Acquire returned different tracks")
	}
	if !a.Held() {
		t.Fatalf("expected tracks held")
	}
}

func TestAdapter_ReleaseStopsOnce(t *testing.T) {
	mic, cam := &fakeAudio{}, &fakeVideo{}
	drivers, _ := fakeDrivers(mic, cam, nil, nil)
	a := NewAdapter(drivers, nil)
	a.Release()

	if _, err := a.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	a.Release()
	a.Release()
	if mic.stopped != 1 || cam.stopped != 1 {
		t.Fatalf("stops mic=%d cam=%d, want 1/1", mic.stopped, cam.stopped)
	}
	if a.Held() {
		t.Fatalf("tracks still held after Release")
	}
}

func TestAdapter_CameraFailureReleasesMicrophone(t *testing.T) {
	mic := &fakeAudio{}
	drivers, _ := fakeDrivers(mic, nil, nil, ErrPermissionDenied)
	a := NewAdapter(drivers, nil)

	_, err := a.Acquire(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err=%v, want ErrPermissionDenied", err)
	}
	if mic.stopped != 1 {
		t.Fatalf("microphone not stopped after camera failure")
	}
	if a.Held() {
		t.Fatalf("tracks held after failure")
	}
}

func TestAdapter_MicrophoneUnavailable(t *testing.T) {
	drivers, _ := fakeDrivers(nil, &fakeVideo{}, ErrDeviceUnavailable, nil)
	_, err := NewAdapter(drivers, nil).Acquire(context.Background())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("err=%v, want ErrDeviceUnavailable", err)
	}
}

func TestAdapter_BindSurvivesReacquire(t *testing.T) {
	cam := &fakeVideo{}
	drivers, _ := fakeDrivers(&fakeAudio{}, cam, nil, nil)
	a := NewAdapter(drivers, nil)
	surface := video.NewSurface()
	a.Bind(surface)

	if _, err := a.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if cam.bound != surface {
		t.Fatalf("camera not bound to surface on acquire")
	}
	other := video.NewSurface()
	a.Bind(other)
	if cam.bound != other {
		t.Fatalf("camera not rebound")
	}
}

func TestAdapter_ReleaseDuringAcquire(t *testing.T) {
	cam := &fakeVideo{}
	entered := make(chan struct{})
	proceed := make(chan struct{})
	a := NewAdapter(Drivers{
		OpenMicrophone: func(context.Context) (AudioTrack, error) { return &fakeAudio{}, nil },
		OpenCamera: func(context.Context) (VideoTrack, error) {
			close(entered)
			<-proceed
			return cam, nil
		},
	}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := a.Acquire(context.Background())
		done <- err
	}()
	<-entered
	if _, err := a.Acquire(context.Background()); !errors.Is(err, ErrAcquireInProgress) {
		t.Fatalf("concurrent Acquire err=%v, want ErrAcquireInProgress", err)
	}
	a.Release()
	close(proceed)

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Acquire err=%v, want context.Canceled", err)
	}
	if cam.stopped != 1 {
		t.Fatalf("late camera was not stopped")
	}
	if a.Held() {
		t.Fatalf("tracks held after Release during Acquire")
	}
}

func TestClassifyCameraError(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		want   error
	}{
		{name: "macos denial", stderr: "[avfoundation] Failed to create AV capture input device: Cannot use FaceTime HD Camera (not authorized)", want: ErrPermissionDenied},
		{name: "linux denial", stderr: "/dev/video0: Permission denied", want: ErrPermissionDenied},
		{name: "missing device", stderr: "/dev/video0: No such file or directory", want: ErrDeviceUnavailable},
		{name: "empty stderr", stderr: "", want: ErrDeviceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyCameraError(errors.New("EOF"), tt.stderr)
			if !errors.Is(err, tt.want) {
				t.Fatalf("classify(%q)=%v, want %v", tt.stderr, err, tt.want)
			}
		})
	}
}

func TestDecodeF32(t *testing.T) {
	in := make([]byte, 8)
	binary.LittleEndian.PutUint32(in, math.Float32bits(0.5))
	binary.LittleEndian.PutUint32(in[4:], math.Float32bits(-1))
	got := decodeF32(in)
	if len(got) != 2 || got[0] != 0.5 || got[1] != -1 {
		t.Fatalf("decodeF32=%v", got)
	}
}

func TestTailBufferKeepsSuffix(t *testing.T) {
	b := &tailBuffer{max: 4}
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("defg"))
	if got := b.String(); got != "defg" {
		t.Fatalf("tail=%q, want defg", got)
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestCameraReadLoop_PresentsFrames(t *testing.T) {
	surface := video.NewSurface()
	frame := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	pr, pw := io.Pipe()
	c := &Camera{
		stdout: pr,
		width:  2,
		height: 2,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		done:   make(chan struct{}),
	}
	c.Bind(surface)
	first := make(chan error, 1)
	go c.readLoop(first)

	if _, err := pw.Write(append(append([]byte{}, frame...), frame...)); err != nil {
		t.Fatalf("write frames: %v", err)
	}
	if err := <-first; err != nil {
		t.Fatalf("first frame err=%v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for surface.Frames() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("frames=%d, want 2", surface.Frames())
		}
		time.Sleep(time.Millisecond)
	}
	img := surface.Snapshot()
	if img == nil || img.Bounds().Dx() != 2 || img.Pix[0] != 1 {
		t.Fatalf("unexpected snapshot %+v", img)
	}
	pw.Close()
	<-c.done
}

func TestCameraReadLoop_UnexpectedExitClearsSurface(t *testing.T) {
	surface := video.NewSurface()
	var logs bytes.Buffer
	c := &Camera{
		stdout: io.NopCloser(bytes.NewReader(make([]byte, 16))),
		stderr: &tailBuffer{max: 64},
		width:  2,
		height: 2,
		logger: slog.New(slog.NewTextHandler(&logs, nil)),
		done:   make(chan struct{}),
	}
	c.stderr.Write([]byte("device lost\n"))
	c.Bind(surface)
	first := make(chan error, 1)
	c.readLoop(first)

	if err := <-first; err != nil {
		t.Fatalf("first frame err=%v", err)
	}
	if surface.Frames() != 1 {
		t.Fatalf("frames=%d, want 1", surface.Frames())
	}
	if surface.Snapshot() != nil {
		t.Fatalf("surface should be empty after the stream ended")
	}
	if !bytes.Contains(logs.Bytes(), []byte("camera stream ended")) || !bytes.Contains(logs.Bytes(), []byte("device lost")) {
		t.Fatalf("missing warning, logs=%q", logs.String())
	}
}

func TestCameraReadLoop_StopKeepsLastFrame(t *testing.T) {
	surface := video.NewSurface()
	c := &Camera{
		stdout: io.NopCloser(bytes.NewReader(make([]byte, 16))),
		width:  2,
		height: 2,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		done:   make(chan struct{}),
	}
	c.stopping.Store(true)
	c.Bind(surface)
	first := make(chan error, 1)
	c.readLoop(first)

	if err := <-first; err != nil {
		t.Fatalf("first frame err=%v", err)
	}
	if surface.Snapshot() == nil {
		t.Fatalf("a deliberate stop should not clear the surface")
	}
}

func TestCameraReadLoop_ShortStreamReportsEOF(t *testing.T) {
	c := &Camera{
		stdout: io.NopCloser(bytes.NewReader([]byte{1, 2, 3})),
		width:  2,
		height: 2,
		done:   make(chan struct{}),
	}
	first := make(chan error, 1)
	c.readLoop(first)
	if err := <-first; !errors.Is(err, io.EOF) {
		t.Fatalf("err=%v, want io.EOF", err)
	}
}

func TestOpenCamera_StartAndStop(t *testing.T) {
	// One 2x2 RGBA frame, then stay alive until killed.
	script := writeScript(t, "head -c 16 /dev/zero\nexec sleep 30")
	cam, err := OpenCamera(context.Background(), CameraConfig{FFmpegPath: script, Width: 2, Height: 2, StartTimeout: 5 * time.Second}, nil)
	if err != nil {
		t.Fatalf("OpenCamera: %v", err)
	}
	if err := cam.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := cam.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestOpenCamera_DenialIsPermissionError(t *testing.T) {
	script := writeScript(t, "echo 'Permission denied' >&2\nexit 1")
	_, err := OpenCamera(context.Background(), CameraConfig{FFmpegPath: script, Width: 2, Height: 2}, nil)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err=%v, want ErrPermissionDenied", err)
	}
}

func TestOpenCamera_MissingBinary(t *testing.T) {
	_, err := OpenCamera(context.Background(), CameraConfig{FFmpegPath: filepath.Join(t.TempDir(), "nope")}, nil)
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("err=%v, want ErrDeviceUnavailable", err)
	}
}
