package video

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/image/draw"

	"github.com/vango-go/vinyasa/pkg/core/types"
)

const (
	DefaultInterval = 500 * time.Millisecond
	DefaultQuality  = 50
	DefaultMaxWidth = 640
)

// Source is anything the sampler can snapshot.
type Source interface {
	Snapshot() *image.RGBA
}

// SamplerConfig tunes frame sampling.
type SamplerConfig struct {
	Interval time.Duration
	Quality  int
	MaxWidth int
}

// SkipReason explains why a tick produced no frame.
type SkipReason string

const (
	SkipEmpty SkipReason = "empty_surface"
	SkipBusy  SkipReason = "compression_in_flight"
	SkipError SkipReason = "encode_error"
)

// Sampler emits at most one frame per tick. A tick that finds the previous
// compression still running is skipped rather than queued.
type Sampler struct {
	src    Source
	cfg    SamplerConfig
	emit   func(types.Blob)
	logger *slog.Logger

	// OnSkip observes skipped ticks; may be nil.
	OnSkip func(SkipReason)

	inFlight atomic.Bool
	wg       sync.WaitGroup
	sent     atomic.Uint64
}

// NewSampler returns a sampler that hands frames to emit. emit must not block.
func NewSampler(src Source, cfg SamplerConfig, emit func(types.Blob), logger *slog.Logger) *Sampler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = DefaultQuality
	}
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = DefaultMaxWidth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{src: src, cfg: cfg, emit: emit, logger: logger}
}

// Run ticks until ctx is done, then waits for any compression still running.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	defer s.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Sent counts emitted frames.
func (s *Sampler) Sent() uint64 { return s.sent.Load() }

func (s *Sampler) tick(ctx context.Context) bool {
	img := s.src.Snapshot()
	if img == nil {
		s.skip(SkipEmpty)
		return false
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.skip(SkipBusy)
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inFlight.Store(false)

		data, err := Compress(img, s.cfg.Quality, s.cfg.MaxWidth)
		if err != nil {
			s.logger.Warn("frame compression failed", "error", err)
			s.skip(SkipError)
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.sent.Add(1)
		s.emit(types.Blob{
			MIMEType: types.MIMEImageJPEG,
			Data:     base64.StdEncoding.EncodeToString(data),
		})
	}()
	return true
}

func (s *Sampler) skip(reason SkipReason) {
	if s.OnSkip != nil {
		s.OnSkip(reason)
	}
}

// Compress downscales img to at most maxWidth pixels wide and encodes it as JPEG.
func Compress(img image.Image, quality, maxWidth int) ([]byte, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("compress: empty image")
	}
	src := img
	if maxWidth > 0 && b.Dx() > maxWidth {
		h := b.Dy() * maxWidth / b.Dx()
		if h < 1 {
			h = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		src = dst
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	return buf.Bytes(), nil
}
