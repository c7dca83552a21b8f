// Package video holds the camera preview surface and samples it into JPEG frames
// for the live channel.
package video

import (
	"image"
	"sync"
)

// Surface keeps the most recent camera frame. Its size is zero until the first
// frame is presented.
type Surface struct {
	mu     sync.RWMutex
	frame  *image.RGBA
	frames uint64
}

// NewSurface returns an empty surface.
func NewSurface() *Surface { return &Surface{} }

// Present replaces the current frame. The surface takes ownership of img.
func (s *Surface) Present(img *image.RGBA) {
	if s == nil || img == nil {
		return
	}
	s.mu.Lock()
	s.frame = img
	s.frames++
	s.mu.Unlock()
}

// Clear drops the current frame so the surface reads as empty until the next
// Present. The frame count is kept.
func (s *Surface) Clear() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.frame = nil
	s.mu.Unlock()
}

// Size reports the current frame dimensions.
func (s *Surface) Size() (width, height int) {
	if s == nil {
		return 0, 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frame == nil {
		return 0, 0
	}
	b := s.frame.Bounds()
	return b.Dx(), b.Dy()
}

// Frames counts presented frames.
func (s *Surface) Frames() uint64 {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frames
}

// Snapshot returns the current frame, or nil when the surface is empty.
// Presenters hand over fresh images, so the returned frame is never written again.
func (s *Surface) Snapshot() *image.RGBA {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frame == nil || s.frame.Bounds().Empty() {
		return nil
	}
	return s.frame
}
