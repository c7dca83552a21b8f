package audio

import (
	"io"
	"sync"
	"testing"
	"time"
)

func TestTimeline_RendersAtScheduledOffsets(t *testing.T) {
	var mu sync.Mutex
	var ended []uint64
	tl := NewTimeline(10, func(id uint64) {
		mu.Lock()
		ended = append(ended, id)
		mu.Unlock()
	})

	// 10 Hz timeline: one sample per 100ms.
	if err := tl.Play(1, Buffer{Samples: []float32{0.5, 0.5}, SampleRate: 10}, 200*time.Millisecond); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := tl.Play(2, Buffer{Samples: []float32{-0.25}, SampleRate: 10}, 400*time.Millisecond); err != nil {
		t.Fatalf("play: %v", err)
	}

	dst := make([]float32, 3)
	tl.Render(dst)
	if dst[0] != 0 || dst[1] != 0 || dst[2] != 0.5 {
		t.Fatalf("first render=%v", dst)
	}
	if len(ended) != 0 {
		t.Fatalf("nothing should have ended yet, got %v", ended)
	}
	tl.Render(dst)
	if dst[0] != 0.5 || dst[1] != -0.25 || dst[2] != 0 {
		t.Fatalf("second render=%v", dst)
	}
	if len(ended) != 2 || ended[0] != 1 || ended[1] != 2 {
		t.Fatalf("ended=%v, want [1 2]", ended)
	}
	if tl.Now() != 600*time.Millisecond {
		t.Fatalf("now=%v", tl.Now())
	}
}

func TestTimeline_LateStartPlaysFromHead(t *testing.T) {
	tl := NewTimeline(10, nil)
	tl.Render(make([]float32, 5))
	tl.Play(1, Buffer{Samples: []float32{1}, SampleRate: 10}, 0)
	dst := make([]float32, 1)
	tl.Render(dst)
	if dst[0] != 1 {
		t.Fatalf("late unit should play immediately, got %v", dst)
	}
}

func TestTimeline_StopSuppressesEnded(t *testing.T) {
	called := false
	tl := NewTimeline(10, func(uint64) { called = true })
	tl.Play(1, Buffer{Samples: []float32{1, 1}, SampleRate: 10}, 0)
	tl.Stop(1)
	dst := make([]float32, 4)
	tl.Render(dst)
	if called || dst[0] != 0 {
		t.Fatalf("stopped unit played or reported: called=%v dst=%v", called, dst)
	}
}

func TestTimeline_ReadAndClose(t *testing.T) {
	tl := NewTimeline(10, nil)
	tl.Play(1, Buffer{Samples: []float32{0.5}, SampleRate: 10}, 0)
	p := make([]byte, 4)
	n, err := tl.Read(p)
	if err != nil || n != 4 {
		t.Fatalf("read n=%d err=%v", n, err)
	}
	if v := int16(p[0]) | int16(p[1])<<8; v != 16384 {
		t.Fatalf("first sample=%d", v)
	}

	tl.Close()
	if _, err := tl.Read(p); err != io.EOF {
		t.Fatalf("read after close err=%v, want EOF", err)
	}
	if err := tl.Play(2, Buffer{Samples: []float32{1}, SampleRate: 10}, 0); err == nil {
		t.Fatalf("play after close should fail")
	}
}
