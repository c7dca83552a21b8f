package audio

import (
	"sync"
	"testing"
)

type fakeSource struct {
	mu   sync.Mutex
	subs int
	fn   func([]float32)
}

func (s *fakeSource) Subscribe(fn func([]float32)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs++
	s.fn = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.fn = nil
	}
}

func (s *fakeSource) push(n int, v float32) {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn == nil {
		return
	}
	buf := make([]float32, n)
	for i := range buf {
		buf[i] = v
	}
	fn(buf)
}

func TestInputContext_ReblocksDevicePeriods(t *testing.T) {
	src := &fakeSource{}
	ic := NewInputContext(src, 4)
	var blocks [][]float32
	ic.Connect(func(b []float32) { blocks = append(blocks, b) })
	if err := ic.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}

	src.push(3, 1)
	if len(blocks) != 0 {
		t.Fatalf("partial period should not emit, got %d blocks", len(blocks))
	}
	src.push(6, 2)
	if len(blocks) != 2 {
		t.Fatalf("blocks=%d, want 2", len(blocks))
	}
	want := []float32{1, 1, 1, 2}
	for i, v := range want {
		if blocks[0][i] != v {
			t.Fatalf("block0=%v, want %v", blocks[0], want)
		}
	}
	if ic.Delivered() != 2 {
		t.Fatalf("delivered=%d", ic.Delivered())
	}
}

func TestInputContext_DisconnectAndClose(t *testing.T) {
	src := &fakeSource{}
	ic := NewInputContext(src, 2)
	count := 0
	ic.Connect(func([]float32) { count++ })
	ic.Resume()
	ic.Resume()
	if src.subs != 1 {
		t.Fatalf("Resume should subscribe once, got %d", src.subs)
	}

	src.push(2, 0)
	ic.Disconnect()
	src.push(2, 0)
	if count != 1 {
		t.Fatalf("disconnected processor received blocks: %d", count)
	}

	if err := ic.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := ic.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if src.fn != nil {
		t.Fatalf("close should unsubscribe")
	}
	if err := ic.Resume(); err == nil {
		t.Fatalf("resume after close should fail")
	}
}
