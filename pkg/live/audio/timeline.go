package audio

import (
	"io"
	"sort"
	"sync"
	"time"
)

type voice struct {
	id      uint64
	start   int64
	samples []float32
}

func (v voice) end() int64 { return v.start + int64(len(v.samples)) }

// Timeline is a pull-based renderer: each Read advances the clock by the number
// of samples produced, and any unit whose last sample has been rendered is reported
// to the ended callback. Gaps between units are silence.
type Timeline struct {
	sampleRate int
	ended      func(id uint64)

	mu     sync.Mutex
	pos    int64
	voices []voice
	closed bool
}

// NewTimeline returns an empty timeline. ended may be nil.
func NewTimeline(sampleRate int, ended func(id uint64)) *Timeline {
	if sampleRate <= 0 {
		sampleRate = OutputSampleRate
	}
	return &Timeline{sampleRate: sampleRate, ended: ended}
}

// Now returns the rendered position as a duration.
func (t *Timeline) Now() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return samplesToDuration(t.pos, t.sampleRate)
}

// Play places buf on the timeline. A start in the past plays from the current position.
func (t *Timeline) Play(id uint64, buf Buffer, at time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errClosed
	}
	start := startSample(at, t.sampleRate)
	if start < t.pos {
		start = t.pos
	}
	t.voices = append(t.voices, voice{id: id, start: start, samples: buf.Samples})
	sort.SliceStable(t.voices, func(i, j int) bool { return t.voices[i].start < t.voices[j].start })
	return nil
}

// Stop drops a unit without reporting it.
func (t *Timeline) Stop(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, v := range t.voices {
		if v.id == id {
			t.voices = append(t.voices[:i], t.voices[i+1:]...)
			return
		}
	}
}

// Render fills dst with the next len(dst) samples and advances the clock.
func (t *Timeline) Render(dst []float32) {
	var done []uint64

	t.mu.Lock()
	for i := range dst {
		dst[i] = 0
	}
	from := t.pos
	to := from + int64(len(dst))
	kept := t.voices[:0]
	for _, v := range t.voices {
		lo := max(v.start, from)
		hi := min(v.end(), to)
		for p := lo; p < hi; p++ {
			dst[p-from] += v.samples[p-v.start]
		}
		if v.end() <= to {
			done = append(done, v.id)
			continue
		}
		kept = append(kept, v)
	}
	t.voices = kept
	t.pos = to
	ended := t.ended
	t.mu.Unlock()

	if ended != nil {
		for _, id := range done {
			ended(id)
		}
	}
}

// Read renders PCM16 little-endian bytes; it never blocks and never returns EOF
// until the timeline is closed.
func (t *Timeline) Read(p []byte) (int, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return 0, io.EOF
	}
	n := len(p) / 2
	if n == 0 {
		return 0, nil
	}
	samples := make([]float32, n)
	t.Render(samples)
	copy(p, EncodePCM16(samples))
	return n * 2, nil
}

// Close drops every unit. Further Play calls fail.
func (t *Timeline) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.voices = nil
}
