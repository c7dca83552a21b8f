package audio

import (
	"fmt"
	"log/slog"
	"time"
)

// Output is a playback device with its own monotonic clock.
type Output interface {
	// Now reports the device clock: audio time elapsed since the device opened.
	Now() time.Duration
	// Play schedules buf to begin at the given device time. Completion is reported
	// out of band with the same id.
	Play(id uint64, buf Buffer, at time.Duration) error
	// Stop silences a scheduled unit. Stopped units are not reported as ended.
	Stop(id uint64)
}

// Scheduled describes where a unit of speech landed on the output timeline.
type Scheduled struct {
	ID       uint64
	Start    time.Duration
	Duration time.Duration
}

// Scheduler places inbound speech back to back on the output clock.
//
// It is not safe for concurrent use; the session event loop owns it and feeds it
// completion notifications through Ended.
type Scheduler struct {
	out        Output
	sampleRate int
	logger     *slog.Logger

	// nextStart is kept in samples so back-to-back units never overlap on the device.
	nextStart int64
	nextID    uint64
	pending   map[uint64]struct{}
}

// NewScheduler returns a scheduler for PCM16 payloads at sampleRate.
func NewScheduler(out Output, sampleRate int, logger *slog.Logger) *Scheduler {
	if sampleRate <= 0 {
		sampleRate = OutputSampleRate
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		out:        out,
		sampleRate: sampleRate,
		logger:     logger,
		pending:    make(map[uint64]struct{}),
	}
}

// Enqueue decodes pcm and schedules it at max(nextStart, now). A decode failure
// leaves the timeline and the pending set untouched.
func (s *Scheduler) Enqueue(pcm []byte) (Scheduled, error) {
	samples, err := DecodePCM16(pcm)
	if err != nil {
		return Scheduled{}, err
	}
	buf := Buffer{Samples: samples, SampleRate: s.sampleRate}

	start := max(s.nextStart, s.clock())
	s.nextID++
	id := s.nextID
	at := samplesToDuration(start, s.sampleRate)
	if err := s.out.Play(id, buf, at); err != nil {
		return Scheduled{}, fmt.Errorf("schedule playback: %w", err)
	}
	s.nextStart = start + int64(len(samples))
	s.pending[id] = struct{}{}
	return Scheduled{ID: id, Start: at, Duration: buf.Duration()}, nil
}

func (s *Scheduler) clock() int64 { return startSample(s.out.Now(), s.sampleRate) }

// Ended removes a finished unit. It reports whether the pending set changed.
func (s *Scheduler) Ended(id uint64) bool {
	if _, ok := s.pending[id]; !ok {
		return false
	}
	delete(s.pending, id)
	return true
}

// Interrupt stops every pending unit and rewinds the timeline to the clock. This
// is the one place nextStart moves backwards: the audio it covered was discarded.
func (s *Scheduler) Interrupt() int {
	n := len(s.pending)
	for id := range s.pending {
		s.out.Stop(id)
		delete(s.pending, id)
	}
	s.nextStart = s.clock()
	if n > 0 {
		s.logger.Debug("playback interrupted", "dropped_units", n)
	}
	return n
}

// Speaking is true exactly when at least one unit is scheduled or playing.
func (s *Scheduler) Speaking() bool { return len(s.pending) > 0 }

// Pending returns the number of units not yet ended.
func (s *Scheduler) Pending() int { return len(s.pending) }

// NextStart is the earliest time the next unit may begin.
func (s *Scheduler) NextStart() time.Duration { return samplesToDuration(s.nextStart, s.sampleRate) }
