package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

var errClosed = errors.New("audio: output closed")

// oto allows one context per process; it outlives individual speakers.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

func sharedOtoContext(sampleRate int) (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
			// ~100ms at 24kHz mono 16-bit
			BufferSize: 100 * time.Millisecond,
		})
		if err != nil {
			otoErr = err
			return
		}
		<-ready
		otoCtx = ctx
	})
	return otoCtx, otoErr
}

// Speaker is the 24 kHz output context: an oto player pulling from a Timeline.
// Its clock is the number of samples the device has consumed.
type Speaker struct {
	timeline *Timeline
	ctx      *oto.Context
	player   *oto.Player

	closeOnce sync.Once
}

// OpenSpeaker starts a silent player on the default output device. ended is called
// from the device goroutine for every unit that finishes.
func OpenSpeaker(sampleRate int, ended func(id uint64)) (*Speaker, error) {
	if sampleRate <= 0 {
		sampleRate = OutputSampleRate
	}
	ctx, err := sharedOtoContext(sampleRate)
	if err != nil {
		return nil, fmt.Errorf("open output device: %w", err)
	}
	tl := NewTimeline(sampleRate, ended)
	player := ctx.NewPlayer(tl)
	player.Play()
	return &Speaker{timeline: tl, ctx: ctx, player: player}, nil
}

func (s *Speaker) Now() time.Duration { return s.timeline.Now() }

func (s *Speaker) Play(id uint64, buf Buffer, at time.Duration) error {
	return s.timeline.Play(id, buf, at)
}

func (s *Speaker) Stop(id uint64) { s.timeline.Stop(id) }

// Resume wakes the device if the platform suspended it.
func (s *Speaker) Resume() error {
	return s.ctx.Resume()
}

// Close stops the player and drops anything still scheduled. Safe to call twice.
func (s *Speaker) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.timeline.Close()
		err = s.player.Close()
	})
	return err
}
