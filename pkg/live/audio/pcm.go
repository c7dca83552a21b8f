// Package audio converts between device samples and the PCM16 payloads carried on
// the live channel, and schedules model speech for gapless playback.
//
// Capture runs at 16 kHz mono, playback at 24 kHz mono. Samples are float32 in
// [-1, 1] inside the process and signed 16-bit little-endian on the wire.
package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vango-go/vinyasa/pkg/core/types"
)

const (
	InputSampleRate  = 16000
	OutputSampleRate = 24000

	// BlockSize is the number of input samples per outbound chunk.
	BlockSize = 4096
)

// ErrDecode is returned for inbound payloads that are not whole PCM16 samples.
var ErrDecode = errors.New("audio: decode failure")

// Encoder turns blocks of float samples into outbound audio chunks.
type Encoder struct {
	mimeType string
}

// NewEncoder returns an encoder tagging chunks for the given capture rate.
func NewEncoder(sampleRate int) *Encoder {
	if sampleRate <= 0 {
		sampleRate = InputSampleRate
	}
	return &Encoder{mimeType: fmt.Sprintf("audio/pcm;rate=%d", sampleRate)}
}

// Encode returns exactly one chunk for the block, including an empty one.
func (e *Encoder) Encode(samples []float32) types.Blob {
	return types.Blob{
		MIMEType: e.mimeType,
		Data:     base64.StdEncoding.EncodeToString(EncodePCM16(samples)),
	}
}

// EncodePCM16 scales samples by 32768 and saturates to the int16 range.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int16(clampSample(float64(s) * 32768))
		out[2*i] = byte(v)
		out[2*i+1] = byte(uint16(v) >> 8)
	}
	return out
}

func clampSample(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return v
}

// DecodePCM16 converts little-endian int16 samples to floats by dividing by 32768.
func DecodePCM16(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of samples", ErrDecode, len(pcm))
	}
	out := make([]float32, len(pcm)/2)
	for i := range out {
		sample := int16(pcm[2*i]) | int16(pcm[2*i+1])<<8
		out[i] = float32(sample) / 32768
	}
	return out, nil
}

// Level computes the root-mean-square level of a block, between 0 and 1.
func Level(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Min(1, math.Sqrt(sum/float64(len(samples))))
}

// Buffer is a decoded unit of speech ready for the output device.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration is exact for whole-sample lengths at the buffer's rate.
func (b Buffer) Duration() time.Duration {
	return samplesToDuration(int64(len(b.Samples)), b.SampleRate)
}

func samplesToDuration(n int64, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}

func durationToSamples(d time.Duration, rate int) int64 {
	return int64(d) * int64(rate) / int64(time.Second)
}

// startSample rounds up, so a duration produced by samplesToDuration maps back
// to the sample it came from.
func startSample(d time.Duration, rate int) int64 {
	if d <= 0 {
		return 0
	}
	return (int64(d)*int64(rate) + int64(time.Second) - 1) / int64(time.Second)
}
