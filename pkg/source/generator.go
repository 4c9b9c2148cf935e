// ABOUTME: Synthetic audio sources for tests and headless runs
// ABOUTME: Silence and sine tone generators of fixed or endless length
package source

import (
	"math"
	"time"

	"github.com/Resonate-Protocol/resonate-media/pkg/audio"
)

// DefaultToneFrequency is A4
const DefaultToneFrequency = 440.0

// generator renders PCM for a frame index, so seeking is free
type generator struct {
	format audio.Format
	frame  int64
	render func(frame int64, out []int32)
}

func (g *generator) Read(p []byte) (int, error) {
	bpf := g.format.BytesPerFrame()
	frames := len(p) / bpf
	if frames == 0 {
		return 0, nil
	}
	samples := make([]int32, frames*g.format.Channels)
	for i := 0; i < frames; i++ {
		g.render(g.frame+int64(i), samples[i*g.format.Channels:(i+1)*g.format.Channels])
	}
	packed, err := audio.EncodePCM(samples, g.format.BitDepth)
	if err != nil {
		return 0, err
	}
	g.frame += int64(frames)
	return copy(p, packed), nil
}

func (g *generator) seekTo(offset int64) error {
	g.frame = offset / int64(g.format.BytesPerFrame())
	return nil
}

func lengthFor(format audio.Format, d time.Duration) int64 {
	if d <= 0 {
		return -1
	}
	return int64(format.DurationToBytes(d))
}

// Silence is a source of digital silence
type Silence struct {
	pcmStream
}

// NewSilence creates silence of length d; d <= 0 never ends
func NewSilence(format audio.Format, d time.Duration) *Silence {
	g := &generator{format: format, render: func(int64, []int32) {}}
	return &Silence{pcmStream{
		format: format,
		info:   Info{Title: "Silence"},
		reader: g,
		length: lengthFor(format, d),
		seek:   g.seekTo,
	}}
}

// Close is a no-op
func (s *Silence) Close() error {
	return nil
}

// Tone is a sine wave source at half amplitude
type Tone struct {
	pcmStream
	Frequency float64
}

// NewTone creates a tone of length d; d <= 0 never ends
func NewTone(format audio.Format, frequency float64, d time.Duration) *Tone {
	if frequency <= 0 {
		frequency = DefaultToneFrequency
	}
	rate := float64(format.SampleRate)
	g := &generator{
		format: format,
		render: func(frame int64, out []int32) {
			v := int32(math.Sin(2*math.Pi*frequency*float64(frame)/rate) * 0.5 * audio.Max24Bit)
			for c := range out {
				out[c] = v
			}
		},
	}
	return &Tone{
		pcmStream: pcmStream{
			format: format,
			info:   Info{Title: "Test Tone", Artist: "Resonate Media", Album: "Reference Signals"},
			reader: g,
			length: lengthFor(format, d),
			seek:   g.seekTo,
		},
		Frequency: frequency,
	}
}

// Close is a no-op
func (t *Tone) Close() error {
	return nil
}
