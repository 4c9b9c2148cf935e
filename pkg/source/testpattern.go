// ABOUTME: Synthetic video source with an optional tone track
// ABOUTME: Produces solid colour frames at a fixed rate for sync testing
package source

import (
	"image"
	"image/color"
	"image/draw"
	"io"
	"time"

	"github.com/Resonate-Protocol/resonate-media/pkg/audio"
)

var patternColors = []color.RGBA{
	{R: 0xff, A: 0xff},
	{G: 0xff, A: 0xff},
	{B: 0xff, A: 0xff},
	{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
}

// TestPattern cycles solid colours, one per frame. Its audio and video halves keep
// separate state, so video may be read while another goroutine reads audio.
type TestPattern struct {
	video    VideoFormat
	duration time.Duration
	frame    int64
	tone     *Tone
}

// NewTestPattern creates a video source; a nil audio format makes it video only
func NewTestPattern(video VideoFormat, d time.Duration, withAudio *audio.Format) *TestPattern {
	p := &TestPattern{video: video, duration: d}
	if withAudio != nil {
		p.tone = NewTone(*withAudio, DefaultToneFrequency, d)
	}
	return p
}

func (p *TestPattern) AudioFormat() *audio.Format {
	if p.tone == nil {
		return nil
	}
	return p.tone.AudioFormat()
}

func (p *TestPattern) VideoFormat() *VideoFormat {
	v := p.video
	return &v
}

func (p *TestPattern) Duration() (time.Duration, bool) {
	return p.duration, true
}

func (p *TestPattern) Info() Info {
	return Info{Title: "Test Pattern", Artist: "Resonate Media", Album: "Reference Signals"}
}

func (p *TestPattern) GetAudioData(n int) (*audio.Data, error) {
	if p.tone == nil {
		return nil, io.EOF
	}
	return p.tone.GetAudioData(n)
}

func (p *TestPattern) timestamp(frame int64) time.Duration {
	return time.Duration(frame) * p.video.FrameDuration()
}

func (p *TestPattern) NextVideoTimestamp() (time.Duration, bool) {
	ts := p.timestamp(p.frame)
	if ts >= p.duration {
		return 0, false
	}
	return ts, true
}

func (p *TestPattern) NextVideoFrame() (*VideoFrame, error) {
	ts, ok := p.NextVideoTimestamp()
	if !ok {
		return nil, io.EOF
	}
	img := image.NewRGBA(image.Rect(0, 0, p.video.Width, p.video.Height))
	c := patternColors[p.frame%int64(len(patternColors))]
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	p.frame++
	return &VideoFrame{Timestamp: ts, Image: img}, nil
}

// Seek moves to the frame covering t
func (p *TestPattern) Seek(t time.Duration) error {
	if t < 0 {
		t = 0
	}
	p.frame = int64(t / p.video.FrameDuration())
	if p.tone != nil {
		return p.tone.Seek(t)
	}
	return nil
}

func (p *TestPattern) Close() error {
	return nil
}
