// ABOUTME: Media source contract consumed by the player and audio driver
// ABOUTME: Defines timestamped audio pulls, video frame access and seeking
package source

import (
	"errors"
	"image"
	"time"

	"github.com/Resonate-Protocol/resonate-media/pkg/audio"
)

var (
	// ErrWouldBlock means no audio is buffered yet; the caller should retry later
	ErrWouldBlock = errors.New("no audio data buffered yet")

	// ErrUnsupportedFormat is returned when no decoder handles the media
	ErrUnsupportedFormat = errors.New("unsupported media format")

	// ErrNoVideo is returned by video calls on audio-only sources
	ErrNoVideo = errors.New("source has no video")

	// ErrNoAudio is returned where audio is required but the source has none
	ErrNoAudio = errors.New("source has no audio")

	// ErrNotSeekable is returned by sources over unseekable streams
	ErrNotSeekable = errors.New("source is not seekable")

	// ErrQueueClosed is returned by Put after the queue was closed
	ErrQueueClosed = errors.New("packet queue closed")
)

// Info is descriptive metadata
type Info struct {
	Title  string
	Artist string
	Album  string
}

// VideoFormat describes the frames a source produces
type VideoFormat struct {
	Width        int
	Height       int
	FrameRate    float64
	SampleAspect float64
}

// FrameDuration is the display time of one frame, 1/30s when the rate is unknown
func (v VideoFormat) FrameDuration() time.Duration {
	if v.FrameRate <= 0 {
		return time.Second / 30
	}
	return time.Duration(float64(time.Second) / v.FrameRate)
}

// VideoFrame is one decoded picture
type VideoFrame struct {
	Timestamp time.Duration
	Image     image.Image
}

// Source produces timestamped audio and video on demand. A Source is owned by
// one Player at a time and is not safe for concurrent use unless stated.
type Source interface {
	// AudioFormat returns nil when the source has no audio
	AudioFormat() *audio.Format

	// VideoFormat returns nil when the source has no video
	VideoFormat() *VideoFormat

	// Duration returns the total length when known
	Duration() (time.Duration, bool)

	Info() Info

	// GetAudioData returns up to n bytes of audio. It returns io.EOF once the audio
	// is exhausted and ErrWouldBlock when nothing is ready yet.
	GetAudioData(n int) (*audio.Data, error)

	// NextVideoTimestamp peeks at the timestamp of the next frame; false at the end
	NextVideoTimestamp() (time.Duration, bool)

	// NextVideoFrame returns the next frame and advances
	NextVideoFrame() (*VideoFrame, error)

	// Seek repositions audio and video to t
	Seek(t time.Duration) error

	Close() error
}
