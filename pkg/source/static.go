// ABOUTME: Fully decoded in-memory audio source
// ABOUTME: Cheap seeks and clones for short sounds played repeatedly
package source

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Resonate-Protocol/resonate-media/pkg/audio"
)

// Static holds the whole decoded audio of another source
type Static struct {
	pcmStream
	data []byte
}

// NewStatic decodes src completely and closes it. The source must have audio and
// a finite length.
func NewStatic(src Source) (*Static, error) {
	defer src.Close()

	format := src.AudioFormat()
	if format == nil {
		return nil, fmt.Errorf("static source: %w", ErrNoAudio)
	}

	var buf bytes.Buffer
	chunk := format.DurationToBytes(time.Second)
	for {
		data, err := src.GetAudioData(chunk)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, ErrWouldBlock) {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode static source: %w", err)
		}
		buf.Write(data.Bytes)
	}

	return newStatic(*format, src.Info(), buf.Bytes()), nil
}

func newStatic(format audio.Format, info Info, data []byte) *Static {
	r := bytes.NewReader(data)
	return &Static{
		pcmStream: pcmStream{
			format: format,
			info:   info,
			reader: r,
			length: int64(len(data)),
			seek: func(offset int64) error {
				_, err := r.Seek(offset, io.SeekStart)
				return err
			},
		},
		data: data,
	}
}

// Clone returns an independent source over the same decoded audio
func (s *Static) Clone() *Static {
	return newStatic(s.format, s.info, s.data)
}

// Close is a no-op; the decoded audio is shared with clones
func (s *Static) Close() error {
	return nil
}
