// ABOUTME: Audio-only source plumbing over a PCM byte reader
// ABOUTME: Tracks the byte position so every chunk carries an exact timestamp
package source

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Resonate-Protocol/resonate-media/pkg/audio"
)

// pcmStream implements the Source methods shared by audio-only sources. The
// embedding type supplies Close.
type pcmStream struct {
	format audio.Format
	info   Info
	reader io.Reader
	pos    int64 // bytes delivered since time zero
	length int64 // total bytes, -1 when unknown

	// seek repositions reader to a byte offset; nil when not seekable
	seek func(offset int64) error
}

func (s *pcmStream) AudioFormat() *audio.Format {
	f := s.format
	return &f
}

func (s *pcmStream) VideoFormat() *VideoFormat {
	return nil
}

func (s *pcmStream) Duration() (time.Duration, bool) {
	if s.length < 0 {
		return 0, false
	}
	return s.format.BytesToDuration(s.length), true
}

func (s *pcmStream) Info() Info {
	return s.info
}

func (s *pcmStream) GetAudioData(n int) (*audio.Data, error) {
	n = s.format.Align(n)
	if n <= 0 {
		n = s.format.BytesPerFrame()
	}
	if s.length >= 0 {
		remain := s.length - s.pos
		if remain <= 0 {
			return nil, io.EOF
		}
		if int64(n) > remain {
			n = int(remain)
		}
	}

	buf := make([]byte, n)
	read, err := io.ReadFull(s.reader, buf)
	read = s.format.Align(read)
	if read == 0 {
		if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}

	data := &audio.Data{
		Bytes:     buf[:read],
		Timestamp: s.format.BytesToDuration(s.pos),
		Duration:  s.format.BytesToDuration(int64(read)),
	}
	s.pos += int64(read)
	return data, nil
}

func (s *pcmStream) NextVideoTimestamp() (time.Duration, bool) {
	return 0, false
}

func (s *pcmStream) NextVideoFrame() (*VideoFrame, error) {
	return nil, ErrNoVideo
}

func (s *pcmStream) Seek(t time.Duration) error {
	if s.seek == nil {
		return ErrNotSeekable
	}
	off := int64(s.format.DurationToBytes(t))
	if s.length >= 0 && off > s.length {
		off = s.length
	}
	if err := s.seek(off); err != nil {
		return fmt.Errorf("failed to seek to %v: %w", t, err)
	}
	s.pos = off
	return nil
}

// discard reads and drops n bytes, for decoders that can only seek coarsely
func discard(r io.Reader, n int64) error {
	if n <= 0 {
		return nil
	}
	_, err := io.CopyN(io.Discard, r, n)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
