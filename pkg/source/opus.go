// ABOUTME: Ogg Opus source over hraban/opus
// ABOUTME: Decodes 48kHz 16-bit PCM; seeking re-opens the stream and skips forward
package source

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"gopkg.in/hraban/opus.v2"

	"github.com/Resonate-Protocol/resonate-media/pkg/audio"
)

// OpusSampleRate is the rate libopusfile always decodes at
const OpusSampleRate = 48000

// OggOpus is a decoded Ogg Opus stream
type OggOpus struct {
	pcmStream
	file   io.ReadSeekCloser
	reader *opusReader
}

type opusReader struct {
	stream   *opus.Stream
	channels int
	pcm      []int16
	pending  []byte
}

func (r *opusReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		n, err := r.stream.Read(r.pcm)
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, io.EOF
		}
		samples := n * r.channels
		buf := make([]byte, samples*2)
		for i := 0; i < samples; i++ {
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(r.pcm[i]))
		}
		r.pending = buf
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// NewOggOpus decodes an Ogg Opus stream with the given channel count
func NewOggOpus(f io.ReadSeekCloser, channels int, info Info) (*OggOpus, error) {
	if channels <= 0 {
		channels = 2
	}
	stream, err := opus.NewStream(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode Ogg Opus: %w", err)
	}

	reader := &opusReader{
		stream:   stream,
		channels: channels,
		// 120ms is the longest Opus packet
		pcm: make([]int16, OpusSampleRate*120/1000*channels),
	}
	s := &OggOpus{
		pcmStream: pcmStream{
			format: audio.Format{SampleRate: OpusSampleRate, Channels: channels, BitDepth: 16},
			info:   info,
			reader: reader,
			length: -1,
		},
		file:   f,
		reader: reader,
	}
	s.seek = s.reopenAt
	return s, nil
}

// OpenOggOpus opens an .opus file, decoding it as stereo
func OpenOggOpus(path string) (*OggOpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Opus file: %w", err)
	}
	s, err := NewOggOpus(f, 2, infoFromPath(path))
	if err != nil {
		f.Close()
		return nil, err
	}
	logger().Info("Loaded Opus", "title", s.info.Title, "format", s.format)
	return s, nil
}

func (s *OggOpus) reopenAt(offset int64) error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	stream, err := opus.NewStream(s.file)
	if err != nil {
		return err
	}
	s.reader.stream.Close()
	s.reader.stream = stream
	s.reader.pending = nil
	return discard(s.reader, offset)
}

// Close releases the decoder and the file
func (s *OggOpus) Close() error {
	s.reader.stream.Close()
	return s.file.Close()
}
