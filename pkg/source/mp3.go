// ABOUTME: MP3 source over hajimehoshi/go-mp3
// ABOUTME: Decodes local files (seekable) and HTTP streams (forward only) to 16-bit stereo
package source

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/hajimehoshi/go-mp3"

	"github.com/Resonate-Protocol/resonate-media/pkg/audio"
)

// MP3 is a decoded MP3 stream
type MP3 struct {
	pcmStream
	closer io.Closer
}

// NewMP3 decodes r. It seeks only when r implements io.Seeker.
func NewMP3(r io.ReadCloser, info Info) (*MP3, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	s := &MP3{
		pcmStream: pcmStream{
			// MP3 decoder outputs 16-bit stereo
			format: audio.Format{SampleRate: decoder.SampleRate(), Channels: 2, BitDepth: 16},
			info:   info,
			reader: decoder,
			length: decoder.Length(),
		},
		closer: r,
	}
	if _, ok := r.(io.Seeker); ok {
		s.seek = func(offset int64) error {
			_, err := decoder.Seek(offset, io.SeekStart)
			return err
		}
	}
	return s, nil
}

// OpenMP3 opens an MP3 file
func OpenMP3(path string) (*MP3, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}
	s, err := NewMP3(f, infoFromPath(path))
	if err != nil {
		f.Close()
		return nil, err
	}
	logger().Info("Loaded MP3", "title", s.info.Title, "format", s.format)
	return s, nil
}

// OpenHTTPMP3 streams MP3 from an HTTP URL. The result cannot seek.
func OpenHTTPMP3(url string) (*MP3, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch HTTP stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	s, err := NewMP3(resp.Body, Info{Title: "HTTP Stream", Artist: url})
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	logger().Info("Streaming MP3 from HTTP", "url", url, "format", s.format)
	return s, nil
}

// Close closes the underlying file or response body
func (s *MP3) Close() error {
	return s.closer.Close()
}
