// ABOUTME: Source construction from paths and URLs
// ABOUTME: Picks a decoder by scheme and file extension
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

func logger() *log.Logger {
	return log.WithPrefix("source")
}

// Open creates a source for a local file or an HTTP(S) MP3 stream
func Open(pathOrURL string) (Source, error) {
	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		return OpenHTTPMP3(pathOrURL)
	}

	if _, err := os.Stat(pathOrURL); err != nil {
		return nil, fmt.Errorf("media file not found: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(pathOrURL)); ext {
	case ".mp3":
		return OpenMP3(pathOrURL)
	case ".flac":
		return OpenFLAC(pathOrURL)
	case ".opus", ".ogg":
		return OpenOggOpus(pathOrURL)
	default:
		return nil, fmt.Errorf("%w: %q (supported: .mp3, .flac, .opus)", ErrUnsupportedFormat, ext)
	}
}

// infoFromPath uses the file name as the title
func infoFromPath(path string) Info {
	name := filepath.Base(path)
	return Info{
		Title:  strings.TrimSuffix(name, filepath.Ext(name)),
		Artist: "Unknown Artist",
		Album:  "Unknown Album",
	}
}
