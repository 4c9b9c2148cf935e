// ABOUTME: Video texture abstraction and an in-memory implementation
// ABOUTME: The player blits decoded frames into whatever surface the host provides
package player

import (
	"image"
	"image/draw"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-media/pkg/source"
)

// Texture is a surface that shows the current video frame
type Texture interface {
	Blit(frame *source.VideoFrame)
	Release()
}

// TextureFactory creates textures sized for a video format
type TextureFactory interface {
	CreateTexture(width, height int) (Texture, error)
}

// ImageTexture keeps the last blitted frame in memory. It backs headless
// playback and the terminal UI.
type ImageTexture struct {
	mu        sync.Mutex
	img       *image.RGBA
	timestamp time.Duration
	frames    int64
	released  bool
}

// NewImageTexture creates a blank texture
func NewImageTexture(width, height int) *ImageTexture {
	return &ImageTexture{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// Blit copies the frame into the texture
func (t *ImageTexture) Blit(frame *source.VideoFrame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released || frame == nil || frame.Image == nil {
		return
	}
	draw.Draw(t.img, t.img.Bounds(), frame.Image, frame.Image.Bounds().Min, draw.Src)
	t.timestamp = frame.Timestamp
	t.frames++
}

// Release marks the texture unusable
func (t *ImageTexture) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.released = true
}

// Frame returns a copy of the current image and its timestamp
func (t *ImageTexture) Frame() (image.Image, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := image.NewRGBA(t.img.Bounds())
	copy(cp.Pix, t.img.Pix)
	return cp, t.timestamp
}

// Frames returns how many frames were blitted
func (t *ImageTexture) Frames() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames
}

// ImageTextures is a TextureFactory producing ImageTextures
type ImageTextures struct{}

// CreateTexture implements TextureFactory
func (ImageTextures) CreateTexture(width, height int) (Texture, error) {
	return NewImageTexture(width, height), nil
}
