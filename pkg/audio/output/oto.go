// ABOUTME: Oto-based audio output implementation
// ABOUTME: Pull-mode players over a byte ring with conversion to the shared 16-bit context
package output

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"

	"github.com/Resonate-Protocol/resonate-media/pkg/audio"
	"github.com/Resonate-Protocol/resonate-media/pkg/audio/resample"
)

// oto only allows one context per process
var (
	otoOnce   sync.Once
	otoShared *oto.Context
	otoFormat audio.Format
	otoErr    error
)

// OtoHost plays through the process-wide oto context. Every output is converted to
// the context's rate and channel count at 16 bits.
type OtoHost struct {
	ctx    *oto.Context
	format audio.Format
	logger *log.Logger
}

// NewOtoHost creates (or reuses) the oto context. Zero values pick 44100Hz stereo.
func NewOtoHost(sampleRate, channels int) (*OtoHost, error) {
	if sampleRate == 0 {
		sampleRate = 44100
	}
	if channels == 0 {
		channels = 2
	}
	logger := log.WithPrefix("oto")

	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready
		otoShared = ctx
		otoFormat = audio.Format{SampleRate: sampleRate, Channels: channels, BitDepth: 16}
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoFormat.SampleRate != sampleRate || otoFormat.Channels != channels {
		logger.Warn("oto context already exists, reusing it", "format", otoFormat)
	}
	if err := otoShared.Resume(); err != nil {
		return nil, fmt.Errorf("failed to resume oto context: %w", err)
	}

	return &OtoHost{ctx: otoShared, format: otoFormat, logger: logger}, nil
}

// Name returns "oto"
func (h *OtoHost) Name() string {
	return "oto"
}

// Open creates a player for the format
func (h *OtoHost) Open(format audio.Format) (Output, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	o := &Oto{
		ctx:       h.ctx,
		source:    format,
		device:    h.format,
		stream:    newRingStream(h.format),
		resampler: resample.New(format.SampleRate, h.format.SampleRate, h.format.Channels),
	}
	o.player = o.newPlayer()
	if format != h.format {
		h.logger.Debug("converting output", "from", format, "to", h.format)
	}
	return o, nil
}

// Close suspends the shared context
func (h *OtoHost) Close() error {
	if err := h.ctx.Suspend(); err != nil {
		return fmt.Errorf("failed to suspend oto context: %w", err)
	}
	return nil
}

// Oto is one pull-mode oto player. Cursors are reported in source-format bytes.
type Oto struct {
	ctx       *oto.Context
	source    audio.Format
	device    audio.Format
	stream    *ringStream
	resampler *resample.Resampler

	mu         sync.Mutex // guards player and lastCursor
	player     *oto.Player
	lastCursor int64
}

// Read is called by oto to pull device-format bytes. Starvation is not reported
// from here: oto holds its player lock while reading and PlayCursor needs it.
func (o *Oto) Read(p []byte) (int, error) {
	o.stream.pull(p)
	return len(p), nil
}

func (o *Oto) newPlayer() *oto.Player {
	p := o.ctx.NewPlayer(o)
	// keep oto's own read-ahead short so the play cursor stays accurate
	p.SetBufferSize(o.device.DurationToBytes(DefaultLatency))
	return p
}

// Start resumes the player
func (o *Oto) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.player.Play()
	return nil
}

// Stop pauses the player
func (o *Oto) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.player.Pause()
	return nil
}

func (o *Oto) ratio() float64 {
	return float64(o.device.BytesPerSecond()) / float64(o.source.BytesPerSecond())
}

// Write converts source bytes and queues them
func (o *Oto) Write(p []byte) (int, error) {
	n := o.Free()
	if n > len(p) {
		n = o.source.Align(len(p))
	}
	if n == 0 {
		return 0, nil
	}

	converted, err := o.convert(p[:n])
	if err != nil {
		return 0, err
	}
	o.stream.push(converted)
	return n, nil
}

func (o *Oto) convert(p []byte) ([]byte, error) {
	if o.source == o.device {
		return p, nil
	}
	samples, err := audio.DecodePCM(p, o.source.BitDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to convert audio: %w", err)
	}
	samples = audio.Remix(samples, o.source.Channels, o.device.Channels)
	samples = o.resampler.Process(samples)
	return audio.EncodePCM(samples, o.device.BitDepth)
}

// Free returns how many source bytes fit in the ring, leaving a frame of slack for
// resampler rounding
func (o *Oto) Free() int {
	free := float64(o.stream.free()-2*o.device.BytesPerFrame()) / o.ratio()
	if free < 0 {
		return 0
	}
	return o.source.Align(int(free))
}

// PlayCursor returns rendered bytes in the source format
func (o *Oto) PlayCursor() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	played := o.stream.renderedBytes() - int64(o.player.BufferedSize())
	cursor := int64(o.source.Align(int(float64(played) / o.ratio())))
	if cursor < o.lastCursor {
		cursor = o.lastCursor
	}
	o.lastCursor = cursor
	return cursor
}

// Clear drops queued audio by replacing the player
func (o *Oto) Clear() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.player.Close(); err != nil {
		return fmt.Errorf("failed to close oto player: %w", err)
	}
	o.stream.reset()
	o.resampler.Reset()
	o.lastCursor = 0
	o.player = o.newPlayer()
	return nil
}

// SetVolume sets the player gain (0..1)
func (o *Oto) SetVolume(v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.player.SetVolume(clampGain(v))
}

// SetPan sets the stereo balance (-1..1), applied as the device pulls
func (o *Oto) SetPan(pan float64) {
	o.stream.setPan(pan)
}

// Close releases the player
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.player.Close()
}
