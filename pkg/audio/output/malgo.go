// ABOUTME: Malgo-based audio output implementation
// ABOUTME: One miniaudio device per output, fed from a byte ring on the device thread
package output

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gen2brain/malgo"

	"github.com/Resonate-Protocol/resonate-media/pkg/audio"
)

// MalgoHost opens miniaudio playback devices at the source's native format
type MalgoHost struct {
	ctx    *malgo.AllocatedContext
	logger *log.Logger
}

// NewMalgoHost initializes the miniaudio context
func NewMalgoHost() (*MalgoHost, error) {
	logger := log.WithPrefix("malgo")
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		logger.Debug(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	return &MalgoHost{ctx: ctx, logger: logger}, nil
}

// Name returns "malgo"
func (h *MalgoHost) Name() string {
	return "malgo"
}

// Open initializes a stopped playback device for the format
func (h *MalgoHost) Open(format audio.Format) (Output, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	var sampleFormat malgo.FormatType
	switch format.BitDepth {
	case 8:
		sampleFormat = malgo.FormatU8
	case 16:
		sampleFormat = malgo.FormatS16
	case 24:
		sampleFormat = malgo.FormatS24
	}

	m := &Malgo{stream: newRingStream(format)}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = sampleFormat
	deviceConfig.Playback.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSamples []byte, frameCount uint32) {
			m.dataCallback(pOutputSample)
		},
	}

	device, err := malgo.InitDevice(h.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	m.device = device

	h.logger.Debug("device opened", "format", format)
	return m, nil
}

// Close releases the miniaudio context
func (h *MalgoHost) Close() error {
	if err := h.ctx.Uninit(); err != nil {
		h.logger.Warn("malgo context uninit error", "err", err)
	}
	h.ctx.Free()
	return nil
}

// Malgo is one miniaudio playback device
type Malgo struct {
	mu     sync.Mutex // guards device lifecycle
	device *malgo.Device
	stream *ringStream
}

// dataCallback runs on the device thread
func (m *Malgo) dataCallback(out []byte) {
	if notify := m.stream.pull(out); notify != nil {
		notify()
	}
}

// Start starts the device
func (m *Malgo) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device.IsStarted() {
		return nil
	}
	if err := m.device.Start(); err != nil {
		return fmt.Errorf("failed to start device: %w", err)
	}
	return nil
}

// Stop stops the device; miniaudio waits for an in-flight callback to return
func (m *Malgo) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.device.IsStarted() {
		return nil
	}
	if err := m.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop device: %w", err)
	}
	return nil
}

// Write queues bytes for the device thread
func (m *Malgo) Write(p []byte) (int, error) {
	return m.stream.push(p), nil
}

// Free returns how many bytes Write would accept
func (m *Malgo) Free() int {
	return m.stream.free()
}

// PlayCursor returns bytes handed to the device since the last Clear
func (m *Malgo) PlayCursor() int64 {
	return m.stream.renderedBytes()
}

// Clear drops queued audio
func (m *Malgo) Clear() error {
	m.stream.reset()
	return nil
}

// SetVolume sets the software gain (0..1)
func (m *Malgo) SetVolume(v float64) {
	m.stream.setGain(v)
}

// SetPan sets the stereo balance (-1..1)
func (m *Malgo) SetPan(pan float64) {
	m.stream.setPan(pan)
}

// OnStarved registers a callback invoked on the device thread when the ring runs dry
func (m *Malgo) OnStarved(fn func()) {
	m.stream.setStarvationCallback(fn)
}

// Close stops and uninitializes the device
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return nil
	}
	if m.device.IsStarted() {
		if err := m.device.Stop(); err != nil {
			log.Warn("device stop error", "err", err)
		}
	}
	m.device.Uninit()
	m.device = nil
	return nil
}
