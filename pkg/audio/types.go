// ABOUTME: Audio type definitions
// ABOUTME: Defines PCM formats, decoded audio chunks and media timeline events
package audio

import (
	"fmt"
	"time"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// Format describes an interleaved little-endian PCM stream. 8-bit audio is unsigned,
// 16 and 24-bit audio is signed.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// Validate reports whether the format can be played
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("invalid channel count: %d", f.Channels)
	}
	switch f.BitDepth {
	case 8, 16, 24:
	default:
		return fmt.Errorf("unsupported bit depth: %d (supported: 8, 16, 24)", f.BitDepth)
	}
	return nil
}

// BytesPerSample is the size of one sample of one channel
func (f Format) BytesPerSample() int {
	return f.BitDepth / 8
}

// BytesPerFrame is the size of one sample across all channels
func (f Format) BytesPerFrame() int {
	return f.Channels * f.BytesPerSample()
}

// BytesPerSecond is the data rate of the stream
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.BytesPerFrame()
}

// Align rounds n down to a whole number of frames
func (f Format) Align(n int) int {
	bpf := f.BytesPerFrame()
	if bpf == 0 {
		return n
	}
	return n - n%bpf
}

// DurationToBytes converts a duration to a frame aligned byte count
func (f Format) DurationToBytes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	bps := int64(f.BytesPerSecond())
	sec := int64(d / time.Second)
	rem := int64(d % time.Second)
	return f.Align(int(sec*bps + rem*bps/int64(time.Second)))
}

// BytesToDuration converts a byte count to the playing time it represents
func (f Format) BytesToDuration(n int64) time.Duration {
	bps := int64(f.BytesPerSecond())
	if bps == 0 {
		return 0
	}
	whole := n / bps
	rem := n % bps
	return time.Duration(whole)*time.Second + time.Duration(rem*int64(time.Second)/bps)
}

// SilenceByte is the byte value of a silent sample
func (f Format) SilenceByte() byte {
	if f.BitDepth == 8 {
		return 0x80
	}
	return 0
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%d-bit/%dch", f.SampleRate, f.BitDepth, f.Channels)
}

// Event is a media timeline event carried alongside audio data. It is dispatched
// once playback passes its timestamp.
type Event struct {
	Timestamp time.Duration
	Name      string
	Args      []any
}

// Data is a chunk of decoded audio
type Data struct {
	Bytes     []byte
	Timestamp time.Duration
	Duration  time.Duration
	Events    []Event // ordered by Timestamp
}

// Len returns the number of audio bytes in the chunk
func (d *Data) Len() int {
	return len(d.Bytes)
}

// Consume drops n bytes from the front of the chunk. Timestamp and Duration move
// with the data and events that now fall before the start are dropped.
func (d *Data) Consume(n int, f Format) {
	if n <= 0 {
		return
	}
	if n >= len(d.Bytes) {
		d.Timestamp += d.Duration
		d.Duration = 0
		d.Bytes = nil
		d.Events = nil
		return
	}

	dt := f.BytesToDuration(int64(n))
	d.Bytes = d.Bytes[n:]
	d.Timestamp += dt
	d.Duration -= dt

	keep := d.Events[:0]
	for _, ev := range d.Events {
		if ev.Timestamp >= d.Timestamp {
			keep = append(keep, ev)
		}
	}
	d.Events = keep
}

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// SampleTo24Bit converts int32 to 24-bit packed bytes (little-endian)
func SampleTo24Bit(sample int32) [3]byte {
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}
