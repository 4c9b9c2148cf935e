// ABOUTME: PCM byte packing helpers
// ABOUTME: Converts between packed PCM bytes and 24-bit range int32 samples
package audio

import (
	"encoding/binary"
	"fmt"
)

// DecodePCM unpacks interleaved PCM bytes into int32 samples in 24-bit range
func DecodePCM(data []byte, bitDepth int) ([]int32, error) {
	switch bitDepth {
	case 8:
		samples := make([]int32, len(data))
		for i, b := range data {
			samples[i] = (int32(b) - 128) << 16
		}
		return samples, nil
	case 16:
		n := len(data) / 2
		samples := make([]int32, n)
		for i := 0; i < n; i++ {
			samples[i] = SampleFromInt16(int16(binary.LittleEndian.Uint16(data[i*2:])))
		}
		return samples, nil
	case 24:
		n := len(data) / 3
		samples := make([]int32, n)
		for i := 0; i < n; i++ {
			samples[i] = SampleFrom24Bit([3]byte{data[i*3], data[i*3+1], data[i*3+2]})
		}
		return samples, nil
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}
}

// EncodePCM packs int32 samples in 24-bit range into interleaved PCM bytes
func EncodePCM(samples []int32, bitDepth int) ([]byte, error) {
	switch bitDepth {
	case 8:
		out := make([]byte, len(samples))
		for i, s := range samples {
			out[i] = byte((s >> 16) + 128)
		}
		return out, nil
	case 16:
		out := make([]byte, len(samples)*2)
		for i, s := range samples {
			binary.LittleEndian.PutUint16(out[i*2:], uint16(SampleToInt16(s)))
		}
		return out, nil
	case 24:
		out := make([]byte, len(samples)*3)
		for i, s := range samples {
			b := SampleTo24Bit(s)
			copy(out[i*3:], b[:])
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}
}

// Remix converts interleaved samples between channel layouts. Mono input is copied
// to every output channel and mono output averages all inputs. Other layouts keep
// the channels they share and leave the rest silent.
func Remix(samples []int32, from, to int) []int32 {
	if from == to || from <= 0 || to <= 0 {
		return samples
	}
	frames := len(samples) / from
	out := make([]int32, frames*to)
	for f := 0; f < frames; f++ {
		in := samples[f*from : f*from+from]
		if from == 1 {
			for c := 0; c < to; c++ {
				out[f*to+c] = in[0]
			}
			continue
		}
		if to == 1 {
			var sum int64
			for _, s := range in {
				sum += int64(s)
			}
			out[f] = int32(sum / int64(from))
			continue
		}
		for c := 0; c < to; c++ {
			if c < from {
				out[f*to+c] = in[c]
			}
		}
	}
	return out
}
