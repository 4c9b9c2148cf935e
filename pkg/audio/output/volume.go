// ABOUTME: Software volume for PCM byte buffers
// ABOUTME: Scales 8, 16 and 24-bit samples in place with clipping protection
package output

import (
	"encoding/binary"

	"github.com/Resonate-Protocol/resonate-media/pkg/audio"
)

func clampGain(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampPan(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

// panGains returns the left and right gains for pan. The centre keeps both
// channels at full level.
func panGains(pan float64) (left, right float64) {
	left, right = 1, 1
	if pan > 0 {
		left = 1 - pan
	} else if pan < 0 {
		right = 1 + pan
	}
	return left, right
}

// applyPan scales the left and right samples of interleaved stereo frames
func applyPan(p []byte, format audio.Format, pan float64) {
	if format.Channels != 2 || pan == 0 {
		return
	}
	left, right := panGains(pan)
	bps := format.BytesPerSample()
	for i := 0; i+2*bps <= len(p); i += 2 * bps {
		applyGain(p[i:i+bps], format.BitDepth, left)
		applyGain(p[i+bps:i+2*bps], format.BitDepth, right)
	}
}

// applyGain scales samples in place
func applyGain(p []byte, bitDepth int, gain float64) {
	switch bitDepth {
	case 8:
		for i, b := range p {
			s := float64(int(b)-128) * gain
			p[i] = byte(int(s) + 128)
		}
	case 16:
		for i := 0; i+1 < len(p); i += 2 {
			s := float64(int16(binary.LittleEndian.Uint16(p[i:]))) * gain
			binary.LittleEndian.PutUint16(p[i:], uint16(int16(s)))
		}
	case 24:
		for i := 0; i+2 < len(p); i += 3 {
			s := int64(float64(audio.SampleFrom24Bit([3]byte{p[i], p[i+1], p[i+2]})) * gain)
			if s > audio.Max24Bit {
				s = audio.Max24Bit
			} else if s < audio.Min24Bit {
				s = audio.Min24Bit
			}
			b := audio.SampleTo24Bit(int32(s))
			copy(p[i:], b[:])
		}
	}
}
