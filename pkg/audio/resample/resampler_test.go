// ABOUTME: Tests for the streaming resampler
// ABOUTME: Covers passthrough, upsampling and continuity across chunks
package resample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(frames, channels int) []int32 {
	out := make([]int32, frames*channels)
	for f := 0; f < frames; f++ {
		for c := 0; c < channels; c++ {
			out[f*channels+c] = int32(f * 1000 * (c + 1))
		}
	}
	return out
}

func TestPassthrough(t *testing.T) {
	r := New(48000, 48000, 2)
	in := ramp(10, 2)
	assert.True(t, r.Passthrough())
	assert.Equal(t, in, r.Process(in))
}

func TestUpsampleDoublesFrames(t *testing.T) {
	r := New(24000, 48000, 1)
	out := r.Process([]int32{0, 1000, 2000, 3000})

	// the final input frame is carried, so 3 intervals produce 6 frames
	assert.Equal(t, []int32{0, 500, 1000, 1500, 2000, 2500}, out)
}

func TestChunkedMatchesWhole(t *testing.T) {
	in := ramp(64, 2)

	whole := New(24000, 48000, 2).Process(in)

	chunked := New(24000, 48000, 2)
	var joined []int32
	joined = append(joined, chunked.Process(in[:40])...)
	joined = append(joined, chunked.Process(in[40:90])...)
	joined = append(joined, chunked.Process(in[90:])...)

	require.Equal(t, len(whole), len(joined))
	assert.Equal(t, whole, joined)
}

func TestResetDropsCarriedFrame(t *testing.T) {
	r := New(24000, 48000, 1)
	r.Process([]int32{0, 1000})
	r.Reset()

	out := r.Process([]int32{5000, 5000})
	assert.Equal(t, []int32{5000, 5000}, out)
}

func TestSizeEstimates(t *testing.T) {
	r := New(44100, 48000, 2)
	assert.InDelta(t, 48000.0/44100.0, r.Ratio(), 1e-9)

	up := New(24000, 48000, 2)
	assert.Equal(t, 2*48000, up.OutputSamplesNeeded(2*24000))
	assert.Equal(t, 2*24000, up.InputSamplesNeeded(2*48000))
}
