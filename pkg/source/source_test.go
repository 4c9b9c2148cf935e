// ABOUTME: Tests for PCM stream sources
// ABOUTME: Covers exhaustion boundaries, timestamps, seeking and opening by extension
package source

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/resonate-media/pkg/audio"
)

var cd = audio.Format{SampleRate: 44100, Channels: 2, BitDepth: 16}

func TestOneSecondSourceExhaustion(t *testing.T) {
	src := NewSilence(cd, time.Second)

	data, err := src.GetAudioData(cd.BytesPerSecond() + 100)
	require.NoError(t, err)
	assert.Equal(t, cd.BytesPerSecond(), data.Len())
	assert.Zero(t, data.Timestamp)
	assert.Equal(t, time.Second, data.Duration)

	_, err = src.GetAudioData(cd.BytesPerSecond())
	assert.ErrorIs(t, err, io.EOF)
}

func TestChunkTimestampsAreContiguous(t *testing.T) {
	src := NewTone(cd, 440, 500*time.Millisecond)
	chunk := cd.DurationToBytes(100 * time.Millisecond)

	var next time.Duration
	total := 0
	for {
		data, err := src.GetAudioData(chunk)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, next, data.Timestamp)
		next = data.Timestamp + data.Duration
		total += data.Len()
	}
	assert.Equal(t, cd.DurationToBytes(500*time.Millisecond), total)
	assert.Equal(t, 500*time.Millisecond, next)
}

func TestUnalignedRequestsAreFrameAligned(t *testing.T) {
	src := NewSilence(cd, time.Second)

	data, err := src.GetAudioData(1023)
	require.NoError(t, err)
	assert.Equal(t, 1020, data.Len())

	data, err = src.GetAudioData(1)
	require.NoError(t, err)
	assert.Equal(t, cd.BytesPerFrame(), data.Len())
}

func TestToneIsNotSilent(t *testing.T) {
	src := NewTone(cd, 1000, 0)
	data, err := src.GetAudioData(4096)
	require.NoError(t, err)

	samples, err := audio.DecodePCM(data.Bytes, 16)
	require.NoError(t, err)
	nonZero := 0
	for _, s := range samples {
		if s != 0 {
			nonZero++
		}
	}
	assert.Greater(t, nonZero, len(samples)/2)

	_, known := src.Duration()
	assert.False(t, known, "endless tone has no duration")
}

func TestSeekRepositionsTimestamps(t *testing.T) {
	src := NewTone(cd, 440, 2*time.Second)

	require.NoError(t, src.Seek(1500*time.Millisecond))
	data, err := src.GetAudioData(cd.BytesPerSecond())
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, data.Timestamp)
	assert.Equal(t, cd.DurationToBytes(500*time.Millisecond), data.Len())

	// past the end clamps and reports exhaustion
	require.NoError(t, src.Seek(time.Hour))
	_, err = src.GetAudioData(100)
	assert.ErrorIs(t, err, io.EOF)

	d, ok := src.Duration()
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, d)
}

func TestAudioOnlySourceHasNoVideo(t *testing.T) {
	src := NewSilence(cd, time.Second)
	assert.Nil(t, src.VideoFormat())
	_, ok := src.NextVideoTimestamp()
	assert.False(t, ok)
	_, err := src.NextVideoFrame()
	assert.ErrorIs(t, err, ErrNoVideo)
}

func TestStaticCloneIsIndependent(t *testing.T) {
	st, err := NewStatic(NewTone(cd, 440, 250*time.Millisecond))
	require.NoError(t, err)

	d, ok := st.Duration()
	require.True(t, ok)
	assert.Equal(t, 250*time.Millisecond, d)

	first, err := st.GetAudioData(cd.BytesPerSecond())
	require.NoError(t, err)
	_, err = st.GetAudioData(1)
	assert.ErrorIs(t, err, io.EOF)

	clone := st.Clone()
	again, err := clone.GetAudioData(cd.BytesPerSecond())
	require.NoError(t, err)
	assert.Equal(t, first.Bytes, again.Bytes)

	require.NoError(t, st.Seek(0))
	rewound, err := st.GetAudioData(8)
	require.NoError(t, err)
	assert.Equal(t, first.Bytes[:8], rewound.Bytes)
}

func TestStaticRequiresAudio(t *testing.T) {
	_, err := NewStatic(NewTestPattern(VideoFormat{Width: 2, Height: 2, FrameRate: 10}, time.Second, nil))
	assert.ErrorIs(t, err, ErrNoAudio)
}

func TestOpenRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o644))

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Open(filepath.Join(t.TempDir(), "missing.mp3"))
	assert.Error(t, err)
}

func TestInfoFromPath(t *testing.T) {
	info := infoFromPath("/music/Some Track.flac")
	assert.Equal(t, "Some Track", info.Title)
	assert.Equal(t, "Unknown Artist", info.Artist)
}
