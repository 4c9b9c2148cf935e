// ABOUTME: Streaming linear resampler for converting audio sample rates
// ABOUTME: Interpolates across chunk boundaries so callers can feed arbitrary chunk sizes
package resample

// Resampler performs linear interpolation to convert between sample rates. It keeps
// the last input frame of every chunk so consecutive chunks resample as one stream.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	step       float64 // input frames per output frame
	position   float64 // read position, frame 0 is the carried frame once primed
	lastFrame  []int32
	primed     bool
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		step:       float64(inputRate) / float64(outputRate),
		lastFrame:  make([]int32, channels),
	}
}

// Passthrough reports whether input and output rates match
func (r *Resampler) Passthrough() bool {
	return r.inputRate == r.outputRate
}

// Ratio is the number of output frames produced per input frame
func (r *Resampler) Ratio() float64 {
	return float64(r.outputRate) / float64(r.inputRate)
}

// Process converts a chunk of interleaved samples at the input rate into
// interleaved samples at the output rate.
func (r *Resampler) Process(input []int32) []int32 {
	if r.Passthrough() {
		return input
	}

	ch := r.channels
	frames := len(input) / ch
	if frames == 0 {
		return nil
	}

	total := frames
	offset := 0
	if r.primed {
		total++
		offset = 1
	}
	sample := func(frame, c int) int32 {
		if frame < offset {
			return r.lastFrame[c]
		}
		return input[(frame-offset)*ch+c]
	}

	out := make([]int32, 0, (int(float64(frames)/r.step)+2)*ch)
	for {
		idx := int(r.position)
		if idx+1 >= total {
			break
		}
		frac := r.position - float64(idx)
		for c := 0; c < ch; c++ {
			a := float64(sample(idx, c))
			b := float64(sample(idx+1, c))
			out = append(out, int32(a*(1.0-frac)+b*frac))
		}
		r.position += r.step
	}

	// The last input frame becomes frame 0 of the next chunk
	r.position -= float64(total - 1)
	copy(r.lastFrame, input[(frames-1)*ch:frames*ch])
	r.primed = true

	return out
}

// Reset drops the carried frame and read position
func (r *Resampler) Reset() {
	r.position = 0
	r.primed = false
	for i := range r.lastFrame {
		r.lastFrame[i] = 0
	}
}

// OutputSamplesNeeded estimates how many output samples a chunk of input samples yields
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	return int(float64(inputFrames)/r.step) * r.channels
}

// InputSamplesNeeded estimates how many input samples produce the given output samples
func (r *Resampler) InputSamplesNeeded(outputSamples int) int {
	outputFrames := outputSamples / r.channels
	return int(float64(outputFrames)*r.step) * r.channels
}
