// Package resample converts interleaved PCM between sample rates with linear
// interpolation. The oto output uses it when a source's rate differs from the
// rate of the process-wide audio context.
package resample
