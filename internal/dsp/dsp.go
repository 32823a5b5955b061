// Package dsp holds the small amount of signal processing the capture
// path needs: channel downmix, frame-length-forcing resampling, and a
// stateful high-pass filter.
package dsp

// Downmix averages interleaved multi-channel samples into mono.
// A mono input is returned unchanged.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += samples[base+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample stretches or squeezes a frame to exactly outLen samples using
// linear interpolation. Output length is forced, not derived from a rate
// ratio, so both capture paths stay frame-aligned regardless of rounding
// in the native chunk size.
func Resample(in []float32, outLen int) []float32 {
	if outLen <= 0 {
		return nil
	}
	out := make([]float32, outLen)
	if len(in) == 0 {
		return out
	}
	if len(in) == 1 {
		for i := range out {
			out[i] = in[0]
		}
		return out
	}
	step := float64(len(in)-1) / float64(outLen-1)
	for i := 0; i < outLen; i++ {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j] + (in[j+1]-in[j])*frac
	}
	return out
}
