package dsp

import "math"

// HighPass is a stateful second-order (biquad) high-pass filter used to
// strip DC offset and sub-audible rumble before voice-activity detection.
// Filter history carries across Process calls, so one instance belongs to
// exactly one capture path and must not be shared between streams.
type HighPass struct {
	b0, b1, b2 float64
	a1, a2     float64

	// direct form II transposed state
	z1, z2 float64
}

// NewHighPass returns a high-pass biquad with the given cutoff frequency
// (Butterworth Q) for the given sample rate.
func NewHighPass(sampleRate int, cutoffHz float64) *HighPass {
	w0 := 2 * math.Pi * cutoffHz / float64(sampleRate)
	cosw0 := math.Cos(w0)
	// Butterworth: Q = 1/sqrt(2)
	alpha := math.Sin(w0) / math.Sqrt2

	b0 := (1 + cosw0) / 2
	b1 := -(1 + cosw0)
	b2 := (1 + cosw0) / 2
	a0 := 1 + alpha
	a1 := -2 * cosw0
	a2 := 1 - alpha

	return &HighPass{
		b0: b0 / a0,
		b1: b1 / a0,
		b2: b2 / a0,
		a1: a1 / a0,
		a2: a2 / a0,
	}
}

// Process filters one frame in place and returns it. Shape and dtype are
// preserved.
func (h *HighPass) Process(frame []float32) []float32 {
	for i, s := range frame {
		x := float64(s)
		y := h.b0*x + h.z1
		h.z1 = h.b1*x - h.a1*y + h.z2
		h.z2 = h.b2*x - h.a2*y
		frame[i] = float32(y)
	}
	return frame
}

// Reset clears the filter history.
func (h *HighPass) Reset() {
	h.z1, h.z2 = 0, 0
}
