package vad

import "math"

// Classifier scores one mixed frame with a speech probability in [0, 1].
// The production model (e.g. a Silero VAD sidecar) is a black box behind
// this interface; the gate only compares the score against a threshold.
type Classifier interface {
	Score(frame []float32) float64
}

// ScoreFunc adapts a plain function to a Classifier.
type ScoreFunc func(frame []float32) float64

func (f ScoreFunc) Score(frame []float32) float64 { return f(frame) }

// EnergyClassifier is the documented fallback classifier: it tracks a
// noise floor with minimum statistics and maps the frame's RMS-to-floor
// ratio onto a pseudo-probability. Good enough for close-mic setups,
// not a substitute for a trained model.
type EnergyClassifier struct {
	floor float64
	rise  float64 // slow upward drift of the floor per frame
	knee  float64 // RMS/floor ratio that maps to probability 0.5
}

func NewEnergyClassifier() *EnergyClassifier {
	return &EnergyClassifier{rise: 1.0005, knee: 4.0}
}

func (e *EnergyClassifier) Score(frame []float32) float64 {
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	if len(frame) == 0 {
		return 0
	}
	rms := math.Sqrt(sum / float64(len(frame)))

	const eps = 1e-7
	if e.floor == 0 || rms < e.floor {
		e.floor = rms + eps
	} else {
		e.floor *= e.rise
	}

	ratio := rms / e.floor
	return ratio / (ratio + e.knee)
}
