package correlation

import (
	"math"
	"sync"
)

// baseline tracks an EWMA mean and variance of a per-key event rate.
// The z-score of each new sample against the pre-update baseline maps
// to [0,1] so that at-or-below-baseline rates score 0.
type baseline struct {
	mu       sync.Mutex
	mean     float64
	variance float64
	samples  int
}

// observe folds a new rate sample into the baseline and returns the
// anomaly score. Scores stay 0 until minSamples observations exist.
func (b *baseline) observe(rate, alpha float64, minSamples int) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	var score float64
	if b.samples >= minSamples {
		sigma := math.Sqrt(b.variance)
		if sigma < 1e-9 {
			sigma = 1e-9
		}
		z := (rate - b.mean) / sigma
		if z > 0 {
			// Logistic in z, rescaled so z=0 maps to 0 instead of 0.5.
			score = 2/(1+math.Exp(-z/2)) - 1
		}
	}

	delta := rate - b.mean
	b.mean += alpha * delta
	b.variance = (1 - alpha) * (b.variance + alpha*delta*delta)
	b.samples++

	return score
}
