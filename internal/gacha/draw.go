package gacha

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidProb is returned for a probability that is not a finite value in 0..1.
var ErrInvalidProb = errors.New("invalid probability")

// isProb reports whether p is finite and within [0, 1]; open also excludes 0.
func isProb(p float64, open bool) bool {
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 || p > 1 {
		return false
	}
	return !open || p > 0
}

// Draw is one Bernoulli(p) trial.
// p == 0 never hits and p == 1 always hits, neither consumes randomness.
func Draw(p float64, rng RandomSource) (bool, error) {
	switch {
	case !isProb(p, false):
		return false, fmt.Errorf("%w: %v", ErrInvalidProb, p)
	case p == 0:
		return false, nil
	case p == 1:
		return true, nil
	}
	if rng == nil {
		rng = DefaultRNG()
	}
	return rng.Float64() < p, nil
}
