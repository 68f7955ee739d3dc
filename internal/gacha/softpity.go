package gacha

import (
	"errors"
	"fmt"
	"math"
)

// Easing specifies how a target ramp approaches its final probability.
type Easing string

const (
	EaseLinear     Easing = "linear"
	EaseOutQuad    Easing = "easeOutQuad"
	EaseInOutCubic Easing = "easeInOutCubic"
)

var ErrInvalidState = errors.New("invalid pity state")

// TargetRamp is the alternative soft-pity curve: from pull SoftPityStart up to pull
// HardPityCap-1 the probability moves from the base toward Target along Easing.
// Example: cap 90, start 74, target 0.5 ramps pulls 74..89 toward 0.5, pull 90 is forced.
type TargetRamp struct {
	Target float64 `json:"target"`
	Easing Easing  `json:"easing,omitempty"`
}

func (t *TargetRamp) validate(r BannerRuleSet) error {
	if t.Target <= 0 || t.Target >= 1 {
		return fmt.Errorf("ramp target %v must be in (0,1)", t.Target)
	}
	// ramp ends at HardPityCap-1 and needs at least one step
	if r.SoftPityStart >= r.HardPityCap-1 {
		return fmt.Errorf("ramp start %d leaves no room before cap %d", r.SoftPityStart, r.HardPityCap)
	}
	switch t.Easing {
	case "", EaseLinear, EaseOutQuad, EaseInOutCubic:
	default:
		return fmt.Errorf("unknown easing %q", t.Easing)
	}
	return nil
}

// TopRarityProbability is the chance that the next pull is top rarity when pity pulls
// have passed since the last top-rarity draw.
//
//	min(1, base + max(0, pity+1-softPityStart) * increment)
//
// and exactly 1 once pity+1 reaches HardPityCap.
func (r BannerRuleSet) TopRarityProbability(pity int) (float64, error) {
	if pity < 0 {
		return 0, fmt.Errorf("%w: pity %d is negative", ErrInvalidState, pity)
	}
	if pity+1 >= r.HardPityCap {
		return 1.0, nil
	}
	if r.Ramp != nil {
		return r.rampProb(pity), nil
	}
	steps := pity + 1 - r.SoftPityStart
	if steps < 0 {
		steps = 0
	}
	return math.Min(1.0, r.BaseProbability+float64(steps)*r.SoftPityIncrement), nil
}

func (r BannerRuleSet) rampProb(pity int) float64 {
	n := pity + 1
	if n < r.SoftPityStart {
		return r.BaseProbability
	}
	end := r.HardPityCap - 1
	length := float64(end - r.SoftPityStart)
	if length <= 0 {
		return r.BaseProbability
	}
	t := float64(n-r.SoftPityStart) / length
	t = math.Max(0, math.Min(1, t))
	switch r.Ramp.Easing {
	case EaseOutQuad:
		t = 1 - (1-t)*(1-t)
	case EaseInOutCubic:
		if t < 0.5 {
			t = 4 * t * t * t
		} else {
			t = 1 - (-2*t+2)*(-2*t+2)*(-2*t+2)/2
		}
	}
	p := r.BaseProbability + (r.Ramp.Target-r.BaseProbability)*t
	return math.Max(0, math.Min(1, p))
}
