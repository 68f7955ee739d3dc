package gacha

import (
	"fmt"
	"math"
	"sort"
)

// TrialGoal selects what the simulation measures per trial.
type TrialGoal string

const (
	// Pulls until the first top-rarity draw.
	GoalFirstHit TrialGoal = "first_hit"
	// Pulls until the first rate-up or guaranteed draw; falls back to first hit without a rate-up.
	GoalFirstRateUp TrialGoal = "first_rate_up"
	// Rate-up hits (top-rarity hits without a rate-up) within Budget pulls.
	GoalFixedBudget TrialGoal = "fixed_budget"
)

// maxTrialPulls bounds a single trial; with a finite hard cap every goal ends far sooner.
const maxTrialPulls = 1 << 16

// Stats summarizes simulation results.
type Stats struct {
	Trials int     `json:"trials"`
	Mean   float64 `json:"mean"`
	Var    float64 `json:"var"`
	StdDev float64 `json:"stdDev"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
	P99    float64 `json:"p99"`
	// Optional: raw samples if caller needs histograms/exports
	Samples []int `json:"-"`
}

// MonteCarlo describes one estimation run.
type MonteCarlo struct {
	Rules  BannerRuleSet
	Start  PityState // carried pity at the start of every trial
	Goal   TrialGoal
	Trials int
	Budget int // pulls per trial for GoalFixedBudget
}

// calcStats computes mean/variance/percentiles for integer samples.
func calcStats(xs []int) Stats {
	n := len(xs)
	if n == 0 {
		return Stats{}
	}
	var sum float64
	for _, v := range xs {
		sum += float64(v)
	}
	mean := sum / float64(n)

	// population variance
	var acc float64
	for _, v := range xs {
		d := float64(v) - mean
		acc += d * d
	}
	variance := acc / float64(n)

	cp := append([]int(nil), xs...)
	sort.Ints(cp)
	percentile := func(p float64) float64 {
		if n == 1 || p <= 0 {
			return float64(cp[0])
		}
		if p >= 1 {
			return float64(cp[n-1])
		}
		pos := p * float64(n-1)
		i := int(math.Floor(pos))
		f := pos - float64(i)
		if i+1 >= n {
			return float64(cp[i])
		}
		return float64(cp[i])*(1-f) + float64(cp[i+1])*f
	}

	return Stats{
		Trials:  n,
		Mean:    mean,
		Var:     variance,
		StdDev:  math.Sqrt(variance),
		P50:     percentile(0.50),
		P90:     percentile(0.90),
		P99:     percentile(0.99),
		Samples: xs,
	}
}

// RunMonteCarlo repeats trials on the engine and returns summary stats.
// Pass a seeded source for reproducible estimates.
func RunMonteCarlo(e *Engine, mc MonteCarlo, rng RandomSource) (Stats, error) {
	if mc.Trials <= 0 {
		return Stats{}, nil
	}
	if err := mc.Rules.Validate(); err != nil {
		return Stats{}, err
	}
	if err := mc.Start.Validate(mc.Rules.HardPityCap); err != nil {
		return Stats{}, err
	}
	if mc.Goal == GoalFixedBudget && mc.Budget <= 0 {
		return Stats{}, fmt.Errorf("fixed budget goal needs a positive budget, got %d", mc.Budget)
	}
	if rng == nil {
		rng = DefaultRNG()
	}
	picker := e.Picker
	if picker == nil {
		picker = ItemPool{}
	}

	samples := make([]int, mc.Trials)
	for i := range samples {
		v, err := trial(mc, rng, picker)
		if err != nil {
			return Stats{}, err
		}
		samples[i] = v
	}
	return calcStats(samples), nil
}

// trial returns the primary metric for one trial depending on the goal.
func trial(mc MonteCarlo, rng RandomSource, picker ItemPicker) (int, error) {
	s := mc.Start
	wantRateUp := mc.Goal == GoalFirstRateUp && mc.Rules.HasRateUp
	count := 0
	for pulls := 1; pulls <= maxTrialPulls; pulls++ {
		res, next, err := step(mc.Rules, s, rng, picker)
		if err != nil {
			return 0, err
		}
		s = next
		success := res.Rarity == RarityTop
		if mc.Rules.HasRateUp && (wantRateUp || mc.Goal == GoalFixedBudget) {
			success = res.Tag.IsRateUpHit()
		}

		switch mc.Goal {
		case GoalFixedBudget:
			if success {
				count++
			}
			if pulls == mc.Budget {
				return count, nil
			}
		case GoalFirstHit, GoalFirstRateUp:
			if success {
				return pulls, nil
			}
		default:
			return 0, fmt.Errorf("unknown trial goal %q", mc.Goal)
		}
	}
	return 0, fmt.Errorf("trial did not finish within %d pulls", maxTrialPulls)
}
