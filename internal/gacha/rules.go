package gacha

import (
	"errors"
	"fmt"
	"slices"
)

// Rarity is the tier of a single pull.
type Rarity int

const (
	RarityOther Rarity = iota
	RaritySecond
	RarityTop
)

var ErrRarity = errors.New("unknown rarity tier")

func (r Rarity) String() string {
	switch r {
	case RarityTop:
		return "top"
	case RaritySecond:
		return "second"
	case RarityOther:
		return "other"
	default:
		return fmt.Sprintf("rarity(%d)", int(r))
	}
}

func (r Rarity) valid() bool { return r >= RarityOther && r <= RarityTop }

func (r Rarity) MarshalText() ([]byte, error) {
	if !r.valid() {
		return nil, fmt.Errorf("%w: %d", ErrRarity, int(r))
	}
	return []byte(r.String()), nil
}

func (r *Rarity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "top":
		*r = RarityTop
	case "second":
		*r = RaritySecond
	case "other":
		*r = RarityOther
	default:
		return fmt.Errorf("%w: %q", ErrRarity, b)
	}
	return nil
}

// Window is an inclusive pull-count range.
type Window struct {
	From int `json:"from" yaml:"from"`
	To   int `json:"to" yaml:"to"`
}

// Contains reports whether n lies in [From, To].
func (w Window) Contains(n int) bool { return n >= w.From && n <= w.To }

var ErrRuleSet = errors.New("invalid banner rule set")

// BannerRuleSet holds the probability constants of one banner type.
// Values are immutable once resolved; callers copy, never mutate shared rule sets.
type BannerRuleSet struct {
	BannerType string `json:"bannerType"`

	BaseProbability   float64 `json:"baseProbability"`
	SoftPityStart     int     `json:"softPityStart"`     // pull index where the ramp starts
	SoftPityIncrement float64 `json:"softPityIncrement"` // added per pull past the start
	HardPityCap       int     `json:"hardPityCap"`       // pull index that is forced top rarity

	// SecondTierProbability is sampled on a top-rarity miss and ignores pity.
	SecondTierProbability float64 `json:"secondTierProbability"`

	HasRateUp       bool     `json:"hasRateUp"`
	GuaranteeWindow Window   `json:"guaranteeWindow"`
	RateUpItems     []string `json:"rateUpItems,omitempty"`

	// Ramp replaces the increment formula when set.
	Ramp *TargetRamp `json:"ramp,omitempty"`
}

// Validate checks every constant and returns all problems joined.
func (r BannerRuleSet) Validate() error {
	var errs []error
	if !isProb(r.BaseProbability, true) {
		errs = append(errs, fmt.Errorf("baseProbability %v must be in (0,1]", r.BaseProbability))
	}
	if r.HardPityCap < 1 {
		errs = append(errs, fmt.Errorf("hardPityCap %d must be >= 1", r.HardPityCap))
	}
	if r.SoftPityStart < 1 {
		errs = append(errs, fmt.Errorf("softPityStart %d must be >= 1", r.SoftPityStart))
	}
	if !isProb(r.SoftPityIncrement, false) {
		errs = append(errs, fmt.Errorf("softPityIncrement %v must be in [0,1]", r.SoftPityIncrement))
	}
	if !isProb(r.SecondTierProbability, false) || r.SecondTierProbability == 1 {
		errs = append(errs, fmt.Errorf("secondTierProbability %v must be in [0,1)", r.SecondTierProbability))
	}
	if r.HasRateUp {
		if r.GuaranteeWindow.From < 1 || r.GuaranteeWindow.To < r.GuaranteeWindow.From {
			errs = append(errs, fmt.Errorf("guaranteeWindow %d-%d is empty", r.GuaranteeWindow.From, r.GuaranteeWindow.To))
		}
		if len(r.RateUpItems) == 0 {
			errs = append(errs, errors.New("rate-up banner needs at least one rateUpItems entry"))
		}
	}
	if r.Ramp != nil {
		if err := r.Ramp.validate(r); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrRuleSet, errors.Join(errs...))
	}
	return nil
}

// IsRateUp reports whether itemID is one of the featured items.
// An empty itemID never matches.
func (r BannerRuleSet) IsRateUp(itemID string) bool {
	if itemID == "" {
		return false
	}
	return slices.Contains(r.RateUpItems, itemID)
}

// FeaturedItem is the item a guaranteed draw is forced to.
func (r BannerRuleSet) FeaturedItem() string {
	if len(r.RateUpItems) == 0 {
		return ""
	}
	return r.RateUpItems[0]
}

// WithRateUp returns a copy featuring items instead of the configured ones.
func (r BannerRuleSet) WithRateUp(items []string) BannerRuleSet {
	r.RateUpItems = slices.Clone(items)
	return r
}

// guaranteeDue reports whether a top-rarity draw from s must be the featured item.
func (r BannerRuleSet) guaranteeDue(s PityState) bool {
	return r.HasRateUp && s.GuaranteeArmed && r.GuaranteeWindow.Contains(s.PullsSinceGuaranteedHit+1)
}

// PlaceholderFeatured stands in for the featured item of builtin rate-up banners.
const PlaceholderFeatured = "featured"

// Builtin rule sets, used only when a caller opts into them as a fallback.
var builtin = map[string]BannerRuleSet{
	"character": {
		BannerType:            "character",
		BaseProbability:       0.008,
		SoftPityStart:         65,
		SoftPityIncrement:     0.05,
		HardPityCap:           80,
		SecondTierProbability: 0.08,
		HasRateUp:             true,
		GuaranteeWindow:       Window{From: 1, To: 80},
		RateUpItems:           []string{PlaceholderFeatured},
	},
	"weapon": {
		BannerType:            "weapon",
		BaseProbability:       0.04,
		SoftPityStart:         40,
		SoftPityIncrement:     0.0,
		HardPityCap:           40,
		SecondTierProbability: 0.15,
		HasRateUp:             true,
		GuaranteeWindow:       Window{From: 1, To: 40},
		RateUpItems:           []string{PlaceholderFeatured},
	},
	"standard": {
		BannerType:            "standard",
		BaseProbability:       0.008,
		SoftPityStart:         65,
		SoftPityIncrement:     0.05,
		HardPityCap:           80,
		SecondTierProbability: 0.08,
	},
}

// BuiltinRules returns the hardcoded defaults for bannerType.
func BuiltinRules(bannerType string) (BannerRuleSet, bool) {
	r, ok := builtin[bannerType]
	r.RateUpItems = slices.Clone(r.RateUpItems)
	return r, ok
}

// BuiltinRuleSets returns a copy of every builtin rule set keyed by banner type.
func BuiltinRuleSets() map[string]BannerRuleSet {
	out := make(map[string]BannerRuleSet, len(builtin))
	for bt := range builtin {
		out[bt], _ = BuiltinRules(bt)
	}
	return out
}
