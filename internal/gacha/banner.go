package gacha

import "fmt"

// Tag classifies a top-rarity draw on a rate-up banner.
// Non-top draws and draws on banners without a rate-up carry TagNone.
type Tag string

const (
	TagNone       Tag = ""
	TagRateUp     Tag = "rate-up"
	TagGuaranteed Tag = "guaranteed"
	TagOffBanner  Tag = "off-banner"
)

// Label is the display form; TagNone renders empty.
func (t Tag) Label() string { return string(t) }

// IsRateUpHit reports whether the draw produced the featured item.
func (t Tag) IsRateUpHit() bool { return t == TagRateUp || t == TagGuaranteed }

// Classify assigns the tag of one draw and advances the pity state.
//
// Non-top draws bump both pull counters (the top-rarity counter saturates at the hard cap).
// A top draw always resets the top-rarity counter. On a banner without a rate-up the
// guarantee counter is left untouched. On a rate-up banner the draw is:
//   - guaranteed when the guarantee is armed and the draw falls in the guarantee window,
//   - rate-up when itemID is featured,
//   - off-banner otherwise, which arms the guarantee.
//
// Each of the three resets the guarantee counter.
func Classify(rules BannerRuleSet, state PityState, rarity Rarity, itemID string) (Tag, PityState, error) {
	if err := rules.Validate(); err != nil {
		return TagNone, state, err
	}
	if err := state.Validate(rules.HardPityCap); err != nil {
		return TagNone, state, err
	}
	if !rarity.valid() {
		return TagNone, state, fmt.Errorf("%w: %d", ErrRarity, int(rarity))
	}
	tag, next := classify(rules, state, rarity, itemID)
	return tag, next, nil
}

// classify is Classify without validation, for callers that validated once up front.
func classify(rules BannerRuleSet, s PityState, rarity Rarity, itemID string) (Tag, PityState) {
	if rarity != RarityTop {
		s.PullsSinceTopRarity = min(s.PullsSinceTopRarity+1, rules.HardPityCap)
		s.PullsSinceGuaranteedHit++
		if rarity == RaritySecond {
			s.SecondTierCount++
		}
		return TagNone, s
	}

	due := rules.guaranteeDue(s)
	s.PullsSinceTopRarity = 0
	s.TopRarityCount++
	if !rules.HasRateUp {
		return TagNone, s
	}

	var tag Tag
	switch {
	case due:
		tag = TagGuaranteed
	case rules.IsRateUp(itemID):
		tag = TagRateUp
	default:
		tag = TagOffBanner
	}
	s.PullsSinceGuaranteedHit = 0
	if tag == TagOffBanner {
		s.GuaranteeArmed = true
	} else {
		s.GuaranteeArmed = false
		s.RateUpHitCount++
	}
	return tag, s
}
