package gacha

import "fmt"

// PityState is the bad-luck-protection counters of one (scope, banner) lineage.
// It is a value: every operation returns the next state instead of mutating.
type PityState struct {
	PullsSinceTopRarity     int  `json:"pullsSinceTopRarity"`
	PullsSinceGuaranteedHit int  `json:"pullsSinceGuaranteedHit"`
	GuaranteeArmed          bool `json:"guaranteeArmed"` // previous top-rarity draw was off-banner

	TopRarityCount  int `json:"topRarityCount"`
	SecondTierCount int `json:"secondTierCount"`
	RateUpHitCount  int `json:"rateUpHitCount"`
}

// Validate rejects negative counters and a pity counter beyond the hard cap.
// A zero cap skips the cap check.
func (s PityState) Validate(hardPityCap int) error {
	switch {
	case s.PullsSinceTopRarity < 0:
		return fmt.Errorf("%w: pullsSinceTopRarity %d is negative", ErrInvalidState, s.PullsSinceTopRarity)
	case s.PullsSinceGuaranteedHit < 0:
		return fmt.Errorf("%w: pullsSinceGuaranteedHit %d is negative", ErrInvalidState, s.PullsSinceGuaranteedHit)
	case s.TopRarityCount < 0 || s.SecondTierCount < 0 || s.RateUpHitCount < 0:
		return fmt.Errorf("%w: negative tally", ErrInvalidState)
	case s.RateUpHitCount > s.TopRarityCount:
		return fmt.Errorf("%w: %d rate-up hits exceed %d top-rarity draws", ErrInvalidState, s.RateUpHitCount, s.TopRarityCount)
	case hardPityCap > 0 && s.PullsSinceTopRarity > hardPityCap:
		return fmt.Errorf("%w: pullsSinceTopRarity %d exceeds hard pity %d", ErrInvalidState, s.PullsSinceTopRarity, hardPityCap)
	}
	return nil
}

// PullsUntilHardPity is how many more pulls at most until a forced top-rarity draw.
func (s PityState) PullsUntilHardPity(r BannerRuleSet) int {
	left := r.HardPityCap - s.PullsSinceTopRarity
	if left < 0 {
		return 0
	}
	return left
}
