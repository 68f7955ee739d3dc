// resolve.go
package game

import (
	"fmt"

	"github.com/xtding233/gacha-ledger/internal/gacha"
	"github.com/xtding233/gacha-ledger/internal/token"
)

// Resolve normalizes a merged RawConfig into an engine rule set.
// p_base and pity are required; everything else has a neutral default:
// no soft pity, no second tier, no rate-up.
func Resolve(bannerType string, cfg RawConfig) (gacha.BannerRuleSet, error) {
	if err := ValidateRaw(cfg); err != nil {
		return gacha.BannerRuleSet{}, fmt.Errorf("%w: %s: %w", gacha.ErrRuleSet, bannerType, err)
	}
	if cfg.Draw.PBase == nil || cfg.Draw.Pity == nil {
		return gacha.BannerRuleSet{}, fmt.Errorf("%w: %s: draw.p_base and draw.pity are required", gacha.ErrRuleSet, bannerType)
	}
	r := gacha.BannerRuleSet{
		BannerType:      bannerType,
		BaseProbability: *cfg.Draw.PBase,
		HardPityCap:     *cfg.Draw.Pity,
		SoftPityStart:   *cfg.Draw.Pity,
	}
	if cfg.Draw.SecondTier != nil {
		r.SecondTierProbability = *cfg.Draw.SecondTier
	}

	if s := cfg.Draw.Soft; s != nil {
		switch s.Mode {
		case SoftIncrement:
			r.SoftPityStart = *s.StartAt
			r.SoftPityIncrement = *s.Increment
		case SoftTargetRamp:
			r.SoftPityStart = *s.StartAt
			r.Ramp = &gacha.TargetRamp{Target: *s.Target, Easing: gacha.Easing(s.Easing)}
		}
	}

	if b := cfg.Banner; b != nil && b.RateUp != nil && *b.RateUp {
		r.HasRateUp = true
		// without an explicit window the guarantee holds for any pull count
		r.GuaranteeWindow = gacha.Window{From: 1, To: r.HardPityCap}
		if b.Window != nil {
			r.GuaranteeWindow = gacha.Window{From: b.Window.From, To: b.Window.To}
		}
		r.RateUpItems = append([]string(nil), b.RateUpItems...)
		if len(r.RateUpItems) == 0 {
			r.RateUpItems = []string{gacha.PlaceholderFeatured}
		}
	}

	if err := r.Validate(); err != nil {
		return gacha.BannerRuleSet{}, fmt.Errorf("%s: %w", bannerType, err)
	}
	return r, nil
}

// ResolveTokens turns the tokens block into a price; absent fields stay zero.
func ResolveTokens(cfg RawConfig) token.Token {
	if cfg.Tokens == nil {
		return token.Token{}
	}
	t := token.Token{Name: cfg.Tokens.Name}
	if cfg.Tokens.PerDraw != nil {
		t.PerDraw = *cfg.Tokens.PerDraw
	}
	if cfg.Tokens.PerTenDraw != nil {
		t.PerTenDraw = *cfg.Tokens.PerTenDraw
	}
	if cfg.Tokens.PerNDraw != nil && cfg.Tokens.N != nil {
		t.PerNDraw = *cfg.Tokens.PerNDraw
		t.N = *cfg.Tokens.N
	}
	return t
}
