package game

import (
	"context"
	"errors"
	"fmt"

	"github.com/xtding233/gacha-ledger/internal/gacha"
)

// ErrNoRules means a source has no rule set for the requested banner type.
// Callers must not guess rules; they may chain Builtin explicitly.
var ErrNoRules = errors.New("no rule set")

// RuleSource resolves the rule set of a banner type. pool narrows it to a single pool
// when the source knows pool overrides.
type RuleSource interface {
	Rules(ctx context.Context, bannerType, pool string) (gacha.BannerRuleSet, error)
}

// Chain asks each source in order and moves on only when a source has no rules.
// Any other error stops the chain.
type Chain []RuleSource

func (c Chain) Rules(ctx context.Context, bannerType, pool string) (gacha.BannerRuleSet, error) {
	for _, src := range c {
		r, err := src.Rules(ctx, bannerType, pool)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, ErrNoRules) {
			return gacha.BannerRuleSet{}, err
		}
	}
	return gacha.BannerRuleSet{}, fmt.Errorf("%w for banner type %q", ErrNoRules, bannerType)
}

// Static serves fixed rule sets by banner type, ignoring pool.
type Static map[string]gacha.BannerRuleSet

func (s Static) Rules(_ context.Context, bannerType, _ string) (gacha.BannerRuleSet, error) {
	r, ok := s[bannerType]
	if !ok {
		return gacha.BannerRuleSet{}, fmt.Errorf("%w for banner type %q", ErrNoRules, bannerType)
	}
	return r.WithRateUp(r.RateUpItems), nil
}

// Builtin serves the hardcoded defaults of the engine.
func Builtin() Static { return Static(gacha.BuiltinRuleSets()) }
