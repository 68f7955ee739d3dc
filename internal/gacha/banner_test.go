package gacha

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	rateUp := scenarioRules()
	narrow := scenarioRules()
	narrow.GuaranteeWindow = Window{From: 81, To: 120}
	plain, _ := BuiltinRules("standard")

	cases := []struct {
		name   string
		rules  BannerRuleSet
		state  PityState
		rarity Rarity
		item   string
		tag    Tag
		want   PityState
	}{
		{
			name: "ordinary pull advances both counters", rules: rateUp,
			state: PityState{PullsSinceTopRarity: 3, PullsSinceGuaranteedHit: 7}, rarity: RarityOther,
			tag:  TagNone,
			want: PityState{PullsSinceTopRarity: 4, PullsSinceGuaranteedHit: 8},
		},
		{
			name: "second tier tallied", rules: rateUp,
			rarity: RaritySecond, item: "b",
			tag:  TagNone,
			want: PityState{PullsSinceTopRarity: 1, PullsSinceGuaranteedHit: 1, SecondTierCount: 1},
		},
		{
			name: "rate-up hit", rules: rateUp,
			state: PityState{PullsSinceTopRarity: 40, PullsSinceGuaranteedHit: 40}, rarity: RarityTop, item: "up",
			tag:  TagRateUp,
			want: PityState{TopRarityCount: 1, RateUpHitCount: 1},
		},
		{
			name: "off-banner arms the guarantee", rules: rateUp,
			state: PityState{PullsSinceTopRarity: 40, PullsSinceGuaranteedHit: 40}, rarity: RarityTop, item: "other",
			tag:  TagOffBanner,
			want: PityState{GuaranteeArmed: true, TopRarityCount: 1},
		},
		{
			name: "missing item identity is off-banner", rules: rateUp,
			rarity: RarityTop,
			tag:    TagOffBanner,
			want:   PityState{GuaranteeArmed: true, TopRarityCount: 1},
		},
		{
			name: "armed inside window is guaranteed", rules: rateUp,
			state: PityState{PullsSinceTopRarity: 12, PullsSinceGuaranteedHit: 12, GuaranteeArmed: true, TopRarityCount: 1},
			rarity: RarityTop, item: "other",
			tag:  TagGuaranteed,
			want: PityState{TopRarityCount: 2, RateUpHitCount: 1},
		},
		{
			name: "armed outside window falls back to item comparison", rules: narrow,
			state: PityState{PullsSinceTopRarity: 12, PullsSinceGuaranteedHit: 12, GuaranteeArmed: true, TopRarityCount: 1},
			rarity: RarityTop, item: "other",
			tag:  TagOffBanner,
			want: PityState{GuaranteeArmed: true, TopRarityCount: 2},
		},
		{
			name: "banner without rate-up leaves the guarantee counter", rules: plain,
			state: PityState{PullsSinceTopRarity: 9, PullsSinceGuaranteedHit: 9}, rarity: RarityTop, item: "x",
			tag:  TagNone,
			want: PityState{PullsSinceGuaranteedHit: 9, TopRarityCount: 1},
		},
		{
			name: "pity saturates at the hard cap", rules: rateUp,
			state: PityState{PullsSinceTopRarity: 80, PullsSinceGuaranteedHit: 80}, rarity: RarityOther,
			tag:  TagNone,
			want: PityState{PullsSinceTopRarity: 80, PullsSinceGuaranteedHit: 81},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tag, next, err := Classify(c.rules, c.state, c.rarity, c.item)
			if err != nil {
				t.Fatal(err)
			}
			if tag != c.tag {
				t.Fatalf("tag: got %q want %q", tag, c.tag)
			}
			if next != c.want {
				t.Fatalf("state: got %+v want %+v", next, c.want)
			}
		})
	}
}

func TestClassifyRejectsBadInput(t *testing.T) {
	r := scenarioRules()
	if _, _, err := Classify(r, PityState{PullsSinceTopRarity: -1}, RarityOther, ""); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("negative pity: got %v", err)
	}
	if _, _, err := Classify(r, PityState{PullsSinceTopRarity: 81}, RarityOther, ""); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("pity beyond cap: got %v", err)
	}
	if _, _, err := Classify(r, PityState{}, Rarity(9), ""); !errors.Is(err, ErrRarity) {
		t.Fatalf("bad rarity: got %v", err)
	}
	r.HardPityCap = 0
	if _, _, err := Classify(r, PityState{}, RarityOther, ""); !errors.Is(err, ErrRuleSet) {
		t.Fatalf("bad rules: got %v", err)
	}
}

func TestClassifyOffBannerThenGuaranteed(t *testing.T) {
	r := scenarioRules()
	tag, s, err := Classify(r, PityState{}, RarityTop, "other")
	if err != nil || tag != TagOffBanner {
		t.Fatalf("first hit: tag=%q err=%v", tag, err)
	}
	for i := 0; i < 30; i++ {
		if _, s, err = Classify(r, s, RarityOther, ""); err != nil {
			t.Fatal(err)
		}
	}
	tag, s, err = Classify(r, s, RarityTop, "other")
	if err != nil {
		t.Fatal(err)
	}
	if tag != TagGuaranteed {
		t.Fatalf("hit after an off-banner inside the window must be guaranteed, got %q", tag)
	}
	if s.GuaranteeArmed || s.RateUpHitCount != 1 || s.TopRarityCount != 2 {
		t.Fatalf("unexpected state %+v", s)
	}
}
