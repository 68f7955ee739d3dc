package gacha

import "fmt"

// PullResult is one simulated draw.
type PullResult struct {
	Index  int    `json:"index"` // 1-based within the call
	Rarity Rarity `json:"rarity"`
	Tag    Tag    `json:"tag,omitempty"`
	Item   Item   `json:"item"`
	Pity   int    `json:"pity"` // this draw's position since the previous top-rarity draw
}

// Record converts the result into a ledger entry so simulated runs can be replayed.
func (r PullResult) Record(seq int64, poolID string) PullRecord {
	return PullRecord{
		Seq:      seq,
		Rarity:   r.Rarity,
		ItemID:   r.Item.ID,
		ItemName: r.Item.Name,
		PoolID:   poolID,
	}
}

// Engine draws pulls. It holds no pity state; every call takes and returns one.
type Engine struct {
	Picker ItemPicker
}

// NewEngine builds an engine; a nil picker yields anonymous items with a 50/50 rate-up split.
func NewEngine(picker ItemPicker) *Engine {
	if picker == nil {
		picker = ItemPool{}
	}
	return &Engine{Picker: picker}
}

// DrawOne performs a single pull.
func (e *Engine) DrawOne(rules BannerRuleSet, state PityState, rng RandomSource) (PullResult, PityState, error) {
	res, next, err := e.DrawMany(rules, state, rng, 1)
	if err != nil {
		return PullResult{}, state, err
	}
	return res[0], next, nil
}

// DrawTen folds ten single pulls over the same threaded state.
func (e *Engine) DrawTen(rules BannerRuleSet, state PityState, rng RandomSource) ([10]PullResult, PityState, error) {
	var out [10]PullResult
	res, next, err := e.DrawMany(rules, state, rng, len(out))
	if err != nil {
		return out, state, err
	}
	copy(out[:], res)
	return out, next, nil
}

// DrawMany performs n pulls. On error the input state is returned untouched.
func (e *Engine) DrawMany(rules BannerRuleSet, state PityState, rng RandomSource, n int) ([]PullResult, PityState, error) {
	if n < 1 {
		return nil, state, fmt.Errorf("%w: pull count %d must be >= 1", ErrInvalidState, n)
	}
	if err := rules.Validate(); err != nil {
		return nil, state, err
	}
	if err := state.Validate(rules.HardPityCap); err != nil {
		return nil, state, err
	}
	if rng == nil {
		rng = DefaultRNG()
	}
	picker := e.Picker
	if picker == nil {
		picker = ItemPool{}
	}

	out := make([]PullResult, 0, n)
	cur := state
	for i := 1; i <= n; i++ {
		res, next, err := step(rules, cur, rng, picker)
		if err != nil {
			return nil, state, err
		}
		res.Index = i
		out = append(out, res)
		cur = next
	}
	return out, cur, nil
}

// step is one pure draw: roll top rarity on the pity curve, otherwise roll second tier,
// then pick the item and classify.
func step(rules BannerRuleSet, s PityState, rng RandomSource, picker ItemPicker) (PullResult, PityState, error) {
	p, err := rules.TopRarityProbability(s.PullsSinceTopRarity)
	if err != nil {
		return PullResult{}, s, err
	}
	top, err := Draw(p, rng)
	if err != nil {
		return PullResult{}, s, err
	}

	rarity := RarityOther
	var item Item
	switch {
	case top && rules.guaranteeDue(s):
		rarity = RarityTop
		item = picker.Featured(rules, rng)
		if !rules.IsRateUp(item.ID) {
			item = Item{ID: rules.FeaturedItem(), Name: rules.FeaturedItem()}
		}
	case top:
		rarity = RarityTop
		item = picker.Pick(rarity, rules, rng)
	default:
		second, err := Draw(rules.SecondTierProbability, rng)
		if err != nil {
			return PullResult{}, s, err
		}
		if second {
			rarity = RaritySecond
		}
		item = picker.Pick(rarity, rules, rng)
	}

	pity := s.PullsSinceTopRarity + 1
	tag, next := classify(rules, s, rarity, item.ID)
	return PullResult{Rarity: rarity, Tag: tag, Item: item, Pity: pity}, next, nil
}
