package gacha

import "time"

// PullRecord is one historical draw after the ledger parse step.
type PullRecord struct {
	Seq      int64     `json:"seq"`
	Rarity   Rarity    `json:"rarity"`
	ItemID   string    `json:"itemId,omitempty"`
	ItemName string    `json:"itemName,omitempty"`
	PoolID   string    `json:"poolId"`
	PoolName string    `json:"poolName,omitempty"`
	Free     bool      `json:"free,omitempty"` // granted outside the paid pull economy
	At       time.Time `json:"at"`
}

// Item is one concrete reward.
type Item struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ItemPicker chooses the concrete item for a rolled rarity.
// Featured is used when the draw is forced onto the rate-up item.
type ItemPicker interface {
	Pick(rarity Rarity, rules BannerRuleSet, rng RandomSource) Item
	Featured(rules BannerRuleSet, rng RandomSource) Item
}

// ItemPool picks uniformly inside a tier. For top rarity on a rate-up banner it first
// decides featured vs off-banner with RateUpShare (0.5 when unset).
type ItemPool struct {
	Top         []Item
	Second      []Item
	Other       []Item
	RateUpShare float64
}

func (p ItemPool) Pick(rarity Rarity, rules BannerRuleSet, rng RandomSource) Item {
	switch rarity {
	case RarityTop:
		if !rules.HasRateUp {
			return pickItem(p.Top, rng)
		}
		share := p.RateUpShare
		if share <= 0 || share > 1 {
			share = 0.5
		}
		if rng.Float64() < share {
			return p.Featured(rules, rng)
		}
		var off []Item
		for _, it := range p.Top {
			if !rules.IsRateUp(it.ID) {
				off = append(off, it)
			}
		}
		if len(off) == 0 {
			return Item{ID: "off-banner"}
		}
		return pickItem(off, rng)
	case RaritySecond:
		return pickItem(p.Second, rng)
	default:
		return pickItem(p.Other, rng)
	}
}

func (p ItemPool) Featured(rules BannerRuleSet, rng RandomSource) Item {
	var featured []Item
	for _, id := range rules.RateUpItems {
		featured = append(featured, p.lookup(id))
	}
	if len(featured) == 0 {
		return Item{}
	}
	return pickItem(featured, rng)
}

func (p ItemPool) lookup(id string) Item {
	for _, it := range p.Top {
		if it.ID == id {
			return it
		}
	}
	return Item{ID: id, Name: id}
}

func pickItem(items []Item, rng RandomSource) Item {
	if len(items) == 0 {
		return Item{}
	}
	return items[pickIndex(rng, len(items))]
}
