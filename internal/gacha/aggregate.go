package gacha

import "strconv"

// FreePool is the pseudo-pool collecting every free pull.
const FreePool = "free"

// PoolStats is the display summary of one pool.
type PoolStats struct {
	PoolID     string `json:"poolId"`
	PoolName   string `json:"poolName,omitempty"`
	Free       bool   `json:"free,omitempty"`
	Total      int    `json:"total"`
	TopRarity  int    `json:"topRarity"`
	SecondTier int    `json:"secondTier"`
	RateUpHits int    `json:"rateUpHits"`
	HasRateUp  bool   `json:"hasRateUp"`

	// AvgCostPerRateUp is Total/RateUpHits, nil when there were no rate-up hits.
	AvgCostPerRateUp *float64 `json:"avgCostPerRateUp"`
	// HitRate is RateUpHits/TopRarity on rate-up banners with at least one top draw.
	HitRate *float64 `json:"hitRate"`
}

// AvgCostLabel renders AvgCostPerRateUp, "-" when undefined.
func (s PoolStats) AvgCostLabel() string {
	if s.AvgCostPerRateUp == nil {
		return "-"
	}
	return strconv.FormatFloat(*s.AvgCostPerRateUp, 'f', 1, 64)
}

// HitRateLabel renders HitRate as a percentage, "-" when undefined.
func (s PoolStats) HitRateLabel() string {
	if s.HitRate == nil {
		return "-"
	}
	return strconv.FormatFloat(*s.HitRate*100, 'f', 1, 64) + "%"
}

// Aggregate groups annotated pulls by pool. Free pulls from every pool go to FreePool so
// paid economics are not diluted. Pools keep their order of first appearance, FreePool last.
func Aggregate(rules BannerRuleSet, pulls []AnnotatedPull) []PoolStats {
	var (
		order []string
		byID  = map[string]*PoolStats{}
		free  *PoolStats
	)
	for _, p := range pulls {
		var st *PoolStats
		if p.Free {
			if free == nil {
				free = &PoolStats{PoolID: FreePool, PoolName: FreePool, Free: true, HasRateUp: rules.HasRateUp}
			}
			st = free
		} else {
			st = byID[p.PoolID]
			if st == nil {
				st = &PoolStats{PoolID: p.PoolID, PoolName: p.PoolName, HasRateUp: rules.HasRateUp}
				byID[p.PoolID] = st
				order = append(order, p.PoolID)
			}
		}
		st.Total++
		switch p.Rarity {
		case RarityTop:
			st.TopRarity++
		case RaritySecond:
			st.SecondTier++
		}
		if p.Tag.IsRateUpHit() {
			st.RateUpHits++
		}
	}

	out := make([]PoolStats, 0, len(order)+1)
	for _, id := range order {
		out = append(out, finish(*byID[id]))
	}
	if free != nil {
		out = append(out, finish(*free))
	}
	return out
}

func finish(s PoolStats) PoolStats {
	if s.RateUpHits > 0 {
		v := float64(s.Total) / float64(s.RateUpHits)
		s.AvgCostPerRateUp = &v
	}
	if s.HasRateUp && s.TopRarity > 0 {
		v := float64(s.RateUpHits) / float64(s.TopRarity)
		s.HitRate = &v
	}
	return s
}

// Totals sums a set of pool stats into one overall row.
func Totals(stats []PoolStats) PoolStats {
	all := PoolStats{PoolID: "all"}
	for _, s := range stats {
		all.Total += s.Total
		all.TopRarity += s.TopRarity
		all.SecondTier += s.SecondTier
		all.RateUpHits += s.RateUpHits
		all.HasRateUp = all.HasRateUp || s.HasRateUp
	}
	return finish(all)
}
