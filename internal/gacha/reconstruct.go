package gacha

import (
	"cmp"
	"fmt"
	"slices"
)

// FreePullPolicy decides how free pulls interact with paid pity.
type FreePullPolicy string

const (
	// FreePullsSeparate tracks free pulls of a pool in their own lineage; paid pity
	// neither advances nor resets on them.
	FreePullsSeparate FreePullPolicy = "separate"
	// FreePullsShared replays free pulls in the paid lineage of their pool.
	FreePullsShared FreePullPolicy = "shared"
)

// Lineage identifies one independent pity track.
type Lineage struct {
	PoolID string `json:"poolId"`
	Free   bool   `json:"free,omitempty"`
}

// AnnotatedPull is a ledger record with the classification replayed onto it.
type AnnotatedPull struct {
	PullRecord
	Tag     Tag     `json:"tag,omitempty"`
	Pity    int     `json:"pity"` // position since the previous top-rarity draw in its lineage
	Lineage Lineage `json:"lineage"`
}

// HitBar is one top-rarity draw with the number of pulls it took.
type HitBar struct {
	Seq      int64  `json:"seq"`
	ItemID   string `json:"itemId,omitempty"`
	ItemName string `json:"itemName,omitempty"`
	Tag      Tag    `json:"tag,omitempty"`
	Pulls    int    `json:"pulls"`
}

// LineageSummary is the replay result of one lineage.
type LineageSummary struct {
	Lineage  Lineage   `json:"lineage"`
	PoolName string    `json:"poolName,omitempty"`
	State    PityState `json:"state"`
	Hits     []HitBar  `json:"hits"`
	Pending  int       `json:"pending"` // pulls since the last top-rarity draw
	Pulls    int       `json:"pulls"`
}

// Reconstruction is the output of Reconstruct.
type Reconstruction struct {
	Pulls    []AnnotatedPull  `json:"pulls"`    // ascending Seq
	Lineages []LineageSummary `json:"lineages"` // in order of first appearance
}

// ReconstructOptions tunes the replay.
type ReconstructOptions struct {
	FreePulls FreePullPolicy
	// RateUpByPool overrides the rule set's featured items for individual pools.
	RateUpByPool map[string][]string
}

// State returns the final pity state of l, or the zero state when l never appeared.
func (r Reconstruction) State(l Lineage) PityState {
	for _, ls := range r.Lineages {
		if ls.Lineage == l {
			return ls.State
		}
	}
	return PityState{}
}

// Reconstruct replays an unannotated ledger through the classifier.
// Records are processed in ascending Seq; every pool (and, under FreePullsSeparate, the free
// pulls of every pool) starts from the zero state. Missing item identities count as
// off-banner on a top-rarity draw. An empty ledger yields an empty Reconstruction.
func Reconstruct(rules BannerRuleSet, records []PullRecord, opts ReconstructOptions) (Reconstruction, error) {
	if err := rules.Validate(); err != nil {
		return Reconstruction{}, err
	}
	switch opts.FreePulls {
	case "":
		opts.FreePulls = FreePullsSeparate
	case FreePullsSeparate, FreePullsShared:
	default:
		return Reconstruction{}, fmt.Errorf("unknown free pull policy %q", opts.FreePulls)
	}

	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b PullRecord) int { return cmp.Compare(a.Seq, b.Seq) })

	out := Reconstruction{Pulls: make([]AnnotatedPull, 0, len(sorted))}
	index := map[Lineage]int{}
	poolRules := map[string]BannerRuleSet{}

	for _, rec := range sorted {
		if !rec.Rarity.valid() {
			return Reconstruction{}, fmt.Errorf("%w: record %d has rarity %d", ErrRarity, rec.Seq, int(rec.Rarity))
		}
		l := Lineage{PoolID: rec.PoolID, Free: rec.Free && opts.FreePulls == FreePullsSeparate}
		i, ok := index[l]
		if !ok {
			i = len(out.Lineages)
			index[l] = i
			out.Lineages = append(out.Lineages, LineageSummary{Lineage: l, PoolName: rec.PoolName, Hits: []HitBar{}})
		}
		pr, ok := poolRules[rec.PoolID]
		if !ok {
			pr = rules
			if items, found := opts.RateUpByPool[rec.PoolID]; found {
				pr = rules.WithRateUp(items)
			}
			poolRules[rec.PoolID] = pr
		}

		ls := &out.Lineages[i]
		pity := ls.State.PullsSinceTopRarity + 1
		tag, next := classify(pr, ls.State, rec.Rarity, rec.ItemID)
		ls.State = next
		ls.Pulls++
		if rec.Rarity == RarityTop {
			ls.Hits = append(ls.Hits, HitBar{Seq: rec.Seq, ItemID: rec.ItemID, ItemName: rec.ItemName, Tag: tag, Pulls: pity})
			ls.Pending = 0
		} else {
			ls.Pending++
		}
		out.Pulls = append(out.Pulls, AnnotatedPull{PullRecord: rec, Tag: tag, Pity: pity, Lineage: l})
	}
	return out, nil
}
