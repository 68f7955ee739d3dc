package gacha

import (
	"math"
	"testing"
)

func TestAggregateTotals(t *testing.T) {
	r := scenarioRules()
	e := NewEngine(testPool())
	rng := NewSeededRNG(11)

	var recs []PullRecord
	pools := []string{"alpha", "beta", "gamma"}
	state := map[string]PityState{}
	seq := int64(0)
	for i := 0; i < 900; i++ {
		pool := pools[i%len(pools)]
		res, next, err := e.DrawOne(r, state[pool], rng)
		if err != nil {
			t.Fatal(err)
		}
		state[pool] = next
		seq++
		rec := res.Record(seq, pool)
		rec.Free = i%17 == 0
		recs = append(recs, rec)
	}

	rc, err := Reconstruct(r, recs, ReconstructOptions{})
	if err != nil {
		t.Fatal(err)
	}
	stats := Aggregate(r, rc.Pulls)

	sum := 0
	for _, s := range stats {
		sum += s.Total
		if (s.AvgCostPerRateUp == nil) != (s.RateUpHits == 0) {
			t.Fatalf("pool %s: avg cost defined=%v with %d rate-up hits", s.PoolID, s.AvgCostPerRateUp != nil, s.RateUpHits)
		}
		if s.AvgCostPerRateUp != nil && math.Abs(*s.AvgCostPerRateUp-float64(s.Total)/float64(s.RateUpHits)) > 1e-9 {
			t.Fatalf("pool %s: avg cost %v", s.PoolID, *s.AvgCostPerRateUp)
		}
	}
	if sum != len(recs) {
		t.Fatalf("pool totals %d != records %d", sum, len(recs))
	}
	if last := stats[len(stats)-1]; last.PoolID != FreePool || !last.Free {
		t.Fatalf("free pseudo-pool must come last, got %+v", last)
	}
	if all := Totals(stats); all.Total != len(recs) {
		t.Fatalf("overall total %d", all.Total)
	}
}

func TestAggregateUndefinedCost(t *testing.T) {
	r := scenarioRules()
	pulls := []AnnotatedPull{
		{PullRecord: PullRecord{Seq: 1, Rarity: RarityOther, PoolID: "p"}},
		{PullRecord: PullRecord{Seq: 2, Rarity: RarityTop, PoolID: "p"}, Tag: TagOffBanner},
		{PullRecord: PullRecord{Seq: 3, Rarity: RarityTop, PoolID: "q"}, Tag: TagRateUp},
		{PullRecord: PullRecord{Seq: 4, Rarity: RaritySecond, PoolID: "q"}},
	}
	stats := Aggregate(r, pulls)
	if len(stats) != 2 {
		t.Fatalf("expected two pools, got %d", len(stats))
	}
	p, q := stats[0], stats[1]
	if p.AvgCostLabel() != "-" || p.RateUpHits != 0 {
		t.Fatalf("pool p: %+v label %q", p, p.AvgCostLabel())
	}
	if p.HitRate == nil || *p.HitRate != 0 {
		t.Fatalf("pool p hit rate should be 0")
	}
	if q.AvgCostLabel() != "2.0" || q.HitRateLabel() != "100.0%" || q.SecondTier != 1 {
		t.Fatalf("pool q: %+v", q)
	}

	plain, _ := BuiltinRules("standard")
	if s := Aggregate(plain, pulls[:2]); s[0].HitRate != nil {
		t.Fatalf("hit rate is undefined without a rate-up mechanic")
	}
}
