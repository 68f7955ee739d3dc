package gacha

import (
	"math/rand/v2"
	"testing"
)

func TestReconstructMatchesSimulation(t *testing.T) {
	r := scenarioRules()
	e := NewEngine(testPool())
	rng := NewSeededRNG(77)

	var (
		s       PityState
		records []PullRecord
		seq     int64
		tags    []Tag
	)
	for batch := 0; batch < 60; batch++ {
		res, next, err := e.DrawTen(r, s, rng)
		if err != nil {
			t.Fatal(err)
		}
		for _, p := range res {
			seq++
			records = append(records, p.Record(seq, "sim"))
			tags = append(tags, p.Tag)
		}
		s = next
	}

	// the ledger may arrive in any order
	shuffled := append([]PullRecord(nil), records...)
	rand.New(rand.NewPCG(1, 2)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	got, err := Reconstruct(r, shuffled, ReconstructOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if final := got.State(Lineage{PoolID: "sim"}); final != s {
		t.Fatalf("reconstructed state %+v != simulated %+v", final, s)
	}
	for i, p := range got.Pulls {
		if p.Seq != int64(i+1) {
			t.Fatalf("pull %d out of order: seq %d", i, p.Seq)
		}
		if p.Tag != tags[i] {
			t.Fatalf("pull %d: tag %q want %q", i, p.Tag, tags[i])
		}
	}
}

func TestReconstructEmptyLedger(t *testing.T) {
	got, err := Reconstruct(scenarioRules(), nil, ReconstructOptions{})
	if err != nil {
		t.Fatalf("empty ledger must not error: %v", err)
	}
	if len(got.Pulls) != 0 || len(got.Lineages) != 0 {
		t.Fatalf("expected empty reconstruction, got %+v", got)
	}
	if s := got.State(Lineage{PoolID: "any"}); s != (PityState{}) {
		t.Fatalf("expected zero state, got %+v", s)
	}
	if stats := Aggregate(scenarioRules(), got.Pulls); len(stats) != 0 {
		t.Fatalf("expected no pool stats, got %+v", stats)
	}
}

func TestReconstructHitBars(t *testing.T) {
	r := scenarioRules()
	var recs []PullRecord
	add := func(rarity Rarity, item string) {
		recs = append(recs, PullRecord{Seq: int64(len(recs) + 1), Rarity: rarity, ItemID: item, PoolID: "p1", PoolName: "Pool One"})
	}
	for i := 0; i < 9; i++ {
		add(RarityOther, "c")
	}
	add(RarityTop, "") // 10th pull, unknown item
	for i := 0; i < 4; i++ {
		add(RaritySecond, "b")
	}
	add(RarityTop, "s1") // 5th pull after, armed -> guaranteed
	add(RarityOther, "c")
	add(RarityOther, "c")

	got, err := Reconstruct(r, recs, ReconstructOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Lineages) != 1 {
		t.Fatalf("expected one lineage, got %d", len(got.Lineages))
	}
	ls := got.Lineages[0]
	if ls.PoolName != "Pool One" || ls.Pulls != len(recs) {
		t.Fatalf("unexpected summary %+v", ls)
	}
	if len(ls.Hits) != 2 {
		t.Fatalf("expected two hits, got %+v", ls.Hits)
	}
	if ls.Hits[0].Pulls != 10 || ls.Hits[0].Tag != TagOffBanner {
		t.Fatalf("first hit: %+v", ls.Hits[0])
	}
	if ls.Hits[1].Pulls != 5 || ls.Hits[1].Tag != TagGuaranteed {
		t.Fatalf("second hit: %+v", ls.Hits[1])
	}
	if ls.Pending != 2 {
		t.Fatalf("pending: got %d want 2", ls.Pending)
	}
	want := PityState{PullsSinceTopRarity: 2, PullsSinceGuaranteedHit: 2, TopRarityCount: 2, SecondTierCount: 4, RateUpHitCount: 1}
	if ls.State != want {
		t.Fatalf("state: got %+v want %+v", ls.State, want)
	}
	if tags := tagsBySeq(got); tags[10] != TagOffBanner || tags[15] != TagGuaranteed || tags[1] != TagNone {
		t.Fatalf("unexpected tags %v", tags)
	}
}

func TestReconstructSeparatesPoolsAndFreePulls(t *testing.T) {
	r := scenarioRules()
	recs := []PullRecord{
		{Seq: 1, Rarity: RarityOther, PoolID: "a"},
		{Seq: 2, Rarity: RarityOther, PoolID: "b"},
		{Seq: 3, Rarity: RarityOther, PoolID: "a", Free: true},
		{Seq: 4, Rarity: RarityOther, PoolID: "a"},
		{Seq: 5, Rarity: RarityTop, ItemID: "up", PoolID: "a", Free: true},
	}

	sep, err := Reconstruct(r, recs, ReconstructOptions{FreePulls: FreePullsSeparate})
	if err != nil {
		t.Fatal(err)
	}
	if s := sep.State(Lineage{PoolID: "a"}); s.PullsSinceTopRarity != 2 || s.TopRarityCount != 0 {
		t.Fatalf("paid lineage of a: %+v", s)
	}
	if s := sep.State(Lineage{PoolID: "a", Free: true}); s.TopRarityCount != 1 || s.RateUpHitCount != 1 {
		t.Fatalf("free lineage of a: %+v", s)
	}
	if s := sep.State(Lineage{PoolID: "b"}); s.PullsSinceTopRarity != 1 {
		t.Fatalf("lineage b: %+v", s)
	}

	shared, err := Reconstruct(r, recs, ReconstructOptions{FreePulls: FreePullsShared})
	if err != nil {
		t.Fatal(err)
	}
	if s := shared.State(Lineage{PoolID: "a"}); s.PullsSinceTopRarity != 0 || s.TopRarityCount != 1 {
		t.Fatalf("shared lineage of a: %+v", s)
	}
	if len(shared.Lineages) != 2 {
		t.Fatalf("shared policy should produce two lineages, got %d", len(shared.Lineages))
	}

	if _, err := Reconstruct(r, recs, ReconstructOptions{FreePulls: "merge"}); err == nil {
		t.Fatalf("unknown policy must error")
	}
}

func TestReconstructRateUpByPool(t *testing.T) {
	r := scenarioRules()
	recs := []PullRecord{
		{Seq: 1, Rarity: RarityTop, ItemID: "limited", PoolID: "collab"},
		{Seq: 2, Rarity: RarityTop, ItemID: "limited", PoolID: "regular"},
	}
	got, err := Reconstruct(r, recs, ReconstructOptions{RateUpByPool: map[string][]string{"collab": {"limited"}}})
	if err != nil {
		t.Fatal(err)
	}
	if got.Pulls[0].Tag != TagRateUp || got.Pulls[1].Tag != TagOffBanner {
		t.Fatalf("got tags %q, %q", got.Pulls[0].Tag, got.Pulls[1].Tag)
	}
}

func tagsBySeq(r Reconstruction) map[int64]Tag {
	out := make(map[int64]Tag, len(r.Pulls))
	for _, p := range r.Pulls {
		out[p.Seq] = p.Tag
	}
	return out
}
