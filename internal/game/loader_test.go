package game

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtding233/gacha-ledger/internal/gacha"
)

const defaultYAML = `
version: "1"
draw:
  p_base: 0.006
  pity: 90
  second_tier: 0.051
  soft:
    mode: per_draw_increment
    start_at: 74
    increment: 0.06
tokens:
  name: Jade
  per_draw: 160
`

const characterYAML = `
draw:
  p_base: 0.008
  pity: 80
  soft:
    start_at: 65
    increment: 0.05
banner:
  rate_up: true
  rate_up_items: [alice]
`

const poolYAML = `
banner:
  rate_up_items: [bob, carol]
tokens:
  per_ten_draw: 1500
`

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func rulesDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "default.yaml"), defaultYAML)
	writeFile(t, filepath.Join(dir, "character.yaml"), characterYAML)
	writeFile(t, filepath.Join(dir, "character", "pools", "spring.yaml"), poolYAML)
	return dir
}

func TestLoaderMergesLayers(t *testing.T) {
	l := NewLoader(rulesDir(t))

	r, err := l.Rules(context.Background(), "character", "")
	require.NoError(t, err)
	assert.Equal(t, "character", r.BannerType)
	assert.InDelta(t, 0.008, r.BaseProbability, 1e-12)
	assert.Equal(t, 80, r.HardPityCap)
	assert.Equal(t, 65, r.SoftPityStart)
	assert.InDelta(t, 0.05, r.SoftPityIncrement, 1e-12)
	assert.InDelta(t, 0.051, r.SecondTierProbability, 1e-12) // from default
	assert.True(t, r.HasRateUp)
	assert.Equal(t, gacha.Window{From: 1, To: 80}, r.GuaranteeWindow)
	assert.Equal(t, []string{"alice"}, r.RateUpItems)

	p, err := l.Rules(context.Background(), "character", "spring")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol"}, p.RateUpItems)
	assert.Equal(t, 80, p.HardPityCap)
}

func TestLoaderFailsClosedWithoutTypeFile(t *testing.T) {
	l := NewLoader(rulesDir(t))

	_, err := l.Rules(context.Background(), "weapon", "")
	assert.ErrorIs(t, err, ErrNoRules)

	_, err = l.Rules(context.Background(), "../character", "")
	assert.ErrorIs(t, err, ErrNoRules)
}

func TestLoaderCosts(t *testing.T) {
	l := NewLoader(rulesDir(t))

	base, err := l.Costs("character", "")
	require.NoError(t, err)
	assert.Equal(t, "Jade", base.Name)
	assert.Equal(t, 160, base.PerDraw)
	assert.Equal(t, 0, base.PerTenDraw)

	pool, err := l.Costs("character", "spring")
	require.NoError(t, err)
	assert.Equal(t, 160, pool.PerDraw)
	assert.Equal(t, 1500, pool.PerTenDraw)
	assert.Equal(t, 1500+160, pool.TokensForDraws(11))
}

func TestLoaderInvalidate(t *testing.T) {
	dir := rulesDir(t)
	l := NewLoader(dir)

	r, err := l.Rules(context.Background(), "character", "")
	require.NoError(t, err)
	assert.Equal(t, 80, r.HardPityCap)

	writeFile(t, filepath.Join(dir, "character.yaml"), `
draw:
  p_base: 0.008
  pity: 85
`)
	r, err = l.Rules(context.Background(), "character", "")
	require.NoError(t, err)
	assert.Equal(t, 80, r.HardPityCap, "cached until invalidated")

	l.Invalidate()
	r, err = l.Rules(context.Background(), "character", "")
	require.NoError(t, err)
	assert.Equal(t, 85, r.HardPityCap)
	assert.Equal(t, 74, r.SoftPityStart, "start_at comes from default")
}

func TestLoaderDropsLoadStartedBeforeInvalidate(t *testing.T) {
	dir := rulesDir(t)
	l := NewLoader(dir)

	stale, err := l.LoadMerged("character", "")
	require.NoError(t, err)
	l.Invalidate()

	// a load that read the files before the reload finishes after it
	l.mu.RLock()
	gen := l.gen
	l.mu.RUnlock()
	writeFile(t, filepath.Join(dir, "character.yaml"), `
draw:
  p_base: 0.008
  pity: 85
`)
	l.Invalidate()
	l.store("character", gen, stale)

	l.mu.RLock()
	_, cached := l.cache["character"]
	l.mu.RUnlock()
	assert.False(t, cached, "stale result must not be cached")

	r, err := l.Rules(context.Background(), "character", "")
	require.NoError(t, err)
	assert.Equal(t, 85, r.HardPityCap)

	l.store("character", gen, stale)
	r, err = l.Rules(context.Background(), "character", "")
	require.NoError(t, err)
	assert.Equal(t, 85, r.HardPityCap, "fresh entry is not overwritten")
}

func TestLoaderRejectsInvalidFile(t *testing.T) {
	dir := rulesDir(t)
	writeFile(t, filepath.Join(dir, "weapon.yaml"), `
draw:
  p_base: 1.5
  pity: 0
`)
	_, err := NewLoader(dir).Rules(context.Background(), "weapon", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "draw.pity must be >= 1")
	assert.Contains(t, err.Error(), "draw.p_base must be in (0,1]")
}

func TestValidateRaw(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	i := func(v int) *int { return &v }

	assert.NoError(t, ValidateRaw(RawConfig{}))

	err := ValidateRaw(RawConfig{Draw: DrawConfig{
		Pity: i(80),
		Soft: &SoftCfg{Mode: SoftTargetRamp, StartAt: i(90)},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "draw.soft.target is required")
	assert.Contains(t, err.Error(), "start_at <= pity")

	err = ValidateRaw(RawConfig{
		Draw:   DrawConfig{SecondTier: f(1)},
		Banner: &BannerConfig{Window: &WindowCfg{From: 5, To: 2}},
		Tokens: &TokenConfig{PerDraw: i(-1), PerNDraw: i(10)},
	})
	require.Error(t, err)
	for _, want := range []string{"second_tier", "guarantee_window", "tokens.per_draw", "tokens.n"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestResolveTargetRamp(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	i := func(v int) *int { return &v }

	r, err := Resolve("limited", RawConfig{Draw: DrawConfig{
		PBase: f(0.006),
		Pity:  i(90),
		Soft:  &SoftCfg{Mode: SoftTargetRamp, StartAt: i(74), Target: f(0.5), Easing: "easeOutQuad"},
	}})
	require.NoError(t, err)
	require.NotNil(t, r.Ramp)
	assert.Equal(t, gacha.EaseOutQuad, r.Ramp.Easing)
	assert.False(t, r.HasRateUp)

	_, err = Resolve("limited", RawConfig{})
	assert.ErrorIs(t, err, gacha.ErrRuleSet)
}

type failingSource struct{ err error }

func (f failingSource) Rules(context.Context, string, string) (gacha.BannerRuleSet, error) {
	return gacha.BannerRuleSet{}, f.err
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	l := NewLoader(rulesDir(t))

	chain := Chain{l, Builtin()}
	r, err := chain.Rules(ctx, "character", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, r.RateUpItems, "file wins over builtin")

	r, err = chain.Rules(ctx, "weapon", "")
	require.NoError(t, err)
	assert.Equal(t, 40, r.HardPityCap, "falls back to builtin")

	_, err = chain.Rules(ctx, "mystery", "")
	assert.ErrorIs(t, err, ErrNoRules)

	boom := errors.New("ledger down")
	_, err = Chain{failingSource{boom}, Builtin()}.Rules(ctx, "weapon", "")
	assert.ErrorIs(t, err, boom, "non-absence errors stop the chain")

	_, err = Chain{failingSource{ErrNoRules}, Static{}}.Rules(ctx, "weapon", "")
	assert.ErrorIs(t, err, ErrNoRules)
}

func TestBuiltinServesCopies(t *testing.T) {
	ctx := context.Background()
	src := Builtin()
	for _, bt := range []string{"character", "weapon", "standard"} {
		r, err := src.Rules(ctx, bt, "any-pool")
		require.NoError(t, err, bt)
		assert.NoError(t, r.Validate(), bt)
	}

	r, err := src.Rules(ctx, "character", "")
	require.NoError(t, err)
	r.RateUpItems[0] = "mutated"
	again, err := Builtin().Rules(ctx, "character", "")
	require.NoError(t, err)
	assert.Equal(t, []string{gacha.PlaceholderFeatured}, again.RateUpItems)
}
