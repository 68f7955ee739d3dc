package game

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/xtding233/gacha-ledger/internal/gacha"
	"github.com/xtding233/gacha-ledger/internal/token"
)

// Paths helper for default/banner type/pool files.
type Paths struct {
	BaseDir string // rules directory, e.g., /opt/app/rules
}

func (p Paths) DefaultPath() string {
	return filepath.Join(p.BaseDir, "default.yaml")
}
func (p Paths) TypePath(bannerType string) string {
	return filepath.Join(p.BaseDir, bannerType+".yaml")
}
func (p Paths) PoolPath(bannerType, pool string) string {
	return filepath.Join(p.BaseDir, bannerType, "pools", pool+".yaml")
}

// Loader reads YAML configs and merges default → banner type → pool.
// A banner type without its own file has no rules.
type Loader struct {
	paths Paths

	mu    sync.RWMutex
	cache map[string]RawConfig // key: "type" or "type/pool"
	gen   uint64               // bumped by Invalidate
}

// NewLoader creates a config loader with the given rules directory.
func NewLoader(baseDir string) *Loader {
	return &Loader{
		paths: Paths{BaseDir: baseDir},
		cache: make(map[string]RawConfig),
	}
}

// Dir is the rules directory.
func (l *Loader) Dir() string { return l.paths.BaseDir }

// LoadMerged loads and merges default → type → pool (pool optional).
// It returns the merged RawConfig (without normalization).
func (l *Loader) LoadMerged(bannerType, pool string) (RawConfig, error) {
	if !validName(bannerType) || (pool != "" && !validName(pool)) {
		return RawConfig{}, fmt.Errorf("%w: bad banner type %q or pool %q", ErrNoRules, bannerType, pool)
	}
	key := bannerType
	if pool != "" {
		key += "/" + pool
	}
	l.mu.RLock()
	if cfg, ok := l.cache[key]; ok {
		l.mu.RUnlock()
		return cfg, nil
	}
	gen := l.gen
	l.mu.RUnlock()

	defCfg, _, err := readYAML(l.paths.DefaultPath()) // default file optional
	if err != nil {
		return RawConfig{}, fmt.Errorf("read default: %w", err)
	}
	typeCfg, found, err := readYAML(l.paths.TypePath(bannerType))
	if err != nil {
		return RawConfig{}, fmt.Errorf("read %s: %w", bannerType, err)
	}
	if !found {
		return RawConfig{}, fmt.Errorf("%w for banner type %q", ErrNoRules, bannerType)
	}
	var poolCfg RawConfig
	if pool != "" {
		poolCfg, _, err = readYAML(l.paths.PoolPath(bannerType, pool)) // pool file optional
		if err != nil {
			return RawConfig{}, fmt.Errorf("read %s/%s: %w", bannerType, pool, err)
		}
	}

	// Merge: default <- type <- pool
	merged := mergeRaw(mergeRaw(defCfg, typeCfg), poolCfg)
	if err := ValidateRaw(merged); err != nil {
		return RawConfig{}, fmt.Errorf("%s: %w", key, err)
	}

	l.store(key, gen, merged)
	return merged, nil
}

// store caches cfg unless an Invalidate ran since the files were read at gen.
func (l *Loader) store(key string, gen uint64, cfg RawConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gen == gen {
		l.cache[key] = cfg
	}
}

// Rules resolves the rule set of a banner type, narrowed to pool when given.
func (l *Loader) Rules(_ context.Context, bannerType, pool string) (gacha.BannerRuleSet, error) {
	raw, err := l.LoadMerged(bannerType, pool)
	if err != nil {
		return gacha.BannerRuleSet{}, err
	}
	return Resolve(bannerType, raw)
}

// Costs returns the pull price of a pool. A pool without a tokens block costs nothing.
func (l *Loader) Costs(bannerType, pool string) (token.Token, error) {
	raw, err := l.LoadMerged(bannerType, pool)
	if err != nil {
		return token.Token{}, err
	}
	return ResolveTokens(raw), nil
}

// Invalidate clears loader's cache. Call after hot-reload detects changes.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[string]RawConfig)
	l.gen++
}

// readYAML loads a YAML file into RawConfig. Missing files return zero cfg, no error.
func readYAML(path string) (RawConfig, bool, error) {
	var cfg RawConfig
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return RawConfig{}, false, nil
		}
		return RawConfig{}, false, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return RawConfig{}, true, err
	}
	return cfg, true, nil
}

func validName(s string) bool {
	return s != "" && !strings.ContainsAny(s, `/\.`)
}

// mergeRaw performs a deep merge: 'b' overrides 'a' where non-zero/non-nil.
// For slices (e.g., RateUpItems), 'b' replaces 'a' if provided.
func mergeRaw(a, b RawConfig) RawConfig {
	out := a

	// top-level scalars
	if b.Version != "" {
		out.Version = b.Version
	}
	if b.Notes != "" {
		out.Notes = b.Notes
	}

	// draw
	if b.Draw.PBase != nil {
		out.Draw.PBase = b.Draw.PBase
	}
	if b.Draw.Pity != nil {
		out.Draw.Pity = b.Draw.Pity
	}
	if b.Draw.SecondTier != nil {
		out.Draw.SecondTier = b.Draw.SecondTier
	}
	// soft
	switch {
	case out.Draw.Soft == nil && b.Draw.Soft != nil:
		softCopy := *b.Draw.Soft
		out.Draw.Soft = &softCopy
	case out.Draw.Soft != nil && b.Draw.Soft != nil:
		softCopy := *out.Draw.Soft
		if b.Draw.Soft.Mode != "" {
			softCopy.Mode = b.Draw.Soft.Mode
		}
		if b.Draw.Soft.StartAt != nil {
			softCopy.StartAt = b.Draw.Soft.StartAt
		}
		if b.Draw.Soft.Target != nil {
			softCopy.Target = b.Draw.Soft.Target
		}
		if b.Draw.Soft.Increment != nil {
			softCopy.Increment = b.Draw.Soft.Increment
		}
		if b.Draw.Soft.Easing != "" {
			softCopy.Easing = b.Draw.Soft.Easing
		}
		out.Draw.Soft = &softCopy
	}

	// banner
	switch {
	case out.Banner == nil && b.Banner != nil:
		c := *b.Banner
		out.Banner = &c
	case out.Banner != nil && b.Banner != nil:
		c := *out.Banner
		if b.Banner.RateUp != nil {
			c.RateUp = b.Banner.RateUp
		}
		if b.Banner.Window != nil {
			c.Window = b.Banner.Window
		}
		if len(b.Banner.RateUpItems) > 0 {
			c.RateUpItems = append([]string(nil), b.Banner.RateUpItems...)
		}
		out.Banner = &c
	}

	// tokens
	switch {
	case out.Tokens == nil && b.Tokens != nil:
		c := *b.Tokens
		out.Tokens = &c
	case out.Tokens != nil && b.Tokens != nil:
		c := *out.Tokens
		if b.Tokens.Name != "" {
			c.Name = b.Tokens.Name
		}
		if b.Tokens.PerDraw != nil {
			c.PerDraw = b.Tokens.PerDraw
		}
		if b.Tokens.PerTenDraw != nil {
			c.PerTenDraw = b.Tokens.PerTenDraw
		}
		if b.Tokens.PerNDraw != nil {
			c.PerNDraw = b.Tokens.PerNDraw
			c.N = b.Tokens.N
		}
		out.Tokens = &c
	}

	return out
}
