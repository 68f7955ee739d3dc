package service

import (
	"context"
	"slices"

	"github.com/xtding233/gacha-ledger/internal/gacha"
	"github.com/xtding233/gacha-ledger/internal/game"
	"github.com/xtding233/gacha-ledger/internal/ledger"
	"github.com/xtding233/gacha-ledger/internal/logger"
	"github.com/xtding233/gacha-ledger/internal/token"
)

// LedgerSource fetches the pull history of a scope. The pool filter is the banner
// type; sub-pools of a type come back mixed and are split by PoolID.
type LedgerSource interface {
	FetchLedger(ctx context.Context, scope, pool string) (ledger.Ledger, error)
}

// CostSource prices the pulls of a pool.
type CostSource interface {
	Costs(bannerType, pool string) (token.Token, error)
}

// ScopeRecorder remembers scopes for the background sweep.
type ScopeRecorder interface {
	TouchScope(ctx context.Context, scope string) error
}

// History rebuilds pity and per-pool statistics from the remote ledger.
type History struct {
	ledger LedgerSource
	rules  game.RuleSource
	costs  CostSource
	scopes ScopeRecorder
	policy gacha.FreePullPolicy
	log    *logger.Logger
}

// HistoryOptions wires the optional collaborators of History.
type HistoryOptions struct {
	Costs     CostSource    // nil reports no token cost
	Scopes    ScopeRecorder // nil skips recording
	FreePulls gacha.FreePullPolicy
	Logger    *logger.Logger
}

func NewHistory(src LedgerSource, rules game.RuleSource, opts HistoryOptions) *History {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &History{
		ledger: src,
		rules:  rules,
		costs:  opts.Costs,
		scopes: opts.Scopes,
		policy: opts.FreePulls,
		log:    opts.Logger,
	}
}

// PoolReport is PoolStats plus what the pulls cost.
type PoolReport struct {
	gacha.PoolStats
	Currency     string `json:"currency,omitempty"`
	Spent        int    `json:"spent"`
	AvgCostLabel string `json:"avgCostLabel"`
	HitRateLabel string `json:"hitRateLabel"`
}

// Report is the display model of one scope's banner history.
type Report struct {
	Scope      string                 `json:"scope"`
	BannerType string                 `json:"bannerType"`
	Status     ledger.LedgerStatus    `json:"status"`
	Lineages   []gacha.LineageSummary `json:"lineages"`
	Pools      []PoolReport           `json:"pools"`
	Totals     gacha.PoolStats        `json:"totals"`
	Rejected   int                    `json:"rejected"`
	Pulls      []gacha.AnnotatedPull  `json:"pulls,omitempty"`
}

// Report fetches the ledger of scope for bannerType and replays it. An empty ledger
// is a report with LedgerEmpty status, not an error; a fetch failure is an error.
func (h *History) Report(ctx context.Context, scope, bannerType string, withPulls bool) (Report, error) {
	rules, err := resolveRules(ctx, h.rules, bannerType, "")
	if err != nil {
		return Report{}, err
	}
	l, err := h.ledger.FetchLedger(ctx, scope, bannerType)
	if err != nil {
		return Report{}, err
	}
	if h.scopes != nil {
		if err := h.scopes.TouchScope(ctx, scope); err != nil {
			h.log.Warn().Err(err).Str("scope", scope).Msg("record scope")
		}
	}

	rep := Report{
		Scope:      scope,
		BannerType: bannerType,
		Status:     l.Status,
		Lineages:   []gacha.LineageSummary{},
		Pools:      []PoolReport{},
		Rejected:   len(l.Rejected),
	}
	if l.Status == ledger.LedgerEmpty {
		return rep, nil
	}

	rec, err := gacha.Reconstruct(rules, l.Records, gacha.ReconstructOptions{
		FreePulls:    h.policy,
		RateUpByPool: h.poolRateUps(ctx, rules, l.Records),
	})
	if err != nil {
		return Report{}, err
	}
	stats := gacha.Aggregate(rules, rec.Pulls)

	rep.Lineages = rec.Lineages
	rep.Totals = gacha.Totals(stats)
	for _, st := range stats {
		pr := PoolReport{PoolStats: st, AvgCostLabel: st.AvgCostLabel(), HitRateLabel: st.HitRateLabel()}
		if !st.Free {
			if tok := h.price(bannerType, st.PoolID); !tok.IsZero() {
				pr.Currency = tok.Name
				pr.Spent = tok.TokensForDraws(st.Total)
			}
		}
		rep.Pools = append(rep.Pools, pr)
	}
	if withPulls {
		rep.Pulls = rec.Pulls
	}
	return rep, nil
}

// poolRateUps asks the rule source for pool-specific featured items.
func (h *History) poolRateUps(ctx context.Context, base gacha.BannerRuleSet, recs []gacha.PullRecord) map[string][]string {
	if !base.HasRateUp {
		return nil
	}
	out := map[string][]string{}
	for _, r := range recs {
		if _, done := out[r.PoolID]; done || r.PoolID == "" {
			continue
		}
		pr, err := h.rules.Rules(ctx, base.BannerType, r.PoolID)
		if err != nil || !pr.HasRateUp {
			out[r.PoolID] = base.RateUpItems
			continue
		}
		out[r.PoolID] = pr.RateUpItems
	}
	for id, items := range out {
		if slices.Equal(items, base.RateUpItems) {
			delete(out, id)
		}
	}
	return out
}

// price is the pool's price with unset fields taken from the banner type's price.
func (h *History) price(bannerType, pool string) token.Token {
	if h.costs == nil {
		return token.Token{}
	}
	base, err := h.costs.Costs(bannerType, "")
	if err != nil {
		h.log.Debug().Err(err).Str("type", bannerType).Msg("no banner price")
		base = token.Token{}
	}
	if pool == "" {
		return base
	}
	t, err := h.costs.Costs(bannerType, pool)
	if err != nil {
		h.log.Debug().Err(err).Str("pool", pool).Msg("no pool price")
		return base
	}
	return t.Merge(base)
}
