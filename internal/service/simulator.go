// Package service composes the engine with rule sources, the ledger and session storage.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	perr "github.com/xtding233/gacha-ledger/internal/errors"
	"github.com/xtding233/gacha-ledger/internal/gacha"
	"github.com/xtding233/gacha-ledger/internal/game"
	"github.com/xtding233/gacha-ledger/internal/logger"
	"github.com/xtding233/gacha-ledger/internal/session"
)

const (
	// saveAttempts bounds redraws after a version conflict
	saveAttempts = 3

	DefaultTrials = 10000
	MaxTrials     = 200000
)

// Simulator runs simulated pulls for a scope and keeps their pity between calls.
type Simulator struct {
	rules  game.RuleSource
	store  session.Store
	engine *gacha.Engine
	limit  int
	newRNG func() gacha.RandomSource
	now    func() time.Time
	log    *logger.Logger
}

// SimulatorOptions tunes a Simulator. Zero values take defaults.
type SimulatorOptions struct {
	DailyLimit int // simulate calls per (day, scope, banner type); 0 disables
	Picker     gacha.ItemPicker
	NewRNG     func() gacha.RandomSource
	Logger     *logger.Logger
}

func NewSimulator(rules game.RuleSource, store session.Store, opts SimulatorOptions) *Simulator {
	if opts.NewRNG == nil {
		opts.NewRNG = gacha.DefaultRNG
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Simulator{
		rules:  rules,
		store:  store,
		engine: gacha.NewEngine(opts.Picker),
		limit:  opts.DailyLimit,
		newRNG: opts.NewRNG,
		now:    time.Now,
		log:    opts.Logger,
	}
}

// SimulateRequest asks for Count (1 or 10) pulls.
type SimulateRequest struct {
	Scope      string
	BannerType string
	Count      int
	Featured   []string // overrides the rule set's rate-up items for this call
}

// SimulateResult is the outcome of one simulate call.
type SimulateResult struct {
	Pulls   []gacha.PullResult `json:"pulls"`
	Session session.Session    `json:"session"`
	Usage   int                `json:"usage"`
	Limit   int                `json:"limit,omitempty"`
}

// Simulate draws req.Count pulls from the stored pity state and saves the next state.
// A concurrent save for the same key makes it reload and redraw.
func (s *Simulator) Simulate(ctx context.Context, req SimulateRequest) (SimulateResult, error) {
	if req.Scope == "" {
		return SimulateResult{}, perr.InvalidArgf("scope is required")
	}
	if req.Count != 1 && req.Count != 10 {
		return SimulateResult{}, perr.InvalidArgf("count %d must be 1 or 10", req.Count)
	}
	rules, err := s.Rules(ctx, req.BannerType)
	if err != nil {
		return SimulateResult{}, err
	}
	if len(req.Featured) > 0 && rules.HasRateUp {
		rules = rules.WithRateUp(req.Featured)
	}

	key := session.Key{Scope: req.Scope, BannerType: req.BannerType}
	used, ok, err := s.store.IncrUsage(ctx, session.Day(s.now()), key, s.limit)
	if err != nil {
		return SimulateResult{}, fmt.Errorf("usage: %w", err)
	}
	if !ok {
		return SimulateResult{}, perr.Newf(perr.ErrorCodeTooManyRequests, "daily simulation limit %d reached for %s/%s", s.limit, req.Scope, req.BannerType)
	}

	rng := s.newRNG()
	for attempt := 1; attempt <= saveAttempts; attempt++ {
		sess, err := s.store.Load(ctx, key)
		if err != nil {
			return SimulateResult{}, fmt.Errorf("load session: %w", err)
		}
		if err := sess.State.Validate(rules.HardPityCap); err != nil {
			// rule changes can strand a stored state past the cap
			s.log.Warn().Err(err).Str("scope", req.Scope).Str("banner", req.BannerType).Msg("stored pity no longer valid, restarting")
			sess.State = gacha.PityState{}
		}

		pulls, next, err := s.engine.DrawMany(rules, sess.State, rng, req.Count)
		if err != nil {
			return SimulateResult{}, err
		}
		sess.State = next
		saved, err := s.store.Save(ctx, sess)
		if errors.Is(err, session.ErrVersionConflict) {
			s.log.Debug().Str("scope", req.Scope).Int("attempt", attempt).Msg("session changed underneath, redrawing")
			continue
		}
		if err != nil {
			return SimulateResult{}, fmt.Errorf("save session: %w", err)
		}
		return SimulateResult{Pulls: pulls, Session: saved, Usage: used, Limit: s.limit}, nil
	}
	return SimulateResult{}, perr.Wrapf(session.ErrVersionConflict, perr.ErrorCodeConflict,
		"session %s/%s kept changing", req.Scope, req.BannerType)
}

// Session returns the stored pity of a key without drawing.
func (s *Simulator) Session(ctx context.Context, key session.Key) (session.Session, error) {
	return s.store.Load(ctx, key)
}

// Reset clears the simulated pity of a key.
func (s *Simulator) Reset(ctx context.Context, key session.Key) (session.Session, error) {
	for attempt := 1; attempt <= saveAttempts; attempt++ {
		sess, err := s.store.Load(ctx, key)
		if err != nil {
			return session.Session{}, fmt.Errorf("load session: %w", err)
		}
		sess.State = gacha.PityState{}
		saved, err := s.store.Save(ctx, sess)
		if errors.Is(err, session.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return session.Session{}, fmt.Errorf("save session: %w", err)
		}
		return saved, nil
	}
	return session.Session{}, perr.Wrapf(session.ErrVersionConflict, perr.ErrorCodeConflict, "reset %s/%s", key.Scope, key.BannerType)
}

// EstimateRequest configures a Monte Carlo estimate.
type EstimateRequest struct {
	BannerType string
	Goal       gacha.TrialGoal
	Trials     int
	Budget     int
	Start      gacha.PityState
}

// Estimate runs RunMonteCarlo over the banner's rule set.
func (s *Simulator) Estimate(ctx context.Context, req EstimateRequest) (gacha.Stats, error) {
	if req.Trials == 0 {
		req.Trials = DefaultTrials
	}
	if req.Trials < 0 || req.Trials > MaxTrials {
		return gacha.Stats{}, perr.InvalidArgf("trials %d must be in 1..%d", req.Trials, MaxTrials)
	}
	if req.Goal == "" {
		req.Goal = gacha.GoalFirstHit
	}
	rules, err := s.Rules(ctx, req.BannerType)
	if err != nil {
		return gacha.Stats{}, err
	}
	st, err := gacha.RunMonteCarlo(s.engine, gacha.MonteCarlo{
		Rules:  rules,
		Start:  req.Start,
		Goal:   req.Goal,
		Trials: req.Trials,
		Budget: req.Budget,
	}, s.newRNG())
	if err != nil {
		return gacha.Stats{}, perr.Wrap(err, perr.ErrorCodeInvalidArgument, "estimate")
	}
	return st, nil
}

// Rules returns the resolved rule set of a banner type with the service error codes.
func (s *Simulator) Rules(ctx context.Context, bannerType string) (gacha.BannerRuleSet, error) {
	return resolveRules(ctx, s.rules, bannerType, "")
}

// resolveRules maps rule source failures onto error codes.
func resolveRules(ctx context.Context, src game.RuleSource, bannerType, pool string) (gacha.BannerRuleSet, error) {
	if bannerType == "" {
		return gacha.BannerRuleSet{}, perr.InvalidArgf("banner type is required")
	}
	r, err := src.Rules(ctx, bannerType, pool)
	switch {
	case err == nil:
		return r, nil
	case errors.Is(err, game.ErrNoRules):
		return gacha.BannerRuleSet{}, perr.Wrapf(err, perr.ErrorCodeNotFound, "rules for %s", bannerType)
	case errors.Is(err, gacha.ErrRuleSet):
		return gacha.BannerRuleSet{}, perr.Wrapf(err, perr.ErrorCodeValidation, "rules for %s", bannerType)
	default:
		return gacha.BannerRuleSet{}, err
	}
}
