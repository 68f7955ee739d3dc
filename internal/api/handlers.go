package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	perr "github.com/xtding233/gacha-ledger/internal/errors"
	"github.com/xtding233/gacha-ledger/internal/gacha"
	"github.com/xtding233/gacha-ledger/internal/refresh"
	"github.com/xtding233/gacha-ledger/internal/service"
	"github.com/xtding233/gacha-ledger/internal/session"
)

var (
	errNoLedger     = perr.New(perr.ErrorCodeUnavailable, "no ledger configured")
	errSyncRunning  = perr.New(perr.ErrorCodeConflict, "sync already in progress")
	errSyncTimedOut = perr.New(perr.ErrorCodeUnavailable, "sync did not finish in time")
)

func parseInt(r *http.Request, key string) (int, bool, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false, perr.InvalidArgf("invalid %s", key)
	}
	return v, true, nil
}

func parseBool(r *http.Request, key string, def bool) (bool, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, perr.InvalidArgf("invalid %s", key)
	}
	return v, nil
}

// splitList reads a comma separated query value, dropping blanks
func splitList(r *http.Request, key string) []string {
	var out []string
	for _, v := range strings.Split(r.URL.Query().Get(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// POST /simulate/{type}?scope=&count=1|10&featured=a,b
func (h *Handler) simulate(w http.ResponseWriter, r *http.Request) {
	count, ok, err := parseInt(r, "count")
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	if !ok {
		count = 1
	}
	res, err := h.sim.Simulate(r.Context(), service.SimulateRequest{
		Scope:      r.URL.Query().Get("scope"),
		BannerType: chi.URLParam(r, "type"),
		Count:      count,
		Featured:   splitList(r, "featured"),
	})
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	respond(w, r, http.StatusOK, res)
}

func sessionKey(r *http.Request) session.Key {
	return session.Key{Scope: chi.URLParam(r, "scope"), BannerType: chi.URLParam(r, "type")}
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sim.Session(r.Context(), sessionKey(r))
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	respond(w, r, http.StatusOK, sess)
}

func (h *Handler) resetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sim.Reset(r.Context(), sessionKey(r))
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	respond(w, r, http.StatusOK, sess)
}

// GET /estimate/{type}?goal=&trials=&budget=&pity=&armed=
func (h *Handler) estimate(w http.ResponseWriter, r *http.Request) {
	req := service.EstimateRequest{
		BannerType: chi.URLParam(r, "type"),
		Goal:       gacha.TrialGoal(r.URL.Query().Get("goal")),
	}
	switch req.Goal {
	case "", gacha.GoalFirstHit, gacha.GoalFirstRateUp, gacha.GoalFixedBudget:
	default:
		respondError(w, r, perr.InvalidArgf("unknown goal %q", req.Goal), nil)
		return
	}

	var err error
	if req.Trials, _, err = parseInt(r, "trials"); err != nil {
		respondError(w, r, err, nil)
		return
	}
	if req.Budget, _, err = parseInt(r, "budget"); err != nil {
		respondError(w, r, err, nil)
		return
	}
	if req.Start.PullsSinceTopRarity, _, err = parseInt(r, "pity"); err != nil {
		respondError(w, r, err, nil)
		return
	}
	req.Start.PullsSinceGuaranteedHit = req.Start.PullsSinceTopRarity
	if req.Start.GuaranteeArmed, err = parseBool(r, "armed", false); err != nil {
		respondError(w, r, err, nil)
		return
	}

	st, err := h.sim.Estimate(r.Context(), req)
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	respond(w, r, http.StatusOK, st)
}

type rulesResp struct {
	Rules              gacha.BannerRuleSet `json:"rules"`
	Pity               *int                `json:"pity,omitempty"`
	Probability        *float64            `json:"probability,omitempty"`
	PullsUntilHardPity *int                `json:"pullsUntilHardPity,omitempty"`
}

// GET /rules/{type}?pity=N adds the top-rarity chance of the next pull at N
func (h *Handler) rules(w http.ResponseWriter, r *http.Request) {
	rs, err := h.sim.Rules(r.Context(), chi.URLParam(r, "type"))
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	pity, ok, err := parseInt(r, "pity")
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	out := rulesResp{Rules: rs}
	if ok {
		st := gacha.PityState{PullsSinceTopRarity: pity}
		if err := st.Validate(rs.HardPityCap); err != nil {
			respondError(w, r, perr.Wrap(err, perr.ErrorCodeInvalidArgument, "pity"), nil)
			return
		}
		p, err := rs.TopRarityProbability(pity)
		if err != nil {
			respondError(w, r, perr.Wrap(err, perr.ErrorCodeInvalidArgument, "pity"), nil)
			return
		}
		left := st.PullsUntilHardPity(rs)
		out.Pity, out.Probability, out.PullsUntilHardPity = &pity, &p, &left
	}
	respond(w, r, http.StatusOK, out)
}

// GET /history/{scope}/{type}?pulls=true
func (h *Handler) historyReport(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		respondError(w, r, errNoLedger, nil)
		return
	}
	withPulls, err := parseBool(r, "pulls", false)
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	rep, err := h.history.Report(r.Context(), chi.URLParam(r, "scope"), chi.URLParam(r, "type"), withPulls)
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	respond(w, r, http.StatusOK, rep)
}

// GET /stats/{scope} passes the ledger service's own aggregate through
func (h *Handler) remoteStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		respondError(w, r, errNoLedger, nil)
		return
	}
	st, err := h.stats.FetchStats(r.Context(), chi.URLParam(r, "scope"))
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	respond(w, r, http.StatusOK, st)
}

// POST /refresh/{scope}?account=&wait=true&resume=false
//
// Without wait the job is only requested (202). A conflict answers 409 with the
// running job; an ambiguous scope answers 428 with the accounts to choose from.
func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	if h.coord == nil {
		respondError(w, r, errNoLedger, nil)
		return
	}
	wait, err := parseBool(r, "wait", true)
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	resume, err := parseBool(r, "resume", false)
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	scope := chi.URLParam(r, "scope")
	account := r.URL.Query().Get("account")

	var job refresh.Job
	if wait {
		job, err = h.coord.Refresh(r.Context(), scope, account, resume, nil)
	} else {
		job, err = h.request(r, scope, account)
	}
	var amb *refresh.AmbiguousAccountError
	switch {
	case errors.As(err, &amb):
		respondError(w, r, err, amb.Accounts)
		return
	case err != nil:
		respondError(w, r, err, nil)
		return
	}
	if h.scopes != nil {
		if err := h.scopes.TouchScope(r.Context(), scope); err != nil {
			h.log.Warn().Err(err).Str("scope", scope).Msg("record scope")
		}
	}

	switch job.State {
	case refresh.StateConflict:
		respondError(w, r, errSyncRunning, job)
	case refresh.StateTimedOut:
		respondError(w, r, errSyncTimedOut, job)
	case refresh.StateSyncing:
		respond(w, r, http.StatusAccepted, job)
	default:
		respond(w, r, http.StatusOK, job)
	}
}

func (h *Handler) request(r *http.Request, scope, account string) (refresh.Job, error) {
	acct, err := h.coord.SelectAccount(r.Context(), scope, account)
	if err != nil {
		return refresh.Job{}, err
	}
	return h.coord.Request(r.Context(), scope, acct.ID)
}
