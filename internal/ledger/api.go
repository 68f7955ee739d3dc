package ledger

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	perr "github.com/xtding233/gacha-ledger/internal/errors"
	"github.com/xtding233/gacha-ledger/internal/gacha"
	"github.com/xtding233/gacha-ledger/internal/game"
)

// Account is one game account behind a scope.
type Account struct {
	ID          string `json:"accountId"`
	DisplayName string `json:"displayName"`
}

// RefreshResult is the answer to a refresh request.
type RefreshResult string

const (
	RefreshStarted  RefreshResult = "started"
	RefreshConflict RefreshResult = "conflict"
)

// SyncStatus is one poll of a running refresh job.
type SyncStatus struct {
	Status       string  `json:"status"` // idle, syncing, completed, failed
	Progress     float64 `json:"progress,omitempty"`
	Stage        string  `json:"stage,omitempty"`
	RecordsFound int     `json:"recordsFound,omitempty"`
	Error        string  `json:"error,omitempty"`
	LedgerRef    string  `json:"ledgerRef,omitempty"`
}

// Page is one parsed ledger page.
type Page struct {
	Records  []gacha.PullRecord
	Rejected []Rejected
	Total    int
	Pages    int
}

// LedgerStatus tells "no data yet" apart from a ledger with records.
// Failures are reported through the error instead.
type LedgerStatus string

const (
	LedgerEmpty LedgerStatus = "empty"
	LedgerReady LedgerStatus = "ready"
)

// Ledger is a full pull history, ascending by Seq and free of duplicates.
type Ledger struct {
	Status   LedgerStatus
	Records  []gacha.PullRecord
	Rejected []Rejected
}

// Summary is the aggregate the service computes itself.
type Summary struct {
	Total      int `json:"total"`
	TopRarity  int `json:"topRarity"`
	SecondTier int `json:"secondTier"`
}

// PoolSummary is Summary for one pool.
type PoolSummary struct {
	PoolID   string `json:"poolId"`
	PoolName string `json:"poolName,omitempty"`
	Summary
}

// Stats is the reply of the stats endpoint.
type Stats struct {
	Stats     Summary       `json:"stats"`
	PoolStats []PoolSummary `json:"poolStats"`
}

// Accounts lists the game accounts bound to scope.
func (c *Client) Accounts(ctx context.Context, scope string) ([]Account, error) {
	var resp struct {
		Accounts []Account `json:"accounts"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/scopes/"+escape(scope)+"/accounts", nil, nil, &resp); err != nil {
		return nil, perr.WithOp(err, "ledger.accounts")
	}
	for _, a := range resp.Accounts {
		if a.ID == "" {
			return nil, perr.Newf(perr.ErrorCodeUnavailable, "accounts of %s: entry without accountId", scope)
		}
	}
	return resp.Accounts, nil
}

// RequestRefresh asks the service to start a refresh job. An already running job for
// the scope is reported as RefreshConflict, not as an error.
func (c *Client) RequestRefresh(ctx context.Context, scope, accountID string) (RefreshResult, error) {
	in := struct {
		Scope     string `json:"scope"`
		AccountID string `json:"accountId,omitempty"`
	}{scope, accountID}
	var resp struct {
		Status RefreshResult `json:"status"`
	}
	status, err := c.do(ctx, http.MethodPost, "/api/v1/sync", nil, in, &resp)
	if status == http.StatusConflict {
		return RefreshConflict, nil
	}
	if err != nil {
		return "", perr.WithOp(err, "ledger.refresh")
	}
	switch resp.Status {
	case RefreshStarted, RefreshConflict:
		return resp.Status, nil
	case "":
		return RefreshStarted, nil
	default:
		return "", perr.Newf(perr.ErrorCodeUnavailable, "refresh: unknown status %q", resp.Status)
	}
}

// PollStatus reads the state of the refresh job of scope.
func (c *Client) PollStatus(ctx context.Context, scope, accountID string) (SyncStatus, error) {
	q := url.Values{"scope": {scope}}
	if accountID != "" {
		q.Set("accountId", accountID)
	}
	var st SyncStatus
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/sync/status", q, nil, &st); err != nil {
		return SyncStatus{}, perr.WithOp(err, "ledger.status")
	}
	if st.Status == "" {
		return SyncStatus{}, perr.New(perr.ErrorCodeUnavailable, "status: empty status field")
	}
	return st, nil
}

// FetchPage reads one page (1-based) of the ledger of scope, optionally for one pool.
func (c *Client) FetchPage(ctx context.Context, scope, pool string, page int) (Page, error) {
	if page < 1 {
		return Page{}, perr.InvalidArgf("page %d must be >= 1", page)
	}
	q := url.Values{
		"scope":    {scope},
		"page":     {strconv.Itoa(page)},
		"pageSize": {strconv.Itoa(c.pageSize)},
	}
	if pool != "" {
		q.Set("pool", pool)
	}
	var resp struct {
		Records []json.RawMessage `json:"records"`
		Total   int               `json:"total"`
		Pages   int               `json:"pages"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/records", q, nil, &resp); err != nil {
		return Page{}, perr.WithOp(err, "ledger.records")
	}
	recs, rejected := c.scale.ParseRecords(resp.Records)
	for i := range rejected {
		rejected[i].Index += (page - 1) * c.pageSize
	}
	return Page{Records: recs, Rejected: rejected, Total: resp.Total, Pages: resp.Pages}, nil
}

// FetchLedger walks every page. Any page failure fails the whole fetch so a partial
// ledger is never mistaken for the full history.
func (c *Client) FetchLedger(ctx context.Context, scope, pool string) (Ledger, error) {
	var (
		all      []gacha.PullRecord
		rejected []Rejected
		seen     = make(map[int64]struct{})
	)
	for page := 1; page <= maxPages; page++ {
		p, err := c.FetchPage(ctx, scope, pool, page)
		if err != nil {
			return Ledger{}, fmt.Errorf("ledger page %d: %w", page, err)
		}
		for _, r := range p.Records {
			if _, dup := seen[r.Seq]; dup {
				continue
			}
			seen[r.Seq] = struct{}{}
			all = append(all, r)
		}
		rejected = append(rejected, p.Rejected...)
		if page >= p.Pages || len(p.Records)+len(p.Rejected) == 0 {
			break
		}
	}
	if len(rejected) > 0 {
		c.log.Warn().Str("scope", scope).Int("rejected", len(rejected)).Msg("dropped malformed ledger entries")
	}
	slices.SortFunc(all, func(a, b gacha.PullRecord) int { return cmp.Compare(a.Seq, b.Seq) })
	status := LedgerReady
	if len(all) == 0 {
		status = LedgerEmpty
	}
	return Ledger{Status: status, Records: all, Rejected: rejected}, nil
}

// FetchStats reads the service-side aggregate of scope.
func (c *Client) FetchStats(ctx context.Context, scope string) (Stats, error) {
	var st Stats
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/stats", url.Values{"scope": {scope}}, nil, &st); err != nil {
		return Stats{}, perr.WithOp(err, "ledger.stats")
	}
	return st, nil
}

// Rules fetches the rule set of a banner type; the client is a game.RuleSource.
// A 404 means the service has no rules, which lets a game.Chain fall through.
func (c *Client) Rules(ctx context.Context, bannerType, pool string) (gacha.BannerRuleSet, error) {
	var q url.Values
	if pool != "" {
		q = url.Values{"pool": {pool}}
	}
	var r gacha.BannerRuleSet
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/rules/"+escape(bannerType), q, nil, &r); err != nil {
		if perr.IsCode(err, perr.ErrorCodeNotFound) {
			return gacha.BannerRuleSet{}, fmt.Errorf("%w: %w", game.ErrNoRules, err)
		}
		return gacha.BannerRuleSet{}, perr.WithOp(err, "ledger.rules")
	}
	if r.BannerType == "" {
		r.BannerType = bannerType
	}
	if err := r.Validate(); err != nil {
		return gacha.BannerRuleSet{}, perr.Wrapf(err, perr.ErrorCodeUnavailable, "rules %s from ledger", bannerType)
	}
	return r, nil
}
