package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	perr "github.com/xtding233/gacha-ledger/internal/errors"
	"github.com/xtding233/gacha-ledger/internal/gacha"
	"github.com/xtding233/gacha-ledger/internal/game"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(ClientOptions{
		BaseURL:   srv.URL,
		APIKey:    "k",
		RateLimit: rate.Inf,
		PageSize:  2,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestRequestsCarryHeaders(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/v1/scopes/{scope}/accounts", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "Bearer k", req.Header.Get("Authorization"))
		assert.NotEmpty(t, req.Header.Get("X-Request-ID"))
		assert.Equal(t, "user 1", chi.URLParam(req, "scope"))
		writeJSON(w, http.StatusOK, map[string]any{"accounts": []map[string]string{
			{"accountId": "a1", "displayName": "Main"},
			{"accountId": "a2", "displayName": "Alt"},
		}})
	})
	c := newTestClient(t, r)

	accts, err := c.Accounts(context.Background(), "user 1")
	require.NoError(t, err)
	assert.Equal(t, []Account{{ID: "a1", DisplayName: "Main"}, {ID: "a2", DisplayName: "Alt"}}, accts)
}

func TestRequestRefreshConflict(t *testing.T) {
	var calls atomic.Int32
	r := chi.NewRouter()
	r.Post("/api/v1/sync", func(w http.ResponseWriter, req *http.Request) {
		var in map[string]string
		assert.NoError(t, json.NewDecoder(req.Body).Decode(&in))
		if calls.Add(1) == 1 {
			assert.Equal(t, "u1", in["scope"])
			writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
			return
		}
		writeJSON(w, http.StatusConflict, map[string]string{"error": "busy"})
	})
	c := newTestClient(t, r)

	res, err := c.RequestRefresh(context.Background(), "u1", "")
	require.NoError(t, err)
	assert.Equal(t, RefreshStarted, res)

	res, err = c.RequestRefresh(context.Background(), "u1", "")
	require.NoError(t, err)
	assert.Equal(t, RefreshConflict, res)
}

func TestTransientFailuresAreUnavailable(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/v1/sync/status", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	r.Get("/api/v1/stats", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	})
	c := newTestClient(t, r)

	_, err := c.PollStatus(context.Background(), "u1", "")
	require.Error(t, err)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeUnavailable))

	_, err = c.FetchStats(context.Background(), "u1")
	require.Error(t, err)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeUnavailable))

	down := NewClient(ClientOptions{BaseURL: "http://127.0.0.1:1", RateLimit: rate.Inf, Timeout: time.Second})
	_, err = down.Accounts(context.Background(), "u1")
	require.Error(t, err)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeUnavailable))
}

// ledgerServer serves records in pages of pageSize, newest first like the real service.
func ledgerServer(t *testing.T, records []map[string]any) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v1/records", func(w http.ResponseWriter, req *http.Request) {
		page, _ := strconv.Atoi(req.URL.Query().Get("page"))
		size, _ := strconv.Atoi(req.URL.Query().Get("pageSize"))
		assert.Equal(t, "u1", req.URL.Query().Get("scope"))
		pages := (len(records) + size - 1) / size
		from := (page - 1) * size
		to := min(from+size, len(records))
		var out []map[string]any
		if from < len(records) {
			out = records[from:to]
		}
		writeJSON(w, http.StatusOK, map[string]any{"records": out, "total": len(records), "pages": pages})
	})
	return r
}

func TestFetchLedgerWalksPages(t *testing.T) {
	records := []map[string]any{
		{"seq": 5, "rarity": 6, "itemId": "alice", "poolId": "p1", "ts": 1700000005},
		{"seqId": "4", "rank": 4, "name": "sword", "poolId": "p1", "time": "2024-01-02 03:04:05"},
		{"seq": 3, "rarity": 5, "charId": "bob", "poolId": "p1", "isFree": true},
		// duplicate of the previous entry
		{"seq": 3, "rarity": 5, "charId": "bob", "poolId": "p1", "isFree": true},
		// no seq, rejected
		{"rarity": 4, "poolId": "p1"},
		{"seq": 1, "rarity": 6, "weaponId": "w1", "poolId": "p2", "ts": 1700000001000},
	}
	c := newTestClient(t, ledgerServer(t, records))

	l, err := c.FetchLedger(context.Background(), "u1", "")
	require.NoError(t, err)
	assert.Equal(t, LedgerReady, l.Status)
	require.Len(t, l.Records, 4)

	var seqs []int64
	for _, r := range l.Records {
		seqs = append(seqs, r.Seq)
	}
	assert.Equal(t, []int64{1, 3, 4, 5}, seqs)

	assert.Equal(t, "w1", l.Records[0].ItemID)
	assert.Equal(t, time.UnixMilli(1700000001000).UTC(), l.Records[0].At)
	assert.Equal(t, gacha.RaritySecond, l.Records[1].Rarity)
	assert.True(t, l.Records[1].Free)
	assert.Equal(t, "sword", l.Records[2].ItemName)
	assert.Equal(t, gacha.RarityOther, l.Records[2].Rarity)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), l.Records[2].At)
	assert.Equal(t, gacha.RarityTop, l.Records[3].Rarity)

	require.Len(t, l.Rejected, 1)
	assert.Equal(t, 4, l.Rejected[0].Index)
}

func TestFetchLedgerEmpty(t *testing.T) {
	c := newTestClient(t, ledgerServer(t, nil))

	l, err := c.FetchLedger(context.Background(), "u1", "")
	require.NoError(t, err)
	assert.Equal(t, LedgerEmpty, l.Status)
	assert.Empty(t, l.Records)
}

func TestFetchLedgerFailsOnPageError(t *testing.T) {
	var n atomic.Int32
	r := chi.NewRouter()
	r.Get("/api/v1/records", func(w http.ResponseWriter, _ *http.Request) {
		if n.Add(1) > 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"records": []map[string]any{{"seq": 1, "rarity": 3, "poolId": "p"}},
			"total":   3,
			"pages":   2,
		})
	})
	c := newTestClient(t, r)

	_, err := c.FetchLedger(context.Background(), "u1", "")
	require.Error(t, err)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeUnavailable))
}

func TestParseRecordRejects(t *testing.T) {
	cases := []string{
		`{"rarity":6,"poolId":"p"}`,
		`{"seq":"x1","rarity":6,"poolId":"p"}`,
		`{"seq":1,"poolId":"p"}`,
		`{"seq":1,"rarity":6}`,
		`{"seq":1,"rarity":60,"poolId":"p"}`,
		`{"seq":1,"rarity":6,"poolId":"p","time":"yesterday"}`,
		`[]`,
	}
	for i, raw := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			_, err := DefaultScale.ParseRecord(json.RawMessage(raw))
			assert.Error(t, err)
		})
	}
}

func TestRulesSource(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/v1/rules/{bannerType}", func(w http.ResponseWriter, req *http.Request) {
		switch chi.URLParam(req, "bannerType") {
		case "character":
			writeJSON(w, http.StatusOK, map[string]any{
				"baseProbability":       0.008,
				"softPityStart":         65,
				"softPityIncrement":     0.05,
				"hardPityCap":           80,
				"secondTierProbability": 0.08,
				"hasRateUp":             true,
				"guaranteeWindow":       map[string]int{"from": 1, "to": 80},
				"rateUpItems":           []string{"alice"},
			})
		case "broken":
			writeJSON(w, http.StatusOK, map[string]any{"baseProbability": 2})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	c := newTestClient(t, r)
	ctx := context.Background()

	rules, err := c.Rules(ctx, "character", "")
	require.NoError(t, err)
	assert.Equal(t, "character", rules.BannerType)
	assert.Equal(t, 80, rules.HardPityCap)

	_, err = c.Rules(ctx, "weapon", "")
	assert.ErrorIs(t, err, game.ErrNoRules)

	_, err = c.Rules(ctx, "broken", "")
	assert.ErrorIs(t, err, gacha.ErrRuleSet)

	chained, err := game.Chain{c, game.Builtin()}.Rules(ctx, "weapon", "")
	require.NoError(t, err)
	assert.Equal(t, 40, chained.HardPityCap)
}
