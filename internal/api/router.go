// Package api exposes the simulator, history and refresh services over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xtding233/gacha-ledger/internal/ledger"
	"github.com/xtding233/gacha-ledger/internal/logger"
	"github.com/xtding233/gacha-ledger/internal/refresh"
	"github.com/xtding233/gacha-ledger/internal/service"
)

// StatsSource reads the aggregate the ledger service keeps itself.
type StatsSource interface {
	FetchStats(ctx context.Context, scope string) (ledger.Stats, error)
}

// Options wires the services behind the routes. History, Refresh and Stats are
// optional; their routes answer 503 without a ledger.
type Options struct {
	Simulator *service.Simulator
	History   *service.History
	Refresh   *refresh.Coordinator
	Stats     StatsSource
	Scopes    service.ScopeRecorder
	Logger    *logger.Logger
}

// Handler holds the services the routes call into
type Handler struct {
	sim     *service.Simulator
	history *service.History
	coord   *refresh.Coordinator
	stats   StatsSource
	scopes  service.ScopeRecorder
	log     *logger.Logger
}

func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Handler{
		sim:     opts.Simulator,
		history: opts.History,
		coord:   opts.Refresh,
		stats:   opts.Stats,
		scopes:  opts.Scopes,
		log:     opts.Logger,
	}
}

// Routes builds the router with the common middleware stack
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(middleware.Heartbeat("/health"))

	r.Post("/simulate/{type}", h.simulate)
	r.Get("/sessions/{scope}/{type}", h.getSession)
	r.Delete("/sessions/{scope}/{type}", h.resetSession)
	r.Get("/estimate/{type}", h.estimate)
	r.Get("/rules/{type}", h.rules)
	r.Get("/history/{scope}/{type}", h.historyReport)
	r.Get("/stats/{scope}", h.remoteStats)
	r.Post("/refresh/{scope}", h.refresh)
	return r
}

// requestLog logs one line per request at debug, server errors at warn
func (h *Handler) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		ev := h.log.Debug()
		if ww.Status() >= http.StatusInternalServerError {
			ev = h.log.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http")
	})
}
