package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	perr "github.com/xtding233/gacha-ledger/internal/errors"
	"github.com/xtding233/gacha-ledger/internal/logger"
)

// Envelope is the body of every response
type Envelope struct {
	StatusCode int            `json:"statusCode"`
	Status     string         `json:"status"`
	Code       perr.ErrorCode `json:"code,omitempty"`
	Error      string         `json:"error,omitempty"`
	RequestID  string         `json:"requestId,omitempty"`
	Data       any            `json:"data,omitempty"`
}

// JSON writes v with status
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Get().Warn().Err(err).Msg("encode response")
	}
}

// respond wraps data in a success envelope
func respond(w http.ResponseWriter, r *http.Request, status int, data any) {
	JSON(w, status, Envelope{
		StatusCode: status,
		Status:     http.StatusText(status),
		RequestID:  middleware.GetReqID(r.Context()),
		Data:       data,
	})
}

// respondError maps err through its code; data rides along for errors the
// caller can act on, such as the account list of an ambiguous refresh
func respondError(w http.ResponseWriter, r *http.Request, err error, data any) {
	status, wire := perr.HTTP(err)
	if status >= http.StatusInternalServerError {
		logger.Get().Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	JSON(w, status, Envelope{
		StatusCode: status,
		Status:     http.StatusText(status),
		Code:       wire.Code,
		Error:      wire.Message,
		RequestID:  middleware.GetReqID(r.Context()),
		Data:       data,
	})
}
