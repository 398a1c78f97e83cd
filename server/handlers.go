package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ZaguanLabs/phrasebook"
)

// maxRequestBody caps POST /v1/translate bodies.
const maxRequestBody = 64 << 10

// TranslateRequest is the body of POST /v1/translate.
type TranslateRequest struct {
	Text       string   `json:"text"`
	SourceLang string   `json:"source_lang,omitempty"`
	TargetLang string   `json:"target_lang,omitempty"`
	Providers  []string `json:"providers,omitempty"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error    string               `json:"error"`
	Attempts []phrasebook.Attempt `json:"attempts,omitempty"`
}

// QuotaResponse is the body of GET /v1/quota/{provider}.
type QuotaResponse struct {
	ProviderID         string    `json:"provider_id"`
	PeriodStart        time.Time `json:"period_start"`
	CharactersConsumed int64     `json:"characters_consumed"`
	MonthlyLimit       int64     `json:"monthly_limit"`
	Remaining          int64     `json:"remaining"`
}

// PurgeResponse is the body of POST /v1/cache/purge.
type PurgeResponse struct {
	Deleted int `json:"deleted"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleTranslate handles POST /v1/translate.
func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req TranslateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	res, err := s.config.Translator.Translate(r.Context(), req.Text, req.SourceLang, req.TargetLang, req.Providers...)
	if err != nil {
		status, body := translateError(err)
		if status >= http.StatusInternalServerError {
			s.logger.Warn("translate failed", "status", status, "error", err)
		}
		writeError(w, status, body)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// translateError maps a Translate error to a status code and body.
func translateError(err error) (int, ErrorResponse) {
	var exhausted *phrasebook.AllProvidersExhaustedError
	switch {
	case errors.Is(err, phrasebook.ErrEmptyText),
		errors.Is(err, phrasebook.ErrUnsupportedLanguagePair),
		errors.Is(err, phrasebook.ErrUnknownProvider):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error()}
	case errors.As(err, &exhausted):
		return http.StatusBadGateway, ErrorResponse{Error: "all providers exhausted", Attempts: exhausted.Attempts}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrorResponse{Error: "translation timed out"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal error"}
	}
}

// handleQuota handles GET /v1/quota/{provider}.
func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	if s.config.Quota == nil {
		writeError(w, http.StatusNotFound, ErrorResponse{Error: "quota tracking not configured"})
		return
	}

	id := chi.URLParam(r, "provider")
	state, err := s.config.Quota.CurrentPeriod(r.Context(), id)
	if errors.Is(err, phrasebook.ErrUnknownProvider) {
		writeError(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		s.logger.Warn("quota lookup failed", "provider", id, "error", err)
		writeError(w, http.StatusInternalServerError, ErrorResponse{Error: "quota lookup failed"})
		return
	}

	writeJSON(w, http.StatusOK, QuotaResponse{
		ProviderID:         state.ProviderID,
		PeriodStart:        state.PeriodStart,
		CharactersConsumed: state.CharactersConsumed,
		MonthlyLimit:       state.MonthlyLimit,
		Remaining:          state.Remaining(),
	})
}

// handlePurge handles POST /v1/cache/purge.
func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	if s.reaper == nil {
		writeError(w, http.StatusNotFound, ErrorResponse{Error: "cache not configured"})
		return
	}

	n, err := s.reaper.ReapNow(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrorResponse{Error: "purge failed"})
		return
	}
	writeJSON(w, http.StatusOK, PurgeResponse{Deleted: n})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, body ErrorResponse) {
	writeJSON(w, status, body)
}
