package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chainscribe/chainscribe/pkg/analysis"
	"github.com/chainscribe/chainscribe/pkg/changes"
	"github.com/chainscribe/chainscribe/pkg/cost"
	"github.com/chainscribe/chainscribe/pkg/inference"
	"github.com/chainscribe/chainscribe/pkg/models"
	"github.com/chainscribe/chainscribe/pkg/requestid"
	"github.com/chainscribe/chainscribe/pkg/storage"
)

const (
	errTypeInvalid      = "invalid_request_error"
	errTypeBudget       = "budget_exceeded"
	errTypeUpstream     = "upstream_error"
	errTypeTimeout      = "timeout"
	errTypeNotFound     = "not_found"
	errTypeUnauthorized = "unauthorized"
	errTypeForbidden    = "forbidden"
	errTypeUnavailable  = "unavailable"
	errTypeInternal     = "internal_error"
)

const (
	defaultHistoryDays = 7
	defaultBodyLimit   = 1 << 20
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"services": map[string]bool{
			"inference": s.deps.Analyzer != nil,
			"changes":   s.deps.Changes != nil,
			"history":   s.deps.History != nil,
			"journal":   s.deps.Usage != nil,
			"storage":   s.deps.Storage != nil,
		},
		"timestamp": s.now().UTC(),
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.deps.Analyzer == nil {
		writeJSONError(w, http.StatusServiceUnavailable, errTypeUnavailable, "analysis unavailable")
		return
	}
	var req models.AnalysisRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.deps.Analyzer.Analyze(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		models.AnalysisResult
	}{true, res})
}

func (s *Server) handleAnalyzeChanges(w http.ResponseWriter, r *http.Request) {
	if s.deps.Changes == nil {
		writeJSONError(w, http.StatusServiceUnavailable, errTypeUnavailable, "change analysis unavailable")
		return
	}
	var req models.ChangeRequest
	if !s.decode(w, r, &req) {
		return
	}

	rec, err := s.deps.Changes.Analyze(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.deps.History != nil {
		if err := s.deps.History.Append(r.Context(), rec); err != nil {
			s.logger.Error("change history append failed",
				"document", rec.DocumentID, "id", rec.ID, "error", err,
				"request_id", requestid.From(r.Context()))
		}
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		models.ChangeRecord
	}{true, rec})
}

func (s *Server) handleDocumentChanges(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeJSONError(w, http.StatusServiceUnavailable, errTypeUnavailable, "change history unavailable")
		return
	}
	limit, ok := queryInt(w, r, "limit", 0)
	if !ok {
		return
	}
	docID := r.PathValue("id")
	recs, err := s.deps.History.List(r.Context(), docID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []models.ChangeRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documentId": docID, "changes": recs})
}

func (s *Server) handleCostUsage(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Ledger.DailyReport())
}

func (s *Server) handleCostHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.Usage == nil {
		writeJSONError(w, http.StatusServiceUnavailable, errTypeUnavailable, "usage journal unavailable")
		return
	}
	days, ok := queryInt(w, r, "days", defaultHistoryDays)
	if !ok {
		return
	}
	if days <= 0 {
		days = defaultHistoryDays
	}
	since := s.now().AddDate(0, 0, -(days - 1))
	out, err := s.deps.Usage.Days(r.Context(), since)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if out == nil {
		out = []models.UsageDay{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": out})
}

func (s *Server) handleCostReset(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Ledger.ResetDailyUsage(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("daily usage reset via api", "request_id", requestid.From(r.Context()))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Daily usage reset successfully"})
}

type uploadRequest struct {
	Data json.RawMessage   `json:"data"`
	Tags map[string]string `json:"tags"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Storage == nil {
		writeJSONError(w, http.StatusServiceUnavailable, errTypeUnavailable, "storage unavailable")
		return
	}
	var req uploadRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Data) == 0 || string(req.Data) == "null" {
		writeJSONError(w, http.StatusBadRequest, errTypeInvalid, "data is required")
		return
	}

	// A JSON string is stored as its text; any other value as its JSON encoding.
	data := []byte(req.Data)
	var text string
	if err := json.Unmarshal(req.Data, &text); err == nil {
		data = []byte(text)
	}

	receipt, err := s.deps.Storage.Upload(r.Context(), data, req.Tags)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		models.StoredContent
	}{true, receipt})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Storage == nil {
		writeJSONError(w, http.StatusServiceUnavailable, errTypeUnavailable, "storage unavailable")
		return
	}
	hash := r.PathValue("contentHash")
	data, err := s.deps.Storage.Download(r.Context(), hash)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, errTypeNotFound, fmt.Sprintf("data not found for hash %s", hash))
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": string(data), "contentHash": hash})
}

// decode reads a size-limited JSON body into v, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	limit := s.cfg.Storage.MaxUploadBytes
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, errTypeInvalid, "request body too large")
			return false
		}
		writeJSONError(w, http.StatusBadRequest, errTypeInvalid, "invalid request body")
		return false
	}
	return true
}

// writeError maps a component error to its HTTP status and error type.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var budgetErr *cost.BudgetExceededError
	switch {
	case errors.As(err, &budgetErr):
		writeBudgetError(w, budgetErr)
		return
	case errors.Is(err, analysis.ErrInvalidInput), errors.Is(err, changes.ErrInvalidInput),
		errors.Is(err, storage.ErrEmptyContent):
		writeJSONError(w, http.StatusBadRequest, errTypeInvalid, err.Error())
		return
	case errors.Is(err, context.DeadlineExceeded):
		writeJSONError(w, http.StatusGatewayTimeout, errTypeTimeout, "ai invocation timed out")
		return
	case errors.Is(err, inference.ErrInvocationFailed):
		writeJSONError(w, http.StatusBadGateway, errTypeUpstream, err.Error())
		return
	}
	s.logger.Error("request failed", "path", r.URL.Path, "error", err,
		"request_id", requestid.From(r.Context()))
	writeJSONError(w, http.StatusInternalServerError, errTypeInternal, "internal error")
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeJSONError(w, http.StatusBadRequest, errTypeInvalid, fmt.Sprintf("invalid %s", name))
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

func writeJSONError(w http.ResponseWriter, code int, typ, message string) {
	writeJSON(w, code, map[string]errorBody{"error": {
		Message: strings.ToValidUTF8(message, "\uFFFD"),
		Type:    typ,
		Code:    code,
	}})
}

func writeBudgetError(w http.ResponseWriter, e *cost.BudgetExceededError) {
	type body struct {
		Message string  `json:"message"`
		Type    string  `json:"type"`
		Code    int     `json:"code"`
		Usage   float64 `json:"usage"`
		Budget  float64 `json:"budget"`
	}
	w.Header().Set("Retry-After", strconv.Itoa(secondsUntilMidnight(time.Now())))
	writeJSON(w, http.StatusTooManyRequests, map[string]body{"error": {
		Message: e.Error(),
		Type:    errTypeBudget,
		Code:    http.StatusTooManyRequests,
		Usage:   e.Usage,
		Budget:  e.Budget,
	}})
}

func secondsUntilMidnight(now time.Time) int {
	y, m, d := now.Date()
	next := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
	return int(next.Sub(now).Seconds()) + 1
}
