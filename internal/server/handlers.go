package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/raaihank/piiredact/internal/audit"
	"github.com/raaihank/piiredact/internal/batch"
	"github.com/raaihank/piiredact/internal/redact"
	"github.com/raaihank/piiredact/internal/rules"
	"github.com/raaihank/piiredact/internal/websocket"
)

type redactRequest struct {
	Text             string `json:"text"`
	IncludeOriginals bool   `json:"include_originals"`
}

type redactResponse struct {
	RequestID       string             `json:"request_id"`
	RedactedText    string             `json:"redacted_text"`
	Matches         []redact.MatchSpan `json:"matches"`
	Counts          map[string]int     `json:"counts"`
	Total           int                `json:"total"`
	Warnings        []string           `json:"warnings,omitempty"`
	Cached          bool               `json:"cached"`
	RuleFingerprint string             `json:"rule_fingerprint"`
}

type batchRequest struct {
	Documents []batch.Document `json:"documents"`
}

type batchResponse struct {
	RequestID string          `json:"request_id"`
	Results   []batch.Outcome `json:"results"`
	Summary   *batch.Summary  `json:"summary"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	reg := s.redactor.Registry()
	info := map[string]any{
		"name":             "piiredact",
		"version":          s.version,
		"rules":            reg.Len(),
		"rule_fingerprint": reg.Fingerprint(),
		"strategy":         s.redactor.Config().Strategy,
		"cache_enabled":    s.cache != nil,
		"audit_enabled":    s.audit != nil,
		"uptime":           time.Since(s.started).Round(time.Second).String(),
		"total_requests":   s.totalRequests.Load(),
		"total_redactions": s.totalRedactions.Load(),
	}
	if s.hub != nil {
		info["websocket"] = s.hub.GetStats()
	}
	writeJSON(w, http.StatusOK, info)
}

// handleRules lists the active rules in evaluation order
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	reg := s.redactor.Registry()
	list := reg.Rules()
	for i := range list {
		list[i].Replacement = list[i].Template()
	}
	writeJSON(w, http.StatusOK, struct {
		Fingerprint  string              `json:"fingerprint"`
		MatchTimeout string              `json:"match_timeout"`
		Rules        []rules.PatternRule `json:"rules"`
	}{reg.Fingerprint(), reg.MatchTimeout().String(), list})
}

// handleRedact redacts a single document
func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := getRequestID(ctx)

	var req redactRequest
	if !s.decode(w, r, &req) {
		return
	}

	start := time.Now()
	originals := req.IncludeOriginals || s.redactor.Config().IncludeOriginals
	useCache := s.cache != nil && !originals

	var (
		result *redact.Result
		cached bool
	)
	if useCache {
		fp := s.redactor.Registry().Fingerprint()
		if hit, ok := s.cache.Get(ctx, fp, req.Text); ok {
			result = hit.Result()
			result.Fingerprint = fp
			cached = true
		}
	}

	if result == nil {
		var err error
		if originals {
			result, err = s.redactor.RedactOriginals(ctx, req.Text)
		} else {
			result, err = s.redactor.Redact(ctx, req.Text)
		}
		if err != nil {
			s.writeRedactError(w, requestID, err)
			return
		}
		// Results with skipped rules are not cached.
		if useCache && len(result.Warnings) == 0 {
			if err := s.cache.Store(ctx, result.Fingerprint, req.Text, result); err != nil {
				s.logger.WithRequestID(requestID).Warn("Failed to cache result", zap.Error(err))
			}
		}
	}

	elapsed := time.Since(start)
	s.observe(ctx, requestID, "http", req.Text, result, elapsed, cached)

	writeJSON(w, http.StatusOK, redactResponse{
		RequestID:       requestID,
		RedactedText:    result.RedactedText,
		Matches:         result.Matches,
		Counts:          result.Counts,
		Total:           result.Total(),
		Warnings:        result.WarningMessages(),
		Cached:          cached,
		RuleFingerprint: result.Fingerprint,
	})
}

// handleRedactBatch redacts many documents and returns them in request order
func (s *Server) handleRedactBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := getRequestID(ctx)

	var req batchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if limit := s.config.Server.MaxBatchSize; limit > 0 && len(req.Documents) > limit {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("batch of %d documents exceeds limit of %d", len(req.Documents), limit))
		return
	}
	for i := range req.Documents {
		if req.Documents[i].ID == "" {
			req.Documents[i].ID = strconv.Itoa(i + 1)
		}
	}

	runner := batch.NewRunner(s.redactor, &batch.Config{Workers: s.config.Batch.Workers}, s.logger.WithRequestID(requestID).Logger)
	runner.OnDocument(func(ctx context.Context, doc batch.Document, result *redact.Result, elapsed time.Duration) {
		s.observe(ctx, requestID+"/"+doc.ID, "batch", doc.Text, result, elapsed, false)
	})

	outcomes, summary, err := runner.Run(ctx, req.Documents)
	if err != nil {
		s.writeRedactError(w, requestID, err)
		return
	}

	writeJSON(w, http.StatusOK, batchResponse{RequestID: requestID, Results: outcomes, Summary: summary})
}

func (s *Server) handleAuditRecent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	records, err := s.audit.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to read audit records", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read audit records")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.audit.Stats(r.Context())
	if err != nil {
		s.logger.Error("Failed to read audit stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read audit stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cache.GetStats(r.Context())
	if err != nil {
		s.logger.Warn("Failed to read Redis stats", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := s.cache.Clear(r.Context()); err != nil {
		s.logger.Error("Failed to clear cache", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to clear cache")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// observe publishes a redaction summary to the audit store and event hub
func (s *Server) observe(ctx context.Context, requestID, source, text string, result *redact.Result, elapsed time.Duration, cached bool) {
	s.totalRedactions.Add(1)

	if s.audit != nil {
		rec := audit.NewRecord(requestID, source, text, result, string(s.redactor.Config().Strategy), result.Fingerprint, elapsed)
		if err := s.audit.Record(ctx, rec); err != nil {
			s.logger.WithRequestID(requestID).Warn("Failed to write audit record", zap.Error(err))
		}
	}

	if s.hub != nil {
		s.hub.PublishRedaction(websocket.RedactionEvent{
			RequestID:    requestID,
			Source:       source,
			Counts:       result.Counts,
			TotalMatches: result.Total(),
			InputBytes:   len(text),
			Cached:       cached,
			Warnings:     len(result.Warnings),
			DurationMS:   float64(elapsed.Microseconds()) / 1000,
		})
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) writeRedactError(w http.ResponseWriter, requestID string, err error) {
	var inputErr *redact.InputError
	switch {
	case errors.As(err, &inputErr):
		writeError(w, http.StatusUnprocessableEntity, inputErr.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request canceled")
	default:
		s.logger.WithRequestID(requestID).Error("Redaction failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "redaction failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message, RequestID: w.Header().Get(RequestIDHeader)})
}
