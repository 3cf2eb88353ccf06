package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/munio/internal/interfaces"
	"github.com/ternarybob/munio/internal/models"
)

// AnalysisHandler serves analysis runs, previews and applies
type AnalysisHandler struct {
	analyzer interfaces.AnalyzerService
	logger   arbor.ILogger
}

func NewAnalysisHandler(analyzer interfaces.AnalyzerService, logger arbor.ILogger) *AnalysisHandler {
	return &AnalysisHandler{
		analyzer: analyzer,
		logger:   logger,
	}
}

// AnalyzeHandler handles POST /api/analyze. The request blocks until the
// whole batch finishes; progress events stream over the websocket meanwhile.
func (h *AnalysisHandler) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req models.AnalyzeRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	h.logger.Info().
		Int("repositories", len(req.Repositories)).
		Str("ref", req.Ref).
		Msg("Starting analysis run")

	run, err := h.analyzer.Analyze(r.Context(), &req)
	if err != nil {
		// Client disconnects cancel the run; the partial result is still
		// persisted but there is nobody left to answer.
		if errors.Is(err, context.Canceled) {
			return
		}
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, run)
}

// ListRunsHandler handles GET /api/runs
func (h *AnalysisHandler) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	limit := QueryInt(r, "limit", 20)
	runs, err := h.analyzer.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list runs")
		WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRunHandler handles GET /api/runs/{id}
func (h *AnalysisHandler) GetRunHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	id := PathID(r, "/api/runs/")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Run ID is required")
		return
	}

	run, err := h.analyzer.GetRun(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, run)
}

// PreviewHandler handles POST /api/preview
func (h *AnalysisHandler) PreviewHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req models.PreviewRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	result, err := h.analyzer.Preview(r.Context(), &req)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// ApplyHandler handles POST /api/apply
func (h *AnalysisHandler) ApplyHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req models.ApplyRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	result, err := h.analyzer.Apply(r.Context(), &req)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info().
		Str("repository", result.Repository).
		Str("branch", result.Branch).
		Str("pull_request", result.PullRequestURL).
		Msg("Recommendation applied")

	WriteJSON(w, http.StatusOK, result)
}
