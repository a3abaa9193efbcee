package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/dunelens/dunelens/pkg/models"
	"github.com/dunelens/dunelens/pkg/services"
)

// AnalyzeQueryRequest for POST /api/analyze-query
type AnalyzeQueryRequest struct {
	URL string `json:"url"`
}

// AnalysisHandler serves query analysis and the save-analysis path.
type AnalysisHandler struct {
	analysis services.AnalysisService
	logger   *zap.Logger
}

// NewAnalysisHandler creates a new analysis handler.
func NewAnalysisHandler(analysis services.AnalysisService, logger *zap.Logger) *AnalysisHandler {
	return &AnalysisHandler{analysis: analysis, logger: logger}
}

// RegisterRoutes registers the analysis handler's routes on the given mux.
func (h *AnalysisHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/analyze-query", h.AnalyzeQuery)
	mux.HandleFunc("POST /api/analyses", h.SaveAnalysis)
}

// AnalyzeQuery handles POST /api/analyze-query
func (h *AnalysisHandler) AnalyzeQuery(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeQueryRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	result, err := h.analysis.AnalyzeURL(r.Context(), req.URL)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to analyze query", err)
		return
	}
	writeOK(w, h.logger, result)
}

// SaveAnalysis handles POST /api/analyses
func (h *AnalysisHandler) SaveAnalysis(w http.ResponseWriter, r *http.Request) {
	var req models.AnalyzedQuery
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	result, err := h.analysis.Save(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to save analysis", err)
		return
	}
	writeOK(w, h.logger, result)
}
