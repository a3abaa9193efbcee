package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dunelens/dunelens/pkg/models"
	"github.com/dunelens/dunelens/pkg/services"
)

// UpdateExecutionRequest for PATCH /api/generation-history/{id}
type UpdateExecutionRequest struct {
	ExecutionResult  models.ExecutionResult `json:"executionResult"`
	ExecutionErrorID *uuid.UUID             `json:"executionErrorId,omitempty"`
}

// HistoryListResponse for GET /api/generation-history
type HistoryListResponse struct {
	Records []models.GenerationHistoryRecord `json:"records"`
	Total   int                              `json:"total"`
}

// HistoryHandler serves generation history.
type HistoryHandler struct {
	history services.HistoryService
	logger  *zap.Logger
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(history services.HistoryService, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{history: history, logger: logger}
}

// RegisterRoutes registers the history handler's routes on the given mux.
func (h *HistoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/generation-history", h.Record)
	mux.HandleFunc("GET /api/generation-history", h.List)
	mux.HandleFunc("PATCH /api/generation-history/{id}", h.UpdateExecution)
}

// Record handles POST /api/generation-history
func (h *HistoryHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req models.GenerationHistoryRecord
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	if err := h.history.Record(r.Context(), &req); err != nil {
		writeServiceError(w, h.logger, "Failed to record generation history", err)
		return
	}
	writeOK(w, h.logger, req)
}

// List handles GET /api/generation-history?session=...&limit=...
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := h.history.List(r.Context(), r.URL.Query().Get("session"), limit)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to list generation history", err)
		return
	}
	if records == nil {
		records = []models.GenerationHistoryRecord{}
	}
	writeOK(w, h.logger, HistoryListResponse{Records: records, Total: len(records)})
}

// UpdateExecution handles PATCH /api/generation-history/{id}
func (h *HistoryHandler) UpdateExecution(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id", "invalid_history_id", "Invalid history ID format", h.logger)
	if !ok {
		return
	}

	var req UpdateExecutionRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	if err := h.history.MarkExecution(r.Context(), id, req.ExecutionResult, req.ExecutionErrorID); err != nil {
		writeServiceError(w, h.logger, "Failed to update execution result", err)
		return
	}

	rec, err := h.history.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to read updated history", err)
		return
	}
	writeOK(w, h.logger, rec)
}
