package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/dunelens/dunelens/pkg/audit"
	"github.com/dunelens/dunelens/pkg/services"
)

// DuneHandler serves saved-query execution.
type DuneHandler struct {
	execution services.ExecutionService
	logger    *zap.Logger
}

// NewDuneHandler creates a new Dune handler.
func NewDuneHandler(execution services.ExecutionService, logger *zap.Logger) *DuneHandler {
	return &DuneHandler{execution: execution, logger: logger}
}

// RegisterRoutes registers the Dune handler's routes on the given mux.
func (h *DuneHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/dune/execute", h.Execute)
	mux.HandleFunc("GET /api/dune/executions/{id}", h.Status)
}

// Execute handles POST /api/dune/execute
func (h *DuneHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req services.ExecuteRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	ctx := audit.WithClientIP(r.Context(), r.RemoteAddr)
	result, err := h.execution.Execute(ctx, req)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to execute dune query", err)
		return
	}
	writeOK(w, h.logger, result)
}

// Status handles GET /api/dune/executions/{id}
func (h *DuneHandler) Status(w http.ResponseWriter, r *http.Request) {
	result, err := h.execution.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.logger, "Failed to get execution status", err)
		return
	}
	writeOK(w, h.logger, result)
}
