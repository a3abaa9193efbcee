package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/dunelens/dunelens/pkg/classifier"
	"github.com/dunelens/dunelens/pkg/models"
	"github.com/dunelens/dunelens/pkg/prompts"
	"github.com/dunelens/dunelens/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// RelatedQueriesRequest for POST /api/related-queries.
// UserQuery is accepted as an alias of Query.
type RelatedQueriesRequest struct {
	Query     string `json:"query"`
	UserQuery string `json:"userQuery,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// ClassifyErrorRequest for POST /api/classify-error
type ClassifyErrorRequest struct {
	ErrorMessage string `json:"errorMessage"`
}

// ClassifyErrorResponse names the error kind and the prompt it selects.
type ClassifyErrorResponse struct {
	ErrorType    models.ErrorKind    `json:"errorType"`
	AnalysisType models.AnalysisType `json:"analysisType"`
}

// ============================================================================
// Handler
// ============================================================================

// SQLHandler serves related-query lookup, repair and generation.
type SQLHandler struct {
	related    services.RelatedQueryService
	fix        services.FixService
	generation services.GenerationService
	logger     *zap.Logger
}

// NewSQLHandler creates a new SQL handler.
func NewSQLHandler(
	related services.RelatedQueryService,
	fix services.FixService,
	generation services.GenerationService,
	logger *zap.Logger,
) *SQLHandler {
	return &SQLHandler{
		related:    related,
		fix:        fix,
		generation: generation,
		logger:     logger,
	}
}

// RegisterRoutes registers the SQL handler's routes on the given mux.
func (h *SQLHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/related-queries", h.RelatedQueries)
	mux.HandleFunc("POST /api/fix-sql", h.FixSQL)
	mux.HandleFunc("POST /api/generate-sql", h.GenerateSQL)
	mux.HandleFunc("POST /api/regenerate-sql", h.RegenerateSQL)
	mux.HandleFunc("POST /api/classify-error", h.ClassifyError)
}

// RelatedQueries handles POST /api/related-queries
func (h *SQLHandler) RelatedQueries(w http.ResponseWriter, r *http.Request) {
	var req RelatedQueriesRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	text := req.Query
	if strings.TrimSpace(text) == "" {
		text = req.UserQuery
	}

	result, err := h.related.FindRelated(r.Context(), text, req.Limit)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to find related queries", err)
		return
	}
	writeOK(w, h.logger, result)
}

// FixSQL handles POST /api/fix-sql
func (h *SQLHandler) FixSQL(w http.ResponseWriter, r *http.Request) {
	var req services.FixRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	result, err := h.fix.Fix(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to fix SQL", err)
		return
	}
	writeOK(w, h.logger, result)
}

// GenerateSQL handles POST /api/generate-sql
func (h *SQLHandler) GenerateSQL(w http.ResponseWriter, r *http.Request) {
	var req services.GenerationRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	result, err := h.generation.Generate(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to generate SQL", err)
		return
	}
	writeOK(w, h.logger, result)
}

// RegenerateSQL handles POST /api/regenerate-sql
func (h *SQLHandler) RegenerateSQL(w http.ResponseWriter, r *http.Request) {
	var req services.RegenerationRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	result, err := h.generation.Regenerate(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to regenerate SQL", err)
		return
	}
	writeOK(w, h.logger, result)
}

// ClassifyError handles POST /api/classify-error
func (h *SQLHandler) ClassifyError(w http.ResponseWriter, r *http.Request) {
	var req ClassifyErrorRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}
	if strings.TrimSpace(req.ErrorMessage) == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_input", "errorMessage is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	kind := classifier.ClassifyError(req.ErrorMessage)
	writeOK(w, h.logger, ClassifyErrorResponse{
		ErrorType:    kind,
		AnalysisType: prompts.AnalysisTypeFor(kind),
	})
}
