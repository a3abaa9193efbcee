package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/dunelens/dunelens/pkg/services"
)

// FeedbackRequest for POST /api/sql-errors/{hash}/feedback
type FeedbackRequest struct {
	Feedback string `json:"feedback"`
}

// SQLErrorHandler serves error-record tracking.
type SQLErrorHandler struct {
	errors services.SQLErrorService
	logger *zap.Logger
}

// NewSQLErrorHandler creates a new SQL error handler.
func NewSQLErrorHandler(errs services.SQLErrorService, logger *zap.Logger) *SQLErrorHandler {
	return &SQLErrorHandler{errors: errs, logger: logger}
}

// RegisterRoutes registers the SQL error handler's routes on the given mux.
func (h *SQLErrorHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sql-errors", h.Record)
	mux.HandleFunc("GET /api/sql-errors/{hash}", h.Get)
	mux.HandleFunc("POST /api/sql-errors/{hash}/feedback", h.Feedback)
}

// Record handles POST /api/sql-errors
func (h *SQLErrorHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req services.RecordErrorInput
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	rec, err := h.errors.Record(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, "Failed to record sql error", err)
		return
	}
	writeOK(w, h.logger, rec)
}

// Get handles GET /api/sql-errors/{hash}
func (h *SQLErrorHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.errors.Get(r.Context(), r.PathValue("hash"))
	if err != nil {
		writeServiceError(w, h.logger, "Failed to get sql error", err)
		return
	}
	writeOK(w, h.logger, rec)
}

// Feedback handles POST /api/sql-errors/{hash}/feedback
func (h *SQLErrorHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if !decodeBody(w, r, h.logger, &req) {
		return
	}

	if err := h.errors.Feedback(r.Context(), r.PathValue("hash"), req.Feedback); err != nil {
		writeServiceError(w, h.logger, "Failed to record feedback", err)
		return
	}
	writeOK(w, h.logger, map[string]string{"errorHash": r.PathValue("hash"), "feedback": req.Feedback})
}
