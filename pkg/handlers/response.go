package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/dunelens/dunelens/pkg/apperrors"
	"github.com/dunelens/dunelens/pkg/logging"
)

// maxBodyBytes bounds request bodies; SQL plus context fits comfortably.
const maxBodyBytes = 1 << 20

// ApiResponse is the envelope of every successful JSON response.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// StatusForError maps an error onto an HTTP status and error code.
func StatusForError(err error) (int, string) {
	switch apperrors.Kind(err) {
	case apperrors.ErrInvalidInput:
		return http.StatusBadRequest, "invalid_input"
	case apperrors.ErrNotFound:
		return http.StatusNotFound, "not_found"
	case apperrors.ErrUpstreamTimeout:
		return http.StatusGatewayTimeout, "upstream_timeout"
	case apperrors.ErrUpstreamRejected:
		return http.StatusBadGateway, "upstream_rejected"
	case apperrors.ErrUpstreamUnavailable:
		return http.StatusBadGateway, "upstream_unavailable"
	case apperrors.ErrStorageUnavailable:
		return http.StatusServiceUnavailable, "storage_unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeServiceError logs err and writes the mapped error response. Client
// errors log at Debug; everything else at Error.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, msg string, err error) {
	status, code := StatusForError(err)
	message := logging.SanitizeError(err)
	if status == http.StatusInternalServerError {
		message = "An internal error occurred"
	}

	if status < http.StatusInternalServerError {
		logger.Debug(msg, zap.String("error", logging.SanitizeError(err)))
	} else {
		logger.Error(msg, zap.String("error", logging.SanitizeError(err)))
	}

	if err := ErrorResponse(w, status, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// writeOK wraps data in the success envelope.
func writeOK(w http.ResponseWriter, logger *zap.Logger, data any) {
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}

// decodeBody decodes the JSON request body into dst. On failure it writes a
// 400 response and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, logger *zap.Logger, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		message := "Invalid request body"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			message = "Request body too large"
		}
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", message); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return false
	}
	return true
}
