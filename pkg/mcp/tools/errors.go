package tools

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dunelens/dunelens/pkg/apperrors"
)

// ErrorResponse represents a structured error in tool results.
// Returning it as a tool result keeps the detail visible to the calling
// model instead of being swallowed by the MCP client.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// NewErrorResult creates a tool result containing a structured error.
// Use this for errors the caller can act on (bad arguments, an upstream
// refusing the request). System failures stay Go errors.
func NewErrorResult(code, message string) *mcp.CallToolResult {
	return NewErrorResultWithDetails(code, message, nil)
}

// NewErrorResultWithDetails creates an error result with additional context.
func NewErrorResultWithDetails(code, message string, details any) *mcp.CallToolResult {
	resp := ErrorResponse{
		Error:   true,
		Code:    code,
		Message: message,
		Details: details,
	}
	jsonBytes, _ := json.Marshal(resp)
	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// serviceErrorResult converts a service error into an actionable error
// result when its kind is one the caller can respond to. Anything else is
// returned as a protocol error.
func serviceErrorResult(err error) (*mcp.CallToolResult, error) {
	var code string
	switch apperrors.Kind(err) {
	case apperrors.ErrInvalidInput:
		code = "invalid_parameters"
	case apperrors.ErrNotFound:
		code = "not_found"
	case apperrors.ErrUpstreamTimeout:
		code = "upstream_timeout"
	case apperrors.ErrUpstreamRejected:
		code = "upstream_rejected"
	case apperrors.ErrUpstreamUnavailable:
		code = "upstream_unavailable"
	default:
		return nil, err
	}
	return NewErrorResult(code, err.Error()), nil
}
