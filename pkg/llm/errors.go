package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/sashabaranov/go-openai"

	"github.com/dunelens/dunelens/pkg/apperrors"
)

// ErrorType classifies upstream completion failures.
type ErrorType string

const (
	ErrorTypeUnavailable ErrorType = "upstream_unavailable"
	ErrorTypeTimeout     ErrorType = "upstream_timeout"
	ErrorTypeRejected    ErrorType = "upstream_rejected"
)

// Error represents a structured completion error with classification.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
	Model      string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Type))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}

	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the apperrors sentinel for the error's type.
func (e *Error) Is(target error) bool {
	switch e.Type {
	case ErrorTypeTimeout:
		return target == apperrors.ErrUpstreamTimeout
	case ErrorTypeRejected:
		return target == apperrors.ErrUpstreamRejected
	case ErrorTypeUnavailable:
		return target == apperrors.ErrUpstreamUnavailable
	}
	return false
}

// IsRetryable reports whether another attempt may succeed.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured completion error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

var statusCodePattern = regexp.MustCompile(`status code:? (\d{3})`)

// ClassifyError maps a provider or transport error onto the upstream taxonomy.
// Rules are checked in order: timeouts, then HTTP rejections, then everything
// else is treated as the provider being unavailable.
func ClassifyError(err error, model string) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	lower := strings.ToLower(err.Error())

	classified := func(t ErrorType, msg string, retryable bool, status int) *Error {
		e := NewError(t, msg, retryable, err)
		e.StatusCode = status
		e.Model = model
		return e
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) ||
		strings.Contains(lower, "deadline exceeded") ||
		strings.Contains(lower, "timeout") {
		return classified(ErrorTypeTimeout, "request timeout", true, 0)
	}

	if status := statusCode(err); status > 0 {
		retryable := status == 429 || status >= 500
		return classified(ErrorTypeRejected, fmt.Sprintf("provider returned status %d", status), retryable, status)
	}

	var anthropicErr *anthropic.APIError
	if errors.As(err, &anthropicErr) {
		return classified(ErrorTypeRejected, "provider rejected request", false, 0)
	}

	if errors.Is(err, context.Canceled) {
		return classified(ErrorTypeUnavailable, "request canceled", false, 0)
	}

	return classified(ErrorTypeUnavailable, "provider unreachable", true, 0)
}

// statusCode extracts the HTTP status from the provider SDK error types,
// falling back to the "status code: N" text both SDKs emit.
func statusCode(err error) int {
	var anthropicReq *anthropic.RequestError
	if errors.As(err, &anthropicReq) && anthropicReq.StatusCode > 0 {
		return anthropicReq.StatusCode
	}
	var openaiAPI *openai.APIError
	if errors.As(err, &openaiAPI) && openaiAPI.HTTPStatusCode > 0 {
		return openaiAPI.HTTPStatusCode
	}
	var openaiReq *openai.RequestError
	if errors.As(err, &openaiReq) && openaiReq.HTTPStatusCode > 0 {
		return openaiReq.HTTPStatusCode
	}
	if m := statusCodePattern.FindStringSubmatch(strings.ToLower(err.Error())); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code
	}
	return 0
}

// IsTimeout reports whether err is an upstream timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, apperrors.ErrUpstreamTimeout)
}
