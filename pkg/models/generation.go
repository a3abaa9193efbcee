package models

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionResult records what happened when generated SQL was run.
type ExecutionResult string

const (
	ExecutionNotTested ExecutionResult = "not_tested"
	ExecutionSuccess   ExecutionResult = "success"
	ExecutionFailed    ExecutionResult = "failed"
)

// Valid reports whether r is one of the known results.
func (r ExecutionResult) Valid() bool {
	switch r {
	case ExecutionNotTested, ExecutionSuccess, ExecutionFailed:
		return true
	}
	return false
}

// GenerationHistoryRecord is one natural-language to SQL generation.
type GenerationHistoryRecord struct {
	ID                 uuid.UUID       `json:"id"`
	UserQuery          string          `json:"user_query"`
	UserSession        string          `json:"user_session"`
	GeneratedSQL       string          `json:"generated_sql"`
	AIExplanation      string          `json:"ai_explanation"`
	AIConfidence       float64         `json:"ai_confidence"`
	RelatedQueriesUsed []string        `json:"related_queries_used"`
	DetectedBlockchain *string         `json:"detected_blockchain,omitempty"`
	DetectedProtocols  []string        `json:"detected_protocols"`
	ExecutionResult    ExecutionResult `json:"execution_result"`
	ExecutionErrorID   *uuid.UUID      `json:"execution_error_id,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}
