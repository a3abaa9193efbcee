package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// ErrorKind is the fixed taxonomy an SQL error message is classified into.
type ErrorKind string

const (
	ErrorKindNoResults      ErrorKind = "no_results"
	ErrorKindSyntax         ErrorKind = "syntax_error"
	ErrorKindTableNotFound  ErrorKind = "table_not_found"
	ErrorKindColumnNotFound ErrorKind = "column_not_found"
	ErrorKindPermission     ErrorKind = "permission_error"
	ErrorKindTimeout        ErrorKind = "timeout_error"
	ErrorKindLimitExceeded  ErrorKind = "limit_exceeded"
	ErrorKindAggregation    ErrorKind = "aggregation_error"
	ErrorKindUnknown        ErrorKind = "unknown_error"
)

// ErrorHashSeparator joins SQL and message before hashing.
const ErrorHashSeparator = "|||"

// ComputeErrorHash returns the natural key of an (sql, error message) pair.
func ComputeErrorHash(originalSQL, errorMessage string) string {
	sum := sha256.Sum256([]byte(originalSQL + ErrorHashSeparator + errorMessage))
	return hex.EncodeToString(sum[:])
}

// SQLErrorRecord tracks one distinct failing (sql, error) pair and the
// best known fix for it.
type SQLErrorRecord struct {
	ID              uuid.UUID `json:"id"`
	ErrorHash       string    `json:"error_hash"`
	OriginalSQL     string    `json:"original_sql"`
	ErrorMessage    string    `json:"error_message"`
	ErrorType       ErrorKind `json:"error_type"`
	FixedSQL        *string   `json:"fixed_sql,omitempty"`
	FixExplanation  *string   `json:"fix_explanation,omitempty"`
	FixChanges      []string  `json:"fix_changes"`
	UserIntent      *string   `json:"user_intent,omitempty"`
	BlockchainType  *string   `json:"blockchain_type,omitempty"`
	QueryCategory   string    `json:"query_category"`
	RelatedQueryID  *string   `json:"related_query_id,omitempty"`
	OccurrenceCount int       `json:"occurrence_count"`
	LastOccurrence  time.Time `json:"last_occurrence"`
	UserFeedback    *string   `json:"user_feedback,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
