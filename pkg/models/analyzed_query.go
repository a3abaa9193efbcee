package models

import (
	"time"

	"github.com/google/uuid"
)

// AnalyzedQuery is a stored, annotated analytics query used as a relevance
// candidate. DuneQueryID is the natural key.
type AnalyzedQuery struct {
	ID              uuid.UUID      `json:"id"`
	DuneQueryID     string         `json:"dune_query_id"`
	SourceURL       string         `json:"source_url"`
	Title           string         `json:"title"`
	RawSQL          string         `json:"raw_sql"`
	AnnotatedSQL    string         `json:"annotated_sql"`
	Summary         string         `json:"summary"`
	KeyFeatures     []string       `json:"key_features"`
	BlockchainType  *string        `json:"blockchain_type,omitempty"`
	ProjectName     *string        `json:"project_name,omitempty"`
	ProjectCategory string         `json:"project_category"`
	Tags            []string       `json:"tags"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Blockchain returns the blockchain classification or "" when unset.
func (q *AnalyzedQuery) Blockchain() string {
	if q.BlockchainType == nil {
		return ""
	}
	return *q.BlockchainType
}

// Project returns the project classification or "" when unset.
func (q *AnalyzedQuery) Project() string {
	if q.ProjectName == nil {
		return ""
	}
	return *q.ProjectName
}

// HasClassification reports whether a blockchain or project is recorded.
func (q *AnalyzedQuery) HasClassification() bool {
	return q.Blockchain() != "" || q.Project() != ""
}

// RelatedQuery is a candidate that scored above zero for a user request.
type RelatedQuery struct {
	AnalyzedQuery
	RelevanceScore int `json:"relevance_score"`
}
