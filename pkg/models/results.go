package models

// AnalysisType distinguishes the two repair prompts.
type AnalysisType string

const (
	AnalysisTypeDataAnalysis AnalysisType = "data_analysis"
	AnalysisTypeErrorFix     AnalysisType = "error_fix"
)

// FixResult is the outcome of a repair request.
type FixResult struct {
	SQL                string       `json:"fixedSql"`
	Explanation        string       `json:"explanation"`
	Changes            []string     `json:"changes"`
	CommonMistakes     []string     `json:"commonMistakes,omitempty"`
	TestingSuggestions []string     `json:"testingSuggestions,omitempty"`
	AlternativeQueries []string     `json:"alternativeQueries,omitempty"`
	Confidence         float64      `json:"confidence"`
	ErrorType          ErrorKind    `json:"errorType"`
	AnalysisType       AnalysisType `json:"analysisType"`
	// Degraded is set when the model reply could not be used as-is.
	Degraded bool `json:"degraded"`
	// UpstreamError names the provider failure behind a degraded result.
	UpstreamError  string         `json:"upstreamError,omitempty"`
	RelatedQueries []RelatedQuery `json:"relatedQueries,omitempty"`
	ErrorHash      string         `json:"errorHash,omitempty"`
	Persisted      bool           `json:"persisted"`
}

// GenerationResult is the outcome of a natural-language to SQL request.
type GenerationResult struct {
	GeneratedSQL           string         `json:"generatedSql"`
	Explanation            string         `json:"explanation"`
	Assumptions            []string       `json:"assumptions"`
	ClarificationQuestions []string       `json:"clarificationQuestions"`
	SuggestedImprovements  []string       `json:"suggestedImprovements,omitempty"`
	Confidence             float64        `json:"confidence"`
	Degraded               bool           `json:"degraded"`
	UpstreamError          string         `json:"upstreamError,omitempty"`
	RelatedQueries         []RelatedQuery `json:"relatedQueries,omitempty"`
	RelatedQueriesUsed     []string       `json:"relatedQueriesUsed"`
	DetectedBlockchain     string         `json:"detectedBlockchain,omitempty"`
	DetectedProtocols      []string       `json:"detectedProtocols"`
	HistoryID              string         `json:"historyId,omitempty"`
	Persisted              bool           `json:"persisted"`
}

// PersistAction is the outcome of the merge policy.
type PersistAction string

const (
	PersistInsert PersistAction = "insert"
	PersistUpdate PersistAction = "update"
	PersistSkip   PersistAction = "skip"
)

// PersistDecision explains what the merge policy chose and why.
type PersistDecision struct {
	Action PersistAction `json:"action"`
	Reason string        `json:"reason"`
}
