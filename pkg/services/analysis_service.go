package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dunelens/dunelens/pkg/apperrors"
	"github.com/dunelens/dunelens/pkg/classifier"
	"github.com/dunelens/dunelens/pkg/dune"
	"github.com/dunelens/dunelens/pkg/jsonutil"
	"github.com/dunelens/dunelens/pkg/llm"
	"github.com/dunelens/dunelens/pkg/logging"
	"github.com/dunelens/dunelens/pkg/models"
	"github.com/dunelens/dunelens/pkg/prompts"
	"github.com/dunelens/dunelens/pkg/repositories"
)

const analysisSystemPrompt = "You document Dune Analytics queries. Reply with a single JSON object and nothing else."

// SaveResult reports what the merge policy did with an analysis.
// Persisted is false when the store could not be reached.
type SaveResult struct {
	Action        models.PersistAction  `json:"action"`
	Reason        string                `json:"reason"`
	Query         *models.AnalyzedQuery `json:"query"`
	Persisted     bool                  `json:"persisted"`
	Degraded      bool                  `json:"degraded,omitempty"`
	UpstreamError string                `json:"upstreamError,omitempty"`
}

// AnalysisService builds and stores annotated reference queries.
type AnalysisService interface {
	// AnalyzeURL fetches a Dune query, annotates it with the completion
	// provider and saves it.
	AnalyzeURL(ctx context.Context, queryURL string) (*SaveResult, error)

	// Save applies the merge policy to incoming and writes it when needed.
	Save(ctx context.Context, incoming *models.AnalyzedQuery) (*SaveResult, error)
}

type analysisService struct {
	repo      repositories.AnalyzedQueryRepository
	dune      DuneClient
	completer llm.Completer
	policy    *PersistencePolicy
	now       func() time.Time
	logger    *zap.Logger
}

// NewAnalysisService creates an analysis service.
func NewAnalysisService(
	repo repositories.AnalyzedQueryRepository,
	duneClient DuneClient,
	completer llm.Completer,
	policy *PersistencePolicy,
	logger *zap.Logger,
) AnalysisService {
	if policy == nil {
		policy = NewPersistencePolicy(nil)
	}
	return &analysisService{
		repo:      repo,
		dune:      duneClient,
		completer: completer,
		policy:    policy,
		now:       time.Now,
		logger:    logger.Named("analysis-service"),
	}
}

var _ AnalysisService = (*analysisService)(nil)

type analysisReply struct {
	Title           string           `json:"title"`
	Summary         string           `json:"summary"`
	AnnotatedSQL    string           `json:"annotatedSQL"`
	KeyFeatures     jsonutil.Strings `json:"keyFeatures"`
	BlockchainType  *string          `json:"blockchainType"`
	ProjectName     *string          `json:"projectName"`
	ProjectCategory string           `json:"projectCategory"`
	Tags            jsonutil.Strings `json:"tags"`
}

func validAnalysisReply(r *analysisReply) bool {
	return strings.TrimSpace(r.AnnotatedSQL) != "" || strings.TrimSpace(r.Summary) != ""
}

func (s *analysisService) AnalyzeURL(ctx context.Context, queryURL string) (*SaveResult, error) {
	queryID, normalized, err := dune.ParseQueryURL(queryURL)
	if err != nil {
		return nil, err
	}
	if s.dune == nil || !s.dune.IsConfigured() {
		return nil, fmt.Errorf("dune api key not configured: %w", apperrors.ErrUpstreamUnavailable)
	}

	q, err := s.dune.GetQuery(ctx, queryID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dune query %d: %w", queryID, err)
	}
	if strings.TrimSpace(q.QuerySQL) == "" {
		return nil, apperrors.InvalidInput(fmt.Sprintf("dune query %d has no SQL (private or empty)", queryID))
	}

	analysis := baseAnalysis(q, normalized)
	var upstreamErr string

	raw, err := completeWithRetry(ctx, s.completer, llm.Request{
		System: analysisSystemPrompt,
		Prompt: prompts.BuildAnalysisPrompt(q),
	})
	switch {
	case err == nil:
		reply := llm.Decode(raw, validAnalysisReply)
		if reply.IsParsed() {
			applyAnalysisReply(analysis, &reply.Value)
		} else {
			s.logger.Warn("Analysis reply unparseable, keeping raw SQL only",
				zap.Int64("query_id", queryID),
				zap.String("error", reply.Err.Error()))
			analysis.Metadata["degraded"] = true
		}
	case isDegradableUpstream(err):
		s.logger.Warn("Completion failed, keeping raw SQL only",
			zap.Int64("query_id", queryID),
			zap.String("error", logging.SanitizeError(err)))
		analysis.Metadata["degraded"] = true
		upstreamErr = upstreamKind(err)
	default:
		return nil, fmt.Errorf("failed to analyze dune query %d: %w", queryID, err)
	}

	fillClassification(analysis, q)

	result, err := s.Save(ctx, analysis)
	if err != nil {
		return nil, err
	}
	result.Degraded = analysis.Metadata["degraded"] == true
	result.UpstreamError = upstreamErr
	return result, nil
}

func (s *analysisService) Save(ctx context.Context, incoming *models.AnalyzedQuery) (*SaveResult, error) {
	if incoming == nil || strings.TrimSpace(incoming.DuneQueryID) == "" {
		return nil, apperrors.InvalidInput("dune_query_id is required")
	}
	if strings.TrimSpace(incoming.RawSQL) == "" {
		return nil, apperrors.InvalidInput("raw_sql is required")
	}

	existing, err := s.repo.GetByDuneID(ctx, incoming.DuneQueryID)
	if err != nil {
		if isStorageDegraded(err) {
			logPersistFailure(s.logger, "analysis", err)
			return &SaveResult{Action: models.PersistSkip, Reason: "storage unavailable", Query: incoming}, nil
		}
		return nil, fmt.Errorf("failed to read existing analysis: %w", err)
	}

	merged := mergeAnalysis(existing, incoming)
	decision := s.policy.ShouldPersist(existing, merged, s.now())

	if decision.Action == models.PersistSkip {
		s.logger.Debug("Analysis already current", zap.String("dune_query_id", incoming.DuneQueryID))
		return &SaveResult{Action: decision.Action, Reason: decision.Reason, Query: existing, Persisted: true}, nil
	}

	if err := s.repo.Upsert(ctx, merged); err != nil {
		if isStorageDegraded(err) {
			logPersistFailure(s.logger, "analysis", err)
			return &SaveResult{Action: decision.Action, Reason: decision.Reason, Query: merged}, nil
		}
		return nil, fmt.Errorf("failed to save analysis: %w", err)
	}

	s.logger.Info("Saved analysis",
		zap.String("dune_query_id", merged.DuneQueryID),
		zap.String("action", string(decision.Action)),
		zap.String("reason", decision.Reason))

	return &SaveResult{Action: decision.Action, Reason: decision.Reason, Query: merged, Persisted: true}, nil
}

func baseAnalysis(q *dune.Query, sourceURL string) *models.AnalyzedQuery {
	return &models.AnalyzedQuery{
		DuneQueryID: strconv.FormatInt(q.QueryID, 10),
		SourceURL:   sourceURL,
		Title:       q.Name,
		RawSQL:      q.QuerySQL,
		Summary:     q.Description,
		KeyFeatures: []string{},
		Tags:        nonNilStrings(q.Tags),
		Metadata: map[string]any{
			"owner":      q.Owner,
			"is_private": q.IsPrivate,
		},
	}
}

func applyAnalysisReply(a *models.AnalyzedQuery, r *analysisReply) {
	if t := strings.TrimSpace(r.Title); t != "" {
		a.Title = t
	}
	if sum := strings.TrimSpace(r.Summary); sum != "" {
		a.Summary = sum
	}
	a.AnnotatedSQL = strings.TrimSpace(r.AnnotatedSQL)
	a.KeyFeatures = nonNilStrings(r.KeyFeatures)
	a.BlockchainType = optional(cleanLabel(r.BlockchainType))
	a.ProjectName = optional(cleanLabel(r.ProjectName))
	a.ProjectCategory = strings.TrimSpace(r.ProjectCategory)
	a.Tags = unionStrings(a.Tags, r.Tags)
}

// fillClassification derives what the model left out from the SQL.
func fillClassification(a *models.AnalyzedQuery, q *dune.Query) {
	if a.Blockchain() == "" {
		a.BlockchainType = optional(classifier.DetectBlockchainFromSQL(a.RawSQL))
	}
	if a.ProjectCategory == "" {
		a.ProjectCategory = classifier.DetectQueryCategory(a.RawSQL, q.Name+" "+q.Description)
	}
}

// cleanLabel treats the model's "null" and "unknown" spellings as absent.
func cleanLabel(s *string) string {
	if s == nil {
		return ""
	}
	v := strings.ToLower(strings.TrimSpace(*s))
	switch v {
	case "null", "none", "unknown", "n/a":
		return ""
	}
	return v
}

// mergeAnalysis fills fields incoming left empty from existing.
func mergeAnalysis(existing, incoming *models.AnalyzedQuery) *models.AnalyzedQuery {
	merged := *incoming
	if existing == nil {
		return &merged
	}
	if merged.SourceURL == "" {
		merged.SourceURL = existing.SourceURL
	}
	if merged.Title == "" {
		merged.Title = existing.Title
	}
	if merged.AnnotatedSQL == "" {
		merged.AnnotatedSQL = existing.AnnotatedSQL
	}
	if merged.Summary == "" {
		merged.Summary = existing.Summary
	}
	if len(merged.KeyFeatures) == 0 {
		merged.KeyFeatures = existing.KeyFeatures
	}
	if merged.Blockchain() == "" {
		merged.BlockchainType = existing.BlockchainType
	}
	if merged.Project() == "" {
		merged.ProjectName = existing.ProjectName
	}
	if merged.ProjectCategory == "" {
		merged.ProjectCategory = existing.ProjectCategory
	}
	if len(merged.Tags) == 0 {
		merged.Tags = existing.Tags
	}
	if len(merged.Metadata) == 0 {
		merged.Metadata = existing.Metadata
	}
	return &merged
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			v = strings.TrimSpace(v)
			if v != "" && !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}
