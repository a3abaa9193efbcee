package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dunelens/dunelens/pkg/apperrors"
	"github.com/dunelens/dunelens/pkg/config"
	"github.com/dunelens/dunelens/pkg/logging"
	"github.com/dunelens/dunelens/pkg/models"
	"github.com/dunelens/dunelens/pkg/relevance"
	"github.com/dunelens/dunelens/pkg/repositories"
)

// RelatedQueriesResult is the ranked answer to a related-query lookup.
type RelatedQueriesResult struct {
	Queries         []models.RelatedQuery `json:"relatedQueries"`
	Context         relevance.Context     `json:"context"`
	TotalCandidates int                   `json:"totalCandidates"`
	// Degraded is set when the candidate store could not be read.
	Degraded bool `json:"degraded"`
}

// RelatedQueryService finds stored analyses relevant to a free-text request.
type RelatedQueryService interface {
	// Extract returns the keywords and blockchain/protocol context of text.
	Extract(text string) relevance.Context

	// FindRelated extracts context from text and ranks stored candidates.
	FindRelated(ctx context.Context, text string, limit int) (*RelatedQueriesResult, error)

	// FindForContext ranks stored candidates against an already built context.
	FindForContext(ctx context.Context, qc relevance.Context, limit int) (*RelatedQueriesResult, error)
}

type relatedQueryService struct {
	repo      repositories.AnalyzedQueryRepository
	extractor *relevance.Extractor
	cfg       config.RelevanceConfig
	logger    *zap.Logger
}

// NewRelatedQueryService creates a related-query service. A nil extractor
// uses the built-in vocabulary.
func NewRelatedQueryService(
	repo repositories.AnalyzedQueryRepository,
	extractor *relevance.Extractor,
	cfg config.RelevanceConfig,
	logger *zap.Logger,
) RelatedQueryService {
	if extractor == nil {
		extractor = relevance.NewExtractor(nil)
	}
	if cfg.CandidatePool <= 0 {
		cfg.CandidatePool = 50
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = relevance.DefaultLimit
	}
	return &relatedQueryService{
		repo:      repo,
		extractor: extractor,
		cfg:       cfg,
		logger:    logger.Named("related-query-service"),
	}
}

var _ RelatedQueryService = (*relatedQueryService)(nil)

func (s *relatedQueryService) Extract(text string) relevance.Context {
	return s.extractor.Extract(text)
}

func (s *relatedQueryService) FindRelated(ctx context.Context, text string, limit int) (*RelatedQueriesResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.InvalidInput("query text is required")
	}
	return s.FindForContext(ctx, s.extractor.Extract(text), limit)
}

func (s *relatedQueryService) FindForContext(ctx context.Context, qc relevance.Context, limit int) (*RelatedQueriesResult, error) {
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}

	result := &RelatedQueriesResult{Queries: []models.RelatedQuery{}, Context: qc}

	candidates, err := s.repo.ListCandidates(ctx, qc.Blockchain, s.cfg.CandidatePool)
	if err != nil {
		if errors.Is(err, apperrors.ErrStorageUnavailable) {
			s.logger.Warn("Candidate store unavailable, returning no related queries",
				zap.String("error", logging.SanitizeError(err)))
			result.Degraded = true
			return result, nil
		}
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}

	result.TotalCandidates = len(candidates)
	result.Queries = relevance.Rank(candidates, qc, limit)

	s.logger.Debug("Ranked related queries",
		zap.Int("candidates", len(candidates)),
		zap.Int("matched", len(result.Queries)),
		zap.String("blockchain", qc.Blockchain),
		zap.Strings("keywords", qc.Keywords))

	return result, nil
}
