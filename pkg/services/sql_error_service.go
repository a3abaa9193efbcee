package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dunelens/dunelens/pkg/apperrors"
	"github.com/dunelens/dunelens/pkg/classifier"
	"github.com/dunelens/dunelens/pkg/models"
	"github.com/dunelens/dunelens/pkg/repositories"
)

// DefaultPastFixLimit caps how many learned fixes are offered as exemplars.
const DefaultPastFixLimit = 3

// RecordErrorInput is one observed failure of an SQL statement, optionally
// with the fix that was produced for it.
type RecordErrorInput struct {
	OriginalSQL    string   `json:"originalSql"`
	ErrorMessage   string   `json:"errorMessage"`
	UserIntent     string   `json:"userIntent,omitempty"`
	FixedSQL       string   `json:"fixedSql,omitempty"`
	FixExplanation string   `json:"fixExplanation,omitempty"`
	FixChanges     []string `json:"fixChanges,omitempty"`
	RelatedQueryID string   `json:"relatedQueryId,omitempty"`
	UserFeedback   string   `json:"userFeedback,omitempty"`
}

// SQLErrorService tracks failing statements and the fixes learned for them.
type SQLErrorService interface {
	// Record classifies the failure and upserts it by error hash. Repeat
	// occurrences increment the stored count.
	Record(ctx context.Context, in RecordErrorInput) (*models.SQLErrorRecord, error)

	// Get returns the record for hash; ErrNotFound when unknown.
	Get(ctx context.Context, hash string) (*models.SQLErrorRecord, error)

	// PastFixes returns fixed records, those of kind first.
	PastFixes(ctx context.Context, kind models.ErrorKind, limit int) ([]models.SQLErrorRecord, error)

	// Feedback attaches user feedback to the record for hash.
	Feedback(ctx context.Context, hash, feedback string) error
}

type sqlErrorService struct {
	repo   repositories.SQLErrorRepository
	logger *zap.Logger
}

// NewSQLErrorService creates a new SQL error service with its dependencies.
func NewSQLErrorService(repo repositories.SQLErrorRepository, logger *zap.Logger) SQLErrorService {
	return &sqlErrorService{
		repo:   repo,
		logger: logger.Named("sql-error-service"),
	}
}

var _ SQLErrorService = (*sqlErrorService)(nil)

func (s *sqlErrorService) Record(ctx context.Context, in RecordErrorInput) (*models.SQLErrorRecord, error) {
	if strings.TrimSpace(in.OriginalSQL) == "" {
		return nil, apperrors.InvalidInput("originalSql is required")
	}
	if strings.TrimSpace(in.ErrorMessage) == "" {
		return nil, apperrors.InvalidInput("errorMessage is required")
	}

	rec := &models.SQLErrorRecord{
		ErrorHash:      models.ComputeErrorHash(in.OriginalSQL, in.ErrorMessage),
		OriginalSQL:    in.OriginalSQL,
		ErrorMessage:   in.ErrorMessage,
		ErrorType:      classifier.ClassifyError(in.ErrorMessage),
		FixedSQL:       optional(in.FixedSQL),
		FixExplanation: optional(in.FixExplanation),
		FixChanges:     in.FixChanges,
		UserIntent:     optional(in.UserIntent),
		BlockchainType: optional(classifier.DetectBlockchainFromSQL(in.OriginalSQL)),
		QueryCategory:  classifier.DetectQueryCategory(in.OriginalSQL, in.UserIntent),
		RelatedQueryID: optional(in.RelatedQueryID),
	}

	if err := s.repo.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to record sql error: %w", err)
	}

	if in.UserFeedback != "" {
		if err := s.repo.SetFeedback(ctx, rec.ErrorHash, in.UserFeedback); err != nil {
			return nil, fmt.Errorf("failed to record feedback: %w", err)
		}
		rec.UserFeedback = optional(in.UserFeedback)
	}

	s.logger.Debug("Recorded sql error",
		zap.String("error_hash", rec.ErrorHash),
		zap.String("error_type", string(rec.ErrorType)),
		zap.Int("occurrence_count", rec.OccurrenceCount))

	return rec, nil
}

func (s *sqlErrorService) Get(ctx context.Context, hash string) (*models.SQLErrorRecord, error) {
	if hash == "" {
		return nil, apperrors.InvalidInput("error hash is required")
	}
	rec, err := s.repo.GetByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get sql error: %w", err)
	}
	if rec == nil {
		return nil, apperrors.ErrNotFound
	}
	return rec, nil
}

func (s *sqlErrorService) PastFixes(ctx context.Context, kind models.ErrorKind, limit int) ([]models.SQLErrorRecord, error) {
	if limit <= 0 {
		limit = DefaultPastFixLimit
	}
	fixes, err := s.repo.ListFixed(ctx, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list past fixes: %w", err)
	}
	return fixes, nil
}

func (s *sqlErrorService) Feedback(ctx context.Context, hash, feedback string) error {
	if hash == "" {
		return apperrors.InvalidInput("error hash is required")
	}
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return apperrors.InvalidInput("feedback is required")
	}
	if err := s.repo.SetFeedback(ctx, hash, feedback); err != nil {
		return fmt.Errorf("failed to set feedback: %w", err)
	}
	return nil
}

// optional maps "" to nil for nullable columns.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
