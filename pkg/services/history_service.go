package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dunelens/dunelens/pkg/apperrors"
	"github.com/dunelens/dunelens/pkg/models"
	"github.com/dunelens/dunelens/pkg/repositories"
)

// DefaultHistoryLimit bounds List when the caller passes no limit.
const DefaultHistoryLimit = 50

// HistoryService stores generation history and execution outcomes.
type HistoryService interface {
	// Record stores rec, filling a session id and not_tested result when unset.
	Record(ctx context.Context, rec *models.GenerationHistoryRecord) error

	// MarkExecution records the result of running generated SQL.
	MarkExecution(ctx context.Context, id uuid.UUID, result models.ExecutionResult, errorID *uuid.UUID) error

	// Get returns one history record; ErrNotFound when unknown.
	Get(ctx context.Context, id uuid.UUID) (*models.GenerationHistoryRecord, error)

	// List returns a session's history, newest first.
	List(ctx context.Context, session string, limit int) ([]models.GenerationHistoryRecord, error)
}

type historyService struct {
	repo   repositories.GenerationHistoryRepository
	now    func() time.Time
	logger *zap.Logger
}

// NewHistoryService creates a new generation history service.
func NewHistoryService(repo repositories.GenerationHistoryRepository, logger *zap.Logger) HistoryService {
	return &historyService{
		repo:   repo,
		now:    time.Now,
		logger: logger.Named("history-service"),
	}
}

var _ HistoryService = (*historyService)(nil)

// NewSessionID returns the default session id for a request made at t.
func NewSessionID(t time.Time) string {
	return fmt.Sprintf("session_%d", t.UnixMilli())
}

func (s *historyService) Record(ctx context.Context, rec *models.GenerationHistoryRecord) error {
	if strings.TrimSpace(rec.UserQuery) == "" {
		return apperrors.InvalidInput("userQuery is required")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.UserSession == "" {
		rec.UserSession = NewSessionID(s.now())
	}
	if rec.ExecutionResult == "" {
		rec.ExecutionResult = models.ExecutionNotTested
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		return fmt.Errorf("failed to record generation history: %w", err)
	}
	return nil
}

func (s *historyService) MarkExecution(ctx context.Context, id uuid.UUID, result models.ExecutionResult, errorID *uuid.UUID) error {
	if id == uuid.Nil {
		return apperrors.InvalidInput("history id is required")
	}
	if !result.Valid() {
		return apperrors.InvalidInput(fmt.Sprintf("executionResult must be one of %q, %q, %q",
			models.ExecutionNotTested, models.ExecutionSuccess, models.ExecutionFailed))
	}
	if result != models.ExecutionFailed && errorID != nil {
		return apperrors.InvalidInput("executionErrorId is only valid for a failed execution")
	}

	if err := s.repo.UpdateExecution(ctx, id, result, errorID); err != nil {
		return fmt.Errorf("failed to update execution result: %w", err)
	}

	s.logger.Debug("Marked execution",
		zap.String("history_id", id.String()),
		zap.String("result", string(result)))
	return nil
}

func (s *historyService) Get(ctx context.Context, id uuid.UUID) (*models.GenerationHistoryRecord, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get generation history: %w", err)
	}
	if rec == nil {
		return nil, apperrors.ErrNotFound
	}
	return rec, nil
}

func (s *historyService) List(ctx context.Context, session string, limit int) ([]models.GenerationHistoryRecord, error) {
	if strings.TrimSpace(session) == "" {
		return nil, apperrors.InvalidInput("session is required")
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	records, err := s.repo.ListBySession(ctx, session, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list generation history: %w", err)
	}
	return records, nil
}
