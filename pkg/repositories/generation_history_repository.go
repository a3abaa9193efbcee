package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dunelens/dunelens/pkg/apperrors"
	"github.com/dunelens/dunelens/pkg/database"
	"github.com/dunelens/dunelens/pkg/models"
)

// GenerationHistoryRepository provides data access for SQL generation history.
type GenerationHistoryRepository interface {
	Create(ctx context.Context, rec *models.GenerationHistoryRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.GenerationHistoryRecord, error)
	ListBySession(ctx context.Context, session string, limit int) ([]models.GenerationHistoryRecord, error)
	// UpdateExecution records the outcome of running the generated SQL.
	// Returns ErrNotFound when id is unknown.
	UpdateExecution(ctx context.Context, id uuid.UUID, result models.ExecutionResult, errorID *uuid.UUID) error
}

type generationHistoryRepository struct {
	db *database.DB
}

// NewGenerationHistoryRepository creates a repository over db.
func NewGenerationHistoryRepository(db *database.DB) GenerationHistoryRepository {
	return &generationHistoryRepository{db: db}
}

var _ GenerationHistoryRepository = (*generationHistoryRepository)(nil)

const generationHistoryColumns = `
	id, user_query, user_session, generated_sql, ai_explanation, ai_confidence,
	related_queries_used, detected_blockchain, detected_protocols, execution_result,
	execution_error_id, created_at, updated_at`

func (r *generationHistoryRepository) Create(ctx context.Context, rec *models.GenerationHistoryRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.ExecutionResult == "" {
		rec.ExecutionResult = models.ExecutionNotTested
	}

	query := `
		INSERT INTO generation_history (
			id, user_query, user_session, generated_sql, ai_explanation, ai_confidence,
			related_queries_used, detected_blockchain, detected_protocols, execution_result,
			execution_error_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		rec.ID,
		rec.UserQuery,
		rec.UserSession,
		rec.GeneratedSQL,
		rec.AIExplanation,
		rec.AIConfidence,
		nonNil(rec.RelatedQueriesUsed),
		rec.DetectedBlockchain,
		nonNil(rec.DetectedProtocols),
		rec.ExecutionResult,
		rec.ExecutionErrorID,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		// A retried create with the same id already landed.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return database.WrapError("create generation history", err)
	}
	return nil
}

func (r *generationHistoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.GenerationHistoryRecord, error) {
	rec, err := scanGenerationHistory(r.db.QueryRow(ctx,
		`SELECT `+generationHistoryColumns+` FROM generation_history WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, database.WrapError("get generation history", err)
	}
	return rec, nil
}

func (r *generationHistoryRepository) ListBySession(ctx context.Context, session string, limit int) ([]models.GenerationHistoryRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := r.db.Query(ctx, `SELECT `+generationHistoryColumns+`
		FROM generation_history
		WHERE user_session = $1
		ORDER BY created_at DESC
		LIMIT $2`, session, limit)
	if err != nil {
		return nil, database.WrapError("list generation history", err)
	}
	defer rows.Close()

	var records []models.GenerationHistoryRecord
	for rows.Next() {
		rec, err := scanGenerationHistory(rows)
		if err != nil {
			return nil, database.WrapError("scan generation history", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, database.WrapError("iterate generation history", err)
	}
	return records, nil
}

func (r *generationHistoryRepository) UpdateExecution(ctx context.Context, id uuid.UUID, result models.ExecutionResult, errorID *uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE generation_history
		SET execution_result = $2, execution_error_id = $3, updated_at = now()
		WHERE id = $1`, id, result, errorID)
	if err != nil {
		return database.WrapError("update generation execution", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanGenerationHistory(row pgx.Row) (*models.GenerationHistoryRecord, error) {
	var rec models.GenerationHistoryRecord
	err := row.Scan(
		&rec.ID,
		&rec.UserQuery,
		&rec.UserSession,
		&rec.GeneratedSQL,
		&rec.AIExplanation,
		&rec.AIConfidence,
		&rec.RelatedQueriesUsed,
		&rec.DetectedBlockchain,
		&rec.DetectedProtocols,
		&rec.ExecutionResult,
		&rec.ExecutionErrorID,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
