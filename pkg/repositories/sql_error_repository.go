package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/dunelens/dunelens/pkg/apperrors"
	"github.com/dunelens/dunelens/pkg/database"
	"github.com/dunelens/dunelens/pkg/models"
)

// SQLErrorRepository provides data access for recorded SQL errors and fixes.
type SQLErrorRepository interface {
	// Upsert records one occurrence of rec's (sql, error) pair. A repeat
	// occurrence increments occurrence_count atomically and keeps any
	// previously learned fix unless rec carries a new one. rec is refreshed
	// from the stored row.
	Upsert(ctx context.Context, rec *models.SQLErrorRecord) error
	// GetByHash returns nil, nil when no row exists.
	GetByHash(ctx context.Context, errorHash string) (*models.SQLErrorRecord, error)
	// ListFixed returns records that have a fix, those of errorType first,
	// then by occurrence count.
	ListFixed(ctx context.Context, errorType models.ErrorKind, limit int) ([]models.SQLErrorRecord, error)
	// SetFeedback stores user feedback; ErrNotFound when the hash is unknown.
	SetFeedback(ctx context.Context, errorHash, feedback string) error
}

type sqlErrorRepository struct {
	db *database.DB
}

// NewSQLErrorRepository creates a repository over db.
func NewSQLErrorRepository(db *database.DB) SQLErrorRepository {
	return &sqlErrorRepository{db: db}
}

var _ SQLErrorRepository = (*sqlErrorRepository)(nil)

const sqlErrorColumns = `
	id, error_hash, original_sql, error_message, error_type, fixed_sql, fix_explanation,
	fix_changes, user_intent, blockchain_type, query_category, related_query_id,
	occurrence_count, last_occurrence, user_feedback, created_at, updated_at`

func (r *sqlErrorRepository) Upsert(ctx context.Context, rec *models.SQLErrorRecord) error {
	if rec.ErrorHash == "" {
		rec.ErrorHash = models.ComputeErrorHash(rec.OriginalSQL, rec.ErrorMessage)
	}
	category := rec.QueryCategory
	if category == "" {
		category = "general"
	}

	query := `
		INSERT INTO sql_errors (
			error_hash, original_sql, error_message, error_type, fixed_sql, fix_explanation,
			fix_changes, user_intent, blockchain_type, query_category, related_query_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (error_hash) DO UPDATE SET
			occurrence_count = sql_errors.occurrence_count + 1,
			last_occurrence = now(),
			updated_at = now(),
			error_type = EXCLUDED.error_type,
			fixed_sql = COALESCE(EXCLUDED.fixed_sql, sql_errors.fixed_sql),
			fix_explanation = COALESCE(EXCLUDED.fix_explanation, sql_errors.fix_explanation),
			fix_changes = CASE WHEN EXCLUDED.fixed_sql IS NOT NULL
				THEN EXCLUDED.fix_changes ELSE sql_errors.fix_changes END,
			user_intent = COALESCE(EXCLUDED.user_intent, sql_errors.user_intent),
			blockchain_type = COALESCE(EXCLUDED.blockchain_type, sql_errors.blockchain_type),
			related_query_id = COALESCE(EXCLUDED.related_query_id, sql_errors.related_query_id)
		RETURNING ` + sqlErrorColumns

	stored, err := scanSQLError(r.db.QueryRow(ctx, query,
		rec.ErrorHash,
		rec.OriginalSQL,
		rec.ErrorMessage,
		rec.ErrorType,
		rec.FixedSQL,
		rec.FixExplanation,
		nonNil(rec.FixChanges),
		rec.UserIntent,
		rec.BlockchainType,
		category,
		rec.RelatedQueryID,
	))
	if err != nil {
		return database.WrapError("upsert sql error", err)
	}
	*rec = *stored
	return nil
}

func (r *sqlErrorRepository) GetByHash(ctx context.Context, errorHash string) (*models.SQLErrorRecord, error) {
	rec, err := scanSQLError(r.db.QueryRow(ctx,
		`SELECT `+sqlErrorColumns+` FROM sql_errors WHERE error_hash = $1`, errorHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, database.WrapError("get sql error", err)
	}
	return rec, nil
}

func (r *sqlErrorRepository) ListFixed(ctx context.Context, errorType models.ErrorKind, limit int) ([]models.SQLErrorRecord, error) {
	if limit <= 0 {
		limit = 3
	}

	query := `SELECT ` + sqlErrorColumns + `
		FROM sql_errors
		WHERE fixed_sql IS NOT NULL
		  AND (user_feedback IS NULL OR user_feedback <> 'unhelpful')
		ORDER BY (error_type = $1) DESC, occurrence_count DESC, last_occurrence DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, errorType, limit)
	if err != nil {
		return nil, database.WrapError("list past fixes", err)
	}
	defer rows.Close()

	var records []models.SQLErrorRecord
	for rows.Next() {
		rec, err := scanSQLError(rows)
		if err != nil {
			return nil, database.WrapError("scan past fix", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, database.WrapError("iterate past fixes", err)
	}
	return records, nil
}

func (r *sqlErrorRepository) SetFeedback(ctx context.Context, errorHash, feedback string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE sql_errors SET user_feedback = $2, updated_at = now() WHERE error_hash = $1`,
		errorHash, feedback)
	if err != nil {
		return database.WrapError("set sql error feedback", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanSQLError(row pgx.Row) (*models.SQLErrorRecord, error) {
	var rec models.SQLErrorRecord
	err := row.Scan(
		&rec.ID,
		&rec.ErrorHash,
		&rec.OriginalSQL,
		&rec.ErrorMessage,
		&rec.ErrorType,
		&rec.FixedSQL,
		&rec.FixExplanation,
		&rec.FixChanges,
		&rec.UserIntent,
		&rec.BlockchainType,
		&rec.QueryCategory,
		&rec.RelatedQueryID,
		&rec.OccurrenceCount,
		&rec.LastOccurrence,
		&rec.UserFeedback,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
