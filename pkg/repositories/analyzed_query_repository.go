package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dunelens/dunelens/pkg/database"
	"github.com/dunelens/dunelens/pkg/models"
)

// AnalyzedQueryRepository provides data access for analyzed Dune queries.
type AnalyzedQueryRepository interface {
	// GetByDuneID returns nil, nil when no row exists.
	GetByDuneID(ctx context.Context, duneQueryID string) (*models.AnalyzedQuery, error)
	// ListCandidates returns the most recently updated queries, restricted to
	// blockchain when it is non-empty.
	ListCandidates(ctx context.Context, blockchain string, limit int) ([]models.AnalyzedQuery, error)
	// Upsert inserts q or overwrites the row with the same Dune query id.
	Upsert(ctx context.Context, q *models.AnalyzedQuery) error
	Count(ctx context.Context) (int, error)
}

type analyzedQueryRepository struct {
	db *database.DB
}

// NewAnalyzedQueryRepository creates a repository over db.
func NewAnalyzedQueryRepository(db *database.DB) AnalyzedQueryRepository {
	return &analyzedQueryRepository{db: db}
}

var _ AnalyzedQueryRepository = (*analyzedQueryRepository)(nil)

const analyzedQueryColumns = `
	id, dune_query_id, source_url, title, raw_sql, annotated_sql, summary,
	key_features, blockchain_type, project_name, project_category, tags, metadata,
	created_at, updated_at`

func (r *analyzedQueryRepository) GetByDuneID(ctx context.Context, duneQueryID string) (*models.AnalyzedQuery, error) {
	query := `SELECT ` + analyzedQueryColumns + ` FROM analyzed_queries WHERE dune_query_id = $1`

	q, err := scanAnalyzedQuery(r.db.QueryRow(ctx, query, duneQueryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, database.WrapError("get analyzed query", err)
	}
	return q, nil
}

func (r *analyzedQueryRepository) ListCandidates(ctx context.Context, blockchain string, limit int) ([]models.AnalyzedQuery, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + analyzedQueryColumns + `
		FROM analyzed_queries
		WHERE ($1 = '' OR blockchain_type = $1)
		ORDER BY updated_at DESC, id
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, blockchain, limit)
	if err != nil {
		return nil, database.WrapError("list candidate queries", err)
	}
	defer rows.Close()

	var candidates []models.AnalyzedQuery
	for rows.Next() {
		q, err := scanAnalyzedQuery(rows)
		if err != nil {
			return nil, database.WrapError("scan candidate query", err)
		}
		candidates = append(candidates, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, database.WrapError("iterate candidate queries", err)
	}
	return candidates, nil
}

func (r *analyzedQueryRepository) Upsert(ctx context.Context, q *models.AnalyzedQuery) error {
	metadata, err := marshalJSONB(q.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	category := q.ProjectCategory
	if category == "" {
		category = "general"
	}

	query := `
		INSERT INTO analyzed_queries (
			dune_query_id, source_url, title, raw_sql, annotated_sql, summary,
			key_features, blockchain_type, project_name, project_category, tags, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (dune_query_id) DO UPDATE SET
			source_url = EXCLUDED.source_url,
			title = EXCLUDED.title,
			raw_sql = EXCLUDED.raw_sql,
			annotated_sql = EXCLUDED.annotated_sql,
			summary = EXCLUDED.summary,
			key_features = EXCLUDED.key_features,
			blockchain_type = EXCLUDED.blockchain_type,
			project_name = EXCLUDED.project_name,
			project_category = EXCLUDED.project_category,
			tags = EXCLUDED.tags,
			metadata = EXCLUDED.metadata,
			updated_at = now()
		RETURNING id, created_at, updated_at`

	err = r.db.QueryRow(ctx, query,
		q.DuneQueryID,
		q.SourceURL,
		q.Title,
		q.RawSQL,
		q.AnnotatedSQL,
		q.Summary,
		nonNil(q.KeyFeatures),
		q.BlockchainType,
		q.ProjectName,
		category,
		nonNil(q.Tags),
		metadata,
	).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return database.WrapError("upsert analyzed query", err)
	}
	q.ProjectCategory = category
	return nil
}

func (r *analyzedQueryRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM analyzed_queries`).Scan(&n); err != nil {
		return 0, database.WrapError("count analyzed queries", err)
	}
	return n, nil
}

func scanAnalyzedQuery(row pgx.Row) (*models.AnalyzedQuery, error) {
	var q models.AnalyzedQuery
	var metadata []byte

	err := row.Scan(
		&q.ID,
		&q.DuneQueryID,
		&q.SourceURL,
		&q.Title,
		&q.RawSQL,
		&q.AnnotatedSQL,
		&q.Summary,
		&q.KeyFeatures,
		&q.BlockchainType,
		&q.ProjectName,
		&q.ProjectCategory,
		&q.Tags,
		&metadata,
		&q.CreatedAt,
		&q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &q.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &q, nil
}
