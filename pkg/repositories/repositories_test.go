//go:build integration

package repositories

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dunelens/dunelens/pkg/apperrors"
	"github.com/dunelens/dunelens/pkg/models"
	"github.com/dunelens/dunelens/pkg/testhelpers"
)

func strPtr(s string) *string { return &s }

func setupDB(t *testing.T) *testhelpers.TestDB {
	t.Helper()
	testDB := testhelpers.GetTestDB(t)
	testDB.Truncate(t, "generation_history", "sql_errors", "analyzed_queries")
	return testDB
}

func TestAnalyzedQueryRepository_UpsertIsKeyedByDuneID(t *testing.T) {
	testDB := setupDB(t)
	repo := NewAnalyzedQueryRepository(testDB.DB)
	ctx := context.Background()

	q := &models.AnalyzedQuery{
		DuneQueryID:    "3237721",
		SourceURL:      "https://dune.com/queries/3237721",
		Title:          "Uniswap weekly volume",
		RawSQL:         "SELECT 1",
		KeyFeatures:    []string{"weekly volume"},
		BlockchainType: strPtr("ethereum"),
		Metadata:       map[string]any{"owner": "alice"},
	}
	require.NoError(t, repo.Upsert(ctx, q))
	firstID := q.ID
	assert.NotEqual(t, uuid.Nil, firstID)
	assert.Equal(t, "general", q.ProjectCategory)

	again := *q
	again.Summary = "longer summary"
	require.NoError(t, repo.Upsert(ctx, &again))
	assert.Equal(t, firstID, again.ID)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := repo.GetByDuneID(ctx, "3237721")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "longer summary", stored.Summary)
	assert.Equal(t, []string{"weekly volume"}, stored.KeyFeatures)
	assert.Equal(t, "alice", stored.Metadata["owner"])

	missing, err := repo.GetByDuneID(ctx, "404")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAnalyzedQueryRepository_ListCandidatesFiltersBlockchain(t *testing.T) {
	testDB := setupDB(t)
	repo := NewAnalyzedQueryRepository(testDB.DB)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &models.AnalyzedQuery{DuneQueryID: "1", BlockchainType: strPtr("ethereum")}))
	require.NoError(t, repo.Upsert(ctx, &models.AnalyzedQuery{DuneQueryID: "2", BlockchainType: strPtr("polygon")}))
	require.NoError(t, repo.Upsert(ctx, &models.AnalyzedQuery{DuneQueryID: "3"}))

	all, err := repo.ListCandidates(ctx, "", 50)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	eth, err := repo.ListCandidates(ctx, "ethereum", 50)
	require.NoError(t, err)
	require.Len(t, eth, 1)
	assert.Equal(t, "1", eth[0].DuneQueryID)
}

func TestSQLErrorRepository_ConcurrentUpsertIncrementsOnce(t *testing.T) {
	testDB := setupDB(t)
	repo := NewSQLErrorRepository(testDB.DB)
	ctx := context.Background()

	const sql, msg = "selct * from t", `syntax error at or near "selct"`

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.Upsert(ctx, &models.SQLErrorRecord{
				OriginalSQL:  sql,
				ErrorMessage: msg,
				ErrorType:    models.ErrorKindSyntax,
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var rows int
	require.NoError(t, testDB.DB.QueryRow(ctx, `SELECT COUNT(*) FROM sql_errors`).Scan(&rows))
	assert.Equal(t, 1, rows)

	stored, err := repo.GetByHash(ctx, models.ComputeErrorHash(sql, msg))
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 2, stored.OccurrenceCount)
}

func TestSQLErrorRepository_UpsertKeepsLearnedFix(t *testing.T) {
	testDB := setupDB(t)
	repo := NewSQLErrorRepository(testDB.DB)
	ctx := context.Background()

	first := &models.SQLErrorRecord{
		OriginalSQL:    "SELECT foo FROM dex.trades",
		ErrorMessage:   "column foo does not exist",
		ErrorType:      models.ErrorKindColumnNotFound,
		FixedSQL:       strPtr("SELECT amount_usd FROM dex.trades"),
		FixExplanation: strPtr("foo is not a column"),
		FixChanges:     []string{"foo -> amount_usd"},
	}
	require.NoError(t, repo.Upsert(ctx, first))
	assert.Equal(t, 1, first.OccurrenceCount)

	repeat := &models.SQLErrorRecord{
		OriginalSQL:  first.OriginalSQL,
		ErrorMessage: first.ErrorMessage,
		ErrorType:    models.ErrorKindColumnNotFound,
	}
	require.NoError(t, repo.Upsert(ctx, repeat))
	assert.Equal(t, 2, repeat.OccurrenceCount)
	require.NotNil(t, repeat.FixedSQL)
	assert.Equal(t, "SELECT amount_usd FROM dex.trades", *repeat.FixedSQL)
	assert.Equal(t, []string{"foo -> amount_usd"}, repeat.FixChanges)
	assert.True(t, !repeat.LastOccurrence.Before(first.LastOccurrence))
}

func TestSQLErrorRepository_ListFixedPrefersSameType(t *testing.T) {
	testDB := setupDB(t)
	repo := NewSQLErrorRepository(testDB.DB)
	ctx := context.Background()

	records := []*models.SQLErrorRecord{
		{OriginalSQL: "a", ErrorMessage: "syntax", ErrorType: models.ErrorKindSyntax, FixedSQL: strPtr("A")},
		{OriginalSQL: "b", ErrorMessage: "missing table", ErrorType: models.ErrorKindTableNotFound, FixedSQL: strPtr("B")},
		{OriginalSQL: "c", ErrorMessage: "no fix", ErrorType: models.ErrorKindTableNotFound},
	}
	for _, rec := range records {
		require.NoError(t, repo.Upsert(ctx, rec))
	}
	// Bump the syntax error so it outranks on occurrence alone.
	require.NoError(t, repo.Upsert(ctx, &models.SQLErrorRecord{OriginalSQL: "a", ErrorMessage: "syntax", ErrorType: models.ErrorKindSyntax}))

	fixes, err := repo.ListFixed(ctx, models.ErrorKindTableNotFound, 3)
	require.NoError(t, err)
	require.Len(t, fixes, 2)
	assert.Equal(t, "b", fixes[0].OriginalSQL)
	assert.Equal(t, "a", fixes[1].OriginalSQL)
}

func TestSQLErrorRepository_SetFeedback(t *testing.T) {
	testDB := setupDB(t)
	repo := NewSQLErrorRepository(testDB.DB)
	ctx := context.Background()

	rec := &models.SQLErrorRecord{OriginalSQL: "x", ErrorMessage: "y", ErrorType: models.ErrorKindUnknown}
	require.NoError(t, repo.Upsert(ctx, rec))

	require.NoError(t, repo.SetFeedback(ctx, rec.ErrorHash, "helpful"))
	stored, err := repo.GetByHash(ctx, rec.ErrorHash)
	require.NoError(t, err)
	require.NotNil(t, stored.UserFeedback)
	assert.Equal(t, "helpful", *stored.UserFeedback)

	assert.ErrorIs(t, repo.SetFeedback(ctx, "nope", "helpful"), apperrors.ErrNotFound)
}

func TestGenerationHistoryRepository_CreateAndUpdateExecution(t *testing.T) {
	testDB := setupDB(t)
	repo := NewGenerationHistoryRepository(testDB.DB)
	errRepo := NewSQLErrorRepository(testDB.DB)
	ctx := context.Background()

	rec := &models.GenerationHistoryRecord{
		UserQuery:          "uniswap volume",
		UserSession:        "session_1",
		GeneratedSQL:       "SELECT 1",
		AIConfidence:       0.8,
		DetectedBlockchain: strPtr("ethereum"),
		DetectedProtocols:  []string{"uniswap"},
	}
	require.NoError(t, repo.Create(ctx, rec))
	assert.Equal(t, models.ExecutionNotTested, rec.ExecutionResult)

	// Retrying the same create is a no-op.
	require.NoError(t, repo.Create(ctx, rec))

	failure := &models.SQLErrorRecord{OriginalSQL: "SELECT 1", ErrorMessage: "boom", ErrorType: models.ErrorKindUnknown}
	require.NoError(t, errRepo.Upsert(ctx, failure))

	require.NoError(t, repo.UpdateExecution(ctx, rec.ID, models.ExecutionFailed, &failure.ID))
	stored, err := repo.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.ExecutionFailed, stored.ExecutionResult)
	require.NotNil(t, stored.ExecutionErrorID)
	assert.Equal(t, failure.ID, *stored.ExecutionErrorID)
	assert.Equal(t, []string{"uniswap"}, stored.DetectedProtocols)

	list, err := repo.ListBySession(ctx, "session_1", 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, repo.UpdateExecution(ctx, uuid.New(), models.ExecutionSuccess, nil), apperrors.ErrNotFound)
}
