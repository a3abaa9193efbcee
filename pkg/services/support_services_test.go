package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dunelens/dunelens/pkg/apperrors"
	"github.com/dunelens/dunelens/pkg/audit"
	"github.com/dunelens/dunelens/pkg/dune"
	"github.com/dunelens/dunelens/pkg/models"
)

func TestRelatedQueryService_FindRelated(t *testing.T) {
	eth, poly := "ethereum", "polygon"
	repo := newMockAnalyzedQueryRepo(
		models.AnalyzedQuery{DuneQueryID: "1", Title: "dex volume", BlockchainType: &poly},
		models.AnalyzedQuery{DuneQueryID: "2", Title: "dex volume", BlockchainType: &eth},
		models.AnalyzedQuery{DuneQueryID: "3", Title: "gas fees", BlockchainType: &eth},
	)
	svc := NewRelatedQueryService(repo, nil, testRelevanceConfig, zap.NewNop())

	res, err := svc.FindRelated(context.Background(), "dex volume on ethereum", 0)
	require.NoError(t, err)

	assert.Equal(t, "ethereum", res.Context.Blockchain)
	assert.Equal(t, 2, res.TotalCandidates, "candidates are restricted to the detected chain")
	require.Len(t, res.Queries, 2)
	assert.Equal(t, "2", res.Queries[0].DuneQueryID)
	assert.Greater(t, res.Queries[0].RelevanceScore, res.Queries[1].RelevanceScore)
	assert.False(t, res.Degraded)
}

func TestRelatedQueryService_Degrades(t *testing.T) {
	repo := newMockAnalyzedQueryRepo()
	repo.listErr = errStoreDown
	svc := NewRelatedQueryService(repo, nil, testRelevanceConfig, zap.NewNop())

	res, err := svc.FindRelated(context.Background(), "dex volume", 5)
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Empty(t, res.Queries)
	assert.NotNil(t, res.Queries)

	repo.listErr = errors.New("scan failed")
	_, err = svc.FindRelated(context.Background(), "dex volume", 5)
	assert.Error(t, err)

	_, err = svc.FindRelated(context.Background(), "   ", 5)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestSQLErrorService_Record(t *testing.T) {
	repo := newMockSQLErrorRepo()
	svc := NewSQLErrorService(repo, zap.NewNop())
	ctx := context.Background()

	in := RecordErrorInput{
		OriginalSQL:  "SELECT * FROM ethereum.transactionz",
		ErrorMessage: `relation "ethereum.transactionz" does not exist`,
		UserIntent:   "count swaps",
	}
	first, err := svc.Record(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, models.ErrorKindTableNotFound, first.ErrorType)
	assert.Equal(t, "ethereum", *first.BlockchainType)
	assert.Equal(t, "dex_trading", first.QueryCategory)
	assert.Equal(t, 1, first.OccurrenceCount)

	in.FixedSQL = "SELECT * FROM ethereum.transactions"
	in.UserFeedback = "success"
	second, err := svc.Record(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 2, second.OccurrenceCount)
	assert.Equal(t, "SELECT * FROM ethereum.transactions", *second.FixedSQL)
	assert.Equal(t, "success", *second.UserFeedback)

	fixes, err := svc.PastFixes(ctx, models.ErrorKindTableNotFound, 0)
	require.NoError(t, err)
	require.Len(t, fixes, 1)

	_, err = svc.Record(ctx, RecordErrorInput{OriginalSQL: "SELECT 1"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestSQLErrorService_FeedbackAndGet(t *testing.T) {
	repo := newMockSQLErrorRepo()
	svc := NewSQLErrorService(repo, zap.NewNop())
	ctx := context.Background()

	rec, err := svc.Record(ctx, RecordErrorInput{OriginalSQL: "SELECT x", ErrorMessage: "column x not found"})
	require.NoError(t, err)

	require.NoError(t, svc.Feedback(ctx, rec.ErrorHash, "unhelpful"))
	got, err := svc.Get(ctx, rec.ErrorHash)
	require.NoError(t, err)
	assert.Equal(t, "unhelpful", *got.UserFeedback)

	assert.True(t, errors.Is(svc.Feedback(ctx, "missing", "ok"), apperrors.ErrNotFound))
	assert.True(t, errors.Is(svc.Feedback(ctx, rec.ErrorHash, " "), apperrors.ErrInvalidInput))

	_, err = svc.Get(ctx, "missing")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestHistoryService(t *testing.T) {
	repo := newMockHistoryRepo()
	svc := NewHistoryService(repo, zap.NewNop()).(*historyService)
	svc.now = func() time.Time { return time.UnixMilli(1700000000123) }
	ctx := context.Background()

	rec := &models.GenerationHistoryRecord{UserQuery: "dex volume", GeneratedSQL: "SELECT 1"}
	require.NoError(t, svc.Record(ctx, rec))
	assert.Equal(t, "session_1700000000123", rec.UserSession)
	assert.Equal(t, models.ExecutionNotTested, rec.ExecutionResult)
	assert.NotEqual(t, uuid.Nil, rec.ID)

	errID := uuid.New()
	require.NoError(t, svc.MarkExecution(ctx, rec.ID, models.ExecutionFailed, &errID))
	got, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionFailed, got.ExecutionResult)
	assert.Equal(t, &errID, got.ExecutionErrorID)

	assert.True(t, errors.Is(svc.MarkExecution(ctx, rec.ID, "maybe", nil), apperrors.ErrInvalidInput))
	assert.True(t, errors.Is(svc.MarkExecution(ctx, rec.ID, models.ExecutionSuccess, &errID), apperrors.ErrInvalidInput))
	assert.True(t, errors.Is(svc.MarkExecution(ctx, uuid.New(), models.ExecutionSuccess, nil), apperrors.ErrNotFound))

	list, err := svc.List(ctx, "session_1700000000123", 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.List(ctx, "", 0)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestExecutionService_Execute(t *testing.T) {
	client := newMockDuneClient(&dune.Query{
		QueryID:  3237721,
		QuerySQL: "SELECT * FROM dex.trades WHERE project = '{{project}}' LIMIT {{ row limit }}",
	})
	client.report = &dune.ExecutionReport{ExecutionID: "exec-1", Outcome: dune.OutcomeCompleted, Attempts: 2}
	svc := NewExecutionService(client, nil, zap.NewNop())
	ctx := context.Background()

	res, err := svc.Execute(ctx, ExecuteRequest{
		QueryURL:   "https://dune.com/queries/3237721",
		Parameters: map[string]any{"project": "uniswap", "row limit": 10},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3237721), res.QueryID)
	assert.Equal(t, "exec-3237721", res.ExecutionID)
	assert.Nil(t, res.Report)

	res, err = svc.Execute(ctx, ExecuteRequest{QueryID: 3237721, Wait: true})
	require.NoError(t, err)
	require.NotNil(t, res.Report)
	assert.Equal(t, dune.OutcomeCompleted, res.Report.Outcome)
	assert.Equal(t, []int64{3237721, 3237721}, client.executions)
}

func TestExecutionService_ExecuteRejects(t *testing.T) {
	client := newMockDuneClient(&dune.Query{QueryID: 5, QuerySQL: "SELECT {{project}}"})
	svc := NewExecutionService(client, nil, zap.NewNop())
	ctx := context.Background()

	_, err := svc.Execute(ctx, ExecuteRequest{})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	_, err = svc.Execute(ctx, ExecuteRequest{QueryID: 6, QueryURL: "https://dune.com/queries/5"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	_, err = svc.Execute(ctx, ExecuteRequest{QueryID: 5, Parameters: map[string]any{"project": "' OR 1=1 --"}})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	_, err = svc.Execute(ctx, ExecuteRequest{QueryID: 5, Parameters: map[string]any{"chain": "ethereum"}})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Empty(t, client.executions)

	client.configured = false
	_, err = svc.Execute(ctx, ExecuteRequest{QueryID: 5})
	assert.True(t, errors.Is(err, apperrors.ErrUpstreamUnavailable))
}

func TestExecutionService_Status(t *testing.T) {
	client := newMockDuneClient()
	client.status = &dune.ExecutionStatus{ExecutionID: "e1", State: dune.StateExecuting}
	svc := NewExecutionService(client, nil, zap.NewNop())
	ctx := context.Background()

	res, err := svc.Status(ctx, "e1")
	require.NoError(t, err)
	assert.Nil(t, res.Result)
	assert.Zero(t, client.resultCalls)

	client.status = &dune.ExecutionStatus{ExecutionID: "e1", State: dune.StateCompleted}
	client.results = &dune.ExecutionResult{ExecutionID: "e1", Result: &dune.ResultSet{Rows: []map[string]any{{"n": 1}}}}
	res, err = svc.Status(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, res.Result)
	assert.Len(t, res.Result.Rows, 1)

	_, err = svc.Status(ctx, "")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestExecutionService_StatusRejectsPathLikeIDs(t *testing.T) {
	client := newMockDuneClient()
	client.status = &dune.ExecutionStatus{ExecutionID: "e1", State: dune.StateCompleted}
	svc := NewExecutionService(client, nil, zap.NewNop())

	for _, id := range []string{"../../query/1/execute", "e1/results", "e1?x=1", "e 1"} {
		_, err := svc.Status(context.Background(), id)
		assert.True(t, errors.Is(err, apperrors.ErrInvalidInput), id)
	}
	assert.Zero(t, client.statusCalls)
	assert.Zero(t, client.resultCalls)
}

func TestExecutionService_AuditsSecurityEvents(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	client := newMockDuneClient(&dune.Query{QueryID: 5, QuerySQL: "SELECT {{project}}"})
	svc := NewExecutionService(client, audit.NewSecurityAuditor(logger), logger)
	ctx := audit.WithClientIP(context.Background(), "10.0.0.7")

	_, err := svc.Execute(ctx, ExecuteRequest{QueryID: 5, Parameters: map[string]any{"project": "' OR 1=1 --"}})
	require.Error(t, err)
	injections := logs.FilterMessage("SQL injection attempt detected").All()
	require.Len(t, injections, 1)
	assert.Equal(t, "project", injections[0].ContextMap()["param_name"])
	assert.Equal(t, "10.0.0.7", injections[0].ContextMap()["client_ip"])

	_, err = svc.Execute(ctx, ExecuteRequest{QueryID: 5, Parameters: map[string]any{"chain": "ethereum"}})
	require.Error(t, err)
	assert.Equal(t, 1, logs.FilterMessage("Parameter validation failed").Len())

	_, err = svc.Execute(ctx, ExecuteRequest{QueryID: 5, Parameters: map[string]any{"project": "uniswap"}})
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("Query executed").Len())
}
