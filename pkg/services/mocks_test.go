package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dunelens/dunelens/pkg/apperrors"
	"github.com/dunelens/dunelens/pkg/dune"
	"github.com/dunelens/dunelens/pkg/models"
)

// ============================================================================
// Mock Implementations for Service Tests
// ============================================================================

var errStoreDown = fmt.Errorf("failed to connect: %w", apperrors.ErrStorageUnavailable)

type mockAnalyzedQueryRepo struct {
	mu          sync.Mutex
	byDuneID    map[string]*models.AnalyzedQuery
	order       []string
	getErr      error
	listErr     error
	upsertErr   error
	upsertCalls int
}

func newMockAnalyzedQueryRepo(seed ...models.AnalyzedQuery) *mockAnalyzedQueryRepo {
	m := &mockAnalyzedQueryRepo{byDuneID: make(map[string]*models.AnalyzedQuery)}
	for i := range seed {
		q := seed[i]
		m.byDuneID[q.DuneQueryID] = &q
		m.order = append(m.order, q.DuneQueryID)
	}
	return m
}

func (m *mockAnalyzedQueryRepo) GetByDuneID(ctx context.Context, duneQueryID string) (*models.AnalyzedQuery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	q, ok := m.byDuneID[duneQueryID]
	if !ok {
		return nil, nil
	}
	cp := *q
	return &cp, nil
}

func (m *mockAnalyzedQueryRepo) ListCandidates(ctx context.Context, blockchain string, limit int) ([]models.AnalyzedQuery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []models.AnalyzedQuery
	for _, id := range m.order {
		q := m.byDuneID[id]
		if blockchain != "" && q.Blockchain() != blockchain {
			continue
		}
		out = append(out, *q)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockAnalyzedQueryRepo) Upsert(ctx context.Context, q *models.AnalyzedQuery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertCalls++
	if m.upsertErr != nil {
		return m.upsertErr
	}
	now := time.Now()
	if existing, ok := m.byDuneID[q.DuneQueryID]; ok {
		q.ID = existing.ID
		q.CreatedAt = existing.CreatedAt
	} else {
		q.ID = uuid.New()
		q.CreatedAt = now
		m.order = append(m.order, q.DuneQueryID)
	}
	q.UpdatedAt = now
	cp := *q
	m.byDuneID[q.DuneQueryID] = &cp
	return nil
}

func (m *mockAnalyzedQueryRepo) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byDuneID), nil
}

type mockSQLErrorRepo struct {
	mu          sync.Mutex
	byHash      map[string]*models.SQLErrorRecord
	upsertErr   error
	listErr     error
	feedbackErr error
}

func newMockSQLErrorRepo() *mockSQLErrorRepo {
	return &mockSQLErrorRepo{byHash: make(map[string]*models.SQLErrorRecord)}
}

func (m *mockSQLErrorRepo) Upsert(ctx context.Context, rec *models.SQLErrorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	if rec.ErrorHash == "" {
		rec.ErrorHash = models.ComputeErrorHash(rec.OriginalSQL, rec.ErrorMessage)
	}
	stored, ok := m.byHash[rec.ErrorHash]
	if !ok {
		cp := *rec
		cp.ID = uuid.New()
		cp.OccurrenceCount = 1
		cp.LastOccurrence = time.Now()
		m.byHash[rec.ErrorHash] = &cp
		*rec = cp
		return nil
	}
	stored.OccurrenceCount++
	stored.LastOccurrence = time.Now()
	if rec.FixedSQL != nil {
		stored.FixedSQL = rec.FixedSQL
		stored.FixExplanation = rec.FixExplanation
		stored.FixChanges = rec.FixChanges
	}
	*rec = *stored
	return nil
}

func (m *mockSQLErrorRepo) GetByHash(ctx context.Context, errorHash string) (*models.SQLErrorRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byHash[errorHash]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *mockSQLErrorRepo) ListFixed(ctx context.Context, errorType models.ErrorKind, limit int) ([]models.SQLErrorRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []models.SQLErrorRecord
	for _, rec := range m.byHash {
		if rec.FixedSQL != nil {
			out = append(out, *rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := out[i].ErrorType == errorType, out[j].ErrorType == errorType
		if ai != aj {
			return ai
		}
		return out[i].OccurrenceCount > out[j].OccurrenceCount
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockSQLErrorRepo) SetFeedback(ctx context.Context, errorHash, feedback string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.feedbackErr != nil {
		return m.feedbackErr
	}
	rec, ok := m.byHash[errorHash]
	if !ok {
		return apperrors.ErrNotFound
	}
	rec.UserFeedback = &feedback
	return nil
}

type mockHistoryRepo struct {
	mu        sync.Mutex
	records   map[uuid.UUID]*models.GenerationHistoryRecord
	createErr error
}

func newMockHistoryRepo() *mockHistoryRepo {
	return &mockHistoryRepo{records: make(map[uuid.UUID]*models.GenerationHistoryRecord)}
}

func (m *mockHistoryRepo) Create(ctx context.Context, rec *models.GenerationHistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.records[rec.ID]; exists {
		return nil
	}
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *mockHistoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.GenerationHistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *mockHistoryRepo) ListBySession(ctx context.Context, session string, limit int) ([]models.GenerationHistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.GenerationHistoryRecord
	for _, rec := range m.records {
		if rec.UserSession == session {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *mockHistoryRepo) UpdateExecution(ctx context.Context, id uuid.UUID, result models.ExecutionResult, errorID *uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	rec.ExecutionResult = result
	rec.ExecutionErrorID = errorID
	return nil
}

type mockDuneClient struct {
	configured  bool
	queries     map[int64]*dune.Query
	getErr      error
	executeErr  error
	executions  []int64
	lastParams  map[string]any
	report      *dune.ExecutionReport
	status      *dune.ExecutionStatus
	results     *dune.ExecutionResult
	statusCalls int
	resultCalls int
}

func newMockDuneClient(queries ...*dune.Query) *mockDuneClient {
	m := &mockDuneClient{configured: true, queries: make(map[int64]*dune.Query)}
	for _, q := range queries {
		m.queries[q.QueryID] = q
	}
	return m
}

func (m *mockDuneClient) IsConfigured() bool { return m.configured }

func (m *mockDuneClient) GetQuery(ctx context.Context, queryID int64) (*dune.Query, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	q, ok := m.queries[queryID]
	if !ok {
		return nil, fmt.Errorf("query %d: %w", queryID, apperrors.ErrUpstreamRejected)
	}
	return q, nil
}

func (m *mockDuneClient) Execute(ctx context.Context, queryID int64, params map[string]any) (string, error) {
	if m.executeErr != nil {
		return "", m.executeErr
	}
	m.executions = append(m.executions, queryID)
	m.lastParams = params
	return fmt.Sprintf("exec-%d", queryID), nil
}

func (m *mockDuneClient) Status(ctx context.Context, executionID string) (*dune.ExecutionStatus, error) {
	m.statusCalls++
	return m.status, nil
}

func (m *mockDuneClient) Results(ctx context.Context, executionID string) (*dune.ExecutionResult, error) {
	m.resultCalls++
	return m.results, nil
}

func (m *mockDuneClient) ExecuteAndWait(ctx context.Context, queryID int64, params map[string]any) (*dune.ExecutionReport, error) {
	if m.executeErr != nil {
		return nil, m.executeErr
	}
	m.executions = append(m.executions, queryID)
	m.lastParams = params
	return m.report, nil
}
