package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/dunelens/dunelens/pkg/models"
	"github.com/dunelens/dunelens/pkg/relevance"
	"github.com/dunelens/dunelens/pkg/services"
)

type mockRelatedService struct {
	findRelated func(ctx context.Context, text string, limit int) (*services.RelatedQueriesResult, error)
	lastText    string
	lastLimit   int
}

func (m *mockRelatedService) Extract(text string) relevance.Context {
	return relevance.Context{}
}

func (m *mockRelatedService) FindRelated(ctx context.Context, text string, limit int) (*services.RelatedQueriesResult, error) {
	m.lastText, m.lastLimit = text, limit
	return m.findRelated(ctx, text, limit)
}

func (m *mockRelatedService) FindForContext(ctx context.Context, qc relevance.Context, limit int) (*services.RelatedQueriesResult, error) {
	return &services.RelatedQueriesResult{}, nil
}

type mockFixService struct {
	fix     func(ctx context.Context, req services.FixRequest) (*models.FixResult, error)
	lastReq services.FixRequest
}

func (m *mockFixService) Fix(ctx context.Context, req services.FixRequest) (*models.FixResult, error) {
	m.lastReq = req
	return m.fix(ctx, req)
}

type mockGenerationService struct {
	generate   func(ctx context.Context, req services.GenerationRequest) (*models.GenerationResult, error)
	regenerate func(ctx context.Context, req services.RegenerationRequest) (*models.GenerationResult, error)
}

func (m *mockGenerationService) Generate(ctx context.Context, req services.GenerationRequest) (*models.GenerationResult, error) {
	return m.generate(ctx, req)
}

func (m *mockGenerationService) Regenerate(ctx context.Context, req services.RegenerationRequest) (*models.GenerationResult, error) {
	return m.regenerate(ctx, req)
}

type mockAnalysisService struct {
	analyzeURL func(ctx context.Context, queryURL string) (*services.SaveResult, error)
	save       func(ctx context.Context, incoming *models.AnalyzedQuery) (*services.SaveResult, error)
}

func (m *mockAnalysisService) AnalyzeURL(ctx context.Context, queryURL string) (*services.SaveResult, error) {
	return m.analyzeURL(ctx, queryURL)
}

func (m *mockAnalysisService) Save(ctx context.Context, incoming *models.AnalyzedQuery) (*services.SaveResult, error) {
	return m.save(ctx, incoming)
}

type mockSQLErrorService struct {
	records      map[string]*models.SQLErrorRecord
	feedbackErr  error
	lastFeedback string
}

func (m *mockSQLErrorService) Record(ctx context.Context, in services.RecordErrorInput) (*models.SQLErrorRecord, error) {
	rec := &models.SQLErrorRecord{
		ErrorHash:    models.ComputeErrorHash(in.OriginalSQL, in.ErrorMessage),
		OriginalSQL:  in.OriginalSQL,
		ErrorMessage: in.ErrorMessage,
	}
	m.records[rec.ErrorHash] = rec
	return rec, nil
}

func (m *mockSQLErrorService) Get(ctx context.Context, hash string) (*models.SQLErrorRecord, error) {
	return m.records[hash], nil
}

func (m *mockSQLErrorService) PastFixes(ctx context.Context, kind models.ErrorKind, limit int) ([]models.SQLErrorRecord, error) {
	return nil, nil
}

func (m *mockSQLErrorService) Feedback(ctx context.Context, hash, feedback string) error {
	m.lastFeedback = feedback
	return m.feedbackErr
}

type mockHistoryService struct {
	records   map[uuid.UUID]*models.GenerationHistoryRecord
	markErr   error
	lastLimit int
}

func (m *mockHistoryService) Record(ctx context.Context, rec *models.GenerationHistoryRecord) error {
	rec.ID = uuid.New()
	m.records[rec.ID] = rec
	return nil
}

func (m *mockHistoryService) MarkExecution(ctx context.Context, id uuid.UUID, result models.ExecutionResult, errorID *uuid.UUID) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.records[id].ExecutionResult = result
	m.records[id].ExecutionErrorID = errorID
	return nil
}

func (m *mockHistoryService) Get(ctx context.Context, id uuid.UUID) (*models.GenerationHistoryRecord, error) {
	return m.records[id], nil
}

func (m *mockHistoryService) List(ctx context.Context, session string, limit int) ([]models.GenerationHistoryRecord, error) {
	m.lastLimit = limit
	var out []models.GenerationHistoryRecord
	for _, rec := range m.records {
		if session == "" || rec.UserSession == session {
			out = append(out, *rec)
		}
	}
	return out, nil
}

type mockExecutionService struct {
	execute func(ctx context.Context, req services.ExecuteRequest) (*services.ExecuteResult, error)
	status  func(ctx context.Context, executionID string) (*services.ExecutionStatusResult, error)
}

func (m *mockExecutionService) Execute(ctx context.Context, req services.ExecuteRequest) (*services.ExecuteResult, error) {
	return m.execute(ctx, req)
}

func (m *mockExecutionService) Status(ctx context.Context, executionID string) (*services.ExecutionStatusResult, error) {
	return m.status(ctx, executionID)
}
