package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dunelens/dunelens/pkg/apperrors"
	"github.com/dunelens/dunelens/pkg/config"
	"github.com/dunelens/dunelens/pkg/jsonutil"
	"github.com/dunelens/dunelens/pkg/llm"
	"github.com/dunelens/dunelens/pkg/logging"
	"github.com/dunelens/dunelens/pkg/models"
	"github.com/dunelens/dunelens/pkg/prompts"
	"github.com/dunelens/dunelens/pkg/relevance"
)

const generationSystemPrompt = "You write Dune Analytics (Trino) SQL. Reply with a single JSON object and nothing else."

// ClarifyBelowConfidence is the confidence under which missing context is
// turned into clarification questions.
const ClarifyBelowConfidence = 0.7

// GenerationContext narrows what the user asked for.
type GenerationContext struct {
	Blockchain     string   `json:"blockchain,omitempty"`
	Timeframe      string   `json:"timeframe,omitempty"`
	Protocols      []string `json:"protocols,omitempty"`
	AdditionalInfo string   `json:"additionalInfo,omitempty"`
}

// GenerationRequest asks for SQL answering a natural-language question.
type GenerationRequest struct {
	UserQuery   string            `json:"userQuery"`
	Context     GenerationContext `json:"context"`
	UserSession string            `json:"userSession,omitempty"`
}

// RegenerationRequest repeats a generation with answers to its questions.
type RegenerationRequest struct {
	OriginalRequest      GenerationRequest             `json:"originalRequest"`
	ClarificationAnswers []prompts.ClarificationAnswer `json:"clarificationAnswers"`
}

// GenerationService turns natural-language requests into SQL.
type GenerationService interface {
	// Generate degrades to a template query on an unusable model reply and
	// fails with ErrUpstreamTimeout when the provider timed out twice.
	Generate(ctx context.Context, req GenerationRequest) (*models.GenerationResult, error)

	// Regenerate re-runs Generate with the clarification answers appended.
	Regenerate(ctx context.Context, req RegenerationRequest) (*models.GenerationResult, error)
}

type generationService struct {
	completer llm.Completer
	related   RelatedQueryService
	history   HistoryService
	exemplars *exemplarLoader
	schema    *prompts.Schema
	logger    *zap.Logger
}

// NewGenerationService creates a generation service. history may be nil, in
// which case nothing is recorded.
func NewGenerationService(
	completer llm.Completer,
	related RelatedQueryService,
	errs SQLErrorService,
	history HistoryService,
	schema *prompts.Schema,
	cfg config.RelevanceConfig,
	logger *zap.Logger,
) GenerationService {
	if schema == nil {
		schema = prompts.DefaultSchema()
	}
	named := logger.Named("generation-service")
	return &generationService{
		completer: completer,
		related:   related,
		history:   history,
		exemplars: newExemplarLoader(related, errs, cfg, named),
		schema:    schema,
		logger:    named,
	}
}

var _ GenerationService = (*generationService)(nil)

type generationReply struct {
	GeneratedSQL           string           `json:"generatedSQL"`
	SQL                    string           `json:"sql"`
	Explanation            string           `json:"explanation"`
	Assumptions            jsonutil.Strings `json:"assumptions"`
	ClarificationQuestions jsonutil.Strings `json:"clarificationQuestions"`
	SuggestedImprovements  jsonutil.Strings `json:"suggestedImprovements"`
	Confidence             *jsonutil.Float  `json:"confidence"`
}

func (r *generationReply) sql() string {
	if strings.TrimSpace(r.GeneratedSQL) != "" {
		return r.GeneratedSQL
	}
	return r.SQL
}

func validGenerationReply(r *generationReply) bool {
	return strings.TrimSpace(r.sql()) != ""
}

func (s *generationService) Generate(ctx context.Context, req GenerationRequest) (*models.GenerationResult, error) {
	if strings.TrimSpace(req.UserQuery) == "" {
		return nil, apperrors.InvalidInput("userQuery is required")
	}

	qc := s.requestContext(req)
	ex := s.exemplars.load(ctx, qc, "", nil)

	prompt := prompts.BuildGenerationPrompt(prompts.GenerationInput{
		UserQuery:      req.UserQuery,
		Blockchain:     qc.Blockchain,
		Timeframe:      req.Context.Timeframe,
		Protocols:      qc.Protocols,
		AdditionalInfo: req.Context.AdditionalInfo,
		Exemplars:      ex,
	}, s.schema)

	var result *models.GenerationResult
	raw, err := completeWithRetry(ctx, s.completer, llm.Request{System: generationSystemPrompt, Prompt: prompt})
	switch {
	case err == nil:
		result = s.fromReply(req, qc, raw)
	case isDegradableUpstream(err):
		s.logger.Warn("Completion failed, returning template query",
			zap.String("error", logging.SanitizeError(err)))
		result = fallbackGeneration(req, qc, "")
		result.UpstreamError = upstreamKind(err)
	default:
		return nil, fmt.Errorf("failed to generate sql: %w", err)
	}

	for _, table := range s.schema.UnknownTables(result.GeneratedSQL) {
		result.SuggestedImprovements = append(result.SuggestedImprovements,
			fmt.Sprintf("Table %s is not in the reference schema; confirm it exists on Dune before running.", table))
	}
	applyValidation(&result.GeneratedSQL, &result.Confidence, &result.SuggestedImprovements)

	if len(result.ClarificationQuestions) == 0 && result.Confidence < ClarifyBelowConfidence {
		result.ClarificationQuestions = missingContextQuestions(req, qc)
	}

	result.RelatedQueries = ex.RelatedQueries
	result.RelatedQueriesUsed = relatedIDs(ex.RelatedQueries)
	result.DetectedBlockchain = qc.Blockchain
	result.DetectedProtocols = nonNilStrings(qc.Protocols)
	result.Assumptions = nonNilStrings(result.Assumptions)
	result.ClarificationQuestions = nonNilStrings(result.ClarificationQuestions)

	s.recordHistory(ctx, req, result)

	s.logger.Info("Generated sql",
		zap.String("blockchain", qc.Blockchain),
		zap.Float64("confidence", result.Confidence),
		zap.Bool("degraded", result.Degraded),
		zap.Int("related_queries", len(ex.RelatedQueries)))

	return result, nil
}

func (s *generationService) Regenerate(ctx context.Context, req RegenerationRequest) (*models.GenerationResult, error) {
	if len(req.ClarificationAnswers) == 0 {
		return nil, apperrors.InvalidInput("clarificationAnswers are required")
	}
	next := req.OriginalRequest
	next.Context.AdditionalInfo = prompts.AppendAnswers(next.Context.AdditionalInfo, req.ClarificationAnswers)
	return s.Generate(ctx, next)
}

// requestContext merges what the user stated with what the text mentions.
// A stated blockchain wins over a detected one.
func (s *generationService) requestContext(req GenerationRequest) relevance.Context {
	var qc relevance.Context
	if s.related != nil {
		qc = s.related.Extract(req.UserQuery)
	}
	if b := strings.ToLower(strings.TrimSpace(req.Context.Blockchain)); b != "" {
		qc.Blockchain = b
	}

	seen := make(map[string]bool, len(qc.Protocols))
	for _, p := range qc.Protocols {
		seen[p] = true
	}
	for _, p := range req.Context.Protocols {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && !seen[p] {
			seen[p] = true
			qc.Protocols = append(qc.Protocols, p)
		}
	}
	return qc
}

func (s *generationService) fromReply(req GenerationRequest, qc relevance.Context, raw string) *models.GenerationResult {
	reply := llm.Decode(raw, validGenerationReply)
	if !reply.IsParsed() {
		s.logger.Warn("Generation reply unparseable, using fallback",
			zap.String("error", reply.Err.Error()),
			zap.String("reply", logging.SanitizePrompt(raw)))
		return fallbackGeneration(req, qc, raw)
	}

	v := reply.Value
	result := &models.GenerationResult{
		GeneratedSQL:           strings.TrimSpace(v.sql()),
		Explanation:            v.Explanation,
		Assumptions:            v.Assumptions,
		ClarificationQuestions: v.ClarificationQuestions,
		SuggestedImprovements:  v.SuggestedImprovements,
		Confidence:             confidenceOr(v.Confidence, DefaultParsedConfidence),
	}
	if reply.Repaired {
		s.logger.Warn("Generation reply decoded only after repair, treating as degraded",
			zap.String("reply", logging.SanitizePrompt(raw)))
		result.Confidence = min(result.Confidence, StatementFoundConfidence)
		result.Degraded = true
	}
	return result
}

// fallbackGeneration returns a statement found in raw, else a keyword
// template over the detected blockchain.
func fallbackGeneration(req GenerationRequest, qc relevance.Context, raw string) *models.GenerationResult {
	if stmt := llm.FindStatement(raw); stmt != "" {
		return &models.GenerationResult{
			GeneratedSQL: stmt,
			Explanation:  "The model reply could not be parsed; the SQL statement found in it is returned unverified.",
			Assumptions:  []string{"The extracted statement matches the request"},
			Confidence:   StatementFoundConfidence,
			Degraded:     true,
		}
	}

	chain := qc.Blockchain
	if chain == "" {
		chain = "ethereum"
	}
	return &models.GenerationResult{
		GeneratedSQL: prompts.FallbackSQL(req.UserQuery, chain),
		Explanation:  "A starter query was generated from a template because no model answer was available.",
		Assumptions: []string{
			fmt.Sprintf("Data from the %s blockchain", chain),
			"The most common table for this kind of request",
		},
		Confidence: TemplateConfidence,
		Degraded:   true,
	}
}

func missingContextQuestions(req GenerationRequest, qc relevance.Context) []string {
	var questions []string
	if qc.Blockchain == "" {
		questions = append(questions, "Which blockchain should the query cover?")
	}
	if strings.TrimSpace(req.Context.Timeframe) == "" {
		questions = append(questions, "What time range should the query cover?")
	}
	if len(qc.Protocols) == 0 {
		questions = append(questions, "Should the query focus on specific protocols or projects?")
	}
	return questions
}

func (s *generationService) recordHistory(ctx context.Context, req GenerationRequest, result *models.GenerationResult) {
	if s.history == nil {
		return
	}

	rec := &models.GenerationHistoryRecord{
		UserQuery:          req.UserQuery,
		UserSession:        req.UserSession,
		GeneratedSQL:       result.GeneratedSQL,
		AIExplanation:      result.Explanation,
		AIConfidence:       result.Confidence,
		RelatedQueriesUsed: result.RelatedQueriesUsed,
		DetectedBlockchain: optional(result.DetectedBlockchain),
		DetectedProtocols:  result.DetectedProtocols,
		ExecutionResult:    models.ExecutionNotTested,
	}
	if err := s.history.Record(ctx, rec); err != nil {
		logPersistFailure(s.logger, "generation history", err)
		return
	}
	result.HistoryID = rec.ID.String()
	result.Persisted = true
}
