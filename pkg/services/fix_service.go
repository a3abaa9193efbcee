package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dunelens/dunelens/pkg/apperrors"
	"github.com/dunelens/dunelens/pkg/classifier"
	"github.com/dunelens/dunelens/pkg/config"
	"github.com/dunelens/dunelens/pkg/jsonutil"
	"github.com/dunelens/dunelens/pkg/llm"
	"github.com/dunelens/dunelens/pkg/logging"
	"github.com/dunelens/dunelens/pkg/models"
	"github.com/dunelens/dunelens/pkg/prompts"
	"github.com/dunelens/dunelens/pkg/relevance"
	sqlcheck "github.com/dunelens/dunelens/pkg/sql"
)

const fixSystemPrompt = "You repair Dune Analytics (Trino) SQL. Reply with a single JSON object and nothing else."

// FixRequest asks for a repaired version of a failing statement.
type FixRequest struct {
	OriginalSQL  string `json:"originalSql"`
	ErrorMessage string `json:"errorMessage"`
	UserContext  string `json:"userContext,omitempty"`
	// RelatedQueries, when set, replaces the stored-candidate lookup.
	RelatedQueries []models.RelatedQuery `json:"relatedQueries,omitempty"`
}

// FixService repairs failing SQL with the completion provider.
type FixService interface {
	// Fix never fails on an unusable model reply; it degrades instead.
	// It fails with ErrUpstreamTimeout when the provider timed out twice.
	Fix(ctx context.Context, req FixRequest) (*models.FixResult, error)
}

type fixService struct {
	completer llm.Completer
	related   RelatedQueryService
	errors    SQLErrorService
	exemplars *exemplarLoader
	schema    *prompts.Schema
	logger    *zap.Logger
}

// NewFixService creates a fix service. errs may be nil when no error store
// is available; fixes are then neither recorded nor used as exemplars.
func NewFixService(
	completer llm.Completer,
	related RelatedQueryService,
	errs SQLErrorService,
	schema *prompts.Schema,
	cfg config.RelevanceConfig,
	logger *zap.Logger,
) FixService {
	if schema == nil {
		schema = prompts.DefaultSchema()
	}
	named := logger.Named("fix-service")
	return &fixService{
		completer: completer,
		related:   related,
		errors:    errs,
		exemplars: newExemplarLoader(related, errs, cfg, named),
		schema:    schema,
		logger:    named,
	}
}

var _ FixService = (*fixService)(nil)

// fixReply covers both the structural-fix and the empty-result prompts.
type fixReply struct {
	FixedSQL                  string           `json:"fixedSQL"`
	RevisedSQL                string           `json:"revisedSQL"`
	Explanation               string           `json:"explanation"`
	Changes                   jsonutil.Strings `json:"changes"`
	AnalysisSteps             jsonutil.Strings `json:"analysisSteps"`
	CommonMistakes            jsonutil.Strings `json:"commonMistakes"`
	TestingSuggestions        jsonutil.Strings `json:"testingSuggestions"`
	DataValidationSuggestions jsonutil.Strings `json:"dataValidationSuggestions"`
	AlternativeQueries        jsonutil.Strings `json:"alternativeQueries"`
	Confidence                *jsonutil.Float  `json:"confidence"`
}

func (r *fixReply) sql() string {
	if strings.TrimSpace(r.FixedSQL) != "" {
		return r.FixedSQL
	}
	return r.RevisedSQL
}

func validFixReply(r *fixReply) bool {
	return strings.TrimSpace(r.sql()) != ""
}

func (s *fixService) Fix(ctx context.Context, req FixRequest) (*models.FixResult, error) {
	if strings.TrimSpace(req.OriginalSQL) == "" {
		return nil, apperrors.InvalidInput("originalSql is required")
	}
	if strings.TrimSpace(req.ErrorMessage) == "" {
		return nil, apperrors.InvalidInput("errorMessage is required")
	}

	kind := classifier.ClassifyError(req.ErrorMessage)
	qc := s.requestContext(req)
	ex := s.exemplars.load(ctx, qc, kind, req.RelatedQueries)

	prompt := prompts.BuildFixPrompt(prompts.FixInput{
		OriginalSQL:  req.OriginalSQL,
		ErrorMessage: req.ErrorMessage,
		UserContext:  req.UserContext,
		ErrorKind:    kind,
		Exemplars:    ex,
	}, s.schema)

	s.logger.Debug("Requesting fix",
		zap.String("error_type", string(kind)),
		zap.Int("related_queries", len(ex.RelatedQueries)),
		zap.Int("past_fixes", len(ex.PastFixes)),
		zap.String("sql", logging.SanitizeQuery(req.OriginalSQL)))

	var result *models.FixResult
	raw, err := completeWithRetry(ctx, s.completer, llm.Request{System: fixSystemPrompt, Prompt: prompt})
	switch {
	case err == nil:
		result = s.fromReply(req, raw)
	case isDegradableUpstream(err):
		s.logger.Warn("Completion failed, returning original SQL",
			zap.String("error", logging.SanitizeError(err)))
		result = fallbackFix(req.OriginalSQL, "")
		result.UpstreamError = upstreamKind(err)
	default:
		return nil, fmt.Errorf("failed to generate fix: %w", err)
	}

	result.ErrorType = kind
	result.AnalysisType = prompts.AnalysisTypeFor(kind)
	result.RelatedQueries = ex.RelatedQueries
	applyValidation(&result.SQL, &result.Confidence, &result.TestingSuggestions)

	s.record(ctx, req, result)

	s.logger.Info("Generated fix",
		zap.String("error_type", string(kind)),
		zap.Float64("confidence", result.Confidence),
		zap.Bool("degraded", result.Degraded),
		zap.Bool("persisted", result.Persisted))

	return result, nil
}

// requestContext extracts ranking context from the user's intent, falling
// back to the SQL itself for the blockchain.
func (s *fixService) requestContext(req FixRequest) relevance.Context {
	text := req.UserContext
	if strings.TrimSpace(text) == "" {
		text = req.ErrorMessage
	}
	var qc relevance.Context
	if s.related != nil {
		qc = s.related.Extract(text)
	}
	if qc.Blockchain == "" {
		qc.Blockchain = classifier.DetectBlockchainFromSQL(req.OriginalSQL)
	}
	return qc
}

func (s *fixService) fromReply(req FixRequest, raw string) *models.FixResult {
	reply := llm.Decode(raw, validFixReply)
	if !reply.IsParsed() {
		s.logger.Warn("Fix reply unparseable, using fallback",
			zap.String("error", reply.Err.Error()),
			zap.String("reply", logging.SanitizePrompt(raw)))
		return fallbackFix(req.OriginalSQL, raw)
	}

	v := reply.Value
	changes := v.Changes
	if len(changes) == 0 {
		changes = v.AnalysisSteps
	}
	checks := v.TestingSuggestions
	if len(checks) == 0 {
		checks = v.DataValidationSuggestions
	}

	result := &models.FixResult{
		SQL:                strings.TrimSpace(v.sql()),
		Explanation:        v.Explanation,
		Changes:            nonNilStrings(changes),
		CommonMistakes:     v.CommonMistakes,
		TestingSuggestions: checks,
		AlternativeQueries: v.AlternativeQueries,
		Confidence:         confidenceOr(v.Confidence, DefaultParsedConfidence),
	}
	if reply.Repaired {
		s.logger.Warn("Fix reply decoded only after repair, treating as degraded",
			zap.String("reply", logging.SanitizePrompt(raw)))
		result.Confidence = min(result.Confidence, StatementFoundConfidence)
		result.Degraded = true
	}
	return result
}

// fallbackFix returns a statement found in raw, else the original SQL.
func fallbackFix(originalSQL, raw string) *models.FixResult {
	if stmt := llm.FindStatement(raw); stmt != "" {
		return &models.FixResult{
			SQL:         stmt,
			Explanation: "The model reply could not be parsed; the SQL statement found in it is returned unverified.",
			Changes:     []string{"Extracted SQL from an unstructured model reply"},
			Confidence:  StatementFoundConfidence,
			Degraded:    true,
		}
	}
	return &models.FixResult{
		SQL:         originalSQL,
		Explanation: "No usable fix was produced; the original SQL is returned unchanged.",
		Changes:     []string{},
		Confidence:  OriginalSQLConfidence,
		Degraded:    true,
	}
}

// record stores the error occurrence with the fix. Failures only log.
func (s *fixService) record(ctx context.Context, req FixRequest, result *models.FixResult) {
	result.ErrorHash = models.ComputeErrorHash(req.OriginalSQL, req.ErrorMessage)
	if s.errors == nil {
		return
	}

	in := RecordErrorInput{
		OriginalSQL:  req.OriginalSQL,
		ErrorMessage: req.ErrorMessage,
		UserIntent:   req.UserContext,
	}
	if !result.Degraded {
		in.FixedSQL = result.SQL
		in.FixExplanation = result.Explanation
		in.FixChanges = result.Changes
	}
	if len(result.RelatedQueries) > 0 {
		in.RelatedQueryID = result.RelatedQueries[0].DuneQueryID
	}

	if _, err := s.errors.Record(ctx, in); err != nil {
		logPersistFailure(s.logger, "sql error", err)
		return
	}
	result.Persisted = true
}

// applyValidation normalizes sql in place. An invalid statement caps
// confidence and adds a suggestion.
func applyValidation(sql *string, confidence *float64, suggestions *[]string) {
	v := sqlcheck.ValidateAndNormalize(*sql)
	if v.Valid() {
		*sql = v.NormalizedSQL
		return
	}
	*confidence = min(*confidence, InvalidSQLConfidenceCap)
	*suggestions = append(*suggestions, fmt.Sprintf("Review the SQL before running it: %v", v.Error))
}

func logPersistFailure(logger *zap.Logger, what string, err error) {
	if isStorageDegraded(err) {
		logger.Warn("Storage unavailable, "+what+" not persisted",
			zap.String("error", logging.SanitizeError(err)))
		return
	}
	logger.Error("Failed to persist "+what,
		zap.String("error", logging.SanitizeError(err)))
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
