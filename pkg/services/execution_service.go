package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dunelens/dunelens/pkg/apperrors"
	"github.com/dunelens/dunelens/pkg/audit"
	"github.com/dunelens/dunelens/pkg/dune"
	"github.com/dunelens/dunelens/pkg/logging"
	sqlcheck "github.com/dunelens/dunelens/pkg/sql"
)

// ExecuteRequest runs a saved Dune query, identified by id or URL.
type ExecuteRequest struct {
	QueryID    int64          `json:"queryId,omitempty"`
	QueryURL   string         `json:"queryUrl,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
	// Wait polls until the execution finishes or the poll budget runs out.
	Wait bool `json:"wait"`
}

// ExecuteResult is the started (or finished, when waited on) execution.
type ExecuteResult struct {
	QueryID     int64                 `json:"queryId"`
	ExecutionID string                `json:"executionId"`
	Report      *dune.ExecutionReport `json:"report,omitempty"`
}

// ExecutionStatusResult combines status and, once finished, results.
type ExecutionStatusResult struct {
	Status *dune.ExecutionStatus `json:"status"`
	Result *dune.ResultSet       `json:"result,omitempty"`
}

// ExecutionService runs saved Dune queries.
type ExecutionService interface {
	Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error)
	Status(ctx context.Context, executionID string) (*ExecutionStatusResult, error)
}

type executionService struct {
	dune    DuneClient
	auditor *audit.SecurityAuditor
	logger  *zap.Logger
}

// NewExecutionService creates an execution service. A nil auditor writes
// security events through logger.
func NewExecutionService(duneClient DuneClient, auditor *audit.SecurityAuditor, logger *zap.Logger) ExecutionService {
	if auditor == nil {
		auditor = audit.NewSecurityAuditor(logger)
	}
	return &executionService{
		dune:    duneClient,
		auditor: auditor,
		logger:  logger.Named("execution-service"),
	}
}

var _ ExecutionService = (*executionService)(nil)

func (s *executionService) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	queryID := req.QueryID
	if req.QueryURL != "" {
		id, _, err := dune.ParseQueryURL(req.QueryURL)
		if err != nil {
			return nil, err
		}
		if queryID != 0 && queryID != id {
			return nil, apperrors.InvalidInput("queryId and queryUrl refer to different queries")
		}
		queryID = id
	}
	if queryID <= 0 {
		return nil, apperrors.InvalidInput("queryId or queryUrl is required")
	}

	if err := s.screenParameters(ctx, queryID, req.Parameters); err != nil {
		return nil, err
	}

	if !s.configured() {
		return nil, fmt.Errorf("dune api key not configured: %w", apperrors.ErrUpstreamUnavailable)
	}

	if len(req.Parameters) > 0 {
		if err := s.checkParameterNames(ctx, queryID, req.Parameters); err != nil {
			return nil, err
		}
	}

	if !req.Wait {
		executionID, err := s.dune.Execute(ctx, queryID, req.Parameters)
		if err != nil {
			return nil, fmt.Errorf("failed to execute dune query %d: %w", queryID, err)
		}
		s.auditor.LogQueryExecution(ctx, queryID, executionID, len(req.Parameters))
		return &ExecuteResult{QueryID: queryID, ExecutionID: executionID}, nil
	}

	report, err := s.dune.ExecuteAndWait(ctx, queryID, req.Parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to execute dune query %d: %w", queryID, err)
	}
	s.auditor.LogQueryExecution(ctx, queryID, report.ExecutionID, len(req.Parameters))

	s.logger.Info("Dune execution finished",
		zap.Int64("query_id", queryID),
		zap.String("execution_id", report.ExecutionID),
		zap.String("outcome", string(report.Outcome)),
		zap.Int("attempts", report.Attempts))

	return &ExecuteResult{QueryID: queryID, ExecutionID: report.ExecutionID, Report: report}, nil
}

// screenParameters audits every flagged value and rejects the request if
// any value looks like an injection attempt.
func (s *executionService) screenParameters(ctx context.Context, queryID int64, params map[string]any) error {
	for _, r := range sqlcheck.CheckAllParameters(params) {
		value, _ := r.ParamValue.(string)
		s.auditor.LogInjectionAttempt(ctx, queryID, audit.SQLInjectionDetails{
			ParamName:   r.ParamName,
			ParamValue:  value,
			Fingerprint: r.Fingerprint,
		})
	}
	return sqlcheck.ScreenParameters(params)
}

// checkParameterNames rejects parameters the query does not declare. When
// the query text cannot be read the check is skipped.
func (s *executionService) checkParameterNames(ctx context.Context, queryID int64, params map[string]any) error {
	q, err := s.dune.GetQuery(ctx, queryID)
	if err != nil {
		s.logger.Debug("Skipping parameter name check",
			zap.Int64("query_id", queryID),
			zap.String("error", logging.SanitizeError(err)))
		return nil
	}
	if unknown := sqlcheck.UnknownParameters(q.QuerySQL, params); len(unknown) > 0 {
		msg := fmt.Sprintf("query %d does not declare parameters: %s", queryID, strings.Join(unknown, ", "))
		s.auditor.LogParameterValidation(ctx, queryID, msg)
		return apperrors.InvalidInput(msg)
	}
	return nil
}

func (s *executionService) Status(ctx context.Context, executionID string) (*ExecutionStatusResult, error) {
	if strings.TrimSpace(executionID) == "" {
		return nil, apperrors.InvalidInput("execution id is required")
	}
	if err := dune.ValidateExecutionID(executionID); err != nil {
		return nil, err
	}
	if !s.configured() {
		return nil, fmt.Errorf("dune api key not configured: %w", apperrors.ErrUpstreamUnavailable)
	}

	status, err := s.dune.Status(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get execution status: %w", err)
	}
	out := &ExecutionStatusResult{Status: status}

	if status.State == dune.StateCompleted || status.State == "completed" {
		res, err := s.dune.Results(ctx, executionID)
		if err != nil {
			return nil, fmt.Errorf("failed to get execution results: %w", err)
		}
		out.Result = res.Result
	}
	return out, nil
}

func (s *executionService) configured() bool {
	return s.dune != nil && s.dune.IsConfigured()
}
