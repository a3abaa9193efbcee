// Package dune provides a client for the Dune Analytics query API.
package dune

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dunelens/dunelens/pkg/config"
)

const (
	apiKeyHeader = "X-Dune-API-Key"
	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 32 << 20
)

// Query is the metadata Dune returns for a saved query.
type Query struct {
	QueryID     int64    `json:"query_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	QuerySQL    string   `json:"query_sql"`
	Tags        []string `json:"tags"`
	Owner       string   `json:"owner"`
	IsPrivate   bool     `json:"is_private"`
}

// ExecutionState is the raw state string Dune reports for an execution.
type ExecutionState string

const (
	StatePending   ExecutionState = "QUERY_STATE_PENDING"
	StateExecuting ExecutionState = "QUERY_STATE_EXECUTING"
	StateCompleted ExecutionState = "QUERY_STATE_COMPLETED"
	StateFailed    ExecutionState = "QUERY_STATE_FAILED"
	StateCancelled ExecutionState = "QUERY_STATE_CANCELLED"
	StateExpired   ExecutionState = "QUERY_STATE_EXPIRED"
)

// Outcome summarizes how ExecuteAndWait ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
)

// outcome maps a state to a terminal outcome, or "" while still running.
// Older API versions report the bare lowercase words.
func (s ExecutionState) outcome() Outcome {
	switch s {
	case StateCompleted, "completed":
		return OutcomeCompleted
	case StateFailed, StateCancelled, StateExpired, "failed":
		return OutcomeFailed
	}
	return ""
}

// ExecutionStatus is the response of the status endpoint.
type ExecutionStatus struct {
	ExecutionID string         `json:"execution_id"`
	QueryID     int64          `json:"query_id"`
	State       ExecutionState `json:"state"`
	Error       *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ResultSet holds the rows of a finished execution.
type ResultSet struct {
	Rows     []map[string]any `json:"rows"`
	Metadata struct {
		ColumnNames []string `json:"column_names"`
		RowCount    int      `json:"row_count"`
	} `json:"metadata"`
}

// ExecutionResult is the response of the results endpoint.
type ExecutionResult struct {
	ExecutionID string         `json:"execution_id"`
	QueryID     int64          `json:"query_id"`
	State       ExecutionState `json:"state"`
	Result      *ResultSet     `json:"result,omitempty"`
}

// ExecutionReport is what ExecuteAndWait hands back to callers.
type ExecutionReport struct {
	ExecutionID string         `json:"executionId"`
	State       ExecutionState `json:"state"`
	Outcome     Outcome        `json:"outcome"`
	Attempts    int            `json:"attempts"`
	Error       string         `json:"error,omitempty"`
	Result      *ResultSet     `json:"result,omitempty"`
}

// Client provides access to the Dune API.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	pollAttempts int
	pollInterval time.Duration
	cache        MetadataCache
	maxBody      int64
	logger       *zap.Logger
}

// NewClient creates a Dune client. cache may be nil.
func NewClient(cfg *config.DuneConfig, cache MetadataCache, logger *zap.Logger) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		pollAttempts: cfg.PollAttempts,
		pollInterval: cfg.PollInterval,
		maxBody:      maxResponseBytes,
		logger:       logger.Named("dune"),
	}
	// Guard against a typed nil pointer masquerading as a usable cache.
	if rc, ok := cache.(*RedisCache); !ok || rc != nil {
		c.cache = cache
	}
	if c.pollAttempts <= 0 {
		c.pollAttempts = 1
	}
	return c
}

// IsConfigured reports whether an API key is present.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// GetQuery fetches metadata for a saved query, consulting the cache first.
func (c *Client) GetQuery(ctx context.Context, queryID int64) (*Query, error) {
	if c.cache != nil {
		q, ok, err := c.cache.Get(ctx, queryID)
		if err != nil {
			c.logger.Warn("Query metadata cache read failed", zap.Int64("query_id", queryID), zap.Error(err))
		} else if ok {
			c.logger.Debug("Query metadata cache hit", zap.Int64("query_id", queryID))
			return q, nil
		}
	}

	endpoint, err := buildURL(c.baseURL, "api", "v1", "query", strconv.FormatInt(queryID, 10))
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}

	// Some API versions return the statement as "sql" instead of "query_sql".
	var response struct {
		Query
		SQL string `json:"sql"`
	}
	if err := c.do(ctx, "get query", http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	q := response.Query
	if q.QuerySQL == "" {
		q.QuerySQL = response.SQL
	}
	if q.QueryID == 0 {
		q.QueryID = queryID
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, &q); err != nil {
			c.logger.Warn("Query metadata cache write failed", zap.Int64("query_id", queryID), zap.Error(err))
		}
	}
	return &q, nil
}

// Execute starts a run of a saved query and returns its execution id.
func (c *Client) Execute(ctx context.Context, queryID int64, params map[string]any) (string, error) {
	endpoint, err := buildURL(c.baseURL, "api", "v1", "query", strconv.FormatInt(queryID, 10), "execute")
	if err != nil {
		return "", fmt.Errorf("failed to build URL: %w", err)
	}
	if params == nil {
		params = map[string]any{}
	}

	payload := map[string]any{"query_parameters": params}
	var response struct {
		ExecutionID string         `json:"execution_id"`
		State       ExecutionState `json:"state"`
	}
	if err := c.do(ctx, "execute", http.MethodPost, endpoint, payload, &response); err != nil {
		return "", err
	}
	if response.ExecutionID == "" {
		return "", statusError("execute", http.StatusOK, []byte("response missing execution_id"))
	}

	c.logger.Info("Started Dune execution",
		zap.Int64("query_id", queryID),
		zap.String("execution_id", response.ExecutionID))
	return response.ExecutionID, nil
}

// Status returns the current state of an execution.
func (c *Client) Status(ctx context.Context, executionID string) (*ExecutionStatus, error) {
	if err := ValidateExecutionID(executionID); err != nil {
		return nil, err
	}
	endpoint, err := buildURL(c.baseURL, "api", "v1", "execution", executionID, "status")
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}
	var status ExecutionStatus
	if err := c.do(ctx, "status", http.MethodGet, endpoint, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Results returns the rows of a finished execution.
func (c *Client) Results(ctx context.Context, executionID string) (*ExecutionResult, error) {
	if err := ValidateExecutionID(executionID); err != nil {
		return nil, err
	}
	endpoint, err := buildURL(c.baseURL, "api", "v1", "execution", executionID, "results")
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}
	var result ExecutionResult
	if err := c.do(ctx, "results", http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExecuteAndWait starts an execution and polls its status a bounded number
// of times. Running out of attempts is reported as OutcomeTimedOut, not as
// an error.
func (c *Client) ExecuteAndWait(ctx context.Context, queryID int64, params map[string]any) (*ExecutionReport, error) {
	executionID, err := c.Execute(ctx, queryID, params)
	if err != nil {
		return nil, err
	}

	report := &ExecutionReport{ExecutionID: executionID, Outcome: OutcomeTimedOut}
	for attempt := 1; attempt <= c.pollAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, c.pollInterval); err != nil {
				return report, transportError("status", err)
			}
		}

		status, err := c.Status(ctx, executionID)
		if err != nil {
			return report, err
		}
		report.Attempts = attempt
		report.State = status.State

		switch status.State.outcome() {
		case OutcomeCompleted:
			report.Outcome = OutcomeCompleted
			result, err := c.Results(ctx, executionID)
			if err != nil {
				return report, err
			}
			report.Result = result.Result
			return report, nil
		case OutcomeFailed:
			report.Outcome = OutcomeFailed
			if status.Error != nil {
				report.Error = status.Error.Message
			}
			return report, nil
		}
	}

	c.logger.Warn("Dune execution did not finish within poll budget",
		zap.String("execution_id", executionID),
		zap.Int("attempts", report.Attempts))
	return report, nil
}

// do sends a JSON request and decodes a 200 response into out.
func (c *Client) do(ctx context.Context, op, method, endpoint string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("Calling Dune API", zap.String("op", op), zap.String("url", endpoint))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return transportError(op, err)
	}
	if int64(len(data)) > c.maxBody {
		return statusError(op, resp.StatusCode, []byte(fmt.Sprintf("response exceeds %d bytes", c.maxBody)))
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Dune API returned error",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(data)))
		return statusError(op, resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return statusError(op, resp.StatusCode, []byte("malformed response: "+err.Error()))
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// buildURL constructs a URL by parsing the base and joining path segments.
func buildURL(baseURL string, pathSegments ...string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	segments := append([]string{u.Path}, pathSegments...)
	u.Path = path.Join(segments...)

	return u.String(), nil
}
