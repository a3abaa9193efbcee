package dune

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dunelens/dunelens/pkg/apperrors"
	"github.com/dunelens/dunelens/pkg/config"
)

func newTestClient(t *testing.T, handler http.Handler, cache MetadataCache) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(&config.DuneConfig{
		BaseURL:      srv.URL,
		APIKey:       "test-key",
		Timeout:      2 * time.Second,
		PollAttempts: 3,
		PollInterval: time.Millisecond,
	}, cache, zap.NewNop())
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[int64]*Query
}

func (m *memoryCache) Get(_ context.Context, id int64) (*Query, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.entries[id]
	return q, ok, nil
}

func (m *memoryCache) Set(_ context.Context, q *Query) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = map[int64]*Query{}
	}
	m.entries[q.QueryID] = q
	return nil
}

func TestClient_GetQuery(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/query/1234", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "test-key", r.Header.Get("X-Dune-API-Key"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"query_id":  1234,
			"name":      "Uniswap volume",
			"query_sql": "SELECT 1",
			"tags":      []string{"dex"},
			"owner":     "alice",
		})
	})

	cache := &memoryCache{}
	client := newTestClient(t, mux, cache)

	q, err := client.GetQuery(context.Background(), 1234)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), q.QueryID)
	assert.Equal(t, "Uniswap volume", q.Name)
	assert.Equal(t, "SELECT 1", q.QuerySQL)
	assert.Equal(t, []string{"dex"}, q.Tags)

	_, err = client.GetQuery(context.Background(), 1234)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "second lookup should be served from cache")
}

func TestClient_GetQuery_LegacySQLField(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/query/7", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"legacy","sql":"SELECT 2"}`))
	})
	client := newTestClient(t, mux, nil)

	q, err := client.GetQuery(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 2", q.QuerySQL)
	assert.Equal(t, int64(7), q.QueryID)
}

func TestClient_GetQuery_NonOKIsRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/query/9", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	})
	client := newTestClient(t, mux, nil)

	_, err := client.GetQuery(context.Background(), 9)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstreamRejected)

	var duneErr *Error
	require.ErrorAs(t, err, &duneErr)
	assert.Equal(t, http.StatusNotFound, duneErr.StatusCode)
}

func TestClient_TransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	client := NewClient(&config.DuneConfig{BaseURL: base, Timeout: time.Second, PollAttempts: 1}, nil, zap.NewNop())
	_, err := client.GetQuery(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
}

func TestClient_DeadlineIsTimeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/query/1", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	client := newTestClient(t, mux, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.GetQuery(ctx, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstreamTimeout)
}

func TestClient_ExecuteAndWait_Completed(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/query/42/execute", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body, "query_parameters")
		_, _ = w.Write([]byte(`{"execution_id":"exec-1","state":"QUERY_STATE_PENDING"}`))
	})
	mux.HandleFunc("GET /api/v1/execution/exec-1/status", func(w http.ResponseWriter, r *http.Request) {
		state := StateExecuting
		if polls.Add(1) >= 2 {
			state = StateCompleted
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"execution_id": "exec-1", "state": state})
	})
	mux.HandleFunc("GET /api/v1/execution/exec-1/results", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"execution_id":"exec-1","state":"QUERY_STATE_COMPLETED",
			"result":{"rows":[{"n":1}],"metadata":{"column_names":["n"],"row_count":1}}}`))
	})
	client := newTestClient(t, mux, nil)

	report, err := client.ExecuteAndWait(context.Background(), 42, map[string]any{"limit": 10})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, report.Outcome)
	assert.Equal(t, 2, report.Attempts)
	require.NotNil(t, report.Result)
	assert.Equal(t, 1, report.Result.Metadata.RowCount)
	assert.Equal(t, []string{"n"}, report.Result.Metadata.ColumnNames)
}

func TestClient_ExecuteAndWait_Failed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/query/42/execute", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"execution_id":"exec-2"}`))
	})
	mux.HandleFunc("GET /api/v1/execution/exec-2/status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"execution_id":"exec-2","state":"failed","error":{"type":"syntax","message":"line 1: bad"}}`))
	})
	client := newTestClient(t, mux, nil)

	report, err := client.ExecuteAndWait(context.Background(), 42, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.Equal(t, "line 1: bad", report.Error)
}

func TestClient_ExecuteAndWait_TimesOutAfterPollBudget(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/query/42/execute", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"execution_id":"exec-3"}`))
	})
	mux.HandleFunc("GET /api/v1/execution/exec-3/status", func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		_, _ = w.Write([]byte(`{"execution_id":"exec-3","state":"QUERY_STATE_EXECUTING"}`))
	})
	client := newTestClient(t, mux, nil)

	report, err := client.ExecuteAndWait(context.Background(), 42, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimedOut, report.Outcome)
	assert.Equal(t, 3, report.Attempts)
	assert.Equal(t, int32(3), polls.Load())
}

func TestClient_Execute_MissingExecutionID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/query/5/execute", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	client := newTestClient(t, mux, nil)

	_, err := client.Execute(context.Background(), 5, nil)
	assert.ErrorIs(t, err, apperrors.ErrUpstreamRejected)
}

func TestClient_StatusRejectsPathLikeIDs(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"execution_id":"x"}`))
	}), nil)

	for _, id := range []string{"../../query/1/execute", "..", "a/b", "id%2F..", ""} {
		_, err := client.Status(context.Background(), id)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput, id)
		_, err = client.Results(context.Background(), id)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput, id)
	}
	assert.Zero(t, calls.Load())
}

func TestValidateExecutionID(t *testing.T) {
	assert.NoError(t, ValidateExecutionID("01HKZ5J9X3Q0_abc-def"))
	assert.ErrorIs(t, ValidateExecutionID("../execute"), apperrors.ErrInvalidInput)
}

func TestClient_OversizedResponseIsRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/execution/e1/status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"execution_id":"e1","state":"QUERY_STATE_EXECUTING","padding":"0123456789"}`))
	})
	client := newTestClient(t, mux, nil)
	client.maxBody = 16

	_, err := client.Status(context.Background(), "e1")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstreamRejected)
	assert.Contains(t, err.Error(), "exceeds 16 bytes")
}
