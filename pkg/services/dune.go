package services

import (
	"context"

	"github.com/dunelens/dunelens/pkg/dune"
)

// DuneClient is the part of the Dune API the services use.
type DuneClient interface {
	IsConfigured() bool
	GetQuery(ctx context.Context, queryID int64) (*dune.Query, error)
	Execute(ctx context.Context, queryID int64, params map[string]any) (string, error)
	Status(ctx context.Context, executionID string) (*dune.ExecutionStatus, error)
	Results(ctx context.Context, executionID string) (*dune.ExecutionResult, error)
	ExecuteAndWait(ctx context.Context, queryID int64, params map[string]any) (*dune.ExecutionReport, error)
}

var _ DuneClient = (*dune.Client)(nil)
