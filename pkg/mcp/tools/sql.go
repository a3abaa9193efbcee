// Package tools provides the MCP tool implementations.
package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dunelens/dunelens/pkg/classifier"
	"github.com/dunelens/dunelens/pkg/models"
	"github.com/dunelens/dunelens/pkg/prompts"
	"github.com/dunelens/dunelens/pkg/services"
)

// SQLToolDeps contains dependencies for the SQL assistance tools.
type SQLToolDeps struct {
	Related    services.RelatedQueryService
	Fix        services.FixService
	Generation services.GenerationService
	Logger     *zap.Logger
}

// RegisterSQLTools registers find_related_queries, classify_sql_error,
// fix_sql and generate_sql.
func RegisterSQLTools(s *server.MCPServer, deps *SQLToolDeps) {
	registerFindRelatedQueriesTool(s, deps)
	registerClassifySQLErrorTool(s)
	registerFixSQLTool(s, deps)
	registerGenerateSQLTool(s, deps)
}

func registerFindRelatedQueriesTool(s *server.MCPServer, deps *SQLToolDeps) {
	tool := mcp.NewTool(
		"find_related_queries",
		mcp.WithDescription(
			"Find previously analyzed Dune queries relevant to a request or SQL statement. "+
				"Candidates are ranked by keyword, blockchain and protocol overlap. "+
				"Example: find_related_queries(text='uniswap daily volume on ethereum', limit=5).",
		),
		mcp.WithString(
			"text",
			mcp.Required(),
			mcp.Description("Natural-language request or SQL to match against"),
		),
		mcp.WithNumber(
			"limit",
			mcp.Description("Maximum number of queries to return (default 10)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return nil, err
		}
		if trimString(text) == "" {
			return NewErrorResult("invalid_parameters", "parameter 'text' cannot be empty"), nil
		}

		limit := 0
		if v, ok := getOptionalFloat(req, "limit"); ok {
			limit = int(v)
		}

		result, err := deps.Related.FindRelated(ctx, text, limit)
		if err != nil {
			return serviceErrorResult(fmt.Errorf("failed to find related queries: %w", err))
		}
		return jsonResult(result)
	})
}

type classifyResult struct {
	ErrorType    models.ErrorKind    `json:"error_type"`
	AnalysisType models.AnalysisType `json:"analysis_type"`
}

func registerClassifySQLErrorTool(s *server.MCPServer) {
	tool := mcp.NewTool(
		"classify_sql_error",
		mcp.WithDescription(
			"Classify a Dune/Trino error message into a fixed error taxonomy "+
				"(no_results, syntax_error, table_not_found, column_not_found, permission_error, "+
				"timeout_error, limit_exceeded, aggregation_error, unknown_error). "+
				"no_results selects data analysis instead of error repair.",
		),
		mcp.WithString(
			"error_message",
			mcp.Required(),
			mcp.Description("Error message returned by the query engine"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("error_message")
		if err != nil {
			return nil, err
		}
		if trimString(message) == "" {
			return NewErrorResult("invalid_parameters", "parameter 'error_message' cannot be empty"), nil
		}

		kind := classifier.ClassifyError(message)
		return jsonResult(classifyResult{
			ErrorType:    kind,
			AnalysisType: prompts.AnalysisTypeFor(kind),
		})
	})
}

func registerFixSQLTool(s *server.MCPServer, deps *SQLToolDeps) {
	tool := mcp.NewTool(
		"fix_sql",
		mcp.WithDescription(
			"Repair a failing Dune SQL statement, or analyze why it returned no rows. "+
				"Uses related analyzed queries and previously learned fixes as context, "+
				"validates the result against known tables and records the fix. "+
				"Example: fix_sql(original_sql='SELEC * FROM dex.trades', error_message='syntax error at position 1').",
		),
		mcp.WithString(
			"original_sql",
			mcp.Required(),
			mcp.Description("The SQL statement that failed"),
		),
		mcp.WithString(
			"error_message",
			mcp.Required(),
			mcp.Description("Error message or 'no results' description"),
		),
		mcp.WithString(
			"user_context",
			mcp.Description("Optional: what the query is meant to answer"),
		),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		originalSQL, err := req.RequireString("original_sql")
		if err != nil {
			return nil, err
		}
		errorMessage, err := req.RequireString("error_message")
		if err != nil {
			return nil, err
		}

		result, err := deps.Fix.Fix(ctx, services.FixRequest{
			OriginalSQL:  originalSQL,
			ErrorMessage: errorMessage,
			UserContext:  getOptionalString(req, "user_context"),
		})
		if err != nil {
			return serviceErrorResult(fmt.Errorf("failed to fix sql: %w", err))
		}
		return jsonResult(result)
	})
}

func registerGenerateSQLTool(s *server.MCPServer, deps *SQLToolDeps) {
	tool := mcp.NewTool(
		"generate_sql",
		mcp.WithDescription(
			"Generate Dune SQL from a natural-language request. "+
				"Returns the statement, assumptions and, when confidence is low, clarification questions. "+
				"Example: generate_sql(user_query='daily uniswap volume for the last 30 days', blockchain='ethereum').",
		),
		mcp.WithString(
			"user_query",
			mcp.Required(),
			mcp.Description("What the SQL should answer"),
		),
		mcp.WithString(
			"blockchain",
			mcp.Description("Optional: chain to query, overrides detection"),
		),
		mcp.WithString(
			"timeframe",
			mcp.Description("Optional: time window such as 'last 7 days'"),
		),
		mcp.WithArray(
			"protocols",
			mcp.Description("Optional: protocols to focus on"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString(
			"additional_info",
			mcp.Description("Optional: any other constraints"),
		),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userQuery, err := req.RequireString("user_query")
		if err != nil {
			return nil, err
		}

		result, err := deps.Generation.Generate(ctx, services.GenerationRequest{
			UserQuery: userQuery,
			Context: services.GenerationContext{
				Blockchain:     getOptionalString(req, "blockchain"),
				Timeframe:      getOptionalString(req, "timeframe"),
				Protocols:      getStringSlice(req, "protocols"),
				AdditionalInfo: getOptionalString(req, "additional_info"),
			},
		})
		if err != nil {
			return serviceErrorResult(fmt.Errorf("failed to generate sql: %w", err))
		}
		return jsonResult(result)
	})
}
