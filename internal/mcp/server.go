package mcp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lox/transaction-search/internal/search"
	"github.com/lox/transaction-search/internal/types"
)

const defaultLimit = 10

type Server struct {
	engine *search.Engine
	logger *log.Logger
	// opts are appended to every search, after the per-call arguments
	opts []search.SearchOption
}

func New(engine *search.Engine, logger *log.Logger, opts ...search.SearchOption) *Server {
	return &Server{
		engine: engine,
		logger: logger,
		opts:   opts,
	}
}

// MCPServer builds the MCP server with the search tools registered
func (s *Server) MCPServer() *server.MCPServer {
	mcpServer := server.NewMCPServer(
		"Transaction Search",
		"1.0.0",
	)

	mcpServer.AddTool(mcp.NewTool("search_transactions",
		mcp.WithDescription("Search transactions by meaning and keywords, with optional filters"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query - what you're looking for"),
		),
		mcp.WithString("limit",
			mcp.Description("Maximum number of results to return (default: 10)"),
		),
		mcp.WithString("vector_weight",
			mcp.Description("Weight of semantic similarity in the ranking (default: 0.4)"),
		),
		mcp.WithString("text_weight",
			mcp.Description("Weight of keyword relevance in the ranking (default: 0.6)"),
		),
		mcp.WithString("start_date",
			mcp.Description("Earliest transaction date, inclusive (YYYY-MM-DD)"),
		),
		mcp.WithString("end_date",
			mcp.Description("Latest transaction date, inclusive (YYYY-MM-DD)"),
		),
		mcp.WithString("type",
			mcp.Description("Filter by transaction type (income, expense)"),
		),
		mcp.WithString("project_id",
			mcp.Description("Filter by project id"),
		),
		mcp.WithString("category_id",
			mcp.Description("Filter by category id"),
		),
	), s.searchTransactionsHandler)

	mcpServer.AddTool(mcp.NewTool("smart_search",
		mcp.WithDescription("Search transactions with a natural language query. Phrases such as 'last month' or 'this week' and words such as 'income' or 'expenses' become filters."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language query, e.g. 'cement expenses last month'"),
		),
		mcp.WithString("limit",
			mcp.Description("Maximum number of results to return (default: 10)"),
		),
	), s.smartSearchHandler)

	return mcpServer
}

// Run serves the tools over stdio until the client disconnects
func (s *Server) Run() error {
	return server.ServeStdio(s.MCPServer())
}

func (s *Server) searchTransactionsHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments
	query, ok := args["query"].(string)
	if !ok {
		return nil, errors.New("query must be a string")
	}

	limit, err := intArgument(args, "limit", defaultLimit)
	if err != nil {
		return nil, err
	}
	opts := []search.SearchOption{search.WithLimit(limit)}
	for name, option := range map[string]func(float64) search.SearchOption{
		"vector_weight": search.WithVectorWeight,
		"text_weight":   search.WithTextWeight,
	} {
		if _, ok := args[name]; !ok {
			continue
		}
		weight, err := floatArgument(args, name)
		if err != nil {
			return nil, err
		}
		opts = append(opts, option(weight))
	}

	filters, err := filtersArgument(args)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Handling search_transactions", "query", query, "limit", limit, "filters", filters)
	results, err := s.engine.HybridSearch(ctx, query, filters, append(opts, s.opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to search transactions: %w", err)
	}

	return mcp.NewToolResultText(formatResults(results)), nil
}

func (s *Server) smartSearchHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, ok := request.Params.Arguments["query"].(string)
	if !ok {
		return nil, errors.New("query must be a string")
	}
	limit, err := intArgument(request.Params.Arguments, "limit", defaultLimit)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Handling smart_search", "query", query, "limit", limit)
	results, err := s.engine.SmartSearch(ctx, query, limit, s.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to search transactions: %w", err)
	}

	var b strings.Builder
	q := results.Query
	if len(q.Matched) > 0 {
		fmt.Fprintf(&b, "Interpreted: %s\n", strings.Join(q.Matched, ", "))
		if q.Filters.StartDate != nil && q.Filters.EndDate != nil {
			fmt.Fprintf(&b, "  Dates: %s to %s\n", q.Filters.StartDate.Format(types.DateLayout), q.Filters.EndDate.Format(types.DateLayout))
		}
		if q.Filters.Type != "" {
			fmt.Fprintf(&b, "  Type: %s\n", q.Filters.Type)
		}
		fmt.Fprintf(&b, "  Searching for: %s\n\n", q.Residual)
	}
	b.WriteString(formatResults(results.SearchResults))

	return mcp.NewToolResultText(b.String()), nil
}

func formatResults(results types.SearchResults) string {
	var b strings.Builder
	if results.Metadata.Fallback {
		b.WriteString("Note: semantic search was unavailable, results are keyword matches only\n\n")
	}
	if len(results.Results) == 0 {
		b.WriteString("No transactions found\n")
		return b.String()
	}

	for _, r := range results.Results {
		t := r.Transaction
		fmt.Fprintf(&b, "%s: %s %s - %s\n", t.Date.Format(types.DateLayout), t.Type, t.Amount.StringFixed(2), t.Description)
		if t.ProjectName != "" {
			fmt.Fprintf(&b, "  Project: %s\n", t.ProjectName)
		}
		if t.CategoryName != "" {
			fmt.Fprintf(&b, "  Category: %s\n", t.CategoryName)
		}
		if t.Source != "" {
			fmt.Fprintf(&b, "  Source: %s\n", t.Source)
		}
		fmt.Fprintf(&b, "  ID: %s (score %.3f)\n\n", t.ID, r.HybridScore)
	}
	return b.String()
}

// intArgument parses an optional integer argument, which clients send as a number or a string
func intArgument(args map[string]interface{}, name string, def int) (int, error) {
	value, ok := args[name]
	if !ok {
		return def, nil
	}
	switch v := value.(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", name, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s must be a number or string", name)
	}
}

func floatArgument(args map[string]interface{}, name string) (float64, error) {
	switch v := args[name].(type) {
	case int:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid number: %w", name, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%s must be a number or string", name)
	}
}

func filtersArgument(args map[string]interface{}) (types.Filters, error) {
	var filters types.Filters
	for name, target := range map[string]**time.Time{
		"start_date": &filters.StartDate,
		"end_date":   &filters.EndDate,
	} {
		raw, _ := args[name].(string)
		if raw == "" {
			continue
		}
		d, err := time.Parse(types.DateLayout, raw)
		if err != nil {
			return types.Filters{}, fmt.Errorf("%s must be a date (YYYY-MM-DD): %w", name, err)
		}
		*target = &d
	}

	if kind, _ := args["type"].(string); kind != "" {
		filters.Type = types.TransactionType(strings.ToLower(kind))
		if !filters.Type.Valid() {
			return types.Filters{}, fmt.Errorf("type must be income or expense, got %q", kind)
		}
	}
	filters.ProjectID, _ = args["project_id"].(string)
	filters.CategoryID, _ = args["category_id"].(string)
	return filters, nil
}
