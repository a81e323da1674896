package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/lox/transaction-search/internal/commands"
	"github.com/lox/transaction-search/internal/db"
	"github.com/lox/transaction-search/internal/types"
)

type CLI struct {
	commands.CommonConfig
	commands.EmbeddingConfig

	Search SearchCmd `cmd:"" help:"Hybrid search with explicit filters."`
	Smart  SmartCmd  `cmd:"" help:"Search with a natural language query such as 'cement expenses last month'."`
	Import ImportCmd `cmd:"" help:"Import transactions from a JSON file."`
}

type SearchCmd struct {
	commands.SearchConfig

	Query      string `arg:"" help:"Search query - what you're looking for"`
	StartDate  string `help:"Earliest transaction date, inclusive (YYYY-MM-DD)"`
	EndDate    string `help:"Latest transaction date, inclusive (YYYY-MM-DD)"`
	Type       string `help:"Filter by transaction type (income, expense)"`
	ProjectID  string `help:"Filter by project id"`
	CategoryID string `help:"Filter by category id"`
	JSON       bool   `help:"Print results as JSON" default:"false"`
}

type SmartCmd struct {
	commands.SearchConfig

	Query string `arg:"" help:"Natural language query"`
	JSON  bool   `help:"Print results as JSON" default:"false"`
}

type ImportCmd struct {
	File       string `arg:"" help:"Path to a JSON array of transactions" type:"existingfile"`
	NoProgress bool   `help:"Disable progress bar" default:"false"`
}

func (c *SearchCmd) filters() (types.Filters, error) {
	filters := types.Filters{
		Type:       types.TransactionType(c.Type),
		ProjectID:  c.ProjectID,
		CategoryID: c.CategoryID,
	}
	if filters.Type != "" && !filters.Type.Valid() {
		return types.Filters{}, fmt.Errorf("--type must be income or expense, got %q", c.Type)
	}
	for _, bound := range []struct {
		flag   string
		value  string
		target **time.Time
	}{
		{"start-date", c.StartDate, &filters.StartDate},
		{"end-date", c.EndDate, &filters.EndDate},
	} {
		if bound.value == "" {
			continue
		}
		d, err := time.Parse(types.DateLayout, bound.value)
		if err != nil {
			return types.Filters{}, fmt.Errorf("--%s must be a date (YYYY-MM-DD): %w", bound.flag, err)
		}
		*bound.target = &d
	}
	return filters, nil
}

func (c *SearchCmd) Run(cli *CLI) error {
	logger, err := cli.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	filters, err := c.filters()
	if err != nil {
		return err
	}

	stack, err := commands.SetupSearchEngine(cli.CommonConfig, cli.EmbeddingConfig, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	results, err := stack.Engine.HybridSearch(ctx, c.Query, filters, c.Options()...)
	if err != nil {
		return fmt.Errorf("failed to search transactions: %w", err)
	}
	if c.JSON {
		return printJSON(results)
	}
	printResults(results)
	return nil
}

func (c *SmartCmd) Run(cli *CLI) error {
	logger, err := cli.NewLogger(os.Stderr)
	if err != nil {
		return err
	}

	stack, err := commands.SetupSearchEngine(cli.CommonConfig, cli.EmbeddingConfig, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	results, err := stack.Engine.SmartSearch(ctx, c.Query, c.Limit, c.Options()...)
	if err != nil {
		return fmt.Errorf("failed to search transactions: %w", err)
	}
	if c.JSON {
		return printJSON(results)
	}

	q := results.Query
	if len(q.Matched) > 0 {
		fmt.Printf("Interpreted %q as %q", strings.Join(q.Matched, ", "), q.Residual)
		if q.Filters.StartDate != nil && q.Filters.EndDate != nil {
			fmt.Printf(" from %s to %s", q.Filters.StartDate.Format(types.DateLayout), q.Filters.EndDate.Format(types.DateLayout))
		}
		if q.Filters.Type != "" {
			fmt.Printf(" (%s only)", q.Filters.Type)
		}
		fmt.Print("\n\n")
	}
	printResults(results.SearchResults)
	return nil
}

func (c *ImportCmd) Run(cli *CLI) error {
	logger, err := cli.NewLogger(os.Stderr)
	if err != nil {
		return err
	}

	database, err := db.New(cli.DataDir, logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	file, err := os.Open(c.File)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", c.File, err)
	}
	defer file.Close()

	// the total is unknown until the file is decoded
	progress := commands.NewProgress(!c.NoProgress, os.Stderr, -1, "Importing transactions")
	n, err := commands.ImportTransactions(context.Background(), file, database, progress, logger)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d transactions\n", n)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResults(results types.SearchResults) {
	if results.Metadata.Fallback {
		fmt.Println("Semantic search unavailable, showing keyword matches only")
	}
	if results.Metadata.TextFallback != "" {
		fmt.Printf("Keyword search unavailable, using %s matching\n", results.Metadata.TextFallback)
	}
	if len(results.Results) == 0 {
		fmt.Println("No transactions found")
		return
	}

	fmt.Printf("Found %d transactions:\n\n", results.Metadata.TotalResults)
	for _, r := range results.Results {
		t := r.Transaction
		fmt.Printf("%s: %s %s - %s (score: %.3f, vector: %.3f, text: %.3f)\n",
			t.Date.Format(types.DateLayout), t.Type, t.Amount.StringFixed(2), t.Description,
			r.HybridScore, r.VectorScore, r.TextScore)
		if t.ProjectName != "" {
			fmt.Printf("  Project: %s\n", t.ProjectName)
		}
		if t.CategoryName != "" {
			fmt.Printf("  Category: %s\n", t.CategoryName)
		}
		if t.Source != "" {
			fmt.Printf("  Source: %s\n", t.Source)
		}
		fmt.Println()
	}
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("transaction-search"),
		kong.Description("Search transactions by meaning and keywords"),
		kong.UsageOnError(),
	)

	err := ctx.Run(cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
