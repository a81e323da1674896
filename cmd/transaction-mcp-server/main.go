package main

import (
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"github.com/lox/transaction-search/internal/commands"
	"github.com/lox/transaction-search/internal/mcp"
	"github.com/lox/transaction-search/internal/search"
)

type CLI struct {
	commands.CommonConfig
	commands.EmbeddingConfig

	Timeout time.Duration `help:"Per-branch retrieval timeout (0 disables)" default:"10s" env:"SEARCH_TIMEOUT"`
}

func (c *CLI) Run() error {
	// stdout carries the MCP protocol, so logs go to stderr
	logger, err := c.NewLogger(os.Stderr)
	if err != nil {
		return err
	}

	stack, err := commands.SetupSearchEngine(c.CommonConfig, c.EmbeddingConfig, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	logger.Info("Starting MCP server", "data_dir", c.DataDir, "provider", c.Provider)
	return mcp.New(stack.Engine, logger, search.WithTimeout(c.Timeout)).Run()
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("transaction-mcp-server"),
		kong.Description("Serve transaction search tools over the Model Context Protocol"),
		kong.UsageOnError(),
	)

	err := ctx.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
