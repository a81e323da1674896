package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/lox/transaction-search/internal/commands"
	"github.com/lox/transaction-search/internal/embeddings"
)

type EmbeddingsCLI struct {
	commands.CommonConfig
	commands.EmbeddingConfig

	Test      TestCmd      `cmd:"" help:"Test embedding generation for a given text input."`
	Benchmark BenchmarkCmd `cmd:"" help:"Benchmark embedding generation for a given text input."`
	Batch     BatchCmd     `cmd:"" help:"Embed each line of a file and print the vectors as JSON lines."`
}

type TestCmd struct {
	Text    string `help:"Text to generate embedding for" required:""`
	Compare string `help:"Second text to compare against with cosine similarity"`
}

type BenchmarkCmd struct {
	Text  string `help:"Text to generate embedding for" required:""`
	Count int    `help:"Number of times to generate the embedding" default:"10"`
}

type BatchCmd struct {
	File       string `arg:"" help:"File with one text per line, or - for stdin" default:"-"`
	ChunkSize  int    `help:"Number of lines embedded per batch" default:"32"`
	NoProgress bool   `help:"Disable progress bar" default:"false"`
}

func setup(cli *EmbeddingsCLI) (*log.Logger, *embeddings.Generator, error) {
	logger, err := cli.NewLogger(os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	generator, err := commands.SetupGenerator(cli.EmbeddingConfig, logger)
	if err != nil {
		return nil, nil, err
	}
	return logger, generator, nil
}

func (c *TestCmd) Run(cli *EmbeddingsCLI) error {
	_, generator, err := setup(cli)
	if err != nil {
		return err
	}
	defer generator.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	embedding, err := generator.Embed(ctx, c.Text)
	if err != nil {
		return fmt.Errorf("failed to generate embedding: %w", err)
	}

	fmt.Printf("Embedding for: %q (model %s, %d dimensions)\n", c.Text, generator.ModelName(), len(embedding))
	fmt.Printf("%v\n", embedding)

	if c.Compare != "" {
		other, err := generator.Embed(ctx, c.Compare)
		if err != nil {
			return fmt.Errorf("failed to generate embedding: %w", err)
		}
		similarity, err := embeddings.CosineSimilarity(embedding, other)
		if err != nil {
			return err
		}
		fmt.Printf("Cosine similarity with %q: %.4f\n", c.Compare, similarity)
	}
	return nil
}

func (c *BenchmarkCmd) Run(cli *EmbeddingsCLI) error {
	if c.Count < 1 {
		return fmt.Errorf("count must be at least 1")
	}
	_, generator, err := setup(cli)
	if err != nil {
		return err
	}
	defer generator.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(c.Count)*2*time.Minute)
	defer cancel()

	// load outside the timed loop
	start := time.Now()
	if err := generator.Initialize(ctx); err != nil {
		return err
	}
	fmt.Printf("Model load: %v\n", time.Since(start))

	var totalTime time.Duration
	var embeddingLen int
	for i := 0; i < c.Count; i++ {
		start := time.Now()
		embedding, err := generator.Embed(ctx, c.Text)
		elapsed := time.Since(start)
		if err != nil {
			return fmt.Errorf("run %d: failed to generate embedding: %w", i+1, err)
		}
		embeddingLen = len(embedding)
		totalTime += elapsed
		fmt.Printf("Run %d: %v (embedding length: %d)\n", i+1, elapsed, len(embedding))
	}
	fmt.Printf("\nBenchmark complete: %d runs\n", c.Count)
	fmt.Printf("Total time: %v\n", totalTime)
	fmt.Printf("Average time per embedding: %v\n", totalTime/time.Duration(c.Count))
	fmt.Printf("Embedding length: %d\n", embeddingLen)
	return nil
}

type batchLine struct {
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

func (c *BatchCmd) Run(cli *EmbeddingsCLI) error {
	if c.ChunkSize < 1 {
		return fmt.Errorf("chunk size must be at least 1")
	}
	logger, generator, err := setup(cli)
	if err != nil {
		return err
	}
	defer generator.Close()

	var in io.Reader = os.Stdin
	if c.File != "-" {
		f, err := os.Open(c.File)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", c.File, err)
		}
		defer f.Close()
		in = f
	}

	var lines []string
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	start := time.Now()
	progress := commands.NewProgress(!c.NoProgress, os.Stderr, len(lines), "Generating embeddings")
	defer progress.Close()

	enc := json.NewEncoder(os.Stdout)
	for offset := 0; offset < len(lines); offset += c.ChunkSize {
		chunk := lines[offset:min(offset+c.ChunkSize, len(lines))]
		vectors, err := generator.EmbedBatch(ctx, chunk)
		if err != nil {
			return fmt.Errorf("failed to embed lines %d-%d: %w", offset+1, offset+len(chunk), err)
		}
		for i, text := range chunk {
			if err := enc.Encode(batchLine{Text: text, Embedding: vectors[i]}); err != nil {
				return err
			}
		}
		_ = progress.Add(len(chunk))
	}

	logger.Info("Embedded batch", "lines", len(lines), "model", generator.ModelName(), "duration", time.Since(start))
	return nil
}

func main() {
	cli := &EmbeddingsCLI{}
	ctx := kong.Parse(cli,
		kong.Name("transaction-embeddings"),
		kong.Description("Test and benchmark transaction embedding models"),
		kong.UsageOnError(),
	)
	err := ctx.Run(cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
