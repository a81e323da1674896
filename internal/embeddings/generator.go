package embeddings

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/transaction-search/internal/types"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const probeText = "embedding dimension probe"

// GeneratorConfig holds configuration for a Generator
type GeneratorConfig struct {
	// Loader constructs the embedding model on first use
	Loader ModelLoader
	// Dimension is the expected vector size; 0 accepts whatever the model produces
	Dimension int
	// Concurrency bounds parallel requests issued by EmbedBatch
	Concurrency int
	// LoadTimeout bounds the model load, which is shared by every caller and so does
	// not inherit any single caller's deadline
	LoadTimeout time.Duration
	Logger      *log.Logger
}

func NewGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Concurrency: runtime.NumCPU(),
		LoadTimeout: 2 * time.Minute,
	}
}

func (c GeneratorConfig) WithLoader(loader ModelLoader) GeneratorConfig {
	c.Loader = loader
	return c
}
func (c GeneratorConfig) WithProvider(provider EmbeddingProvider) GeneratorConfig {
	c.Loader = StaticLoader(provider)
	return c
}
func (c GeneratorConfig) WithDimension(dimension int) GeneratorConfig {
	c.Dimension = dimension
	return c
}
func (c GeneratorConfig) WithConcurrency(concurrency int) GeneratorConfig {
	c.Concurrency = concurrency
	return c
}
func (c GeneratorConfig) WithLoadTimeout(timeout time.Duration) GeneratorConfig {
	c.LoadTimeout = timeout
	return c
}
func (c GeneratorConfig) WithLogger(logger *log.Logger) GeneratorConfig {
	c.Logger = logger
	return c
}

func (c GeneratorConfig) Validate() error {
	if c.Loader == nil {
		return fmt.Errorf("model loader is required")
	}
	if c.Dimension < 0 {
		return fmt.Errorf("dimension must not be negative")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be greater than 0")
	}
	if c.LoadTimeout <= 0 {
		return fmt.Errorf("load timeout must be greater than 0")
	}
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	return nil
}

// loadedModel is the result of a successful model load
type loadedModel struct {
	provider  EmbeddingProvider
	dimension int
}

// Generator turns text into fixed-dimension vectors. The underlying model is loaded
// lazily, exactly once on success; concurrent first callers share a single load.
// After loading, all methods are safe for concurrent use. A closed Generator never
// loads again.
type Generator struct {
	config GeneratorConfig
	logger *log.Logger

	loads  singleflight.Group
	mu     sync.RWMutex
	model  *loadedModel
	closed bool
}

// NewGenerator creates a Generator. No model is loaded until it is first needed.
func NewGenerator(config GeneratorConfig) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Generator{
		config: config,
		logger: config.Logger,
	}, nil
}

// Initialize loads the model if it has not been loaded yet. It is idempotent.
func (g *Generator) Initialize(ctx context.Context) error {
	_, err := g.load(ctx)
	return err
}

// Initialized reports whether the model has been loaded
func (g *Generator) Initialized() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.model != nil
}

// Dimension returns the vector size D, loading the model if needed
func (g *Generator) Dimension(ctx context.Context) (int, error) {
	m, err := g.load(ctx)
	if err != nil {
		return 0, err
	}
	return m.dimension, nil
}

// ModelName returns the loaded model's name, or "" before the model is loaded
func (g *Generator) ModelName() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.model == nil {
		return ""
	}
	return g.model.provider.GetEmbeddingModelName()
}

func (g *Generator) current() (*loadedModel, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return nil, errGeneratorClosed
	}
	return g.model, nil
}

var errGeneratorClosed = fmt.Errorf("%w: generator is closed", ErrModelUnavailable)

// load returns the loaded model, loading it first if needed. The load runs detached
// from ctx under LoadTimeout; ctx only bounds how long this caller waits for it.
func (g *Generator) load(ctx context.Context) (*loadedModel, error) {
	if m, err := g.current(); m != nil || err != nil {
		return m, err
	}

	ch := g.loads.DoChan("model", func() (interface{}, error) {
		// a previous flight may have finished between the check above and this call
		if m, err := g.current(); m != nil || err != nil {
			return m, err
		}
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.config.LoadTimeout)
		defer cancel()
		return g.loadModel(loadCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			g.logger.Warn("Embedding model load failed", "error", res.Err, "shared", res.Shared)
			return nil, res.Err
		}
		return res.Val.(*loadedModel), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for model load: %w", ErrModelUnavailable, ctx.Err())
	}
}

func (g *Generator) loadModel(ctx context.Context) (*loadedModel, error) {
	start := time.Now()
	provider, err := g.config.Loader(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load model: %w", ErrModelUnavailable, err)
	}
	probe, err := provider.GenerateEmbedding(ctx, probeText)
	if err != nil {
		return nil, fmt.Errorf("%w: model probe failed: %w", ErrModelUnavailable, err)
	}
	if len(probe) == 0 {
		return nil, fmt.Errorf("%w: model returned an empty vector", ErrModelUnavailable)
	}
	if g.config.Dimension > 0 && len(probe) != g.config.Dimension {
		return nil, &DimensionMismatchError{Expected: g.config.Dimension, Actual: len(probe)}
	}

	m := &loadedModel{provider: provider, dimension: len(probe)}
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		_ = CloseProvider(provider)
		return nil, errGeneratorClosed
	}
	g.model = m
	g.mu.Unlock()

	g.logger.Info("Loaded embedding model",
		"model", provider.GetEmbeddingModelName(),
		"dimension", m.dimension,
		"duration", time.Since(start))
	return m, nil
}

// Embed returns the vector for text. Blank text yields ErrEmptyInput.
func (g *Generator) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	m, err := g.load(ctx)
	if err != nil {
		return nil, err
	}
	return g.embed(ctx, m, text)
}

func (g *Generator) embed(ctx context.Context, m *loadedModel, text string) ([]float32, error) {
	vec, err := m.provider.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	if len(vec) != m.dimension {
		return nil, &DimensionMismatchError{Expected: m.dimension, Actual: len(vec)}
	}
	return vec, nil
}

// EmbedBatch embeds texts in parallel. The output has the same length and order as the
// input; a blank entry yields the zero vector at its position instead of an error.
// Providers that accept many texts per request are sent chunks instead of single texts.
func (g *Generator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}
	m, err := g.load(ctx)
	if err != nil {
		return nil, err
	}

	pending := make([]int, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			out[i] = make([]float32, m.dimension)
			continue
		}
		pending = append(pending, i)
	}

	start := time.Now()
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.config.Concurrency)

	batcher, ok := m.provider.(BatchEmbeddingProvider)
	if ok && batcher.MaxBatchSize() > 1 {
		for _, chunk := range chunkIndexes(pending, batcher.MaxBatchSize()) {
			eg.Go(func() error {
				return g.embedChunk(egCtx, m, batcher, texts, chunk, out)
			})
		}
	} else {
		for _, i := range pending {
			eg.Go(func() error {
				vec, err := g.embed(egCtx, m, texts[i])
				if err != nil {
					return fmt.Errorf("batch item %d: %w", i, err)
				}
				out[i] = vec
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	g.logger.Debug("Embedded batch",
		"count", len(texts),
		"blank", len(texts)-len(pending),
		"dimension", m.dimension,
		"duration", time.Since(start))
	return out, nil
}

// embedChunk embeds texts[i] for every i in chunk with a single provider call and
// writes each vector to out[i]
func (g *Generator) embedChunk(ctx context.Context, m *loadedModel, batcher BatchEmbeddingProvider, texts []string, chunk []int, out [][]float32) error {
	inputs := make([]string, len(chunk))
	for j, i := range chunk {
		inputs[j] = texts[i]
	}
	vectors, err := batcher.GenerateEmbeddings(ctx, inputs)
	if err != nil {
		return fmt.Errorf("batch items %d-%d: %w: %w", chunk[0], chunk[len(chunk)-1], ErrModelUnavailable, err)
	}
	if len(vectors) != len(chunk) {
		return fmt.Errorf("%w: expected %d vectors, got %d", ErrModelUnavailable, len(chunk), len(vectors))
	}
	for j, i := range chunk {
		if len(vectors[j]) != m.dimension {
			return &DimensionMismatchError{Expected: m.dimension, Actual: len(vectors[j])}
		}
		out[i] = vectors[j]
	}
	return nil
}

func chunkIndexes(indexes []int, size int) [][]int {
	var chunks [][]int
	for len(indexes) > size {
		chunks = append(chunks, indexes[:size])
		indexes = indexes[size:]
	}
	if len(indexes) > 0 {
		chunks = append(chunks, indexes)
	}
	return chunks
}

// TransactionText holds the free-text fields that make up a transaction's embedding input
type TransactionText struct {
	Description  string
	ProjectName  string
	CategoryName string
	Source       string
}

// TransactionTextOf extracts the embedding fields of a transaction
func TransactionTextOf(t types.Transaction) TransactionText {
	return TransactionText{
		Description:  t.Description,
		ProjectName:  t.ProjectName,
		CategoryName: t.CategoryName,
		Source:       t.Source,
	}
}

// String joins the present fields with single spaces
func (t TransactionText) String() string {
	parts := make([]string, 0, 4)
	for _, field := range []string{t.Description, t.ProjectName, t.CategoryName, t.Source} {
		if field = strings.TrimSpace(field); field != "" {
			parts = append(parts, field)
		}
	}
	return strings.Join(parts, " ")
}

// EmbedTransaction embeds the concatenated free-text fields of a transaction.
// Individual fields are short, so they are embedded together rather than one by one.
func (g *Generator) EmbedTransaction(ctx context.Context, fields TransactionText) ([]float32, error) {
	return g.Embed(ctx, fields.String())
}

// Close releases the loaded provider, if any. Later calls that need the model return
// ErrModelUnavailable.
func (g *Generator) Close() error {
	g.mu.Lock()
	m := g.model
	g.model = nil
	g.closed = true
	g.mu.Unlock()
	if m == nil {
		return nil
	}
	return CloseProvider(m.provider)
}
