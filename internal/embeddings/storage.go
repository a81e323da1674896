package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/philippgille/chromem-go"
	"golang.org/x/exp/slices"
)

const collectionName = "transactions"

// Metadata keys usable in a VectorStorage where clause
const (
	MetadataType       = "type"
	MetadataProjectID  = "project_id"
	MetadataCategoryID = "category_id"
)

// VectorResult represents a single result from a vector search
type VectorResult struct {
	// ID is the transaction ID
	ID string
	// Similarity is the cosine similarity score
	Similarity float32
}

// EmbeddingMetadata is stored alongside each vector by the backfill job
type EmbeddingMetadata struct {
	ContentHash string    `json:"content_hash"`
	ModelName   string    `json:"model_name"`
	Length      int       `json:"length"`
	LastUpdated time.Time `json:"last_updated"`
	Type        string    `json:"type,omitempty"`
	ProjectID   string    `json:"project_id,omitempty"`
	CategoryID  string    `json:"category_id,omitempty"`
}

func (m *EmbeddingMetadata) ToMap() map[string]string {
	return map[string]string{
		"content_hash":     m.ContentHash,
		"model_name":       m.ModelName,
		"length":           strconv.Itoa(m.Length),
		"last_updated":     m.LastUpdated.Format(time.RFC3339),
		MetadataType:       m.Type,
		MetadataProjectID:  m.ProjectID,
		MetadataCategoryID: m.CategoryID,
	}
}

func EmbeddingFromMap(metadata map[string]string) (EmbeddingMetadata, error) {
	length, err := strconv.Atoi(metadata["length"])
	if err != nil {
		return EmbeddingMetadata{}, fmt.Errorf("failed to parse length: %w", err)
	}
	lastUpdated, err := time.Parse(time.RFC3339, metadata["last_updated"])
	if err != nil {
		return EmbeddingMetadata{}, fmt.Errorf("failed to parse last updated: %w", err)
	}
	return EmbeddingMetadata{
		ContentHash: metadata["content_hash"],
		ModelName:   metadata["model_name"],
		Length:      length,
		LastUpdated: lastUpdated,
		Type:        metadata[MetadataType],
		ProjectID:   metadata[MetadataProjectID],
		CategoryID:  metadata[MetadataCategoryID],
	}, nil
}

func (m *EmbeddingMetadata) MatchContent(content string) bool {
	return m.ContentHash == Hash(content)
}

// Hash creates a SHA-256 hash of the content
func Hash(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

// VectorStorage is the read path of the vector index
type VectorStorage interface {
	// Query returns up to limit IDs nearest to embedding, most similar first.
	// where restricts candidates to exact metadata matches; nil means no restriction.
	Query(ctx context.Context, embedding []float32, where map[string]string, limit int) ([]VectorResult, error)

	// Count returns the number of stored vectors
	Count() int

	// Close closes the storage
	Close() error
}

// ChromemStorage implements VectorStorage using chromem-go vector database
type ChromemStorage struct {
	db         *chromem.DB
	collection *chromem.Collection
	logger     *log.Logger
	dimension  int
}

var errReadOnlyIndex = errors.New("vector index does not compute embeddings; documents must carry one")

func refuseEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errReadOnlyIndex
}

// NewChromemStorage opens the persistent vector index under dataDir. dimension is the
// expected vector size; 0 disables the query-side dimension check.
func NewChromemStorage(dataDir string, dimension int, logger *log.Logger) (*ChromemStorage, error) {
	dbPath := filepath.Join(dataDir, "chromem-go")
	db, err := chromem.NewPersistentDB(dbPath, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create chromem database: %w", err)
	}
	storage, err := newChromemStorage(db, dimension, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Opened chromem vector database",
		"path", dbPath,
		"document_count", storage.Count(),
		"dimension", dimension)
	return storage, nil
}

// NewMemoryChromemStorage creates a non-persistent vector index
func NewMemoryChromemStorage(dimension int, logger *log.Logger) (*ChromemStorage, error) {
	return newChromemStorage(chromem.NewDB(), dimension, logger)
}

func newChromemStorage(db *chromem.DB, dimension int, logger *log.Logger) (*ChromemStorage, error) {
	if dimension < 0 {
		return nil, fmt.Errorf("dimension must not be negative")
	}
	collection, err := db.GetOrCreateCollection(collectionName, nil, refuseEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	return &ChromemStorage{
		db:         db,
		collection: collection,
		logger:     logger,
		dimension:  dimension,
	}, nil
}

// StoreEmbedding stores a precomputed embedding for a transaction. Search never calls
// it; it is the contract the embedding backfill job writes through.
func (s *ChromemStorage) StoreEmbedding(
	ctx context.Context,
	id string,
	text string,
	embedding []float32,
	metadata EmbeddingMetadata,
) error {
	if s.dimension > 0 && len(embedding) != s.dimension {
		return &DimensionMismatchError{Expected: s.dimension, Actual: len(embedding)}
	}
	metadata.Length = len(embedding)
	doc, err := chromem.NewDocument(ctx, id, metadata.ToMap(), embedding, text, nil)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	if err := s.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to add document to collection: %w", err)
	}
	s.logger.Debug("Stored embedding", "id", id, "metadata", metadata)
	return nil
}

// HasEmbedding checks if an embedding exists for the given transaction ID
// and returns the metadata if it does
func (s *ChromemStorage) HasEmbedding(ctx context.Context, id string) (bool, EmbeddingMetadata, error) {
	doc, err := s.collection.GetByID(ctx, id)
	if err != nil {
		return false, EmbeddingMetadata{}, nil
	}
	metadata, err := EmbeddingFromMap(doc.Metadata)
	if err != nil {
		return false, EmbeddingMetadata{}, fmt.Errorf("failed to parse metadata for id %s: %w", id, err)
	}
	return true, metadata, nil
}

// Query finds transaction IDs similar to the given embedding
func (s *ChromemStorage) Query(ctx context.Context, embedding []float32, where map[string]string, limit int) ([]VectorResult, error) {
	if s.dimension > 0 && len(embedding) != s.dimension {
		return nil, &DimensionMismatchError{Expected: s.dimension, Actual: len(embedding)}
	}
	count := s.collection.Count()
	if count == 0 || limit <= 0 || isZero(embedding) {
		return []VectorResult{}, nil
	}
	// chromem rejects requests for more results than it holds
	if limit > count {
		limit = count
	}

	start := time.Now()
	results, err := s.collection.QueryEmbedding(ctx, embedding, limit, nonEmpty(where), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}

	vectorResults := make([]VectorResult, 0, len(results))
	for _, result := range results {
		if len(result.Embedding) > 0 && len(result.Embedding) != len(embedding) {
			return nil, &DimensionMismatchError{Expected: len(embedding), Actual: len(result.Embedding)}
		}
		vectorResults = append(vectorResults, VectorResult{
			ID:         result.ID,
			Similarity: result.Similarity,
		})
	}
	slices.SortStableFunc(vectorResults, func(a, b VectorResult) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		}
		return 0
	})

	s.logger.Debug("Vector query completed",
		"results", len(vectorResults),
		"limit", limit,
		"where", where,
		"duration", time.Since(start))
	return vectorResults, nil
}

// Count returns the number of stored embeddings
func (s *ChromemStorage) Count() int {
	return s.collection.Count()
}

// Close closes the database
func (s *ChromemStorage) Close() error {
	// chromem persists on write and has nothing to release
	return nil
}

func nonEmpty(where map[string]string) map[string]string {
	out := make(map[string]string, len(where))
	for k, v := range where {
		if v != "" {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func isZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
