package commands

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/lox/transaction-search/internal/db"
	"github.com/lox/transaction-search/internal/embeddings"
	"github.com/lox/transaction-search/internal/search"
	"github.com/lox/transaction-search/internal/store"
)

// SetupVectorStorage opens the persistent vector index under dataDir
func SetupVectorStorage(dataDir string, dimension int, logger *log.Logger) (*embeddings.ChromemStorage, error) {
	vectorStorage, err := embeddings.NewChromemStorage(dataDir, dimension, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector storage: %w", err)
	}
	return vectorStorage, nil
}

// SearchStack is everything a search command needs, opened from one data directory
type SearchStack struct {
	DB        *db.DB
	Vectors   *embeddings.ChromemStorage
	Generator *embeddings.Generator
	Engine    *search.Engine
}

// SetupSearchEngine opens the transaction database and vector index under dataDir and
// wires them into a search engine. The embedding model is not loaded until the first
// query needs it.
func SetupSearchEngine(common CommonConfig, embedding EmbeddingConfig, logger *log.Logger) (*SearchStack, error) {
	database, err := db.New(common.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	vectors, err := SetupVectorStorage(common.DataDir, embedding.Dimension, logger)
	if err != nil {
		database.Close()
		return nil, err
	}

	generator, err := SetupGenerator(embedding, logger)
	if err != nil {
		vectors.Close()
		database.Close()
		return nil, err
	}

	return &SearchStack{
		DB:        database,
		Vectors:   vectors,
		Generator: generator,
		Engine:    search.NewEngine(generator, store.New(database, vectors, logger), logger),
	}, nil
}

// Close releases the database, the vector index and the embedding provider
func (s *SearchStack) Close() error {
	return errors.Join(s.Generator.Close(), s.Vectors.Close(), s.DB.Close())
}
