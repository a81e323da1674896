package embeddings

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingMetadataToMapAndFromMap(t *testing.T) {
	meta := EmbeddingMetadata{
		ContentHash: "abc123",
		ModelName:   "test-model",
		Length:      42,
		LastUpdated: time.Now().UTC().Truncate(time.Second),
		Type:        "expense",
		ProjectID:   "p-1",
		CategoryID:  "c-9",
	}
	parsed, err := EmbeddingFromMap(meta.ToMap())
	require.NoError(t, err)
	assert.Equal(t, meta.ContentHash, parsed.ContentHash)
	assert.Equal(t, meta.ModelName, parsed.ModelName)
	assert.Equal(t, meta.Length, parsed.Length)
	assert.Equal(t, meta.ProjectID, parsed.ProjectID)
	assert.Equal(t, meta.CategoryID, parsed.CategoryID)
	assert.WithinDuration(t, meta.LastUpdated, parsed.LastUpdated, time.Second)
}

func TestEmbeddingMetadataMatchContent(t *testing.T) {
	content := "hello world"
	meta := EmbeddingMetadata{ContentHash: Hash(content)}
	assert.True(t, meta.MatchContent(content))
	assert.False(t, meta.MatchContent("other content"))
}

func TestChromemStorageImplementsInterface(t *testing.T) {
	var _ VectorStorage = &ChromemStorage{}
}

func newTestStorage(t *testing.T, dimension int) *ChromemStorage {
	t.Helper()
	store, err := NewMemoryChromemStorage(dimension, log.New(io.Discard))
	require.NoError(t, err)
	return store
}

func storeVector(t *testing.T, store *ChromemStorage, id string, vec []float32, meta EmbeddingMetadata) {
	t.Helper()
	meta.ContentHash = Hash(id)
	meta.ModelName = "test-model"
	meta.LastUpdated = time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.StoreEmbedding(context.Background(), id, id, vec, meta))
}

func TestChromemStorageQueryOrdersBySimilarity(t *testing.T) {
	store := newTestStorage(t, 3)
	ctx := context.Background()

	storeVector(t, store, "near", []float32{1, 0, 0}, EmbeddingMetadata{Type: "expense"})
	storeVector(t, store, "mid", []float32{1, 1, 0}, EmbeddingMetadata{Type: "expense"})
	storeVector(t, store, "far", []float32{0, 0, 1}, EmbeddingMetadata{Type: "income"})

	results, err := store.Query(ctx, []float32{1, 0, 0}, nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "near", results[0].ID)
	assert.Equal(t, "mid", results[1].ID)
	assert.Equal(t, "far", results[2].ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-5)
}

func TestChromemStorageQueryAppliesWhere(t *testing.T) {
	store := newTestStorage(t, 3)
	ctx := context.Background()

	storeVector(t, store, "a", []float32{1, 0, 0}, EmbeddingMetadata{Type: "expense", ProjectID: "p1"})
	storeVector(t, store, "b", []float32{1, 0.1, 0}, EmbeddingMetadata{Type: "income", ProjectID: "p1"})
	storeVector(t, store, "c", []float32{0.9, 0, 0.1}, EmbeddingMetadata{Type: "expense", ProjectID: "p2"})

	results, err := store.Query(ctx, []float32{1, 0, 0}, map[string]string{MetadataType: "expense", MetadataProjectID: ""}, 10)
	require.NoError(t, err)
	ids := []string{}
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{"a", "c"}, ids)

	results, err = store.Query(ctx, []float32{1, 0, 0}, map[string]string{MetadataProjectID: "p1"}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestChromemStorageQueryEmptyAndZero(t *testing.T) {
	store := newTestStorage(t, 3)
	ctx := context.Background()

	results, err := store.Query(ctx, []float32{1, 0, 0}, nil, 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	storeVector(t, store, "a", []float32{1, 0, 0}, EmbeddingMetadata{})
	results, err = store.Query(ctx, []float32{0, 0, 0}, nil, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemStorageDimensionMismatch(t *testing.T) {
	store := newTestStorage(t, 3)
	ctx := context.Background()

	_, err := store.Query(ctx, []float32{1, 0}, nil, 5)
	require.Error(t, err)
	assert.True(t, IsDimensionMismatch(err))

	err = store.StoreEmbedding(ctx, "x", "x", []float32{1, 2, 3, 4}, EmbeddingMetadata{})
	assert.True(t, IsDimensionMismatch(err))
}

func TestChromemStorageHasEmbedding(t *testing.T) {
	store := newTestStorage(t, 3)
	ctx := context.Background()

	exists, _, err := store.HasEmbedding(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, exists)

	storeVector(t, store, "tx-1", []float32{0, 1, 0}, EmbeddingMetadata{CategoryID: "c1"})
	exists, meta, err := store.HasEmbedding(ctx, "tx-1")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 3, meta.Length)
	assert.Equal(t, "c1", meta.CategoryID)
	assert.Equal(t, 1, store.Count())
}

func TestChromemStoragePersistent(t *testing.T) {
	dir := t.TempDir()
	logger := log.New(io.Discard)

	store, err := NewChromemStorage(dir, 3, logger)
	require.NoError(t, err)
	storeVector(t, store, "kept", []float32{0, 0, 1}, EmbeddingMetadata{})
	require.NoError(t, store.Close())

	reopened, err := NewChromemStorage(dir, 3, logger)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Count())
}
