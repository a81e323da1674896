package embeddings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{0.6, 0.8}, b: []float32{0.6, 0.8}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "unnormalized", a: []float32{2, 0}, b: []float32{3, 3}, want: 0.7071067811865475},
		{name: "zero_vector", a: []float32{0, 0}, b: []float32{1, 1}, want: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CosineSimilarity(tc.a, tc.b)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-6)
		})
	}
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2})
	require.Error(t, err)

	var dimErr *DimensionMismatchError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 3, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Actual)
}

func TestCosineSimilaritySelfOnEmbedding(t *testing.T) {
	p, err := NewHashingEmbeddingProvider(128)
	require.NoError(t, err)

	v, err := p.GenerateEmbedding(context.Background(), "concrete delivery for the north site")
	require.NoError(t, err)
	got, err := CosineSimilarity(v, v)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got, 1e-5)
}

func TestHashingProviderRelatedTextsAreCloser(t *testing.T) {
	p, err := NewHashingEmbeddingProvider(256)
	require.NoError(t, err)
	ctx := context.Background()

	query, _ := p.GenerateEmbedding(ctx, "cement purchases")
	related, _ := p.GenerateEmbedding(ctx, "Cement purchase 40 bags")
	unrelated, _ := p.GenerateEmbedding(ctx, "salary payment october")

	simRelated, err := CosineSimilarity(query, related)
	require.NoError(t, err)
	simUnrelated, err := CosineSimilarity(query, unrelated)
	require.NoError(t, err)
	assert.Greater(t, simRelated, simUnrelated)
	assert.Equal(t, "hashing-256", p.GetEmbeddingModelName())
}

func TestHashingProviderRejectsNegativeDimension(t *testing.T) {
	_, err := NewHashingEmbeddingProvider(-1)
	assert.Error(t, err)

	p, err := NewHashingEmbeddingProvider(0)
	require.NoError(t, err)
	v, err := p.GenerateEmbedding(context.Background(), "default size")
	require.NoError(t, err)
	assert.Len(t, v, defaultHashingDimension)
}
