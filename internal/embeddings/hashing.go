package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const defaultHashingDimension = 256

// HashingEmbeddingProvider is a deterministic, offline embedding model. Words and their
// character trigrams are hashed into a fixed number of signed buckets and the result is
// L2-normalised, so texts sharing vocabulary (or word stems) have high cosine similarity.
type HashingEmbeddingProvider struct {
	dimension int
	modelName string
}

// NewHashingEmbeddingProvider creates a hashing model with the given output dimension
func NewHashingEmbeddingProvider(dimension int) (*HashingEmbeddingProvider, error) {
	if dimension == 0 {
		dimension = defaultHashingDimension
	}
	if dimension < 0 {
		return nil, fmt.Errorf("dimension must be greater than 0")
	}
	return &HashingEmbeddingProvider{
		dimension: dimension,
		modelName: fmt.Sprintf("hashing-%d", dimension),
	}, nil
}

func (p *HashingEmbeddingProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, p.dimension)
	for _, word := range hashingTokens(text) {
		p.add(vec, word, 1.0)
		padded := "^" + word + "$"
		runes := []rune(padded)
		for i := 0; i+3 <= len(runes); i++ {
			p.add(vec, string(runes[i:i+3]), 0.5)
		}
	}
	normalize(vec)
	return vec, nil
}

func (p *HashingEmbeddingProvider) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(p.dimension))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func (p *HashingEmbeddingProvider) GetEmbeddingModelName() string {
	return p.modelName
}

func hashingTokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
