package embeddings

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLlamaCppProvider(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embedding", r.URL.Path)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "cement", req["content"])

		// the first attempt fails so the retry has to resend the body
		if attempts.Add(1) == 1 {
			http.Error(w, "loading model", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"index":0,"embedding":[[0.25,0.5,0.75]]}]`)
	}))
	defer srv.Close()

	p, err := NewLlamaCppEmbeddingProvider(NewLlamaCppConfig().
		WithURL(srv.URL).
		WithModelName("nomic-embed-text").
		WithLogger(log.New(io.Discard)))
	require.NoError(t, err)

	vec, err := p.GenerateEmbedding(context.Background(), "cement")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, 0.5, 0.75}, vec)
	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, "nomic-embed-text", p.GetEmbeddingModelName())
}

func TestLlamaCppProviderGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	p, err := NewLlamaCppEmbeddingProvider(NewLlamaCppConfig().
		WithURL(srv.URL).
		WithModelName("m").
		WithRetryAttempts(2).
		WithLogger(log.New(io.Discard)))
	require.NoError(t, err)

	_, err = p.GenerateEmbedding(context.Background(), "cement")
	assert.ErrorContains(t, err, "no embeddings returned")
}

func TestLlamaCppProviderPoolsTokenRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"index":0,"embedding":[[1,0,2],[0,1,4]]}]`)
	}))
	defer srv.Close()

	p, err := NewLlamaCppEmbeddingProvider(NewLlamaCppConfig().
		WithURL(srv.URL).
		WithModelName("m").
		WithLogger(log.New(io.Discard)))
	require.NoError(t, err)

	vec, err := p.GenerateEmbedding(context.Background(), "cement")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5, 3}, vec)
}

func TestLlamaCppConfigValidate(t *testing.T) {
	logger := log.New(io.Discard)
	assert.Error(t, NewLlamaCppConfig().WithLogger(logger).Validate())
	assert.Error(t, NewLlamaCppConfig().WithModelName("m").Validate())
	assert.Error(t, NewLlamaCppConfig().WithModelName("m").WithLogger(logger).WithTimeout(0).Validate())
	assert.NoError(t, NewLlamaCppConfig().WithModelName("m").WithLogger(logger).Validate())
}

func TestOpenAIProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Model      string   `json:"model"`
			Input      []string `json:"input"`
			Dimensions int      `json:"dimensions"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		assert.Equal(t, []string{"concrete delivery"}, req.Input)
		assert.Equal(t, 3, req.Dimensions)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","model":"text-embedding-3-small",
			"data":[{"object":"embedding","index":0,"embedding":[0.1,0.2,0.3]}],
			"usage":{"prompt_tokens":2,"total_tokens":2}}`)
	}))
	defer srv.Close()

	p, err := NewOpenAIEmbeddingProvider(NewOpenAIConfig().
		WithAPIKey("test-key").
		WithEndpoint(srv.URL).
		WithModelName("text-embedding-3-small").
		WithDimensions(3).
		WithTimeout(time.Second).
		WithLogger(log.New(io.Discard)))
	require.NoError(t, err)

	vec, err := p.GenerateEmbedding(context.Background(), "concrete delivery")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestOpenAIProviderThroughGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"model not found","type":"invalid_request_error"}}`, http.StatusNotFound)
	}))
	defer srv.Close()

	p, err := NewOpenAIEmbeddingProvider(NewOpenAIConfig().
		WithAPIKey("dummy").
		WithEndpoint(srv.URL).
		WithModelName("missing").
		WithRetryAttempts(1).
		WithLogger(log.New(io.Discard)))
	require.NoError(t, err)

	g, err := NewGenerator(NewGeneratorConfig().WithProvider(p).WithLogger(log.New(io.Discard)))
	require.NoError(t, err)

	_, err = g.Embed(context.Background(), "cement")
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestCloseProvider(t *testing.T) {
	p, err := NewHashingEmbeddingProvider(8)
	require.NoError(t, err)
	assert.NoError(t, CloseProvider(p))
}

func TestOpenAIProviderBatchOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","model":"m","data":[
			{"object":"embedding","index":1,"embedding":[0,1]},
			{"object":"embedding","index":0,"embedding":[1,0]}]}`)
	}))
	defer srv.Close()

	p, err := NewOpenAIEmbeddingProvider(NewOpenAIConfig().
		WithAPIKey("k").
		WithEndpoint(srv.URL).
		WithModelName("m").
		WithLogger(log.New(io.Discard)))
	require.NoError(t, err)

	vectors, err := p.GenerateEmbeddings(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)

	_, err = p.GenerateEmbeddings(context.Background(), []string{"only one expected"})
	assert.ErrorContains(t, err, "expected 1 embeddings, got 2")
}
