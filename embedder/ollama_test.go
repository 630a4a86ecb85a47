package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssotoa70/mediasearch/pkg/resilience"
)

func newBreaker() *resilience.Breaker {
	return resilience.NewBreaker(resilience.BreakerOpts{FailThreshold: 3})
}

func TestOllamaEmbedSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		_ = json.NewEncoder(w).Encode(ollamaEmbedResp{Embedding: []float64{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	o := NewOllama(OllamaOpts{BaseURL: srv.URL, Model: "nomic-embed-text", Dimension: 3}, newBreaker())
	vec, err := o.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestOllamaEmbedDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaEmbedResp{Embedding: []float64{0.1, 0.2}})
	}))
	defer srv.Close()

	o := NewOllama(OllamaOpts{BaseURL: srv.URL, Model: "nomic-embed-text", Dimension: 3}, newBreaker())
	_, err := o.Embed(context.Background(), "hello")
	assert.Error(t, err)
}

func TestOllamaEmbedNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	o := NewOllama(OllamaOpts{BaseURL: srv.URL, Dimension: 3}, newBreaker())
	_, err := o.Embed(context.Background(), "hello")
	assert.Error(t, err)
}

func TestOllamaEmbedBatch(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(ollamaEmbedResp{Embedding: []float64{1, 2}})
	}))
	defer srv.Close()

	o := NewOllama(OllamaOpts{BaseURL: srv.URL, Dimension: 2}, newBreaker())
	out, err := o.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, out, 3)
	assert.Equal(t, 3, calls)
}

func TestOllamaAccessors(t *testing.T) {
	o := NewOllama(OllamaOpts{Model: "m", Dimension: 4, BatchLimit: 8}, newBreaker())
	assert.Equal(t, "m", o.ModelName())
	assert.Equal(t, 4, o.Dimension())
	assert.Equal(t, 8, o.BatchLimit())
}

func TestFakeEmbedderIsDeterministic(t *testing.T) {
	f := NewFake(16)
	v1, err := f.Embed(context.Background(), "same text")
	require.NoError(t, err)
	v2, err := f.Embed(context.Background(), "same text")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)

	v3, err := f.Embed(context.Background(), "different text")
	require.NoError(t, err)
	assert.NotEqual(t, v1, v3)
	assert.Len(t, v1, 16)
}

func TestFakeEmbedderBatch(t *testing.T) {
	f := NewFake(8)
	out, err := f.EmbedBatch(context.Background(), []string{"x", "y"})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}
