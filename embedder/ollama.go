// Package embedder provides implementations of ports.Embedder (§4.6).
// Ollama talks to an Ollama-compatible embedding endpoint over plain HTTP
// rather than a gRPC embedding service, since no ml proto package was
// retrieved for this module (see DESIGN.md's dropped-dependency note).
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ssotoa70/mediasearch/engine/domain"
	"github.com/ssotoa70/mediasearch/pkg/resilience"
	"github.com/ssotoa70/mediasearch/ports"
)

// Ollama calls Ollama's /api/embeddings endpoint directly: a small JSON
// request/response pair and a plain *http.Client.
type Ollama struct {
	baseURL    string
	model      string
	dimension  int
	batchLimit int
	client     *http.Client
	breaker    *resilience.Breaker
}

// OllamaOpts configures an Ollama embedder.
type OllamaOpts struct {
	BaseURL    string
	Model      string
	Dimension  int
	BatchLimit int
}

// NewOllama builds an Ollama-backed embedder guarded by breaker.
func NewOllama(opts OllamaOpts, breaker *resilience.Breaker) *Ollama {
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = 32
	}
	return &Ollama{
		baseURL:    opts.BaseURL,
		model:      opts.Model,
		dimension:  opts.Dimension,
		batchLimit: opts.BatchLimit,
		client:     &http.Client{},
		breaker:    breaker,
	}
}

type ollamaEmbedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResp struct {
	Embedding []float64 `json:"embedding"`
}

func (o *Ollama) embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedReq{Model: o.model, Prompt: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embed: status %d", resp.StatusCode)
	}

	var result ollamaEmbedResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama embed decode: %w", err)
	}

	out := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

// Embed implements ports.Embedder.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := o.breaker.Call(ctx, func(ctx context.Context) error {
		v, err := o.embed(ctx, text)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, domain.NewError("embedder.Embed", domain.KindTransientNetwork, err)
	}
	if len(out) != o.dimension {
		return nil, domain.NewError("embedder.Embed", domain.KindEngineConfig, domain.ErrVectorDimension)
	}
	return out, nil
}

// EmbedBatch implements ports.Embedder, calling Embed once per text since
// Ollama's HTTP API has no native batch endpoint.
func (o *Ollama) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := o.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d]: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// ModelName implements ports.Embedder.
func (o *Ollama) ModelName() string { return o.model }

// Dimension implements ports.Embedder.
func (o *Ollama) Dimension() int { return o.dimension }

// BatchLimit implements ports.Embedder.
func (o *Ollama) BatchLimit() int { return o.batchLimit }
