package embedder

import (
	"context"
	"hash/fnv"
)

// Fake is a deterministic ports.Embedder for tests and local development.
// It derives a vector from a hash of the input text so the same text
// always embeds to the same vector without needing a real model.
type Fake struct {
	dimension  int
	model      string
	batchLimit int
}

// NewFake builds a Fake embedder producing vectors of the given dimension.
func NewFake(dimension int) *Fake {
	return &Fake{dimension: dimension, model: "fake-embedder", batchLimit: 32}
}

func (f *Fake) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	out := make([]float32, f.dimension)
	for i := range out {
		seed = seed*6364136223846793005 + 1442695040888963407
		out[i] = float32(seed%1000) / 1000.0
	}
	return out, nil
}

func (f *Fake) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *Fake) ModelName() string { return f.model }
func (f *Fake) Dimension() int    { return f.dimension }
func (f *Fake) BatchLimit() int   { return f.batchLimit }
