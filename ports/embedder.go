package ports

import "context"

// Embedder produces fixed-dimension vectors for segment text (§4.6).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
	Dimension() int
	BatchLimit() int
}
