package adapter

import "context"

// Embedder converts text into a vector. Implementations must return vectors of
// the same dimensionality for every input.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
