package embedding

import (
	"context"
	"fmt"
)

// Embedder maps text to fixed-dimension dense vectors via an external model.
// EmbedBatch is one-to-one and order-preserving with its input.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// ProviderError wraps a failed or malformed external embedding call. The
// embedder never papers over one with zero vectors.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
