// Package embedding turns event text into fixed-dimension float vectors
// for the vector store. Providers must be deterministic for a given
// model configuration.
package embedding

import (
	"context"
	"errors"
)

// ErrEmbedderUnavailable wraps transport and provider errors. The
// orchestrator treats it as recoverable per event: the LLM path is
// skipped while deterministic and correlation paths continue.
var ErrEmbedderUnavailable = errors.New("embedder unavailable")

// Embedder produces a fixed-dimension vector for a text.
type Embedder interface {
	// Embed returns the vector for the text. Errors wrap
	// ErrEmbedderUnavailable on transport failure.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension is the fixed output dimension.
	Dimension() int
}
