// Package embedding maps normalized log text to fixed-dimension vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// ErrModelUnavailable is returned when the backing model cannot be loaded or
// reached. Callers treat it as non-retryable for the current request.
var ErrModelUnavailable = errors.New("embedding model unavailable")

// Embedder produces vector embeddings from text.
// The same text and model must always yield the same vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Model() string
}

// checkDimension guards against a backend returning vectors of the wrong size.
func checkDimension(vec []float32, want int) error {
	if len(vec) != want {
		return fmt.Errorf("%w: model returned %d dimensions, configured %d", ErrModelUnavailable, len(vec), want)
	}
	return nil
}
