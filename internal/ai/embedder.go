package ai

import (
	"context"
	"fmt"
	"math"
	"strings"

	"pdf-rag-service/models"
)

// Embedder maps text to fixed-dimension vectors suitable for cosine
// comparison. Implementations must preserve input order 1:1 and return
// L2-normalized vectors; batching is a performance optimization and must be
// observably equivalent to embedding each text individually.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// ValidateTexts rejects empty input before it reaches the embedding model.
// Empty chunks are filtered upstream; anything that still arrives here
// whitespace-only is a caller error, not something to silently embed.
func ValidateTexts(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts to embed", models.ErrInvalidInput)
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("%w: text %d is empty", models.ErrInvalidInput, i)
		}
	}
	return nil
}

// Normalize scales v to unit L2 length so dot products equal cosine
// similarity. A zero-magnitude vector has no direction and is an error.
func Normalize(v []float32) ([]float32, error) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return nil, fmt.Errorf("embedding model returned a zero-magnitude vector")
	}

	normalized := make([]float32, len(v))
	for i, x := range v {
		normalized[i] = float32(float64(x) / norm)
	}
	return normalized, nil
}
