// Package vectorstore defines the storage contract for embedded chunks and
// its interchangeable backends. A backend owns durable storage of
// {id, vector, text, metadata} items grouped into named collections; callers
// never depend on a concrete backend type.
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"pdf-rag-service/models"
)

// Item is one stored chunk. Vectors are L2-normalized before they reach a
// backend, so cosine similarity reduces to a dot product everywhere.
type Item struct {
	ID       string         `json:"id"`
	Vector   []float32      `json:"vector"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SearchResult is one ranked match. ID is carried for deterministic
// tie-breaking and re-ingestion; the public API exposes content, score and
// metadata only.
type SearchResult struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]any
}

// Health is the result of a connectivity probe. Never mutates state.
type Health struct {
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail"`
}

// Store is the capability set every vector index backend must satisfy.
//
// Upsert inserts new ids and overwrites existing ones within a collection;
// the first upsert implicitly creates the collection. A backend that can
// report mixed batch outcomes returns *models.PartialUpsertError; one that
// cannot must fail the batch as a unit.
//
// Search returns at most topK results sorted by descending cosine
// similarity, ties broken by ascending id. Searching a collection that does
// not exist returns an empty slice, not an error. filter restricts results
// to items whose metadata matches every given key exactly.
//
// DeleteCollection removes the collection and everything in it, reporting
// whether it existed. Deleting an absent collection is not an error.
type Store interface {
	Upsert(ctx context.Context, collection string, items []Item) error
	Search(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]SearchResult, error)
	DeleteCollection(ctx context.Context, collection string) (bool, error)
	Health(ctx context.Context) Health
	Name() string
}

// dot computes the inner product of two same-length vectors in float64 to
// keep ranking stable across platforms.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// matchesFilter reports whether item metadata satisfies every filter entry.
// Numeric filter values compare as float64 to mirror metadata normalization.
func matchesFilter(metadata map[string]any, filter map[string]any) bool {
	for key, want := range filter {
		got, ok := metadata[key]
		if !ok {
			return false
		}
		if normalizeScalar(got) != normalizeScalar(want) {
			return false
		}
	}
	return true
}

func normalizeScalar(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}

// translateCtxErr converts context expiry on a backend call into the
// retryable timeout error the engine reports to callers.
func translateCtxErr(err error, backend string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s call exceeded deadline", models.ErrBackendTimeout, backend)
	}
	return err
}
