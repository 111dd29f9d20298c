package ai

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"pdf-rag-service/models"
)

// seqEmbedder is a deterministic fake: each text hashes to a fixed unit
// vector. It also counts calls so tests can assert what hit the cache.
type seqEmbedder struct {
	dim   int
	calls int
	seen  []string
}

func (e *seqEmbedder) Dimension() int { return e.dim }

func (e *seqEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%w: text %d is empty", models.ErrInvalidInput, i)
		}
		e.seen = append(e.seen, text)
		sum := sha256.Sum256([]byte(text))
		vec := make([]float32, e.dim)
		var norm float64
		for j := range vec {
			vec[j] = float32(sum[j]) + 1
			norm += float64(vec[j]) * float64(vec[j])
		}
		norm = math.Sqrt(norm)
		for j := range vec {
			vec[j] = float32(float64(vec[j]) / norm)
		}
		out[i] = vec
	}
	return out, nil
}

func (e *seqEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// mapCache is an in-memory embeddingCache for tests.
type mapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string][]byte)}
}

func (m *mapCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.entries[key]
	if !ok {
		return nil, fmt.Errorf("cache miss")
	}
	return raw, nil
}

func (m *mapCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

func newTestCachedEmbedder(inner Embedder) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: newMapCache(), model: "test-model", ttl: time.Hour}
}

// Embedding a batch must be observably equivalent to embedding each text
// individually, including when some texts resolve from the cache and only
// the misses reach the inner embedder.
func TestCachedEmbedderBatchMatchesSingles(t *testing.T) {
	ctx := context.Background()
	texts := []string{"first chunk", "second chunk", "third chunk", "fourth chunk"}

	// Reference vectors from an uncached embedder, one call per text.
	reference := &seqEmbedder{dim: 8}
	want := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := reference.EmbedOne(ctx, text)
		if err != nil {
			t.Fatal(err)
		}
		want[i] = vec
	}

	inner := &seqEmbedder{dim: 8}
	cached := newTestCachedEmbedder(inner)

	// Pre-warm a subset so the batch mixes hits and misses.
	for _, text := range []string{texts[1], texts[3]} {
		if _, err := cached.EmbedOne(ctx, text); err != nil {
			t.Fatal(err)
		}
	}

	got, err := cached.Embed(ctx, texts)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(texts) {
		t.Fatalf("vector count: got %d, want %d", len(got), len(texts))
	}
	for i := range got {
		if len(got[i]) != len(want[i]) {
			t.Fatalf("vector %d dimension: got %d, want %d", i, len(got[i]), len(want[i]))
		}
		for j := range got[i] {
			if math.Abs(float64(got[i][j]-want[i][j])) > 1e-6 {
				t.Fatalf("vector %d component %d: got %v, want %v (batch must equal singles)",
					i, j, got[i][j], want[i][j])
			}
		}
	}

	// Only the cold texts may have reached the inner embedder on the batch
	// call, in their original relative order.
	if len(inner.seen) != 4 {
		t.Fatalf("inner embedder saw %d texts, want 4 (2 warmups + 2 misses)", len(inner.seen))
	}
	if inner.seen[2] != texts[0] || inner.seen[3] != texts[2] {
		t.Fatalf("batch misses out of order: %v", inner.seen[2:])
	}
}

func TestCachedEmbedderFullHitSkipsInner(t *testing.T) {
	ctx := context.Background()
	inner := &seqEmbedder{dim: 8}
	cached := newTestCachedEmbedder(inner)

	texts := []string{"alpha", "beta"}
	first, err := cached.Embed(ctx, texts)
	if err != nil {
		t.Fatal(err)
	}
	callsAfterWarm := inner.calls

	second, err := cached.Embed(ctx, texts)
	if err != nil {
		t.Fatal(err)
	}
	if inner.calls != callsAfterWarm {
		t.Fatalf("fully cached batch still called the inner embedder")
	}
	for i := range first {
		for j := range first[i] {
			if first[i][j] != second[i][j] {
				t.Fatalf("cache round trip changed vector %d component %d", i, j)
			}
		}
	}
}

func TestCachedEmbedderRejectsEmptyText(t *testing.T) {
	cached := newTestCachedEmbedder(&seqEmbedder{dim: 8})
	if _, err := cached.Embed(context.Background(), []string{"ok", " "}); err == nil {
		t.Fatal("expected error for whitespace-only text")
	}
}
