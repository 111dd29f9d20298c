package ai

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"

	"pdf-rag-service/internal/config"
	"pdf-rag-service/models"
)

func TestValidateTexts(t *testing.T) {
	if err := ValidateTexts(nil); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("nil slice: expected ErrInvalidInput, got %v", err)
	}
	if err := ValidateTexts([]string{"ok", "   "}); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("whitespace text: expected ErrInvalidInput, got %v", err)
	}
	if err := ValidateTexts([]string{"ok", "also ok"}); err != nil {
		t.Errorf("valid texts: unexpected error %v", err)
	}
}

func TestNormalize(t *testing.T) {
	v, err := Normalize([]float32{3, 4})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Fatalf("got %v, want [0.6 0.8]", v)
	}

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if math.Abs(sum-1) > 1e-6 {
		t.Fatalf("normalized magnitude: got %v, want 1", math.Sqrt(sum))
	}
}

func TestNormalizeZeroVector(t *testing.T) {
	if _, err := Normalize([]float32{0, 0, 0}); err == nil {
		t.Fatal("expected error for zero-magnitude vector")
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	once, err := Normalize([]float32{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	twice, err := Normalize(once)
	if err != nil {
		t.Fatal(err)
	}
	for i := range once {
		if math.Abs(float64(once[i]-twice[i])) > 1e-6 {
			t.Fatalf("renormalizing changed component %d: %v vs %v", i, once[i], twice[i])
		}
	}
}

func TestGeminiEmbedLive(t *testing.T) {
	if os.Getenv("GEMINI_API_KEY") == "" {
		t.Skip("GEMINI_API_KEY not set")
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		t.Skipf("config load failed: %v", err)
	}

	ctx := context.Background()
	embedder, err := NewGeminiEmbedder(ctx, cfg)
	if err != nil {
		t.Fatalf("embedder init: %v", err)
	}
	defer embedder.Close()

	vec, err := embedder.EmbedOne(ctx, "hello world")
	if err != nil {
		t.Fatalf("embedding error: %v", err)
	}
	if len(vec) != cfg.EmbeddingDim {
		t.Fatalf("dimension: got %d, want %d", len(vec), cfg.EmbeddingDim)
	}

	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	if math.Abs(sum-1) > 1e-4 {
		t.Fatalf("vector not normalized: magnitude %v", math.Sqrt(sum))
	}
}
