package ai

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"pdf-rag-service/internal/config"
	"pdf-rag-service/models"
)

// The Gemini batch embedding endpoint accepts at most 100 contents per call.
const geminiBatchLimit = 100

// GeminiEmbedder embeds text through Google Generative AI. The client is
// created once at startup and shared; a circuit breaker and rate limiter
// protect the upstream API from hammering during outages.
type GeminiEmbedder struct {
	client    *genai.Client
	model     string
	dimension int
	breaker   *gobreaker.CircuitBreaker
	limiter   *rate.Limiter
}

func NewGeminiEmbedder(ctx context.Context, cfg *config.Config) (*GeminiEmbedder, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, err
	}

	limits := getRateLimits(cfg.GeminiTier)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiEmbeddings",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	// RPM limit with some buffer
	limiter := rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), max(limits.RPM/10, 1))

	return &GeminiEmbedder{
		client:    client,
		model:     cfg.EmbeddingModel,
		dimension: cfg.EmbeddingDim,
		breaker:   breaker,
		limiter:   limiter,
	}, nil
}

// RateLimits for the Gemini embeddings API by billing tier.
type RateLimits struct {
	RPM int // Requests per minute
	RPD int // Requests per day
}

func getRateLimits(tier string) RateLimits {
	switch tier {
	case "free":
		return RateLimits{RPM: 10, RPD: 250}
	case "tier1":
		return RateLimits{RPM: 100, RPD: 10000}
	default:
		return RateLimits{RPM: 10, RPD: 250}
	}
}

func (g *GeminiEmbedder) Dimension() int {
	return g.dimension
}

// Embed embeds texts in order, batching to the API in sub-batches. Every
// returned vector is L2-normalized and dimension-checked.
func (g *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateTexts(texts); err != nil {
		return nil, err
	}

	em := g.client.EmbeddingModel(g.model)
	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += geminiBatchLimit {
		end := min(start+geminiBatchLimit, len(texts))

		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, err := g.breaker.Execute(func() (interface{}, error) {
			batch := em.NewBatch()
			for _, text := range texts[start:end] {
				batch = batch.AddContent(genai.Text(text))
			}
			return em.BatchEmbedContents(ctx, batch)
		})
		if err != nil {
			if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
				return nil, fmt.Errorf("%w: embeddings circuit breaker open", models.ErrBackendUnavailable)
			}
			return nil, fmt.Errorf("gemini embedding request failed: %w", err)
		}

		resp := result.(*genai.BatchEmbedContentsResponse)
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(resp.Embeddings), end-start)
		}

		for i, embedding := range resp.Embeddings {
			if embedding == nil || len(embedding.Values) == 0 {
				return nil, fmt.Errorf("no embedding returned for text %d", start+i)
			}
			if len(embedding.Values) != g.dimension {
				return nil, fmt.Errorf("embedding dimension mismatch: got %d, expected %d",
					len(embedding.Values), g.dimension)
			}
			normalized, err := Normalize(embedding.Values)
			if err != nil {
				return nil, err
			}
			vectors = append(vectors, normalized)
		}
	}

	return vectors, nil
}

func (g *GeminiEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (g *GeminiEmbedder) Close() error {
	return g.client.Close()
}
