package ai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"

	"pdf-rag-service/internal/logger"
)

// embeddingCache is the storage seam behind CachedEmbedder. Redis in
// production; tests substitute an in-memory map.
type embeddingCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type redisCache struct {
	rdb *redis.Client
}

func (r redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	return r.rdb.Get(ctx, key).Bytes()
}

func (r redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

// CachedEmbedder decorates an Embedder with a cache keyed on the model and
// text content. Identical chunks across re-ingested documents hit the cache
// instead of the API. Cache failures are non-fatal: a miss is computed, a
// failed write is logged and dropped.
type CachedEmbedder struct {
	inner Embedder
	cache embeddingCache
	model string
	ttl   time.Duration
}

func NewCachedEmbedder(inner Embedder, rdb *redis.Client, model string, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: redisCache{rdb: rdb}, model: model, ttl: ttl}
}

func (c *CachedEmbedder) Dimension() int {
	return c.inner.Dimension()
}

// Embed resolves each text from the cache where possible and forwards only
// the misses to the inner embedder, reassembling vectors at their original
// positions. Mixing hits and misses must be indistinguishable from embedding
// every text individually.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateTexts(texts); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	var missTexts []string
	var missIndexes []int

	for i, text := range texts {
		if vec, ok := c.get(ctx, text); ok {
			vectors[i] = vec
		} else {
			missTexts = append(missTexts, text)
			missIndexes = append(missIndexes, i)
		}
	}

	if len(missTexts) > 0 {
		computed, err := c.inner.Embed(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, vec := range computed {
			vectors[missIndexes[j]] = vec
			c.set(ctx, missTexts[j], vec)
		}
	}

	return vectors, nil
}

func (c *CachedEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(c.model + "|" + text))
	return "emb:" + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) get(ctx context.Context, text string) ([]float32, bool) {
	raw, err := c.cache.Get(ctx, c.key(text))
	if err != nil {
		return nil, false
	}
	vec, err := decodeVector(raw)
	if err != nil {
		return nil, false
	}
	return vec, true
}

func (c *CachedEmbedder) set(ctx context.Context, text string, vec []float32) {
	if err := c.cache.Set(ctx, c.key(text), encodeVector(vec), c.ttl); err != nil {
		logger.Warn("embedding cache write failed", "error", err)
	}
}

func encodeVector(vec []float32) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, vec)
	return buf.Bytes()
}

func decodeVector(raw []byte) ([]float32, error) {
	vec := make([]float32, len(raw)/4)
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &vec); err != nil {
		return nil, err
	}
	return vec, nil
}
