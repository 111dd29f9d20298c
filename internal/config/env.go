package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"pdf-rag-service/models"

	"github.com/joho/godotenv"
)

// Supported vector store backends.
const (
	StoreLocal    = "local"
	StoreMongoDB  = "mongodb"
	StorePinecone = "pinecone"
)

type Config struct {
	Port        string
	GinMode     string
	CORSOrigins []string

	// Vector store selection and backend connection parameters
	VectorStoreType string
	MongoURI        string
	DBName          string
	PineconeAPIKey  string
	PineconeCloud   string
	PineconeRegion  string
	LocalPersistDir string
	BackendTimeout  time.Duration

	// Embeddings
	GeminiAPIKey   string
	EmbeddingModel string
	EmbeddingDim   int
	GeminiTier     string

	// Chunking and ingestion limits
	ChunkSize        int
	ChunkOverlap     int
	MaxDocumentBytes int64
	MaxFileSize      int64
	FileStorageDir   string

	// Redis (rate limiting, embedding cache, task queue)
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	EmbedCacheTTL   time.Duration
	RateLimitReqs   int
	RateLimitWindow int

	// Background health probe interval in seconds (0 disables)
	HealthProbeInterval int
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),

		VectorStoreType: strings.ToLower(getEnv("VECTOR_STORE_TYPE", StoreLocal)),
		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:          getEnv("DB_NAME", "rag_system"),
		PineconeAPIKey:  getEnv("PINECONE_API_KEY", ""),
		PineconeCloud:   getEnv("PINECONE_CLOUD", "aws"),
		PineconeRegion:  getEnv("PINECONE_REGION", "us-east-1"),
		LocalPersistDir: getEnv("LOCAL_PERSIST_DIR", ""),
		BackendTimeout:  time.Duration(getEnvInt("BACKEND_TIMEOUT_SECONDS", 30)) * time.Second,

		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-004"),
		EmbeddingDim:   getEnvInt("EMBEDDING_DIM", 768),
		GeminiTier:     getEnv("GEMINI_TIER", "free"),

		ChunkSize:        getEnvInt("CHUNK_SIZE", 500),
		ChunkOverlap:     getEnvInt("CHUNK_OVERLAP", 50),
		MaxDocumentBytes: getEnvInt64("MAX_DOCUMENT_BYTES", 10485760), // 10MB of extracted text
		MaxFileSize:      getEnvInt64("MAX_FILE_SIZE", 52428800),      // 50MB upload
		FileStorageDir:   getEnv("FILE_STORAGE_DIR", "./uploads"),

		RedisURL:            getEnv("REDIS_URL", ""),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		EmbedCacheTTL:       time.Duration(getEnvInt("EMBED_CACHE_TTL_SECONDS", 86400)) * time.Second,
		RateLimitReqs:       getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:     getEnvInt("RATE_LIMIT_WINDOW", 60),
		HealthProbeInterval: getEnvInt("HEALTH_PROBE_INTERVAL_SECONDS", 60),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the retrieval core cannot run with.
// Chunk parameter violations are fatal here, never per-request.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return &models.ConfigError{Field: "CHUNK_SIZE", Reason: "must be greater than zero"}
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return &models.ConfigError{Field: "CHUNK_OVERLAP", Reason: "must satisfy 0 <= overlap < chunk size"}
	}
	if c.MaxDocumentBytes <= 0 {
		return &models.ConfigError{Field: "MAX_DOCUMENT_BYTES", Reason: "must be greater than zero"}
	}
	if c.EmbeddingDim <= 0 {
		return &models.ConfigError{Field: "EMBEDDING_DIM", Reason: "must be greater than zero"}
	}
	if c.GeminiAPIKey == "" {
		return &models.ConfigError{Field: "GEMINI_API_KEY", Reason: "is required"}
	}

	switch c.VectorStoreType {
	case StoreLocal:
	case StoreMongoDB:
		if c.MongoURI == "" {
			return &models.ConfigError{Field: "MONGO_URI", Reason: "is required for the mongodb backend"}
		}
	case StorePinecone:
		if c.PineconeAPIKey == "" {
			return &models.ConfigError{Field: "PINECONE_API_KEY", Reason: "is required for the pinecone backend"}
		}
	default:
		return &models.ConfigError{
			Field:  "VECTOR_STORE_TYPE",
			Reason: fmt.Sprintf("unsupported backend %q, use local, mongodb or pinecone", c.VectorStoreType),
		}
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
