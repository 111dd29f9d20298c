package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pdf-rag-service/internal/ai"
	"pdf-rag-service/internal/config"
	"pdf-rag-service/internal/logger"
	"pdf-rag-service/internal/telemetry"
	"pdf-rag-service/internal/vectorstore"
	"pdf-rag-service/middleware"
	"pdf-rag-service/routes"
	"pdf-rag-service/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	// Distributed tracing and metrics
	shutdownTracer, err := telemetry.InitTracer("pdf-rag-service")
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
	} else {
		defer shutdownTracer()
	}
	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to init metrics:", err)
	}

	// MongoDB, only for the mongodb vector backend
	var mongoClient *mongo.Client
	if cfg.VectorStoreType == config.StoreMongoDB {
		mongoClient, err = config.ConnectMongoDB(cfg)
		if err != nil {
			log.Fatal("Failed to connect to MongoDB:", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			mongoClient.Disconnect(ctx)
		}()
	}

	// Redis is optional; without it the service loses the embedding cache,
	// the rate limiter and the async upload path, but still serves requests.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = config.NewRedisClient(cfg)
		if err != nil {
			logger.Warn("Redis unavailable, running without cache, rate limiting and async uploads", "error", err)
			rdb = nil
		}
	}

	// Embedding client
	ctx := context.Background()
	geminiEmbedder, err := ai.NewGeminiEmbedder(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to initialize Gemini embedder:", err)
	}
	defer geminiEmbedder.Close()

	var embedder ai.Embedder = geminiEmbedder
	if rdb != nil {
		embedder = ai.NewCachedEmbedder(geminiEmbedder, rdb, cfg.EmbeddingModel, cfg.EmbedCacheTTL)
	}

	// Vector store backend
	store, err := vectorstore.New(cfg, mongoClient)
	if err != nil {
		log.Fatal("Failed to initialize vector store:", err)
	}

	engine, err := services.NewRetrievalEngine(cfg, embedder, store, metrics)
	if err != nil {
		log.Fatal("Failed to initialize retrieval engine:", err)
	}
	extractor := services.NewPDFExtractor()

	// Periodic backend health probe
	monitor := services.NewHealthMonitor(engine, metrics)
	if err := monitor.Start(cfg.HealthProbeInterval); err != nil {
		logger.Warn("Health monitor failed to start", "error", err)
	}
	defer monitor.Stop()

	// Asynq client for background ingestion
	var queueClient *asynq.Client
	if rdb != nil {
		queueClient = asynq.NewClient(asynq.RedisClientOpt{
			Addr:     rdb.Options().Addr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer queueClient.Close()
	}

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))
	if rdb != nil {
		router.Use(middleware.RateLimitMiddleware(rdb, cfg))
	}

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Requested-With"}
	router.Use(cors.New(corsConfig))

	// Setup routes
	routes.SetupRAGRoutes(router, cfg, engine, extractor, queueClient)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port, "backend", engine.Backend())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
