package main

import (
	"context"
	"log"

	"pdf-rag-service/internal/ai"
	"pdf-rag-service/internal/config"
	"pdf-rag-service/internal/logger"
	"pdf-rag-service/internal/queue"
	"pdf-rag-service/internal/telemetry"
	"pdf-rag-service/internal/vectorstore"
	"pdf-rag-service/services"

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
	if cfg.RedisURL == "" {
		log.Fatal("REDIS_URL is required for the worker")
	}

	logger.InitLogger(cfg)

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to init metrics:", err)
	}

	var mongoClient *mongo.Client
	if cfg.VectorStoreType == config.StoreMongoDB {
		mongoClient, err = config.ConnectMongoDB(cfg)
		if err != nil {
			log.Fatal("Failed to connect to MongoDB:", err)
		}
		defer mongoClient.Disconnect(context.Background())
	}

	var rdb *redis.Client
	rdb, err = config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}

	ctx := context.Background()
	geminiEmbedder, err := ai.NewGeminiEmbedder(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to initialize Gemini embedder:", err)
	}
	defer geminiEmbedder.Close()

	embedder := ai.NewCachedEmbedder(geminiEmbedder, rdb, cfg.EmbeddingModel, cfg.EmbedCacheTTL)

	store, err := vectorstore.New(cfg, mongoClient)
	if err != nil {
		log.Fatal("Failed to initialize vector store:", err)
	}

	engine, err := services.NewRetrievalEngine(cfg, embedder, store, metrics)
	if err != nil {
		log.Fatal("Failed to initialize retrieval engine:", err)
	}
	extractor := services.NewPDFExtractor()

	redisOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(engine, extractor)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskIngestDocument, processor.ProcessIngest)

	logger.Info("Starting ingestion worker",
		"concurrency", 10,
		"redis", redisOpt.Addr,
		"backend", engine.Backend(),
	)

	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
