package main

import (
	"context"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"document-rag-platform/internal/ai"
	"document-rag-platform/internal/config"
	"document-rag-platform/internal/logger"
	"document-rag-platform/internal/queue"
	"document-rag-platform/internal/telemetry"
	"document-rag-platform/internal/vectorindex"
	"document-rag-platform/internal/vectorindex/memory"
	"document-rag-platform/internal/vectorindex/qdrant"
	"document-rag-platform/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	// Vector index
	index := newVectorIndex(cfg)
	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := index.Init(initCtx); err != nil {
		cancel()
		log.Fatal("Failed to initialize vector index:", err)
	}
	cancel()
	defer index.Close(context.Background())

	// Embedding provider
	providers, err := ai.NewProviders(cfg)
	if err != nil {
		log.Fatal("Failed to initialize providers:", err)
	}
	defer providers.Close()

	// Ingestion pipeline
	metadata := services.NewMetadataService(cfg, mongoClient.Database(cfg.DBName).Collection("documents"))
	chunker, err := services.NewChunker(cfg.MaxChunkSize, cfg.ChunkOverlap, cfg.ChunkLookback)
	if err != nil {
		log.Fatal("Invalid chunking configuration:", err)
	}
	extractor := services.NewTextExtractor(cfg)
	retry := ai.DefaultRetryPolicy(cfg)
	ingestion := services.NewIngestionService(cfg, chunker, extractor, providers.Embedder, index, metadata, retry, metrics)

	// Redis options for Asynq
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	// Create Asynq server
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 20, // Process 20 tasks concurrently
			Queues: map[string]int{
				"critical": 6, // 60% of workers
				"default":  3, // 30% of workers
				"low":      1, // 10% of workers
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err.Error())
			}),
		},
	)

	// Create task processor
	processor := queue.NewTaskProcessor(ingestion, metadata)

	// Create mux and register handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeDocumentIngest, processor.HandleDocumentIngest)

	logger.Info("🚀 Starting ingest worker",
		"concurrency", 20,
		"queues", "critical(6), default(3), low(1)",
		"redis", cfg.RedisURL)

	// Start the server
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}

// newVectorIndex mirrors the API server's driver selection so both
// processes write to the same collection.
func newVectorIndex(cfg *config.Config) vectorindex.Index {
	if cfg.VectorIndexDriver == "memory" {
		return memory.New(cfg.VectorDimensions, cfg.MaxChunkTextLen)
	}
	return qdrant.New(qdrant.Config{
		URL:             cfg.QdrantURL,
		APIKey:          cfg.QdrantAPIKey,
		Collection:      cfg.VectorCollection,
		Dimensions:      cfg.VectorDimensions,
		MaxTextLen:      cfg.MaxChunkTextLen,
		HNSWM:           cfg.HNSWM,
		HNSWEfConstruct: cfg.HNSWEfConstruct,
		HNSWEfSearch:    cfg.HNSWEfSearch,
	})
}
