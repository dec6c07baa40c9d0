package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"document-rag-platform/internal/ai"
	"document-rag-platform/internal/config"
	"document-rag-platform/internal/logger"
	"document-rag-platform/internal/queue"
	"document-rag-platform/internal/telemetry"
	"document-rag-platform/internal/vectorindex"
	"document-rag-platform/internal/vectorindex/memory"
	"document-rag-platform/internal/vectorindex/qdrant"
	"document-rag-platform/internal/webfetch"
	"document-rag-platform/middleware"
	"document-rag-platform/routes"
	"document-rag-platform/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer("document-rag-platform", cfg.OTLPEndpoint, cfg.TraceSampleRatio)
	if err != nil {
		logger.Warn("Tracing disabled", "error", err.Error())
	} else {
		defer shutdownTracer()
	}

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

	// Connect to Redis
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	// Vector index
	index := newVectorIndex(cfg)
	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := index.Init(initCtx); err != nil {
		cancel()
		log.Fatal("Failed to initialize vector index:", err)
	}
	defer index.Close(context.Background())

	// Embedding and generation providers
	providers, err := ai.NewProviders(cfg)
	if err != nil {
		cancel()
		log.Fatal("Failed to initialize providers:", err)
	}
	defer providers.Close()

	// Services
	db := mongoClient.Database(cfg.DBName)
	metadata := services.NewMetadataService(cfg, db.Collection("documents"))
	if err := metadata.EnsureIndexes(initCtx); err != nil {
		cancel()
		log.Fatal("Failed to create document indexes:", err)
	}
	cancel()

	chunker, err := services.NewChunker(cfg.MaxChunkSize, cfg.ChunkOverlap, cfg.ChunkLookback)
	if err != nil {
		log.Fatal("Invalid chunking configuration:", err)
	}
	assembler, err := services.NewContextAssembler(cfg.MaxContextChars, cfg.MinContextFragment)
	if err != nil {
		log.Fatal("Invalid context configuration:", err)
	}

	extractor := services.NewTextExtractor(cfg)
	storage := services.NewFileStorage(cfg)
	retry := ai.DefaultRetryPolicy(cfg)

	ingestion := services.NewIngestionService(cfg, chunker, extractor, providers.Embedder, index, metadata, retry, metrics)
	retrieval := services.NewRetrievalEngine(index, metadata, providers.Embedder, cfg)

	var cacheClient *redis.Client
	if cfg.QueryCacheEnabled {
		cacheClient = rdb
	}
	queryCache := services.NewQueryCache(cacheClient, time.Duration(cfg.QueryCacheTTL)*time.Second)

	rag := services.NewRAGService(cfg, retrieval, assembler, providers.Generator, queryCache, metrics)

	fetcher := webfetch.NewFetcher(30 * time.Second)
	queueClient := queue.NewClient(cfg)
	defer queueClient.Close()

	docs := services.NewDocumentService(cfg, storage, metadata, ingestion, index, queryCache, fetcher, queueClient)

	// Background maintenance: stale-processing sweep and stats logging.
	maintenance := services.NewMaintenanceService(metadata, index,
		time.Duration(cfg.StaleSweepInterval)*time.Second,
		time.Duration(cfg.IngestTimeout)*time.Second)
	if err := maintenance.Start(); err != nil {
		log.Fatal("Failed to start maintenance scheduler:", err)
	}
	defer maintenance.Stop()

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))
	// Multipart bodies run slightly over the file size cap.
	router.Use(middleware.RequestSizeLimit(cfg.MaxFileSize + 1024*1024))

	// Setup routes
	routes.SetupHealthRoutes(router, mongoClient, rdb, index)
	routes.SetupDocumentRoutes(router, cfg, docs)
	routes.SetupQueryRoutes(router, rag)
	routes.SetupVectorRoutes(router, index, metadata)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting",
			"port", cfg.Port,
			"index_driver", cfg.VectorIndexDriver,
			"embeddings_provider", cfg.EmbeddingsProvider,
			"generation_provider", cfg.GenerationProvider)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}

// newVectorIndex selects the index driver. Qdrant is the production
// backend; the memory driver serves tests and local runs without an
// external dependency.
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
