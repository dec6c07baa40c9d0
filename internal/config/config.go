package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI    string
	DBName      string
	Port        string
	GinMode     string
	LogLevel    string
	CORSOrigins []string

	// Upload handling
	MaxFileSize         int64
	AllowedExtensions   []string
	FileStorageDir      string
	SyncProcessingLimit int64

	// Chunking
	MaxChunkSize  int
	ChunkOverlap  int
	ChunkLookback int

	// Retrieval / context assembly
	DefaultTopK        int
	MaxTopK            int
	MaxContextChars    int
	MinContextFragment int

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Query answer cache
	QueryCacheEnabled bool
	QueryCacheTTL     int // seconds

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Vector index
	VectorIndexDriver string // "qdrant" (default), "memory"
	QdrantURL         string
	QdrantAPIKey      string
	VectorCollection  string
	VectorDimensions  int
	MaxChunkTextLen   int
	HNSWM             int
	HNSWEfConstruct   int
	HNSWEfSearch      int

	// Embeddings configuration
	EmbeddingsProvider    string // "openai" (default), "google"
	OpenAIAPIKey          string
	OpenAIBaseURL         string
	OpenAIEmbeddingsModel string
	GeminiAPIKey          string
	GoogleEmbeddingsModel string

	// Generation configuration
	GenerationProvider string // "openai" (default), "google"
	OpenAIChatModel    string
	GeminiModel        string
	GenTemperature     float64
	GenMaxTokens       int

	// Provider resilience
	ProviderTimeout     int // seconds
	ProviderRateLimit   float64
	ProviderBurst       int
	RetryMaxAttempts    int
	RetryInitialBackoff int // milliseconds
	RetryMaxBackoff     int // milliseconds
	RetryMultiplier     float64

	// Ingestion lifecycle
	IngestTimeout      int // seconds; processing documents older than this are stale
	StaleSweepInterval int // seconds

	// Telemetry
	OTLPEndpoint     string
	TraceSampleRatio float64
}

// embeddingDimensions maps known embedding models to their output size.
// VECTOR_DIM only needs setting for models not listed here.
var embeddingDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"text-embedding-004":     768,
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017/document_rag"),
		DBName:      getEnv("DB_NAME", "document_rag"),
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		MaxFileSize:         getEnvInt64("MAX_FILE_SIZE", 104857600), // 100MB
		AllowedExtensions:   strings.Split(getEnv("ALLOWED_EXTENSIONS", ".pdf,.txt,.md,.csv,.html,.htm,.xlsx"), ","),
		FileStorageDir:      getEnv("FILE_STORAGE_DIR", "./storage"),
		SyncProcessingLimit: getEnvInt64("SYNC_PROCESSING_LIMIT", 20971520), // 20MB; larger uploads go through the queue

		MaxChunkSize:  getEnvInt("MAX_CHUNK_SIZE", 1000),
		ChunkOverlap:  getEnvInt("CHUNK_OVERLAP", 200),
		ChunkLookback: getEnvInt("CHUNK_LOOKBACK", 100),

		DefaultTopK:        getEnvInt("DEFAULT_TOP_K", 5),
		MaxTopK:            getEnvInt("MAX_TOP_K", 50),
		MaxContextChars:    getEnvInt("MAX_CONTEXT_CHARS", 8000),
		MinContextFragment: getEnvInt("MIN_CONTEXT_FRAGMENT", 50),

		// Redis Configuration
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		QueryCacheEnabled: getEnvBool("QUERY_CACHE_ENABLED", true),
		QueryCacheTTL:     getEnvInt("QUERY_CACHE_TTL", 300),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		// Vector index
		VectorIndexDriver: getEnv("VECTOR_INDEX_DRIVER", "qdrant"),
		QdrantURL:         getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:      getEnv("QDRANT_API_KEY", ""),
		VectorCollection:  getEnv("VECTOR_COLLECTION", "document_chunks"),
		VectorDimensions:  getEnvInt("VECTOR_DIM", 0),
		MaxChunkTextLen:   getEnvInt("MAX_CHUNK_TEXT_LEN", 10000),
		HNSWM:             getEnvInt("HNSW_M", 16),
		HNSWEfConstruct:   getEnvInt("HNSW_EF_CONSTRUCT", 200),
		HNSWEfSearch:      getEnvInt("HNSW_EF_SEARCH", 100),

		// Embeddings
		EmbeddingsProvider:    getEnv("EMBEDDINGS_PROVIDER", "openai"),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIEmbeddingsModel: getEnv("OPENAI_EMBEDDINGS_MODEL", "text-embedding-3-small"),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),

		// Generation
		GenerationProvider: getEnv("GENERATION_PROVIDER", "openai"),
		OpenAIChatModel:    getEnv("OPENAI_CHAT_MODEL", "gpt-3.5-turbo"),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GenTemperature:     getEnvFloat64("GEN_TEMPERATURE", 0.7),
		GenMaxTokens:       getEnvInt("GEN_MAX_TOKENS", 500),

		// Provider resilience
		ProviderTimeout:     getEnvInt("PROVIDER_TIMEOUT", 60),
		ProviderRateLimit:   getEnvFloat64("PROVIDER_RATE_LIMIT", 5),
		ProviderBurst:       getEnvInt("PROVIDER_BURST", 10),
		RetryMaxAttempts:    getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialBackoff: getEnvInt("RETRY_INITIAL_BACKOFF_MS", 500),
		RetryMaxBackoff:     getEnvInt("RETRY_MAX_BACKOFF_MS", 8000),
		RetryMultiplier:     getEnvFloat64("RETRY_MULTIPLIER", 2.0),

		IngestTimeout:      getEnvInt("INGEST_TIMEOUT", 600),
		StaleSweepInterval: getEnvInt("STALE_SWEEP_INTERVAL", 300),

		OTLPEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		TraceSampleRatio: getEnvFloat64("TRACE_SAMPLE_RATIO", 0.1),
	}

	// Derive vector dimensions from the embedding model unless pinned.
	if cfg.VectorDimensions == 0 {
		model := cfg.OpenAIEmbeddingsModel
		if cfg.EmbeddingsProvider == "google" {
			model = cfg.GoogleEmbeddingsModel
		}
		dim, ok := embeddingDimensions[model]
		if !ok {
			return nil, fmt.Errorf("VECTOR_DIM is required for unknown embedding model %q", model)
		}
		cfg.VectorDimensions = dim
	}

	// Validate required fields
	if cfg.EmbeddingsProvider == "openai" || cfg.GenerationProvider == "openai" {
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required - set it in .env file")
		}
	}

	if cfg.EmbeddingsProvider == "google" || cfg.GenerationProvider == "google" {
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
		}
	}

	if cfg.ChunkOverlap <= 0 || cfg.ChunkOverlap >= cfg.MaxChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP must satisfy 0 < overlap < MAX_CHUNK_SIZE (got %d / %d)", cfg.ChunkOverlap, cfg.MaxChunkSize)
	}

	if cfg.VectorIndexDriver != "qdrant" && cfg.VectorIndexDriver != "memory" {
		return nil, fmt.Errorf("VECTOR_INDEX_DRIVER must be 'qdrant' or 'memory' (got %q)", cfg.VectorIndexDriver)
	}

	return cfg, nil
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
