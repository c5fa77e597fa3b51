package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI    string
	DBName      string
	Port        string
	GinMode     string
	CORSOrigins []string

	// Auth
	AccessSecret  string
	RefreshSecret string
	BcryptCost    int

	// Redis / queue
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Gemini
	GeminiAPIKey   string
	GeminiModel    string
	GeminiTier     string
	EmbeddingModel string

	// Embedding pipeline
	EmbeddingBatchSize  int
	EmbeddingMaxRetries int
	EmbeddingBatchDelay time.Duration

	// Vector store
	VectorStore     string // "qdrant" or "memory"
	QdrantHost      string
	QdrantPort      int
	VectorDimension int

	// Chunking
	ChunkSizeTokens    int
	ChunkOverlapTokens int
	TokenizerEncoding  string

	// Upload limits
	MaxFileSize  int64
	MaxBatchSize int

	// Retrieval
	RetrievalTopK  int
	ExcerptMaxLen  int
	SSEPollSeconds int

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Job maintenance
	StaleJobTimeout time.Duration
	JobRetention    time.Duration
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017/persona_advisor"),
		DBName:      getEnv("DB_NAME", "persona_advisor"),
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		AccessSecret:  getEnv("ACCESS_SECRET", ""),
		RefreshSecret: getEnv("REFRESH_SECRET", ""),
		BcryptCost:    getEnvInt("BCRYPT_COST", 12),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiTier:     getEnv("GEMINI_TIER", "free"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-004"),

		EmbeddingBatchSize:  getEnvInt("EMBEDDING_BATCH_SIZE", 64),
		EmbeddingMaxRetries: getEnvInt("EMBEDDING_MAX_RETRIES", 3),
		EmbeddingBatchDelay: time.Duration(getEnvInt("EMBEDDING_BATCH_DELAY_MS", 100)) * time.Millisecond,

		VectorStore:     getEnv("VECTOR_STORE", "qdrant"),
		QdrantHost:      getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:      getEnvInt("QDRANT_PORT", 6334),
		VectorDimension: getEnvInt("VECTOR_DIMENSION", 768),

		ChunkSizeTokens:    getEnvInt("CHUNK_SIZE_TOKENS", 800),
		ChunkOverlapTokens: getEnvInt("CHUNK_OVERLAP_TOKENS", 200),
		TokenizerEncoding:  getEnv("TOKENIZER_ENCODING", "cl100k_base"),

		MaxFileSize:  getEnvInt64("MAX_FILE_SIZE", 52428800), // 50MB per file
		MaxBatchSize: getEnvInt("MAX_BATCH_SIZE", 10),        // files per ingestion job

		RetrievalTopK:  getEnvInt("RETRIEVAL_TOP_K", 6),
		ExcerptMaxLen:  getEnvInt("EXCERPT_MAX_LEN", 500),
		SSEPollSeconds: getEnvInt("SSE_POLL_SECONDS", 2),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		StaleJobTimeout: time.Duration(getEnvInt("STALE_JOB_TIMEOUT_MINUTES", 120)) * time.Minute,
		JobRetention:    time.Duration(getEnvInt("JOB_RETENTION_DAYS", 30)) * 24 * time.Hour,
	}

	// Validate required fields
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("ACCESS_SECRET and REFRESH_SECRET are required")
	}

	if cfg.VectorStore != "qdrant" && cfg.VectorStore != "memory" {
		return nil, fmt.Errorf("unknown VECTOR_STORE: %s (expected qdrant or memory)", cfg.VectorStore)
	}

	if cfg.ChunkOverlapTokens >= cfg.ChunkSizeTokens {
		return nil, fmt.Errorf("CHUNK_OVERLAP_TOKENS must be less than CHUNK_SIZE_TOKENS")
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
