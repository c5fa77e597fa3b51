package main

import (
	"context"
	"log"

	"persona-advisor/internal/ai"
	"persona-advisor/internal/config"
	"persona-advisor/internal/logger"
	"persona-advisor/internal/queue"
	"persona-advisor/internal/telemetry"
	"persona-advisor/internal/vector"
	"persona-advisor/services"

	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer("persona-advisor-worker")
	if err != nil {
		logger.Warn("tracing disabled", "error", err.Error())
	} else {
		defer shutdownTracer()
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to init metrics:", err)
	}

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(context.Background())
	db := mongoClient.Database(cfg.DBName)

	// Vector store
	store, err := vector.NewStoreFromConfig(cfg)
	if err != nil {
		log.Fatal("Failed to connect to vector store:", err)
	}
	defer store.Close()

	// Gemini client for document embedding
	gemini, err := ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.EmbeddingModel, cfg.GeminiTier, metrics)
	if err != nil {
		log.Fatal("Failed to initialize Gemini client:", err)
	}
	defer gemini.Close()
	embedder := ai.NewEmbedder(gemini, cfg.EmbeddingBatchSize, cfg.EmbeddingMaxRetries, cfg.EmbeddingBatchDelay)

	// Chunking pipeline
	counter, err := services.NewTiktokenCounter(cfg.TokenizerEncoding)
	if err != nil {
		log.Fatal("Failed to load tokenizer:", err)
	}
	chunker, err := services.NewChunker(cfg.ChunkSizeTokens, cfg.ChunkOverlapTokens, counter)
	if err != nil {
		log.Fatal("Failed to build chunker:", err)
	}

	jobService := services.NewJobService(db)
	personaService := services.NewPersonaService(db, store)
	ingestor := services.NewIngestor(jobService, personaService,
		services.NewExtractor(), chunker, embedder, store, metrics)

	// Periodic job hygiene: stale-processing sweep and retention pruning
	maintenance := services.NewMaintenanceService(jobService, cfg.StaleJobTimeout, cfg.JobRetention)
	if err := maintenance.Start(); err != nil {
		log.Fatal("Failed to start maintenance scheduler:", err)
	}
	defer maintenance.Stop()

	// Create Asynq server
	server := asynq.NewServer(
		config.AsynqRedisOpt(cfg),
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task failed", "type", task.Type(), "error", err.Error())
			}),
		},
	)

	processor := queue.NewTaskProcessor(ingestor)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskIngestDocuments, processor.HandleIngestion)

	logger.Info("worker starting", "concurrency", 10, "redis", cfg.RedisURL)

	// Start the server
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
