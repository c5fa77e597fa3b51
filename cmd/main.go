package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"persona-advisor/internal/ai"
	"persona-advisor/internal/config"
	"persona-advisor/internal/logger"
	"persona-advisor/internal/telemetry"
	"persona-advisor/internal/vector"
	"persona-advisor/middleware"
	"persona-advisor/routes"
	"persona-advisor/services"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer("persona-advisor-api")
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
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	// Connect to Redis
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	// Vector store
	store, err := vector.NewStoreFromConfig(cfg)
	if err != nil {
		log.Fatal("Failed to connect to vector store:", err)
	}
	defer store.Close()

	// Gemini client drives both query embedding and answer generation
	gemini, err := ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.EmbeddingModel, cfg.GeminiTier, metrics)
	if err != nil {
		log.Fatal("Failed to initialize Gemini client:", err)
	}
	defer gemini.Close()
	embedder := ai.NewEmbedder(gemini, cfg.EmbeddingBatchSize, cfg.EmbeddingMaxRetries, cfg.EmbeddingBatchDelay)

	// Asynq client for enqueuing ingestion jobs
	queueClient := asynq.NewClient(config.AsynqRedisOpt(cfg))
	defer queueClient.Close()

	// Services
	personaService := services.NewPersonaService(db, store)
	jobService := services.NewJobService(db)
	retriever := services.NewRetriever(store, embedder, cfg.RetrievalTopK, cfg.ExcerptMaxLen, metrics)

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
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	// Setup routes
	authMiddleware := middleware.NewAuthMiddleware(cfg, rdb)
	routes.SetupAuthRoutes(router, cfg, db, rdb)

	api := router.Group("/api")
	api.Use(authMiddleware.RequireAuth())
	api.Use(middleware.EnrichTrace())
	routes.SetupPersonaRoutes(api, personaService, jobService)
	routes.SetupDocumentRoutes(api, cfg, personaService, jobService, queueClient)
	routes.SetupChatRoutes(api, personaService, retriever, gemini)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("server exited")
}
