package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"kgraph/backend/internal/extract"
	"kgraph/backend/internal/graph"
	"kgraph/backend/internal/service"
	"kgraph/backend/pkg/config"
	"kgraph/backend/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	env := os.Getenv("ENV")
	if env == "" {
		env = "development"
	}
	if err := logger.Init(env); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting graph ingestion server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Connect the shared store client: one connection for the process
	// lifetime, torn down at shutdown
	ctx := context.Background()
	runner, err := graph.NewNeo4jRunner(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase)
	if err != nil {
		log.Fatal("Failed to connect to graph store", zap.Error(err))
	}

	repo := graph.NewRepository(runner,
		graph.WithMaxRetries(cfg.MaxRetries),
		graph.WithRetryBase(time.Duration(cfg.RetryBaseMs)*time.Millisecond),
		graph.WithDeleteBatchSize(cfg.DeleteBatchSize),
	)
	defer repo.Close(context.Background())

	// The extraction collaborator is optional: without credentials, text
	// ingestion fails fast and analysis uses logic-only summaries
	var textExtractor service.TextExtractor
	var summarizer service.Summarizer
	if cfg.ExtractionEnabled() {
		extractor := extract.NewExtractor(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.ExtractionModel, cfg.ExtractWorkers)
		textExtractor = extractor
		summarizer = extractor
	} else {
		log.Warn("Text extraction not configured; text ingestion disabled")
	}

	ingestSvc := service.NewIngestService(repo, textExtractor,
		service.WithWriteDelay(time.Duration(cfg.WriteDelayMs)*time.Millisecond, cfg.WriteDelayEvery),
	)
	analysisSvc := service.NewAnalysisService(repo, summarizer)

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	registerRoutes(router, repo, ingestSvc, analysisSvc)

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
