package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Neo4j
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string

	// Extraction (OpenAI-compatible endpoint)
	OpenAIBaseURL   string
	OpenAIAPIKey    string
	ExtractionModel string

	// Ingestion tuning
	WriteDelayMs    int // cooperative micro-delay between write bursts
	WriteDelayEvery int // number of writes between micro-delays
	MaxRetries      int // retry ceiling for throttled remote calls
	RetryBaseMs     int // base backoff unit for throttled retries
	DeleteBatchSize int // bounded batch size for document-scoped deletion
	ExtractWorkers  int // concurrent chunks sent to the extraction service
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		Neo4jURI:        getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:       getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:   getEnv("NEO4J_PASSWORD", "password"),
		Neo4jDatabase:   getEnv("NEO4J_DATABASE", "neo4j"),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		ExtractionModel: getEnv("EXTRACTION_MODEL", "gpt-4o-mini"),
		WriteDelayMs:    getEnvInt("WRITE_DELAY_MS", 50),
		WriteDelayEvery: getEnvInt("WRITE_DELAY_EVERY", 5),
		MaxRetries:      getEnvInt("MAX_RETRIES", 5),
		RetryBaseMs:     getEnvInt("RETRY_BASE_MS", 200),
		DeleteBatchSize: getEnvInt("DELETE_BATCH_SIZE", 100),
		ExtractWorkers:  getEnvInt("EXTRACT_WORKERS", 3),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.Neo4jURI == "" {
		return fmt.Errorf("NEO4J_URI is required")
	}
	if c.Neo4jUser == "" {
		return fmt.Errorf("NEO4J_USER is required")
	}
	if c.Neo4jPassword == "" {
		return fmt.Errorf("NEO4J_PASSWORD is required")
	}
	if c.WriteDelayEvery < 1 {
		return fmt.Errorf("WRITE_DELAY_EVERY must be at least 1")
	}
	if c.DeleteBatchSize < 1 {
		return fmt.Errorf("DELETE_BATCH_SIZE must be at least 1")
	}
	// OpenAI credentials are optional: text ingestion degrades to the
	// deterministic skip path when the extractor is not configured
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ExtractionEnabled returns true if the text-extraction collaborator is configured
func (c *Config) ExtractionEnabled() bool {
	return c.OpenAIAPIKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
