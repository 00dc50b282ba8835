package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "neo4j", cfg.Neo4jDatabase)
	assert.Equal(t, 50, cfg.WriteDelayMs)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 100, cfg.DeleteBatchSize)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MAX_RETRIES", "7")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 7, cfg.MaxRetries)
	assert.True(t, cfg.ExtractionEnabled())
}

func TestLoadIgnoresMalformedInt(t *testing.T) {
	t.Setenv("MAX_RETRIES", "lots")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxRetries)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Neo4jURI:        "bolt://localhost:7687",
		Neo4jUser:       "neo4j",
		Neo4jPassword:   "password",
		WriteDelayEvery: 5,
		DeleteBatchSize: 100,
	}
	assert.NoError(t, cfg.Validate())

	cfg.Neo4jPassword = ""
	assert.Error(t, cfg.Validate())

	cfg.Neo4jPassword = "password"
	cfg.DeleteBatchSize = 0
	assert.Error(t, cfg.Validate())
}

func TestExtractionEnabled(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.ExtractionEnabled())
	cfg.OpenAIAPIKey = "sk-x"
	assert.True(t, cfg.ExtractionEnabled())
}
