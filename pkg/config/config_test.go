package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, "bot", cfg.RAG.NamespacePrefix)
	assert.Equal(t, 3, cfg.RAG.RetryAttempts)
	assert.Equal(t, "recursive", cfg.Chunking.Strategy)
	assert.Equal(t, 0.3, cfg.Chunking.QualityThreshold)
	assert.Equal(t, 7*24*time.Hour, cfg.Embedding.CacheTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RAG_TOP_K", "9")
	t.Setenv("LLM_PROVIDER", "Anthropic")
	t.Setenv("EMBEDDING_DAILY_BUDGET_USD", "2.5")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("RAG_RESPONSE_CACHE_TTL", "90s")
	t.Setenv("STREAM_CHUNK_DELAY", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.RAG.TopK)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 2.5, cfg.Embedding.DailyBudgetUSD)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 90*time.Second, cfg.RAG.ResponseCacheTTL)
	assert.Equal(t, 2*time.Second, cfg.Stream.ChunkDelay)
}

func TestTypedHelpersFallBack(t *testing.T) {
	t.Setenv("SOME_INT", "abc")
	t.Setenv("SOME_BOOL", "maybe")
	t.Setenv("SOME_DURATION", "soon")

	assert.Equal(t, 7, getEnvInt("SOME_INT", 7))
	assert.False(t, getEnvBool("SOME_BOOL", false))
	assert.Equal(t, time.Minute, getEnvDuration("SOME_DURATION", time.Minute))
	assert.Equal(t, 1.5, getEnvFloat("MISSING_FLOAT", 1.5))
}
