package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/FLAMiNGPHYtON1/outlet-locator/config"
	"github.com/FLAMiNGPHYtON1/outlet-locator/repositories/memory"
)

func TestNewDependencies(t *testing.T) {
	t.Run("memory backend wires the full pipeline", func(t *testing.T) {
		ctx := context.Background()
		deps, err := NewDependencies(ctx, testConfig(), zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NotNil(t, deps)

		assert.Nil(t, deps.DB)
		assert.Nil(t, deps.RepoFactory)
		assert.IsType(t, &memory.OutletRepository{}, deps.Outlets)
		assert.NotNil(t, deps.TxManager)
		assert.NotNil(t, deps.Locks)

		assert.NotNil(t, deps.Cache)
		assert.Nil(t, deps.Redis)
		assert.Nil(t, deps.RedisHealth)

		assert.NotNil(t, deps.Provider)
		assert.NotNil(t, deps.Browser)
		assert.NotNil(t, deps.Driver)
		assert.NotNil(t, deps.Normalizer)
		assert.NotNil(t, deps.Coordinator)
		assert.NotNil(t, deps.Indexer)
		assert.NotNil(t, deps.Retriever)
		assert.NotNil(t, deps.Composer)
		assert.NotNil(t, deps.OutletService)
		assert.NotNil(t, deps.RescrapeQueue)
		assert.False(t, deps.RescrapeQueue.Stats().Started)

		assert.Nil(t, deps.TokenService)
		require.NotNil(t, deps.AuthMiddleware)
		assert.False(t, deps.AuthMiddleware.Configured())

		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("admin secret enables token service", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig()
		cfg.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)

		require.NotNil(t, deps.TokenService)
		assert.True(t, deps.AuthMiddleware.Configured())

		token, err := deps.TokenService.IssueToken("ops", "admin", time.Hour)
		require.NoError(t, err)
		claims, err := deps.TokenService.ValidateToken(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "ops", claims.Sub)

		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("unreadable site profile fails", func(t *testing.T) {
		cfg := testConfig()
		cfg.Scraper.ProfilePath = t.TempDir()

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize pipeline")
	})

	t.Run("unreachable redis fails", func(t *testing.T) {
		cfg := testConfig()
		cfg.Redis.Addr = "127.0.0.1:1"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize embedding cache")
	})
}

func TestDependenciesClose(t *testing.T) {
	t.Run("stops a started queue", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		deps, err := NewDependencies(ctx, testConfig(), zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NoError(t, deps.RescrapeQueue.Start())
		assert.True(t, deps.RescrapeQueue.Stats().Started)

		assert.NoError(t, deps.Close(ctx))
		assert.False(t, deps.RescrapeQueue.Stats().Started)
	})
}

func testConfig() *config.Config {
	cfg := &config.Config{
		Environment:    "test",
		StorageBackend: config.StorageMemory,
	}
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Redis.CacheTTL = time.Hour
	cfg.Redis.MemoryCacheSize = 100
	cfg.Providers.OpenAI = config.OpenAIConfig{
		APIKey:              "sk-test",
		BaseURL:             "http://127.0.0.1:1",
		Timeout:             time.Second,
		ChatModel:           "gpt-4o-mini",
		EmbeddingModel:      "text-embedding-3-small",
		EmbeddingDimensions: 512,
		Temperature:         0.7,
		MaxTokens:           250,
	}
	cfg.Scraper.Headless = true
	cfg.Retrieval.TopK = 5
	cfg.Auth.JWTIssuer = "outlet-locator"
	return cfg
}
