package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/FLAMiNGPHYtON1/outlet-locator/auth"
	"github.com/FLAMiNGPHYtON1/outlet-locator/config"
	"github.com/FLAMiNGPHYtON1/outlet-locator/middleware"
	"github.com/FLAMiNGPHYtON1/outlet-locator/repositories"
	"github.com/FLAMiNGPHYtON1/outlet-locator/repositories/memory"
	"github.com/FLAMiNGPHYtON1/outlet-locator/repositories/postgres"
	"github.com/FLAMiNGPHYtON1/outlet-locator/services/answer"
	"github.com/FLAMiNGPHYtON1/outlet-locator/services/embedding"
	"github.com/FLAMiNGPHYtON1/outlet-locator/services/keylock"
	"github.com/FLAMiNGPHYtON1/outlet-locator/services/normalizer"
	"github.com/FLAMiNGPHYtON1/outlet-locator/services/outlet"
	"github.com/FLAMiNGPHYtON1/outlet-locator/services/providers"
	"github.com/FLAMiNGPHYtON1/outlet-locator/services/providers/openai"
	"github.com/FLAMiNGPHYtON1/outlet-locator/services/rescrape"
	"github.com/FLAMiNGPHYtON1/outlet-locator/services/retrieval"
	"github.com/FLAMiNGPHYtON1/outlet-locator/services/scraper"
)

const (
	lockStripes          = 64
	rescrapeJobsKept     = 100
	cacheCleanupInterval = 10 * time.Minute
)

// Dependencies is the central wiring point of the service
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Storage
	RepoFactory *postgres.RepositoryFactory
	Outlets     repositories.OutletRepository
	TxManager   repositories.TransactionManager
	Locks       *keylock.KeyLocker

	// Embedding cache. Redis is nil unless REDIS_ADDR is set.
	Cache       embedding.Cache
	Redis       *redis.Client
	RedisHealth *embedding.RedisCache

	// Pipeline
	Provider    *openai.OpenAIAdapter
	Browser     *scraper.ChromeBrowser
	Driver      *scraper.Driver
	Normalizer  *normalizer.Normalizer
	Coordinator *outlet.Coordinator
	Indexer     *embedding.Indexer
	Retriever   *retrieval.Retriever
	Composer    *answer.Composer

	OutletService *outlet.Service
	RescrapeQueue *rescrape.Queue

	// Auth. TokenService is nil when no admin secret is configured.
	TokenService   *auth.TokenService
	AuthMiddleware *middleware.AuthMiddleware

	stopCleanup context.CancelFunc
}

// NewDependencies creates and wires up all application dependencies.
// The rescrape queue is created but not started.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
		Locks:  keylock.NewKeyLocker(lockStripes),
	}

	if err := deps.initStorage(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := deps.initCache(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize embedding cache: %w", err)
	}

	if err := deps.initPipeline(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	if err := deps.initAuth(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("storage", cfg.StorageBackend),
		zap.Bool("redis_cache", cfg.Redis.Enabled()),
		zap.Bool("admin_auth", cfg.Auth.Enabled()),
	)
	return deps, nil
}

func (d *Dependencies) initStorage(ctx context.Context, cfg *config.Config) error {
	if cfg.StorageBackend == config.StorageMemory {
		d.Outlets = memory.NewOutletRepository()
		d.TxManager = memory.NewTransactionManager()
		d.Logger.Warn("using in-memory outlet storage, data is lost on restart")
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}
	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := factory.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	repos := factory.NewRepositories()
	d.Outlets = repos.Outlets
	d.TxManager = factory.GetTransactionManager()

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))
	return nil
}

func (d *Dependencies) initCache(cfg *config.Config) error {
	if cfg.Redis.Enabled() {
		client, err := embedding.NewRedisClient(cfg.Redis)
		if err != nil {
			return err
		}
		d.Redis = client
		d.RedisHealth = embedding.NewRedisCache(client, cfg.Redis.KeyPrefix, cfg.Redis.CacheTTL, d.Logger)
		d.Cache = d.RedisHealth
		d.Logger.Info("embedding cache backed by redis", zap.String("addr", cfg.Redis.Addr))
		return nil
	}

	cache := embedding.NewMemoryCache(cfg.Redis.MemoryCacheSize, cfg.Redis.CacheTTL)
	cleanupCtx, cancel := context.WithCancel(context.Background())
	go cache.StartCleanupWorker(cleanupCtx, cacheCleanupInterval)
	d.stopCleanup = cancel
	d.Cache = cache
	return nil
}

func (d *Dependencies) initPipeline(cfg *config.Config) error {
	openAI := cfg.Providers.OpenAI
	if openAI.APIKey == "" {
		d.Logger.Warn("no OpenAI API key configured, indexing and search will fail")
	}
	providerCfg := providers.DefaultProviderConfig()
	providerCfg.APIKey = openAI.APIKey
	providerCfg.BaseURL = openAI.BaseURL
	if openAI.Timeout > 0 {
		providerCfg.Timeout = openAI.Timeout
	}
	providerCfg.MaxRetries = openAI.MaxRetries
	d.Provider = openai.NewOpenAIAdapter(providerCfg)

	profile, err := scraper.LoadProfile(cfg.Scraper.ProfilePath)
	if err != nil {
		return err
	}
	d.Browser = scraper.NewChromeBrowser(profile, cfg.Scraper.Headless, d.Logger)
	d.Driver = scraper.NewDriver(d.Browser, scraper.DriverConfig{
		PageTimeout:    cfg.Scraper.PageTimeout,
		PageRetries:    cfg.Scraper.PageRetries,
		MaxRestarts:    cfg.Scraper.MaxRestarts,
		MaxPages:       cfg.Scraper.MaxPages,
		RetryBaseDelay: cfg.Scraper.RetryBaseDelay,
		RetryMaxDelay:  cfg.Scraper.RetryMaxDelay,
	}, d.Logger)

	d.Normalizer = normalizer.NewNormalizer(d.Logger)
	d.Coordinator = outlet.NewCoordinator(d.Outlets, d.TxManager, d.Locks, d.Logger)
	d.Indexer = embedding.NewIndexer(d.Outlets, d.Provider, d.Cache, d.Locks, embedding.Config{
		Model:       openAI.EmbeddingModel,
		Dimensions:  openAI.EmbeddingDimensions,
		BatchSize:   cfg.Retrieval.BatchSize,
		Concurrency: cfg.Retrieval.Concurrency,
	}, d.Logger)
	d.Retriever = retrieval.NewRetriever(d.Outlets, d.Indexer, d.Logger)
	d.Composer = answer.NewComposer(d.Retriever, d.Provider, answer.Config{
		Model:       openAI.ChatModel,
		Temperature: openAI.Temperature,
		MaxTokens:   openAI.MaxTokens,
		TopK:        cfg.Retrieval.TopK,
	}, d.Logger)

	d.OutletService = outlet.NewService(
		d.Outlets,
		d.Driver,
		d.Normalizer,
		d.Coordinator,
		d.Indexer,
		d.Retriever,
		d.Composer,
		d.Logger,
	)

	d.RescrapeQueue = rescrape.NewQueue(d.OutletService, d.OutletService, rescrape.Config{
		Workers:     cfg.Rescrape.Workers,
		QueueSize:   cfg.Rescrape.QueueSize,
		TaskRetries: cfg.Rescrape.TaskRetries,
		RetryDelay:  cfg.Rescrape.RetryDelay,
		TaskTimeout: cfg.Rescrape.TaskTimeout,
		MaxJobs:     rescrapeJobsKept,
	}, d.Logger)
	return nil
}

func (d *Dependencies) initAuth(cfg *config.Config) error {
	openAccess := !cfg.IsProduction()

	if !cfg.Auth.Enabled() {
		if openAccess {
			d.Logger.Warn("admin secret not configured, admin routes are open")
		} else {
			d.Logger.Warn("admin secret not configured, admin routes disabled")
		}
		d.AuthMiddleware = middleware.NewAuthMiddleware(nil, openAccess, d.Logger)
		return nil
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	if err != nil {
		return err
	}
	d.TokenService = tokens
	d.AuthMiddleware = middleware.NewAuthMiddleware(tokens, false, d.Logger)
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.RescrapeQueue != nil && d.RescrapeQueue.Stats().Started {
		timeout := d.Config.Server.ShutdownTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.RescrapeQueue.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop rescrape queue: %w", err))
		}
	}

	if d.stopCleanup != nil {
		d.stopCleanup()
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return errors.Join(errs...)
}
