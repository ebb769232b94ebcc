package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// minJWTSecretLength is the shortest accepted HS256 secret
const minJWTSecretLength = 32

// Config represents the complete application configuration
type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	StorageBackend string
	Redis          RedisConfig
	Providers      ProvidersConfig
	Scraper        ScraperConfig
	Retrieval      RetrievalConfig
	Rescrape       RescrapeConfig
	Auth           AuthConfig
	Observability  ObservabilityConfig
	Environment    string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// RedisConfig configures the shared embedding cache. An empty Addr keeps
// the cache in process memory.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	CacheTTL  time.Duration
	KeyPrefix string

	// MemoryCacheSize bounds the in-process cache used without Redis
	MemoryCacheSize int
}

// Enabled reports whether a Redis address is configured
func (c *RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// ProvidersConfig holds model provider configurations
type ProvidersConfig struct {
	OpenAI OpenAIConfig
}

// OpenAIConfig holds OpenAI provider configuration
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int

	ChatModel           string
	EmbeddingModel      string
	EmbeddingDimensions int
	Temperature         float64
	MaxTokens           int
}

// ScraperConfig controls the browser-driven extraction
type ScraperConfig struct {
	ProfilePath    string
	Headless       bool
	PageTimeout    time.Duration
	PageRetries    int
	MaxRestarts    int
	MaxPages       int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// RetrievalConfig controls embedding batches and search defaults
type RetrievalConfig struct {
	TopK        int
	BatchSize   int
	Concurrency int
}

// RescrapeConfig controls the background re-scrape queue
type RescrapeConfig struct {
	Workers     int
	QueueSize   int
	TaskRetries int
	RetryDelay  time.Duration
	TaskTimeout time.Duration
}

// AuthConfig holds the admin token settings. An empty JWTSecret disables
// token checks on admin routes.
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

// Enabled reports whether admin tokens are verified
func (c *AuthConfig) Enabled() bool {
	return c.JWTSecret != ""
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", StoragePostgres)),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 150*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			CORSOrigins:     getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://*"}),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Database: loadDatabaseConfig(),
		Redis: RedisConfig{
			Addr:            getEnv("REDIS_ADDR", ""),
			Password:        getEnv("REDIS_PASSWORD", ""),
			DB:              getEnvAsInt("REDIS_DB", 0),
			CacheTTL:        getEnvAsDuration("EMBEDDING_CACHE_TTL", 30*24*time.Hour),
			KeyPrefix:       getEnv("REDIS_KEY_PREFIX", "outlets:"),
			MemoryCacheSize: getEnvAsInt("EMBEDDING_CACHE_SIZE", 10000),
		},
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				APIKey:              getEnv("OPENAI_API_KEY", ""),
				BaseURL:             getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				Timeout:             getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
				MaxRetries:          getEnvAsInt("OPENAI_MAX_RETRIES", 3),
				ChatModel:           getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
				EmbeddingModel:      getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
				EmbeddingDimensions: getEnvAsInt("OPENAI_EMBEDDING_DIMENSIONS", 512),
				Temperature:         getEnvAsFloat("OPENAI_TEMPERATURE", 0.7),
				MaxTokens:           getEnvAsInt("OPENAI_MAX_TOKENS", 250),
			},
		},
		Scraper: ScraperConfig{
			ProfilePath:    getEnv("SCRAPER_PROFILE", ""),
			Headless:       getEnvAsBool("SCRAPER_HEADLESS", true),
			PageTimeout:    getEnvAsDuration("SCRAPER_PAGE_TIMEOUT", 10*time.Second),
			PageRetries:    getEnvAsInt("SCRAPER_PAGE_RETRIES", 3),
			MaxRestarts:    getEnvAsInt("SCRAPER_MAX_RESTARTS", 2),
			MaxPages:       getEnvAsInt("SCRAPER_MAX_PAGES", 50),
			RetryBaseDelay: getEnvAsDuration("SCRAPER_RETRY_BASE_DELAY", 500*time.Millisecond),
			RetryMaxDelay:  getEnvAsDuration("SCRAPER_RETRY_MAX_DELAY", 8*time.Second),
		},
		Retrieval: RetrievalConfig{
			TopK:        getEnvAsInt("SEARCH_TOP_K", 5),
			BatchSize:   getEnvAsInt("EMBEDDING_BATCH_SIZE", 32),
			Concurrency: getEnvAsInt("EMBEDDING_CONCURRENCY", 4),
		},
		Rescrape: RescrapeConfig{
			Workers:     getEnvAsInt("RESCRAPE_WORKERS", 2),
			QueueSize:   getEnvAsInt("RESCRAPE_QUEUE_SIZE", 1000),
			TaskRetries: getEnvAsInt("RESCRAPE_TASK_RETRIES", 2),
			RetryDelay:  getEnvAsDuration("RESCRAPE_RETRY_DELAY", 2*time.Second),
			TaskTimeout: getEnvAsDuration("RESCRAPE_TASK_TIMEOUT", 10*time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
			JWTIssuer: getEnv("ADMIN_JWT_ISSUER", "outlet-locator"),
		},
		Observability: ObservabilityConfig{
			LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StoragePostgres:
		// Database validation (DATABASE_URL or DB_* vars)
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
		if c.Database.ConnectionString == "" {
			if c.Database.User == "" {
				return fmt.Errorf("database user is required")
			}
			if c.Database.Database == "" {
				return fmt.Errorf("database name is required")
			}
		}
	case StorageMemory:
		if c.IsProduction() {
			return fmt.Errorf("memory storage is not allowed in production")
		}
	default:
		return fmt.Errorf("storage backend must be %q or %q, got %q", StoragePostgres, StorageMemory, c.StorageBackend)
	}

	openai := c.Providers.OpenAI
	if c.IsProduction() && openai.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required in production")
	}
	if openai.EmbeddingModel == "" || openai.ChatModel == "" {
		return fmt.Errorf("chat and embedding models are required")
	}
	if openai.EmbeddingDimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive")
	}
	if openai.Temperature < 0 || openai.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}

	if c.Retrieval.TopK < 1 || c.Retrieval.TopK > 20 {
		return fmt.Errorf("SEARCH_TOP_K must be between 1 and 20")
	}

	if c.Auth.Enabled() && len(c.Auth.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("ADMIN_JWT_SECRET must be at least %d characters", minJWTSecretLength)
	}

	// Observability validation
	switch c.Observability.LogLevel {
	case "debug", "info", "warn", "error":
	case "":
		return fmt.Errorf("log level is required")
	default:
		return fmt.Errorf("invalid log level %q", c.Observability.LogLevel)
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "outlets"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "outlets"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8000)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated value, dropping blank entries
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
