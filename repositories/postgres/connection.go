package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/FLAMiNGPHYtON1/outlet-locator/config"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return NewDBFromConn(db, logger), nil
}

// NewDBFromConn wraps an already opened pool
func NewDBFromConn(db *sql.DB, logger *zap.Logger) *DB {
	return &DB{DB: db, logger: logger}
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck pings the database and runs a trivial query
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// InitSchema creates the outlets table, its indexes and the vector extension
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS outlets (
			id UUID PRIMARY KEY,
			natural_key TEXT NOT NULL UNIQUE,
			name VARCHAR(200) NOT NULL,
			address VARCHAR(500) NOT NULL,
			operating_hours TEXT,
			waze_link TEXT,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			telephone VARCHAR(50),
			attribute VARCHAR(500),
			search_term VARCHAR(100) NOT NULL DEFAULT '',
			embedding vector,
			embedding_source_hash VARCHAR(64),
			scraped_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			CONSTRAINT outlets_coordinates_paired CHECK ((latitude IS NULL) = (longitude IS NULL)),
			CONSTRAINT outlets_timestamps_ordered CHECK (created_at <= updated_at AND updated_at <= scraped_at)
		);

		CREATE INDEX IF NOT EXISTS idx_outlets_search_term ON outlets(search_term);
		CREATE INDEX IF NOT EXISTS idx_outlets_created_at ON outlets(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_outlets_indexed ON outlets(scraped_at DESC) WHERE embedding IS NOT NULL;
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}
