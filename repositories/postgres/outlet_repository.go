package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/FLAMiNGPHYtON1/outlet-locator/models"
	"github.com/FLAMiNGPHYtON1/outlet-locator/repositories"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

const outletColumns = `id, natural_key, name, address, operating_hours, waze_link, latitude, longitude,
		telephone, attribute, search_term, embedding, embedding_source_hash, scraped_at, created_at, updated_at`

// OutletRepository implements repositories.OutletRepository
type OutletRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewOutletRepository creates a new outlet repository
func NewOutletRepository(db *DB, logger *zap.Logger) repositories.OutletRepository {
	return &OutletRepository{
		db:     db,
		logger: logger,
	}
}

// FindByKey retrieves an outlet by natural key
func (r *OutletRepository) FindByKey(ctx context.Context, naturalKey string) (*models.Outlet, error) {
	query := `SELECT ` + outletColumns + ` FROM outlets WHERE natural_key = $1`
	return r.queryOne(ctx, query, naturalKey)
}

// FindByKeyForUpdate retrieves an outlet by natural key and locks its row.
// Outside a transaction the lock would be released immediately, so a plain read is issued.
func (r *OutletRepository) FindByKeyForUpdate(ctx context.Context, naturalKey string) (*models.Outlet, error) {
	if !inTransaction(ctx) {
		return r.FindByKey(ctx, naturalKey)
	}
	query := `SELECT ` + outletColumns + ` FROM outlets WHERE natural_key = $1 FOR UPDATE`
	return r.queryOne(ctx, query, naturalKey)
}

// GetByID retrieves an outlet by storage id
func (r *OutletRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Outlet, error) {
	query := `SELECT ` + outletColumns + ` FROM outlets WHERE id = $1`
	return r.queryOne(ctx, query, id)
}

// Insert stores a new outlet, yielding to a concurrent insert of the same natural key
func (r *OutletRepository) Insert(ctx context.Context, outlet *models.Outlet) (bool, error) {
	query := `
		INSERT INTO outlets (id, natural_key, name, address, operating_hours, waze_link, latitude, longitude,
			telephone, attribute, search_term, embedding, embedding_source_hash, scraped_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (natural_key) DO NOTHING
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		outlet.ID,
		outlet.NaturalKey,
		outlet.Name,
		outlet.Address,
		outlet.OperatingHours,
		outlet.WazeLink,
		outlet.Latitude,
		outlet.Longitude,
		outlet.Telephone,
		outlet.Attribute,
		outlet.SearchTerm,
		vectorArg(outlet.Embedding),
		outlet.EmbeddingSourceHash,
		outlet.ScrapedAt,
		outlet.CreatedAt,
		outlet.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert outlet: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		r.logger.Debug("outlet insert lost to concurrent writer", zap.String("natural_key", outlet.NaturalKey))
		return false, nil
	}

	r.logger.Debug("outlet inserted",
		zap.String("id", outlet.ID.String()),
		zap.String("natural_key", outlet.NaturalKey))
	return true, nil
}

// Replace overwrites descriptive fields, updated_at and scraped_at. created_at and the embedding are kept.
func (r *OutletRepository) Replace(ctx context.Context, outlet *models.Outlet) error {
	query := `
		UPDATE outlets
		SET name = $2, address = $3, operating_hours = $4, waze_link = $5, latitude = $6, longitude = $7,
			telephone = $8, attribute = $9, search_term = $10, scraped_at = $11, updated_at = $12
		WHERE natural_key = $1
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		outlet.NaturalKey,
		outlet.Name,
		outlet.Address,
		outlet.OperatingHours,
		outlet.WazeLink,
		outlet.Latitude,
		outlet.Longitude,
		outlet.Telephone,
		outlet.Attribute,
		outlet.SearchTerm,
		outlet.ScrapedAt,
		outlet.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to replace outlet: %w", err)
	}

	if err := expectOneRow(result); err != nil {
		return err
	}

	r.logger.Debug("outlet replaced", zap.String("natural_key", outlet.NaturalKey))
	return nil
}

// TouchScrapedAt refreshes scraped_at only
func (r *OutletRepository) TouchScrapedAt(ctx context.Context, naturalKey string, scrapedAt time.Time) error {
	query := `UPDATE outlets SET scraped_at = $2 WHERE natural_key = $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, naturalKey, scrapedAt)
	if err != nil {
		return fmt.Errorf("failed to touch outlet: %w", err)
	}
	return expectOneRow(result)
}

// UpdateEmbedding stores a vector and its source hash
func (r *OutletRepository) UpdateEmbedding(ctx context.Context, id uuid.UUID, embedding []float32, sourceHash string) error {
	query := `UPDATE outlets SET embedding = $2, embedding_source_hash = $3 WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id, vectorArg(embedding), sourceHash)
	if err != nil {
		return fmt.Errorf("failed to update embedding: %w", err)
	}
	if err := expectOneRow(result); err != nil {
		return err
	}

	r.logger.Debug("outlet embedding updated",
		zap.String("id", id.String()),
		zap.Int("dimensions", len(embedding)))
	return nil
}

// List returns a page of outlets whose search term contains filter.SearchTerm, newest first
func (r *OutletRepository) List(ctx context.Context, filter models.OutletFilter, limit, offset int) ([]*models.Outlet, int, error) {
	where := `WHERE ($1 = '' OR search_term ILIKE '%' || $1 || '%')`

	var total int
	executor := GetExecutor(ctx, r.db)
	if err := executor.QueryRowContext(ctx, `SELECT COUNT(*) FROM outlets `+where, filter.SearchTerm).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count outlets: %w", err)
	}

	query := `SELECT ` + outletColumns + ` FROM outlets ` + where + `
		ORDER BY created_at DESC, natural_key ASC
		LIMIT $2 OFFSET $3`

	outlets, err := r.queryOutlets(ctx, query, filter.SearchTerm, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return outlets, total, nil
}

// ListAfterKey returns the next page of outlets in natural key order
func (r *OutletRepository) ListAfterKey(ctx context.Context, afterKey string, limit int) ([]*models.Outlet, error) {
	query := `SELECT ` + outletColumns + ` FROM outlets
		WHERE natural_key > $1
		ORDER BY natural_key ASC
		LIMIT $2`
	return r.queryOutlets(ctx, query, afterKey, limit)
}

// ListIndexed returns every outlet with an embedding
func (r *OutletRepository) ListIndexed(ctx context.Context) ([]*models.Outlet, error) {
	query := `SELECT ` + outletColumns + ` FROM outlets WHERE embedding IS NOT NULL`
	return r.queryOutlets(ctx, query)
}

// DeleteAll removes every outlet
func (r *OutletRepository) DeleteAll(ctx context.Context) (int64, error) {
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, `DELETE FROM outlets`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete outlets: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	r.logger.Info("outlets deleted", zap.Int64("count", deleted))
	return deleted, nil
}

// DistinctSearchTerms returns every non-empty search term, sorted
func (r *OutletRepository) DistinctSearchTerms(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT search_term FROM outlets WHERE search_term <> '' ORDER BY search_term`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query search terms: %w", err)
	}
	defer rows.Close()

	terms := []string{}
	for rows.Next() {
		var term string
		if err := rows.Scan(&term); err != nil {
			return nil, fmt.Errorf("failed to scan search term: %w", err)
		}
		terms = append(terms, term)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search term rows: %w", err)
	}
	return terms, nil
}

// Statistics aggregates outlet counts per search term
func (r *OutletRepository) Statistics(ctx context.Context) (*models.OutletStatistics, error) {
	query := `
		SELECT search_term, COUNT(*), COUNT(embedding), MAX(scraped_at)
		FROM outlets
		GROUP BY search_term
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query outlet statistics: %w", err)
	}
	defer rows.Close()

	stats := &models.OutletStatistics{BySearchTerm: map[string]int{}}
	for rows.Next() {
		var (
			term        string
			total       int
			indexed     int
			lastScraped sql.NullTime
		)
		if err := rows.Scan(&term, &total, &indexed, &lastScraped); err != nil {
			return nil, fmt.Errorf("failed to scan outlet statistics: %w", err)
		}
		stats.BySearchTerm[term] = total
		stats.TotalOutlets += total
		stats.IndexedOutlets += indexed
		if lastScraped.Valid && (stats.LastScrapedAt == nil || lastScraped.Time.After(*stats.LastScrapedAt)) {
			t := lastScraped.Time
			stats.LastScrapedAt = &t
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating statistics rows: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOutlet(row rowScanner) (*models.Outlet, error) {
	outlet := &models.Outlet{}
	var embedding *pgvector.Vector

	err := row.Scan(
		&outlet.ID,
		&outlet.NaturalKey,
		&outlet.Name,
		&outlet.Address,
		&outlet.OperatingHours,
		&outlet.WazeLink,
		&outlet.Latitude,
		&outlet.Longitude,
		&outlet.Telephone,
		&outlet.Attribute,
		&outlet.SearchTerm,
		&embedding,
		&outlet.EmbeddingSourceHash,
		&outlet.ScrapedAt,
		&outlet.CreatedAt,
		&outlet.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if embedding != nil {
		outlet.Embedding = embedding.Slice()
	}
	return outlet, nil
}

func (r *OutletRepository) queryOne(ctx context.Context, query string, args ...interface{}) (*models.Outlet, error) {
	executor := GetExecutor(ctx, r.db)
	outlet, err := scanOutlet(executor.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get outlet: %w", err)
	}
	return outlet, nil
}

// queryOutlets is a helper method to query multiple outlets
func (r *OutletRepository) queryOutlets(ctx context.Context, query string, args ...interface{}) ([]*models.Outlet, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outlets: %w", err)
	}
	defer rows.Close()

	outlets := []*models.Outlet{}
	for rows.Next() {
		outlet, err := scanOutlet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outlet: %w", err)
		}
		outlets = append(outlets, outlet)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outlet rows: %w", err)
	}

	return outlets, nil
}

// vectorArg converts an optional embedding into a driver value; nil stays NULL
func vectorArg(embedding []float32) interface{} {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}

func expectOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}
