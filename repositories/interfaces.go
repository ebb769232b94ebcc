package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/FLAMiNGPHYtON1/outlet-locator/models"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a lookup matches no outlet
var ErrNotFound = errors.New("record not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction.
	// Repositories called with the callback's context join the transaction.
	// Commits if the function succeeds, rolls back on error.
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// OutletRepository handles outlet persistence
type OutletRepository interface {
	// FindByKey retrieves an outlet by natural key. Returns ErrNotFound when absent.
	FindByKey(ctx context.Context, naturalKey string) (*models.Outlet, error)

	// FindByKeyForUpdate is FindByKey holding a row lock until the surrounding transaction ends
	FindByKeyForUpdate(ctx context.Context, naturalKey string) (*models.Outlet, error)

	// GetByID retrieves an outlet by storage id. Returns ErrNotFound when absent.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Outlet, error)

	// Insert stores a new outlet. Returns false when another writer inserted the
	// same natural key first.
	Insert(ctx context.Context, outlet *models.Outlet) (bool, error)

	// Replace overwrites the descriptive fields and timestamps of an existing outlet
	Replace(ctx context.Context, outlet *models.Outlet) error

	// TouchScrapedAt refreshes scraped_at only
	TouchScrapedAt(ctx context.Context, naturalKey string, scrapedAt time.Time) error

	// UpdateEmbedding stores a vector and the hash of the text that produced it
	UpdateEmbedding(ctx context.Context, id uuid.UUID, embedding []float32, sourceHash string) error

	// List returns a page of outlets ordered by created_at descending, plus the total match count
	List(ctx context.Context, filter models.OutletFilter, limit, offset int) ([]*models.Outlet, int, error)

	// ListAfterKey returns up to limit outlets whose natural key sorts after
	// afterKey, in ascending key order. An empty afterKey starts from the first key.
	ListAfterKey(ctx context.Context, afterKey string, limit int) ([]*models.Outlet, error)

	// ListIndexed returns every outlet with a non-null embedding
	ListIndexed(ctx context.Context) ([]*models.Outlet, error)

	// DeleteAll removes every outlet and returns the number deleted
	DeleteAll(ctx context.Context) (int64, error)

	// DistinctSearchTerms returns every non-empty search term seen so far, sorted
	DistinctSearchTerms(ctx context.Context) ([]string, error)

	// Statistics aggregates counts per search term
	Statistics(ctx context.Context) (*models.OutletStatistics, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Outlets OutletRepository
}
