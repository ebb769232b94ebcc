package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/FLAMiNGPHYtON1/outlet-locator/models"
	"github.com/FLAMiNGPHYtON1/outlet-locator/repositories"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var outletColumnNames = []string{
	"id", "natural_key", "name", "address", "operating_hours", "waze_link", "latitude", "longitude",
	"telephone", "attribute", "search_term", "embedding", "embedding_source_hash", "scraped_at", "created_at", "updated_at",
}

func newTestDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewDBFromConn(conn, zap.NewNop()), mock
}

func outletRow(id uuid.UUID, key string, embedding interface{}, ts time.Time) []driver.Value {
	return []driver.Value{
		id.String(), key, "McDonald's Bukit Bintang", "Jalan Bukit Bintang, 55100 Kuala Lumpur",
		"24 Hours", "https://waze.com/ul?ll=3.146,101.711&z=15", 3.146, 101.711,
		"Tel: 03-2141 3001", "Drive-Thru, WiFi", "kuala lumpur",
		embedding, "abc123", ts, ts, ts,
	}
}

func TestOutletRepository_FindByKey(t *testing.T) {
	ctx := context.Background()

	t.Run("found with embedding", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewOutletRepository(db, zap.NewNop())
		id := uuid.New()
		now := time.Now().UTC()

		mock.ExpectQuery(regexp.QuoteMeta("FROM outlets WHERE natural_key = $1")).
			WithArgs("mcdonald's bukit bintang|jalan bukit bintang").
			WillReturnRows(sqlmock.NewRows(outletColumnNames).
				AddRow(outletRow(id, "mcdonald's bukit bintang|jalan bukit bintang", "[0.5,0.25,1]", now)...))

		outlet, err := repo.FindByKey(ctx, "mcdonald's bukit bintang|jalan bukit bintang")
		require.NoError(t, err)

		assert.Equal(t, id, outlet.ID)
		assert.Equal(t, "McDonald's Bukit Bintang", outlet.Name)
		require.NotNil(t, outlet.OperatingHours)
		assert.Equal(t, "24 Hours", *outlet.OperatingHours)
		require.NotNil(t, outlet.Latitude)
		assert.InDelta(t, 3.146, *outlet.Latitude, 1e-9)
		assert.Equal(t, []float32{0.5, 0.25, 1}, outlet.Embedding)
		require.NotNil(t, outlet.EmbeddingSourceHash)
		assert.Equal(t, "abc123", *outlet.EmbeddingSourceHash)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("null embedding stays nil", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewOutletRepository(db, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("FROM outlets WHERE natural_key = $1")).
			WillReturnRows(sqlmock.NewRows(outletColumnNames).
				AddRow(outletRow(uuid.New(), "k", nil, time.Now())...))

		outlet, err := repo.FindByKey(ctx, "k")
		require.NoError(t, err)
		assert.Nil(t, outlet.Embedding)
		assert.False(t, outlet.IsIndexed())
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewOutletRepository(db, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("FROM outlets WHERE natural_key = $1")).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.FindByKey(ctx, "missing")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})

	t.Run("driver failure is wrapped", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewOutletRepository(db, zap.NewNop())

		mock.ExpectQuery(regexp.QuoteMeta("FROM outlets WHERE natural_key = $1")).
			WillReturnError(sql.ErrConnDone)

		_, err := repo.FindByKey(ctx, "k")
		require.Error(t, err)
		assert.ErrorIs(t, err, sql.ErrConnDone)
		assert.False(t, errors.Is(err, repositories.ErrNotFound))
	})
}

func TestOutletRepository_FindByKeyForUpdate(t *testing.T) {
	ctx := context.Background()
	db, mock := newTestDB(t)
	repo := NewOutletRepository(db, zap.NewNop())
	txMgr := NewTransactionManager(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE natural_key = $1 FOR UPDATE")).
		WithArgs("k").
		WillReturnRows(sqlmock.NewRows(outletColumnNames).AddRow(outletRow(uuid.New(), "k", nil, time.Now())...))
	mock.ExpectCommit()

	err := txMgr.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
		_, err := repo.FindByKeyForUpdate(ctx, "k")
		return err
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutletRepository_FindByKeyForUpdate_WithoutTransaction(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewOutletRepository(db, zap.NewNop())

	mock.ExpectQuery(`WHERE natural_key = \$1$`).
		WillReturnRows(sqlmock.NewRows(outletColumnNames).AddRow(outletRow(uuid.New(), "k", nil, time.Now())...))

	_, err := repo.FindByKeyForUpdate(context.Background(), "k")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutletRepository_Insert(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	hours := "7am - 11pm"
	outlet := &models.Outlet{
		ID:             uuid.New(),
		NaturalKey:     "a|b",
		Name:           "A",
		Address:        "B",
		OperatingHours: &hours,
		SearchTerm:     "kl",
		ScrapedAt:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	t.Run("inserted", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewOutletRepository(db, zap.NewNop())

		mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (natural_key) DO NOTHING")).
			WithArgs(outlet.ID, "a|b", "A", "B", &hours, nil, nil, nil, nil, nil, "kl", nil, nil, now, now, now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		inserted, err := repo.Insert(ctx, outlet)
		require.NoError(t, err)
		assert.True(t, inserted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost to concurrent writer", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewOutletRepository(db, zap.NewNop())

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outlets")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		inserted, err := repo.Insert(ctx, outlet)
		require.NoError(t, err)
		assert.False(t, inserted)
	})
}

func TestOutletRepository_Replace(t *testing.T) {
	ctx := context.Background()
	outlet := &models.Outlet{NaturalKey: "a|b", Name: "A", Address: "B", ScrapedAt: time.Now(), UpdatedAt: time.Now()}

	t.Run("replaced", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewOutletRepository(db, zap.NewNop())

		mock.ExpectExec(regexp.QuoteMeta("UPDATE outlets")).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Replace(ctx, outlet))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row", func(t *testing.T) {
		db, mock := newTestDB(t)
		repo := NewOutletRepository(db, zap.NewNop())

		mock.ExpectExec(regexp.QuoteMeta("UPDATE outlets")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.Replace(ctx, outlet), repositories.ErrNotFound)
	})
}

func TestOutletRepository_TouchScrapedAt(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewOutletRepository(db, zap.NewNop())
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE outlets SET scraped_at = $2 WHERE natural_key = $1")).
		WithArgs("a|b", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.TouchScrapedAt(context.Background(), "a|b", now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutletRepository_UpdateEmbedding(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewOutletRepository(db, zap.NewNop())
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE outlets SET embedding = $2, embedding_source_hash = $3 WHERE id = $1")).
		WithArgs(id, sqlmock.AnyArg(), "hash").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateEmbedding(context.Background(), id, []float32{0.1, 0.2}, "hash")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutletRepository_List(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewOutletRepository(db, zap.NewNop())
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM outlets")).
		WithArgs("kuala").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, natural_key ASC")).
		WithArgs("kuala", 10, 10).
		WillReturnRows(sqlmock.NewRows(outletColumnNames).
			AddRow(outletRow(uuid.New(), "a", nil, now)...).
			AddRow(outletRow(uuid.New(), "b", "[1,0]", now)...))

	outlets, total, err := repo.List(context.Background(), models.OutletFilter{SearchTerm: "kuala"}, 10, 10)
	require.NoError(t, err)
	assert.Equal(t, 12, total)
	require.Len(t, outlets, 2)
	assert.Equal(t, "a", outlets[0].NaturalKey)
	assert.Equal(t, []float32{1, 0}, outlets[1].Embedding)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutletRepository_ListAfterKey(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewOutletRepository(db, zap.NewNop())
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE natural_key > $1")).
		WithArgs("b", 2).
		WillReturnRows(sqlmock.NewRows(outletColumnNames).
			AddRow(outletRow(uuid.New(), "c", nil, now)...).
			AddRow(outletRow(uuid.New(), "d", nil, now)...))

	outlets, err := repo.ListAfterKey(context.Background(), "b", 2)
	require.NoError(t, err)
	require.Len(t, outlets, 2)
	assert.Equal(t, "c", outlets[0].NaturalKey)
	assert.Equal(t, "d", outlets[1].NaturalKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutletRepository_ListIndexed(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewOutletRepository(db, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta("WHERE embedding IS NOT NULL")).
		WillReturnRows(sqlmock.NewRows(outletColumnNames))

	outlets, err := repo.ListIndexed(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, outlets)
	assert.Empty(t, outlets)
}

func TestOutletRepository_DeleteAll(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewOutletRepository(db, zap.NewNop())

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM outlets")).
		WillReturnResult(sqlmock.NewResult(0, 42))

	deleted, err := repo.DeleteAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), deleted)
}

func TestOutletRepository_DistinctSearchTerms(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewOutletRepository(db, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT search_term FROM outlets")).
		WillReturnRows(sqlmock.NewRows([]string{"search_term"}).AddRow("johor").AddRow("kuala lumpur"))

	terms, err := repo.DistinctSearchTerms(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"johor", "kuala lumpur"}, terms)
}

func TestOutletRepository_Statistics(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewOutletRepository(db, zap.NewNop())
	earlier := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY search_term")).
		WillReturnRows(sqlmock.NewRows([]string{"search_term", "count", "count", "max"}).
			AddRow("johor", 3, 1, earlier).
			AddRow("kuala lumpur", 5, 5, later))

	stats, err := repo.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, stats.TotalOutlets)
	assert.Equal(t, 6, stats.IndexedOutlets)
	assert.Equal(t, map[string]int{"johor": 3, "kuala lumpur": 5}, stats.BySearchTerm)
	require.NotNil(t, stats.LastScrapedAt)
	assert.Equal(t, later, *stats.LastScrapedAt)
}
