// Package outlet exposes the scrape, read, delete and search operations over stored outlets.
package outlet

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FLAMiNGPHYtON1/outlet-locator/models"
	"github.com/FLAMiNGPHYtON1/outlet-locator/repositories"
	"github.com/FLAMiNGPHYtON1/outlet-locator/services"
	"github.com/FLAMiNGPHYtON1/outlet-locator/services/normalizer"
)

// MaxPerPage bounds List page sizes
const MaxPerPage = 100

// Extractor reads raw records from the listing
type Extractor interface {
	Extract(ctx context.Context, searchTerm string) ([]models.RawRecord, error)
}

// Reindexer refreshes embeddings for stored outlets
type Reindexer interface {
	ReindexStale(ctx context.Context) (*models.ReindexResult, error)
}

// Searcher ranks indexed outlets against a query
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]*models.ScoredOutlet, error)
}

// Answerer screens questions and writes replies grounded in search hits
type Answerer interface {
	Screen(query string) error
	Generate(ctx context.Context, query string, hits []*models.ScoredOutlet) (*models.GeneratedAnswer, error)
	TopK() int
}

// ScrapeOnlyResult is an extraction that was normalized but not stored
type ScrapeOnlyResult struct {
	SearchTerm string           `json:"search_term"`
	Outlets    []*models.Outlet `json:"outlets"`
	Dropped    int              `json:"dropped"`
	ScrapedAt  time.Time        `json:"scraped_at"`
}

// ScrapeResult summarises a scrape-and-save run
type ScrapeResult struct {
	SearchTerm   string                `json:"search_term"`
	Scraped      int                   `json:"scraped"`
	Dropped      int                   `json:"dropped"`
	Upsert       *models.UpsertResult  `json:"upsert"`
	Reindex      *models.ReindexResult `json:"reindex,omitempty"`
	ReindexError string                `json:"reindex_error,omitempty"`
	ScrapedAt    time.Time             `json:"scraped_at"`
}

// SearchResult carries ranked outlets and, when requested, a generated answer
type SearchResult struct {
	Query       string                  `json:"query"`
	Results     []*models.ScoredOutlet  `json:"results"`
	Answer      *models.GeneratedAnswer `json:"answer,omitempty"`
	AnswerError string                  `json:"answer_error,omitempty"`
}

// Service ties extraction, storage, indexing and retrieval together
type Service struct {
	outlets     repositories.OutletRepository
	extractor   Extractor
	normalizer  *normalizer.Normalizer
	coordinator *Coordinator
	indexer     Reindexer
	searcher    Searcher
	answerer    Answerer
	logger      *zap.Logger
}

// NewService creates the outlet service
func NewService(
	outlets repositories.OutletRepository,
	extractor Extractor,
	normalizer *normalizer.Normalizer,
	coordinator *Coordinator,
	indexer Reindexer,
	searcher Searcher,
	answerer Answerer,
	logger *zap.Logger,
) *Service {
	return &Service{
		outlets:     outlets,
		extractor:   extractor,
		normalizer:  normalizer,
		coordinator: coordinator,
		indexer:     indexer,
		searcher:    searcher,
		answerer:    answerer,
		logger:      logger,
	}
}

// ScrapeOnly extracts and normalizes outlets for term without storing them
func (s *Service) ScrapeOnly(ctx context.Context, term string) (*ScrapeOnlyResult, error) {
	term, err := cleanTerm(term)
	if err != nil {
		return nil, err
	}

	outlets, dropped, scrapedAt, err := s.scrape(ctx, term)
	if err != nil {
		return nil, err
	}

	return &ScrapeOnlyResult{
		SearchTerm: term,
		Outlets:    outlets,
		Dropped:    dropped,
		ScrapedAt:  scrapedAt,
	}, nil
}

// ScrapeAndSave extracts outlets for term, upserts them and refreshes embeddings.
// An indexing failure does not undo the save; it is reported in the result.
func (s *Service) ScrapeAndSave(ctx context.Context, term string, overwrite bool) (*ScrapeResult, error) {
	term, err := cleanTerm(term)
	if err != nil {
		return nil, err
	}

	outlets, dropped, scrapedAt, err := s.scrape(ctx, term)
	if err != nil {
		return nil, err
	}

	result := &ScrapeResult{
		SearchTerm: term,
		Scraped:    len(outlets),
		Dropped:    dropped,
		ScrapedAt:  scrapedAt,
	}

	upsert, err := s.coordinator.Upsert(ctx, outlets, overwrite)
	result.Upsert = upsert
	if err != nil {
		return result, err
	}

	reindex, err := s.indexer.ReindexStale(ctx)
	result.Reindex = reindex
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		s.logger.Error("reindex after save failed", zap.String("search_term", term), zap.Error(err))
		result.ReindexError = services.GetErrorMessage(err)
	}

	s.logger.Info("scrape saved",
		zap.String("search_term", term),
		zap.Int("scraped", result.Scraped),
		zap.Int("saved", upsert.Saved()),
		zap.Bool("overwrite", overwrite),
	)
	return result, nil
}

func (s *Service) scrape(ctx context.Context, term string) ([]*models.Outlet, int, time.Time, error) {
	raws, err := s.extractor.Extract(ctx, term)
	if err != nil {
		return nil, 0, time.Time{}, err
	}

	scrapedAt := time.Now().UTC()
	outlets, dropped := s.normalizer.NormalizeBatch(raws, term, scrapedAt)
	s.logger.Info("scrape normalized",
		zap.String("search_term", term),
		zap.Int("raw", len(raws)),
		zap.Int("outlets", len(outlets)),
		zap.Int("dropped", len(dropped)),
	)
	return outlets, len(dropped), scrapedAt, nil
}

// List returns a page of stored outlets
func (s *Service) List(ctx context.Context, filter models.OutletFilter, page, perPage int) (*models.OutletList, error) {
	if page < 1 {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "page must be at least 1", nil)
	}
	if perPage < 1 || perPage > MaxPerPage {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "per_page must be between 1 and 100", nil)
	}

	outlets, total, err := s.outlets.List(ctx, filter, perPage, (page-1)*perPage)
	if err != nil {
		return nil, services.WrapStorage("failed to list outlets", err)
	}
	return models.NewOutletList(outlets, total, page, perPage), nil
}

// Get returns one outlet by storage id
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Outlet, error) {
	outlet, err := s.outlets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrOutletNotFound
		}
		return nil, services.WrapStorage("failed to get outlet", err)
	}
	return outlet, nil
}

// DeleteAll removes every stored outlet
func (s *Service) DeleteAll(ctx context.Context) (int64, error) {
	deleted, err := s.outlets.DeleteAll(ctx)
	if err != nil {
		return 0, services.WrapStorage("failed to delete outlets", err)
	}
	s.logger.Warn("all outlets deleted", zap.Int64("deleted", deleted))
	return deleted, nil
}

// Statistics summarises stored outlets
func (s *Service) Statistics(ctx context.Context) (*models.OutletStatistics, error) {
	stats, err := s.outlets.Statistics(ctx)
	if err != nil {
		return nil, services.WrapStorage("failed to compute statistics", err)
	}
	return stats, nil
}

// SearchTerms lists every search term that produced stored outlets
func (s *Service) SearchTerms(ctx context.Context) ([]string, error) {
	terms, err := s.outlets.DistinctSearchTerms(ctx)
	if err != nil {
		return nil, services.WrapStorage("failed to list search terms", err)
	}
	if terms == nil {
		terms = []string{}
	}
	return terms, nil
}

// Search ranks outlets for query. k of 0 uses the answer composer's default.
// With withAnswer the question is screened before any provider call, and a
// generation failure is reported in AnswerError rather than failing the search.
func (s *Service) Search(ctx context.Context, query string, k int, withAnswer bool) (*SearchResult, error) {
	if withAnswer {
		if err := s.answerer.Screen(query); err != nil {
			return nil, err
		}
	}
	if k == 0 {
		k = s.answerer.TopK()
	}

	hits, err := s.searcher.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	result := &SearchResult{Query: query, Results: hits}
	if !withAnswer {
		return result, nil
	}

	answer, err := s.answerer.Generate(ctx, query, hits)
	result.Answer = answer
	if err != nil {
		if !services.IsGenerationUnavailable(err) {
			return nil, err
		}
		result.AnswerError = services.GetErrorMessage(err)
	}
	return result, nil
}

func cleanTerm(term string) (string, error) {
	term = normalizer.Collapse(term)
	if utf8.RuneCountInString(term) > models.MaxSearchTermLength {
		return "", services.NewDomainError(services.ErrorTypeValidation, "search_term must be at most 100 characters", nil).
			WithDetail("field", "search_term")
	}
	return term, nil
}
