// Package memory is a process-local outlet store for development and tests.
// It offers no durability and transactions are not isolated.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FLAMiNGPHYtON1/outlet-locator/models"
	"github.com/FLAMiNGPHYtON1/outlet-locator/repositories"
)

// OutletRepository keeps outlets in a map keyed by natural key
type OutletRepository struct {
	mu      sync.RWMutex
	byKey   map[string]*models.Outlet
	byID    map[uuid.UUID]string
	failErr error
}

// NewOutletRepository creates an empty store
func NewOutletRepository() *OutletRepository {
	return &OutletRepository{
		byKey: make(map[string]*models.Outlet),
		byID:  make(map[uuid.UUID]string),
	}
}

// FailWith makes every subsequent call return err until cleared with nil
func (r *OutletRepository) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failErr = err
}

// FindByKey returns a copy of the outlet with the given natural key
func (r *OutletRepository) FindByKey(_ context.Context, naturalKey string) (*models.Outlet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.failErr != nil {
		return nil, r.failErr
	}

	outlet, ok := r.byKey[naturalKey]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return clone(outlet), nil
}

// FindByKeyForUpdate behaves like FindByKey; callers serialise with a key lock
func (r *OutletRepository) FindByKeyForUpdate(ctx context.Context, naturalKey string) (*models.Outlet, error) {
	return r.FindByKey(ctx, naturalKey)
}

// GetByID returns a copy of the outlet with the given id
func (r *OutletRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Outlet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.failErr != nil {
		return nil, r.failErr
	}

	key, ok := r.byID[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return clone(r.byKey[key]), nil
}

// Insert stores outlet unless its natural key exists
func (r *OutletRepository) Insert(_ context.Context, outlet *models.Outlet) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return false, r.failErr
	}

	if _, exists := r.byKey[outlet.NaturalKey]; exists {
		return false, nil
	}
	if outlet.ID == uuid.Nil {
		outlet.ID = uuid.New()
	}
	r.byKey[outlet.NaturalKey] = clone(outlet)
	r.byID[outlet.ID] = outlet.NaturalKey
	return true, nil
}

// Replace overwrites the descriptive fields and timestamps of an existing outlet
func (r *OutletRepository) Replace(_ context.Context, outlet *models.Outlet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}

	stored, ok := r.byKey[outlet.NaturalKey]
	if !ok {
		return repositories.ErrNotFound
	}
	stored.ReplaceDescriptive(outlet)
	stored.UpdatedAt = outlet.UpdatedAt
	stored.ScrapedAt = outlet.ScrapedAt
	return nil
}

// TouchScrapedAt records a fresh sighting without changing content
func (r *OutletRepository) TouchScrapedAt(_ context.Context, naturalKey string, scrapedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}

	stored, ok := r.byKey[naturalKey]
	if !ok {
		return repositories.ErrNotFound
	}
	stored.ScrapedAt = scrapedAt
	return nil
}

// UpdateEmbedding stores a vector and the hash of the text it was computed from
func (r *OutletRepository) UpdateEmbedding(_ context.Context, id uuid.UUID, embedding []float32, sourceHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}

	key, ok := r.byID[id]
	if !ok {
		return repositories.ErrNotFound
	}
	vector := make([]float32, len(embedding))
	copy(vector, embedding)
	r.byKey[key].SetEmbedding(vector, sourceHash)
	return nil
}

// List returns outlets whose search term contains filter.SearchTerm, newest first
func (r *OutletRepository) List(_ context.Context, filter models.OutletFilter, limit, offset int) ([]*models.Outlet, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.failErr != nil {
		return nil, 0, r.failErr
	}

	needle := strings.ToLower(filter.SearchTerm)
	matched := make([]*models.Outlet, 0)
	for _, outlet := range r.byKey {
		if needle == "" || strings.Contains(strings.ToLower(outlet.SearchTerm), needle) {
			matched = append(matched, outlet)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].NaturalKey < matched[j].NaturalKey
	})

	total := len(matched)
	if offset >= total {
		return []*models.Outlet{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}

	page := make([]*models.Outlet, 0, end-offset)
	for _, outlet := range matched[offset:end] {
		page = append(page, clone(outlet))
	}
	return page, total, nil
}

// ListAfterKey returns up to limit outlets keyed after afterKey, in key order
func (r *OutletRepository) ListAfterKey(_ context.Context, afterKey string, limit int) ([]*models.Outlet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.failErr != nil {
		return nil, r.failErr
	}

	keys := make([]string, 0, len(r.byKey))
	for key := range r.byKey {
		if key > afterKey {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	page := make([]*models.Outlet, 0, len(keys))
	for _, key := range keys {
		page = append(page, clone(r.byKey[key]))
	}
	return page, nil
}

// ListIndexed returns every outlet that carries an embedding
func (r *OutletRepository) ListIndexed(_ context.Context) ([]*models.Outlet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.failErr != nil {
		return nil, r.failErr
	}

	indexed := make([]*models.Outlet, 0)
	for _, outlet := range r.byKey {
		if outlet.IsIndexed() {
			indexed = append(indexed, clone(outlet))
		}
	}
	return indexed, nil
}

// DeleteAll removes every outlet
func (r *OutletRepository) DeleteAll(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return 0, r.failErr
	}

	n := int64(len(r.byKey))
	r.byKey = make(map[string]*models.Outlet)
	r.byID = make(map[uuid.UUID]string)
	return n, nil
}

// DistinctSearchTerms returns the non-empty search terms in ascending order
func (r *OutletRepository) DistinctSearchTerms(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.failErr != nil {
		return nil, r.failErr
	}

	seen := make(map[string]struct{})
	terms := make([]string, 0)
	for _, outlet := range r.byKey {
		if outlet.SearchTerm == "" {
			continue
		}
		if _, ok := seen[outlet.SearchTerm]; ok {
			continue
		}
		seen[outlet.SearchTerm] = struct{}{}
		terms = append(terms, outlet.SearchTerm)
	}
	sort.Strings(terms)
	return terms, nil
}

// Statistics summarises the stored outlets
func (r *OutletRepository) Statistics(_ context.Context) (*models.OutletStatistics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.failErr != nil {
		return nil, r.failErr
	}

	stats := &models.OutletStatistics{BySearchTerm: make(map[string]int)}
	for _, outlet := range r.byKey {
		stats.TotalOutlets++
		if outlet.IsIndexed() {
			stats.IndexedOutlets++
		}
		stats.BySearchTerm[outlet.SearchTerm]++
		if stats.LastScrapedAt == nil || outlet.ScrapedAt.After(*stats.LastScrapedAt) {
			scrapedAt := outlet.ScrapedAt
			stats.LastScrapedAt = &scrapedAt
		}
	}
	return stats, nil
}

func clone(o *models.Outlet) *models.Outlet {
	c := *o
	if o.Embedding != nil {
		c.Embedding = make([]float32, len(o.Embedding))
		copy(c.Embedding, o.Embedding)
	}
	c.OperatingHours = cloneString(o.OperatingHours)
	c.WazeLink = cloneString(o.WazeLink)
	c.Telephone = cloneString(o.Telephone)
	c.Attribute = cloneString(o.Attribute)
	c.EmbeddingSourceHash = cloneString(o.EmbeddingSourceHash)
	c.Latitude = cloneFloat(o.Latitude)
	c.Longitude = cloneFloat(o.Longitude)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
