// Package embedding keeps outlet embeddings in step with their descriptive
// fields and embeds free-text queries with the same model.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/FLAMiNGPHYtON1/outlet-locator/models"
	"github.com/FLAMiNGPHYtON1/outlet-locator/repositories"
	"github.com/FLAMiNGPHYtON1/outlet-locator/services"
	"github.com/FLAMiNGPHYtON1/outlet-locator/services/keylock"
	"github.com/FLAMiNGPHYtON1/outlet-locator/services/providers"
)

// Config controls the embedding model and batching
type Config struct {
	Model       string
	Dimensions  int
	BatchSize   int
	Concurrency int

	// PageSize is how many stored outlets ReindexStale loads at a time
	PageSize int
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.PageSize <= 0 {
		c.PageSize = 200
	}
	return c
}

// Indexer computes and stores outlet embeddings
type Indexer struct {
	outlets  repositories.OutletRepository
	embedder providers.Embedder
	cache    Cache
	locks    *keylock.KeyLocker
	config   Config
	logger   *zap.Logger
}

// NewIndexer creates an indexer. locks must be the locker the upsert path uses.
func NewIndexer(
	outlets repositories.OutletRepository,
	embedder providers.Embedder,
	cache Cache,
	locks *keylock.KeyLocker,
	config Config,
	logger *zap.Logger,
) *Indexer {
	if cache == nil {
		cache = NewMemoryCache(0, 0)
	}
	if locks == nil {
		locks = keylock.NewKeyLocker(0)
	}
	return &Indexer{
		outlets:  outlets,
		embedder: embedder,
		cache:    cache,
		locks:    locks,
		config:   config.withDefaults(),
		logger:   logger,
	}
}

// Reindex embeds every outlet whose canonical text changed since it was last
// indexed. Unchanged outlets cost nothing; cached texts cost no provider call.
// A record that cannot be embedded is reported in the result and keeps its
// previous vector. Only storage failures and cancellation abort the pass.
func (ix *Indexer) Reindex(ctx context.Context, outlets []*models.Outlet) (*models.ReindexResult, error) {
	result := &models.ReindexResult{}

	groups := make(map[string][]*models.Outlet)
	texts := make(map[string]string)
	order := make([]string, 0, len(outlets))

	for _, outlet := range outlets {
		if outlet == nil {
			continue
		}
		text := CanonicalText(outlet)
		hash := ContentHash(text)
		if outlet.IsIndexed() && outlet.EmbeddingSourceHash != nil && *outlet.EmbeddingSourceHash == hash {
			result.Skipped++
			continue
		}
		if _, seen := groups[hash]; !seen {
			order = append(order, hash)
			texts[hash] = text
		}
		groups[hash] = append(groups[hash], outlet)
	}

	if len(order) == 0 {
		return result, nil
	}

	misses := make([]string, 0, len(order))
	for _, hash := range order {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		vector, ok := ix.lookup(ctx, hash)
		if !ok {
			misses = append(misses, hash)
			continue
		}
		for _, outlet := range groups[hash] {
			if err := ix.store(ctx, outlet, vector, hash); err != nil {
				if !errors.Is(err, repositories.ErrNotFound) {
					return result, err
				}
				result.Failed++
				result.Failures = append(result.Failures, vanished(outlet))
				continue
			}
			result.CacheHits++
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.config.Concurrency)

	for start := 0; start < len(misses); start += ix.config.BatchSize {
		batch := misses[start:min(start+ix.config.BatchSize, len(misses))]

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			vectors := ix.embedBatch(gctx, batch, texts)
			if err := gctx.Err(); err != nil {
				return err
			}

			for _, hash := range batch {
				vector, ok := vectors[hash]
				if !ok {
					mu.Lock()
					for _, outlet := range groups[hash] {
						result.Failed++
						result.Failures = append(result.Failures, models.RecordOutcome{
							NaturalKey: outlet.NaturalKey,
							Status:     models.RecordFailed,
							Error:      services.ErrEmbedProvider.Message,
						})
					}
					mu.Unlock()
					continue
				}

				ix.remember(gctx, hash, vector)

				for _, outlet := range groups[hash] {
					err := ix.store(gctx, outlet, vector, hash)
					mu.Lock()
					switch {
					case err == nil:
						result.Computed++
					case errors.Is(err, repositories.ErrNotFound):
						result.Failed++
						result.Failures = append(result.Failures, vanished(outlet))
					}
					mu.Unlock()
					if err != nil && !errors.Is(err, repositories.ErrNotFound) {
						return err
					}
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}

	ix.logger.Info("reindex completed",
		zap.Int("computed", result.Computed),
		zap.Int("cache_hits", result.CacheHits),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// ReindexStale walks every stored outlet in natural key order and reindexes
// it. The cursor is the last key seen, so rows inserted during the walk
// cannot shift later pages.
func (ix *Indexer) ReindexStale(ctx context.Context) (*models.ReindexResult, error) {
	total := &models.ReindexResult{}

	afterKey := ""
	for {
		page, err := ix.outlets.ListAfterKey(ctx, afterKey, ix.config.PageSize)
		if err != nil {
			return total, services.WrapStorage("failed to list outlets for reindex", err)
		}
		if len(page) == 0 {
			break
		}

		result, err := ix.Reindex(ctx, page)
		total.Merge(result)
		if err != nil {
			return total, err
		}

		if len(page) < ix.config.PageSize {
			break
		}
		afterKey = page[len(page)-1].NaturalKey
	}

	return total, nil
}

// EmbedText embeds a free-text query with the indexing model, via the cache
func (ix *Indexer) EmbedText(ctx context.Context, text string) ([]float32, error) {
	hash := ContentHash(text)
	if vector, ok := ix.lookup(ctx, hash); ok {
		return vector, nil
	}

	vectors, err := ix.embed(ctx, []string{text})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		ix.logger.Error("query embedding failed", zap.Error(err))
		return nil, services.WrapError(services.ErrorTypeEmbedProvider, "failed to embed query", err)
	}

	ix.remember(ctx, hash, vectors[0])
	return vectors[0], nil
}

// embedBatch returns a vector per hash that could be embedded. When the
// batch call fails each text is retried alone so one bad input does not
// fail its neighbours.
func (ix *Indexer) embedBatch(ctx context.Context, hashes []string, texts map[string]string) map[string][]float32 {
	out := make(map[string][]float32, len(hashes))

	inputs := make([]string, len(hashes))
	for i, hash := range hashes {
		inputs[i] = texts[hash]
	}

	vectors, err := ix.embed(ctx, inputs)
	if err == nil {
		for i, hash := range hashes {
			out[hash] = vectors[i]
		}
		return out
	}
	if ctx.Err() != nil {
		return out
	}

	ix.logger.Warn("embedding batch failed",
		zap.Int("batch_size", len(hashes)),
		zap.Error(err),
	)
	if len(hashes) == 1 {
		return out
	}

	for _, hash := range hashes {
		if ctx.Err() != nil {
			return out
		}
		single, err := ix.embed(ctx, []string{texts[hash]})
		if err != nil {
			ix.logger.Warn("embedding failed",
				zap.String("content_hash", hash),
				zap.Error(err),
			)
			continue
		}
		out[hash] = single[0]
	}
	return out
}

func (ix *Indexer) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	resp, err := ix.embedder.Embed(ctx, &providers.EmbeddingRequest{
		Model:      ix.config.Model,
		Inputs:     inputs,
		Dimensions: ix.config.Dimensions,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Vectors) != len(inputs) {
		return nil, fmt.Errorf("provider returned %d vectors for %d inputs", len(resp.Vectors), len(inputs))
	}
	for i, vector := range resp.Vectors {
		if len(vector) == 0 {
			return nil, fmt.Errorf("provider returned an empty vector at %d", i)
		}
		if ix.config.Dimensions > 0 && len(vector) != ix.config.Dimensions {
			return nil, fmt.Errorf("provider returned %d dimensions, want %d", len(vector), ix.config.Dimensions)
		}
	}
	return resp.Vectors, nil
}

// store writes the vector under the outlet's key lock
func (ix *Indexer) store(ctx context.Context, outlet *models.Outlet, vector []float32, hash string) error {
	unlock := ix.locks.Lock(outlet.NaturalKey)
	defer unlock()

	if err := ix.outlets.UpdateEmbedding(ctx, outlet.ID, vector, hash); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return err
		}
		return services.WrapStorage("failed to store embedding", err)
	}
	outlet.SetEmbedding(vector, hash)
	return nil
}

func (ix *Indexer) lookup(ctx context.Context, hash string) ([]float32, bool) {
	vector, ok, err := ix.cache.Get(ctx, CacheKey(ix.config.Model, ix.config.Dimensions, hash))
	if err != nil {
		ix.logger.Warn("embedding cache read failed", zap.Error(err))
		return nil, false
	}
	if ok && ix.config.Dimensions > 0 && len(vector) != ix.config.Dimensions {
		return nil, false
	}
	return vector, ok
}

func (ix *Indexer) remember(ctx context.Context, hash string, vector []float32) {
	if err := ix.cache.Set(ctx, CacheKey(ix.config.Model, ix.config.Dimensions, hash), vector); err != nil {
		ix.logger.Warn("embedding cache write failed", zap.Error(err))
	}
}

func vanished(outlet *models.Outlet) models.RecordOutcome {
	return models.RecordOutcome{
		NaturalKey: outlet.NaturalKey,
		Status:     models.RecordFailed,
		Error:      "outlet no longer exists",
	}
}
