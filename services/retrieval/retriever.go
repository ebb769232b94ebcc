// Package retrieval ranks indexed outlets against a free-text query.
package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/FLAMiNGPHYtON1/outlet-locator/models"
	"github.com/FLAMiNGPHYtON1/outlet-locator/repositories"
	"github.com/FLAMiNGPHYtON1/outlet-locator/services"
)

// QueryEmbedder embeds a query with the model used for indexing
type QueryEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Retriever scores indexed outlets by cosine similarity
type Retriever struct {
	outlets  repositories.OutletRepository
	embedder QueryEmbedder
	logger   *zap.Logger
}

// NewRetriever creates a retriever
func NewRetriever(outlets repositories.OutletRepository, embedder QueryEmbedder, logger *zap.Logger) *Retriever {
	return &Retriever{
		outlets:  outlets,
		embedder: embedder,
		logger:   logger,
	}
}

// Search returns at most k outlets ordered by score descending, then most
// recently scraped, then natural key. Outlets without an embedding are
// never returned.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]*models.ScoredOutlet, error) {
	if k <= 0 {
		return nil, services.NewDomainError(services.ErrorTypeInvalidQuery, "k must be positive", nil).
			WithDetail("k", k)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, services.NewDomainError(services.ErrorTypeInvalidQuery, "query must not be empty", nil)
	}

	queryVector, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, err
	}

	candidates, err := r.outlets.ListIndexed(ctx)
	if err != nil {
		return nil, services.WrapStorage("failed to load indexed outlets", err)
	}

	scored := make([]*models.ScoredOutlet, 0, len(candidates))
	for _, outlet := range candidates {
		if !outlet.IsIndexed() {
			continue
		}
		scored = append(scored, &models.ScoredOutlet{
			Outlet: outlet,
			Score:  CosineSimilarity(queryVector, outlet.Embedding),
		})
	}

	Rank(scored)
	if len(scored) > k {
		scored = scored[:k]
	}

	r.logger.Debug("search completed",
		zap.Int("candidates", len(candidates)),
		zap.Int("returned", len(scored)),
		zap.Int("k", k),
	)
	return scored, nil
}

// Rank sorts hits by score descending, scraped_at descending, natural key ascending
func Rank(hits []*models.ScoredOutlet) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Outlet.ScrapedAt.Equal(b.Outlet.ScrapedAt) {
			return a.Outlet.ScrapedAt.After(b.Outlet.ScrapedAt)
		}
		return a.Outlet.NaturalKey < b.Outlet.NaturalKey
	})
}

// CosineSimilarity returns 0 when the vectors differ in length or either is zero
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
