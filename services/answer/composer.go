// Package answer turns retrieved outlets into a grounded natural-language reply.
package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/FLAMiNGPHYtON1/outlet-locator/internal/prompt"
	"github.com/FLAMiNGPHYtON1/outlet-locator/models"
	"github.com/FLAMiNGPHYtON1/outlet-locator/services"
	"github.com/FLAMiNGPHYtON1/outlet-locator/services/providers"
)

// NoResultsMarker is the whole grounding context when retrieval finds nothing
const NoResultsMarker = "No matching outlets found."

const systemPreamble = "You are a helpful assistant for finding McDonald's outlet information. " +
	"Answer the user's question using only the outlet information below. " +
	"If it does not contain the answer, say that you could not find a matching outlet."

// Searcher retrieves outlets for a query
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]*models.ScoredOutlet, error)
}

// Config holds generation settings
type Config struct {
	Model          string
	Temperature    float64
	MaxTokens      int
	TopK           int
	GuardThreshold float64
}

// Composer grounds a chat completion in retrieved outlets
type Composer struct {
	searcher Searcher
	chat     providers.ChatProvider
	guard    *prompt.Guard
	config   Config
	logger   *zap.Logger
}

// NewComposer creates a composer
func NewComposer(searcher Searcher, chat providers.ChatProvider, config Config, logger *zap.Logger) *Composer {
	if config.TopK <= 0 {
		config.TopK = 5
	}
	return &Composer{
		searcher: searcher,
		chat:     chat,
		guard:    prompt.NewGuard(config.GuardThreshold),
		config:   config,
		logger:   logger,
	}
}

// TopK is the number of outlets Answer grounds on
func (c *Composer) TopK() int {
	return c.config.TopK
}

// Screen rejects questions that try to subvert the assistant
func (c *Composer) Screen(query string) error {
	if err := c.guard.Check(query); err != nil {
		c.logger.Warn("question rejected by prompt guard", zap.Error(err))
		return services.NewDomainError(services.ErrorTypeInvalidQuery, "question was rejected", err)
	}
	return nil
}

// Answer retrieves the top outlets for query and generates a reply from them.
// Retrieval errors are returned unchanged. When generation fails the answer
// still carries its grounding records and the error is GenerationUnavailable.
func (c *Composer) Answer(ctx context.Context, query string) (*models.GeneratedAnswer, error) {
	if err := c.Screen(query); err != nil {
		return nil, err
	}

	hits, err := c.searcher.Search(ctx, query, c.config.TopK)
	if err != nil {
		return nil, err
	}

	return c.Generate(ctx, query, hits)
}

// Generate produces a reply grounded in hits, which may be empty
func (c *Composer) Generate(ctx context.Context, query string, hits []*models.ScoredOutlet) (*models.GeneratedAnswer, error) {
	if hits == nil {
		hits = []*models.ScoredOutlet{}
	}
	answer := &models.GeneratedAnswer{
		GroundingRecords: hits,
		Model:            c.config.Model,
	}

	resp, err := c.chat.ChatCompletion(ctx, &providers.ChatRequest{
		Model: c.config.Model,
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: systemPreamble + "\n\nRelevant outlet information:\n" + BuildContext(hits)},
			{Role: providers.RoleUser, Content: "Here is my question: " + prompt.Neutralize(query)},
		},
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	})
	if err == nil && strings.TrimSpace(resp.Content()) == "" {
		err = fmt.Errorf("empty completion")
	}
	if err != nil {
		c.logger.Error("answer generation failed",
			zap.Int("grounding_records", len(hits)),
			zap.Error(err),
		)
		return answer, services.WrapError(services.ErrorTypeGenerationUnavailable, "answer generation unavailable", err)
	}

	answer.Text = strings.TrimSpace(resp.Content())
	answer.GeneratedAt = time.Now().UTC()
	if resp.Model != "" {
		answer.Model = resp.Model
	}

	c.logger.Info("answer generated",
		zap.Int("grounding_records", len(hits)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return answer, nil
}

// BuildContext renders hits as a numbered list of labelled fields
func BuildContext(hits []*models.ScoredOutlet) string {
	if len(hits) == 0 {
		return NoResultsMarker
	}

	var b strings.Builder
	for i, hit := range hits {
		o := hit.Outlet
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. Name: %s\n", i+1, o.Name)
		fmt.Fprintf(&b, "   Address: %s\n", o.Address)
		writeOptional(&b, "Hours", o.OperatingHours)
		writeOptional(&b, "Services", o.Attribute)
		writeOptional(&b, "Telephone", o.Telephone)
		if o.HasCoordinates() {
			fmt.Fprintf(&b, "   Coordinates: %.6f, %.6f\n", *o.Latitude, *o.Longitude)
		}
		writeOptional(&b, "Navigation", o.WazeLink)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeOptional(b *strings.Builder, label string, value *string) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return
	}
	fmt.Fprintf(b, "   %s: %s\n", label, *value)
}
