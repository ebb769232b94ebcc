package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FLAMiNGPHYtON1/outlet-locator/middleware"
	"github.com/FLAMiNGPHYtON1/outlet-locator/models"
	"github.com/FLAMiNGPHYtON1/outlet-locator/services/rescrape"
	"github.com/FLAMiNGPHYtON1/outlet-locator/utils"
)

// RescrapeQueue is the background re-scrape queue
type RescrapeQueue interface {
	EnqueueAll(ctx context.Context) (*models.RescrapeJob, error)
	Job(id uuid.UUID) (*models.RescrapeJob, error)
	Stats() rescrape.Stats
}

// Reindexer refreshes stale embeddings across the store
type Reindexer interface {
	ReindexStale(ctx context.Context) (*models.ReindexResult, error)
}

// RescrapeHandler handles re-scrape and reindex requests
type RescrapeHandler struct {
	queue   RescrapeQueue
	indexer Reindexer
	logger  *zap.Logger
}

// NewRescrapeHandler creates a new RescrapeHandler
func NewRescrapeHandler(queue RescrapeQueue, indexer Reindexer, logger *zap.Logger) *RescrapeHandler {
	return &RescrapeHandler{
		queue:   queue,
		indexer: indexer,
		logger:  logger,
	}
}

// HandleRescrapeAll handles POST /api/v1/scrape/rescrape-all.
// The job runs in the background; its id is returned with 202.
func (h *RescrapeHandler) HandleRescrapeAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	job, err := h.queue.EnqueueAll(ctx)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("rescrape job queued",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.String("job_id", job.ID.String()),
		zap.Int("terms", len(job.Tasks)))

	_ = utils.WriteAccepted(w, job, fmt.Sprintf("Re-scrape of %d search terms queued", len(job.Tasks)))
}

// HandleGetJob handles GET /api/v1/scrape/jobs/{id}
func (h *RescrapeHandler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := utils.ValidateUUID(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid job ID format", nil)
		return
	}

	job, err := h.queue.Job(id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, job)
}

// HandleStats handles GET /api/v1/scrape/jobs/stats
func (h *RescrapeHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.queue.Stats())
}

// HandleReindex handles POST /api/v1/reindex
func (h *RescrapeHandler) HandleReindex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.indexer.ReindexStale(ctx)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("reindex requested",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.Int("indexed", result.Indexed()),
		zap.Int("failed", result.Failed))

	_ = utils.WriteOK(w, result)
}
