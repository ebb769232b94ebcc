package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FLAMiNGPHYtON1/outlet-locator/middleware"
	"github.com/FLAMiNGPHYtON1/outlet-locator/models"
	"github.com/FLAMiNGPHYtON1/outlet-locator/services/outlet"
	"github.com/FLAMiNGPHYtON1/outlet-locator/utils"
)

// DefaultSearchTerm is used when a scrape request names no term
const DefaultSearchTerm = "kuala lumpur"

// ScrapeRequest is the body of the scrape endpoints
type ScrapeRequest struct {
	SearchTerm        string `json:"search_term" validate:"max=100"`
	OverwriteExisting bool   `json:"overwrite_existing"`
}

// ScrapeResponse reports a scrape-and-save run
type ScrapeResponse struct {
	Success        bool                   `json:"success"`
	Message        string                 `json:"message"`
	OutletsScraped int                    `json:"outlets_scraped"`
	OutletsSaved   int                    `json:"outlets_saved"`
	Inserted       int                    `json:"inserted"`
	Updated        int                    `json:"updated"`
	Unchanged      int                    `json:"unchanged"`
	Failed         int                    `json:"failed"`
	Dropped        int                    `json:"dropped"`
	Indexed        int                    `json:"indexed"`
	IndexError     string                 `json:"index_error,omitempty"`
	Failures       []models.RecordOutcome `json:"failures,omitempty"`
	SearchTerm     string                 `json:"search_term"`
	ScrapedAt      time.Time              `json:"scraped_at"`
}

// ScrapeOnlyResponse returns scraped outlets without storing them
type ScrapeOnlyResponse struct {
	Success      bool             `json:"success"`
	Message      string           `json:"message"`
	Outlets      []*models.Outlet `json:"outlets"`
	TotalOutlets int              `json:"total_outlets"`
	Dropped      int              `json:"dropped"`
	SearchTerm   string           `json:"search_term"`
}

// DeleteResponse reports a bulk delete
type DeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Deleted int64  `json:"deleted"`
}

// OutletService is the subset of the outlet service the outlet routes use
type OutletService interface {
	ScrapeOnly(ctx context.Context, term string) (*outlet.ScrapeOnlyResult, error)
	ScrapeAndSave(ctx context.Context, term string, overwrite bool) (*outlet.ScrapeResult, error)
	List(ctx context.Context, filter models.OutletFilter, page, perPage int) (*models.OutletList, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Outlet, error)
	DeleteAll(ctx context.Context) (int64, error)
	Statistics(ctx context.Context) (*models.OutletStatistics, error)
	SearchTerms(ctx context.Context) ([]string, error)
}

// OutletHandler handles outlet-related HTTP requests
type OutletHandler struct {
	service OutletService
	logger  *zap.Logger
}

// NewOutletHandler creates a new OutletHandler
func NewOutletHandler(service OutletService, logger *zap.Logger) *OutletHandler {
	return &OutletHandler{
		service: service,
		logger:  logger,
	}
}

// HandleScrape handles POST /api/v1/scrape-outlets
func (h *OutletHandler) HandleScrape(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	req, ok := h.decodeScrapeRequest(w, r)
	if !ok {
		return
	}

	result, err := h.service.ScrapeOnly(ctx, req.SearchTerm)
	if err != nil {
		h.logger.Warn("scrape failed",
			zap.String("request_id", requestID),
			zap.String("search_term", req.SearchTerm),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, ScrapeOnlyResponse{
		Success:      true,
		Message:      fmt.Sprintf("Scraped %d outlets", len(result.Outlets)),
		Outlets:      result.Outlets,
		TotalOutlets: len(result.Outlets),
		Dropped:      result.Dropped,
		SearchTerm:   result.SearchTerm,
	})
}

// HandleSave handles POST /api/v1/save-outlets
func (h *OutletHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	req, ok := h.decodeScrapeRequest(w, r)
	if !ok {
		return
	}

	result, err := h.service.ScrapeAndSave(ctx, req.SearchTerm, req.OverwriteExisting)
	if err != nil {
		h.logger.Warn("scrape and save failed",
			zap.String("request_id", requestID),
			zap.String("search_term", req.SearchTerm),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, scrapeToResponse(result))
}

func (h *OutletHandler) decodeScrapeRequest(w http.ResponseWriter, r *http.Request) (*ScrapeRequest, bool) {
	req := &ScrapeRequest{SearchTerm: DefaultSearchTerm}
	if err := utils.DecodeJSON(w, r, req); err != nil {
		HandleValidationError(w, err, h.logger)
		return nil, false
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return nil, false
	}
	return req, true
}

// HandleList handles GET /api/v1/outlets
func (h *OutletHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	page, err := utils.ParseIntParam(query.Get("page"), "page", 1, 1, 0)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), map[string]interface{}{"field": "page"})
		return
	}
	perPage, err := utils.ParseIntParam(query.Get("per_page"), "per_page", 10, 1, outlet.MaxPerPage)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), map[string]interface{}{"field": "per_page"})
		return
	}

	filter := models.OutletFilter{SearchTerm: query.Get("search_term")}
	list, err := h.service.List(ctx, filter, page, perPage)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, list)
}

// HandleGet handles GET /api/v1/outlets/{id}
func (h *OutletHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := utils.ValidateUUID(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid outlet ID format", nil)
		return
	}

	found, err := h.service.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, found)
}

// HandleDeleteAll handles DELETE /api/v1/outlets
func (h *OutletHandler) HandleDeleteAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	deleted, err := h.service.DeleteAll(ctx)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("outlets deleted",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.Int64("deleted", deleted))

	_ = utils.WriteOK(w, DeleteResponse{
		Success: true,
		Message: fmt.Sprintf("Deleted %d outlets", deleted),
		Deleted: deleted,
	})
}

// HandleStats handles GET /api/v1/outlets/stats
func (h *OutletHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Statistics(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, stats)
}

// HandleSearchTerms handles GET /api/v1/outlets/search-terms
func (h *OutletHandler) HandleSearchTerms(w http.ResponseWriter, r *http.Request) {
	terms, err := h.service.SearchTerms(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, map[string]interface{}{
		"search_terms": terms,
		"total":        len(terms),
	})
}

func scrapeToResponse(result *outlet.ScrapeResult) ScrapeResponse {
	resp := ScrapeResponse{
		Success:        true,
		OutletsScraped: result.Scraped,
		Dropped:        result.Dropped,
		IndexError:     result.ReindexError,
		SearchTerm:     result.SearchTerm,
		ScrapedAt:      result.ScrapedAt,
	}
	if u := result.Upsert; u != nil {
		resp.OutletsSaved = u.Saved()
		resp.Inserted = u.Inserted
		resp.Updated = u.Updated
		resp.Unchanged = u.Unchanged
		resp.Failed = u.Failed
		for _, o := range u.Outcomes {
			if o.Status == models.RecordFailed {
				resp.Failures = append(resp.Failures, o)
			}
		}
	}
	if result.Reindex != nil {
		resp.Indexed = result.Reindex.Indexed()
	}
	resp.Message = fmt.Sprintf("Scraped %d outlets, saved %d", resp.OutletsScraped, resp.OutletsSaved)
	return resp
}
