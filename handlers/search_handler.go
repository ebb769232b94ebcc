package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/FLAMiNGPHYtON1/outlet-locator/middleware"
	"github.com/FLAMiNGPHYtON1/outlet-locator/models"
	"github.com/FLAMiNGPHYtON1/outlet-locator/services/outlet"
	"github.com/FLAMiNGPHYtON1/outlet-locator/utils"
)

// SearchRequest is the body of POST /api/v1/search
type SearchRequest struct {
	Query string `json:"query" validate:"required,notblank,max=500"`
	TopK  int    `json:"top_k" validate:"gte=0,lte=20"`

	// IncludeAnswer defaults to true when omitted
	IncludeAnswer *bool `json:"include_answer,omitempty"`
}

// SearchResponse carries ranked outlets and the generated answer
type SearchResponse struct {
	Query       string                 `json:"query"`
	Response    string                 `json:"response,omitempty"`
	Results     []*models.ScoredOutlet `json:"results"`
	AnswerError string                 `json:"answer_error,omitempty"`
}

// Searcher runs semantic search with an optional generated answer
type Searcher interface {
	Search(ctx context.Context, query string, k int, withAnswer bool) (*outlet.SearchResult, error)
}

// SearchHandler handles natural-language outlet search
type SearchHandler struct {
	searcher Searcher
	logger   *zap.Logger
}

// NewSearchHandler creates a new SearchHandler
func NewSearchHandler(searcher Searcher, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{
		searcher: searcher,
		logger:   logger,
	}
}

// HandleSearch handles POST /api/v1/search
func (h *SearchHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var req SearchRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	withAnswer := req.IncludeAnswer == nil || *req.IncludeAnswer

	result, err := h.searcher.Search(ctx, req.Query, req.TopK, withAnswer)
	if err != nil {
		h.logger.Warn("search failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Debug("search completed",
		zap.String("request_id", requestID),
		zap.Int("results", len(result.Results)),
		zap.Bool("with_answer", withAnswer))

	_ = utils.WriteOK(w, searchToResponse(result))
}

func searchToResponse(result *outlet.SearchResult) SearchResponse {
	resp := SearchResponse{
		Query:       result.Query,
		Results:     result.Results,
		AnswerError: result.AnswerError,
	}
	if resp.Results == nil {
		resp.Results = []*models.ScoredOutlet{}
	}
	if result.Answer != nil {
		resp.Response = result.Answer.Text
	}
	return resp
}
