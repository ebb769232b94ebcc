package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/FLAMiNGPHYtON1/outlet-locator/services"
	"github.com/FLAMiNGPHYtON1/outlet-locator/utils"
)

// StatusForError returns the HTTP status a service error maps to
func StatusForError(err error) int {
	switch {
	case services.IsInvalidQuery(err), services.IsValidationError(err), services.IsMalformedRecord(err):
		return http.StatusBadRequest
	case services.IsNotFoundError(err):
		return http.StatusNotFound
	case services.IsUnauthorizedError(err):
		return http.StatusUnauthorized
	case services.IsForbiddenError(err):
		return http.StatusForbidden
	case services.IsExtractionTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case services.IsEmbedProviderError(err), services.IsGenerationUnavailable(err):
		return http.StatusBadGateway
	case services.IsStorageUnavailable(err), services.IsUnavailableError(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HandleServiceError maps domain errors to HTTP responses. Only the domain
// message reaches the client; wrapped causes are logged.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	status := StatusForError(err)
	message := services.GetErrorMessage(err)
	details := services.GetErrorDetails(err)

	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed",
			zap.Int("status", status),
			zap.String("error_type", string(services.GetErrorType(err))),
			zap.Error(err))
	default:
		logger.Debug("request rejected",
			zap.Int("status", status),
			zap.String("error_type", string(services.GetErrorType(err))),
			zap.Error(err))
	}

	if errors.Is(err, context.DeadlineExceeded) && services.GetErrorType(err) == "" {
		message = "Request timed out"
	}
	if len(details) == 0 {
		details = nil
	}

	if err := utils.WriteError(w, status, message, details); err != nil {
		logger.Error("failed to write error response", zap.Error(err))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var validationErr *utils.ValidationError
	if errors.As(err, &validationErr) {
		if err := utils.WriteBadRequest(w, validationErr.Message, validationErr.Details()); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
