package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeExtractionTimeout     ErrorType = "extraction_timeout"
	ErrorTypeMalformedRecord       ErrorType = "malformed_record"
	ErrorTypeEmbedProvider         ErrorType = "embed_provider_error"
	ErrorTypeGenerationUnavailable ErrorType = "generation_unavailable"
	ErrorTypeInvalidQuery          ErrorType = "invalid_query"
	ErrorTypeStorageUnavailable    ErrorType = "storage_unavailable"
	ErrorTypeNotFound              ErrorType = "not_found"
	ErrorTypeValidation            ErrorType = "validation"
	ErrorTypeUnauthorized          ErrorType = "unauthorized"
	ErrorTypeForbidden             ErrorType = "forbidden"
	ErrorTypeUnavailable           ErrorType = "unavailable"
	ErrorTypeInternal              ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError of the same type
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables. Match with errors.Is; compare by type only.
var (
	ErrExtractionTimeout     = NewDomainError(ErrorTypeExtractionTimeout, "outlet listing could not be loaded", nil)
	ErrMalformedRecord       = NewDomainError(ErrorTypeMalformedRecord, "malformed outlet record", nil)
	ErrEmbedProvider         = NewDomainError(ErrorTypeEmbedProvider, "embedding provider error", nil)
	ErrGenerationUnavailable = NewDomainError(ErrorTypeGenerationUnavailable, "answer generation unavailable", nil)
	ErrInvalidQuery          = NewDomainError(ErrorTypeInvalidQuery, "invalid query", nil)
	ErrStorageUnavailable    = NewDomainError(ErrorTypeStorageUnavailable, "outlet storage unavailable", nil)

	ErrOutletNotFound = NewDomainError(ErrorTypeNotFound, "outlet not found", nil)
	ErrJobNotFound    = NewDomainError(ErrorTypeNotFound, "rescrape job not found", nil)
	ErrInvalidInput   = NewDomainError(ErrorTypeValidation, "invalid input", nil)

	ErrUnauthorized = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrInvalidToken = NewDomainError(ErrorTypeUnauthorized, "invalid authentication token", nil)
	ErrForbidden    = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)

	ErrQueueFull    = NewDomainError(ErrorTypeUnavailable, "rescrape queue is full", nil)
	ErrQueueStopped = NewDomainError(ErrorTypeUnavailable, "rescrape queue is not running", nil)

	ErrInternal = NewDomainError(ErrorTypeInternal, "internal server error", nil)
)

// Error type checking helper functions

func isType(err error, errType ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == errType
	}
	return false
}

// IsExtractionTimeout checks if an error is an extraction timeout
func IsExtractionTimeout(err error) bool { return isType(err, ErrorTypeExtractionTimeout) }

// IsMalformedRecord checks if an error is a malformed record error
func IsMalformedRecord(err error) bool { return isType(err, ErrorTypeMalformedRecord) }

// IsEmbedProviderError checks if an error came from the embedding provider
func IsEmbedProviderError(err error) bool { return isType(err, ErrorTypeEmbedProvider) }

// IsGenerationUnavailable checks if an error came from the generation provider
func IsGenerationUnavailable(err error) bool { return isType(err, ErrorTypeGenerationUnavailable) }

// IsInvalidQuery checks if an error is a caller query error
func IsInvalidQuery(err error) bool { return isType(err, ErrorTypeInvalidQuery) }

// IsStorageUnavailable checks if an error is a storage failure
func IsStorageUnavailable(err error) bool { return isType(err, ErrorTypeStorageUnavailable) }

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool { return isType(err, ErrorTypeNotFound) }

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool { return isType(err, ErrorTypeValidation) }

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool { return isType(err, ErrorTypeUnauthorized) }

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool { return isType(err, ErrorTypeForbidden) }

// IsUnavailableError checks if an error reports a temporarily unavailable service
func IsUnavailableError(err error) bool { return isType(err, ErrorTypeUnavailable) }

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool { return isType(err, ErrorTypeInternal) }

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// GetErrorMessage returns the caller-safe message of a domain error.
// Wrapped causes are never included.
func GetErrorMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return ErrInternal.Message
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapStorage wraps a repository failure as StorageUnavailable.
// Errors that already carry a domain type are returned unchanged.
func WrapStorage(message string, err error) error {
	if err == nil {
		return nil
	}
	if GetErrorType(err) != "" {
		return err
	}
	return NewDomainError(ErrorTypeStorageUnavailable, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
