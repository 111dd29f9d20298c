package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pdf-rag-service/models"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, "bad_request", message, details)
}

// RespondWithInternalError sends a 500 Internal Server Error
func RespondWithInternalError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, "internal_error", message, details)
}

// RespondWithMappedError translates a retrieval core error into its HTTP
// shape. Transient backend conditions keep their distinct status codes so
// callers know what is safe to retry.
func RespondWithMappedError(c *gin.Context, err error) {
	var partial *models.PartialUpsertError
	var cfgErr *models.ConfigError

	switch {
	case errors.Is(err, models.ErrInvalidInput):
		RespondWithError(c, http.StatusBadRequest, "invalid_input", err.Error(), nil)
	case errors.Is(err, models.ErrSizeLimit):
		RespondWithError(c, http.StatusRequestEntityTooLarge, "size_limit_exceeded", err.Error(), nil)
	case errors.Is(err, models.ErrDocumentParse):
		RespondWithError(c, http.StatusBadRequest, "document_parse_failed", err.Error(), nil)
	case errors.Is(err, models.ErrBackendTimeout):
		RespondWithError(c, http.StatusGatewayTimeout, "backend_timeout", err.Error(),
			gin.H{"retryable": true})
	case errors.Is(err, models.ErrBackendUnavailable):
		RespondWithError(c, http.StatusServiceUnavailable, "backend_unavailable", err.Error(), nil)
	case errors.As(err, &partial):
		RespondWithError(c, http.StatusBadGateway, "partial_upsert", err.Error(),
			gin.H{"failed_chunk_ids": partial.Failed, "succeeded_chunk_ids": partial.Succeeded})
	case errors.As(err, &cfgErr):
		RespondWithInternalError(c, err.Error(), nil)
	default:
		RespondWithInternalError(c, "internal error", nil)
	}
}
