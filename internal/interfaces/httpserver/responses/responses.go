// Package responses contains HTTP response DTOs and error helpers for the
// groupchat-api.
package responses

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"collab-server/services/groupchat-api/internal/utils/platformerrors"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error *ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// HandleError writes err as a platform error response. Errors that are not
// platform errors become a generic 500.
func HandleError(c *gin.Context, err error, message string) {
	logger := log.With().Str("path", c.Request.URL.Path).Str("context", message).Logger()
	platformerrors.WriteError(c, err, logger)
}

// HandleNewError creates and writes a new typed error response.
// Use this for route-level errors like malformed ids or bodies.
func HandleNewError(c *gin.Context, errorType platformerrors.ErrorType, message, code string) {
	perr := platformerrors.NewError(c.Request.Context(), platformerrors.LayerHandler, errorType, message, nil, code)
	platformerrors.WriteHTTPError(c, perr, log.Logger)
}
