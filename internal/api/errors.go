package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"repohub-backend-go/internal/core"
)

// statusFor classifies a service error. Unknown errors are internal.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrLockTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrUpstreamEngine):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondError maps err to a status code and writes an ErrorResponse. Internal errors are
// logged and their details withheld from the client.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusInternalServerError:
		logger.Error("Internal Server Error",
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
			zap.Error(err),
		)
		c.JSON(status, ErrorResponse{Error: "An unexpected internal server error occurred."})
		return
	case http.StatusServiceUnavailable:
		logger.Warn("Repository busy", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.Header("Retry-After", "1")
	}
	c.JSON(status, ErrorResponse{Error: http.StatusText(status), Details: err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
}
