package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/remitgate/core"
)

// statusFor maps an error kind to its HTTP status
func statusFor(kind core.Kind) int {
	switch kind {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindAuthentication:
		return http.StatusUnauthorized
	case core.KindForbidden:
		return http.StatusForbidden
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict:
		return http.StatusConflict
	case core.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case core.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes the {error, message} body for err and stops the chain.
// Unclassified errors are logged and hidden from the client.
func abortWithError(c *gin.Context, logger *slog.Logger, err error) {
	kind := core.KindOf(err)
	if kind == core.KindInternal || kind == core.KindConfiguration {
		logger.Error("request failed",
			"error", err,
			"path", c.Request.URL.Path,
			"request_id", requestID(c),
		)
		kind = core.KindInternal
	}
	c.AbortWithStatusJSON(statusFor(kind), gin.H{
		"error":   string(kind),
		"message": core.PublicMessage(err),
	})
}
