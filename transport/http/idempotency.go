package http

import (
	"bytes"
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/remitgate/core"
	"github.com/layer-3/remitgate/service"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
)

// replayedHeaders are the response headers stored with an idempotent response
var replayedHeaders = []string{"Content-Type", "Location"}

// captureWriter tees the response body so it can be stored for replay
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response for a repeated Idempotency-Key
// and runs the handler at most once per key. Requests without the header
// pass through. Keys are scoped by the authenticated identity and bound to
// the route they were first used on.
func Idempotency(guard *service.IdempotencyGuard, metrics *Metrics, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(headerIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}

		body, _ := c.Get(ctxRawBody)
		raw, _ := body.([]byte)

		route := c.Request.Method + " " + c.FullPath()
		reservation, replay, err := guard.Begin(c.Request.Context(), c.GetString(ctxIdentity), route, key, raw)
		if err != nil {
			if metrics != nil {
				switch {
				case errors.Is(err, core.ErrIdempotencyConflict):
					metrics.idempotencyRejected("conflict")
				case errors.Is(err, core.ErrIdempotencyInFlight):
					metrics.idempotencyRejected("in_flight")
				}
			}
			abortWithError(c, logger, err)
			return
		}

		if replay != nil {
			if metrics != nil {
				metrics.idempotencyReplayed()
			}
			for name, value := range replay.Headers {
				c.Header(name, value)
			}
			c.Header(headerReplayed, "true")
			c.Status(replay.Status)
			_, _ = c.Writer.Write(replay.Body)
			c.Abort()
			return
		}

		capture := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = capture

		completed := false
		defer func() {
			if completed {
				return
			}
			// handler panicked; let the key be retried
			if err := reservation.Abort(c.Request.Context()); err != nil {
				logger.Error("failed to release idempotency key", "key", key, "error", err)
			}
		}()

		c.Next()
		completed = true

		stored := core.StoredResponse{
			Status:  capture.Status(),
			Body:    capture.body.Bytes(),
			Headers: make(map[string]string),
		}
		for _, name := range replayedHeaders {
			if v := capture.Header().Get(name); v != "" {
				stored.Headers[name] = v
			}
		}
		if err := reservation.Finish(c.Request.Context(), stored); err != nil {
			logger.Error("failed to store idempotent response", "key", key, "status", stored.Status, "error", err)
		}
	}
}
