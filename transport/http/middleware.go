package http

import (
	"bytes"
	"crypto/subtle"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/layer-3/remitgate/core"
	"github.com/layer-3/remitgate/service"
)

const (
	headerRequestID  = "X-Request-Id"
	headerE2EBypass  = "X-E2E-Bypass"
	headerE2EID      = "X-E2E-Identity"
	headerRetryAfter = "Retry-After"

	ctxRequestID = "request_id"
	ctxPreflight = "preflight_status"
	ctxRawBody   = "raw_body"
	ctxIdentity  = "identity"
	ctxSession   = "session"
)

func requestID(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}

// RequestID tags every request with a correlation id, reusing a sane
// client supplied X-Request-Id.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.New().String()
		}
		c.Set(ctxRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// AccessLog writes one structured line per request and records metrics
func AccessLog(logger *slog.Logger, metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)
		status := c.Writer.Status()

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.LogAttrs(c.Request.Context(), level, "request completed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Duration("duration", elapsed),
			slog.String("request_id", requestID(c)),
			slog.String("client_ip", c.ClientIP()),
		)
		if metrics != nil {
			metrics.observeRequest(c.Request.Method, c.FullPath(), status, elapsed)
		}
	}
}

// Recovery turns panics into a logged 500
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("panic while serving request",
					"panic", rec,
					"path", c.Request.URL.Path,
					"request_id", requestID(c),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":   string(core.KindInternal),
					"message": "internal server error",
				})
			}
		}()
		c.Next()
	}
}

// CORS grants cross-origin access to the configured origins only. It
// stamps the CORS headers and decides preflights; Preflight answers them
// once the rate limiter has run, so every response carries both.
func CORS(allowed []string) gin.HandlerFunc {
	origins := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		origins[strings.TrimRight(o, "/")] = struct{}{}
	}
	exposed := strings.Join([]string{
		headerRequestID, headerRetryAfter, headerReplayed,
		"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset",
	}, ", ")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		_, ok := origins[origin]
		preflight := c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != ""
		if !ok {
			if preflight {
				c.Set(ctxPreflight, http.StatusForbidden)
			}
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Add("Vary", "Origin")
		h.Set("Access-Control-Expose-Headers", exposed)

		if preflight {
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key, X-Request-Id")
			h.Set("Access-Control-Max-Age", "600")
			c.Set(ctxPreflight, http.StatusNoContent)
		}
		c.Next()
	}
}

// Preflight ends the preflight requests CORS decided on: 204 for allowed
// origins, 403 for the rest.
func Preflight() gin.HandlerFunc {
	return func(c *gin.Context) {
		if status := c.GetInt(ctxPreflight); status != 0 {
			c.AbortWithStatus(status)
			return
		}
		c.Next()
	}
}

// BodyLimit rejects bodies larger than max bytes with 413 and buffers the
// rest so later middleware can read it again.
func BodyLimit(max int64, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > max {
			abortWithError(c, logger, core.ErrPayloadTooLarge)
			return
		}
		if c.Request.Body == nil || c.Request.Body == http.NoBody {
			c.Set(ctxRawBody, []byte(nil))
			c.Next()
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, max+1))
		_ = c.Request.Body.Close()
		if err != nil {
			abortWithError(c, logger, core.ErrMalformedBody)
			return
		}
		if int64(len(body)) > max {
			abortWithError(c, logger, core.ErrPayloadTooLarge)
			return
		}

		c.Set(ctxRawBody, body)
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}

// e2eBypass reports whether the request carries the test bypass token
func e2eBypass(c *gin.Context, token string) bool {
	if token == "" {
		return false
	}
	got := c.GetHeader(headerE2EBypass)
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}

// RateLimit admits requests per client IP and category. Every response
// carries the X-RateLimit headers; rejected ones add Retry-After.
// Requests with the test bypass are not counted. An empty bypassToken
// disables the bypass.
func RateLimit(limiter *service.RateLimiter, bypassToken string, metrics *Metrics, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		category := service.Classify(c.Request.Method, c.Request.URL.Path)
		if e2eBypass(c, bypassToken) {
			setRateLimitHeaders(c, limiter.Unmetered(category))
			c.Next()
			return
		}

		decision := limiter.Admit(c.Request.Context(), c.ClientIP(), category)
		setRateLimitHeaders(c, decision)

		if !decision.Allowed {
			if metrics != nil {
				metrics.rateLimitDenied(category)
			}
			c.Header(headerRetryAfter, strconv.Itoa(decision.RetryAfterSeconds()))
			abortWithError(c, logger, core.ErrRateLimited)
			return
		}
		c.Next()
	}
}

func setRateLimitHeaders(c *gin.Context, decision core.RateDecision) {
	h := c.Writer.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
}

// RequireAdmin allows only the listed canonical identities through. It
// must run after Authenticate.
func RequireAdmin(admins []string, logger *slog.Logger) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(admins))
	for _, a := range admins {
		allowed[a] = struct{}{}
	}
	return func(c *gin.Context) {
		identity := c.GetString(ctxIdentity)
		if _, ok := allowed[identity]; !ok || identity == "" {
			logger.Warn("admin access denied", "identity", core.TruncateIdentity(identity))
			abortWithError(c, logger, core.ErrForbidden)
			return
		}
		c.Next()
	}
}
