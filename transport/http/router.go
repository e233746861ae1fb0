package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/remitgate/core"
	"github.com/layer-3/remitgate/ports"
	"github.com/layer-3/remitgate/service"
)

// DefaultMaxBodyBytes bounds request bodies when no limit is configured
const DefaultMaxBodyBytes = 1 << 20

// RouterConfig wires the services behind the HTTP API
type RouterConfig struct {
	Auth        *service.AuthService
	Sessions    *service.SessionManager
	Verifier    ports.SignatureVerifier
	Transfers   *service.TransferService
	Limiter     *service.RateLimiter
	Idempotency *service.IdempotencyGuard
	Audit       *service.AuditLog
	Caches      *service.CacheRegistry
	Metrics     *Metrics
	Logger      *slog.Logger

	AllowedOrigins []string
	MaxBodyBytes   int64
	Production     bool
	E2EToken       string   // ignored in production
	Admins         []string // wallet identities allowed on /admin
	TrustedProxies []string
}

// SetupRouter sets up the Gin router
func SetupRouter(cfg RouterConfig) (*gin.Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	bypass := cfg.E2EToken
	if cfg.Production {
		bypass = ""
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	router.Use(
		RequestID(),
		AccessLog(logger, cfg.Metrics),
		Recovery(logger),
		CORS(cfg.AllowedOrigins),
		RateLimit(cfg.Limiter, bypass, cfg.Metrics, logger),
		Preflight(),
		BodyLimit(cfg.MaxBodyBytes, logger),
	)
	router.NoRoute(func(c *gin.Context) {
		abortWithError(c, logger, core.ErrNotFound)
	})

	strategies := []AuthStrategy{BearerStrategy{Auth: cfg.Auth}}
	if bypass != "" {
		logger.Warn("e2e bypass enabled; never use this outside test environments")
		strategies = append(strategies, E2EStrategy{Token: bypass, Verifier: cfg.Verifier})
	}
	strategies = append(strategies, CookieStrategy{Sessions: cfg.Sessions, Logger: logger})
	requireAuth := Authenticate(cfg.Sessions, logger, strategies...)

	authHandlers := NewAuthHandlers(cfg.Auth, cfg.Sessions, cfg.Metrics, logger)
	transferHandlers := NewTransferHandlers(cfg.Transfers, logger)
	adminHandlers := NewAdminHandlers(cfg.Audit, cfg.Caches, logger)

	router.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	// Auth routes
	auth := router.Group("/auth")
	{
		auth.GET("/challenge", authHandlers.Challenge)
		auth.POST("/challenge", authHandlers.Challenge)
		auth.POST("/login", authHandlers.Login)
		auth.POST("/logout", authHandlers.Logout)
		auth.POST("/refresh", authHandlers.Refresh)
	}

	// Protected API routes
	api := router.Group("/api")
	api.Use(requireAuth)
	{
		api.GET("/me", authHandlers.Me)
		api.GET("/session", authHandlers.Session)
		api.GET("/transfers", transferHandlers.List)
		api.POST("/transfers", Idempotency(cfg.Idempotency, cfg.Metrics, logger), transferHandlers.Create)
	}

	admin := router.Group("/admin")
	admin.Use(requireAuth, RequireAdmin(canonicalAdmins(cfg.Verifier, cfg.Admins, logger), logger))
	{
		admin.GET("/audit", adminHandlers.Audit)
		admin.GET("/caches", adminHandlers.Caches)
		admin.POST("/caches/:name/purge", adminHandlers.PurgeCache)
	}

	return router, nil
}

func canonicalAdmins(verifier ports.SignatureVerifier, admins []string, logger *slog.Logger) []string {
	out := make([]string, 0, len(admins))
	for _, admin := range admins {
		canonical, err := verifier.ParseIdentity(admin)
		if err != nil {
			logger.Warn("ignoring malformed admin identity", "identity", admin)
			continue
		}
		out = append(out, canonical)
	}
	return out
}
