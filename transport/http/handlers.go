package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/remitgate/core"
	"github.com/layer-3/remitgate/service"
)

func setCookie(c *gin.Context, cookie *http.Cookie) {
	http.SetCookie(c.Writer, cookie)
}

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	auth     *service.AuthService
	sessions *service.SessionManager
	metrics  *Metrics
	logger   *slog.Logger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(auth *service.AuthService, sessions *service.SessionManager, metrics *Metrics, logger *slog.Logger) *AuthHandlers {
	return &AuthHandlers{
		auth:     auth,
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
	}
}

// Challenge issues a login nonce for the identity given in the query or body
func (h *AuthHandlers) Challenge(c *gin.Context) {
	identity := c.Query("identity")
	if identity == "" && c.Request.Method == http.MethodPost && c.Request.ContentLength != 0 {
		var req struct {
			Identity string `json:"identity"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, h.logger, core.ErrMalformedBody)
			return
		}
		identity = req.Identity
	}

	nonce, err := h.auth.CreateChallenge(c.Request.Context(), identity)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"nonce":      nonce.Value,
		"expires_at": nonce.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Login verifies the signed nonce and sets the session cookie
func (h *AuthHandlers) Login(c *gin.Context) {
	var req struct {
		Identity  string `json:"identity" binding:"required"`
		Signature string `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, h.logger, core.ErrMalformedBody)
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Identity, req.Signature)
	if err != nil {
		if h.metrics != nil {
			h.metrics.login("failure")
		}
		abortWithError(c, h.logger, err)
		return
	}
	if h.metrics != nil {
		h.metrics.login("success")
	}

	setCookie(c, h.sessions.Cookie(result.SessionToken))
	c.JSON(http.StatusOK, gin.H{
		"ok":           true,
		"identity":     result.Identity,
		"access_token": result.AccessToken,
		"expires_at":   result.Session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Logout ends the caller's session and clears the cookie. The cookie and
// every access token issued with it stop authenticating. It succeeds
// without a live session.
func (h *AuthHandlers) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), h.callerSession(c)); err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	setCookie(c, h.sessions.ClearCookie())
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// callerSession finds a live session from the cookie or bearer token
func (h *AuthHandlers) callerSession(c *gin.Context) core.SessionPayload {
	if token, err := c.Cookie(h.sessions.CookieName()); err == nil && token != "" {
		if payload, err := h.sessions.Validate(c.Request.Context(), token); err == nil {
			return payload
		}
	}
	session, found, err := BearerStrategy{Auth: h.auth}.Authenticate(c)
	if found && err == nil {
		return session
	}
	return core.SessionPayload{}
}

// Refresh extends the cookie session
func (h *AuthHandlers) Refresh(c *gin.Context) {
	token, _ := c.Cookie(h.sessions.CookieName())

	refreshed, payload, err := h.sessions.Refresh(c.Request.Context(), token)
	if err != nil {
		if core.KindOf(err) == core.KindAuthentication {
			setCookie(c, h.sessions.ClearCookie())
		}
		abortWithError(c, h.logger, err)
		return
	}

	setCookie(c, h.sessions.Cookie(refreshed))
	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"identity":   payload.Identity,
		"expires_at": payload.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Me returns the authenticated identity
func (h *AuthHandlers) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"identity": c.GetString(ctxIdentity)})
}

// Session describes the authenticated session
func (h *AuthHandlers) Session(c *gin.Context) {
	value, _ := c.Get(ctxSession)
	session, _ := value.(core.SessionPayload)

	resp := gin.H{"identity": session.Identity}
	if !session.CreatedAt.IsZero() {
		resp["created_at"] = session.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !session.ExpiresAt.IsZero() {
		resp["expires_at"] = session.ExpiresAt.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

// TransferHandlers serves the transfer endpoints
type TransferHandlers struct {
	transfers *service.TransferService
	logger    *slog.Logger
}

// NewTransferHandlers creates transfer handlers
func NewTransferHandlers(transfers *service.TransferService, logger *slog.Logger) *TransferHandlers {
	return &TransferHandlers{transfers: transfers, logger: logger}
}

// Create submits a transfer for the caller
func (h *TransferHandlers) Create(c *gin.Context) {
	var req service.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, h.logger, core.ErrMalformedBody)
		return
	}

	transfer, err := h.transfers.Submit(c.Request.Context(), c.GetString(ctxIdentity), req)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}

	c.Header("Location", "/api/transfers/"+transfer.ID)
	c.JSON(http.StatusCreated, transfer)
}

// List returns the caller's transfers
func (h *TransferHandlers) List(c *gin.Context) {
	transfers, err := h.transfers.List(c.Request.Context(), c.GetString(ctxIdentity))
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	if transfers == nil {
		transfers = []core.Transfer{}
	}
	c.JSON(http.StatusOK, gin.H{"transfers": transfers})
}

// AdminHandlers exposes audit events and cache controls
type AdminHandlers struct {
	audit  *service.AuditLog
	caches *service.CacheRegistry
	logger *slog.Logger
}

// NewAdminHandlers creates admin handlers
func NewAdminHandlers(audit *service.AuditLog, caches *service.CacheRegistry, logger *slog.Logger) *AdminHandlers {
	return &AdminHandlers{audit: audit, caches: caches, logger: logger}
}

const defaultAuditLimit = 50

// Audit lists recent audit events, newest first
func (h *AdminHandlers) Audit(c *gin.Context) {
	limit := defaultAuditLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			abortWithError(c, h.logger, core.NewValidationError("limit must be a positive integer"))
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{"events": h.audit.Recent(limit)})
}

// Caches lists the registered in-memory caches
func (h *AdminHandlers) Caches(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"caches": h.caches.Stats()})
}

// PurgeCache empties one cache by name
func (h *AdminHandlers) PurgeCache(c *gin.Context) {
	name := c.Param("name")
	if err := h.caches.Purge(name); err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	h.logger.Info("cache purged", "cache", name, "by", core.TruncateIdentity(c.GetString(ctxIdentity)))
	c.JSON(http.StatusOK, gin.H{"ok": true, "cache": name})
}
