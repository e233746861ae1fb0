package http

import (
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/remitgate/core"
	"github.com/layer-3/remitgate/ports"
	"github.com/layer-3/remitgate/service"
)

// AuthStrategy extracts an authenticated session from a request.
// found is false when the request carries no credential of this kind,
// letting the next strategy try.
type AuthStrategy interface {
	Authenticate(c *gin.Context) (session core.SessionPayload, found bool, err error)
}

// BearerStrategy accepts ES256 access tokens in the Authorization header.
// Tokens of logged out sessions are rejected.
type BearerStrategy struct {
	Auth *service.AuthService
}

// Authenticate implements AuthStrategy
func (s BearerStrategy) Authenticate(c *gin.Context) (core.SessionPayload, bool, error) {
	auth := c.GetHeader("Authorization")
	if len(auth) < 8 || !strings.EqualFold(auth[:7], "Bearer ") {
		return core.SessionPayload{}, false, nil
	}
	session, err := s.Auth.ValidateAccessToken(c.Request.Context(), strings.TrimSpace(auth[7:]))
	return session, true, err
}

// E2EStrategy lets test harnesses act as any identity. Only registered
// outside production.
type E2EStrategy struct {
	Token    string
	Verifier ports.SignatureVerifier
}

// Authenticate implements AuthStrategy
func (s E2EStrategy) Authenticate(c *gin.Context) (core.SessionPayload, bool, error) {
	identity := c.GetHeader(headerE2EID)
	if identity == "" || !e2eBypass(c, s.Token) {
		return core.SessionPayload{}, false, nil
	}
	canonical, err := s.Verifier.ParseIdentity(identity)
	if err != nil {
		return core.SessionPayload{}, true, err
	}
	return core.SessionPayload{Identity: canonical}, true, nil
}

// CookieStrategy accepts the sealed session cookie and slides its expiry
// when a refresh is due.
type CookieStrategy struct {
	Sessions *service.SessionManager
	Logger   *slog.Logger
}

// Authenticate implements AuthStrategy
func (s CookieStrategy) Authenticate(c *gin.Context) (core.SessionPayload, bool, error) {
	token, err := c.Cookie(s.Sessions.CookieName())
	if err != nil || token == "" {
		return core.SessionPayload{}, false, nil
	}

	payload, err := s.Sessions.Validate(c.Request.Context(), token)
	if err != nil {
		return core.SessionPayload{}, true, err
	}

	refreshed, next, slid, err := s.Sessions.SlideIfDue(payload)
	if err != nil {
		s.Logger.Warn("sliding session refresh failed", "identity", core.TruncateIdentity(payload.Identity), "error", err)
		return payload, true, nil
	}
	if slid {
		setCookie(c, s.Sessions.Cookie(refreshed))
		return next, true, nil
	}
	return payload, true, nil
}

// Authenticate runs strategies in order. The first one that finds a
// credential decides. Rejected credentials clear the session cookie and
// answer 401.
func Authenticate(sessions *service.SessionManager, logger *slog.Logger, strategies ...AuthStrategy) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, strategy := range strategies {
			session, found, err := strategy.Authenticate(c)
			if !found {
				continue
			}
			if err != nil {
				if core.KindOf(err) == core.KindAuthentication {
					setCookie(c, sessions.ClearCookie())
				}
				abortWithError(c, logger, err)
				return
			}
			c.Set(ctxIdentity, session.Identity)
			c.Set(ctxSession, session)
			c.Next()
			return
		}

		setCookie(c, sessions.ClearCookie())
		abortWithError(c, logger, core.ErrNotAuthenticated)
	}
}
