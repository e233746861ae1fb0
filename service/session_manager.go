package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/layer-3/remitgate/core"
	"github.com/layer-3/remitgate/ports"
)

const (
	// DefaultSessionCookie is the name of the sealed session cookie
	DefaultSessionCookie = "remitgate_session"
	// DefaultSessionMaxAge is how long a session lives without refresh
	DefaultSessionMaxAge = 7 * 24 * time.Hour
	// DefaultRefreshInterval is the minimum session age before a sliding refresh
	DefaultRefreshInterval = time.Hour
)

// SessionConfig controls session lifetime and cookie attributes
type SessionConfig struct {
	CookieName      string
	MaxAge          time.Duration
	RefreshEnabled  bool
	RefreshInterval time.Duration
	Secure          bool // set the Secure cookie attribute
}

// SessionManager creates and validates sealed session tokens
type SessionManager struct {
	codec  ports.SessionCodec
	tokens ports.TokenStore
	cfg    SessionConfig
	audit  ports.AuditSink
	logger *slog.Logger
	now    func() time.Time
}

// NewSessionManager creates a session manager. Zero config fields take defaults.
func NewSessionManager(codec ports.SessionCodec, cfg SessionConfig, audit ports.AuditSink, logger *slog.Logger) *SessionManager {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultSessionCookie
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultSessionMaxAge
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if audit == nil {
		audit = NopAuditSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{codec: codec, cfg: cfg, audit: audit, logger: logger, now: time.Now}
}

// WithClock overrides the time source
func (m *SessionManager) WithClock(now func() time.Time) *SessionManager {
	m.now = now
	return m
}

// WithTokenStore enables logout invalidation. Without a store, sessions
// stay valid until they expire.
func (m *SessionManager) WithTokenStore(tokens ports.TokenStore) *SessionManager {
	m.tokens = tokens
	return m
}

// CookieName returns the session cookie name
func (m *SessionManager) CookieName() string {
	return m.cfg.CookieName
}

// RefreshEnabled reports whether sessions may be extended
func (m *SessionManager) RefreshEnabled() bool {
	return m.cfg.RefreshEnabled
}

// Create seals a new session for identity
func (m *SessionManager) Create(identity string) (string, core.SessionPayload, error) {
	now := m.now()
	payload := core.SessionPayload{
		ID:        uuid.New().String(),
		Identity:  identity,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.MaxAge),
	}
	token, err := m.codec.Seal(payload)
	if err != nil {
		return "", core.SessionPayload{}, err
	}
	return token, payload, nil
}

// Validate opens token and checks that the session is complete and live
func (m *SessionManager) Validate(ctx context.Context, token string) (core.SessionPayload, error) {
	if token == "" {
		return core.SessionPayload{}, core.ErrNotAuthenticated
	}

	payload, err := m.codec.Unseal(token)
	if err != nil || !payload.Complete() {
		return core.SessionPayload{}, core.ErrSessionInvalid
	}

	now := m.now()
	if payload.Expired(now) {
		short := core.TruncateIdentity(payload.Identity)
		m.logger.Info("session expired", "identity", short, "expired_at", payload.ExpiresAt)
		m.audit.Record(ctx, newAuditEvent(core.AuditSessionExpired, short, "session expired", nil, now))
		return core.SessionPayload{}, core.ErrSessionExpired
	}
	if err := m.CheckActive(ctx, payload); err != nil {
		return core.SessionPayload{}, err
	}
	return payload, nil
}

// CheckActive rejects a session that was invalidated at logout
func (m *SessionManager) CheckActive(ctx context.Context, payload core.SessionPayload) error {
	if m.tokens == nil || payload.ID == "" {
		return nil
	}
	invalidated, err := m.tokens.IsTokenInvalidated(ctx, payload.ID)
	if err != nil {
		return fmt.Errorf("failed to check token invalidation: %w", err)
	}
	if invalidated {
		return core.ErrSessionInvalid
	}
	return nil
}

// Invalidate blocks the session and every access token derived from it.
// No token carrying the ID can outlive MaxAge from now.
func (m *SessionManager) Invalidate(ctx context.Context, payload core.SessionPayload) error {
	if m.tokens == nil || payload.ID == "" {
		return nil
	}
	if err := m.tokens.InvalidateToken(ctx, payload.ID, m.cfg.MaxAge); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	return nil
}

// RequireAuth returns the identity behind token or the reason it is rejected
func (m *SessionManager) RequireAuth(ctx context.Context, token string) (string, error) {
	payload, err := m.Validate(ctx, token)
	if err != nil {
		return "", err
	}
	return payload.Identity, nil
}

// Refresh reseals a live session with a new expiry, keeping its creation time
func (m *SessionManager) Refresh(ctx context.Context, token string) (string, core.SessionPayload, error) {
	if !m.cfg.RefreshEnabled {
		return "", core.SessionPayload{}, core.ErrRefreshDisabled
	}

	payload, err := m.Validate(ctx, token)
	if err != nil {
		return "", core.SessionPayload{}, err
	}
	return m.extend(payload)
}

// SlideIfDue refreshes payload when refresh is enabled and it was sealed
// more than the refresh interval ago. It returns ok=false when nothing
// needed to change.
func (m *SessionManager) SlideIfDue(payload core.SessionPayload) (string, core.SessionPayload, bool, error) {
	if !m.NeedsRefresh(payload) {
		return "", payload, false, nil
	}
	token, next, err := m.extend(payload)
	if err != nil {
		return "", payload, false, err
	}
	return token, next, true, nil
}

// NeedsRefresh reports whether a sliding refresh is due for payload
func (m *SessionManager) NeedsRefresh(payload core.SessionPayload) bool {
	if !m.cfg.RefreshEnabled {
		return false
	}
	remaining := payload.ExpiresAt.Sub(m.now())
	return m.cfg.MaxAge-remaining > m.cfg.RefreshInterval
}

// extend reseals payload with a later expiry. Tokens carry millisecond
// timestamps, so the new expiry is at least one millisecond past the old.
func (m *SessionManager) extend(payload core.SessionPayload) (string, core.SessionPayload, error) {
	expiresAt := m.now().Add(m.cfg.MaxAge)
	if floor := payload.ExpiresAt.Add(time.Millisecond); expiresAt.Before(floor) {
		expiresAt = floor
	}
	next := core.SessionPayload{
		ID:        payload.ID,
		Identity:  payload.Identity,
		CreatedAt: payload.CreatedAt,
		ExpiresAt: expiresAt,
	}
	token, err := m.codec.Seal(next)
	if err != nil {
		return "", core.SessionPayload{}, err
	}
	return token, next, nil
}

// Cookie wraps token in the session cookie
func (m *SessionManager) Cookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.cfg.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearCookie returns a cookie that removes the session from the browser
func (m *SessionManager) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // rendered as Max-Age=0
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
