package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/layer-3/remitgate/core"
	"github.com/layer-3/remitgate/ports"
)

const (
	// DefaultNonceTTL is how long a login challenge stays valid
	DefaultNonceTTL = 5 * time.Minute
	nonceSize       = 32
)

// LoginResult is returned after a successful wallet login
type LoginResult struct {
	Identity     string
	SessionToken string
	Session      core.SessionPayload
	AccessToken  string
}

// AuthService handles authentication business logic
type AuthService struct {
	nonces    ports.NonceStore
	verifier  ports.SignatureVerifier
	sessions  *SessionManager
	tokenizer ports.Tokenizer
	eventPub  ports.EventPublisher
	audit     ports.AuditSink
	tasks     *TaskGroup
	logger    *slog.Logger

	nonceTTL time.Duration
	now      func() time.Time
}

// AuthDeps collects the collaborators of AuthService
type AuthDeps struct {
	Nonces    ports.NonceStore
	Verifier  ports.SignatureVerifier
	Sessions  *SessionManager
	Tokenizer ports.Tokenizer
	EventPub  ports.EventPublisher // optional
	Audit     ports.AuditSink      // optional
	Tasks     *TaskGroup           // optional
	Logger    *slog.Logger
	NonceTTL  time.Duration
}

// NewAuthService creates a new authentication service
func NewAuthService(deps AuthDeps) *AuthService {
	s := &AuthService{
		nonces:    deps.Nonces,
		verifier:  deps.Verifier,
		sessions:  deps.Sessions,
		tokenizer: deps.Tokenizer,
		eventPub:  deps.EventPub,
		audit:     deps.Audit,
		tasks:     deps.Tasks,
		logger:    deps.Logger,
		nonceTTL:  deps.NonceTTL,
		now:       time.Now,
	}
	if s.audit == nil {
		s.audit = NopAuditSink{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tasks == nil {
		s.tasks = NewTaskGroup(s.logger)
	}
	if s.nonceTTL <= 0 {
		s.nonceTTL = DefaultNonceTTL
	}
	return s
}

// WithClock overrides the time source used for nonce expiry
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// CreateChallenge issues a fresh nonce for identity, replacing any earlier one
func (s *AuthService) CreateChallenge(ctx context.Context, identity string) (core.Nonce, error) {
	canonical, err := s.verifier.ParseIdentity(identity)
	if err != nil {
		return core.Nonce{}, err
	}

	raw := make([]byte, nonceSize)
	if _, err := rand.Read(raw); err != nil {
		return core.Nonce{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	now := s.now()
	nonce := core.Nonce{
		Identity:  canonical,
		Value:     hex.EncodeToString(raw),
		ExpiresAt: now.Add(s.nonceTTL),
	}
	if err := s.nonces.Put(ctx, nonce); err != nil {
		return core.Nonce{}, fmt.Errorf("failed to store nonce: %w", err)
	}

	s.audit.Record(ctx, newAuditEvent(core.AuditChallenge, core.TruncateIdentity(canonical), "challenge issued", nil, now))
	return nonce, nil
}

// Login verifies a signed challenge and opens a session. The nonce is
// consumed before the signature is checked, so a failed attempt burns it.
func (s *AuthService) Login(ctx context.Context, identity, signature string) (*LoginResult, error) {
	canonical, err := s.verifier.ParseIdentity(identity)
	if err != nil {
		return nil, err
	}
	sig, err := decodeSignature(signature)
	if err != nil {
		return nil, err
	}

	nonce, err := s.nonces.Consume(ctx, canonical)
	if err != nil {
		if errors.Is(err, core.ErrNonceNotFound) {
			s.loginFailed(ctx, canonical, "expired or missing nonce")
		}
		return nil, err
	}

	message, err := hex.DecodeString(nonce.Value)
	if err != nil {
		return nil, fmt.Errorf("stored nonce is not hex: %w", err)
	}

	ok, err := s.verifier.Verify(canonical, message, sig)
	if err != nil {
		s.loginFailed(ctx, canonical, core.PublicMessage(err))
		return nil, err
	}
	if !ok {
		s.loginFailed(ctx, canonical, "invalid signature")
		return nil, core.ErrInvalidSignature
	}

	token, payload, err := s.sessions.Create(canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to seal session: %w", err)
	}
	accessToken, err := s.tokenizer.SessionToAccessToken(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}

	short := core.TruncateIdentity(canonical)
	s.logger.Info("login succeeded", "identity", short)
	s.audit.Record(ctx, newAuditEvent(core.AuditLoginSuccess, short, "login succeeded", nil, s.now()))

	return &LoginResult{
		Identity:     canonical,
		SessionToken: token,
		Session:      payload,
		AccessToken:  accessToken,
	}, nil
}

// Logout invalidates the caller's session, records the logout and notifies
// other instances in the background. A session without identity means the
// caller had nothing live to end.
func (s *AuthService) Logout(ctx context.Context, session core.SessionPayload) error {
	if session.Identity == "" {
		return nil
	}

	if err := s.sessions.Invalidate(ctx, session); err != nil {
		return err
	}

	short := core.TruncateIdentity(session.Identity)
	s.audit.Record(ctx, newAuditEvent(core.AuditLogout, short, "logged out", nil, s.now()))

	if s.eventPub == nil {
		return nil
	}
	pubCtx := context.WithoutCancel(ctx)
	s.tasks.Go("publish-logout", func() {
		if err := s.eventPub.PublishLogout(pubCtx, session.Identity, session.ID); err != nil {
			s.logger.Warn("failed to publish logout event", "identity", short, "error", err)
		}
	})
	return nil
}

// ValidateAccessToken parses a bearer token and rejects it once its
// session has been logged out.
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (core.SessionPayload, error) {
	session, err := s.tokenizer.AccessTokenToSession(accessToken)
	if err != nil {
		return core.SessionPayload{}, err
	}
	if err := s.sessions.CheckActive(ctx, session); err != nil {
		return core.SessionPayload{}, err
	}
	return session, nil
}

func (s *AuthService) loginFailed(ctx context.Context, identity, reason string) {
	short := core.TruncateIdentity(identity)
	s.logger.Info("login failed", "identity", short, "reason", reason)
	s.audit.Record(ctx, newAuditEvent(core.AuditLoginFailure, short, reason, nil, s.now()))
}

// decodeSignature decodes a hex signature with or without the 0x prefix
func decodeSignature(signature string) ([]byte, error) {
	signature = strings.ToLower(strings.TrimSpace(signature))
	if !strings.HasPrefix(signature, "0x") {
		signature = "0x" + signature
	}
	decoded, err := hexutil.Decode(signature)
	if err != nil || len(decoded) == 0 {
		return nil, core.ErrMalformedSignature
	}
	return decoded, nil
}
