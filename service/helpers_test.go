package service

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/remitgate/adapters/sealer"
	"github.com/layer-3/remitgate/adapters/store"
	"github.com/layer-3/remitgate/adapters/tokenizer"
	"github.com/layer-3/remitgate/adapters/verifier"
	"github.com/layer-3/remitgate/core"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingSink collects audit events in memory
type recordingSink struct {
	*AuditLog
}

func newRecordingSink() recordingSink {
	return recordingSink{NewAuditLog(100)}
}

func (r recordingSink) types() []core.AuditType {
	var out []core.AuditType
	for _, e := range r.Recent(0) {
		out = append(out, e.Type)
	}
	return out
}

func newTestSessions(t *testing.T, clock *fakeClock, cfg SessionConfig, audit recordingSink) *SessionManager {
	t.Helper()
	codec, err := sealer.NewJOSESealer([]byte(testSecret))
	require.NoError(t, err)
	return NewSessionManager(codec, cfg, audit, nil).WithClock(clock.Now)
}

func newTestSessionsWithSecret(t *testing.T, clock *fakeClock, secret string) *SessionManager {
	t.Helper()
	codec, err := sealer.NewJOSESealer([]byte(secret))
	require.NoError(t, err)
	return NewSessionManager(codec, SessionConfig{}, nil, nil).WithClock(clock.Now)
}

type wallet struct {
	identity string
	priv     ed25519.PrivateKey
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return wallet{identity: base58.Encode(pub), priv: priv}
}

// sign signs the raw bytes of a hex nonce and returns the hex signature
func (w wallet) sign(t *testing.T, nonceHex string) string {
	t.Helper()
	raw, err := hex.DecodeString(nonceHex)
	require.NoError(t, err)
	return "0x" + hex.EncodeToString(ed25519.Sign(w.priv, raw))
}

type authFixture struct {
	svc      *AuthService
	nonces   *store.MemoryNonceStore
	sessions *SessionManager
	tokens   *tokenizer.JWTTokenizer
	audit    recordingSink
	clock    *fakeClock
}

func newAuthFixture(t *testing.T) authFixture {
	t.Helper()
	clock := newFakeClock()
	audit := newRecordingSink()
	nonces := store.NewMemoryNonceStore(store.WithClock(clock.Now))
	sessions := newTestSessions(t, clock, SessionConfig{}, audit).
		WithTokenStore(store.NewMemoryTokenStore(store.WithClock(clock.Now)))

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tokens := tokenizer.NewJWTTokenizer(key).WithClock(clock.Now)

	svc := NewAuthService(AuthDeps{
		Nonces:    nonces,
		Verifier:  verifier.NewDefault(),
		Sessions:  sessions,
		Tokenizer: tokens,
		Audit:     audit,
	}).WithClock(clock.Now)

	return authFixture{svc: svc, nonces: nonces, sessions: sessions, tokens: tokens, audit: audit, clock: clock}
}
