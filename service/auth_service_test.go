package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/remitgate/adapters/store"
	"github.com/layer-3/remitgate/adapters/tokenizer"
	"github.com/layer-3/remitgate/adapters/verifier"
	"github.com/layer-3/remitgate/core"
)

func TestAuthService_LoginFlow(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	w := newWallet(t)

	nonce, err := f.svc.CreateChallenge(ctx, w.identity)
	require.NoError(t, err)
	assert.Len(t, nonce.Value, 64)
	assert.Equal(t, f.clock.Now().Add(DefaultNonceTTL), nonce.ExpiresAt)

	result, err := f.svc.Login(ctx, w.identity, w.sign(t, nonce.Value))
	require.NoError(t, err)
	assert.Equal(t, w.identity, result.Identity)
	assert.NotEmpty(t, result.SessionToken)

	identity, err := f.sessions.RequireAuth(ctx, result.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, w.identity, identity)

	bearer, err := f.tokens.AccessTokenToSession(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, w.identity, bearer.Identity)

	assert.Equal(t, []core.AuditType{core.AuditLoginSuccess, core.AuditChallenge}, f.audit.types())
}

func TestAuthService_NonceSingleUse(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	w := newWallet(t)

	nonce, err := f.svc.CreateChallenge(ctx, w.identity)
	require.NoError(t, err)
	sig := w.sign(t, nonce.Value)

	_, err = f.svc.Login(ctx, w.identity, sig)
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, w.identity, sig)
	assert.ErrorIs(t, err, core.ErrNonceNotFound)
}

func TestAuthService_ExpiredNonce(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	w := newWallet(t)

	nonce, err := f.svc.CreateChallenge(ctx, w.identity)
	require.NoError(t, err)

	f.clock.Advance(DefaultNonceTTL)
	_, err = f.svc.Login(ctx, w.identity, w.sign(t, nonce.Value))
	assert.ErrorIs(t, err, core.ErrNonceNotFound)
}

func TestAuthService_ReissueReplacesNonce(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	w := newWallet(t)

	first, err := f.svc.CreateChallenge(ctx, w.identity)
	require.NoError(t, err)
	second, err := f.svc.CreateChallenge(ctx, w.identity)
	require.NoError(t, err)
	assert.NotEqual(t, first.Value, second.Value)

	_, err = f.svc.Login(ctx, w.identity, w.sign(t, first.Value))
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}

func TestAuthService_BadSignatureBurnsNonce(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	w := newWallet(t)
	other := newWallet(t)

	nonce, err := f.svc.CreateChallenge(ctx, w.identity)
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, w.identity, other.sign(t, nonce.Value))
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
	assert.Equal(t, core.KindAuthentication, core.KindOf(err))

	_, err = f.svc.Login(ctx, w.identity, w.sign(t, nonce.Value))
	assert.ErrorIs(t, err, core.ErrNonceNotFound)
	assert.Contains(t, f.audit.types(), core.AuditLoginFailure)
}

func TestAuthService_MalformedInput(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	w := newWallet(t)

	_, err := f.svc.CreateChallenge(ctx, "not-a-wallet")
	assert.ErrorIs(t, err, core.ErrMalformedIdentity)

	_, err = f.svc.Login(ctx, "not-a-wallet", "0x00")
	assert.ErrorIs(t, err, core.ErrMalformedIdentity)

	for _, sig := range []string{"", "0x", "zz", "0xabc"} {
		_, err = f.svc.Login(ctx, w.identity, sig)
		assert.ErrorIs(t, err, core.ErrMalformedSignature, sig)
		assert.Equal(t, core.KindValidation, core.KindOf(err))
	}
}

func TestAuthService_EthereumWallet(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	nonce, err := f.svc.CreateChallenge(ctx, address)
	require.NoError(t, err)
	raw, err := hex.DecodeString(nonce.Value)
	require.NoError(t, err)
	sig, err := crypto.Sign(accounts.TextHash(raw), key)
	require.NoError(t, err)
	sig[64] += 27

	result, err := f.svc.Login(ctx, address, hex.EncodeToString(sig))
	require.NoError(t, err)
	assert.Equal(t, address, result.Identity)
}

func TestAuthService_ConcurrentLoginSingleWinner(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	w := newWallet(t)

	nonce, err := f.svc.CreateChallenge(ctx, w.identity)
	require.NoError(t, err)
	sig := w.sign(t, nonce.Value)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Login(ctx, w.identity, sig); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
}

type recordingPublisher struct {
	mu         sync.Mutex
	identities []string
	sessionIDs []string
	done       chan struct{}
}

func (p *recordingPublisher) PublishLogout(ctx context.Context, identity, sessionID string) error {
	p.mu.Lock()
	p.identities = append(p.identities, identity)
	p.sessionIDs = append(p.sessionIDs, sessionID)
	p.mu.Unlock()
	close(p.done)
	return nil
}

func TestAuthService_LogoutPublishesInBackground(t *testing.T) {
	clock := newFakeClock()
	audit := newRecordingSink()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	pub := &recordingPublisher{done: make(chan struct{})}
	tasks := NewTaskGroup(nil)

	svc := NewAuthService(AuthDeps{
		Nonces:    store.NewMemoryNonceStore(),
		Verifier:  verifier.NewDefault(),
		Sessions:  newTestSessions(t, clock, SessionConfig{}, audit),
		Tokenizer: tokenizer.NewJWTTokenizer(key),
		EventPub:  pub,
		Audit:     audit,
		Tasks:     tasks,
	})

	session := core.SessionPayload{ID: "sid-1", Identity: "0x52908400098527886E0F7030069857D2E4169EE7"}
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, svc.Logout(ctx, session))
	cancel()

	select {
	case <-pub.done:
	case <-time.After(time.Second):
		t.Fatal("logout event was not published")
	}
	tasks.Close()
	require.NoError(t, tasks.Wait(context.Background()))

	assert.Equal(t, []string{"0x52908400098527886E0F7030069857D2E4169EE7"}, pub.identities)
	assert.Equal(t, []string{"sid-1"}, pub.sessionIDs)
	assert.Equal(t, []core.AuditType{core.AuditLogout}, audit.types())

	require.NoError(t, svc.Logout(context.Background(), core.SessionPayload{}))
	assert.Equal(t, 1, audit.Len())
}

func TestAuthService_LogoutInvalidatesTokens(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	w := newWallet(t)

	nonce, err := f.svc.CreateChallenge(ctx, w.identity)
	require.NoError(t, err)
	result, err := f.svc.Login(ctx, w.identity, w.sign(t, nonce.Value))
	require.NoError(t, err)

	bearer, err := f.svc.ValidateAccessToken(ctx, result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, result.Session.ID, bearer.ID)

	require.NoError(t, f.svc.Logout(ctx, bearer))

	_, err = f.svc.ValidateAccessToken(ctx, result.AccessToken)
	assert.ErrorIs(t, err, core.ErrSessionInvalid)
	_, err = f.sessions.RequireAuth(ctx, result.SessionToken)
	assert.ErrorIs(t, err, core.ErrSessionInvalid)

	nonce, err = f.svc.CreateChallenge(ctx, w.identity)
	require.NoError(t, err)
	again, err := f.svc.Login(ctx, w.identity, w.sign(t, nonce.Value))
	require.NoError(t, err)
	_, err = f.svc.ValidateAccessToken(ctx, again.AccessToken)
	assert.NoError(t, err)
}

func TestDecodeSignature(t *testing.T) {
	decoded, err := decodeSignature("0xA1b2")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xa1, 0xb2}, decoded)

	decoded, err = decodeSignature("a1b2")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xa1, 0xb2}, decoded)

	for _, bad := range []string{"", "0x", "0xabc", "zz"} {
		_, err := decodeSignature(bad)
		assert.ErrorIs(t, err, core.ErrMalformedSignature, bad)
	}
}
