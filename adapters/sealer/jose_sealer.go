package sealer

import (
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"golang.org/x/crypto/hkdf"

	"github.com/layer-3/remitgate/core"
)

// MinSecretLength is the shortest session secret accepted at startup.
const MinSecretLength = 32

var keyInfo = []byte("remitgate session v1")

// sessionClaims carries timestamps in milliseconds so consecutive refreshes
// within one second still produce distinct expiries
type sessionClaims struct {
	ID        string `json:"sid"`
	Subject   string `json:"sub"`
	CreatedAt int64  `json:"cat"`
	ExpiresAt int64  `json:"eat"`
}

// JOSESealer implements ports.SessionCodec with compact JWE tokens
// (dir + A256GCM) keyed from the server secret.
type JOSESealer struct {
	key []byte
}

// NewJOSESealer derives the content key from secret. Secrets shorter than
// MinSecretLength are rejected with core.ErrWeakSecret.
func NewJOSESealer(secret []byte) (*JOSESealer, error) {
	if len(secret) < MinSecretLength {
		return nil, core.ErrWeakSecret
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, keyInfo), key); err != nil {
		return nil, fmt.Errorf("failed to derive session key: %w", err)
	}

	return &JOSESealer{key: key}, nil
}

// Seal encrypts the payload into an opaque token
func (s *JOSESealer) Seal(payload core.SessionPayload) (string, error) {
	enc, err := jose.NewEncrypter(
		jose.A256GCM,
		jose.Recipient{Algorithm: jose.DIRECT, Key: s.key},
		(&jose.EncrypterOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create encrypter: %w", err)
	}

	claims := sessionClaims{
		ID:        payload.ID,
		Subject:   payload.Identity,
		CreatedAt: unixMilli(payload.CreatedAt),
		ExpiresAt: unixMilli(payload.ExpiresAt),
	}

	token, err := jwt.Encrypted(enc).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to seal session: %w", err)
	}

	return token, nil
}

// Unseal decrypts a token. Every failure is reported as core.ErrSessionInvalid.
func (s *JOSESealer) Unseal(token string) (core.SessionPayload, error) {
	parsed, err := jwt.ParseEncrypted(token, []jose.KeyAlgorithm{jose.DIRECT}, []jose.ContentEncryption{jose.A256GCM})
	if err != nil {
		return core.SessionPayload{}, core.ErrSessionInvalid
	}

	var claims sessionClaims
	if err := parsed.Claims(s.key, &claims); err != nil {
		return core.SessionPayload{}, core.ErrSessionInvalid
	}

	return core.SessionPayload{
		ID:        claims.ID,
		Identity:  claims.Subject,
		CreatedAt: fromUnixMilli(claims.CreatedAt),
		ExpiresAt: fromUnixMilli(claims.ExpiresAt),
	}, nil
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMilli(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
