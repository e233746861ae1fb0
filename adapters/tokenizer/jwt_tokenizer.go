package tokenizer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/layer-3/remitgate/core"
)

const (
	AudienceAccess = "remitgate:access"
	Issuer         = "remitgate"
)

// JWTTokenizer implements the Tokenizer interface using ES256 JWTs
type JWTTokenizer struct {
	signKey *ecdsa.PrivateKey
	now     func() time.Time
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(signKey *ecdsa.PrivateKey) *JWTTokenizer {
	return &JWTTokenizer{signKey: signKey, now: time.Now}
}

// WithClock returns a copy of the tokenizer that validates against now
func (j *JWTTokenizer) WithClock(now func() time.Time) *JWTTokenizer {
	return &JWTTokenizer{signKey: j.signKey, now: now}
}

// SessionToAccessToken converts a session to a signed access token. The
// session ID becomes the jti so logout can invalidate the token.
func (j *JWTTokenizer) SessionToAccessToken(session core.SessionPayload) (string, error) {
	id := session.ID
	if id == "" {
		id = uuid.New().String()
	}
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   session.Identity,
			ID:        id,
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(j.now()),
			Audience:  jwt.ClaimStrings{AudienceAccess},
		},
		CreatedAt: session.CreatedAt.UnixMilli(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return signedToken, nil
}

// AccessTokenToSession parses an access token and returns the associated session
func (j *JWTTokenizer) AccessTokenToSession(tokenStr string) (core.SessionPayload, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		return &j.signKey.PublicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithAudience(AudienceAccess),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return core.SessionPayload{}, core.ErrSessionExpired
		}
		return core.SessionPayload{}, core.ErrSessionInvalid
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return core.SessionPayload{}, core.ErrSessionInvalid
	}

	session := core.SessionPayload{
		ID:        claims.ID,
		Identity:  claims.Subject,
		CreatedAt: time.UnixMilli(claims.CreatedAt).UTC(),
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.CreatedAt <= 0 || !session.Complete() {
		return core.SessionPayload{}, core.ErrSessionInvalid
	}

	return session, nil
}
