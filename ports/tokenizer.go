package ports

import "github.com/layer-3/remitgate/core"

// SessionCodec seals session payloads into opaque tokens
type SessionCodec interface {
	Seal(payload core.SessionPayload) (string, error)
	// Unseal returns core.ErrSessionInvalid for any token it cannot open
	Unseal(token string) (core.SessionPayload, error)
}

// Tokenizer converts sessions to and from bearer access tokens
type Tokenizer interface {
	SessionToAccessToken(session core.SessionPayload) (string, error)
	AccessTokenToSession(token string) (core.SessionPayload, error)
}
