package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AccessClaims combines standard claims with the session creation time
type AccessClaims struct {
	jwt.RegisteredClaims
	CreatedAt int64 `json:"cat"` // Session creation, unix milliseconds
}
