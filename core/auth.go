package core

import "time"

// Nonce is a one-time challenge bound to a wallet identity
type Nonce struct {
	Identity  string    // Canonical wallet identity the nonce was issued for
	Value     string    // Hex encoding of the random challenge bytes
	ExpiresAt time.Time // When the challenge stops being accepted
}

// Expired reports whether the nonce is no longer usable at now
func (n Nonce) Expired(now time.Time) bool {
	return !now.Before(n.ExpiresAt)
}

// SessionPayload is the content sealed into a session token
type SessionPayload struct {
	ID        string    // Stable across refreshes; the jti of derived access tokens
	Identity  string    // Wallet identity proven at login
	CreatedAt time.Time // Login time, preserved across refreshes
	ExpiresAt time.Time // End of the current sliding window
}

// Complete reports whether every field of the payload is set
func (p SessionPayload) Complete() bool {
	return p.Identity != "" && !p.CreatedAt.IsZero() && !p.ExpiresAt.IsZero()
}

// Expired reports whether the session is past its expiry at now
func (p SessionPayload) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// TruncateIdentity shortens an identity for logs and audit records.
func TruncateIdentity(identity string) string {
	if len(identity) <= 12 {
		return identity
	}
	return identity[:6] + "..." + identity[len(identity)-4:]
}
