package verifier

import (
	"strings"

	"github.com/layer-3/remitgate/core"
	"github.com/layer-3/remitgate/ports"
)

// MultiVerifier dispatches to the first scheme that accepts an identity
type MultiVerifier struct {
	schemes []ports.SignatureVerifier
}

// NewMultiVerifier creates a verifier over the given schemes, tried in order
func NewMultiVerifier(schemes ...ports.SignatureVerifier) *MultiVerifier {
	return &MultiVerifier{schemes: schemes}
}

// NewDefault accepts ed25519 and Ethereum wallets
func NewDefault() *MultiVerifier {
	return NewMultiVerifier(NewEd25519Verifier(), NewEthereumVerifier())
}

// ParseIdentity returns the canonical identity from the first matching scheme
func (m *MultiVerifier) ParseIdentity(identity string) (string, error) {
	identity = strings.TrimSpace(identity)
	for _, scheme := range m.schemes {
		if canonical, err := scheme.ParseIdentity(identity); err == nil {
			return canonical, nil
		}
	}
	return "", core.ErrMalformedIdentity
}

// Verify checks the signature with the scheme that owns identity
func (m *MultiVerifier) Verify(identity string, message, signature []byte) (bool, error) {
	for _, scheme := range m.schemes {
		if _, err := scheme.ParseIdentity(identity); err == nil {
			return scheme.Verify(identity, message, signature)
		}
	}
	return false, core.ErrMalformedIdentity
}
