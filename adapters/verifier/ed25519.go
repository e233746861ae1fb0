package verifier

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"

	"github.com/layer-3/remitgate/core"
)

// Ed25519Verifier verifies signatures from wallets whose identity is the
// base58 encoding of a 32-byte ed25519 public key.
type Ed25519Verifier struct{}

// NewEd25519Verifier creates a new ed25519 verifier
func NewEd25519Verifier() *Ed25519Verifier {
	return &Ed25519Verifier{}
}

// ParseIdentity checks the base58 public key and returns its canonical encoding
func (v *Ed25519Verifier) ParseIdentity(identity string) (string, error) {
	key, err := v.publicKey(identity)
	if err != nil {
		return "", err
	}
	return base58.Encode(key), nil
}

// Verify checks an ed25519 signature over message
func (v *Ed25519Verifier) Verify(identity string, message, signature []byte) (bool, error) {
	key, err := v.publicKey(identity)
	if err != nil {
		return false, err
	}
	if len(signature) != ed25519.SignatureSize {
		return false, core.ErrMalformedSignature
	}

	return ed25519.Verify(key, message, signature), nil
}

func (v *Ed25519Verifier) publicKey(identity string) (ed25519.PublicKey, error) {
	if identity == "" {
		return nil, core.ErrMalformedIdentity
	}
	raw, err := base58.Decode(identity)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, core.ErrMalformedIdentity
	}
	return ed25519.PublicKey(raw), nil
}
