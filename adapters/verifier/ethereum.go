package verifier

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/layer-3/remitgate/core"
)

const ethSignatureLength = 65

// EthereumVerifier verifies EIP-191 personal signatures from Ethereum wallets
type EthereumVerifier struct{}

// NewEthereumVerifier creates a new Ethereum verifier
func NewEthereumVerifier() *EthereumVerifier {
	return &EthereumVerifier{}
}

// ParseIdentity checks a 0x-prefixed address and returns its checksummed form
func (v *EthereumVerifier) ParseIdentity(identity string) (string, error) {
	addr, err := v.address(identity)
	if err != nil {
		return "", err
	}
	return addr.Hex(), nil
}

// Verify recovers the signer of the personal-message hash of message and
// compares it to the identity address
func (v *EthereumVerifier) Verify(identity string, message, signature []byte) (bool, error) {
	expected, err := v.address(identity)
	if err != nil {
		return false, err
	}
	if len(signature) != ethSignatureLength {
		return false, core.ErrMalformedSignature
	}

	// Wallets emit v as 27/28, SigToPub expects 0/1
	sig := make([]byte, ethSignatureLength)
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return false, core.ErrMalformedSignature
	}

	pub, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return false, nil
	}

	return crypto.PubkeyToAddress(*pub) == expected, nil
}

func (v *EthereumVerifier) address(identity string) (common.Address, error) {
	if !strings.HasPrefix(identity, "0x") && !strings.HasPrefix(identity, "0X") {
		return common.Address{}, core.ErrMalformedIdentity
	}
	if !common.IsHexAddress(identity) {
		return common.Address{}, core.ErrMalformedIdentity
	}
	return common.HexToAddress(identity), nil
}
