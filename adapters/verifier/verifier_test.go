package verifier

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/remitgate/core"
)

func nonceBytes(t *testing.T) (string, []byte) {
	t.Helper()
	raw := make([]byte, 32)
	_, err := rand.Read(raw)
	require.NoError(t, err)
	return hex.EncodeToString(raw), raw
}

func TestEd25519Verifier(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	identity := base58.Encode(pub)
	nonceHex, raw := nonceBytes(t)

	v := NewEd25519Verifier()

	canonical, err := v.ParseIdentity(identity)
	require.NoError(t, err)
	assert.Equal(t, identity, canonical)

	ok, err := v.Verify(identity, raw, ed25519.Sign(priv, raw))
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("signature over the hex text is rejected", func(t *testing.T) {
		ok, err := v.Verify(identity, raw, ed25519.Sign(priv, []byte(nonceHex)))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("malformed identity", func(t *testing.T) {
		_, err := v.Verify("not-base58-0OIl", raw, ed25519.Sign(priv, raw))
		assert.ErrorIs(t, err, core.ErrMalformedIdentity)

		_, err = v.ParseIdentity(base58.Encode(pub[:16]))
		assert.ErrorIs(t, err, core.ErrMalformedIdentity)
	})

	t.Run("malformed signature", func(t *testing.T) {
		_, err := v.Verify(identity, raw, []byte{1, 2, 3})
		assert.ErrorIs(t, err, core.ErrMalformedSignature)
	})
}

func TestEthereumVerifier(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey)
	nonceHex, raw := nonceBytes(t)

	sig, err := crypto.Sign(accounts.TextHash(raw), key)
	require.NoError(t, err)

	v := NewEthereumVerifier()

	canonical, err := v.ParseIdentity(address.Hex())
	require.NoError(t, err)
	assert.Equal(t, address.Hex(), canonical)

	lower, err := v.ParseIdentity("0x" + hex.EncodeToString(address.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, address.Hex(), lower)

	ok, err := v.Verify(address.Hex(), raw, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("wallet style recovery id", func(t *testing.T) {
		walletSig := append([]byte(nil), sig...)
		walletSig[64] += 27
		ok, err := v.Verify(address.Hex(), raw, walletSig)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("signature over the hex text is rejected", func(t *testing.T) {
		textSig, err := crypto.Sign(accounts.TextHash([]byte(nonceHex)), key)
		require.NoError(t, err)
		ok, err := v.Verify(address.Hex(), raw, textSig)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("other key", func(t *testing.T) {
		other, err := crypto.GenerateKey()
		require.NoError(t, err)
		otherSig, err := crypto.Sign(accounts.TextHash(raw), other)
		require.NoError(t, err)
		ok, err := v.Verify(address.Hex(), raw, otherSig)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("malformed input", func(t *testing.T) {
		_, err := v.ParseIdentity("0x1234")
		assert.ErrorIs(t, err, core.ErrMalformedIdentity)

		_, err = v.ParseIdentity(hex.EncodeToString(address.Bytes()))
		assert.ErrorIs(t, err, core.ErrMalformedIdentity)

		_, err = v.Verify(address.Hex(), raw, sig[:64])
		assert.ErrorIs(t, err, core.ErrMalformedSignature)

		bad := append([]byte(nil), sig...)
		bad[64] = 9
		_, err = v.Verify(address.Hex(), raw, bad)
		assert.ErrorIs(t, err, core.ErrMalformedSignature)
	})
}

func TestMultiVerifier(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	_, raw := nonceBytes(t)

	m := NewDefault()

	edID, err := m.ParseIdentity(" " + base58.Encode(pub) + " ")
	require.NoError(t, err)
	ok, err := m.Verify(edID, raw, ed25519.Sign(priv, raw))
	require.NoError(t, err)
	assert.True(t, ok)

	ethID, err := m.ParseIdentity(crypto.PubkeyToAddress(key.PublicKey).Hex())
	require.NoError(t, err)
	sig, err := crypto.Sign(accounts.TextHash(raw), key)
	require.NoError(t, err)
	ok, err = m.Verify(ethID, raw, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = m.ParseIdentity("")
	assert.ErrorIs(t, err, core.ErrMalformedIdentity)
	_, err = m.Verify("???", raw, sig)
	assert.ErrorIs(t, err, core.ErrMalformedIdentity)
}
