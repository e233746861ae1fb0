package main

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
	"github.com/spf13/cobra"
)

const (
	schemeEd25519  = "ed25519"
	schemeEthereum = "ethereum"
)

func newKeygenCmd() *cobra.Command {
	var scheme string
	var accessToken bool

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a test wallet or an access-token signing key",
		Long: `Generate a wallet key pair for exercising the login flow, or with
--access-token a PEM encoded P-256 key for ACCESS_TOKEN_KEY_FILE.

Examples:
  remitgate keygen
  remitgate keygen --scheme ethereum
  remitgate keygen --access-token > access.pem`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if accessToken {
				key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
				if err != nil {
					return err
				}
				der, err := x509.MarshalECPrivateKey(key)
				if err != nil {
					return fmt.Errorf("failed to encode key: %w", err)
				}
				return pem.Encode(out, &pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
			}

			identity, private, err := generateWallet(scheme)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "identity:    %s\nprivate key: %s\n", identity, private)
			return nil
		},
	}

	cmd.Flags().StringVar(&scheme, "scheme", schemeEd25519, "Wallet scheme (ed25519, ethereum)")
	cmd.Flags().BoolVar(&accessToken, "access-token", false, "Generate a P-256 access-token signing key in PEM")
	return cmd
}

func newSignCmd() *cobra.Command {
	var scheme, key, nonce string

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a login nonce with a test wallet key",
		Long: `Sign the raw bytes of a hex nonce the way a wallet does for /auth/login.

Examples:
  remitgate sign --key <hex> --nonce <hex>
  remitgate sign --scheme ethereum --key <hex> --nonce <hex>`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			signature, err := signNonce(scheme, key, nonce)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signature)
			return nil
		},
	}

	cmd.Flags().StringVar(&scheme, "scheme", schemeEd25519, "Wallet scheme (ed25519, ethereum)")
	cmd.Flags().StringVar(&key, "key", "", "Hex private key printed by keygen")
	cmd.Flags().StringVar(&nonce, "nonce", "", "Hex nonce from /auth/challenge")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("nonce")
	return cmd
}

// generateWallet returns the wallet identity and hex private key
func generateWallet(scheme string) (string, string, error) {
	switch scheme {
	case schemeEd25519:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return "", "", err
		}
		return base58.Encode(pub), hex.EncodeToString(priv.Seed()), nil
	case schemeEthereum:
		key, err := crypto.GenerateKey()
		if err != nil {
			return "", "", err
		}
		return crypto.PubkeyToAddress(key.PublicKey).Hex(), hex.EncodeToString(crypto.FromECDSA(key)), nil
	default:
		return "", "", fmt.Errorf("unknown scheme %q", scheme)
	}
}

// signNonce signs the decoded nonce bytes and returns a 0x hex signature
func signNonce(scheme, keyHex, nonceHex string) (string, error) {
	message, err := hex.DecodeString(strings.TrimPrefix(nonceHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("nonce is not hex: %w", err)
	}
	keyBytes, err := hex.DecodeString(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("key is not hex: %w", err)
	}

	switch scheme {
	case schemeEd25519:
		if len(keyBytes) != ed25519.SeedSize {
			return "", fmt.Errorf("ed25519 key must be a %d byte seed", ed25519.SeedSize)
		}
		sig := ed25519.Sign(ed25519.NewKeyFromSeed(keyBytes), message)
		return "0x" + hex.EncodeToString(sig), nil
	case schemeEthereum:
		key, err := crypto.ToECDSA(keyBytes)
		if err != nil {
			return "", fmt.Errorf("invalid ethereum key: %w", err)
		}
		sig, err := crypto.Sign(accounts.TextHash(message), key)
		if err != nil {
			return "", err
		}
		sig[crypto.RecoveryIDOffset] += 27
		return "0x" + hex.EncodeToString(sig), nil
	default:
		return "", fmt.Errorf("unknown scheme %q", scheme)
	}
}
