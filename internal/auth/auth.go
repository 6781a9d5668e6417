// Package auth issues and validates the session tokens that tie HTTP
// requests to user or guest accounts, and verifies the wallet-ownership
// signatures clients submit when linking a Solana wallet.
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// ErrInvalidSignature is returned when the signed message does not
// verify against the wallet's public key.
var ErrInvalidSignature = errors.New("invalid wallet signature")

// VerifyWalletSignature checks that the holder of the wallet's private
// key signed the given message. The wallet address is the base58-encoded
// ed25519 public key; the signature is base58-encoded as well.
func VerifyWalletSignature(wallet, signature, message string) error {
	publicKey, err := base58.Decode(wallet)
	if err != nil {
		return fmt.Errorf("decode wallet address: %w", err)
	}
	if len(publicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("wallet address is not a valid ed25519 public key")
	}

	sig, err := base58.Decode(signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return ErrInvalidSignature
	}

	if !ed25519.Verify(ed25519.PublicKey(publicKey), []byte(message), sig) {
		return ErrInvalidSignature
	}
	return nil
}
