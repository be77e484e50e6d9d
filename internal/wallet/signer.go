/*

This file defines the single signing interface the rest of the system sees.
Two physically different backends implement it: a local keystore signer and a
remote custodial signing provider. Which one is active is resolved once at
startup; callers never branch on backend type.

*/

package wallet

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/aptos-labs/aptos-go-sdk/crypto"

	"github.com/harvest-move/harvest/internal/types"
)

// Error definitions for signing failures
var (
	ErrWalletNotConnected     = errors.New("wallet not connected")
	ErrOnChainExecutionFailed = errors.New("transaction execution failed on chain")
	ErrSigningFailed          = errors.New("transaction signing failed")
	ErrInvalidPublicKey       = errors.New("public key encoding is invalid")
	ErrInvalidSignature       = errors.New("signature encoding is invalid")
)

// Signer is the uniform signing surface over both backends.
type Signer interface {
	// Address is the connected account's hex address.
	Address() string

	// Connected reports whether a backend is currently usable. Every signing
	// call on a disconnected signer fails with ErrWalletNotConnected before
	// any chain interaction.
	Connected() bool

	// SignAndSubmitTransaction builds, signs and submits the payload with the
	// connected backend and returns the hash once the submission endpoint
	// accepts it.
	SignAndSubmitTransaction(ctx context.Context, payload types.TransactionPayload) (string, error)

	// SignForSponsorship builds the transaction with a fee-payer placeholder,
	// signs it, and returns the signed bytes without submitting. Sponsorship
	// submission happens out of band.
	SignForSponsorship(ctx context.Context, payload types.TransactionPayload) (*types.SignedTransactionData, error)

	// Disconnect tears the backend down. Idempotent.
	Disconnect() error
}

// NormalizePublicKey decodes a hex ed25519 public key, stripping an optional
// 0x prefix and, when the key is 33 bytes, the leading scheme-discriminator
// byte some providers prepend. Anything that does not reduce to 32 raw bytes
// is rejected.
func NormalizePublicKey(publicKeyHex string) ([]byte, error) {
	decoded, err := hex.DecodeString(strings.TrimPrefix(publicKeyHex, "0x"))
	if err != nil {
		return nil, errors.Join(ErrInvalidPublicKey, err)
	}

	switch len(decoded) {
	case 32:
		return decoded, nil
	case 33:
		if decoded[0] != 0x00 {
			return nil, fmt.Errorf("%w: 33-byte key with unexpected scheme byte 0x%02x", ErrInvalidPublicKey, decoded[0])
		}
		return decoded[1:], nil
	default:
		return nil, fmt.Errorf("%w: expected 32 or 33 bytes, got %d", ErrInvalidPublicKey, len(decoded))
	}
}

// assembleAuthenticator packs a raw ed25519 signature and public key into the
// sender account authenticator the node expects.
func assembleAuthenticator(publicKey *crypto.Ed25519PublicKey, signatureBytes []byte) (*crypto.AccountAuthenticator, error) {
	signature := &crypto.Ed25519Signature{}
	if err := signature.FromBytes(signatureBytes); err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}

	return &crypto.AccountAuthenticator{
		Variant: crypto.AccountAuthenticatorEd25519,
		Auth: &crypto.Ed25519Authenticator{
			PubKey: publicKey,
			Sig:    signature,
		},
	}, nil
}

// decodeHexPayload decodes hex with or without a 0x prefix.
func decodeHexPayload(value string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(value, "0x"))
}
