package wallet

import (
	"context"
	"errors"
	"sync"

	"github.com/aptos-labs/aptos-go-sdk"
	"github.com/aptos-labs/aptos-go-sdk/bcs"
	"github.com/aptos-labs/aptos-go-sdk/crypto"
	"github.com/rs/zerolog"

	"github.com/harvest-move/harvest/internal/logger"
	"github.com/harvest-move/harvest/internal/movement"
	"github.com/harvest-move/harvest/internal/types"
)

// LocalSigner signs with an ed25519 private key held in process memory. This
// is the native-wallet path: the key never leaves the host and submission goes
// straight to the fullnode.
type LocalSigner struct {
	chain   *movement.Client
	account *aptos.Account
	log     zerolog.Logger

	mu        sync.Mutex
	connected bool
}

// NewLocalSigner derives the account from the given hex private key.
func NewLocalSigner(chain *movement.Client, privateKeyHex string) (*LocalSigner, error) {
	if privateKeyHex == "" {
		return nil, errors.Join(ErrSigningFailed, errors.New("private key is empty"))
	}

	key := &crypto.Ed25519PrivateKey{}
	if err := key.FromHex(privateKeyHex); err != nil {
		return nil, errors.Join(ErrSigningFailed, err)
	}

	account, err := aptos.NewAccountFromSigner(key)
	if err != nil {
		return nil, errors.Join(ErrSigningFailed, err)
	}

	signer := &LocalSigner{
		chain:     chain,
		account:   account,
		log:       logger.GetForComponent("wallet_local"),
		connected: true,
	}

	signer.log.Info().Str("address", signer.Address()).Msg("Local wallet connected")
	return signer, nil
}

func (s *LocalSigner) Address() string {
	return s.account.Address.StringLong()
}

func (s *LocalSigner) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *LocalSigner) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

// SignAndSubmitTransaction builds, signs and submits the payload. It returns
// as soon as the node accepts the submission; finality is the caller's
// concern.
func (s *LocalSigner) SignAndSubmitTransaction(ctx context.Context, payload types.TransactionPayload) (string, error) {
	if !s.Connected() {
		return "", ErrWalletNotConnected
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	rawTxn, err := s.chain.BuildTransaction(s.account.Address, payload)
	if err != nil {
		return "", err
	}

	signedTxn, err := rawTxn.SignedTransaction(s.account)
	if err != nil {
		return "", errors.Join(ErrSigningFailed, err)
	}

	txHash, err := s.chain.Submit(signedTxn)
	if err != nil {
		return "", err
	}

	s.log.Info().
		Str("tx_hash", txHash).
		Str("function", payload.Function).
		Msg("Transaction submitted")
	return txHash, nil
}

// SignForSponsorship builds a fee-payer transaction, signs the sender slot and
// returns the serialized transaction and authenticator for relay submission.
func (s *LocalSigner) SignForSponsorship(ctx context.Context, payload types.TransactionPayload) (*types.SignedTransactionData, error) {
	if !s.Connected() {
		return nil, ErrWalletNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rawTxn, err := s.chain.BuildFeePayerTransaction(s.account.Address, payload)
	if err != nil {
		return nil, err
	}

	senderAuth, err := rawTxn.Sign(s.account)
	if err != nil {
		return nil, errors.Join(ErrSigningFailed, err)
	}

	rawBytes, err := bcs.Serialize(rawTxn)
	if err != nil {
		return nil, errors.Join(ErrSigningFailed, err)
	}
	authBytes, err := bcs.Serialize(senderAuth)
	if err != nil {
		return nil, errors.Join(ErrSigningFailed, err)
	}

	return &types.SignedTransactionData{
		RawTransaction:      rawBytes,
		SenderAuthenticator: authBytes,
		Sender:              s.Address(),
	}, nil
}
