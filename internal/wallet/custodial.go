package wallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/aptos-labs/aptos-go-sdk"
	"github.com/aptos-labs/aptos-go-sdk/bcs"
	"github.com/aptos-labs/aptos-go-sdk/crypto"
	"github.com/rs/zerolog"

	"github.com/harvest-move/harvest/internal/logger"
	"github.com/harvest-move/harvest/internal/movement"
	"github.com/harvest-move/harvest/internal/types"
)

// RawSigner produces an ed25519 signature over an arbitrary signing message.
// The custodial provider exposes exactly this: it holds the key, we hold
// nothing.
type RawSigner interface {
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
}

// custodialSignRequest is the wire shape of the provider's raw-sign endpoint.
type custodialSignRequest struct {
	Address string `json:"address"`
	Message string `json:"message"`
}

type custodialSignResponse struct {
	Signature string `json:"signature"`
	Error     string `json:"error,omitempty"`
}

// ProviderClient talks to the custodial signing provider over HTTPS.
type ProviderClient struct {
	baseURL    string
	authToken  string
	address    string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewProviderClient(baseURL, authToken, address string) *ProviderClient {
	return &ProviderClient{
		baseURL:    baseURL,
		authToken:  authToken,
		address:    address,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        logger.GetForComponent("wallet_provider"),
	}
}

// SignMessage submits the signing message to the provider and returns the raw
// 64-byte ed25519 signature.
func (p *ProviderClient) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	body, err := json.Marshal(custodialSignRequest{
		Address: p.address,
		Message: "0x" + hex.EncodeToString(message),
	})
	if err != nil {
		return nil, errors.Join(ErrSigningFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/sign", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Join(ErrSigningFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errors.Join(ErrSigningFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, errors.Join(ErrSigningFailed, err)
	}

	var parsed custodialSignResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: unparseable provider response (status %d)", ErrSigningFailed, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != "" {
			return nil, fmt.Errorf("%w: provider returned %d: %s", ErrSigningFailed, resp.StatusCode, parsed.Error)
		}
		return nil, fmt.Errorf("%w: provider returned %d", ErrSigningFailed, resp.StatusCode)
	}
	if parsed.Signature == "" {
		return nil, fmt.Errorf("%w: provider response missing signature", ErrSigningFailed)
	}

	signature, err := decodeHexPayload(parsed.Signature)
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}
	return signature, nil
}

// CustodialSigner signs through a remote raw-sign provider. The provider only
// ever sees opaque signing messages; transaction assembly and submission stay
// on our side.
type CustodialSigner struct {
	chain     *movement.Client
	provider  RawSigner
	address   aptos.AccountAddress
	publicKey *crypto.Ed25519PublicKey
	log       zerolog.Logger

	mu        sync.Mutex
	connected bool
}

// NewCustodialSigner wires a remote provider against a known account address
// and its ed25519 public key. The key goes through NormalizePublicKey, so both
// the raw 32-byte and the scheme-prefixed 33-byte encodings are accepted.
func NewCustodialSigner(chain *movement.Client, provider RawSigner, address, publicKeyHex string) (*CustodialSigner, error) {
	accountAddress, err := movement.ParseAddress(address)
	if err != nil {
		return nil, err
	}

	keyBytes, err := NormalizePublicKey(publicKeyHex)
	if err != nil {
		return nil, err
	}

	publicKey := &crypto.Ed25519PublicKey{}
	if err := publicKey.FromBytes(keyBytes); err != nil {
		return nil, errors.Join(ErrInvalidPublicKey, err)
	}

	signer := &CustodialSigner{
		chain:     chain,
		provider:  provider,
		address:   accountAddress,
		publicKey: publicKey,
		log:       logger.GetForComponent("wallet_custodial"),
		connected: true,
	}

	signer.log.Info().Str("address", signer.Address()).Msg("Custodial wallet connected")
	return signer, nil
}

func (s *CustodialSigner) Address() string {
	return s.address.StringLong()
}

func (s *CustodialSigner) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *CustodialSigner) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

// SignAndSubmitTransaction routes the signing message through the provider,
// assembles the authenticator locally, submits, then waits for execution. A
// transaction that lands but aborts in the VM surfaces as
// ErrOnChainExecutionFailed with the hash still returned.
func (s *CustodialSigner) SignAndSubmitTransaction(ctx context.Context, payload types.TransactionPayload) (string, error) {
	if !s.Connected() {
		return "", ErrWalletNotConnected
	}

	rawTxn, err := s.chain.BuildTransaction(s.address, payload)
	if err != nil {
		return "", err
	}

	message, err := rawTxn.SigningMessage()
	if err != nil {
		return "", errors.Join(ErrSigningFailed, err)
	}

	signatureBytes, err := s.provider.SignMessage(ctx, message)
	if err != nil {
		return "", err
	}

	auth, err := assembleAuthenticator(s.publicKey, signatureBytes)
	if err != nil {
		return "", err
	}

	signedTxn, err := rawTxn.SignedTransactionWithAuthenticator(auth)
	if err != nil {
		return "", errors.Join(ErrSigningFailed, err)
	}

	txHash, err := s.chain.Submit(signedTxn)
	if err != nil {
		return "", err
	}

	result, err := s.chain.WaitForExecution(ctx, txHash)
	if err != nil {
		return txHash, err
	}
	if !result.Success {
		s.log.Error().
			Str("tx_hash", txHash).
			Str("vm_status", result.VMStatus).
			Msg("Transaction aborted on chain")
		return txHash, fmt.Errorf("%w: %s", ErrOnChainExecutionFailed, result.VMStatus)
	}

	s.log.Info().
		Str("tx_hash", txHash).
		Str("function", payload.Function).
		Msg("Transaction executed")
	return txHash, nil
}

// SignForSponsorship builds a fee-payer transaction, has the provider sign
// the sender slot, and returns the serialized pieces for relay submission.
func (s *CustodialSigner) SignForSponsorship(ctx context.Context, payload types.TransactionPayload) (*types.SignedTransactionData, error) {
	if !s.Connected() {
		return nil, ErrWalletNotConnected
	}

	rawTxn, err := s.chain.BuildFeePayerTransaction(s.address, payload)
	if err != nil {
		return nil, err
	}

	message, err := rawTxn.SigningMessage()
	if err != nil {
		return nil, errors.Join(ErrSigningFailed, err)
	}

	signatureBytes, err := s.provider.SignMessage(ctx, message)
	if err != nil {
		return nil, err
	}

	auth, err := assembleAuthenticator(s.publicKey, signatureBytes)
	if err != nil {
		return nil, err
	}

	rawBytes, err := bcs.Serialize(rawTxn)
	if err != nil {
		return nil, errors.Join(ErrSigningFailed, err)
	}
	authBytes, err := bcs.Serialize(auth)
	if err != nil {
		return nil, errors.Join(ErrSigningFailed, err)
	}

	return &types.SignedTransactionData{
		RawTransaction:      rawBytes,
		SenderAuthenticator: authBytes,
		Sender:              s.Address(),
	}, nil
}
