package sponsor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/aptos-labs/aptos-go-sdk"
	"github.com/aptos-labs/aptos-go-sdk/bcs"
	"github.com/aptos-labs/aptos-go-sdk/crypto"
	"github.com/rs/zerolog"

	"github.com/harvest-move/harvest/internal/logger"
	"github.com/harvest-move/harvest/internal/movement"
	"github.com/harvest-move/harvest/internal/types"
)

// minSponsorBalanceOcta is the balance floor below which the gas station stops
// accepting work. Roughly 0.1 MOVE.
const minSponsorBalanceOcta = 10_000_000

var (
	ErrStationDisabled   = errors.New("gas station is not configured")
	ErrStationDepleted   = errors.New("gas station balance below floor")
	ErrMalformedEnvelope = errors.New("malformed sponsorship envelope")
)

// GasStation is the service side of sponsorship. It holds the funded sponsor
// key, countersigns fee-payer transactions and submits them.
type GasStation struct {
	chain    *movement.Client
	account  *aptos.Account
	inFlight atomic.Int64
	log      zerolog.Logger
}

// NewGasStation derives the sponsor account from its hex private key. An
// empty key disables the station rather than erroring, so deployments without
// sponsorship stay valid.
func NewGasStation(chain *movement.Client, privateKeyHex string) (*GasStation, error) {
	if privateKeyHex == "" {
		return nil, nil
	}

	key := &crypto.Ed25519PrivateKey{}
	if err := key.FromHex(privateKeyHex); err != nil {
		return nil, fmt.Errorf("invalid gas station key: %w", err)
	}

	account, err := aptos.NewAccountFromSigner(key)
	if err != nil {
		return nil, fmt.Errorf("gas station account derivation failed: %w", err)
	}

	station := &GasStation{
		chain:   chain,
		account: account,
		log:     logger.GetForComponent("gas_station"),
	}

	station.log.Info().Str("address", account.Address.StringLong()).Msg("Gas station enabled")
	return station, nil
}

// Sponsor countersigns the sender-signed envelope and submits it. The sender
// signature is never inspected beyond deserialization; the node verifies it.
func (g *GasStation) Sponsor(ctx context.Context, signed *types.SignedTransactionData) (string, error) {
	if g == nil {
		return "", ErrStationDisabled
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	balance, err := g.chain.OctaBalance(g.account.Address)
	if err != nil {
		return "", fmt.Errorf("sponsor balance check failed: %w", err)
	}
	if balance < minSponsorBalanceOcta {
		g.log.Warn().Uint64("balance_octa", balance).Msg("Gas station depleted")
		return "", ErrStationDepleted
	}

	rawTxn := &aptos.RawTransactionWithData{}
	if err := bcs.Deserialize(rawTxn, signed.RawTransaction); err != nil {
		return "", errors.Join(ErrMalformedEnvelope, err)
	}

	senderAuth := &crypto.AccountAuthenticator{}
	if err := bcs.Deserialize(senderAuth, signed.SenderAuthenticator); err != nil {
		return "", errors.Join(ErrMalformedEnvelope, err)
	}

	// The sender signed over the zero-address fee payer placeholder. Swap in
	// the real sponsor before countersigning.
	ok := rawTxn.SetFeePayer(g.account.Address)
	if !ok {
		return "", fmt.Errorf("%w: transaction has no fee payer slot", ErrMalformedEnvelope)
	}

	sponsorAuth, err := rawTxn.Sign(g.account)
	if err != nil {
		return "", fmt.Errorf("sponsor signing failed: %w", err)
	}

	signedTxn, ok := rawTxn.ToFeePayerSignedTransaction(senderAuth, sponsorAuth, []crypto.AccountAuthenticator{})
	if !ok {
		return "", fmt.Errorf("%w: fee payer assembly failed", ErrMalformedEnvelope)
	}

	g.inFlight.Add(1)
	defer g.inFlight.Add(-1)

	txHash, err := g.chain.Submit(signedTxn)
	if err != nil {
		return "", err
	}

	g.log.Info().
		Str("tx_hash", txHash).
		Str("sender", signed.Sender).
		Msg("Sponsored transaction submitted")
	return txHash, nil
}

// Status reports the sponsor account balance and current submission load.
func (g *GasStation) Status(ctx context.Context) FundStatus {
	if g == nil {
		return FundStatus{Available: false}
	}

	balance, err := g.chain.OctaBalance(g.account.Address)
	if err != nil {
		g.log.Warn().Err(err).Msg("Gas station balance check failed")
		return FundStatus{Available: false, InFlight: g.inFlight.Load()}
	}

	return FundStatus{
		Available: balance >= minSponsorBalanceOcta,
		Balance:   fmt.Sprintf("%d", balance),
		InFlight:  g.inFlight.Load(),
	}
}
