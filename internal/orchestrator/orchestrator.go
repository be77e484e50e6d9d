/*

Package orchestrator drives a batch claim run across multiple protocols as an
explicit state machine: idle -> preparing -> claiming -> completed | failed.
Claims execute strictly sequentially so a wallet backend that prompts or rate
limits is never asked to sign twice at once. Each protocol gets exactly one
attempt per run; a failed protocol never blocks the ones after it.

*/

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harvest-move/harvest/internal/logger"
	"github.com/harvest-move/harvest/internal/sponsor"
	"github.com/harvest-move/harvest/internal/types"
	"github.com/harvest-move/harvest/internal/wallet"
)

var (
	ErrRunInProgress = errors.New("a batch claim run is already in progress")
	ErrNothingToDo   = errors.New("no claimable payloads in batch")
)

// PayloadBuilder turns claim requests into ready-to-sign payloads. Protocols
// it cannot build for are dropped, keeping both slices index-aligned.
type PayloadBuilder interface {
	BuildBatchClaimPayload(ctx context.Context, address string, claims []types.ClaimRequest) ([]types.TransactionPayload, []types.ProtocolID)
}

// SponsorSubmitter relays a sender-signed transaction for gas sponsorship.
type SponsorSubmitter interface {
	Enabled() bool
	SubmitSponsored(ctx context.Context, signed *types.SignedTransactionData) (string, error)
}

// FinalityWaiter blocks until a submitted transaction reaches a terminal
// on-chain state.
type FinalityWaiter interface {
	WaitForExecution(ctx context.Context, txHash string) (*types.ExecutionResult, error)
}

// ClaimRecorder persists successful claims. Recording is best effort; a
// recorder failure never affects the run outcome.
type ClaimRecorder interface {
	RecordClaim(ctx context.Context, record types.ClaimRecord)
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Builder   PayloadBuilder
	Signer    wallet.Signer
	Sponsor   SponsorSubmitter
	Finality  FinalityWaiter
	Recorders []ClaimRecorder
}

func (c Config) validate() error {
	if c.Builder == nil {
		return errors.New("orchestrator requires a payload builder")
	}
	if c.Finality == nil {
		return errors.New("orchestrator requires a finality waiter")
	}
	return nil
}

// Orchestrator owns exactly one batch claim state machine.
type Orchestrator struct {
	builder   PayloadBuilder
	signer    wallet.Signer
	sponsor   SponsorSubmitter
	finality  FinalityWaiter
	recorders []ClaimRecorder
	log       zerolog.Logger

	mu      sync.Mutex
	running bool
	state   types.BatchClaimState
}

func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Orchestrator{
		builder:   cfg.Builder,
		signer:    cfg.Signer,
		sponsor:   cfg.Sponsor,
		finality:  cfg.Finality,
		recorders: cfg.Recorders,
		log:       logger.GetForComponent("orchestrator"),
		state:     types.BatchClaimState{Status: types.BatchIdle},
	}, nil
}

// State returns a snapshot of the current run. The Results slice is copied so
// observers never see in-place mutation.
func (o *Orchestrator) State() types.BatchClaimState {
	o.mu.Lock()
	defer o.mu.Unlock()

	snapshot := o.state
	snapshot.Results = make([]types.ProtocolClaimResult, len(o.state.Results))
	copy(snapshot.Results, o.state.Results)
	return snapshot
}

// Run executes one batch claim over the given selections. It returns the
// terminal state. A disconnected wallet fails the call before any state
// transition: the machine stays idle and no protocol is attempted.
func (o *Orchestrator) Run(ctx context.Context, selections []types.ClaimSelection) (types.BatchClaimState, error) {
	if o.signer == nil || !o.signer.Connected() {
		return o.State(), wallet.ErrWalletNotConnected
	}

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return o.State(), ErrRunInProgress
	}
	o.running = true
	runID := uuid.NewString()
	o.state = types.BatchClaimState{
		RunID:  runID,
		Status: types.BatchPreparing,
	}
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	address := o.signer.Address()
	o.log.Info().
		Str("run_id", runID).
		Str("address", address).
		Int("selections", len(selections)).
		Msg("Batch claim run starting")

	requests := make([]types.ClaimRequest, 0, len(selections))
	valueBySelection := make(map[types.ProtocolID]types.ClaimSelection, len(selections))
	for _, selection := range selections {
		requests = append(requests, selection.Request())
		valueBySelection[selection.Protocol] = selection
	}

	payloads, protocolIDs := o.builder.BuildBatchClaimPayload(ctx, address, requests)
	if len(payloads) == 0 {
		o.finish(types.BatchFailed, ErrNothingToDo.Error())
		return o.State(), ErrNothingToDo
	}

	// Protocols the builder dropped are never attempted and get no result slot.
	results := make([]types.ProtocolClaimResult, len(protocolIDs))
	for i, protocol := range protocolIDs {
		results[i] = types.ProtocolClaimResult{
			Protocol:  protocol,
			Status:    types.ClaimPending,
			AmountUSD: valueBySelection[protocol].ValueUSD(),
		}
	}

	o.mu.Lock()
	o.state.Status = types.BatchClaiming
	o.state.TotalClaims = len(payloads)
	o.state.Results = results
	o.mu.Unlock()

	successCount := 0
	for i, payload := range payloads {
		protocol := protocolIDs[i]

		o.mu.Lock()
		o.state.CurrentIndex = i
		o.state.CurrentProtocol = protocol
		o.mu.Unlock()

		result := o.claimOne(ctx, protocol, payload)
		result.AmountUSD = valueBySelection[protocol].ValueUSD()

		if result.Status == types.ClaimSuccess {
			successCount++
			o.record(ctx, address, valueBySelection[protocol], result)
		}

		o.mu.Lock()
		o.state.Results[i] = result
		o.mu.Unlock()
	}

	if successCount > 0 {
		o.finish(types.BatchCompleted, "")
	} else {
		o.finish(types.BatchFailed, "all protocol claims failed")
	}

	final := o.State()
	o.log.Info().
		Str("run_id", final.RunID).
		Str("status", string(final.Status)).
		Int("succeeded", successCount).
		Int("attempted", len(payloads)).
		Msg("Batch claim run finished")
	return final, nil
}

// claimOne executes a single protocol claim: sponsorship first when a relay is
// wired, user-paid fallback otherwise, then finality.
func (o *Orchestrator) claimOne(ctx context.Context, protocol types.ProtocolID, payload types.TransactionPayload) types.ProtocolClaimResult {
	result := types.ProtocolClaimResult{Protocol: protocol}

	txHash, sponsored, err := o.execute(ctx, protocol, payload)
	if err != nil {
		result.Status = types.ClaimFailed
		result.TxHash = txHash
		result.Error = err.Error()
		return result
	}

	result.TxHash = txHash
	result.WasSponsored = sponsored

	execution, err := o.finality.WaitForExecution(ctx, txHash)
	if err != nil {
		result.Status = types.ClaimFailed
		result.Error = err.Error()
		return result
	}
	if !execution.Success {
		result.Status = types.ClaimFailed
		result.Error = fmt.Sprintf("transaction aborted: %s", execution.VMStatus)
		return result
	}

	result.Status = types.ClaimSuccess
	return result
}

// execute submits the payload, preferring sponsorship. All three sponsorship
// failure classes fall back to user-paid gas; the signed fee-payer envelope is
// discarded and the transaction is rebuilt for direct submission.
func (o *Orchestrator) execute(ctx context.Context, protocol types.ProtocolID, payload types.TransactionPayload) (string, bool, error) {
	if o.sponsor != nil && o.sponsor.Enabled() {
		txHash, err := o.trySponsored(ctx, payload)
		if err == nil {
			return txHash, true, nil
		}
		o.log.Warn().Err(err).
			Str("protocol", string(protocol)).
			Str("failure_class", SponsorErrorClass(err)).
			Msg("Sponsorship unavailable, falling back to user-paid gas")
	}

	txHash, err := o.signer.SignAndSubmitTransaction(ctx, payload)
	return txHash, false, err
}

func (o *Orchestrator) trySponsored(ctx context.Context, payload types.TransactionPayload) (string, error) {
	signed, err := o.signer.SignForSponsorship(ctx, payload)
	if err != nil {
		return "", err
	}
	return o.sponsor.SubmitSponsored(ctx, signed)
}

// record fans the successful claim out to every recorder, one entry per
// claimed reward.
func (o *Orchestrator) record(ctx context.Context, address string, selection types.ClaimSelection, result types.ProtocolClaimResult) {
	claimedAt := time.Now().UTC()
	for _, reward := range selection.Rewards {
		record := types.ClaimRecord{
			Address:     address,
			Protocol:    selection.Protocol,
			TxHash:      result.TxHash,
			Amount:      reward.Amount.String(),
			TokenSymbol: reward.TokenSymbol,
			ValueUSD:    reward.ValueUSD,
			Sponsored:   result.WasSponsored,
			ClaimedAt:   claimedAt,
		}
		for _, recorder := range o.recorders {
			recorder.RecordClaim(ctx, record)
		}
	}
}

func (o *Orchestrator) finish(status types.BatchClaimStatus, errMessage string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state.Status = status
	o.state.Error = errMessage
	o.state.CurrentProtocol = ""
}

// SponsorErrorClass names the sponsorship failure class for logs and status
// surfaces.
func SponsorErrorClass(err error) string {
	switch {
	case errors.Is(err, sponsor.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, sponsor.ErrFundDepleted):
		return "fund_depleted"
	default:
		return "sponsorship_failed"
	}
}
