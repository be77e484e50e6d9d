package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvest-move/harvest/internal/sponsor"
	"github.com/harvest-move/harvest/internal/types"
	"github.com/harvest-move/harvest/internal/wallet"
)

// fakeBuilder scripts which protocols survive the payload build.
type fakeBuilder struct {
	drop map[types.ProtocolID]bool
}

func (f *fakeBuilder) BuildBatchClaimPayload(_ context.Context, _ string, claims []types.ClaimRequest) ([]types.TransactionPayload, []types.ProtocolID) {
	var payloads []types.TransactionPayload
	var ids []types.ProtocolID
	for _, claim := range claims {
		if f.drop[claim.Protocol] {
			continue
		}
		payloads = append(payloads, types.TransactionPayload{Function: string(claim.Protocol) + "::rewards::claim"})
		ids = append(ids, claim.Protocol)
	}
	return payloads, ids
}

type fakeSigner struct {
	connected     bool
	sponsorErr    error
	submitErr     error
	sponsorCalls  int
	submitCalls   int
	disconnectedN int
}

func (f *fakeSigner) Address() string { return "0xa11ce" }
func (f *fakeSigner) Connected() bool { return f.connected }
func (f *fakeSigner) Disconnect() error {
	f.disconnectedN++
	return nil
}

func (f *fakeSigner) SignAndSubmitTransaction(_ context.Context, _ types.TransactionPayload) (string, error) {
	f.submitCalls++
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return fmt.Sprintf("0xdirect%d", f.submitCalls), nil
}

func (f *fakeSigner) SignForSponsorship(_ context.Context, _ types.TransactionPayload) (*types.SignedTransactionData, error) {
	f.sponsorCalls++
	if f.sponsorErr != nil {
		return nil, f.sponsorErr
	}
	return &types.SignedTransactionData{RawTransaction: []byte{1}, SenderAuthenticator: []byte{2}, Sender: "0xa11ce"}, nil
}

type fakeSponsor struct {
	enabled bool
	err     error
	calls   int
}

func (f *fakeSponsor) Enabled() bool { return f.enabled }
func (f *fakeSponsor) SubmitSponsored(_ context.Context, _ *types.SignedTransactionData) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("0xsponsored%d", f.calls), nil
}

// fakeFinality scripts per-hash execution outcomes; unscripted hashes succeed.
type fakeFinality struct {
	failures map[string]string
}

func (f *fakeFinality) WaitForExecution(_ context.Context, txHash string) (*types.ExecutionResult, error) {
	if vmStatus, failed := f.failures[txHash]; failed {
		return &types.ExecutionResult{TxHash: txHash, Success: false, VMStatus: vmStatus}, nil
	}
	return &types.ExecutionResult{TxHash: txHash, Success: true, VMStatus: "Executed successfully"}, nil
}

type fakeRecorder struct {
	records []types.ClaimRecord
}

func (f *fakeRecorder) RecordClaim(_ context.Context, record types.ClaimRecord) {
	f.records = append(f.records, record)
}

func selection(protocol types.ProtocolID, rewardID string, usd float64) types.ClaimSelection {
	return types.ClaimSelection{
		Protocol: protocol,
		Rewards: []types.RewardItem{{
			ID:         rewardID,
			ProtocolID: protocol,
			Amount:     sdkmath.NewInt(1500000000),
			ValueUSD:   usd,
			Claimable:  true,
		}},
	}
}

func newTestOrchestrator(t *testing.T, cfg Config) *Orchestrator {
	t.Helper()
	if cfg.Builder == nil {
		cfg.Builder = &fakeBuilder{}
	}
	if cfg.Finality == nil {
		cfg.Finality = &fakeFinality{}
	}
	orch, err := New(cfg)
	require.NoError(t, err)
	return orch
}

func TestRun_SponsoredSuccess(t *testing.T) {
	t.Parallel()

	signer := &fakeSigner{connected: true}
	relay := &fakeSponsor{enabled: true}
	recorder := &fakeRecorder{}

	orch := newTestOrchestrator(t, Config{
		Signer:    signer,
		Sponsor:   relay,
		Recorders: []ClaimRecorder{recorder},
	})

	final, err := orch.Run(context.Background(), []types.ClaimSelection{
		selection(types.ProtocolJoule, "joule-move-reward", 15),
	})
	require.NoError(t, err)

	assert.Equal(t, types.BatchCompleted, final.Status)
	require.Len(t, final.Results, 1)

	result := final.Results[0]
	assert.Equal(t, types.ClaimSuccess, result.Status)
	assert.True(t, result.WasSponsored)
	assert.Equal(t, "0xsponsored1", result.TxHash)
	assert.InDelta(t, 15.0, result.AmountUSD, 0.0001)

	// Direct submission was never needed.
	assert.Zero(t, signer.submitCalls)

	require.Len(t, recorder.records, 1)
	assert.Equal(t, "0xa11ce", recorder.records[0].Address)
	assert.True(t, recorder.records[0].Sponsored)
}

func TestRun_DisconnectedWalletLeavesStateIdle(t *testing.T) {
	t.Parallel()

	relay := &fakeSponsor{enabled: true}
	orch := newTestOrchestrator(t, Config{
		Signer:  &fakeSigner{connected: false},
		Sponsor: relay,
	})

	final, err := orch.Run(context.Background(), []types.ClaimSelection{
		selection(types.ProtocolJoule, "joule-move-reward", 15),
	})
	require.ErrorIs(t, err, wallet.ErrWalletNotConnected)

	assert.Equal(t, types.BatchIdle, final.Status)
	assert.Empty(t, final.Results)
	assert.Empty(t, final.RunID)
	assert.Zero(t, relay.calls)
}

func TestRun_PartialFailureStillCompletes(t *testing.T) {
	t.Parallel()

	relay := &fakeSponsor{enabled: true}
	// The second sponsored transaction aborts in the VM.
	finality := &fakeFinality{failures: map[string]string{"0xsponsored2": "ABORTED: E_NOTHING_STAKED"}}

	orch := newTestOrchestrator(t, Config{
		Signer:   &fakeSigner{connected: true},
		Sponsor:  relay,
		Finality: finality,
	})

	final, err := orch.Run(context.Background(), []types.ClaimSelection{
		selection(types.ProtocolJoule, "joule-move-reward", 15),
		selection(types.ProtocolMeridian, "meridian-move-reward", 5),
	})
	require.NoError(t, err)

	assert.Equal(t, types.BatchCompleted, final.Status)
	require.Len(t, final.Results, 2)
	assert.Equal(t, types.ClaimSuccess, final.Results[0].Status)
	assert.Equal(t, types.ClaimFailed, final.Results[1].Status)
	assert.Contains(t, final.Results[1].Error, "E_NOTHING_STAKED")
}

func TestRun_DroppedProtocolGetsNoResult(t *testing.T) {
	t.Parallel()

	orch := newTestOrchestrator(t, Config{
		Builder: &fakeBuilder{drop: map[types.ProtocolID]bool{types.ProtocolYuzu: true}},
		Signer:  &fakeSigner{connected: true},
	})

	final, err := orch.Run(context.Background(), []types.ClaimSelection{
		selection(types.ProtocolJoule, "joule-move-reward", 15),
		selection(types.ProtocolYuzu, "yuzu-move-usdc-reward", 3),
	})
	require.NoError(t, err)

	require.Len(t, final.Results, 1)
	assert.Equal(t, types.ProtocolJoule, final.Results[0].Protocol)
}

func TestRun_NothingBuildable(t *testing.T) {
	t.Parallel()

	orch := newTestOrchestrator(t, Config{
		Builder: &fakeBuilder{drop: map[types.ProtocolID]bool{types.ProtocolJoule: true}},
		Signer:  &fakeSigner{connected: true},
	})

	final, err := orch.Run(context.Background(), []types.ClaimSelection{
		selection(types.ProtocolJoule, "joule-move-reward", 15),
	})
	require.ErrorIs(t, err, ErrNothingToDo)
	assert.Equal(t, types.BatchFailed, final.Status)
}

func TestRun_SponsorshipFallback(t *testing.T) {
	t.Parallel()

	fallbackErrors := []error{
		sponsor.ErrRateLimited,
		sponsor.ErrFundDepleted,
		sponsor.ErrSponsorshipFailed,
	}

	for _, sponsorErr := range fallbackErrors {
		t.Run(SponsorErrorClass(sponsorErr), func(t *testing.T) {
			signer := &fakeSigner{connected: true}
			orch := newTestOrchestrator(t, Config{
				Signer:  signer,
				Sponsor: &fakeSponsor{enabled: true, err: sponsorErr},
			})

			final, err := orch.Run(context.Background(), []types.ClaimSelection{
				selection(types.ProtocolJoule, "joule-move-reward", 15),
			})
			require.NoError(t, err)

			assert.Equal(t, types.BatchCompleted, final.Status)
			require.Len(t, final.Results, 1)
			assert.Equal(t, types.ClaimSuccess, final.Results[0].Status)
			assert.False(t, final.Results[0].WasSponsored)
			assert.Equal(t, 1, signer.submitCalls)
		})
	}
}

func TestRun_AllClaimsFailed(t *testing.T) {
	t.Parallel()

	orch := newTestOrchestrator(t, Config{
		Signer: &fakeSigner{
			connected: true,
			submitErr: errors.Join(wallet.ErrOnChainExecutionFailed, errors.New("ABORTED")),
		},
	})

	final, err := orch.Run(context.Background(), []types.ClaimSelection{
		selection(types.ProtocolJoule, "joule-move-reward", 15),
	})
	require.NoError(t, err)

	assert.Equal(t, types.BatchFailed, final.Status)
	require.Len(t, final.Results, 1)
	assert.Equal(t, types.ClaimFailed, final.Results[0].Status)
}

func TestSponsorErrorClass(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "rate_limited", SponsorErrorClass(fmt.Errorf("wrapped: %w", sponsor.ErrRateLimited)))
	assert.Equal(t, "fund_depleted", SponsorErrorClass(sponsor.ErrFundDepleted))
	assert.Equal(t, "sponsorship_failed", SponsorErrorClass(errors.New("anything else")))
}
