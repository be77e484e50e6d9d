package protocols

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvest-move/harvest/internal/types"
)

const (
	testModuleAddress = "0x1234"
	testUserAddress   = "0xa11ce"
)

func TestNewJouleAdapter_Validation(t *testing.T) {
	t.Parallel()

	chain := &fakeChain{}
	quotes := &fakePrices{}

	_, err := NewJouleAdapter("", chain, quotes)
	require.Error(t, err)

	_, err = NewJouleAdapter(testModuleAddress, nil, quotes)
	require.Error(t, err)

	_, err = NewJouleAdapter(testModuleAddress, chain, nil)
	require.Error(t, err)
}

func TestJouleAdapter_GetPendingRewards(t *testing.T) {
	t.Parallel()

	t.Run("accrued incentives", func(t *testing.T) {
		chain := &fakeChain{viewFunc: func(_ context.Context, function string, _ []string, _ [][]byte) ([]any, error) {
			require.True(t, strings.HasSuffix(function, "::rewards::pending_rewards"))
			return []any{"2500000000"}, nil
		}}
		adapter, err := NewJouleAdapter(testModuleAddress, chain, &fakePrices{quotes: map[string]float64{"MOVE": 2.0}})
		require.NoError(t, err)

		rewards, err := adapter.GetPendingRewards(context.Background(), testUserAddress)
		require.NoError(t, err)
		require.Len(t, rewards, 1)

		reward := rewards[0]
		assert.Equal(t, "joule-move-reward", reward.ID)
		assert.Equal(t, types.ProtocolJoule, reward.ProtocolID)
		assert.Equal(t, "MOVE", reward.TokenSymbol)
		assert.True(t, reward.Claimable)
		assert.InDelta(t, 50.0, reward.ValueUSD, 0.0001)
	})

	t.Run("zero balance means no rewards", func(t *testing.T) {
		chain := &fakeChain{viewFunc: func(context.Context, string, []string, [][]byte) ([]any, error) {
			return []any{"0"}, nil
		}}
		adapter, err := NewJouleAdapter(testModuleAddress, chain, &fakePrices{})
		require.NoError(t, err)

		rewards, err := adapter.GetPendingRewards(context.Background(), testUserAddress)
		require.NoError(t, err)
		assert.Empty(t, rewards)
	})

	t.Run("view failure is adapter unavailable", func(t *testing.T) {
		chain := &fakeChain{viewFunc: func(context.Context, string, []string, [][]byte) ([]any, error) {
			return nil, errors.New("node down")
		}}
		adapter, err := NewJouleAdapter(testModuleAddress, chain, &fakePrices{})
		require.NoError(t, err)

		_, err = adapter.GetPendingRewards(context.Background(), testUserAddress)
		require.ErrorIs(t, err, ErrAdapterUnavailable)
	})
}

func TestJouleAdapter_BuildClaimTransaction(t *testing.T) {
	t.Parallel()

	t.Run("claims whole accrued balance", func(t *testing.T) {
		chain := &fakeChain{viewFunc: func(context.Context, string, []string, [][]byte) ([]any, error) {
			return []any{"100000000"}, nil
		}}
		adapter, err := NewJouleAdapter(testModuleAddress, chain, &fakePrices{quotes: map[string]float64{"MOVE": 1.0}})
		require.NoError(t, err)

		payload, err := adapter.BuildClaimTransaction(context.Background(), testUserAddress, nil)
		require.NoError(t, err)
		assert.Equal(t, testModuleAddress+"::rewards::claim_all", payload.Function)
		assert.Empty(t, payload.Arguments)
	})

	t.Run("nothing accrued", func(t *testing.T) {
		chain := &fakeChain{viewFunc: func(context.Context, string, []string, [][]byte) ([]any, error) {
			return []any{"0"}, nil
		}}
		adapter, err := NewJouleAdapter(testModuleAddress, chain, &fakePrices{})
		require.NoError(t, err)

		_, err = adapter.BuildClaimTransaction(context.Background(), testUserAddress, nil)
		require.ErrorIs(t, err, ErrNoRewardsToClaim)
	})

	t.Run("unknown reward id", func(t *testing.T) {
		chain := &fakeChain{viewFunc: func(context.Context, string, []string, [][]byte) ([]any, error) {
			return []any{"100000000"}, nil
		}}
		adapter, err := NewJouleAdapter(testModuleAddress, chain, &fakePrices{quotes: map[string]float64{"MOVE": 1.0}})
		require.NoError(t, err)

		_, err = adapter.BuildClaimTransaction(context.Background(), testUserAddress, []string{"yuzu-move-usdc-reward"})
		require.ErrorIs(t, err, ErrNoRewardsToClaim)
	})
}

func TestJouleAdapter_GetPositions(t *testing.T) {
	t.Parallel()

	// Only the MOVE market has a position; other markets answer like a missing
	// resource.
	chain := &fakeChain{viewFunc: func(_ context.Context, function string, _ []string, args [][]byte) ([]any, error) {
		if strings.HasSuffix(function, "::lens::market_data") {
			return []any{"750", "1250"}, nil
		}
		// The second argument encodes the market symbol; MOVE is the only
		// 4-letter symbol with a leading M in the table.
		if len(args) > 1 && strings.Contains(string(args[1]), "MOVE") {
			return []any{"300000000", "0"}, nil
		}
		return nil, errors.New("resource not found")
	}}

	adapter, err := NewJouleAdapter(testModuleAddress, chain, &fakePrices{quotes: map[string]float64{"MOVE": 2.0}})
	require.NoError(t, err)

	positions, err := adapter.GetPositions(context.Background(), testUserAddress)
	require.NoError(t, err)
	require.Len(t, positions, 1)

	position := positions[0]
	assert.Equal(t, "joule-MOVE-supply", position.ID)
	assert.Equal(t, types.PositionSupply, position.Kind)
	assert.InDelta(t, 6.0, position.ValueUSD, 0.0001)
	assert.InDelta(t, 7.5, position.APY, 0.0001)
}
