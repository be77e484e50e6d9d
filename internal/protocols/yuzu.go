/*

Yuzu adapter: concentrated-liquidity DEX on Movement. Positions are per-pool
LP positions; rewards are per-pool liquidity mining incentives collected
through the scripts module.

*/

package protocols

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/harvest-move/harvest/internal/logger"
	"github.com/harvest-move/harvest/internal/movement"
	"github.com/harvest-move/harvest/internal/types"
)

type yuzuPool struct {
	ID     string
	TokenX string
	TokenY string
	FeeBps int
}

// yuzuPools are the supported pools queried per address.
var yuzuPools = []yuzuPool{
	{ID: "move-usdc", TokenX: "MOVE", TokenY: "USDC", FeeBps: 3000},
	{ID: "move-usdt", TokenX: "MOVE", TokenY: "USDT", FeeBps: 3000},
	{ID: "eth-move", TokenX: "ETH", TokenY: "MOVE", FeeBps: 3000},
	{ID: "usdc-usdt", TokenX: "USDC", TokenY: "USDT", FeeBps: 100},
}

// YuzuAdapter integrates the Yuzu CLMM DEX.
type YuzuAdapter struct {
	moduleAddress string
	chain         ChainReader
	prices        PriceSource
	log           zerolog.Logger
}

// NewYuzuAdapter builds the adapter against the deployed module address.
func NewYuzuAdapter(moduleAddress string, chain ChainReader, prices PriceSource) (*YuzuAdapter, error) {
	if moduleAddress == "" {
		return nil, errors.New("yuzu module address cannot be empty")
	}
	if chain == nil {
		return nil, errors.New("chain reader cannot be nil")
	}
	if prices == nil {
		return nil, errors.New("price source cannot be nil")
	}
	return &YuzuAdapter{
		moduleAddress: moduleAddress,
		chain:         chain,
		prices:        prices,
		log:           logger.GetForComponent("yuzu_adapter"),
	}, nil
}

func (a *YuzuAdapter) ProtocolID() types.ProtocolID { return types.ProtocolYuzu }
func (a *YuzuAdapter) DisplayName() string          { return "Yuzu" }

// GetPositions queries each supported pool for the address's LP position.
// The view returns [liquidity, pending_fee_x, pending_fee_y, pending_reward].
func (a *YuzuAdapter) GetPositions(ctx context.Context, address string) ([]types.Position, error) {
	addressArg, err := movement.EncodeAddress(address)
	if err != nil {
		return nil, errors.Join(ErrAdapterUnavailable, err)
	}

	var positions []types.Position
	for _, pool := range yuzuPools {
		result, err := a.poolPosition(ctx, addressArg, pool.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Join(ErrAdapterUnavailable, err)
			}
			a.log.Debug().Str("pool", pool.ID).Str("address", address).Msg("No position in pool")
			continue
		}
		if len(result) == 0 {
			continue
		}

		liquidity, err := parseAmount(result[0])
		if err != nil {
			return nil, errors.Join(ErrAdapterUnavailable, err)
		}
		if !liquidity.IsPositive() {
			continue
		}

		// LP liquidity is denominated in the pool's X token for valuation.
		price := a.prices.TokenPrice(ctx, pool.TokenX)
		positions = append(positions, types.Position{
			ID:           "yuzu-" + pool.ID,
			ProtocolID:   types.ProtocolYuzu,
			Kind:         types.PositionLP,
			TokenSymbol:  pool.TokenX + "-" + pool.TokenY,
			TokenAddress: a.moduleAddress + "::liquidity_pool::" + pool.ID,
			Amount:       liquidity,
			ValueUSD:     usdValue(liquidity, pool.TokenX, price),
			Metadata: map[string]any{
				"pool_id": pool.ID,
				"fee_bps": pool.FeeBps,
			},
		})
	}

	a.log.Debug().Int("positions", len(positions)).Str("address", address).Msg("Yuzu positions fetched")
	return positions, nil
}

// GetPendingRewards returns per-pool liquidity mining incentives.
func (a *YuzuAdapter) GetPendingRewards(ctx context.Context, address string) ([]types.RewardItem, error) {
	addressArg, err := movement.EncodeAddress(address)
	if err != nil {
		return nil, errors.Join(ErrAdapterUnavailable, err)
	}

	var rewards []types.RewardItem
	for _, pool := range yuzuPools {
		result, err := a.poolPosition(ctx, addressArg, pool.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Join(ErrAdapterUnavailable, err)
			}
			continue
		}
		if len(result) < 4 {
			continue
		}

		pending, err := parseAmount(result[3])
		if err != nil {
			return nil, errors.Join(ErrAdapterUnavailable, err)
		}
		if !pending.IsPositive() {
			continue
		}

		price := a.prices.TokenPrice(ctx, "MOVE")
		rewards = append(rewards, types.RewardItem{
			ID:           fmt.Sprintf("yuzu-%s-reward", pool.ID),
			ProtocolID:   types.ProtocolYuzu,
			PositionID:   "yuzu-" + pool.ID,
			TokenSymbol:  "MOVE",
			TokenAddress: "0x1::aptos_coin::AptosCoin",
			Amount:       pending,
			ValueUSD:     usdValue(pending, "MOVE", price),
			Claimable:    true,
		})
	}

	return rewards, nil
}

// BuildClaimTransaction constructs a collect_rewards call covering every
// selected pool in one entry call.
func (a *YuzuAdapter) BuildClaimTransaction(ctx context.Context, address string, rewardIDs []string) (types.TransactionPayload, error) {
	rewards, err := a.GetPendingRewards(ctx, address)
	if err != nil {
		return types.TransactionPayload{}, err
	}

	selected := selectRewards(rewards, rewardIDs)
	if len(selected) == 0 {
		return types.TransactionPayload{}, ErrNoRewardsToClaim
	}

	poolIDs := make([]string, 0, len(selected))
	for _, reward := range selected {
		// Reward ids are "yuzu-<pool>-reward"; the position id carries the
		// pool id directly.
		poolIDs = append(poolIDs, reward.PositionID[len("yuzu-"):])
	}

	poolsArg, err := movement.EncodeStringVector(poolIDs)
	if err != nil {
		return types.TransactionPayload{}, fmt.Errorf("failed to encode pool ids: %w", err)
	}

	return types.TransactionPayload{
		Function:  a.moduleAddress + "::scripts::collect_rewards",
		Arguments: [][]byte{poolsArg},
	}, nil
}

func (a *YuzuAdapter) poolPosition(ctx context.Context, addressArg []byte, poolID string) ([]any, error) {
	poolArg, err := movement.EncodeString(poolID)
	if err != nil {
		return nil, err
	}
	return a.chain.View(ctx, a.moduleAddress+"::liquidity_pool::position_of", nil, [][]byte{addressArg, poolArg})
}
