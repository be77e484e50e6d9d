/*

Meridian adapter: liquid staking (mMOVE) and yield vaults on Movement.
Positions are the address's staked balance and vault shares; rewards are MOVE
staking rewards claimable through the rewards module.

*/

package protocols

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/harvest-move/harvest/internal/logger"
	"github.com/harvest-move/harvest/internal/movement"
	"github.com/harvest-move/harvest/internal/types"
)

// MeridianAdapter integrates the Meridian liquid staking protocol.
type MeridianAdapter struct {
	moduleAddress string
	chain         ChainReader
	prices        PriceSource
	log           zerolog.Logger
}

// NewMeridianAdapter builds the adapter against the deployed module address.
func NewMeridianAdapter(moduleAddress string, chain ChainReader, prices PriceSource) (*MeridianAdapter, error) {
	if moduleAddress == "" {
		return nil, errors.New("meridian module address cannot be empty")
	}
	if chain == nil {
		return nil, errors.New("chain reader cannot be nil")
	}
	if prices == nil {
		return nil, errors.New("price source cannot be nil")
	}
	return &MeridianAdapter{
		moduleAddress: moduleAddress,
		chain:         chain,
		prices:        prices,
		log:           logger.GetForComponent("meridian_adapter"),
	}, nil
}

func (a *MeridianAdapter) ProtocolID() types.ProtocolID { return types.ProtocolMeridian }
func (a *MeridianAdapter) DisplayName() string          { return "Meridian" }

// GetPositions returns the address's liquid staking and vault positions.
func (a *MeridianAdapter) GetPositions(ctx context.Context, address string) ([]types.Position, error) {
	addressArg, err := movement.EncodeAddress(address)
	if err != nil {
		return nil, errors.Join(ErrAdapterUnavailable, err)
	}

	var positions []types.Position

	stakeResult, err := a.chain.View(ctx, a.moduleAddress+"::staking::get_user_stake", nil, [][]byte{addressArg})
	if err != nil {
		return nil, errors.Join(ErrAdapterUnavailable, err)
	}
	if len(stakeResult) > 0 {
		staked, err := parseAmount(stakeResult[0])
		if err != nil {
			return nil, errors.Join(ErrAdapterUnavailable, err)
		}
		if staked.IsPositive() {
			// mMOVE tracks MOVE via the exchange rate; close enough for
			// display purposes to price it as MOVE.
			price := a.prices.TokenPrice(ctx, "MOVE")
			positions = append(positions, types.Position{
				ID:           "meridian-mmove-stake",
				ProtocolID:   types.ProtocolMeridian,
				Kind:         types.PositionStake,
				TokenSymbol:  "mMOVE",
				TokenAddress: a.moduleAddress + "::liquid_staking::MMOVE",
				Amount:       staked,
				ValueUSD:     usdValue(staked, "MMOVE", price),
			})
		}
	}

	vaultResult, err := a.chain.View(ctx, a.moduleAddress+"::vault::get_position", nil, [][]byte{addressArg})
	if err != nil {
		// Vaults shipped after staking; treat a missing module as "no vault
		// position" rather than adapter failure, unless the node is gone.
		if ctx.Err() != nil {
			return nil, errors.Join(ErrAdapterUnavailable, err)
		}
		a.log.Debug().Str("address", address).Msg("No meridian vault position")
		return positions, nil
	}
	if len(vaultResult) > 0 {
		shares, err := parseAmount(vaultResult[0])
		if err != nil {
			return nil, errors.Join(ErrAdapterUnavailable, err)
		}
		if shares.IsPositive() {
			price := a.prices.TokenPrice(ctx, "MOVE")
			positions = append(positions, types.Position{
				ID:           "meridian-vault",
				ProtocolID:   types.ProtocolMeridian,
				Kind:         types.PositionVault,
				TokenSymbol:  "MOVE",
				TokenAddress: "0x1::aptos_coin::AptosCoin",
				Amount:       shares,
				ValueUSD:     usdValue(shares, "MOVE", price),
				Metadata:     map[string]any{"vault": "delta-neutral"},
			})
		}
	}

	a.log.Debug().Int("positions", len(positions)).Str("address", address).Msg("Meridian positions fetched")
	return positions, nil
}

// GetPendingRewards returns claimable MOVE staking rewards.
func (a *MeridianAdapter) GetPendingRewards(ctx context.Context, address string) ([]types.RewardItem, error) {
	addressArg, err := movement.EncodeAddress(address)
	if err != nil {
		return nil, errors.Join(ErrAdapterUnavailable, err)
	}

	result, err := a.chain.View(ctx, a.moduleAddress+"::rewards::pending", nil, [][]byte{addressArg})
	if err != nil {
		return nil, errors.Join(ErrAdapterUnavailable, err)
	}
	if len(result) == 0 {
		return nil, nil
	}

	pending, err := parseAmount(result[0])
	if err != nil {
		return nil, errors.Join(ErrAdapterUnavailable, err)
	}
	if !pending.IsPositive() {
		return nil, nil
	}

	price := a.prices.TokenPrice(ctx, "MOVE")
	return []types.RewardItem{{
		ID:           "meridian-move-reward",
		ProtocolID:   types.ProtocolMeridian,
		PositionID:   "meridian-mmove-stake",
		TokenSymbol:  "MOVE",
		TokenAddress: "0x1::aptos_coin::AptosCoin",
		Amount:       pending,
		ValueUSD:     usdValue(pending, "MOVE", price),
		Claimable:    true,
	}}, nil
}

// BuildClaimTransaction constructs the staking rewards claim call.
func (a *MeridianAdapter) BuildClaimTransaction(ctx context.Context, address string, rewardIDs []string) (types.TransactionPayload, error) {
	rewards, err := a.GetPendingRewards(ctx, address)
	if err != nil {
		return types.TransactionPayload{}, err
	}

	selected := selectRewards(rewards, rewardIDs)
	if len(selected) == 0 {
		return types.TransactionPayload{}, ErrNoRewardsToClaim
	}

	return types.TransactionPayload{
		Function: a.moduleAddress + "::rewards::claim",
	}, nil
}
