/*

Joule adapter: isolated lending markets on Movement. Positions are per-market
supply/borrow balances; rewards are MOVE liquidity incentives accrued across
the whole lending account.

*/

package protocols

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/harvest-move/harvest/internal/logger"
	"github.com/harvest-move/harvest/internal/movement"
	"github.com/harvest-move/harvest/internal/types"
)

type jouleMarket struct {
	Symbol   string
	Decimals int
	LTV      float64
}

// jouleMarkets are the isolated markets queried per address.
var jouleMarkets = []jouleMarket{
	{Symbol: "MOVE", Decimals: 8, LTV: 0.7},
	{Symbol: "USDC", Decimals: 6, LTV: 0.8},
	{Symbol: "USDT", Decimals: 6, LTV: 0.8},
	{Symbol: "WETH", Decimals: 8, LTV: 0.75},
}

// JouleAdapter integrates the Joule lending protocol.
type JouleAdapter struct {
	moduleAddress string
	chain         ChainReader
	prices        PriceSource
	log           zerolog.Logger
}

// NewJouleAdapter builds the adapter against the protocol's deployed module
// address. Callers must not construct one for an undeployed protocol.
func NewJouleAdapter(moduleAddress string, chain ChainReader, prices PriceSource) (*JouleAdapter, error) {
	if moduleAddress == "" {
		return nil, errors.New("joule module address cannot be empty")
	}
	if chain == nil {
		return nil, errors.New("chain reader cannot be nil")
	}
	if prices == nil {
		return nil, errors.New("price source cannot be nil")
	}
	return &JouleAdapter{
		moduleAddress: moduleAddress,
		chain:         chain,
		prices:        prices,
		log:           logger.GetForComponent("joule_adapter"),
	}, nil
}

func (a *JouleAdapter) ProtocolID() types.ProtocolID { return types.ProtocolJoule }
func (a *JouleAdapter) DisplayName() string          { return "Joule" }

func (a *JouleAdapter) viewFunction(name string) string {
	return a.moduleAddress + "::" + name
}

// GetPositions queries every isolated market for the address's supply and
// borrow balances.
func (a *JouleAdapter) GetPositions(ctx context.Context, address string) ([]types.Position, error) {
	addressArg, err := movement.EncodeAddress(address)
	if err != nil {
		return nil, errors.Join(ErrAdapterUnavailable, err)
	}

	var positions []types.Position
	for _, market := range jouleMarkets {
		marketArg, err := movement.EncodeString(market.Symbol)
		if err != nil {
			return nil, errors.Join(ErrAdapterUnavailable, err)
		}

		result, err := a.chain.View(ctx, a.viewFunction("lens::user_position"), nil, [][]byte{addressArg, marketArg})
		if err != nil {
			// A missing position resource is normal; a dead node is not. The
			// context tells them apart.
			if ctx.Err() != nil {
				return nil, errors.Join(ErrAdapterUnavailable, err)
			}
			a.log.Debug().Str("market", market.Symbol).Str("address", address).Msg("No position in market")
			continue
		}
		if len(result) == 0 {
			continue
		}

		supply, err := parseAmount(result[0])
		if err != nil {
			return nil, errors.Join(ErrAdapterUnavailable, err)
		}
		borrow := sdkmath.ZeroInt()
		if len(result) > 1 {
			if borrow, err = parseAmount(result[1]); err != nil {
				return nil, errors.Join(ErrAdapterUnavailable, err)
			}
		}

		price := a.prices.TokenPrice(ctx, market.Symbol)

		if supply.IsPositive() {
			positions = append(positions, types.Position{
				ID:           fmt.Sprintf("joule-%s-supply", market.Symbol),
				ProtocolID:   types.ProtocolJoule,
				Kind:         types.PositionSupply,
				TokenSymbol:  market.Symbol,
				TokenAddress: a.tokenAddress(market.Symbol),
				Amount:       supply,
				ValueUSD:     usdValue(supply, market.Symbol, price),
				APY:          a.marketAPY(ctx, market.Symbol, 0),
				Metadata: map[string]any{
					"collateral_factor": market.LTV,
					"is_collateral":     true,
				},
			})
		}
		if borrow.IsPositive() {
			positions = append(positions, types.Position{
				ID:           fmt.Sprintf("joule-%s-borrow", market.Symbol),
				ProtocolID:   types.ProtocolJoule,
				Kind:         types.PositionBorrow,
				TokenSymbol:  market.Symbol,
				TokenAddress: a.tokenAddress(market.Symbol),
				Amount:       borrow,
				ValueUSD:     usdValue(borrow, market.Symbol, price),
				APY:          a.marketAPY(ctx, market.Symbol, 1),
			})
		}
	}

	a.log.Debug().Int("positions", len(positions)).Str("address", address).Msg("Joule positions fetched")
	return positions, nil
}

// GetPendingRewards returns the address's accrued MOVE incentives.
func (a *JouleAdapter) GetPendingRewards(ctx context.Context, address string) ([]types.RewardItem, error) {
	addressArg, err := movement.EncodeAddress(address)
	if err != nil {
		return nil, errors.Join(ErrAdapterUnavailable, err)
	}

	result, err := a.chain.View(ctx, a.viewFunction("rewards::pending_rewards"), nil, [][]byte{addressArg})
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
	reward := types.RewardItem{
		ID:           "joule-move-reward",
		ProtocolID:   types.ProtocolJoule,
		PositionID:   "joule-lending",
		TokenSymbol:  "MOVE",
		TokenAddress: "0x1::aptos_coin::AptosCoin",
		Amount:       pending,
		ValueUSD:     usdValue(pending, "MOVE", price),
		Claimable:    true,
	}

	return []types.RewardItem{reward}, nil
}

// BuildClaimTransaction constructs the claim-all incentives call. Joule
// claims the whole accrued balance in one entry call, so reward selection
// only decides whether there is anything to claim.
func (a *JouleAdapter) BuildClaimTransaction(ctx context.Context, address string, rewardIDs []string) (types.TransactionPayload, error) {
	rewards, err := a.GetPendingRewards(ctx, address)
	if err != nil {
		return types.TransactionPayload{}, err
	}

	selected := selectRewards(rewards, rewardIDs)
	if len(selected) == 0 {
		return types.TransactionPayload{}, ErrNoRewardsToClaim
	}

	return types.TransactionPayload{
		Function: a.moduleAddress + "::rewards::claim_all",
	}, nil
}

func (a *JouleAdapter) marketAPY(ctx context.Context, symbol string, side int) float64 {
	marketArg, err := movement.EncodeString(symbol)
	if err != nil {
		return 0
	}
	result, err := a.chain.View(ctx, a.viewFunction("lens::market_data"), nil, [][]byte{marketArg})
	if err != nil || len(result) <= side {
		return 0
	}
	return parseBasisPoints(result[side])
}

func (a *JouleAdapter) tokenAddress(symbol string) string {
	if symbol == "MOVE" {
		return "0x1::aptos_coin::AptosCoin"
	}
	return a.moduleAddress + "::coins::" + symbol
}
