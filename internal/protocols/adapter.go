/*

This file defines the uniform adapter capability set every protocol
integration implements, plus the static registry the aggregator reads from.

Adapters are stateless translators: they read protocol state through view
functions and construct unsigned claim calls. They never submit transactions.

*/

package protocols

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	sdkmath "cosmossdk.io/math"

	"github.com/harvest-move/harvest/internal/logger"
	"github.com/harvest-move/harvest/internal/types"
)

// Error definitions shared by all adapters and the registry
var (
	ErrUnknownProtocol    = errors.New("protocol is not registered")
	ErrAdapterUnavailable = errors.New("protocol adapter unavailable")
	ErrNoRewardsToClaim   = errors.New("no rewards to claim")
	ErrInvalidViewData    = errors.New("invalid view function data")
)

var registryLogger = logger.GetForComponent("protocol_registry")

// ChainReader is the read-only chain surface adapters depend on.
type ChainReader interface {
	View(ctx context.Context, function string, typeArgs []string, args [][]byte) ([]any, error)
}

// PriceSource values tokens in USD. Valuations are best-effort.
type PriceSource interface {
	TokenPrice(ctx context.Context, symbol string) float64
}

// Adapter is the capability set one protocol integration provides.
type Adapter interface {
	ProtocolID() types.ProtocolID
	DisplayName() string

	// GetPositions returns an immutable snapshot of the address's positions.
	GetPositions(ctx context.Context, address string) ([]types.Position, error)

	// GetPendingRewards returns the rewards accrued against those positions.
	GetPendingRewards(ctx context.Context, address string) ([]types.RewardItem, error)

	// BuildClaimTransaction constructs the unsigned claim call. An empty
	// rewardIDs slice means "everything currently claimable"; an empty
	// resulting set fails with ErrNoRewardsToClaim. Pure construction, no
	// chain mutation.
	BuildClaimTransaction(ctx context.Context, address string, rewardIDs []string) (types.TransactionPayload, error)
}

// Registry is the static protocol-id to adapter table, built once at startup.
// Protocols without a deployed contract are simply never registered, so the
// aggregator cannot attempt to query them.
type Registry struct {
	adapters map[types.ProtocolID]Adapter
	order    []types.ProtocolID
}

// NewRegistry builds the registry from the deployed adapters, preserving
// registration order for deterministic fan-out logging.
func NewRegistry(adapters ...Adapter) *Registry {
	registry := &Registry{adapters: make(map[types.ProtocolID]Adapter, len(adapters))}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		id := adapter.ProtocolID()
		if _, dup := registry.adapters[id]; dup {
			registryLogger.Warn().Str("protocol", string(id)).Msg("Duplicate adapter registration ignored")
			continue
		}
		registry.adapters[id] = adapter
		registry.order = append(registry.order, id)
		registryLogger.Info().Str("protocol", string(id)).Str("name", adapter.DisplayName()).Msg("Protocol adapter registered")
	}
	return registry
}

// Get returns the adapter for a protocol id, or ErrUnknownProtocol.
func (r *Registry) Get(id types.ProtocolID) (Adapter, error) {
	adapter, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProtocol, id)
	}
	return adapter, nil
}

// Active returns every registered adapter in registration order.
func (r *Registry) Active() []Adapter {
	active := make([]Adapter, 0, len(r.order))
	for _, id := range r.order {
		active = append(active, r.adapters[id])
	}
	return active
}

// ActiveIDs returns the registered protocol ids in registration order.
func (r *Registry) ActiveIDs() []types.ProtocolID {
	ids := make([]types.ProtocolID, len(r.order))
	copy(ids, r.order)
	return ids
}

// tokenDecimals maps supported token symbols to their on-chain decimals.
var tokenDecimals = map[string]int{
	"MOVE":  8,
	"APT":   8,
	"USDC":  6,
	"USDT":  6,
	"ETH":   8,
	"WETH":  8,
	"MMOVE": 8,
}

func decimalsFor(symbol string) int {
	if d, ok := tokenDecimals[symbol]; ok {
		return d
	}
	return 8
}

// parseAmount converts a view-function return value (JSON string or number)
// into an integer base-unit amount.
func parseAmount(value any) (sdkmath.Int, error) {
	switch v := value.(type) {
	case string:
		amount, ok := sdkmath.NewIntFromString(v)
		if !ok {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: amount %q", ErrInvalidViewData, v)
		}
		return amount, nil
	case float64:
		if v < 0 {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: negative amount %f", ErrInvalidViewData, v)
		}
		return sdkmath.NewInt(int64(v)), nil
	case uint64:
		return sdkmath.NewIntFromUint64(v), nil
	default:
		return sdkmath.ZeroInt(), fmt.Errorf("%w: unexpected amount type %T", ErrInvalidViewData, value)
	}
}

// amountToFloat converts a base-unit amount to display units.
func amountToFloat(amount sdkmath.Int, decimals int) float64 {
	dec := sdkmath.LegacyNewDecFromInt(amount).Quo(sdkmath.LegacyNewDec(10).Power(uint64(decimals)))
	value, err := dec.Float64()
	if err != nil {
		return 0
	}
	return value
}

// usdValue prices a base-unit amount of a token.
func usdValue(amount sdkmath.Int, symbol string, price float64) float64 {
	return amountToFloat(amount, decimalsFor(symbol)) * price
}

// parseBasisPoints reads an APY view value expressed in basis points.
func parseBasisPoints(value any) float64 {
	switch v := value.(type) {
	case string:
		bps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return bps / 100
	case float64:
		return v / 100
	default:
		return 0
	}
}

// selectRewards filters rewards to the requested ids, or to everything
// claimable when no ids are given. Shared by every adapter's claim build.
func selectRewards(rewards []types.RewardItem, rewardIDs []string) []types.RewardItem {
	if len(rewardIDs) == 0 {
		var claimable []types.RewardItem
		for _, reward := range rewards {
			if reward.Claimable {
				claimable = append(claimable, reward)
			}
		}
		return claimable
	}

	wanted := make(map[string]bool, len(rewardIDs))
	for _, id := range rewardIDs {
		wanted[id] = true
	}
	var selected []types.RewardItem
	for _, reward := range rewards {
		if wanted[reward.ID] && reward.Claimable {
			selected = append(selected, reward)
		}
	}
	return selected
}
