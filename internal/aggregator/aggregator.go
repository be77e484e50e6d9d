/*

The aggregator fans read and claim-build requests out across every active
protocol adapter and merges the results. Reads are concurrent and best
effort: one broken protocol contributes nothing instead of blocking the
rest. Claim-payload builds are per-protocol best effort too, preserving the
payload/protocol index alignment the orchestrator depends on.

*/

package aggregator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harvest-move/harvest/internal/logger"
	"github.com/harvest-move/harvest/internal/protocols"
	"github.com/harvest-move/harvest/internal/types"
)

// Service fans requests out across the registry's active adapters.
type Service struct {
	registry    *protocols.Registry
	readTimeout time.Duration
	log         zerolog.Logger
}

// PortfolioSummary aggregates totals across protocols for dashboard display.
type PortfolioSummary struct {
	TotalValueUSD       float64                  `json:"total_value_usd"`
	TotalRewardsUSD     float64                  `json:"total_rewards_usd"`
	PositionCount       int                      `json:"position_count"`
	RewardCount         int                      `json:"reward_count"`
	PositionsByProtocol map[types.ProtocolID]int `json:"positions_by_protocol"`
	RewardsByProtocol   map[types.ProtocolID]int `json:"rewards_by_protocol"`
}

// New creates the aggregator over a built registry. readTimeout bounds every
// individual adapter read; zero means only the caller's context bounds it.
func New(registry *protocols.Registry, readTimeout time.Duration) (*Service, error) {
	if registry == nil {
		return nil, errors.New("registry cannot be nil")
	}
	return &Service{
		registry:    registry,
		readTimeout: readTimeout,
		log:         logger.GetForComponent("reward_aggregator"),
	}, nil
}

// GetAllPositions reads positions from every active adapter concurrently and
// merges the successful results in adapter order. Failed adapters are logged
// and contribute nothing; no error escapes to the caller.
func (s *Service) GetAllPositions(ctx context.Context, address string) []types.Position {
	settled := settleAll(ctx, s, "positions", func(ctx context.Context, adapter protocols.Adapter) ([]types.Position, error) {
		return adapter.GetPositions(ctx, address)
	})

	var merged []types.Position
	for _, positions := range settled {
		merged = append(merged, positions...)
	}
	return merged
}

// GetAllPendingRewards reads pending rewards from every active adapter with
// the same fan-out and merge discipline as GetAllPositions.
func (s *Service) GetAllPendingRewards(ctx context.Context, address string) []types.RewardItem {
	settled := settleAll(ctx, s, "rewards", func(ctx context.Context, adapter protocols.Adapter) ([]types.RewardItem, error) {
		return adapter.GetPendingRewards(ctx, address)
	})

	var merged []types.RewardItem
	for _, rewards := range settled {
		merged = append(merged, rewards...)
	}
	return merged
}

// GetPortfolioSummary merges positions and rewards into dashboard totals.
func (s *Service) GetPortfolioSummary(ctx context.Context, address string) PortfolioSummary {
	positions := s.GetAllPositions(ctx, address)
	rewards := s.GetAllPendingRewards(ctx, address)

	summary := PortfolioSummary{
		PositionCount:       len(positions),
		RewardCount:         len(rewards),
		PositionsByProtocol: make(map[types.ProtocolID]int),
		RewardsByProtocol:   make(map[types.ProtocolID]int),
	}
	for _, position := range positions {
		summary.TotalValueUSD += position.ValueUSD
		summary.PositionsByProtocol[position.ProtocolID]++
	}
	for _, reward := range rewards {
		summary.TotalRewardsUSD += reward.ValueUSD
		summary.RewardsByProtocol[reward.ProtocolID]++
	}
	return summary
}

// BuildBatchClaimPayload builds claim payloads for the requested protocols in
// order. A protocol whose build fails is dropped from both returned slices;
// the slices are always the same length and index-aligned.
func (s *Service) BuildBatchClaimPayload(ctx context.Context, address string, claims []types.ClaimRequest) ([]types.TransactionPayload, []types.ProtocolID) {
	payloads := make([]types.TransactionPayload, 0, len(claims))
	protocolIDs := make([]types.ProtocolID, 0, len(claims))

	for _, claim := range claims {
		adapter, err := s.registry.Get(claim.Protocol)
		if err != nil {
			s.log.Warn().Err(err).Str("protocol", string(claim.Protocol)).Msg("Claim requested for unregistered protocol, dropping")
			continue
		}

		payload, err := adapter.BuildClaimTransaction(ctx, address, claim.RewardIDs)
		if err != nil {
			s.log.Warn().Err(err).Str("protocol", string(claim.Protocol)).Msg("Failed to build claim payload, dropping protocol from batch")
			continue
		}

		payloads = append(payloads, payload)
		protocolIDs = append(protocolIDs, claim.Protocol)
	}

	return payloads, protocolIDs
}

// ActiveProtocols exposes the registered protocol ids (for status surfaces).
func (s *Service) ActiveProtocols() []types.ProtocolID {
	return s.registry.ActiveIDs()
}

// settleAll runs one read against every active adapter concurrently and
// captures each outcome explicitly: every goroutine writes only its own slot,
// so no rejection can propagate to a sibling, and the merged ordering follows
// adapter registration order rather than arrival order.
func settleAll[T any](ctx context.Context, s *Service, what string, read func(context.Context, protocols.Adapter) ([]T, error)) [][]T {
	adapters := s.registry.Active()
	results := make([][]T, len(adapters))
	errs := make([]error, len(adapters))

	var wg sync.WaitGroup
	for i, adapter := range adapters {
		wg.Add(1)
		go func(i int, adapter protocols.Adapter) {
			defer wg.Done()

			readCtx := ctx
			cancel := context.CancelFunc(func() {})
			if s.readTimeout > 0 {
				readCtx, cancel = context.WithTimeout(ctx, s.readTimeout)
			}
			defer cancel()

			results[i], errs[i] = read(readCtx, adapter)
		}(i, adapter)
	}
	wg.Wait()

	settled := make([][]T, 0, len(adapters))
	for i, adapter := range adapters {
		if errs[i] != nil {
			s.log.Warn().
				Err(errs[i]).
				Str("protocol", string(adapter.ProtocolID())).
				Str("read", what).
				Msg("Adapter read failed, contributing nothing to merge")
			continue
		}
		settled = append(settled, results[i])
	}
	return settled
}
