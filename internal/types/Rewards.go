/*

This file contains the uniform position and reward model shared by every
protocol adapter. Adapters translate protocol-specific on-chain state into
these types; nothing downstream of the aggregator knows which protocol a
value came from except through the ProtocolID field.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// ProtocolID identifies one integrated protocol. The set is closed: adding a
// protocol means adding an adapter and registering it at startup.
type ProtocolID string

const (
	ProtocolJoule       ProtocolID = "joule"
	ProtocolYuzu        ProtocolID = "yuzu"
	ProtocolMeridian    ProtocolID = "meridian"
	ProtocolThunderhead ProtocolID = "thunderhead"
)

// AllProtocolIDs lists every known protocol, active or not.
func AllProtocolIDs() []ProtocolID {
	return []ProtocolID{ProtocolJoule, ProtocolYuzu, ProtocolMeridian, ProtocolThunderhead}
}

// PositionKind classifies what a position represents on chain.
type PositionKind string

const (
	PositionLP     PositionKind = "lp"
	PositionSupply PositionKind = "supply"
	PositionBorrow PositionKind = "borrow"
	PositionStake  PositionKind = "stake"
	PositionVault  PositionKind = "vault"
)

// Position is an immutable snapshot of one stake/deposit/loan held by one
// address in one protocol. Re-fetched on every read, never mutated in place.
type Position struct {
	ID           string         `json:"id"`
	ProtocolID   ProtocolID     `json:"protocol_id"`
	Kind         PositionKind   `json:"kind"`
	TokenSymbol  string         `json:"token_symbol"`
	TokenAddress string         `json:"token_address"`
	Amount       sdkmath.Int    `json:"amount"` // base units of the principal token
	ValueUSD     float64        `json:"value_usd"`
	APY          float64        `json:"apy,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// RewardItem is a claimable or locked reward accrued against exactly one
// Position. Its ProtocolID always equals the owning position's ProtocolID.
type RewardItem struct {
	ID           string      `json:"id"`
	ProtocolID   ProtocolID  `json:"protocol_id"`
	PositionID   string      `json:"position_id"`
	TokenSymbol  string      `json:"token_symbol"`
	TokenAddress string      `json:"token_address"`
	Amount       sdkmath.Int `json:"amount"` // base units of the reward token
	ValueUSD     float64     `json:"value_usd"`
	Claimable    bool        `json:"claimable"`
}

// ClaimRequest names the subset of a protocol's rewards the caller wants to
// claim. Consumed once by the orchestrator; never partially re-used.
type ClaimRequest struct {
	Protocol  ProtocolID `json:"protocol"`
	RewardIDs []string   `json:"reward_ids,omitempty"` // empty means "everything claimable"
}

// ClaimSelection pairs a claim request with the reward items it was derived
// from, so the orchestrator can report claimed USD value without re-reading
// the chain.
type ClaimSelection struct {
	Protocol ProtocolID   `json:"protocol"`
	Rewards  []RewardItem `json:"rewards"`
}

// Request reduces the selection to the ClaimRequest consumed by the
// aggregator's batch payload build.
func (s ClaimSelection) Request() ClaimRequest {
	ids := make([]string, 0, len(s.Rewards))
	for _, r := range s.Rewards {
		ids = append(ids, r.ID)
	}
	return ClaimRequest{Protocol: s.Protocol, RewardIDs: ids}
}

// ValueUSD is the summed USD value of the selected rewards.
func (s ClaimSelection) ValueUSD() float64 {
	var total float64
	for _, r := range s.Rewards {
		total += r.ValueUSD
	}
	return total
}
