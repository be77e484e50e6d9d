package types

import "time"

// BatchClaimStatus is the overall state of one orchestrated batch claim run.
type BatchClaimStatus string

const (
	BatchIdle      BatchClaimStatus = "idle"
	BatchPreparing BatchClaimStatus = "preparing"
	BatchClaiming  BatchClaimStatus = "claiming"
	BatchCompleted BatchClaimStatus = "completed"
	BatchFailed    BatchClaimStatus = "failed"
)

// ClaimStatus is the per-protocol sub-state inside a batch run.
type ClaimStatus string

const (
	ClaimPending ClaimStatus = "pending"
	ClaimSuccess ClaimStatus = "success"
	ClaimFailed  ClaimStatus = "failed"
)

// ProtocolClaimResult is the terminal per-protocol outcome of a batch claim.
// Created as pending when the protocol's slot is initialized, finalized
// exactly once, never retried within the same batch.
type ProtocolClaimResult struct {
	Protocol     ProtocolID  `json:"protocol"`
	Status       ClaimStatus `json:"status"`
	TxHash       string      `json:"tx_hash,omitempty"`
	Error        string      `json:"error,omitempty"`
	AmountUSD    float64     `json:"amount_usd"`
	WasSponsored bool        `json:"was_sponsored"`
}

// BatchClaimState is the orchestrator's run state. Mutated only by the
// orchestrator's own sequential loop; observers get copies.
type BatchClaimState struct {
	RunID           string                `json:"run_id"`
	Status          BatchClaimStatus      `json:"status"`
	CurrentProtocol ProtocolID            `json:"current_protocol,omitempty"`
	CurrentIndex    int                   `json:"current_index"`
	TotalClaims     int                   `json:"total_claims"`
	Results         []ProtocolClaimResult `json:"results"`
	Error           string                `json:"error,omitempty"`
}

// ClaimRecord is one successful claim as persisted to history. The backend
// store and the local capped log both use this shape.
type ClaimRecord struct {
	ID          string     `json:"id,omitempty"`
	Address     string     `json:"address"`
	Protocol    ProtocolID `json:"protocol"`
	TxHash      string     `json:"tx_hash"`
	Amount      string     `json:"amount"`
	TokenSymbol string     `json:"token_symbol"`
	ValueUSD    float64    `json:"value_usd"`
	Sponsored   bool       `json:"sponsored"`
	ClaimedAt   time.Time  `json:"claimed_at"`
}

// LeaderboardPeriod selects a leaderboard rollup window.
type LeaderboardPeriod string

const (
	PeriodDaily   LeaderboardPeriod = "daily"
	PeriodWeekly  LeaderboardPeriod = "weekly"
	PeriodMonthly LeaderboardPeriod = "monthly"
	PeriodAllTime LeaderboardPeriod = "all-time"
)

// LeaderboardEntry is one ranked row of the claimed-value leaderboard.
type LeaderboardEntry struct {
	Address         string  `json:"address"`
	TotalClaimedUSD float64 `json:"total_claimed_usd"`
	ClaimCount      int     `json:"claim_count"`
	Rank            int64   `json:"rank"`
}
