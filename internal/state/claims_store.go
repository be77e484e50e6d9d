package state

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/harvest-move/harvest/internal/types"
)

// InsertClaim persists one claimed reward. Replays of the same transaction
// and token are absorbed by the unique constraint.
func InsertClaim(ctx context.Context, record types.ClaimRecord) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO claims (address, protocol, tx_hash, amount, token_symbol, value_usd, sponsored, claimed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tx_hash, token_symbol) DO NOTHING`

	_, err := DB.ExecContext(ctx, query,
		record.Address, string(record.Protocol), record.TxHash,
		record.Amount, record.TokenSymbol, record.ValueUSD,
		record.Sponsored, record.ClaimedAt)
	if err != nil {
		return fmt.Errorf("failed to insert claim: %w", err)
	}
	return nil
}

// ClaimsForAddress returns the address's claims, newest first.
func ClaimsForAddress(ctx context.Context, address string, limit int) ([]types.ClaimRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT claim_id, address, protocol, tx_hash, amount, token_symbol, value_usd, sponsored, claimed_at
		FROM claims
		WHERE address = $1
		ORDER BY claimed_at DESC
		LIMIT $2`

	rows, err := DB.QueryContext(ctx, query, address, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query claims: %w", err)
	}
	defer rows.Close()

	records := make([]types.ClaimRecord, 0, limit)
	for rows.Next() {
		var (
			record types.ClaimRecord
			id     int64
			proto  string
		)
		if err := rows.Scan(&id, &record.Address, &proto, &record.TxHash,
			&record.Amount, &record.TokenSymbol, &record.ValueUSD,
			&record.Sponsored, &record.ClaimedAt); err != nil {
			return nil, fmt.Errorf("failed to scan claim row: %w", err)
		}
		record.ID = strconv.FormatInt(id, 10)
		record.Protocol = types.ProtocolID(proto)
		records = append(records, record)
	}
	return records, rows.Err()
}

// Leaderboard returns the top claimers by USD value inside the period window.
func Leaderboard(ctx context.Context, period types.LeaderboardPeriod, limit int) ([]types.LeaderboardEntry, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	query := `
		SELECT address, SUM(value_usd) AS total_usd, COUNT(*) AS claim_count,
			ROW_NUMBER() OVER (ORDER BY SUM(value_usd) DESC) AS rank
		FROM claims
		WHERE claimed_at >= $1
		GROUP BY address
		ORDER BY total_usd DESC
		LIMIT $2`

	rows, err := DB.QueryContext(ctx, query, periodCutoff(period), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]types.LeaderboardEntry, 0, limit)
	for rows.Next() {
		var entry types.LeaderboardEntry
		if err := rows.Scan(&entry.Address, &entry.TotalClaimedUSD, &entry.ClaimCount, &entry.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Standing returns one address's leaderboard row for the period, or nil when
// the address has no claims inside the window.
func Standing(ctx context.Context, address string, period types.LeaderboardPeriod) (*types.LeaderboardEntry, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		WITH ranked AS (
			SELECT address, SUM(value_usd) AS total_usd, COUNT(*) AS claim_count,
				ROW_NUMBER() OVER (ORDER BY SUM(value_usd) DESC) AS rank
			FROM claims
			WHERE claimed_at >= $1
			GROUP BY address
		)
		SELECT address, total_usd, claim_count, rank FROM ranked WHERE address = $2`

	var entry types.LeaderboardEntry
	err := DB.QueryRowContext(ctx, query, periodCutoff(period), address).
		Scan(&entry.Address, &entry.TotalClaimedUSD, &entry.ClaimCount, &entry.Rank)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query standing: %w", err)
	}
	return &entry, nil
}

// periodCutoff maps a rollup period to the earliest claimed_at it includes.
func periodCutoff(period types.LeaderboardPeriod) time.Time {
	now := time.Now().UTC()
	switch period {
	case types.PeriodDaily:
		return now.Add(-24 * time.Hour)
	case types.PeriodWeekly:
		return now.Add(-7 * 24 * time.Hour)
	case types.PeriodMonthly:
		return now.Add(-30 * 24 * time.Hour)
	default:
		return time.Time{}
	}
}
