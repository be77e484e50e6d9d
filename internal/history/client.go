/*

Package history records and reads claim history. The Client talks to the
remote history backend; LocalLog keeps a small on-disk trail so the CLI shows
recent activity even when the backend is unreachable. Both recording paths are
best effort: a claim that landed on chain is never failed retroactively
because bookkeeping had a bad day.

*/

package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harvest-move/harvest/internal/logger"
	"github.com/harvest-move/harvest/internal/types"
)

var ErrHistoryUnavailable = errors.New("history backend unavailable")

// Client reads and writes the remote history backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        logger.GetForComponent("history_client"),
	}
}

// Enabled reports whether a backend endpoint is configured.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

// RecordClaim posts the claim to the backend. Failures are logged and
// swallowed.
func (c *Client) RecordClaim(ctx context.Context, record types.ClaimRecord) {
	if !c.Enabled() {
		return
	}

	body, err := json.Marshal(record)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to encode claim record")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/claims", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("tx_hash", record.TxHash).Msg("Failed to record claim to history backend")
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		c.log.Warn().
			Int("status", resp.StatusCode).
			Str("tx_hash", record.TxHash).
			Msg("History backend rejected claim record")
	}
}

// ClaimsForAddress fetches the address's claim history, newest first.
func (c *Client) ClaimsForAddress(ctx context.Context, address string) ([]types.ClaimRecord, error) {
	var records []types.ClaimRecord
	err := c.getJSON(ctx, "/api/claims/"+url.PathEscape(address), &records)
	return records, err
}

// Leaderboard fetches the ranked leaderboard for a rollup period.
func (c *Client) Leaderboard(ctx context.Context, period types.LeaderboardPeriod, limit int) ([]types.LeaderboardEntry, error) {
	path := fmt.Sprintf("/api/leaderboard?period=%s&limit=%d", url.QueryEscape(string(period)), limit)
	var entries []types.LeaderboardEntry
	err := c.getJSON(ctx, path, &entries)
	return entries, err
}

// Standing fetches one address's leaderboard row.
func (c *Client) Standing(ctx context.Context, address string, period types.LeaderboardPeriod) (*types.LeaderboardEntry, error) {
	path := fmt.Sprintf("/api/leaderboard/%s?period=%s", url.PathEscape(address), url.QueryEscape(string(period)))
	var entry types.LeaderboardEntry
	if err := c.getJSON(ctx, path, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	if !c.Enabled() {
		return fmt.Errorf("%w: no endpoint configured", ErrHistoryUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Join(ErrHistoryUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Join(ErrHistoryUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: backend returned %d for %s", ErrHistoryUnavailable, resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Join(ErrHistoryUnavailable, err)
	}
	return nil
}
