/*

Package sponsor handles gas sponsorship. The client side submits a
sender-signed fee-payer transaction to the relay endpoint and maps the relay's
failure modes onto three distinguishable errors, so the claim flow can decide
whether falling back to user-paid gas makes sense. The service side (the gas
station) countersigns and submits on behalf of a funded sponsor account.

*/

package sponsor

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harvest-move/harvest/internal/logger"
	"github.com/harvest-move/harvest/internal/types"
)

// Error definitions for sponsorship failures. All three leave the signed
// transaction intact, so the caller is free to resubmit with user-paid gas.
var (
	// ErrRateLimited means the relay rejected the request for quota reasons.
	ErrRateLimited = errors.New("sponsorship rate limit exceeded")
	// ErrFundDepleted means the sponsor account cannot cover further gas.
	ErrFundDepleted = errors.New("sponsorship fund depleted")
	// ErrSponsorshipFailed covers every other relay failure.
	ErrSponsorshipFailed = errors.New("sponsorship request failed")
)

// FundStatus is a point-in-time snapshot of the sponsor account.
type FundStatus struct {
	Available bool   `json:"available"`
	Balance   string `json:"balance"`
	InFlight  int64  `json:"inFlight"`
}

type sponsorRequest struct {
	RawTransaction  string `json:"rawTransaction"`
	SenderSignature string `json:"senderSignature"`
	Sender          string `json:"sender,omitempty"`
}

type sponsorResponse struct {
	TxHash    string `json:"txHash"`
	Sponsored bool   `json:"sponsored"`
	Error     string `json:"error,omitempty"`
	Fallback  bool   `json:"fallback,omitempty"`
}

// Client submits signed fee-payer transactions to the sponsorship relay.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        logger.GetForComponent("sponsor_client"),
	}
}

// Enabled reports whether a relay endpoint is configured at all.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

// SubmitSponsored relays the sender-signed transaction for countersigning and
// submission. On success it returns the transaction hash. Failures map onto
// ErrRateLimited, ErrFundDepleted or ErrSponsorshipFailed.
func (c *Client) SubmitSponsored(ctx context.Context, signed *types.SignedTransactionData) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("%w: no relay endpoint configured", ErrSponsorshipFailed)
	}

	body, err := json.Marshal(sponsorRequest{
		RawTransaction:  "0x" + hex.EncodeToString(signed.RawTransaction),
		SenderSignature: "0x" + hex.EncodeToString(signed.SenderAuthenticator),
		Sender:          signed.Sender,
	})
	if err != nil {
		return "", errors.Join(ErrSponsorshipFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/sponsor", bytes.NewReader(body))
	if err != nil {
		return "", errors.Join(ErrSponsorshipFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Join(ErrSponsorshipFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", errors.Join(ErrSponsorshipFailed, err)
	}

	var parsed sponsorResponse
	// The relay always answers JSON; treat anything else as a generic failure.
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("%w: unparseable relay response (status %d)", ErrSponsorshipFailed, resp.StatusCode)
	}

	if resp.StatusCode == http.StatusOK && parsed.TxHash != "" {
		c.log.Info().Str("tx_hash", parsed.TxHash).Msg("Transaction sponsored")
		return parsed.TxHash, nil
	}

	return "", c.classifyFailure(resp.StatusCode, parsed)
}

// classifyFailure maps a relay error response to one of the three sponsorship
// errors. Status codes take precedence; the error text is a fallback signal
// for relays that answer 500 for everything.
func (c *Client) classifyFailure(statusCode int, resp sponsorResponse) error {
	message := resp.Error
	if message == "" {
		message = "no error detail"
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, message)
	case statusCode == http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %s", ErrFundDepleted, message)
	case strings.Contains(strings.ToLower(message), "rate limit"):
		return fmt.Errorf("%w: %s", ErrRateLimited, message)
	case strings.Contains(strings.ToLower(message), "insufficient"), strings.Contains(strings.ToLower(message), "depleted"):
		return fmt.Errorf("%w: %s", ErrFundDepleted, message)
	default:
		return fmt.Errorf("%w: relay returned %d: %s", ErrSponsorshipFailed, statusCode, message)
	}
}

// Status fetches the relay's fund status. It never returns an error: an
// unreachable relay reports as unavailable, since that is precisely what it
// means for the claim flow.
func (c *Client) Status(ctx context.Context) FundStatus {
	if !c.Enabled() {
		return FundStatus{Available: false}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/sponsor/status", nil)
	if err != nil {
		return FundStatus{Available: false}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Msg("Sponsor status check failed")
		return FundStatus{Available: false}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return FundStatus{Available: false}
	}

	var status FundStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return FundStatus{Available: false}
	}
	return status
}
