package sponsor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvest-move/harvest/internal/types"
)

func signedEnvelope() *types.SignedTransactionData {
	return &types.SignedTransactionData{
		RawTransaction:      []byte{0x01, 0x02},
		SenderAuthenticator: []byte{0x03, 0x04},
		Sender:              "0xa11ce",
	}
}

func relayServer(t *testing.T, statusCode int, body map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/sponsor", r.URL.Path)

		var req sponsorRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "0x0102", req.RawTransaction)
		assert.Equal(t, "0x0304", req.SenderSignature)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		require.NoError(t, json.NewEncoder(w).Encode(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSubmitSponsored(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		server := relayServer(t, http.StatusOK, map[string]any{"txHash": "0xabc", "sponsored": true})

		txHash, err := NewClient(server.URL).SubmitSponsored(context.Background(), signedEnvelope())
		require.NoError(t, err)
		assert.Equal(t, "0xabc", txHash)
	})

	t.Run("rate limited", func(t *testing.T) {
		server := relayServer(t, http.StatusTooManyRequests, map[string]any{"error": "too many requests", "fallback": true})

		_, err := NewClient(server.URL).SubmitSponsored(context.Background(), signedEnvelope())
		require.ErrorIs(t, err, ErrRateLimited)
	})

	t.Run("fund depleted", func(t *testing.T) {
		server := relayServer(t, http.StatusServiceUnavailable, map[string]any{"error": "sponsor balance too low", "fallback": true})

		_, err := NewClient(server.URL).SubmitSponsored(context.Background(), signedEnvelope())
		require.ErrorIs(t, err, ErrFundDepleted)
	})

	t.Run("generic failure", func(t *testing.T) {
		server := relayServer(t, http.StatusInternalServerError, map[string]any{"error": "simulation failed", "fallback": true})

		_, err := NewClient(server.URL).SubmitSponsored(context.Background(), signedEnvelope())
		require.ErrorIs(t, err, ErrSponsorshipFailed)
		assert.NotErrorIs(t, err, ErrRateLimited)
		assert.NotErrorIs(t, err, ErrFundDepleted)
	})

	t.Run("error text classification on a 500", func(t *testing.T) {
		server := relayServer(t, http.StatusInternalServerError, map[string]any{"error": "insufficient sponsor funds"})

		_, err := NewClient(server.URL).SubmitSponsored(context.Background(), signedEnvelope())
		require.ErrorIs(t, err, ErrFundDepleted)
	})

	t.Run("unreachable relay", func(t *testing.T) {
		client := NewClient("http://127.0.0.1:1")

		_, err := client.SubmitSponsored(context.Background(), signedEnvelope())
		require.ErrorIs(t, err, ErrSponsorshipFailed)
	})

	t.Run("no endpoint configured", func(t *testing.T) {
		client := NewClient("")
		assert.False(t, client.Enabled())

		_, err := client.SubmitSponsored(context.Background(), signedEnvelope())
		require.ErrorIs(t, err, ErrSponsorshipFailed)
	})
}

func TestStatus(t *testing.T) {
	t.Parallel()

	t.Run("healthy relay", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/sponsor/status", r.URL.Path)
			json.NewEncoder(w).Encode(FundStatus{Available: true, Balance: "123456789", InFlight: 2})
		}))
		t.Cleanup(server.Close)

		status := NewClient(server.URL).Status(context.Background())
		assert.True(t, status.Available)
		assert.Equal(t, "123456789", status.Balance)
		assert.Equal(t, int64(2), status.InFlight)
	})

	t.Run("unreachable relay reports unavailable", func(t *testing.T) {
		status := NewClient("http://127.0.0.1:1").Status(context.Background())
		assert.False(t, status.Available)
	})
}

func TestRateLimiter(t *testing.T) {
	t.Parallel()

	limiter := NewRateLimiter(2, time.Minute)

	assert.True(t, limiter.Allow("0xa11ce"))
	assert.True(t, limiter.Allow("0xa11ce"))
	assert.False(t, limiter.Allow("0xa11ce"))

	// Senders are limited independently.
	assert.True(t, limiter.Allow("0xb0b"))
}
