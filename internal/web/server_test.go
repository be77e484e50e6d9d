package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvest-move/harvest/internal/sponsor"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	ws := NewWebServer("0", nil, "testnet")
	server := httptest.NewServer(ws.router)
	t.Cleanup(server.Close)
	return server
}

func postSponsor(t *testing.T, baseURL string, body map[string]any) *http.Response {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(baseURL+"/api/sponsor", "application/json", bytes.NewReader(encoded))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHandleSponsor(t *testing.T) {
	server := testServer(t)

	t.Run("disabled station answers unavailable with fallback hint", func(t *testing.T) {
		resp := postSponsor(t, server.URL, map[string]any{
			"rawTransaction":  "0x0102",
			"senderSignature": "0x0304",
			"sender":          "0xa11ce",
		})
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var body struct {
			Error    string `json:"error"`
			Fallback bool   `json:"fallback"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.True(t, body.Fallback)
		assert.NotEmpty(t, body.Error)
	})

	t.Run("bad hex is rejected", func(t *testing.T) {
		resp := postSponsor(t, server.URL, map[string]any{
			"rawTransaction":  "zz",
			"senderSignature": "0x0304",
			"sender":          "0xb0b",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("per sender rate limit", func(t *testing.T) {
		var lastStatus int
		for i := 0; i < 7; i++ {
			resp := postSponsor(t, server.URL, map[string]any{
				"rawTransaction":  "0x0102",
				"senderSignature": "0x0304",
				"sender":          "0xca5e",
			})
			lastStatus = resp.StatusCode
		}
		assert.Equal(t, http.StatusTooManyRequests, lastStatus)
	})
}

func TestSponsorErrorStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"bare depleted", sponsor.ErrStationDepleted, http.StatusServiceUnavailable},
		{"bare disabled", sponsor.ErrStationDisabled, http.StatusServiceUnavailable},
		{"bare malformed", sponsor.ErrMalformedEnvelope, http.StatusBadRequest},
		{
			"joined malformed keeps bad request",
			errors.Join(sponsor.ErrMalformedEnvelope, errors.New("EOF during deserialization")),
			http.StatusBadRequest,
		},
		{
			"wrapped malformed keeps bad request",
			fmt.Errorf("%w: transaction has no fee payer slot", sponsor.ErrMalformedEnvelope),
			http.StatusBadRequest,
		},
		{"unclassified", errors.New("sponsor signing failed"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, sponsorErrorStatus(tc.err))
		})
	}
}

func TestHandleSponsorStatus(t *testing.T) {
	server := testServer(t)

	resp, err := http.Get(server.URL + "/api/sponsor/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status struct {
		Available bool `json:"available"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.False(t, status.Available)
}

func TestHealthWithoutDatabase(t *testing.T) {
	server := testServer(t)

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCORSHeaders(t *testing.T) {
	server := testServer(t)

	resp, err := http.Get(server.URL + "/api/sponsor/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
