package wallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePublicKey(t *testing.T) {
	t.Parallel()

	rawKey := bytes.Repeat([]byte{0xab}, 32)
	rawHex := hex.EncodeToString(rawKey)

	t.Run("plain 32-byte key", func(t *testing.T) {
		key, err := NormalizePublicKey(rawHex)
		require.NoError(t, err)
		assert.Equal(t, rawKey, key)
	})

	t.Run("0x prefix stripped", func(t *testing.T) {
		key, err := NormalizePublicKey("0x" + rawHex)
		require.NoError(t, err)
		assert.Equal(t, rawKey, key)
	})

	t.Run("33-byte key with scheme byte", func(t *testing.T) {
		key, err := NormalizePublicKey("0x00" + rawHex)
		require.NoError(t, err)
		assert.Equal(t, rawKey, key)
	})

	t.Run("33 bytes with wrong scheme byte", func(t *testing.T) {
		_, err := NormalizePublicKey("0x01" + rawHex)
		require.ErrorIs(t, err, ErrInvalidPublicKey)
	})

	t.Run("wrong length", func(t *testing.T) {
		_, err := NormalizePublicKey("0xabcdef")
		require.ErrorIs(t, err, ErrInvalidPublicKey)
	})

	t.Run("not hex", func(t *testing.T) {
		_, err := NormalizePublicKey("zz")
		require.ErrorIs(t, err, ErrInvalidPublicKey)
	})
}

func TestProviderClient_SignMessage(t *testing.T) {
	t.Parallel()

	message := []byte("signing message")
	signature := bytes.Repeat([]byte{0x5a}, 64)

	t.Run("success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/v1/sign", r.URL.Path)
			require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

			var req custodialSignRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "0xa11ce", req.Address)
			assert.Equal(t, "0x"+hex.EncodeToString(message), req.Message)

			json.NewEncoder(w).Encode(custodialSignResponse{Signature: "0x" + hex.EncodeToString(signature)})
		}))
		t.Cleanup(server.Close)

		provider := NewProviderClient(server.URL, "secret", "0xa11ce")
		got, err := provider.SignMessage(context.Background(), message)
		require.NoError(t, err)
		assert.Equal(t, signature, got)
	})

	t.Run("provider error surfaces", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(custodialSignResponse{Error: "session expired"})
		}))
		t.Cleanup(server.Close)

		provider := NewProviderClient(server.URL, "secret", "0xa11ce")
		_, err := provider.SignMessage(context.Background(), message)
		require.ErrorIs(t, err, ErrSigningFailed)
		assert.Contains(t, err.Error(), "session expired")
	})

	t.Run("missing signature", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(custodialSignResponse{})
		}))
		t.Cleanup(server.Close)

		provider := NewProviderClient(server.URL, "", "0xa11ce")
		_, err := provider.SignMessage(context.Background(), message)
		require.ErrorIs(t, err, ErrSigningFailed)
	})

	t.Run("unreachable provider", func(t *testing.T) {
		provider := NewProviderClient("http://127.0.0.1:1", "", "0xa11ce")
		_, err := provider.SignMessage(context.Background(), message)
		require.ErrorIs(t, err, ErrSigningFailed)
	})
}
