package movement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvest-move/harvest/internal/config"
)

func TestParseFunction(t *testing.T) {
	t.Parallel()

	t.Run("fully qualified", func(t *testing.T) {
		module, name, err := ParseFunction("0x1234::rewards::claim_all")
		require.NoError(t, err)
		assert.Equal(t, "rewards", module.Name)
		assert.Equal(t, "claim_all", name)
	})

	t.Run("missing parts", func(t *testing.T) {
		_, _, err := ParseFunction("rewards::claim_all")
		require.ErrorIs(t, err, ErrInvalidFunction)

		_, _, err = ParseFunction("claim_all")
		require.ErrorIs(t, err, ErrInvalidFunction)
	})

	t.Run("bad address", func(t *testing.T) {
		_, _, err := ParseFunction("not-an-address::rewards::claim_all")
		require.ErrorIs(t, err, ErrInvalidAddress)
	})
}

func TestParseAddress(t *testing.T) {
	t.Parallel()

	address, err := ParseAddress("0x1")
	require.NoError(t, err)
	assert.Equal(t, "0x0000000000000000000000000000000000000000000000000000000000000001", address.StringLong())

	_, err = ParseAddress("zz")
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestEncodeHelpers(t *testing.T) {
	t.Parallel()

	t.Run("string is length prefixed", func(t *testing.T) {
		encoded, err := EncodeString("MOVE")
		require.NoError(t, err)
		assert.Equal(t, []byte{4, 'M', 'O', 'V', 'E'}, encoded)
	})

	t.Run("string vector", func(t *testing.T) {
		encoded, err := EncodeStringVector([]string{"a", "bc"})
		require.NoError(t, err)
		assert.Equal(t, []byte{2, 1, 'a', 2, 'b', 'c'}, encoded)
	})

	t.Run("address is 32 bytes", func(t *testing.T) {
		encoded, err := EncodeAddress("0x1")
		require.NoError(t, err)
		assert.Len(t, encoded, 32)
	})
}

func TestNetworkConfigFor(t *testing.T) {
	t.Parallel()

	t.Run("mainnet", func(t *testing.T) {
		cfg, err := NetworkConfigFor("mainnet", "")
		require.NoError(t, err)
		assert.Equal(t, MainnetConfig.NodeUrl, cfg.NodeUrl)
	})

	t.Run("fullnode override", func(t *testing.T) {
		cfg, err := NetworkConfigFor("testnet", "https://example.org/v1")
		require.NoError(t, err)
		assert.Equal(t, "https://example.org/v1", cfg.NodeUrl)
	})

	t.Run("unknown network", func(t *testing.T) {
		_, err := NetworkConfigFor("devnet", "")
		require.ErrorIs(t, err, ErrUnknownNetwork)
	})
}

func TestFinalityContext(t *testing.T) {
	previous := config.FinalityTimeout
	t.Cleanup(func() { config.FinalityTimeout = previous })

	t.Run("applies the configured bound", func(t *testing.T) {
		config.FinalityTimeout = 30 * time.Second

		ctx, cancel := finalityContext(context.Background())
		defer cancel()

		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(30*time.Second), deadline, time.Second)
	})

	t.Run("keeps a tighter caller deadline", func(t *testing.T) {
		config.FinalityTimeout = time.Hour

		parent, parentCancel := context.WithTimeout(context.Background(), time.Second)
		defer parentCancel()

		ctx, cancel := finalityContext(parent)
		defer cancel()

		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Second), deadline, 500*time.Millisecond)
	})

	t.Run("zero disables the bound", func(t *testing.T) {
		config.FinalityTimeout = 0

		ctx, cancel := finalityContext(context.Background())
		defer cancel()

		_, ok := ctx.Deadline()
		assert.False(t, ok)
	})
}

func TestExplorerURL(t *testing.T) {
	t.Parallel()

	url := ExplorerURL("mainnet", "txn", "abc")
	assert.Equal(t, "https://explorer.movementnetwork.xyz/txn/0xabc?network=mainnet", url)
}
