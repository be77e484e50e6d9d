package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvest-move/harvest/internal/types"
)

func testRecord(n int) types.ClaimRecord {
	return types.ClaimRecord{
		Address:     "0xa11ce",
		Protocol:    types.ProtocolJoule,
		TxHash:      fmt.Sprintf("0xhash%03d", n),
		Amount:      "1500000000",
		TokenSymbol: "MOVE",
		ValueUSD:    15,
		ClaimedAt:   time.Now().UTC(),
	}
}

func TestLocalLog(t *testing.T) {
	t.Parallel()

	t.Run("newest first", func(t *testing.T) {
		log := NewLocalLog(filepath.Join(t.TempDir(), "claims.json"))

		log.RecordClaim(context.Background(), testRecord(1))
		log.RecordClaim(context.Background(), testRecord(2))

		recent := log.Recent(0)
		require.Len(t, recent, 2)
		assert.Equal(t, "0xhash002", recent[0].TxHash)
		assert.Equal(t, "0xhash001", recent[1].TxHash)
	})

	t.Run("caps at fifty entries", func(t *testing.T) {
		log := NewLocalLog(filepath.Join(t.TempDir(), "claims.json"))

		for i := 0; i < localLogCap+10; i++ {
			log.RecordClaim(context.Background(), testRecord(i))
		}

		recent := log.Recent(0)
		require.Len(t, recent, localLogCap)
		// The oldest ten fell off.
		assert.Equal(t, fmt.Sprintf("0xhash%03d", localLogCap+9), recent[0].TxHash)
		assert.Equal(t, "0xhash010", recent[len(recent)-1].TxHash)
	})

	t.Run("survives reload", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "claims.json")

		first := NewLocalLog(path)
		first.RecordClaim(context.Background(), testRecord(7))

		reloaded := NewLocalLog(path)
		recent := reloaded.Recent(0)
		require.Len(t, recent, 1)
		assert.Equal(t, "0xhash007", recent[0].TxHash)
		assert.Equal(t, types.ProtocolJoule, recent[0].Protocol)
	})

	t.Run("corrupt file starts empty", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "claims.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

		log := NewLocalLog(path)
		assert.Empty(t, log.Recent(0))

		// And keeps working afterwards.
		log.RecordClaim(context.Background(), testRecord(1))
		assert.Len(t, log.Recent(0), 1)
	})

	t.Run("recent honors the limit", func(t *testing.T) {
		log := NewLocalLog(filepath.Join(t.TempDir(), "claims.json"))
		for i := 0; i < 5; i++ {
			log.RecordClaim(context.Background(), testRecord(i))
		}

		assert.Len(t, log.Recent(3), 3)
		assert.Len(t, log.Recent(100), 5)
	})
}
