package history

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/harvest-move/harvest/internal/logger"
	"github.com/harvest-move/harvest/internal/types"
)

// localLogCap is how many recent claims the on-disk log retains. Older
// entries fall off the end.
const localLogCap = 50

// LocalLog is a small newest-first claim trail persisted as a single JSON
// file. Writes rewrite the whole file; at 50 entries that is cheaper than
// being clever.
type LocalLog struct {
	path string
	log  zerolog.Logger

	mu      sync.Mutex
	entries []types.ClaimRecord
}

// NewLocalLog loads the existing log if one is present. A missing or corrupt
// file starts an empty log rather than failing startup.
func NewLocalLog(path string) *LocalLog {
	l := &LocalLog{
		path: path,
		log:  logger.GetForComponent("claim_log"),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			l.log.Warn().Err(err).Str("path", path).Msg("Failed to read claim log, starting empty")
		}
		return l
	}

	if err := json.Unmarshal(data, &l.entries); err != nil {
		l.log.Warn().Err(err).Str("path", path).Msg("Claim log is corrupt, starting empty")
		l.entries = nil
	}
	if len(l.entries) > localLogCap {
		l.entries = l.entries[:localLogCap]
	}
	return l
}

// RecordClaim prepends the record and persists. Failures are logged and
// swallowed.
func (l *LocalLog) RecordClaim(_ context.Context, record types.ClaimRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append([]types.ClaimRecord{record}, l.entries...)
	if len(l.entries) > localLogCap {
		l.entries = l.entries[:localLogCap]
	}

	if err := l.persist(); err != nil {
		l.log.Warn().Err(err).Str("path", l.path).Msg("Failed to persist claim log")
	}
}

// Recent returns up to limit entries, newest first. limit <= 0 means all.
func (l *LocalLog) Recent(limit int) []types.ClaimRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}
	out := make([]types.ClaimRecord, limit)
	copy(out, l.entries[:limit])
	return out
}

// persist writes atomically via a temp file rename. Caller holds l.mu.
func (l *LocalLog) persist() error {
	data, err := json.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}
