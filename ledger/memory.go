package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/townsquare/mediastore/interfaces"
)

// MemoryLedger implements interfaces.LedgerStore in process memory. It
// mirrors the Postgres claim semantics exactly and exists for tests and
// single-process development runs; separate migration processes must share
// the Postgres ledger instead.
type MemoryLedger struct {
	mu          sync.Mutex
	entries     map[string]*interfaces.LedgerEntry
	maxAttempts int
	staleAfter  time.Duration
	now         func() time.Time
}

// NewMemoryLedger creates an empty in-memory ledger with default policy.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		entries:     make(map[string]*interfaces.LedgerEntry),
		maxAttempts: DefaultMaxAttempts,
		staleAfter:  DefaultStaleAfter,
		now:         time.Now,
	}
}

// WithPolicy overrides the attempt budget and stale claim window.
func (l *MemoryLedger) WithPolicy(maxAttempts int, staleAfter time.Duration) *MemoryLedger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxAttempts = maxAttempts
	l.staleAfter = staleAfter
	return l
}

// WithClock overrides the time source; tests use this to age IN_PROGRESS
// entries past the stale window.
func (l *MemoryLedger) WithClock(now func() time.Time) *MemoryLedger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	return l
}

func (l *MemoryLedger) Claim(ctx context.Context, fileID, sourceBackend string) (*interfaces.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.entries[fileID]
	if exists && !l.claimable(entry) {
		return nil, fmt.Errorf("claim %s: %w", fileID, interfaces.ErrConflict)
	}

	if !exists {
		entry = &interfaces.LedgerEntry{FileID: fileID}
		l.entries[fileID] = entry
	}
	entry.SourceBackend = sourceBackend
	entry.Status = interfaces.StatusInProgress
	entry.Attempts++
	entry.LastError = ""
	entry.StartedAt = l.now()
	entry.CompletedAt = time.Time{}

	out := *entry
	return &out, nil
}

func (l *MemoryLedger) claimable(entry *interfaces.LedgerEntry) bool {
	switch entry.Status {
	case interfaces.StatusPending:
		return true
	case interfaces.StatusFailed:
		return entry.Attempts < l.maxAttempts
	case interfaces.StatusInProgress:
		return entry.StartedAt.Before(l.now().Add(-l.staleAfter))
	default:
		return false
	}
}

func (l *MemoryLedger) MarkMigrated(ctx context.Context, fileID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[fileID]
	if !ok || entry.Status != interfaces.StatusInProgress {
		return fmt.Errorf("mark migrated %s without claim: %w", fileID, interfaces.ErrConflict)
	}
	entry.Status = interfaces.StatusMigrated
	entry.CompletedAt = l.now()
	return nil
}

func (l *MemoryLedger) MarkFailed(ctx context.Context, fileID string, cause error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[fileID]
	if !ok || entry.Status != interfaces.StatusInProgress {
		return fmt.Errorf("mark failed %s without claim: %w", fileID, interfaces.ErrConflict)
	}
	entry.Status = interfaces.StatusFailed
	entry.LastError = cause.Error()
	entry.CompletedAt = l.now()
	return nil
}

func (l *MemoryLedger) Get(ctx context.Context, fileID string) (*interfaces.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[fileID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	out := *entry
	return &out, nil
}

func (l *MemoryLedger) Failures(ctx context.Context, limit int) ([]interfaces.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []interfaces.LedgerEntry
	for _, entry := range l.entries {
		if entry.Status == interfaces.StatusFailed && entry.Attempts >= l.maxAttempts {
			out = append(out, *entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.After(out[j].CompletedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *MemoryLedger) Stats(ctx context.Context) (interfaces.LedgerStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var stats interfaces.LedgerStats
	for _, entry := range l.entries {
		switch entry.Status {
		case interfaces.StatusPending:
			stats.Pending++
		case interfaces.StatusInProgress:
			stats.InProgress++
		case interfaces.StatusMigrated:
			stats.Migrated++
		case interfaces.StatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}
