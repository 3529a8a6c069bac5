package interfaces

import (
	"context"
	"time"
)

// MigrationStatus is the per-file migration state machine:
// PENDING -> IN_PROGRESS -> {MIGRATED | FAILED}. MIGRATED is terminal.
// FAILED transitions back to claimable until the attempt budget is spent.
type MigrationStatus string

const (
	StatusPending    MigrationStatus = "PENDING"
	StatusInProgress MigrationStatus = "IN_PROGRESS"
	StatusMigrated   MigrationStatus = "MIGRATED"
	StatusFailed     MigrationStatus = "FAILED"
)

// LedgerEntry is the durable migration record for one logical file.
type LedgerEntry struct {
	FileID        string
	SourceBackend string
	Status        MigrationStatus
	Attempts      int
	LastError     string
	StartedAt     time.Time
	CompletedAt   time.Time
}

// LedgerStats summarizes migration progress by status.
type LedgerStats struct {
	Pending    int
	InProgress int
	Migrated   int
	Failed     int
}

// Total returns the number of tracked files.
func (s LedgerStats) Total() int {
	return s.Pending + s.InProgress + s.Migrated + s.Failed
}

// LedgerStore is the durable migration state tracker. It is the sole
// serialization point for concurrent migration work: Claim must be an atomic
// compare-and-set against the durable store, not an in-process lock, because
// migration runs may be separate processes.
type LedgerStore interface {
	// Claim atomically transitions a file to IN_PROGRESS and increments
	// its attempt counter. Claimable states: absent, PENDING, FAILED with
	// attempts below the budget, and IN_PROGRESS entries stale enough to
	// belong to a crashed run. Any other state returns ErrConflict.
	Claim(ctx context.Context, fileID, sourceBackend string) (*LedgerEntry, error)

	// MarkMigrated completes an IN_PROGRESS entry. Returns ErrConflict if
	// the caller no longer holds the claim.
	MarkMigrated(ctx context.Context, fileID string) error

	// MarkFailed records a failed attempt on an IN_PROGRESS entry.
	MarkFailed(ctx context.Context, fileID string, cause error) error

	// Get returns the entry for fileID, or ErrNotFound.
	Get(ctx context.Context, fileID string) (*LedgerEntry, error)

	// Failures lists FAILED entries whose attempt budget is spent. These
	// surface for manual intervention and are never retried automatically.
	Failures(ctx context.Context, limit int) ([]LedgerEntry, error)

	// Stats summarizes the ledger by status.
	Stats(ctx context.Context) (LedgerStats, error)
}
