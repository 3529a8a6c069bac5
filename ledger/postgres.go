// Package ledger implements the durable migration state tracker. The
// ledger is the only shared mutable state of the migration layer; its
// single-flight claim is the sole serialization point for concurrent
// migration work.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/townsquare/mediastore/interfaces"
)

// DefaultMaxAttempts bounds automatic retries per file before a FAILED
// entry becomes terminal and surfaces for manual intervention.
const DefaultMaxAttempts = 3

// DefaultStaleAfter is how old an IN_PROGRESS entry must be before another
// run may claim it. A crashed run leaves at most one such entry; the new
// claimant re-verifies against the destination rather than trusting it.
const DefaultStaleAfter = 15 * time.Minute

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS migration_ledger (
	file_id        text PRIMARY KEY,
	source_backend text NOT NULL,
	status         text NOT NULL,
	attempts       int NOT NULL DEFAULT 0,
	last_error     text,
	started_at     timestamptz,
	completed_at   timestamptz
);
CREATE INDEX IF NOT EXISTS migration_ledger_status_idx ON migration_ledger (status);
`

// claimQuery is the atomic single-flight claim. The conditional upsert is
// the compare-and-set: it only moves a file to IN_PROGRESS from a claimable
// state and reports zero rows otherwise. It must stay a single statement so
// separate processes serialize on the database, not on process memory.
const claimQuery = `
INSERT INTO migration_ledger (file_id, source_backend, status, attempts, started_at, last_error, completed_at)
VALUES ($1, $2, 'IN_PROGRESS', 1, now(), NULL, NULL)
ON CONFLICT (file_id) DO UPDATE
SET status = 'IN_PROGRESS',
    source_backend = EXCLUDED.source_backend,
    attempts = migration_ledger.attempts + 1,
    started_at = now(),
    last_error = NULL,
    completed_at = NULL
WHERE migration_ledger.status = 'PENDING'
   OR (migration_ledger.status = 'FAILED' AND migration_ledger.attempts < $3)
   OR (migration_ledger.status = 'IN_PROGRESS' AND migration_ledger.started_at < now() - make_interval(secs => $4))
RETURNING file_id, source_backend, status, attempts, COALESCE(last_error, ''), started_at, completed_at
`

// PostgresLedger implements interfaces.LedgerStore on a Postgres table.
type PostgresLedger struct {
	pool        *pgxpool.Pool
	maxAttempts int
	staleAfter  time.Duration
	log         *slog.Logger
}

// NewPostgresLedger connects to Postgres and ensures the ledger table.
func NewPostgresLedger(ctx context.Context, dsn string, log *slog.Logger) (*PostgresLedger, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ledger DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping ledger database: %w", err)
	}

	return NewPostgresLedgerFromPool(ctx, pool, log)
}

// NewPostgresLedgerFromPool wraps an existing pool.
func NewPostgresLedgerFromPool(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) (*PostgresLedger, error) {
	l := &PostgresLedger{
		pool:        pool,
		maxAttempts: DefaultMaxAttempts,
		staleAfter:  DefaultStaleAfter,
		log:         log,
	}
	if _, err := pool.Exec(ctx, ledgerSchema); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger schema: %w", err)
	}
	return l, nil
}

// WithPolicy overrides the attempt budget and stale claim window.
func (l *PostgresLedger) WithPolicy(maxAttempts int, staleAfter time.Duration) *PostgresLedger {
	l.maxAttempts = maxAttempts
	l.staleAfter = staleAfter
	return l
}

// Claim atomically transitions fileID to IN_PROGRESS, or returns
// ErrConflict when another run holds the file or its state is terminal.
func (l *PostgresLedger) Claim(ctx context.Context, fileID, sourceBackend string) (*interfaces.LedgerEntry, error) {
	entry, err := scanEntry(l.pool.QueryRow(ctx, claimQuery,
		fileID, sourceBackend, l.maxAttempts, l.staleAfter.Seconds()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("claim %s: %w", fileID, interfaces.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim %s: %w", fileID, err)
	}

	l.log.Debug("Claimed file for migration",
		slog.String("fileID", fileID),
		slog.Int("attempt", entry.Attempts))
	return entry, nil
}

// MarkMigrated completes an IN_PROGRESS entry. MIGRATED is terminal.
func (l *PostgresLedger) MarkMigrated(ctx context.Context, fileID string) error {
	tag, err := l.pool.Exec(ctx, `
		UPDATE migration_ledger
		SET status = 'MIGRATED', completed_at = now()
		WHERE file_id = $1 AND status = 'IN_PROGRESS'`, fileID)
	if err != nil {
		return fmt.Errorf("failed to mark %s migrated: %w", fileID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark migrated %s without claim: %w", fileID, interfaces.ErrConflict)
	}
	return nil
}

// MarkFailed records a failed attempt on an IN_PROGRESS entry.
func (l *PostgresLedger) MarkFailed(ctx context.Context, fileID string, cause error) error {
	tag, err := l.pool.Exec(ctx, `
		UPDATE migration_ledger
		SET status = 'FAILED', last_error = $2, completed_at = now()
		WHERE file_id = $1 AND status = 'IN_PROGRESS'`, fileID, cause.Error())
	if err != nil {
		return fmt.Errorf("failed to mark %s failed: %w", fileID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark failed %s without claim: %w", fileID, interfaces.ErrConflict)
	}
	return nil
}

// Get returns the entry for fileID, or ErrNotFound.
func (l *PostgresLedger) Get(ctx context.Context, fileID string) (*interfaces.LedgerEntry, error) {
	entry, err := scanEntry(l.pool.QueryRow(ctx, `
		SELECT file_id, source_backend, status, attempts, COALESCE(last_error, ''), started_at, completed_at
		FROM migration_ledger WHERE file_id = $1`, fileID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry %s: %w", fileID, err)
	}
	return entry, nil
}

// Failures lists FAILED entries whose attempt budget is spent.
func (l *PostgresLedger) Failures(ctx context.Context, limit int) ([]interfaces.LedgerEntry, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT file_id, source_backend, status, attempts, COALESCE(last_error, ''), started_at, completed_at
		FROM migration_ledger
		WHERE status = 'FAILED' AND attempts >= $1
		ORDER BY completed_at DESC
		LIMIT $2`, l.maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list failures: %w", err)
	}
	defer rows.Close()

	var entries []interfaces.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan failure row: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating failures: %w", err)
	}
	return entries, nil
}

// Stats summarizes the ledger by status.
func (l *PostgresLedger) Stats(ctx context.Context) (interfaces.LedgerStats, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT status, count(*) FROM migration_ledger GROUP BY status`)
	if err != nil {
		return interfaces.LedgerStats{}, fmt.Errorf("failed to query ledger stats: %w", err)
	}
	defer rows.Close()

	var stats interfaces.LedgerStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return interfaces.LedgerStats{}, fmt.Errorf("failed to scan stats row: %w", err)
		}
		switch interfaces.MigrationStatus(status) {
		case interfaces.StatusPending:
			stats.Pending = count
		case interfaces.StatusInProgress:
			stats.InProgress = count
		case interfaces.StatusMigrated:
			stats.Migrated = count
		case interfaces.StatusFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return interfaces.LedgerStats{}, fmt.Errorf("error iterating stats: %w", err)
	}
	return stats, nil
}

// Close releases the connection pool.
func (l *PostgresLedger) Close() {
	l.pool.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*interfaces.LedgerEntry, error) {
	var (
		entry       interfaces.LedgerEntry
		status      string
		startedAt   *time.Time
		completedAt *time.Time
	)
	err := row.Scan(&entry.FileID, &entry.SourceBackend, &status, &entry.Attempts,
		&entry.LastError, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	entry.Status = interfaces.MigrationStatus(status)
	if startedAt != nil {
		entry.StartedAt = *startedAt
	}
	if completedAt != nil {
		entry.CompletedAt = *completedAt
	}
	return &entry, nil
}
