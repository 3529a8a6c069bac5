// Package migrate drives the idempotent, resumable migration of legacy
// media into the authoritative object store.
//
// The engine enumerates candidates from legacy backends, claims each file
// through the ledger's atomic single-flight transition, verifies against
// the destination's own existence check before copying, and verifies again
// after. Interrupting a run leaves at most the in-flight file's ledger
// entry in IN_PROGRESS; the next run reclaims it once stale and re-verifies
// rather than trusting the recorded status.
package migrate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/townsquare/mediastore/interfaces"
	"github.com/townsquare/mediastore/metrics"
)

// DefaultBatchSize bounds how many files one batch claims. Batches keep
// memory bounded and give operators a safe interruption point.
const DefaultBatchSize = 100

// DefaultMaxAttempts mirrors the ledger's attempt budget. Entries at or
// past it are reported instead of claimed.
const DefaultMaxAttempts = 3

// errBatchFull stops source enumeration once the batch budget is spent.
var errBatchFull = errors.New("batch full")

// Engine copies legacy media into the object store exactly once.
type Engine struct {
	sources     []interfaces.Backend
	dest        interfaces.Backend
	ledger      interfaces.LedgerStore
	queue       interfaces.MigrationQueue
	metrics     *metrics.Metrics
	batchSize   int
	maxAttempts int
	log         *slog.Logger
}

// Config assembles an Engine.
type Config struct {
	// Sources are the legacy backends, scanned in order.
	Sources []interfaces.Backend
	// Dest is the authoritative object store.
	Dest interfaces.Backend
	// Ledger tracks per-file state.
	Ledger interfaces.LedgerStore
	// Queue feeds lazily-discovered work; optional.
	Queue interfaces.MigrationQueue
	// Metrics is optional.
	Metrics *metrics.Metrics
	// BatchSize defaults to DefaultBatchSize.
	BatchSize int
	// MaxAttempts must match the ledger's policy; defaults to
	// DefaultMaxAttempts.
	MaxAttempts int
	Log         *slog.Logger
}

// New creates a migration engine.
func New(cfg Config) *Engine {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		sources:     cfg.Sources,
		dest:        cfg.Dest,
		ledger:      cfg.Ledger,
		queue:       cfg.Queue,
		metrics:     cfg.Metrics,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// RunBatch scans the legacy backends and migrates up to one batch of
// files. One file's failure is recorded, never propagated; the only errors
// returned are enumeration failures and context cancellation. Cancellation
// takes effect between files, not mid-file.
func (e *Engine) RunBatch(ctx context.Context) (*Report, error) {
	report := NewReport()
	start := time.Now()

	for _, src := range e.sources {
		if !src.Available(ctx) {
			e.log.Warn("Skipping unavailable source", slog.String("backend", src.Name()))
			continue
		}
		for _, bucket := range interfaces.Buckets() {
			err := src.List(ctx, bucket, func(key interfaces.CanonicalKey) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				if report.Claimed >= e.batchSize {
					return errBatchFull
				}
				e.migrateOne(ctx, src, key, report)
				return nil
			})
			if errors.Is(err, errBatchFull) {
				e.log.Info("Batch budget spent", slog.Int("claimed", report.Claimed))
				report.Duration = time.Since(start)
				return report, nil
			}
			if err != nil {
				report.Duration = time.Since(start)
				return report, fmt.Errorf("failed to enumerate %s/%s: %w", src.Name(), bucket.Slug(), err)
			}
		}
	}

	report.Duration = time.Since(start)
	e.log.Info("Migration batch complete",
		slog.Int("scanned", report.Scanned),
		slog.Int("copied", report.Copied),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", report.Duration))
	return report, nil
}

// DrainQueue migrates up to max lazily-enqueued files. Keys whose source
// can no longer be found are dropped; the object may already live in the
// destination, which the ledger claim path confirms.
func (e *Engine) DrainQueue(ctx context.Context, max int) (*Report, error) {
	if e.queue == nil {
		return NewReport(), nil
	}

	report := NewReport()
	start := time.Now()
	for i := 0; i < max; i++ {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}
		key, ok, err := e.queue.Dequeue(ctx)
		if err != nil {
			report.Duration = time.Since(start)
			return report, fmt.Errorf("failed to dequeue: %w", err)
		}
		if !ok {
			break
		}

		src := e.sourceHolding(ctx, key)
		e.migrateOne(ctx, src, key, report)
	}

	report.Duration = time.Since(start)
	return report, nil
}

// sourceHolding returns the first legacy backend that has key, or nil when
// none does (the claim path still records the outcome).
func (e *Engine) sourceHolding(ctx context.Context, key interfaces.CanonicalKey) interfaces.Backend {
	for _, src := range e.sources {
		ok, err := src.Exists(ctx, key)
		if err == nil && ok {
			return src
		}
	}
	return nil
}

// migrateOne runs the per-file state machine. All outcomes land in the
// report; errors are recorded in the ledger, never thrown past the batch.
func (e *Engine) migrateOne(ctx context.Context, src interfaces.Backend, key interfaces.CanonicalKey, report *Report) {
	fileID := key.FileID()
	report.Scanned++

	// Terminal states short-circuit without claiming.
	entry, err := e.ledger.Get(ctx, fileID)
	if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		e.recordFailure(report, fileID, fmt.Errorf("ledger lookup: %w", err))
		return
	}
	if entry != nil {
		switch {
		case entry.Status == interfaces.StatusMigrated:
			report.SkippedMigrated++
			e.count("skipped")
			return
		case entry.Status == interfaces.StatusFailed && entry.Attempts >= e.maxAttempts:
			report.addExhausted(*entry)
			e.count("skipped")
			return
		}
	}

	sourceName := "unknown"
	if src != nil {
		sourceName = src.Name()
	}

	if _, err := e.ledger.Claim(ctx, fileID, sourceName); err != nil {
		if errors.Is(err, interfaces.ErrConflict) {
			// Another run holds the file or finished it; skip, don't retry.
			report.Conflicts++
			e.count("conflict")
			return
		}
		e.recordFailure(report, fileID, fmt.Errorf("ledger claim: %w", err))
		return
	}
	report.Claimed++

	if err := e.copyIfAbsent(ctx, src, key, report); err != nil {
		e.count("failed")
		report.addFailure(fileID, err)
		if markErr := e.ledger.MarkFailed(ctx, fileID, err); markErr != nil {
			e.log.Error("Failed to record migration failure",
				slog.String("fileID", fileID), "err", markErr)
		}
		return
	}

	if err := e.ledger.MarkMigrated(ctx, fileID); err != nil {
		e.recordFailure(report, fileID, fmt.Errorf("ledger completion: %w", err))
		return
	}
}

// copyIfAbsent performs the verified copy. Migration is idempotent with
// respect to the destination, not just the ledger: a file already present
// is confirmed, not re-copied.
func (e *Engine) copyIfAbsent(ctx context.Context, src interfaces.Backend, key interfaces.CanonicalKey, report *Report) error {
	present, err := e.dest.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("destination existence check: %w", err)
	}
	if present {
		report.AlreadyPresent++
		e.count("already_present")
		e.log.Debug("Object already in destination", slog.String("fileID", key.FileID()))
		return nil
	}

	if src == nil {
		return fmt.Errorf("no source backend holds %s: %w", key.FileID(), interfaces.ErrNotFound)
	}

	obj, err := src.Read(ctx, key)
	if err != nil {
		return fmt.Errorf("source read: %w", err)
	}

	if err := e.dest.Write(ctx, key, obj.Data, obj.ContentType); err != nil {
		return fmt.Errorf("destination write: %w", err)
	}

	// Post-write verification: the copy must be readable and byte-equal
	// before the ledger may say MIGRATED.
	written, err := e.dest.Read(ctx, key)
	if err != nil {
		return fmt.Errorf("post-write read: %w", err)
	}
	if int64(len(written.Data)) != obj.SizeBytes || !bytes.Equal(written.Data, obj.Data) {
		return fmt.Errorf("post-write verification of %s: %w", key.FileID(), interfaces.ErrCorrupt)
	}

	report.Copied++
	report.BytesCopied += obj.SizeBytes
	e.count("copied")
	if e.metrics != nil {
		e.metrics.MigratedBytes.Add(float64(obj.SizeBytes))
	}
	e.log.Info("Migrated file",
		slog.String("fileID", key.FileID()),
		slog.String("source", src.Name()),
		slog.Int64("bytes", obj.SizeBytes))
	return nil
}

func (e *Engine) recordFailure(report *Report, fileID string, err error) {
	report.addFailure(fileID, err)
	e.count("failed")
	e.log.Error("Migration error", slog.String("fileID", fileID), "err", err)
}

func (e *Engine) count(outcome string) {
	if e.metrics != nil {
		e.metrics.MigrationsTotal.WithLabelValues(outcome).Inc()
	}
}
