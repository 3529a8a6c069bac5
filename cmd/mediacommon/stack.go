// Package mediacommon assembles the storage stack shared by the
// mediastore binaries from parsed CLI flags.
package mediacommon

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/townsquare/mediastore/cmd/flags"
	"github.com/townsquare/mediastore/interfaces"
	"github.com/townsquare/mediastore/ledger"
	"github.com/townsquare/mediastore/normalize"
	"github.com/townsquare/mediastore/queue"
	"github.com/townsquare/mediastore/storage"
	"github.com/urfave/cli/v2"
)

// Stack holds the storage topology built from flags. Primary is the
// authoritative object store; Legacies are ordered for fallback reads.
type Stack struct {
	Normalizer *normalize.Normalizer
	Primary    interfaces.Backend
	Legacies   []interfaces.Backend
	Queue      interfaces.MigrationQueue
	Ledger     interfaces.LedgerStore
}

// BuildStack instantiates backends for every configured location URI.
// The object store is required; legacy backends are optional and kept in
// flag order so resolution probes newest layouts first.
func BuildStack(ctx context.Context, cCtx *cli.Context, log *slog.Logger) (*Stack, error) {
	normalizer := normalize.New(cCtx.String(flags.MediaHostFlag.Name))
	factory := storage.NewFactory(normalizer, log)

	objectStoreURI := cCtx.String(flags.ObjectStoreFlag.Name)
	if objectStoreURI == "" {
		return nil, fmt.Errorf("object store location URI is required")
	}
	primary, err := factory.BackendFor(ctx, objectStoreURI)
	if err != nil {
		return nil, fmt.Errorf("object store backend: %w", err)
	}

	var legacies []interfaces.Backend
	for _, uri := range cCtx.StringSlice(flags.LegacyDirFlag.Name) {
		backend, err := factory.BackendFor(ctx, uri)
		if err != nil {
			return nil, fmt.Errorf("legacy backend %s: %w", uri, err)
		}
		legacies = append(legacies, backend)
	}
	if dsn := cCtx.String(flags.BlobDSNFlag.Name); dsn != "" {
		backend, err := factory.BackendFor(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("blob backend: %w", err)
		}
		legacies = append(legacies, backend)
	}

	stack := &Stack{
		Normalizer: normalizer,
		Primary:    primary,
		Legacies:   legacies,
	}

	if addr := cCtx.String(flags.RedisAddrFlag.Name); addr != "" {
		stack.Queue, err = queue.NewRedisQueue(ctx, addr, queue.DefaultListKey, log)
		if err != nil {
			return nil, fmt.Errorf("redis queue: %w", err)
		}
	} else {
		stack.Queue = queue.NewMemoryQueue(log)
	}

	maxAttempts := cCtx.Int(flags.MaxAttemptsFlag.Name)
	staleAfter := cCtx.Duration(flags.StaleAfterFlag.Name)
	if dsn := cCtx.String(flags.LedgerDSNFlag.Name); dsn != "" {
		pgLedger, err := ledger.NewPostgresLedger(ctx, dsn, log)
		if err != nil {
			return nil, fmt.Errorf("migration ledger: %w", err)
		}
		stack.Ledger = pgLedger.WithPolicy(maxAttempts, staleAfter)
	} else {
		log.Warn("No ledger DSN configured, using in-memory ledger")
		stack.Ledger = ledger.NewMemoryLedger().WithPolicy(maxAttempts, staleAfter)
	}

	return stack, nil
}
