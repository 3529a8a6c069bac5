package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/townsquare/mediastore/cmd/flags"
	"github.com/townsquare/mediastore/cmd/mediacommon"
	"github.com/townsquare/mediastore/common"
	"github.com/townsquare/mediastore/metrics"
	"github.com/townsquare/mediastore/migrate"
	"github.com/townsquare/mediastore/resolve"
	"github.com/urfave/cli/v2"
)

var migrateFlags = append(append(append([]cli.Flag{},
	flags.CommonFlags...), flags.StorageFlags...), flags.MigrationFlags...)

func main() {
	app := &cli.App{
		Name:    "mediamigrate",
		Usage:   "Migrate legacy media into the object store",
		Version: common.Version,
		Flags:   migrateFlags,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "scan legacy backends and migrate up to one batch of files",
				Action: runBatch,
			},
			{
				Name:  "drain",
				Usage: "migrate files queued by the resolver",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "max",
						Value: 100,
						Usage: "maximum queued files to process",
					},
				},
				Action: runDrain,
			},
			{
				Name:   "status",
				Usage:  "print ledger statistics and exhausted failures",
				Action: runStatus,
			},
			{
				Name:  "verify",
				Usage: "report which backends hold a given media reference",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "ref",
						Required: true,
						Usage:    "media reference in any historical dialect",
					},
				},
				Action: runVerify,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// signalContext cancels on SIGINT/SIGTERM so a long batch stops cleanly
// between files.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func buildEngine(ctx context.Context, cCtx *cli.Context) (*migrate.Engine, *mediacommon.Stack, error) {
	logger := flags.SetupLogger(cCtx)
	stack, err := mediacommon.BuildStack(ctx, cCtx, logger)
	if err != nil {
		return nil, nil, err
	}

	engine := migrate.New(migrate.Config{
		Sources:     stack.Legacies,
		Dest:        stack.Primary,
		Ledger:      stack.Ledger,
		Queue:       stack.Queue,
		Metrics:     metrics.New(common.PackageName),
		BatchSize:   cCtx.Int(flags.BatchSizeFlag.Name),
		MaxAttempts: cCtx.Int(flags.MaxAttemptsFlag.Name),
		Log:         logger,
	})
	return engine, stack, nil
}

func runBatch(cCtx *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	engine, _, err := buildEngine(ctx, cCtx)
	if err != nil {
		return err
	}

	report, err := engine.RunBatch(ctx)
	if err != nil {
		return err
	}
	fmt.Println(report.String())
	return nil
}

func runDrain(cCtx *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	engine, _, err := buildEngine(ctx, cCtx)
	if err != nil {
		return err
	}

	report, err := engine.DrainQueue(ctx, cCtx.Int("max"))
	if err != nil {
		return err
	}
	fmt.Println(report.String())
	return nil
}

func runStatus(cCtx *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	logger := flags.SetupLogger(cCtx)
	stack, err := mediacommon.BuildStack(ctx, cCtx, logger)
	if err != nil {
		return err
	}

	stats, err := stack.Ledger.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("ledger: total=%d pending=%d in_progress=%d migrated=%d failed=%d\n",
		stats.Total(), stats.Pending, stats.InProgress, stats.Migrated, stats.Failed)

	failures, err := stack.Ledger.Failures(ctx, 50)
	if err != nil {
		return err
	}
	for _, entry := range failures {
		fmt.Printf("failed: %s attempts=%d last_error=%q\n",
			entry.FileID, entry.Attempts, entry.LastError)
	}
	return nil
}

func runVerify(cCtx *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	logger := flags.SetupLogger(cCtx)
	stack, err := mediacommon.BuildStack(ctx, cCtx, logger)
	if err != nil {
		return err
	}

	resolver := resolve.New(stack.Normalizer, stack.Primary, stack.Legacies, nil, logger)
	key, presence, err := resolver.Presence(ctx, cCtx.String("ref"))
	if err != nil {
		return err
	}

	fmt.Printf("canonical: %s\n", key.FileID())
	fmt.Printf("url: %s\n", stack.Normalizer.CanonicalURL(key))

	backends := make([]string, 0, len(presence))
	for name := range presence {
		backends = append(backends, name)
	}
	sort.Strings(backends)
	for _, name := range backends {
		fmt.Printf("%-12s present=%v\n", name, presence[name])
	}
	return nil
}
