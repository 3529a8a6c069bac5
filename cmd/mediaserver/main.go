package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/townsquare/mediastore/cmd/flags"
	"github.com/townsquare/mediastore/cmd/mediacommon"
	"github.com/townsquare/mediastore/common"
	"github.com/townsquare/mediastore/httpserver"
	"github.com/townsquare/mediastore/ingest"
	"github.com/townsquare/mediastore/interfaces"
	"github.com/townsquare/mediastore/metrics"
	"github.com/townsquare/mediastore/migrate"
	"github.com/townsquare/mediastore/resolve"
	"github.com/townsquare/mediastore/storage"
	"github.com/urfave/cli/v2"
)

// drainInterval is how often the server works off lazily-discovered
// migration candidates in the background.
const drainInterval = 30 * time.Second

// drainBatch bounds how many queued files each background pass copies.
const drainBatch = 25

var serverFlags = []cli.Flag{
	flags.ListenAddrFlag,
	flags.MetricsAddrFlag,
	flags.PprofFlag,
	flags.DrainSecondsFlag,
	flags.MirrorDirFlag,
}

func main() {
	app := &cli.App{
		Name:    "mediaserver",
		Usage:   "Serve the media upload and resolution API",
		Version: common.Version,
		Flags:   append(append(append(serverFlags, flags.CommonFlags...), flags.StorageFlags...), flags.MigrationFlags...),
		Action:  runServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runServer(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stack, err := mediacommon.BuildStack(ctx, cCtx, logger)
	if err != nil {
		logger.Error("Failed to build storage stack", "err", err)
		return err
	}

	var mirror interfaces.Backend
	if mirrorURI := cCtx.String(flags.MirrorDirFlag.Name); mirrorURI != "" {
		factory := storage.NewFactory(stack.Normalizer, logger)
		mirror, err = factory.BackendFor(ctx, mirrorURI)
		if err != nil {
			logger.Error("Failed to build mirror backend", "err", err)
			return err
		}
	}

	promMetrics := metrics.New(common.PackageName)
	resolver := resolve.New(stack.Normalizer, stack.Primary, stack.Legacies, stack.Queue, logger)
	ingestSvc := ingest.New(stack.Primary, mirror, stack.Normalizer, logger)

	engine := migrate.New(migrate.Config{
		Sources:     stack.Legacies,
		Dest:        stack.Primary,
		Ledger:      stack.Ledger,
		Queue:       stack.Queue,
		Metrics:     promMetrics,
		MaxAttempts: cCtx.Int(flags.MaxAttemptsFlag.Name),
		Log:         logger,
	})
	go drainLoop(ctx, engine, logger)

	handler := httpserver.NewHandler(ingestSvc, resolver, promMetrics, logger)
	srv, err := httpserver.New(flags.ConfigureServer(cCtx, logger), handler)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}
	srv.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
	<-exit
	logger.Info("Shutdown signal received")

	cancel()
	srv.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}

// drainLoop periodically copies media that resolution found on a legacy
// backend, so frequently-requested files migrate without a full scan.
func drainLoop(ctx context.Context, engine *migrate.Engine, logger *slog.Logger) {
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		report, err := engine.DrainQueue(ctx, drainBatch)
		if err != nil {
			logger.Error("Background queue drain failed", "err", err)
			continue
		}
		if report.Claimed > 0 {
			logger.Info("Background queue drain finished",
				slog.Int("copied", report.Copied),
				slog.Int("failed", report.Failed),
				slog.Int64("bytes", report.BytesCopied))
		}
	}
}
