package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vyrodovalexey/eogate/internal/config"
	"github.com/vyrodovalexey/eogate/internal/observability"
)

const shutdownTimeout = 10 * time.Second

// runServer keeps every provider authenticated, serves metrics and
// reloads providers on configuration changes until interrupted.
func runServer(ctx context.Context, app *application, flags cliFlags, logger observability.Logger) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app.metricsServer = createMetricsServer(flags.metricsAddr, app.metrics, logger)
	go runMetricsServer(app.metricsServer, logger)

	watcher := startConfigWatcher(ctx, app, flags.configPath, logger)
	go app.refreshLoop(ctx, flags.interval)

	waitForShutdown(app, watcher, cancel, logger)
}

// refreshLoop authenticates every provider immediately and then on every tick.
func (app *application) refreshLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		app.refreshAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// refreshAll authenticates every provider once. Failures are logged and
// counted by the coordinator.
func (app *application) refreshAll(ctx context.Context) (ok, failed int) {
	signers, errs := app.coordinator.AuthenticateAll(ctx)
	app.logger.Debug("providers refreshed",
		observability.Int("ok", len(signers)),
		observability.Int("failed", len(errs)),
	)
	return len(signers), len(errs)
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown.
func waitForShutdown(app *application, watcher *config.Watcher, cancel context.CancelFunc, logger observability.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", observability.String("signal", sig.String()))
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if watcher != nil {
		_ = watcher.Stop()
	}

	if app.metricsServer != nil {
		logger.Info("stopping metrics server")
		if err := app.metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to stop metrics server gracefully", observability.Error(err))
		}
	}

	shutdownTracer(app, logger)

	logger.Info("authcheck stopped")
}
