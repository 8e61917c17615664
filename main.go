package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"planetarena/server/internal/config"
	"planetarena/server/internal/logging"
	"planetarena/server/internal/telemetry"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	logging.ReplaceGlobals(logger)
	defer logger.Sync()

	flush, err := telemetry.InitSentry(cfg.SentryDSN, version)
	if err != nil {
		logger.Warn("sentry disabled", logging.Error(err))
		flush = func() {}
	}
	defer flush()
	if cfg.StatsViewAddr != "" {
		stop := telemetry.StartStatsView(cfg.StatsViewAddr)
		defer stop()
		logger.Info("statsview enabled", logging.String("address", cfg.StatsViewAddr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(cfg, logger)
	if err != nil {
		logger.Error("arena setup failed", logging.Error(err))
		os.Exit(1)
	}
	if err := srv.run(ctx); err != nil {
		logger.Error("arena exited", logging.Error(err))
		os.Exit(1)
	}
}
