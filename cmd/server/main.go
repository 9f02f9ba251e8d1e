// Package main is the entry point for the artwall API server.
//
// main only reads configuration, opens the stores and hands them to the
// server; everything else lives under internal/.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/sakif/artwall/internal/config"
	"github.com/sakif/artwall/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	deps, err := server.OpenDeps(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to open stores", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv, err := server.New(cfg, deps, logger)
	if err != nil {
		deps.Close()
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM and closes deps on the way out.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
