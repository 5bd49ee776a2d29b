// Package main provides the entry point for the sitechat MCP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/sitechat/internal/app"
	"github.com/raphaelgruber/sitechat/internal/config"
	"github.com/raphaelgruber/sitechat/internal/server"
	"github.com/raphaelgruber/sitechat/internal/tools"
)

const version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet; stdout belongs to the MCP transport.
		os.Stderr.WriteString("sitechat-mcp: " + err.Error() + "\n")
		return 1
	}

	// Dual output: text to stderr, JSON to file. Never stdout.
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()

	logger.Info("sitechat-mcp starting",
		"version", version,
		"index", cfg.IndexBackend,
		"embedding_model", cfg.EmbedModel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		return 1
	}
	defer func() {
		logger.Info("closing components")
		if err := a.Close(context.Background()); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	}()

	srv := server.New(version, logger)
	tools.RegisterAll(srv.MCPServer(), &tools.Dependencies{
		Ingest: a.Ingest,
		Search: a.Search,
		Chat:   a.Chat,
		Stats:  a.Stats,
		Logger: logger,
	})
	logger.Info("server ready, awaiting connections")

	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		return 1
	}
	logger.Info("shutdown complete")
	return 0
}
