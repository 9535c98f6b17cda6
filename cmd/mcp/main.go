package main

import (
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	insightpilot "github.com/dracory/insightpilot"
	"github.com/dracory/insightpilot/internal/mcpserver"
	"github.com/dracory/insightpilot/internal/observability"
)

func main() {
	cfg, err := insightpilot.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	// stdout carries the protocol
	logger := observability.NewLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	app, err := insightpilot.New(cfg, insightpilot.WithLogger(logger))
	if err != nil {
		logger.Error("failed to initialize app", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = app.Close() }()

	s := mcpserver.New(app.Registry(), app.Prober(), app.NewQuerySession())
	if err := server.ServeStdio(s); err != nil {
		logger.Error("mcp server failed", slog.Any("error", err))
		os.Exit(1)
	}
}
