package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/memoryd/internal/api"
	"github.com/kalambet/memoryd/internal/config"
	"github.com/kalambet/memoryd/internal/storage"
)

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Serve MCP over stdin/stdout (local single-user mode)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStdio()
	},
}

func runStdio() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	// Blob storage has no filesystem owner to namespace by, so the user id
	// must be configured up front.
	if cfg.Storage.AzureAccount != "" && cfg.UserID == "" {
		return fmt.Errorf("MEMORYD_USER_ID is required when stdio mode uses blob storage")
	}

	profiles, models, err := storage.Open(storage.Config{
		Dir:            cfg.Storage.Dir,
		AzureAccount:   cfg.Storage.AzureAccount,
		AzureKey:       cfg.Storage.AzureKey,
		AzureContainer: cfg.Storage.AzureContainer,
	})
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}

	mcpSrv := api.NewMCPServer(api.Deps{
		Profiles:      profiles,
		Models:        models,
		DefaultUserID: cfg.UserID,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("MCP server started", "transport", "stdio", "profile", profiles.Location(cfg.UserID))
	if err := server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server: %w", err)
	}
	return nil
}

// setupLogging routes slog to stderr; stdout stays reserved for the MCP
// stdio transport.
func setupLogging(level string) {
	logLevel := slog.LevelInfo
	switch {
	case strings.EqualFold(level, "debug"):
		logLevel = slog.LevelDebug
	case strings.EqualFold(level, "warn"):
		logLevel = slog.LevelWarn
	case strings.EqualFold(level, "error"):
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}
