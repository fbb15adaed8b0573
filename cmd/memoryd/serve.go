package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/memoryd/internal/api"
	"github.com/kalambet/memoryd/internal/config"
	"github.com/kalambet/memoryd/internal/identity"
	"github.com/kalambet/memoryd/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP over HTTP with Entra ID auth (hosted multi-user mode)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	fmt.Fprintf(os.Stderr, "memoryd version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateHosted(); err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	profiles, models, err := storage.Open(storage.Config{
		Dir:            cfg.Storage.Dir,
		AzureAccount:   cfg.Storage.AzureAccount,
		AzureKey:       cfg.Storage.AzureKey,
		AzureContainer: cfg.Storage.AzureContainer,
	})
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}

	resolver, err := identity.NewResolver(identity.Config{
		TenantID: cfg.Identity.TenantID,
		ClientID: cfg.Identity.ClientID,
	})
	if err != nil {
		return fmt.Errorf("building token resolver: %w", err)
	}

	mcpSrv := api.NewMCPServer(api.Deps{
		Profiles: profiles,
		Models:   models,
	})
	handler := api.NewHandler(api.HTTPDeps{
		MCP:            mcpSrv,
		Auth:           api.NewAuthenticator(resolver, cfg.Server.BaseURL),
		BaseURL:        cfg.Server.BaseURL,
		RedirectPrefix: cfg.Server.RedirectPrefix,
		TenantID:       cfg.Identity.TenantID,
		ClientID:       cfg.Identity.ClientID,
		ClientSecret:   cfg.Identity.ClientSecret,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("memoryd listening", "addr", addr, "base_url", cfg.Server.BaseURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
