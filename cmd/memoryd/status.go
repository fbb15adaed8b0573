package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/memoryd/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show memoryd configuration and hosted server health",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	resp, err := client.Get(healthURL)
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK && body["status"] == "healthy" {
			printStatus("Server", "running on port %d (version %s)", cfg.Server.Port, body["version"])
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if cfg.Storage.AzureAccount != "" {
		printStatus("Storage", "Azure Blob (account %s, container %s)", cfg.Storage.AzureAccount, cfg.Storage.AzureContainer)
	} else if cfg.Storage.Dir != "" {
		printStatus("Storage", "local files at %s", cfg.Storage.Dir)
	} else {
		printStatus("Storage", "local files at ~/.claude")
	}

	if cfg.Identity.TenantID != "" {
		printStatus("Identity", "Entra tenant %s", cfg.Identity.TenantID)
	} else {
		printStatus("Identity", "not configured (stdio mode only)")
	}

	if cfg.UserID != "" {
		printStatus("User", "%s", cfg.UserID)
	}
	return nil
}
