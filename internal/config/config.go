// Package config resolves process configuration from environment
// variables. MEMORYD_* variables control the server itself; the ENTRA_* and
// AZURE_STORAGE_* names match what the hosted deployment provisions.
package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Identity IdentityConfig
	Storage  StorageConfig

	// UserID is the fixed storage namespace for stdio mode. Required when
	// stdio mode runs against blob storage; ignored in hosted mode, where
	// each request carries its own verified identity.
	UserID string
}

type ServerConfig struct {
	Port int
	// BaseURL is the public origin of the hosted deployment, used in OAuth
	// discovery documents and the WWW-Authenticate challenge.
	BaseURL string
	// RedirectPrefix is the allow-list prefix for OAuth redirect_uri
	// values on the authorize leg.
	RedirectPrefix string
}

type LogConfig struct {
	Level string
}

type IdentityConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

type StorageConfig struct {
	Dir            string
	AzureAccount   string
	AzureKey       string
	AzureContainer string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           4200,
			RedirectPrefix: "https://claude.ai/",
		},
		Log: LogConfig{Level: "info"},
		Storage: StorageConfig{
			AzureContainer: "profiles",
		},
	}
}

// Load reads configuration from the environment on top of defaults.
func Load() (Config, error) {
	return loadWith(os.Getenv)
}

func loadWith(getenv func(string) string) (Config, error) {
	cfg := defaults()

	if v := getenv("MEMORYD_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid MEMORYD_PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := getenv("MEMORYD_BASE_URL"); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := getenv("MEMORYD_REDIRECT_PREFIX"); v != "" {
		cfg.Server.RedirectPrefix = v
	}
	if v := getenv("MEMORYD_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := getenv("MEMORYD_USER_ID"); v != "" {
		cfg.UserID = v
	}
	if v := getenv("MEMORYD_DATA_DIR"); v != "" {
		cfg.Storage.Dir = v
	}
	if v := getenv("AZURE_STORAGE_ACCOUNT"); v != "" {
		cfg.Storage.AzureAccount = v
	}
	if v := getenv("AZURE_STORAGE_KEY"); v != "" {
		cfg.Storage.AzureKey = v
	}
	if v := getenv("AZURE_STORAGE_CONTAINER"); v != "" {
		cfg.Storage.AzureContainer = v
	}
	if v := getenv("ENTRA_TENANT_ID"); v != "" {
		cfg.Identity.TenantID = v
	}
	if v := getenv("ENTRA_CLIENT_ID"); v != "" {
		cfg.Identity.ClientID = v
	}
	if v := getenv("ENTRA_CLIENT_SECRET"); v != "" {
		cfg.Identity.ClientSecret = v
	}

	return cfg, nil
}

// ValidateHosted checks the settings hosted mode cannot run without.
func (c Config) ValidateHosted() error {
	if c.Identity.TenantID == "" || c.Identity.ClientID == "" {
		return fmt.Errorf("config: ENTRA_TENANT_ID and ENTRA_CLIENT_ID are required in hosted mode")
	}
	if c.Identity.ClientSecret == "" {
		return fmt.Errorf("config: ENTRA_CLIENT_SECRET is required in hosted mode")
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("config: MEMORYD_BASE_URL is required in hosted mode")
	}
	if c.Storage.AzureAccount != "" && c.Storage.AzureKey == "" {
		return fmt.Errorf("config: AZURE_STORAGE_KEY is required with AZURE_STORAGE_ACCOUNT")
	}
	return nil
}
