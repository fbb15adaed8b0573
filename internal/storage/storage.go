// Package storage persists profile documents as opaque markdown blobs.
// Two backends exist: local filesystem (single-user development) and Azure
// Blob Storage (hosted, namespaced per user). The backends own all durable
// state; callers hand in and receive whole documents.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports an absent profile document.
var ErrNotFound = errors.New("profile not found")

// ModelProfileInfo describes one stored self-profile.
type ModelProfileInfo struct {
	ModelID      string
	Size         int64
	LastModified time.Time
}

// ProfileStore persists the user profile document, keyed by user id. The
// local backend ignores the user id; the blob backend requires it.
type ProfileStore interface {
	Read(ctx context.Context, userID string) (string, error)
	Write(ctx context.Context, userID, content string) error
	Exists(ctx context.Context, userID string) (bool, error)
	// Location describes where the profile lives, for error messages.
	Location(userID string) string
}

// ModelStore persists model self-profiles, keyed by (user id, model id).
type ModelStore interface {
	Read(ctx context.Context, userID, modelID string) (string, error)
	Write(ctx context.Context, userID, modelID, content string) error
	Exists(ctx context.Context, userID, modelID string) (bool, error)
	List(ctx context.Context, userID string) ([]ModelProfileInfo, error)
	Location(userID, modelID string) string
}

// Config selects and configures a backend. An Azure account selects the
// blob backend; otherwise profiles live under Dir on the local filesystem.
type Config struct {
	Dir            string
	AzureAccount   string
	AzureKey       string
	AzureContainer string
}

// Open builds the configured backend. Both returned stores are views over
// one backend instance.
func Open(cfg Config) (ProfileStore, ModelStore, error) {
	if cfg.AzureAccount != "" {
		azure, err := NewAzure(AzureConfig{
			Account:   cfg.AzureAccount,
			Key:       cfg.AzureKey,
			Container: cfg.AzureContainer,
		})
		if err != nil {
			return nil, nil, err
		}
		return azure.Profiles(), azure.Models(), nil
	}
	local, err := NewLocal(cfg.Dir)
	if err != nil {
		return nil, nil, err
	}
	return local.Profiles(), local.Models(), nil
}
