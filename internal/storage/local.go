package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Local stores profiles on the filesystem: <dir>/me.md for the user
// profile and <dir>/claude/<modelID>.md for self-profiles. User ids are
// ignored; a local installation is single-user by construction.
type Local struct {
	dir string
}

// NewLocal builds a Local rooted at dir, defaulting to ~/.claude.
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("storage: resolving home directory: %w", err)
		}
		dir = filepath.Join(home, ".claude")
	}
	return &Local{dir: dir}, nil
}

// Profiles returns the user-profile view of the backend.
func (l *Local) Profiles() ProfileStore { return localProfiles{l} }

// Models returns the self-profile view of the backend.
func (l *Local) Models() ModelStore { return localModels{l} }

func (l *Local) profilePath() string {
	return filepath.Join(l.dir, "me.md")
}

func (l *Local) modelDir() string {
	return filepath.Join(l.dir, "claude")
}

func (l *Local) modelPath(modelID string) string {
	return filepath.Join(l.modelDir(), modelID+".md")
}

type localProfiles struct {
	*Local
}

func (l localProfiles) Read(_ context.Context, _ string) (string, error) {
	return readFile(l.profilePath())
}

func (l localProfiles) Write(_ context.Context, _ string, content string) error {
	return writeFile(l.profilePath(), content)
}

func (l localProfiles) Exists(_ context.Context, _ string) (bool, error) {
	return fileExists(l.profilePath())
}

func (l localProfiles) Location(_ string) string {
	return l.profilePath()
}

type localModels struct {
	*Local
}

func (l localModels) Read(_ context.Context, _, modelID string) (string, error) {
	return readFile(l.modelPath(modelID))
}

func (l localModels) Write(_ context.Context, _, modelID, content string) error {
	return writeFile(l.modelPath(modelID), content)
}

func (l localModels) Exists(_ context.Context, _, modelID string) (bool, error) {
	return fileExists(l.modelPath(modelID))
}

func (l localModels) List(_ context.Context, _ string) ([]ModelProfileInfo, error) {
	entries, err := os.ReadDir(l.modelDir())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: listing %s: %w", l.modelDir(), err)
	}

	var profiles []ModelProfileInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("storage: stat %s: %w", entry.Name(), err)
		}
		profiles = append(profiles, ModelProfileInfo{
			ModelID:      strings.TrimSuffix(entry.Name(), ".md"),
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
	}
	return profiles, nil
}

func (l localModels) Location(_, modelID string) string {
	return l.modelPath(modelID)
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("storage: reading %s: %w", path, err)
	}
	return string(data), nil
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("storage: creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("storage: writing %s: %w", path, err)
	}
	return nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: checking %s: %w", path, err)
	}
	return true, nil
}
