package project

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
)

var (
	// ErrNotFound is returned when a project has no stored config
	ErrNotFound = errors.New("project config not found")
	// ErrDisabled is returned for projects whose config is disabled
	ErrDisabled = errors.New("project is disabled")
)

// Store looks up project configs
type Store interface {
	Get(ctx context.Context, projectID string) (*Config, error)
}

// StaticStore returns the same config for every project
type StaticStore struct {
	config *Config
}

// NewStaticStore creates a new store serving a single config
func NewStaticStore(config *Config) *StaticStore {
	return &StaticStore{config: config}
}

func (s *StaticStore) Get(context.Context, string) (*Config, error) {
	if s.config == nil {
		return nil, ErrNotFound
	}
	return s.config, nil
}

// FileStore reads project states from <dir>/<projectID>.json
type FileStore struct {
	dir string
}

// NewFileStore creates a new store over a directory of project states
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) Get(ctx context.Context, projectID string) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if projectID == "" || projectID != filepath.Base(projectID) || projectID == "." || projectID == ".." {
		return nil, fmt.Errorf("invalid project id %q", projectID)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, projectID+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read project %s: %w", projectID, err)
	}
	return decodeState(projectID, data)
}

func decodeState(projectID string, data []byte) (*Config, error) {
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse project %s: %w", projectID, err)
	}
	if state.Disabled {
		return nil, ErrDisabled
	}
	return &state.Config, nil
}
