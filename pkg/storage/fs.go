package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// fsStore keeps blobs on the local filesystem under a base directory. Intended
// for development and tests; production deployments use the MinIO store.
type fsStore struct {
	base string
}

func NewFS(base string) (Store, error) {
	if base == "" {
		base = "uploads"
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create storage base dir %s: %w", base, err)
	}
	return &fsStore{base: base}, nil
}

func (s *fsStore) Put(_ context.Context, path string, data []byte, _ string) (string, error) {
	full := filepath.Join(s.base, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(full), nil
}

func (s *fsStore) Get(_ context.Context, url string) ([]byte, error) {
	path := strings.TrimPrefix(url, "file://")
	return os.ReadFile(filepath.FromSlash(path))
}
