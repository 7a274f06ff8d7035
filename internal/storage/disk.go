package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore keeps media under a local directory that the server exposes at
// baseURL (normally "/media"). It is the default when no bucket is set.
type DiskStore struct {
	root    string
	baseURL string
}

var _ Store = (*DiskStore)(nil)

func NewDiskStore(root, baseURL string) (*DiskStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolving %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating %s: %w", abs, err)
	}
	return &DiskStore{root: abs, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Root is the directory served at the base URL.
func (d *DiskStore) Root() string { return d.root }

func (d *DiskStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	dst := filepath.Join(d.root, filepath.FromSlash(key))
	if !strings.HasPrefix(dst, d.root+string(filepath.Separator)) {
		return "", fmt.Errorf("storage: key %q escapes media root", key)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("storage: creating directory for %s: %w", key, err)
	}

	// Write to a temp file first so a reader never sees half an image.
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("storage: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("storage: writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("storage: closing %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("storage: moving %s into place: %w", key, err)
	}
	return key, nil
}

func (d *DiskStore) PublicURL(storedPath string) string {
	return d.baseURL + "/" + escapeKey(storedPath)
}
