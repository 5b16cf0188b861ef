package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/utafrali/EcommerceGo/pkg/cartsync/domain"
	"github.com/utafrali/EcommerceGo/pkg/logger"
)

// FileStore keeps the snapshot in a single JSON file on the device.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore creates a file-backed store at path. The parent directory is
// created on first save.
func NewFileStore(path string, l *slog.Logger) *FileStore {
	return &FileStore{path: path, logger: logger.OrDefault(l)}
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the snapshot file.
func (s *FileStore) Load(ctx context.Context) (domain.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Snapshot{}, nil
		}
		return nil, fmt.Errorf("read cart file: %w", err)
	}
	return decodeOrEmpty(ctx, s.logger, "file", data), nil
}

// Save replaces the snapshot file atomically: it writes a temporary file in
// the same directory and renames it over the old one.
func (s *FileStore) Save(_ context.Context, snap domain.Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cart dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cart-*.json")
	if err != nil {
		return fmt.Errorf("create temp cart file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp cart file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp cart file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp cart file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace cart file: %w", err)
	}
	return nil
}
