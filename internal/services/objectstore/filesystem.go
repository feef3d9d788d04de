package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/lukisan/renderwatch/internal/common"
	"github.com/lukisan/renderwatch/internal/interfaces"
)

// FileStore keeps assets on the local filesystem. Development-only stand-in
// for the S3 store; objects are served by the HTTP server under /assets/.
type FileStore struct {
	root          string
	publicBaseURL string
	logger        arbor.ILogger
}

// NewFileStore builds a filesystem-backed object store rooted at cfg.Directory.
func NewFileStore(cfg *common.ObjectStoreConfig, logger arbor.ILogger) (interfaces.ObjectStorage, error) {
	if cfg.Directory == "" {
		return nil, fmt.Errorf("object store directory is required")
	}
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create object store directory: %w", err)
	}

	logger.Info().
		Str("directory", cfg.Directory).
		Msg("Filesystem object store initialized")

	return &FileStore{
		root:          cfg.Directory,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		logger:        logger,
	}, nil
}

// Root returns the directory objects are written under.
func (f *FileStore) Root() string {
	return f.root
}

func (f *FileStore) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	full, err := f.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create asset directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("failed to write object %s: %w", path, err)
	}

	f.logger.Debug().
		Str("path", path).
		Int("size", len(data)).
		Msg("Object written")

	return nil
}

func (f *FileStore) PublicURL(path string) string {
	return f.publicBaseURL + "/" + path
}

func (f *FileStore) Remove(ctx context.Context, path string) error {
	full, err := f.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to remove object %s: %w", path, err)
	}
	return nil
}

// resolve joins path under the store root and rejects traversal outside it.
func (f *FileStore) resolve(path string) (string, error) {
	full := filepath.Join(f.root, filepath.FromSlash(path))
	rootAbs, err := filepath.Abs(f.root)
	if err != nil {
		return "", err
	}
	fullAbs, err := filepath.Abs(full)
	if err != nil {
		return "", err
	}
	if fullAbs != rootAbs && !strings.HasPrefix(fullAbs, rootAbs+string(os.PathSeparator)) {
		return "", fmt.Errorf("object path escapes store root: %s", path)
	}
	return full, nil
}
