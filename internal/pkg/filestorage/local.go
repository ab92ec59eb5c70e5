package filestorage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/yigit/educhat/internal/pkg/logger"
)

// LocalStorage handles saving files to the local filesystem.
type LocalStorage struct {
	basePath string // The root directory where files will be stored
	baseURL  string // Public URL prefix the directory is served under
}

// NewLocalStorage creates a new LocalStorage instance. The directory itself
// is created on first write.
func NewLocalStorage(basePath, baseURL string) *LocalStorage {
	return &LocalStorage{
		basePath: basePath,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

func (ls *LocalStorage) ensureDir() error {
	if err := os.MkdirAll(ls.basePath, os.ModePerm); err != nil {
		logger.Error().Err(err).Str("path", ls.basePath).Msg("Failed to create storage directory")
		return fmt.Errorf("failed to create storage directory %s: %w", ls.basePath, err)
	}
	return nil
}

// Save writes r to <basePath>/<name>
func (ls *LocalStorage) Save(ctx context.Context, name string, r io.Reader, _ string) (int64, error) {
	if !validName(name) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := ls.ensureDir(); err != nil {
		return 0, err
	}

	dstPath := filepath.Join(ls.basePath, name)
	dst, err := os.Create(dstPath)
	if err != nil {
		logger.Error().Err(err).Str("path", dstPath).Msg("Failed to create destination file")
		return 0, fmt.Errorf("failed to create destination file: %w", err)
	}

	n, err := io.Copy(dst, r)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		logger.Error().Err(err).Str("path", dstPath).Msg("Failed to copy uploaded file content")
		// Attempt to remove the partially created file
		_ = os.Remove(dstPath)
		return 0, fmt.Errorf("failed to save file content: %w", err)
	}

	logger.Debug().Str("saved_as", name).Int64("size", n).Msg("File saved successfully")
	return n, nil
}

// Exists reports whether name has a backing file
func (ls *LocalStorage) Exists(_ context.Context, name string) (bool, error) {
	if !validName(name) {
		return false, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	_, err := os.Stat(filepath.Join(ls.basePath, name))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
}

// Delete removes a file from the storage filesystem.
// Returns nil if deletion is successful or if the file doesn't exist.
func (ls *LocalStorage) Delete(_ context.Context, name string) error {
	if !validName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	physicalPath := filepath.Join(ls.basePath, name)

	if err := os.Remove(physicalPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn().Str("path", physicalPath).Msg("File to delete does not exist")
			return nil
		}
		logger.Error().Err(err).Str("path", physicalPath).Msg("Failed to delete file")
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// URL returns <baseURL>/uploads/<name>
func (ls *LocalStorage) URL(_ context.Context, name string) (string, error) {
	if !validName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return ls.baseURL + "/uploads/" + url.PathEscape(name), nil
}

// Dir returns the directory served under /uploads
func (ls *LocalStorage) Dir() string {
	return ls.basePath
}
