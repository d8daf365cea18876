package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/dump-sleuth/pkg/errors"
)

// LocalStorage stores objects under a base directory.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the base directory if needed.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if basePath == "" {
		basePath = "./storage"
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, apperrors.Storage("failed to create storage directory", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Upload copies reader to key.
func (s *LocalStorage) Upload(ctx context.Context, key string, reader io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fullPath, err := s.fullPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return apperrors.Storage("failed to create directory", err)
	}

	f, err := os.Create(fullPath)
	if err != nil {
		return apperrors.Storage("failed to create file", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, reader); err != nil {
		return apperrors.Storage("failed to write file", err)
	}
	return f.Close()
}

// UploadFile copies the file at localPath to key.
func (s *LocalStorage) UploadFile(ctx context.Context, key string, localPath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return apperrors.Storage("failed to open source file", err)
	}
	defer src.Close()
	return s.Upload(ctx, key, src)
}

// Download opens key for reading. The caller closes it.
func (s *LocalStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath, err := s.fullPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Storage(fmt.Sprintf("object not found: %s", key), err)
		}
		return nil, apperrors.Storage("failed to open file", err)
	}
	return f, nil
}

// Delete removes key. Deleting a missing key succeeds.
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fullPath, err := s.fullPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return apperrors.Storage("failed to delete file", err)
	}
	return nil
}

// Exists reports whether key is stored.
func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	fullPath, err := s.fullPath(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, apperrors.Storage("failed to check file existence", err)
	}
	return true, nil
}

// GetURL returns the filesystem path of key.
func (s *LocalStorage) GetURL(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(key))
}

// GetBasePath returns the storage root.
func (s *LocalStorage) GetBasePath() string {
	return s.basePath
}

// fullPath resolves key below the base directory and rejects keys that
// escape it.
func (s *LocalStorage) fullPath(key string) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(key))
	if rel == "." || filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperrors.Storage(fmt.Sprintf("invalid object key: %q", key), nil)
	}
	return filepath.Join(s.basePath, rel), nil
}
