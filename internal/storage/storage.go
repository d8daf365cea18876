// Package storage archives analysis reports in a local directory or a
// Tencent Cloud COS bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/dump-sleuth/pkg/config"
	apperrors "github.com/dump-sleuth/pkg/errors"
)

// Storage is an object store for report files. Keys use forward slashes.
type Storage interface {
	Upload(ctx context.Context, key string, reader io.Reader) error
	UploadFile(ctx context.Context, key string, localPath string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// GetURL returns where the object can be fetched from.
	GetURL(key string) string
}

// StorageType names a backend.
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeCOS   StorageType = "cos"
)

// NewStorage creates the backend selected by cfg.
func NewStorage(cfg *config.StorageConfig) (Storage, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	if StorageType(cfg.Type) == StorageTypeCOS {
		return NewCOSStorage(&COSConfig{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
			Domain:    cfg.Domain,
			Scheme:    cfg.Scheme,
		})
	}
	return NewLocalStorage(cfg.LocalPath)
}

// ValidateConfig checks the fields the selected backend needs.
func ValidateConfig(cfg *config.StorageConfig) error {
	if cfg == nil {
		return apperrors.Config("storage config is nil", nil)
	}

	switch StorageType(cfg.Type) {
	case "", StorageTypeLocal:
		if cfg.LocalPath == "" {
			return apperrors.Config("local storage path is required", nil)
		}
	case StorageTypeCOS:
		if cfg.Bucket == "" {
			return apperrors.Config("COS bucket is required", nil)
		}
		if cfg.Region == "" {
			return apperrors.Config("COS region is required", nil)
		}
		if cfg.SecretID == "" || cfg.SecretKey == "" {
			return apperrors.Config("COS credentials are required", nil)
		}
	default:
		return apperrors.Config(fmt.Sprintf("unsupported storage type: %s", cfg.Type), nil)
	}
	return nil
}

// ReportKey is the object key of a report: reports/<date>/<run id>/<file>.
func ReportKey(date, runID, fileName string) string {
	return path.Join("reports", date, runID, cleanName(fileName))
}

func cleanName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return path.Base(name)
}
