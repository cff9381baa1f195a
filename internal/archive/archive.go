// Package archive distributes durable dag-directory snapshots to object
// storage so readers can pull a consistent copy without a live
// connection to the writer. It never touches write/flush semantics —
// it is a side channel that operates purely on a Flushed dag's files.
package archive

import (
	"context"
	"fmt"
	"io"

	"github.com/segdag/segdag/pkg/config"
)

// Backend is the object-storage operations a snapshot archive needs.
type Backend interface {
	// Upload uploads data from reader to the specified key.
	Upload(ctx context.Context, key string, reader io.Reader) error

	// UploadFile uploads a local file to the specified key.
	UploadFile(ctx context.Context, key string, localPath string) error

	// Download downloads data from the specified key.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// DownloadFile downloads data from the specified key to a local file.
	DownloadFile(ctx context.Context, key string, localPath string) error

	// Delete deletes the object at the specified key.
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists at the specified key.
	Exists(ctx context.Context, key string) (bool, error)

	// URL returns the address for the specified key, if applicable.
	URL(key string) string
}

// Type names a backend kind.
type Type string

const (
	TypeLocal Type = "local"
	TypeCOS   Type = "cos"
)

// NewBackend builds the Backend described by cfg.
func NewBackend(cfg *config.ArchiveConfig) (Backend, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	switch Type(cfg.Type) {
	case TypeCOS:
		return NewCOSBackend(&COSConfig{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
			Domain:    cfg.Domain,
			Scheme:    cfg.Scheme,
		})
	default:
		return NewLocalBackend(cfg.LocalPath)
	}
}

// ValidateConfig checks that cfg describes a usable backend.
func ValidateConfig(cfg *config.ArchiveConfig) error {
	if cfg == nil {
		return fmt.Errorf("archive config is nil")
	}

	typ := Type(cfg.Type)
	if typ == "" {
		typ = TypeLocal
	}
	if typ != TypeCOS && typ != TypeLocal {
		return fmt.Errorf("unsupported archive type: %s", cfg.Type)
	}

	if typ == TypeCOS {
		if cfg.Bucket == "" {
			return fmt.Errorf("COS bucket is required")
		}
		if cfg.Region == "" {
			return fmt.Errorf("COS region is required")
		}
		if cfg.SecretID == "" || cfg.SecretKey == "" {
			return fmt.Errorf("COS credentials are required")
		}
	}

	if typ == TypeLocal && cfg.LocalPath == "" {
		return fmt.Errorf("local archive path is required")
	}

	return nil
}
