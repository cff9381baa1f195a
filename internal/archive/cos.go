package archive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/tencentyun/cos-go-sdk-v5"
)

// COSConfig holds Tencent Cloud COS connection parameters.
type COSConfig struct {
	Bucket    string
	Region    string
	SecretID  string
	SecretKey string
	Domain    string // e.g. "myqcloud.com"
	Scheme    string // e.g. "https" or "http"
}

// COSBackend implements Backend on Tencent Cloud Object Storage.
type COSBackend struct {
	client *cos.Client
	bucket string
	region string
	domain string
	scheme string
}

// NewCOSBackend creates a COSBackend from cfg.
func NewCOSBackend(cfg *COSConfig) (*COSBackend, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("bucket and region are required for COS archive")
	}
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("credentials are required for COS archive")
	}

	domain := cfg.Domain
	if domain == "" {
		domain = "myqcloud.com"
	}
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}

	bucketURL, err := url.Parse(fmt.Sprintf("%s://%s.cos.%s.%s", scheme, cfg.Bucket, cfg.Region, domain))
	if err != nil {
		return nil, fmt.Errorf("failed to parse bucket URL: %w", err)
	}
	serviceURL, err := url.Parse(fmt.Sprintf("%s://cos.%s.%s", scheme, cfg.Region, domain))
	if err != nil {
		return nil, fmt.Errorf("failed to parse service URL: %w", err)
	}

	client := cos.NewClient(&cos.BaseURL{
		BucketURL:  bucketURL,
		ServiceURL: serviceURL,
	}, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
		},
	})

	return &COSBackend{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
		domain: domain,
		scheme: scheme,
	}, nil
}

func (b *COSBackend) Upload(ctx context.Context, key string, reader io.Reader) error {
	if _, err := b.client.Object.Put(ctx, key, reader, nil); err != nil {
		return fmt.Errorf("failed to upload snapshot to COS: %w", err)
	}
	return nil
}

func (b *COSBackend) UploadFile(ctx context.Context, key, localPath string) error {
	if _, err := b.client.Object.PutFromFile(ctx, key, localPath, nil); err != nil {
		return fmt.Errorf("failed to upload snapshot file to COS: %w", err)
	}
	return nil
}

func (b *COSBackend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := b.client.Object.Get(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download snapshot from COS: %w", err)
	}
	return resp.Body, nil
}

func (b *COSBackend) DownloadFile(ctx context.Context, key, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if _, err := b.client.Object.GetToFile(ctx, key, localPath, nil); err != nil {
		return fmt.Errorf("failed to download snapshot file from COS: %w", err)
	}
	return nil
}

func (b *COSBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.client.Object.Delete(ctx, key, nil); err != nil {
		return fmt.Errorf("failed to delete snapshot from COS: %w", err)
	}
	return nil
}

func (b *COSBackend) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := b.client.Object.IsExist(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to check snapshot existence in COS: %w", err)
	}
	return ok, nil
}

func (b *COSBackend) URL(key string) string {
	return fmt.Sprintf("%s://%s.cos.%s.%s/%s", b.scheme, b.bucket, b.region, b.domain, key)
}
