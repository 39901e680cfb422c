package storage

import (
	"context"
	"fmt"
	"log"
	"path"
	"path/filepath"

	"github.com/arkilian/tripload/internal/config"
)

// New creates the object storage selected by the output configuration.
// It returns nil when publishing is disabled.
func New(ctx context.Context, cfg config.OutputConfig) (ObjectStorage, error) {
	switch cfg.Publish {
	case config.PublishNone, "":
		return nil, nil
	case config.PublishLocal:
		return NewLocalStorage(cfg.PublishPath)
	case config.PublishS3:
		s3Cfg := DefaultS3Config()
		if cfg.S3.Region != "" {
			s3Cfg.Region = cfg.S3.Region
		}
		s3Cfg.Endpoint = cfg.S3.Endpoint
		s3Cfg.UsePathStyle = cfg.S3.UsePathStyle
		return NewS3Storage(ctx, cfg.S3.Bucket, s3Cfg)
	default:
		return nil, fmt.Errorf("unsupported publish target: %s", cfg.Publish)
	}
}

// ResultKey returns the object key of a run's result file.
func ResultKey(prefix, runID, localPath string) string {
	return path.Join(prefix, runID, filepath.Base(localPath))
}

// Publish uploads the local result file under <prefix>/<runID>/ and
// returns the object key. An existing object at that key is never
// overwritten, and the upload is confirmed with Exists.
func Publish(ctx context.Context, store ObjectStorage, localPath, prefix, runID string) (string, error) {
	key := ResultKey(prefix, runID, localPath)

	exists, err := store.Exists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("check %s: %w", key, err)
	}
	if exists {
		return "", fmt.Errorf("%w: %s", ErrObjectExists, key)
	}

	if err := store.Upload(ctx, localPath, key); err != nil {
		return "", err
	}

	exists, err = store.Exists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("verify %s: %w", key, err)
	}
	if !exists {
		return "", fmt.Errorf("%w: %s missing after upload", ErrUploadFailed, key)
	}

	log.Printf("Published %s to %s", localPath, key)
	return key, nil
}
