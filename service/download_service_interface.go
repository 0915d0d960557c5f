package service

import (
	"context"

	"decoration-mirror/models"
)

// DownloadServiceInterface defines the contract for fetching raw asset bytes.
// A nil slice with a nil error means the asset is gone or retries were exhausted.
type DownloadServiceInterface interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// ImageOptimizerInterface defines the contract for transcoding raw bytes into on-disk files.
// fullBase and thumbBase are destination paths without extension.
type ImageOptimizerInterface interface {
	Optimize(data []byte, isAnimated bool, fullBase, thumbBase string, fullSpec, thumbSpec models.SizeSpec) (*models.OptimizedPaths, error)
}
