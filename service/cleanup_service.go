package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"decoration-mirror/models"
	"decoration-mirror/repository"
	"decoration-mirror/utils"
)

// CleanupService deletes asset files whose record is no longer active
// Implements CleanupServiceInterface
type CleanupService struct {
	records repository.DecorationRepositoryInterface
	layout  utils.AssetLayout
	metrics *Metrics
	remove  func(path string) error
}

// NewCleanupService creates a new CleanupService
func NewCleanupService(records repository.DecorationRepositoryInterface, layout utils.AssetLayout, metrics *Metrics) *CleanupService {
	return &CleanupService{records: records, layout: layout, metrics: metrics, remove: os.Remove}
}

// Ensure CleanupService implements CleanupServiceInterface
var _ CleanupServiceInterface = (*CleanupService)(nil)

// Cleanup removes full-size and thumbnail files of category whose hash is not active.
// Returns the number of files actually deleted.
func (s *CleanupService) Cleanup(ctx context.Context, category models.Category) (int, error) {
	fullDir, err := s.layout.FullDir(category)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrNotMaterializable, category)
	}
	thumbDir, err := s.layout.ThumbDir(category)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrNotMaterializable, category)
	}

	active, err := s.records.ListActive(ctx, category)
	if err != nil {
		return 0, fmt.Errorf("failed to list active %s records: %w", category, err)
	}
	keep := make(map[string]struct{}, len(active))
	for _, record := range active {
		keep[record.ContentHash] = struct{}{}
	}

	deleted := 0
	for _, dir := range []string{fullDir, thumbDir} {
		n, err := s.sweepDir(ctx, dir, keep)
		deleted += n
		if err != nil {
			s.metrics.observeCleanup(category, deleted)
			return deleted, err
		}
	}

	s.metrics.observeCleanup(category, deleted)
	log.Printf("🧹 Cleanup of %s removed %d orphaned files", category, deleted)
	return deleted, nil
}

func (s *CleanupService) sweepDir(ctx context.Context, dir string, keep map[string]struct{}) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if utils.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	deleted := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if !entry.Type().IsRegular() {
			continue
		}
		hash, ok := utils.ParseAssetFileName(entry.Name())
		if !ok {
			continue
		}
		if _, active := keep[hash]; active {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := s.remove(path); err != nil {
			log.Printf("⚠️  Failed to delete orphan %s: %v", path, err)
			continue
		}
		log.Printf("🗑️  Deleted orphan %s", path)
		deleted++
	}
	return deleted, nil
}
