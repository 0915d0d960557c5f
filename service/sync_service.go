package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"decoration-mirror/models"
	"decoration-mirror/repository"
	"decoration-mirror/utils"
)

// ErrNotMaterializable is returned for categories without a downloadable asset
var ErrNotMaterializable = errors.New("category has no downloadable asset")

const defaultRequestDelay = 200 * time.Millisecond

// Per-asset outcomes, also used as metric labels
const (
	resultSuccess = "success"
	resultFailed  = "failed"
	resultSkipped = "skipped"
)

// SyncOptions configures SyncService
type SyncOptions struct {
	Layout       utils.AssetLayout
	RequestDelay time.Duration
	Sleep        utils.SleepFunc
	Now          func() time.Time
	NewID        func() string
	Metrics      *Metrics
}

// SyncService materializes registry entries onto the local filesystem
// Implements SyncServiceInterface
type SyncService struct {
	records      repository.DecorationRepositoryInterface
	runs         repository.SyncRunRepositoryInterface
	downloader   DownloadServiceInterface
	optimizer    ImageOptimizerInterface
	layout       utils.AssetLayout
	requestDelay time.Duration
	sleep        utils.SleepFunc
	now          func() time.Time
	newID        func() string
	metrics      *Metrics
}

// NewSyncService creates a new SyncService
func NewSyncService(records repository.DecorationRepositoryInterface, runs repository.SyncRunRepositoryInterface, downloader DownloadServiceInterface, optimizer ImageOptimizerInterface, opts SyncOptions) *SyncService {
	delay := opts.RequestDelay
	if delay < 0 {
		delay = defaultRequestDelay
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = utils.SleepContext
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &SyncService{
		records:      records,
		runs:         runs,
		downloader:   downloader,
		optimizer:    optimizer,
		layout:       opts.Layout,
		requestDelay: delay,
		sleep:        sleep,
		now:          now,
		newID:        newID,
		metrics:      opts.Metrics,
	}
}

// Ensure SyncService implements SyncServiceInterface
var _ SyncServiceInterface = (*SyncService)(nil)

// Materialize downloads and optimizes every active record of category that has no local copy yet.
// Per-asset failures are counted and never abort the pass; store and run-log faults do.
func (s *SyncService) Materialize(ctx context.Context, category models.Category) (*models.MaterializeStats, error) {
	fullSpec, thumbSpec, ok := SizeSpecsFor(category)
	if !ok || !category.HasAsset() {
		return nil, fmt.Errorf("%w: %s", ErrNotMaterializable, category)
	}

	cat := category
	run := &models.SyncRun{
		ID:        s.newID(),
		SyncType:  models.SyncTypeMaterialize,
		Category:  &cat,
		StartedAt: s.now(),
		Status:    models.SyncStatusRunning,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to open sync run: %w", err)
	}
	log.Printf("🔄 Starting materialization for %s (run %s)", category, run.ID)

	stats := &models.MaterializeStats{RunID: run.ID, Category: category}
	if err := s.materialize(ctx, category, fullSpec, thumbSpec, stats); err != nil {
		log.Printf("❌ Materialization run %s failed: %v", run.ID, err)
		applyMaterializeStats(run, stats)
		run.Fail(s.now(), err)
		closeFailedRun(s.runs, s.metrics, run)
		return nil, err
	}

	applyMaterializeStats(run, stats)
	run.Complete(s.now())
	if err := s.runs.Close(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to close sync run: %w", err)
	}
	s.metrics.observeSyncRun(run)
	log.Printf("🎉 Materialization of %s completed: %d success, %d failed, %d skipped out of %d",
		category, stats.Success, stats.Failed, stats.Skipped, stats.Total)
	return stats, nil
}

func (s *SyncService) materialize(ctx context.Context, category models.Category, fullSpec, thumbSpec models.SizeSpec, stats *models.MaterializeStats) error {
	records, err := s.records.ListActive(ctx, category)
	if err != nil {
		return fmt.Errorf("failed to list active %s records: %w", category, err)
	}
	stats.Total = len(records)
	log.Printf("📦 Processing %d active %s records", len(records), category)

	pace := false
	for i := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		record := records[i]

		if record.IsMaterialized() && utils.FileExists(*record.LocalFullPath) {
			log.Printf("⏭️  Skipping %s (already materialized at %s)", record.Key(), *record.LocalFullPath)
			s.count(stats, category, resultSkipped)
			continue
		}

		fullBase, thumbBase, err := s.layout.Bases(category, record.ContentHash)
		if err != nil {
			log.Printf("❌ Cannot place %s on disk: %v", record.Key(), err)
			s.count(stats, category, resultFailed)
			continue
		}

		if pace {
			if err := s.sleep(ctx, s.requestDelay); err != nil {
				return err
			}
		}
		pace = true

		data, err := s.downloader.Download(ctx, record.RemoteURL)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			log.Printf("❌ Failed to download %s (%s): %v", record.Key(), record.RemoteURL, err)
			s.count(stats, category, resultFailed)
			continue
		}
		if data == nil {
			log.Printf("❌ No data for %s (%s)", record.Key(), record.RemoteURL)
			s.count(stats, category, resultFailed)
			continue
		}

		paths, err := s.optimizer.Optimize(data, record.IsAnimated, fullBase, thumbBase, fullSpec, thumbSpec)
		if err != nil {
			log.Printf("❌ Failed to optimize %s: %v", record.Key(), err)
			s.count(stats, category, resultFailed)
			continue
		}

		if err := s.records.SetLocalPaths(ctx, category, record.ContentHash, paths.FullPath, paths.ThumbPath); err != nil {
			return fmt.Errorf("failed to persist paths for %s: %w", record.Key(), err)
		}
		log.Printf("✅ Materialized %s", record.Key())
		s.count(stats, category, resultSuccess)
	}
	return nil
}

func (s *SyncService) count(stats *models.MaterializeStats, category models.Category, result string) {
	switch result {
	case resultSuccess:
		stats.Success++
	case resultFailed:
		stats.Failed++
	case resultSkipped:
		stats.Skipped++
	}
	s.metrics.observeMaterialized(category, result)
}

func applyMaterializeStats(run *models.SyncRun, stats *models.MaterializeStats) {
	run.FoundCount = stats.Total
	run.AddedCount = stats.Success
	run.FailedCount = stats.Failed
	run.SkippedCount = stats.Skipped
}
