package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"decoration-mirror/models"
	"decoration-mirror/repository"
)

// DiscoveryOptions configures DiscoveryService
type DiscoveryOptions struct {
	CDNBase string
	Now     func() time.Time
	NewID   func() string
	Metrics *Metrics
}

// DiscoveryService crawls guild members and records every decoration they reference
// Implements DiscoveryServiceInterface
type DiscoveryService struct {
	client  RemoteClientInterface
	records repository.DecorationRepositoryInterface
	runs    repository.SyncRunRepositoryInterface
	cdnBase string
	now     func() time.Time
	newID   func() string
	metrics *Metrics
}

// NewDiscoveryService creates a new DiscoveryService
func NewDiscoveryService(client RemoteClientInterface, records repository.DecorationRepositoryInterface, runs repository.SyncRunRepositoryInterface, opts DiscoveryOptions) *DiscoveryService {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	cdnBase := strings.TrimSpace(opts.CDNBase)
	if cdnBase == "" {
		cdnBase = "https://cdn.discordapp.com"
	}
	return &DiscoveryService{
		client:  client,
		records: records,
		runs:    runs,
		cdnBase: cdnBase,
		now:     now,
		newID:   newID,
		metrics: opts.Metrics,
	}
}

// Ensure DiscoveryService implements DiscoveryServiceInterface
var _ DiscoveryServiceInterface = (*DiscoveryService)(nil)

// RunDiscovery pages through every member of the guild, upserts each distinct
// decoration once and deactivates records the pass did not see.
// The run is logged; on any remote or store error it is closed as failed and the error returned.
func (s *DiscoveryService) RunDiscovery(ctx context.Context, guildID string) (*models.DiscoveryStats, error) {
	guildID = strings.TrimSpace(guildID)
	if guildID == "" {
		return nil, fmt.Errorf("guild id is required")
	}

	run := &models.SyncRun{
		ID:        s.newID(),
		SyncType:  models.SyncTypeDiscovery,
		StartedAt: s.now(),
		Status:    models.SyncStatusRunning,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to open sync run: %w", err)
	}
	log.Printf("🔍 Starting discovery for guild %s (run %s)", guildID, run.ID)

	stats, err := s.crawl(ctx, guildID, run)
	if err != nil {
		log.Printf("❌ Discovery run %s failed: %v", run.ID, err)
		run.Fail(s.now(), err)
		closeFailedRun(s.runs, s.metrics, run)
		return nil, err
	}

	run.Complete(s.now())
	if err := s.runs.Close(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to close sync run: %w", err)
	}
	s.metrics.observeSyncRun(run)
	log.Printf("🎉 Discovery completed: %d members, %d found, %d added, %d updated, %d deactivated",
		stats.Members, stats.Found, stats.Added, stats.Updated, stats.Deactivated)
	return stats, nil
}

func (s *DiscoveryService) crawl(ctx context.Context, guildID string, run *models.SyncRun) (*models.DiscoveryStats, error) {
	stats := &models.DiscoveryStats{RunID: run.ID}
	seen := make(map[models.DecorationKey]struct{})
	after := ""

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		members, err := s.client.ListMembers(ctx, guildID, after)
		if err != nil {
			return nil, fmt.Errorf("failed to list members after %q: %w", after, err)
		}
		if len(members) == 0 {
			break
		}
		log.Printf("📥 Fetched %d members (after %q)", len(members), after)
		stats.Members += len(members)

		for _, member := range members {
			for _, ref := range ExtractDecorations(member, s.cdnBase) {
				key := ref.Key()
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}

				ref.LastSeen = s.now()
				ref.IsActive = true
				created, err := s.records.Upsert(ctx, &ref)
				if err != nil {
					return nil, fmt.Errorf("failed to upsert %s: %w", key, err)
				}
				s.metrics.observeDiscovered(ref.Category, created)
				if created {
					stats.Added++
				} else {
					stats.Updated++
				}
			}
		}
		stats.Found = len(seen)
		run.FoundCount, run.AddedCount, run.UpdatedCount = stats.Found, stats.Added, stats.Updated

		next := members[len(members)-1].User.ID
		if next == "" {
			return nil, fmt.Errorf("member page ended without a user id cursor")
		}
		if next == after {
			return nil, fmt.Errorf("member cursor did not advance past %q", after)
		}
		after = next
	}

	for _, category := range models.AllCategories {
		n, err := s.records.DeactivateUnseen(ctx, category, run.StartedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to deactivate unseen %s: %w", category, err)
		}
		if n > 0 {
			log.Printf("💤 Deactivated %d %s records not seen this pass", n, category)
		}
		stats.Deactivated += n
	}
	return stats, nil
}

// closeFailedRun records a failed run. It uses a fresh context so a cancelled
// caller still leaves a closed row behind.
func closeFailedRun(runs repository.SyncRunRepositoryInterface, metrics *Metrics, run *models.SyncRun) {
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := runs.Close(closeCtx, run); err != nil {
		log.Printf("⚠️  Failed to close sync run %s: %v", run.ID, err)
		return
	}
	metrics.observeSyncRun(run)
}
