package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"decoration-mirror/models"
)

// MemoryDecorationRepository keeps the registry in process memory.
// Used for DATABASE_URL=memory:// and as the fake store in tests.
type MemoryDecorationRepository struct {
	mu      sync.Mutex
	records map[models.DecorationKey]models.DecorationRecord
	// FailWith, when set, is returned by every call (simulates an unavailable store)
	FailWith error
}

// NewMemoryDecorationRepository creates an empty in-memory registry
func NewMemoryDecorationRepository() *MemoryDecorationRepository {
	return &MemoryDecorationRepository{records: make(map[models.DecorationKey]models.DecorationRecord)}
}

var _ DecorationRepositoryInterface = (*MemoryDecorationRepository)(nil)

func (r *MemoryDecorationRepository) Upsert(ctx context.Context, record *models.DecorationRecord) (bool, error) {
	if record == nil {
		return false, fmt.Errorf("record is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return false, r.FailWith
	}

	incoming := cloneDecoration(*record)
	if incoming.SkuID != nil {
		r.releaseSku(incoming.Key(), *incoming.SkuID)
	}
	if incoming.LastSeen.IsZero() {
		incoming.LastSeen = time.Now().UTC()
	}
	key := incoming.Key()
	existing, ok := r.records[key]
	if !ok {
		if incoming.FirstSeen.IsZero() {
			incoming.FirstSeen = incoming.LastSeen
		}
		r.records[key] = incoming
		return true, nil
	}

	merged := existing
	merged.SkuID = coalesce(incoming.SkuID, existing.SkuID)
	merged.DisplayName = coalesce(incoming.DisplayName, existing.DisplayName)
	merged.Description = coalesce(incoming.Description, existing.Description)
	merged.IsAnimated = incoming.IsAnimated
	merged.IsPremium = incoming.IsPremium
	if incoming.RemoteURL != "" {
		merged.RemoteURL = incoming.RemoteURL
	}
	merged.LocalFullPath = coalesce(incoming.LocalFullPath, existing.LocalFullPath)
	merged.LocalThumbnailPath = coalesce(incoming.LocalThumbnailPath, existing.LocalThumbnailPath)
	if incoming.LastSeen.After(existing.LastSeen) {
		merged.LastSeen = incoming.LastSeen
	}
	merged.IsActive = incoming.IsActive
	r.records[key] = merged
	return false, nil
}

// releaseSku clears sku from every other record of the same category
func (r *MemoryDecorationRepository) releaseSku(owner models.DecorationKey, sku string) {
	for key, record := range r.records {
		if key == owner || key.Category != owner.Category || record.SkuID == nil || *record.SkuID != sku {
			continue
		}
		record.SkuID = nil
		r.records[key] = record
	}
}

func (r *MemoryDecorationRepository) SetLocalPaths(ctx context.Context, category models.Category, contentHash, fullPath, thumbPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return r.FailWith
	}
	key := models.DecorationKey{Category: category, ContentHash: contentHash}
	record, ok := r.records[key]
	if !ok {
		return ErrNotFound
	}
	record.LocalFullPath = &fullPath
	record.LocalThumbnailPath = &thumbPath
	r.records[key] = record
	return nil
}

func (r *MemoryDecorationRepository) ListActive(ctx context.Context, category models.Category) ([]models.DecorationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	var out []models.DecorationRecord
	for key, record := range r.records {
		if key.Category == category && record.IsActive {
			out = append(out, cloneDecoration(record))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstSeen.Equal(out[j].FirstSeen) {
			return out[i].FirstSeen.Before(out[j].FirstSeen)
		}
		return out[i].ContentHash < out[j].ContentHash
	})
	return out, nil
}

func (r *MemoryDecorationRepository) GetByHash(ctx context.Context, category models.Category, contentHash string) (*models.DecorationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	record, ok := r.records[models.DecorationKey{Category: category, ContentHash: contentHash}]
	if !ok {
		return nil, ErrNotFound
	}
	clone := cloneDecoration(record)
	return &clone, nil
}

func (r *MemoryDecorationRepository) DeactivateUnseen(ctx context.Context, category models.Category, seenBefore time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return 0, r.FailWith
	}
	count := 0
	for key, record := range r.records {
		if key.Category != category || !record.IsActive || !record.LastSeen.Before(seenBefore) {
			continue
		}
		record.IsActive = false
		r.records[key] = record
		count++
	}
	return count, nil
}

// Len returns the number of stored records, active or not
func (r *MemoryDecorationRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// MemorySyncRunRepository keeps the sync run log in process memory
type MemorySyncRunRepository struct {
	mu   sync.Mutex
	runs []models.SyncRun
}

// NewMemorySyncRunRepository creates an empty in-memory run log
func NewMemorySyncRunRepository() *MemorySyncRunRepository {
	return &MemorySyncRunRepository{}
}

var _ SyncRunRepositoryInterface = (*MemorySyncRunRepository)(nil)

func (r *MemorySyncRunRepository) Create(ctx context.Context, run *models.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.runs {
		if existing.ID == run.ID {
			return fmt.Errorf("sync run %s already exists", run.ID)
		}
	}
	r.runs = append(r.runs, *run)
	return nil
}

func (r *MemorySyncRunRepository) Close(ctx context.Context, run *models.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.runs {
		if existing.ID != run.ID {
			continue
		}
		if existing.Status != models.SyncStatusRunning {
			return fmt.Errorf("sync run %s is not running: %w", run.ID, ErrNotFound)
		}
		r.runs[i] = *run
		return nil
	}
	return fmt.Errorf("sync run %s: %w", run.ID, ErrNotFound)
}

func (r *MemorySyncRunRepository) List(ctx context.Context, limit int) ([]models.SyncRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	// Newest first; later inserts win ties on equal timestamps
	out := make([]models.SyncRun, 0, len(r.runs))
	for i := len(r.runs) - 1; i >= 0; i-- {
		out = append(out, r.runs[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemorySyncRunRepository) FailStale(ctx context.Context, startedBefore time.Time, message string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	now := time.Now().UTC()
	for i := range r.runs {
		if r.runs[i].Status != models.SyncStatusRunning || !r.runs[i].StartedAt.Before(startedBefore) {
			continue
		}
		r.runs[i].Fail(now, fmt.Errorf("%s", message))
		count++
	}
	return count, nil
}

func coalesce(incoming, existing *string) *string {
	if incoming != nil {
		return incoming
	}
	return existing
}

func cloneDecoration(record models.DecorationRecord) models.DecorationRecord {
	clone := record
	clone.SkuID = cloneString(record.SkuID)
	clone.DisplayName = cloneString(record.DisplayName)
	clone.Description = cloneString(record.Description)
	clone.LocalFullPath = cloneString(record.LocalFullPath)
	clone.LocalThumbnailPath = cloneString(record.LocalThumbnailPath)
	return clone
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	s := *value
	return &s
}
