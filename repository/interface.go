package repository

import (
	"context"
	"errors"
	"time"

	"decoration-mirror/models"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

// DecorationRepositoryInterface defines the contract for the decoration registry.
// Each call is atomic on its own; no multi-row transactions are required.
type DecorationRepositoryInterface interface {
	// Upsert inserts or updates the record keyed by (category, contentHash).
	// A non-nil skuId moves to this record; any other record of the same
	// category holding it loses its skuId. created reports whether the key was new.
	Upsert(ctx context.Context, record *models.DecorationRecord) (created bool, err error)
	ListActive(ctx context.Context, category models.Category) ([]models.DecorationRecord, error)
	GetByHash(ctx context.Context, category models.Category, contentHash string) (*models.DecorationRecord, error)
	// SetLocalPaths records where a record was materialized. It never touches
	// is_active or the columns owned by discovery.
	SetLocalPaths(ctx context.Context, category models.Category, contentHash, fullPath, thumbPath string) error
	// DeactivateUnseen flags active records of category whose last_seen is before seenBefore
	DeactivateUnseen(ctx context.Context, category models.Category, seenBefore time.Time) (int, error)
}

// SyncRunRepositoryInterface defines the contract for the append-only sync run log
type SyncRunRepositoryInterface interface {
	Create(ctx context.Context, run *models.SyncRun) error
	// Close persists the terminal state of a running run
	Close(ctx context.Context, run *models.SyncRun) error
	List(ctx context.Context, limit int) ([]models.SyncRun, error)
	// FailStale closes runs still running since before startedBefore
	FailStale(ctx context.Context, startedBefore time.Time, message string) (int, error)
}
