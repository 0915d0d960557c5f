package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"decoration-mirror/models"
)

// SyncRunRepository persists the sync run log in Postgres
// Implements SyncRunRepositoryInterface
type SyncRunRepository struct {
	db *sql.DB
}

// NewSyncRunRepository creates a new SyncRunRepository
func NewSyncRunRepository(conn *sql.DB) *SyncRunRepository {
	return &SyncRunRepository{db: conn}
}

// Ensure SyncRunRepository implements SyncRunRepositoryInterface
var _ SyncRunRepositoryInterface = (*SyncRunRepository)(nil)

// Create inserts a new running sync run
func (r *SyncRunRepository) Create(ctx context.Context, run *models.SyncRun) error {
	query := `
		INSERT INTO sync_runs (id, sync_type, category, started_at, status)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		string(run.SyncType),
		nullCategory(run.Category),
		run.StartedAt,
		string(run.Status),
	)
	if err != nil {
		log.Printf("❌ Error creating sync run %s: %v", run.ID, err)
		return fmt.Errorf("failed to create sync run: %w", err)
	}
	return nil
}

// Close writes the terminal state. Only running rows are updated so a closed run stays immutable.
func (r *SyncRunRepository) Close(ctx context.Context, run *models.SyncRun) error {
	query := `
		UPDATE sync_runs
		SET status = $1, completed_at = $2, found_count = $3, added_count = $4,
		    updated_count = $5, failed_count = $6, skipped_count = $7, error_message = $8
		WHERE id = $9 AND status = 'running'
	`
	result, err := r.db.ExecContext(ctx, query,
		string(run.Status),
		run.CompletedAt,
		run.FoundCount,
		run.AddedCount,
		run.UpdatedCount,
		run.FailedCount,
		run.SkippedCount,
		nullString(run.ErrorMessage),
		run.ID,
	)
	if err != nil {
		log.Printf("❌ Error closing sync run %s: %v", run.ID, err)
		return fmt.Errorf("failed to close sync run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("sync run %s is not running: %w", run.ID, ErrNotFound)
	}
	return nil
}

// List returns the most recent runs first
func (r *SyncRunRepository) List(ctx context.Context, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, sync_type, category, started_at, completed_at, status,
		       found_count, added_count, updated_count, failed_count, skipped_count, error_message
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []models.SyncRun
	for rows.Next() {
		var (
			run         models.SyncRun
			syncType    string
			status      string
			category    sql.NullString
			completedAt sql.NullTime
			errMessage  sql.NullString
		)
		if err := rows.Scan(
			&run.ID,
			&syncType,
			&category,
			&run.StartedAt,
			&completedAt,
			&status,
			&run.FoundCount,
			&run.AddedCount,
			&run.UpdatedCount,
			&run.FailedCount,
			&run.SkippedCount,
			&errMessage,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		run.SyncType = models.SyncType(syncType)
		run.Status = models.SyncStatus(status)
		if category.Valid {
			c := models.Category(category.String)
			run.Category = &c
		}
		if completedAt.Valid {
			t := completedAt.Time
			run.CompletedAt = &t
		}
		run.ErrorMessage = stringPtr(errMessage)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sync runs: %w", err)
	}
	return runs, nil
}

// FailStale closes abandoned running rows as failed
func (r *SyncRunRepository) FailStale(ctx context.Context, startedBefore time.Time, message string) (int, error) {
	query := `
		UPDATE sync_runs
		SET status = 'failed', completed_at = $1, error_message = $2
		WHERE status = 'running' AND started_at < $3
	`
	result, err := r.db.ExecContext(ctx, query, time.Now().UTC(), message, startedBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale sync runs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		log.Printf("⚠️  Warning: Could not get rows affected: %v", err)
		return 0, nil
	}
	return int(affected), nil
}

func nullCategory(category *models.Category) sql.NullString {
	if category == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*category), Valid: true}
}
