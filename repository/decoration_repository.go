package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"decoration-mirror/models"
)

// DecorationRepository handles database operations for decorations
// Implements DecorationRepositoryInterface
type DecorationRepository struct {
	db *sql.DB
}

// NewDecorationRepository creates a new DecorationRepository
func NewDecorationRepository(conn *sql.DB) *DecorationRepository {
	return &DecorationRepository{db: conn}
}

// Ensure DecorationRepository implements DecorationRepositoryInterface
var _ DecorationRepositoryInterface = (*DecorationRepository)(nil)

const decorationColumns = `
	category, content_hash, sku_id, display_name, description,
	is_animated, is_premium, remote_url, local_full_path, local_thumbnail_path,
	first_seen, last_seen, is_active`

// Upsert inserts a new decoration or refreshes an existing one.
// Nullable columns keep their stored value when the incoming one is NULL, so
// discovery never clears local paths written by materialization.
func (r *DecorationRepository) Upsert(ctx context.Context, record *models.DecorationRecord) (bool, error) {
	if record == nil {
		return false, fmt.Errorf("record is required")
	}
	now := time.Now().UTC()
	lastSeen := record.LastSeen
	if lastSeen.IsZero() {
		lastSeen = now
	}
	firstSeen := record.FirstSeen
	if firstSeen.IsZero() {
		firstSeen = lastSeen
	}

	query := `
		INSERT INTO decorations (` + decorationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (category, content_hash) DO UPDATE SET
			sku_id               = COALESCE(EXCLUDED.sku_id, decorations.sku_id),
			display_name         = COALESCE(EXCLUDED.display_name, decorations.display_name),
			description          = COALESCE(EXCLUDED.description, decorations.description),
			is_animated          = EXCLUDED.is_animated,
			is_premium           = EXCLUDED.is_premium,
			remote_url           = COALESCE(NULLIF(EXCLUDED.remote_url, ''), decorations.remote_url),
			local_full_path      = COALESCE(EXCLUDED.local_full_path, decorations.local_full_path),
			local_thumbnail_path = COALESCE(EXCLUDED.local_thumbnail_path, decorations.local_thumbnail_path),
			last_seen            = GREATEST(EXCLUDED.last_seen, decorations.last_seen),
			is_active            = EXCLUDED.is_active
		RETURNING (xmax = 0) AS inserted
	`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// A re-uploaded asset keeps its SKU; the older hash gives it up
	if record.SkuID != nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE decorations SET sku_id = NULL
			WHERE category = $1 AND sku_id = $2 AND content_hash <> $3
		`, string(record.Category), *record.SkuID, record.ContentHash)
		if err != nil {
			log.Printf("❌ Error releasing sku %s for %s/%s: %v", *record.SkuID, record.Category, record.ContentHash, err)
			return false, fmt.Errorf("failed to release sku: %w", err)
		}
	}

	var inserted bool
	err = tx.QueryRowContext(ctx, query,
		string(record.Category),
		record.ContentHash,
		nullString(record.SkuID),
		nullString(record.DisplayName),
		nullString(record.Description),
		record.IsAnimated,
		record.IsPremium,
		record.RemoteURL,
		nullString(record.LocalFullPath),
		nullString(record.LocalThumbnailPath),
		firstSeen,
		lastSeen,
		record.IsActive,
	).Scan(&inserted)
	if err != nil {
		log.Printf("❌ Error upserting decoration %s/%s: %v", record.Category, record.ContentHash, err)
		return false, fmt.Errorf("failed to upsert decoration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit upsert: %w", err)
	}
	return inserted, nil
}

// SetLocalPaths stores the materialized file locations of one decoration
func (r *DecorationRepository) SetLocalPaths(ctx context.Context, category models.Category, contentHash, fullPath, thumbPath string) error {
	query := `
		UPDATE decorations
		SET local_full_path = $3, local_thumbnail_path = $4
		WHERE category = $1 AND content_hash = $2
	`
	result, err := r.db.ExecContext(ctx, query, string(category), contentHash, fullPath, thumbPath)
	if err != nil {
		log.Printf("❌ Error saving paths for %s/%s: %v", category, contentHash, err)
		return fmt.Errorf("failed to set local paths: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActive returns every active decoration of a category, oldest first
func (r *DecorationRepository) ListActive(ctx context.Context, category models.Category) ([]models.DecorationRecord, error) {
	query := `SELECT ` + decorationColumns + `
		FROM decorations
		WHERE category = $1 AND is_active = TRUE
		ORDER BY first_seen ASC, content_hash ASC`

	rows, err := r.db.QueryContext(ctx, query, string(category))
	if err != nil {
		log.Printf("❌ Error listing active decorations for %s: %v", category, err)
		return nil, fmt.Errorf("failed to list active decorations: %w", err)
	}
	defer rows.Close()

	var records []models.DecorationRecord
	for rows.Next() {
		record, err := scanDecoration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decoration: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate decorations: %w", err)
	}

	log.Printf("✓ Fetched %d active %s decorations", len(records), category)
	return records, nil
}

// GetByHash retrieves one decoration by its dedup key
func (r *DecorationRepository) GetByHash(ctx context.Context, category models.Category, contentHash string) (*models.DecorationRecord, error) {
	query := `SELECT ` + decorationColumns + `
		FROM decorations
		WHERE category = $1 AND content_hash = $2`

	record, err := scanDecoration(r.db.QueryRowContext(ctx, query, string(category), contentHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get decoration: %w", err)
	}
	return record, nil
}

// DeactivateUnseen soft-deletes active decorations that were not re-observed
func (r *DecorationRepository) DeactivateUnseen(ctx context.Context, category models.Category, seenBefore time.Time) (int, error) {
	query := `
		UPDATE decorations
		SET is_active = FALSE
		WHERE category = $1 AND is_active = TRUE AND last_seen < $2
	`
	result, err := r.db.ExecContext(ctx, query, string(category), seenBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate decorations: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		log.Printf("⚠️  Warning: Could not get rows affected: %v", err)
		return 0, nil
	}
	return int(affected), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDecoration(row rowScanner) (*models.DecorationRecord, error) {
	var (
		record                        models.DecorationRecord
		category                      string
		skuID, displayName, desc      sql.NullString
		localFullPath, localThumbPath sql.NullString
	)
	err := row.Scan(
		&category,
		&record.ContentHash,
		&skuID,
		&displayName,
		&desc,
		&record.IsAnimated,
		&record.IsPremium,
		&record.RemoteURL,
		&localFullPath,
		&localThumbPath,
		&record.FirstSeen,
		&record.LastSeen,
		&record.IsActive,
	)
	if err != nil {
		return nil, err
	}
	record.Category = models.Category(category)
	record.SkuID = stringPtr(skuID)
	record.DisplayName = stringPtr(displayName)
	record.Description = stringPtr(desc)
	record.LocalFullPath = stringPtr(localFullPath)
	record.LocalThumbnailPath = stringPtr(localThumbPath)
	return &record, nil
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func stringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}
