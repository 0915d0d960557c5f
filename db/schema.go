package db

var schema = []string{
	`CREATE TABLE IF NOT EXISTS decorations (
		id                   BIGSERIAL PRIMARY KEY,
		category             TEXT NOT NULL,
		content_hash         TEXT NOT NULL,
		sku_id               TEXT,
		display_name         TEXT,
		description          TEXT,
		is_animated          BOOLEAN NOT NULL DEFAULT FALSE,
		is_premium           BOOLEAN NOT NULL DEFAULT FALSE,
		remote_url           TEXT NOT NULL DEFAULT '',
		local_full_path      TEXT,
		local_thumbnail_path TEXT,
		first_seen           TIMESTAMPTZ NOT NULL,
		last_seen            TIMESTAMPTZ NOT NULL,
		is_active            BOOLEAN NOT NULL DEFAULT TRUE,
		UNIQUE (category, content_hash)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_decorations_category_sku
		ON decorations (category, sku_id) WHERE sku_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_decorations_active
		ON decorations (category, is_active)`,
	`CREATE TABLE IF NOT EXISTS sync_runs (
		id            TEXT PRIMARY KEY,
		sync_type     TEXT NOT NULL,
		category      TEXT,
		started_at    TIMESTAMPTZ NOT NULL,
		completed_at  TIMESTAMPTZ,
		status        TEXT NOT NULL,
		found_count   INTEGER NOT NULL DEFAULT 0,
		added_count   INTEGER NOT NULL DEFAULT 0,
		updated_count INTEGER NOT NULL DEFAULT 0,
		failed_count  INTEGER NOT NULL DEFAULT 0,
		skipped_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_runs_started
		ON sync_runs (started_at DESC)`,
}
