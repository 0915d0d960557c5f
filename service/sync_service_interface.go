package service

import (
	"context"

	"decoration-mirror/models"
)

// DiscoveryServiceInterface defines the contract for crawling guild members into the registry
type DiscoveryServiceInterface interface {
	RunDiscovery(ctx context.Context, guildID string) (*models.DiscoveryStats, error)
}

// SyncServiceInterface defines the contract for materializing registry entries to disk
type SyncServiceInterface interface {
	Materialize(ctx context.Context, category models.Category) (*models.MaterializeStats, error)
}

// CleanupServiceInterface defines the contract for deleting orphaned asset files
type CleanupServiceInterface interface {
	Cleanup(ctx context.Context, category models.Category) (int, error)
}
