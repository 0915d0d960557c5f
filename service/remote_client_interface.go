package service

import (
	"context"

	"decoration-mirror/models"
)

// RemoteClientInterface defines the contract for the platform's member listing
type RemoteClientInterface interface {
	// ListMembers returns one page of members after the given member id cursor.
	// An empty page means pagination is exhausted.
	ListMembers(ctx context.Context, guildID string, after string) ([]models.Member, error)
}
