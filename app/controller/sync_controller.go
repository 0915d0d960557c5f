package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"decoration-mirror/models"
	"decoration-mirror/repository"
	"decoration-mirror/service"
)

const (
	defaultRunListLimit = 50
	maxRunListLimit     = 500
)

// SyncController handles HTTP requests that trigger discovery, materialization and cleanup.
// Runs for the same key are collapsed: a caller arriving mid-run gets that run's result.
// A discovery pass excludes materialize and cleanup runs, which may overlap each other.
type SyncController struct {
	discovery      service.DiscoveryServiceInterface
	syncService    service.SyncServiceInterface
	cleanup        service.CleanupServiceInterface
	runs           repository.SyncRunRepositoryInterface
	defaultGuildID string
	group          singleflight.Group
	passMu         sync.RWMutex
}

// NewSyncController creates a new SyncController
func NewSyncController(discovery service.DiscoveryServiceInterface, syncService service.SyncServiceInterface, cleanup service.CleanupServiceInterface, runs repository.SyncRunRepositoryInterface, defaultGuildID string) *SyncController {
	return &SyncController{
		discovery:      discovery,
		syncService:    syncService,
		cleanup:        cleanup,
		runs:           runs,
		defaultGuildID: defaultGuildID,
	}
}

// Discover handles POST /admin/decorations/discover?guildId=
func (c *SyncController) Discover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// One registry mirrors one guild: deactivation is not scoped per guild
	guildID := strings.TrimSpace(r.URL.Query().Get("guildId"))
	if guildID == "" {
		guildID = c.defaultGuildID
	}
	if guildID == "" {
		http.Error(w, "guildId parameter is required", http.StatusBadRequest)
		return
	}
	if c.defaultGuildID != "" && guildID != c.defaultGuildID {
		http.Error(w, fmt.Sprintf("guildId must be the configured guild %s", c.defaultGuildID), http.StatusBadRequest)
		return
	}

	// Detached from the request context
	stats, err, shared := c.group.Do("discover:"+guildID, func() (interface{}, error) {
		c.passMu.Lock()
		defer c.passMu.Unlock()
		return c.discovery.RunDiscovery(context.Background(), guildID)
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to run discovery: %v", err), statusFor(err))
		return
	}
	if shared {
		log.Printf("⏭️  Discovery for guild %s joined an in-flight run", guildID)
	}
	writeJSON(w, http.StatusOK, stats)
}

// Materialize handles POST /admin/decorations/materialize?category=
func (c *SyncController) Materialize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	category, err := models.ParseCategory(r.URL.Query().Get("category"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stats, err, _ := c.group.Do("materialize:"+string(category), func() (interface{}, error) {
		c.passMu.RLock()
		defer c.passMu.RUnlock()
		return c.syncService.Materialize(context.Background(), category)
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to materialize %s: %v", category, err), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Cleanup handles POST /admin/decorations/cleanup?category=
func (c *SyncController) Cleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	category, err := models.ParseCategory(r.URL.Query().Get("category"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	deleted, err, _ := c.group.Do("cleanup:"+string(category), func() (interface{}, error) {
		c.passMu.RLock()
		defer c.passMu.RUnlock()
		return c.cleanup.Cleanup(context.Background(), category)
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to clean up %s: %v", category, err), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"category": category,
		"deleted":  deleted,
	})
}

// ListRuns handles GET /admin/sync-runs?limit=
func (c *SyncController) ListRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultRunListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	if limit > maxRunListLimit {
		limit = maxRunListLimit
	}

	ctx := context.Background()
	runs, err := c.runs.List(ctx, limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list sync runs: %v", err), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []models.SyncRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidCategory), errors.Is(err, service.ErrNotMaterializable):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrMissingCredentials):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
