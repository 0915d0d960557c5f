package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"time"

	"decoration-mirror/app/controller"
	"decoration-mirror/app/router"
	"decoration-mirror/config"
	"decoration-mirror/db"
	"decoration-mirror/repository"
	"decoration-mirror/service"
	"decoration-mirror/utils"
)

// App wires stores and services for one process
type App struct {
	Config      *config.Config
	Layout      utils.AssetLayout
	Decorations repository.DecorationRepositoryInterface
	SyncRuns    repository.SyncRunRepositoryInterface
	Discovery   service.DiscoveryServiceInterface
	Sync        service.SyncServiceInterface
	Cleanup     service.CleanupServiceInterface
	Metrics     *service.Metrics

	conn *sql.DB
}

// Initialize initializes the application
func Initialize(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{
		Config:  cfg,
		Layout:  utils.AssetLayout{Root: cfg.AssetRoot},
		Metrics: service.DefaultMetrics(),
	}

	if cfg.UsesMemoryStore() {
		log.Printf("⚠️  Using in-memory registry, nothing will persist across restarts")
		a.Decorations = repository.NewMemoryDecorationRepository()
		a.SyncRuns = repository.NewMemorySyncRunRepository()
	} else {
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := db.Migrate(ctx, conn); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		a.conn = conn
		a.Decorations = repository.NewDecorationRepository(conn)
		a.SyncRuns = repository.NewSyncRunRepository(conn)
	}

	client := service.NewDiscordClient(service.RemoteClientOptions{
		APIBase:          cfg.APIBase,
		Token:            cfg.BotToken,
		PageSize:         cfg.MemberPageSize,
		RateLimitRetries: cfg.RateLimitRetries,
		Metrics:          a.Metrics,
	})
	downloader := service.NewDownloadService(service.DownloadOptions{
		MaxAttempts: cfg.DownloadMaxAttempts,
		BaseDelay:   cfg.DownloadBaseDelay,
		Metrics:     a.Metrics,
	})

	a.Discovery = service.NewDiscoveryService(client, a.Decorations, a.SyncRuns, service.DiscoveryOptions{
		CDNBase: cfg.CDNBase,
		Metrics: a.Metrics,
	})
	a.Sync = service.NewSyncService(a.Decorations, a.SyncRuns, downloader, service.NewImageOptimizer(), service.SyncOptions{
		Layout:       a.Layout,
		RequestDelay: cfg.RequestDelay,
		Metrics:      a.Metrics,
	})
	a.Cleanup = service.NewCleanupService(a.Decorations, a.Layout, a.Metrics)

	return a, nil
}

// SweepStaleRuns closes runs left running for longer than STALE_RUN_AFTER
func (a *App) SweepStaleRuns(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-a.Config.StaleRunAfter)
	n, err := a.SyncRuns.FailStale(ctx, cutoff, fmt.Sprintf("abandoned: still running after %s", a.Config.StaleRunAfter))
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale sync runs: %w", err)
	}
	if n > 0 {
		log.Printf("🧹 Marked %d abandoned sync runs as failed", n)
	}
	return n, nil
}

// Handler builds the HTTP routes
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	router.SetupRoutes(mux, &router.Controllers{
		Decoration: controller.NewDecorationController(a.Decorations),
		Sync:       controller.NewSyncController(a.Discovery, a.Sync, a.Cleanup, a.SyncRuns, a.Config.GuildID),
	}, a.Config.AssetRoot)
	return mux
}

// Close releases the database connection, if any
func (a *App) Close() error {
	if a.conn == nil {
		return nil
	}
	if err := a.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
