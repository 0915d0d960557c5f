package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"decoration-mirror/app"
	"decoration-mirror/config"
	"decoration-mirror/models"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "decosync",
		Short:         "Mirror and optimize profile decoration assets referenced by guild members",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		newServeCmd(),
		newDiscoverCmd(),
		newMaterializeCmd(),
		newCleanupCmd(),
		newRunsCmd(),
		newSweepStaleCmd(),
	)
	return cmd
}

// withApp loads configuration, wires the application and releases it after fn
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a, err := app.Initialize(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Printf("⚠️  %v", err)
		}
	}()
	return fn(a)
}

func writeJSON(payload any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin HTTP API and serve materialized assets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				if _, err := a.SweepStaleRuns(cmd.Context()); err != nil {
					log.Printf("⚠️  %v", err)
				}

				// Listen on 0.0.0.0 to accept connections from all interfaces (required for Docker)
				addr := "0.0.0.0:" + a.Config.Port
				server := &http.Server{
					Addr:              addr,
					Handler:           a.Handler(),
					ReadHeaderTimeout: 10 * time.Second,
				}

				errCh := make(chan error, 1)
				go func() {
					log.Printf("Server starting on %s", addr)
					log.Printf("Discovery endpoint: POST http://localhost:%s/admin/decorations/discover?guildId=YOUR_GUILD_ID", a.Config.Port)
					errCh <- server.ListenAndServe()
				}()

				select {
				case err := <-errCh:
					if errors.Is(err, http.ErrServerClosed) {
						return nil
					}
					return fmt.Errorf("server failed to start: %w", err)
				case <-cmd.Context().Done():
				}

				log.Printf("Shutting down server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})
		},
	}
}

func newDiscoverCmd() *cobra.Command {
	var guildID string
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Crawl guild members and record every decoration they reference",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				id, err := resolveGuild(guildID, a.Config.GuildID)
				if err != nil {
					return err
				}
				stats, err := a.Discovery.RunDiscovery(cmd.Context(), id)
				if err != nil {
					return err
				}
				return writeJSON(stats)
			})
		},
	}
	cmd.Flags().StringVar(&guildID, "guild", "", "guild id (defaults to GUILD_ID)")
	return cmd
}

func newMaterializeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "materialize <category>...",
		Short: "Download and optimize active decorations of the given categories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			categories, err := parseCategories(args)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				results := make([]*models.MaterializeStats, 0, len(categories))
				for _, category := range categories {
					stats, err := a.Sync.Materialize(cmd.Context(), category)
					if err != nil {
						return err
					}
					results = append(results, stats)
				}
				return writeJSON(results)
			})
		},
	}
}

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup <category>...",
		Short: "Delete asset files whose decoration is no longer active",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			categories, err := parseCategories(args)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				deleted := make(map[models.Category]int, len(categories))
				for _, category := range categories {
					n, err := a.Cleanup.Cleanup(cmd.Context(), category)
					if err != nil {
						return err
					}
					deleted[category] = n
				}
				return writeJSON(deleted)
			})
		},
	}
}

func newRunsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent sync runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				runs, err := a.SyncRuns.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return writeJSON(runs)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to show")
	return cmd
}

func newSweepStaleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-stale",
		Short: "Mark sync runs abandoned in the running state as failed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				n, err := a.SweepStaleRuns(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(map[string]int{"failed": n})
			})
		},
	}
}

// resolveGuild picks the guild to crawl. A registry mirrors a single guild,
// so a flag naming a different one than GUILD_ID is rejected.
func resolveGuild(flag, configured string) (string, error) {
	switch {
	case flag == "" && configured == "":
		return "", fmt.Errorf("--guild or GUILD_ID is required")
	case flag == "":
		return configured, nil
	case configured != "" && flag != configured:
		return "", fmt.Errorf("--guild %s does not match GUILD_ID %s", flag, configured)
	default:
		return flag, nil
	}
}

func parseCategories(args []string) ([]models.Category, error) {
	categories := make([]models.Category, 0, len(args))
	for _, arg := range args {
		category, err := models.ParseCategory(arg)
		if err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	return categories, nil
}
