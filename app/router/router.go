package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"decoration-mirror/app/controller"
)

type Controllers struct {
	Decoration *controller.DecorationController
	Sync       *controller.SyncController
}

// pingHandler handles GET /ping
func pingHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func SetupRoutes(mux *http.ServeMux, controllers *Controllers, assetRoot string) {
	// Ping endpoint
	mux.HandleFunc("/ping", pingHandler)

	// Prometheus exposition
	mux.Handle("/metrics", promhttp.Handler())

	// Materialized files, served as-is from the asset root
	mux.Handle("/assets/", http.StripPrefix("/assets/", http.FileServer(http.Dir(assetRoot))))

	// Sync triggers
	mux.HandleFunc("/admin/decorations/discover", controllers.Sync.Discover)
	mux.HandleFunc("/admin/decorations/materialize", controllers.Sync.Materialize)
	mux.HandleFunc("/admin/decorations/cleanup", controllers.Sync.Cleanup)

	// Registry lookups
	mux.HandleFunc("/admin/decorations", controllers.Decoration.ListActive)
	mux.HandleFunc("/admin/decorations/", controllers.Decoration.GetByHash)

	// Sync run log
	mux.HandleFunc("/admin/sync-runs", controllers.Sync.ListRuns)
}
