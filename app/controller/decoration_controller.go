package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"decoration-mirror/models"
	"decoration-mirror/repository"
)

// DecorationController handles HTTP requests for registry lookups
type DecorationController struct {
	repository repository.DecorationRepositoryInterface
}

// NewDecorationController creates a new DecorationController
func NewDecorationController(repo repository.DecorationRepositoryInterface) *DecorationController {
	return &DecorationController{repository: repo}
}

// ListActive handles GET /admin/decorations?category=
func (c *DecorationController) ListActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	category, err := models.ParseCategory(r.URL.Query().Get("category"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := context.Background()
	records, err := c.repository.ListActive(ctx, category)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list decorations: %v", err), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []models.DecorationRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"category":    category,
		"count":       len(records),
		"decorations": records,
	})
}

// GetByHash handles GET /admin/decorations/{category}/{hash}
func (c *DecorationController) GetByHash(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Path format: /admin/decorations/{category}/{hash}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/admin/decorations/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] == "" {
		http.Error(w, "expected /admin/decorations/{category}/{hash}", http.StatusNotFound)
		return
	}

	category, err := models.ParseCategory(parts[0])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := context.Background()
	record, err := c.repository.GetByHash(ctx, category, parts[1])
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, fmt.Sprintf("Decoration %s/%s not found", category, parts[1]), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to get decoration: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
