package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/larder/internal/plan"
	"github.com/hyperengineering/larder/internal/store"
	"github.com/hyperengineering/larder/internal/types"
	"github.com/hyperengineering/larder/internal/validation"
)

// DefaultMaxBodyBytes bounds an import request body when none is configured.
const DefaultMaxBodyBytes = 32 << 20

// Importer reconciles a backup into a user's records.
type Importer interface {
	Import(ctx context.Context, userID string, req types.ImportRequest) (*types.ImportResponse, error)
}

// Exporter builds a user's backup document.
type Exporter interface {
	Export(ctx context.Context, userID string) (*types.BackupDocument, error)
}

// StatusReporter reports a user's sync health.
type StatusReporter interface {
	Status(ctx context.Context, userID string) (*types.SyncStatus, error)
}

// PlanStore persists per-user plan limit overrides.
type PlanStore interface {
	SetPlanLimit(ctx context.Context, userID, collection string, limit int64) error
}

// StatsProvider reports aggregate store statistics.
type StatsProvider interface {
	GetStats(ctx context.Context) (*store.Stats, error)
}

// Deps are the collaborators of a Handler.
type Deps struct {
	Importer     Importer
	Exporter     Exporter
	Status       StatusReporter
	Plans        PlanStore
	Stats        StatsProvider
	APIKey       string
	Version      string
	MaxBodyBytes int64
}

// Handler implements the API handlers
type Handler struct {
	importer     Importer
	exporter     Exporter
	status       StatusReporter
	plans        PlanStore
	stats        StatsProvider
	apiKey       string
	version      string
	maxBodyBytes int64
}

// NewHandler creates a new Handler
func NewHandler(d Deps) *Handler {
	maxBody := d.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &Handler{
		importer:     d.Importer,
		exporter:     d.Exporter,
		status:       d.Status,
		plans:        d.Plans,
		stats:        d.Stats,
		apiKey:       d.APIKey,
		version:      d.Version,
		maxBodyBytes: maxBody,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "component", "api", "error", err)
	}
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := types.HealthResponse{
		Status:  "healthy",
		Version: h.version,
	}
	if h.stats != nil {
		stats, err := h.stats.GetStats(r.Context())
		if err != nil {
			slog.Error("health check failed", "component", "api", "error", err)
			WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		resp.UserCount = stats.UserCount
	}
	writeJSON(w, http.StatusOK, resp)
}

// Export handles GET /api/v1/users/{user_id}/sync/export
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	doc, err := h.exporter.Export(r.Context(), userID)
	if err != nil {
		slog.Error("export failed",
			"component", "api",
			"action", "sync_export_failed",
			"user_id", userID,
			"error", err,
		)
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Import handles POST /api/v1/users/{user_id}/sync/import
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	var req types.ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteProblem(w, r, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err))
		return
	}

	resp, err := h.importer.Import(r.Context(), userID, req)
	if err != nil {
		// The importer has already logged and recorded the failure.
		WriteImportError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Status handles GET /api/v1/users/{user_id}/sync/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	st, err := h.status.Status(r.Context(), userID)
	if err != nil {
		slog.Error("status failed",
			"component", "api",
			"action", "sync_status_failed",
			"user_id", userID,
			"error", err,
		)
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// PlanLimitRequest is the body of PUT /users/{user_id}/plan.
type PlanLimitRequest struct {
	Collection string      `json:"collection"`
	Limit      *plan.Limit `json:"limit"`
}

// planCollections are the collections a plan limit applies to.
var planCollections = []string{types.CollectionInventory, types.CollectionCookware}

// SetPlan handles PUT /api/v1/users/{user_id}/plan
func (h *Handler) SetPlan(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	var req PlanLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err))
		return
	}

	var c validation.Collector
	c.Add(validation.ValidateRequired("collection", req.Collection))
	if req.Collection != "" {
		c.Add(validation.ValidateEnum("collection", req.Collection, planCollections))
	}
	if req.Limit == nil {
		c.Add(&validation.ValidationError{Field: "limit", Message: "is required"})
	}
	if c.HasErrors() {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", c.Errors())
		return
	}

	if err := h.plans.SetPlanLimit(r.Context(), userID, req.Collection, req.Limit.Stored()); err != nil {
		slog.Error("set plan limit failed",
			"component", "api",
			"action", "plan_update_failed",
			"user_id", userID,
			"error", err,
		)
		MapStoreError(w, r, err)
		return
	}

	slog.Info("plan limit updated",
		"component", "api",
		"action", "plan_updated",
		"user_id", userID,
		"collection", req.Collection,
		"limit", req.Limit.String(),
	)
	writeJSON(w, http.StatusOK, req)
}
