package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"vergeside/internal/kml"
	"vergeside/internal/middleware"
	"vergeside/internal/services"

	"go.uber.org/zap"
)

// CacheAdmin is the maintenance surface of the durable cache.
type CacheAdmin interface {
	Status(ctx context.Context) (*services.CacheStatus, error)
	Clear(ctx context.Context, performedBy string) (int64, error)
	Recreate(ctx context.Context, performedBy string) error
	LastReset(ctx context.Context) (time.Time, error)
}

// Flusher empties a secondary cache tier.
type Flusher interface {
	Flush(ctx context.Context) (int64, error)
}

type CacheAdminHandler struct {
	store   CacheAdmin
	docs    DocumentService
	flusher Flusher
	logr    *zap.Logger
}

// NewCacheAdminHandler builds the admin handler. flusher may be nil when
// there is no redis tier.
func NewCacheAdminHandler(store CacheAdmin, docs DocumentService, flusher Flusher, logr *zap.Logger) *CacheAdminHandler {
	return &CacheAdminHandler{store: store, docs: docs, flusher: flusher, logr: logr}
}

func (h *CacheAdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.store.Status(r.Context())
	if err != nil {
		h.logr.Error("failed to read cache status", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, services.CacheStatus{Error: "failed to read cache status"})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *CacheAdminHandler) Clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.UserID(ctx)

	deleted, err := h.store.Clear(ctx, user)
	if err != nil {
		h.logr.Error("failed to clear cache", zap.Error(err), zap.String("user", user))
		if errors.Is(err, kml.ErrTableMissing) {
			writeError(w, http.StatusConflict, "kml_cache table does not exist, recreate it first")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to clear cache")
		return
	}
	if h.flusher != nil {
		if n, err := h.flusher.Flush(ctx); err != nil {
			h.logr.Warn("failed to flush redis tier", zap.Error(err))
		} else {
			h.logr.Debug("flushed redis tier", zap.Int64("keys", n))
		}
	}

	h.logr.Info("kml cache cleared", zap.String("user", user), zap.Int64("deleted", deleted))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"deleted": deleted,
		"message": "KML cache cleared successfully",
	})
}

func (h *CacheAdminHandler) Recreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.UserID(ctx)

	if err := h.store.Recreate(ctx, user); err != nil {
		h.logr.Error("failed to recreate cache table", zap.Error(err), zap.String("user", user))
		writeError(w, http.StatusInternalServerError, "failed to recreate cache table")
		return
	}

	h.logr.Info("kml cache table recreated", zap.String("user", user))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "KML cache table recreated successfully",
	})
}

type invalidateRequest struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	CouncilID *int64 `json:"councilId"`
	Format    string `json:"format"`
}

func (h *CacheAdminHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	var body invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.StartDate == "" || body.EndDate == "" {
		writeError(w, http.StatusBadRequest, "startDate and endDate are required")
		return
	}

	keys, err := h.docs.Invalidate(r.Context(), services.DocumentRequest{
		Format:    kml.Format(body.Format),
		StartDate: body.StartDate,
		EndDate:   body.EndDate,
		CouncilID: body.CouncilID,
	})
	if err != nil {
		if errors.Is(err, kml.ErrInvalidDateRange) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logr.Error("failed to invalidate cache entry", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to invalidate cache entry")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"invalidated": keys,
	})
}

func (h *CacheAdminHandler) LastReset(w http.ResponseWriter, r *http.Request) {
	at, err := h.store.LastReset(r.Context())
	if err != nil {
		h.logr.Error("failed to read last reset", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read last reset")
		return
	}

	var lastReset *time.Time
	if !at.IsZero() {
		lastReset = &at
	}
	writeJSON(w, http.StatusOK, map[string]any{"lastReset": lastReset})
}
