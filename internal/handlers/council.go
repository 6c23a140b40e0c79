package handlers

import (
	"context"
	"net/http"

	"vergeside/internal/models"
	"vergeside/internal/utils"

	"go.uber.org/zap"
)

// AreaDirectory lists councils and their areas.
type AreaDirectory interface {
	ListCouncils(ctx context.Context) ([]models.Council, error)
	FetchAreas(ctx context.Context, councilID *int64) ([]models.Area, error)
}

type CouncilHandler struct {
	dir  AreaDirectory
	logr *zap.Logger
}

func NewCouncilHandler(dir AreaDirectory, logr *zap.Logger) *CouncilHandler {
	return &CouncilHandler{dir: dir, logr: logr}
}

func (h *CouncilHandler) ListCouncils(w http.ResponseWriter, r *http.Request) {
	councils, err := h.dir.ListCouncils(r.Context())
	if err != nil {
		h.logr.Error("failed to list councils", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to retrieve councils")
		return
	}
	if councils == nil {
		councils = []models.Council{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"councils": councils,
		"count":    len(councils),
	})
}

// ListAreas returns areas with their council, optionally for one council.
func (h *CouncilHandler) ListAreas(w http.ResponseWriter, r *http.Request) {
	councilID, err := utils.ParseOptionalID(r.URL.Query(), "councilId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	areas, err := h.dir.FetchAreas(r.Context(), councilID)
	if err != nil {
		h.logr.Error("failed to list areas", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to retrieve areas")
		return
	}
	if areas == nil {
		areas = []models.Area{}
	}

	response := map[string]any{
		"areas": areas,
		"count": len(areas),
	}
	if councilID != nil {
		response["councilId"] = *councilID
	}
	writeJSON(w, http.StatusOK, response)
}
