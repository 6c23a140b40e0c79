package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"vergeside/internal/kml"
	"vergeside/internal/services"
	"vergeside/internal/utils"

	"go.uber.org/zap"
)

// DocumentService resolves cached documents.
type DocumentService interface {
	Resolve(ctx context.Context, req services.DocumentRequest) (*services.Result, error)
	Invalidate(ctx context.Context, req services.DocumentRequest) ([]string, error)
	TTL() time.Duration
}

type KMLHandler struct {
	service DocumentService
	logr    *zap.Logger
}

func NewKMLHandler(svc DocumentService, logr *zap.Logger) *KMLHandler {
	return &KMLHandler{service: svc, logr: logr}
}

// GetKML returns the colour coded KML document for a date range.
func (h *KMLHandler) GetKML(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, kml.FormatKML)
}

// GetAreasGeoJSON returns the same document as a GeoJSON FeatureCollection.
func (h *KMLHandler) GetAreasGeoJSON(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, kml.FormatGeoJSON)
}

func (h *KMLHandler) serve(w http.ResponseWriter, r *http.Request, format kml.Format) {
	req, err := parseDocumentRequest(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Format = format

	res, err := h.service.Resolve(r.Context(), req)
	if err != nil {
		h.writeResolveError(w, err, req)
		return
	}

	cacheState := "MISS"
	if res.Hit {
		cacheState = "HIT"
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(h.service.TTL().Seconds())))
	w.Header().Set("X-Cache", cacheState)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(res.Content))
}

func (h *KMLHandler) writeResolveError(w http.ResponseWriter, err error, req services.DocumentRequest) {
	fields := []zap.Field{
		zap.Error(err),
		zap.String("start_date", req.StartDate),
		zap.String("end_date", req.EndDate),
		zap.String("format", string(req.Format)),
	}
	switch {
	case errors.Is(err, kml.ErrInvalidDateRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case kml.IsRetryable(err):
		h.logr.Warn("document source timed out", fields...)
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusServiceUnavailable, "data source timed out, try again shortly")
	default:
		h.logr.Error("failed to generate document", fields...)
		writeError(w, http.StatusInternalServerError, "failed to generate document")
	}
}

func parseDocumentRequest(q url.Values) (services.DocumentRequest, error) {
	councilID, err := utils.ParseOptionalID(q, "councilId")
	if err != nil {
		return services.DocumentRequest{}, err
	}
	dates, err := utils.RequireParams(q, "startDate", "endDate")
	if err != nil {
		return services.DocumentRequest{}, err
	}
	return services.DocumentRequest{
		StartDate: dates[0],
		EndDate:   dates[1],
		CouncilID: councilID,
	}, nil
}
