package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vergeside/internal/kml"
	"vergeside/internal/models"
	"vergeside/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDocs struct {
	res         *services.Result
	err         error
	got         services.DocumentRequest
	invalidated []string
}

func (f *fakeDocs) Resolve(_ context.Context, req services.DocumentRequest) (*services.Result, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func (f *fakeDocs) Invalidate(_ context.Context, req services.DocumentRequest) ([]string, error) {
	f.got = req
	if _, err := kml.ParseDateRange(req.StartDate, req.EndDate, time.UTC); err != nil {
		return nil, err
	}
	return f.invalidated, f.err
}

func (f *fakeDocs) TTL() time.Duration { return 24 * time.Hour }

func get(h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestGetKML(t *testing.T) {
	docs := &fakeDocs{res: &services.Result{Content: "<kml/>", Hit: true}}
	h := NewKMLHandler(docs, zap.NewNop())

	rec := get(h.GetKML, "/api/v1/kml?startDate=2025-06-01&endDate=2025-06-28&councilId=7")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<kml/>", rec.Body.String())
	assert.Equal(t, "application/vnd.google-earth.kml+xml", rec.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=86400", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))

	assert.Equal(t, kml.FormatKML, docs.got.Format)
	assert.Equal(t, "2025-06-01", docs.got.StartDate)
	require.NotNil(t, docs.got.CouncilID)
	assert.Equal(t, int64(7), *docs.got.CouncilID)
}

func TestGetAreasGeoJSON(t *testing.T) {
	docs := &fakeDocs{res: &services.Result{Content: `{"type":"FeatureCollection"}`}}
	h := NewKMLHandler(docs, zap.NewNop())

	rec := get(h.GetAreasGeoJSON, "/api/v1/areas/geojson?startDate=2025-06-01&endDate=2025-06-28")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, kml.FormatGeoJSON, docs.got.Format)
	assert.Nil(t, docs.got.CouncilID)
}

func TestGetKMLErrors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		status int
	}{
		{"missing end date", "/api/v1/kml?startDate=2025-06-01", nil, http.StatusBadRequest},
		{"bad council", "/api/v1/kml?startDate=2025-06-01&endDate=2025-06-28&councilId=abc", nil, http.StatusBadRequest},
		{"reversed range", "/api/v1/kml?startDate=2025-06-28&endDate=2025-06-01",
			kml.ErrInvalidDateRange, http.StatusBadRequest},
		{"timeout", "/api/v1/kml?startDate=2025-06-01&endDate=2025-06-28",
			kml.NewFetchError("fetch pickups", context.DeadlineExceeded), http.StatusServiceUnavailable},
		{"upstream failure", "/api/v1/kml?startDate=2025-06-01&endDate=2025-06-28",
			kml.NewFetchError("fetch areas", errors.New("boom")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewKMLHandler(&fakeDocs{err: tt.err}, zap.NewNop())
			rec := get(h.GetKML, tt.target)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
			assert.NotContains(t, body["error"], "boom")
		})
	}
}

type fakeAdmin struct {
	status    *services.CacheStatus
	deleted   int64
	clearedBy string
	recreated bool
	lastReset time.Time
	err       error
}

func (f *fakeAdmin) Status(context.Context) (*services.CacheStatus, error) { return f.status, f.err }

func (f *fakeAdmin) Clear(_ context.Context, by string) (int64, error) {
	f.clearedBy = by
	return f.deleted, f.err
}

func (f *fakeAdmin) Recreate(context.Context, string) error {
	f.recreated = f.err == nil
	return f.err
}

func (f *fakeAdmin) LastReset(context.Context) (time.Time, error) { return f.lastReset, f.err }

type fakeFlusher struct{ flushed bool }

func (f *fakeFlusher) Flush(context.Context) (int64, error) {
	f.flushed = true
	return 3, nil
}

func TestCacheAdminStatus(t *testing.T) {
	created := time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC)
	admin := &fakeAdmin{status: &services.CacheStatus{
		Available: true,
		Count:     2,
		LastEntry: &models.KMLCache{CacheKey: "abc", CreatedAt: created},
	}}
	h := NewCacheAdminHandler(admin, &fakeDocs{}, nil, zap.NewNop())

	rec := get(h.Status, "/api/v1/admin/kml-cache/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Available bool `json:"available"`
		Count     int  `json:"count"`
		LastEntry struct {
			CacheKey string `json:"cache_key"`
		} `json:"lastEntry"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Available)
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "abc", body.LastEntry.CacheKey)
}

func TestCacheAdminClearFlushesRedis(t *testing.T) {
	admin := &fakeAdmin{deleted: 5}
	flusher := &fakeFlusher{}
	h := NewCacheAdminHandler(admin, &fakeDocs{}, flusher, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Clear(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/kml-cache/clear", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, flusher.flushed)
	assert.Contains(t, rec.Body.String(), `"deleted":5`)
}

func TestCacheAdminClearMissingTable(t *testing.T) {
	admin := &fakeAdmin{err: kml.ErrTableMissing}
	h := NewCacheAdminHandler(admin, &fakeDocs{}, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Clear(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/kml-cache/clear", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCacheAdminRecreate(t *testing.T) {
	admin := &fakeAdmin{}
	h := NewCacheAdminHandler(admin, &fakeDocs{}, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Recreate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/kml-cache/recreate", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, admin.recreated)
}

func TestCacheAdminInvalidate(t *testing.T) {
	docs := &fakeDocs{invalidated: []string{"eeaa62842b0da1d4912c878b438421a2"}}
	h := NewCacheAdminHandler(&fakeAdmin{}, docs, nil, zap.NewNop())

	post := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.Invalidate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/kml-cache/invalidate", strings.NewReader(body)))
		return rec
	}

	rec := post(`{"startDate":"2025-06-01","endDate":"2025-06-28","format":"kml"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "eeaa62842b0da1d4912c878b438421a2")
	assert.Equal(t, kml.FormatKML, docs.got.Format)

	assert.Equal(t, http.StatusBadRequest, post(`{"startDate":"2025-06-01"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`not json`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"startDate":"2025-06-28","endDate":"2025-06-01"}`).Code)
}

func TestCacheAdminLastReset(t *testing.T) {
	h := NewCacheAdminHandler(&fakeAdmin{}, &fakeDocs{}, nil, zap.NewNop())
	rec := get(h.LastReset, "/api/v1/admin/kml-cache/last-reset")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"lastReset":null}`, rec.Body.String())

	at := time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC)
	h = NewCacheAdminHandler(&fakeAdmin{lastReset: at}, &fakeDocs{}, nil, zap.NewNop())
	rec = get(h.LastReset, "/api/v1/admin/kml-cache/last-reset")
	assert.JSONEq(t, `{"lastReset":"2025-06-01T02:00:00Z"}`, rec.Body.String())
}

type fakeDirectory struct{}

func (fakeDirectory) ListCouncils(context.Context) ([]models.Council, error) {
	return []models.Council{{ID: 7, Name: "City of Perth"}}, nil
}

func (fakeDirectory) FetchAreas(_ context.Context, councilID *int64) ([]models.Area, error) {
	if councilID != nil && *councilID != 7 {
		return nil, nil
	}
	return []models.Area{{ID: 1, Name: "Riverside", CouncilID: 7, Council: &models.Council{ID: 7, Name: "City of Perth"}}}, nil
}

func TestCouncilHandler(t *testing.T) {
	h := NewCouncilHandler(fakeDirectory{}, zap.NewNop())

	rec := get(h.ListCouncils, "/api/v1/councils")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"councils":[{"id":7,"name":"City of Perth"}],"count":1}`, rec.Body.String())

	rec = get(h.ListAreas, "/api/v1/areas?councilId=9")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"areas":[],"count":0,"councilId":9}`, rec.Body.String())

	rec = get(h.ListAreas, "/api/v1/areas")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Riverside"`)

	assert.Equal(t, http.StatusBadRequest, get(h.ListAreas, "/api/v1/areas?councilId=x").Code)
}
