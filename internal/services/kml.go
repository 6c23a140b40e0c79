package services

import (
	"context"
	"fmt"
	"time"

	"vergeside/internal/kml"
	"vergeside/internal/metrics"
	"vergeside/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DocumentRequest identifies one cacheable document.
type DocumentRequest struct {
	Format    kml.Format
	StartDate string
	EndDate   string
	CouncilID *int64
}

// Result is a resolved document and whether it came from the cache.
type Result struct {
	Content string
	Format  kml.Format
	Key     string
	Hit     bool
}

// KMLService serves documents from the cache, building and storing them on
// a miss or when the stored entry is older than the TTL. Concurrent misses
// for one key share a single build, which keeps running when a caller goes
// away.
type KMLService struct {
	store     CacheStore
	assembler *kml.Assembler
	loc       *time.Location
	ttl       time.Duration
	now       func() time.Time
	group     singleflight.Group
	logr      *zap.Logger
}

func NewKMLService(store CacheStore, assembler *kml.Assembler, loc *time.Location, ttl time.Duration, logr *zap.Logger) *KMLService {
	if logr == nil {
		logr = zap.NewNop()
	}
	return &KMLService{
		store:     store,
		assembler: assembler,
		loc:       loc,
		ttl:       ttl,
		now:       time.Now,
		logr:      logr,
	}
}

// WithClock replaces the clock used for freshness checks.
func (s *KMLService) WithClock(now func() time.Time) *KMLService {
	s.now = now
	return s
}

func (s *KMLService) TTL() time.Duration { return s.ttl }

// GetDocument returns the KML document for the range and optional council.
func (s *KMLService) GetDocument(ctx context.Context, startDate, endDate string, councilID *int64) (string, error) {
	res, err := s.Resolve(ctx, DocumentRequest{
		Format:    kml.FormatKML,
		StartDate: startDate,
		EndDate:   endDate,
		CouncilID: councilID,
	})
	if err != nil {
		return "", err
	}
	return res.Content, nil
}

// Resolve returns the requested document, from the cache when fresh.
// Upstream failures are returned and never cached; cache read failures
// count as misses and cache write failures are only logged.
func (s *KMLService) Resolve(ctx context.Context, req DocumentRequest) (*Result, error) {
	format := req.Format
	if format == "" {
		format = kml.FormatKML
	}
	if !format.Valid() {
		return nil, fmt.Errorf("unsupported format %q", string(format))
	}
	r, err := kml.ParseDateRange(req.StartDate, req.EndDate, s.loc)
	if err != nil {
		return nil, err
	}
	key := kml.CacheKey(format, r, req.CouncilID)
	logr := s.logr.With(zap.String("cache_key", key), zap.String("format", string(format)))

	entry, err := s.store.Get(ctx, key)
	switch {
	case err != nil:
		metrics.RecordLookup(string(format), "error")
		logr.Warn("cache read failed, rebuilding", zap.Error(err))
	case entry == nil:
		metrics.RecordLookup(string(format), "miss")
	case s.fresh(entry):
		metrics.RecordLookup(string(format), "hit")
		return &Result{Content: entry.Content, Format: format, Key: key, Hit: true}, nil
	default:
		metrics.RecordLookup(string(format), "stale")
		logr.Debug("cache entry expired", zap.Time("created_at", entry.CreatedAt))
	}

	// The shared build outlives any single caller; fetches stay bounded by
	// the data source timeout.
	buildCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		return s.build(buildCtx, logr, format, r, req.CouncilID, key)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			metrics.CoalescedBuilds.WithLabelValues(string(format)).Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return &Result{Content: res.Val.(string), Format: format, Key: key}, nil
	}
}

func (s *KMLService) fresh(entry *models.KMLCache) bool {
	return s.now().Sub(entry.CreatedAt) < s.ttl
}

func (s *KMLService) build(ctx context.Context, logr *zap.Logger, format kml.Format, r kml.DateRange, councilID *int64, key string) (string, error) {
	started := time.Now()

	doc, err := s.assembler.Assemble(ctx, r, councilID)
	if err != nil {
		metrics.RecordBuild(string(format), "error", time.Since(started).Seconds())
		metrics.RecordError("assemble")
		return "", err
	}
	content, err := format.Encode(doc)
	if err != nil {
		metrics.RecordBuild(string(format), "error", time.Since(started).Seconds())
		metrics.RecordError("encode")
		return "", err
	}
	metrics.RecordBuild(string(format), "ok", time.Since(started).Seconds())

	params := models.CacheParams{
		Format:    string(format),
		StartDate: r.StartString(),
		EndDate:   r.EndString(),
		CouncilID: councilID,
	}
	if err := s.store.Put(ctx, key, content, params); err != nil {
		metrics.RecordError("cache_put")
		logr.Error("cache write failed", zap.Error(err))
	}

	logr.Info("document built",
		zap.Int("areas", len(doc.Units)),
		zap.Duration("took", time.Since(started)))
	return content, nil
}

// Invalidate drops the cached documents for a request. An empty format
// invalidates every format. It returns the keys removed.
func (s *KMLService) Invalidate(ctx context.Context, req DocumentRequest) ([]string, error) {
	r, err := kml.ParseDateRange(req.StartDate, req.EndDate, s.loc)
	if err != nil {
		return nil, err
	}
	formats := []kml.Format{kml.FormatKML, kml.FormatGeoJSON}
	if req.Format != "" {
		if !req.Format.Valid() {
			return nil, fmt.Errorf("unsupported format %q", string(req.Format))
		}
		formats = []kml.Format{req.Format}
	}

	keys := make([]string, 0, len(formats))
	for _, f := range formats {
		key := kml.CacheKey(f, r, req.CouncilID)
		if err := s.store.Invalidate(ctx, key); err != nil {
			return keys, fmt.Errorf("invalidate %s: %w", key, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}
