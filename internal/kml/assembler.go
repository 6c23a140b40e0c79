// Package kml turns pickup schedules and area polygons into colour coded
// KML documents and GeoJSON feature collections.
package kml

import (
	"context"
	"sort"
	"time"

	"vergeside/internal/metrics"
	"vergeside/internal/models"

	"go.uber.org/zap"
)

// DataSource is the read side of the data collaborator.
type DataSource interface {
	FetchPickups(ctx context.Context, start, end time.Time) ([]models.AreaPickup, error)
	FetchAreas(ctx context.Context, councilID *int64) ([]models.Area, error)
	FetchPolygons(ctx context.Context, areaID int64) ([]models.AreaPolygon, error)
}

// Document is an assembled, format independent set of render units.
type Document struct {
	Range     DateRange
	CouncilID *int64
	Today     time.Time
	Units     []RenderUnit
	Scheme    ColorScheme
}

type Assembler struct {
	src     DataSource
	builder *Builder
	scheme  ColorScheme
	loc     *time.Location
	now     func() time.Time
	logr    *zap.Logger
}

func NewAssembler(src DataSource, scheme ColorScheme, loc *time.Location, logr *zap.Logger) *Assembler {
	if logr == nil {
		logr = zap.NewNop()
	}
	return &Assembler{
		src:     src,
		builder: NewBuilder(scheme, loc),
		scheme:  scheme,
		loc:     loc,
		now:     time.Now,
		logr:    logr,
	}
}

// WithClock replaces the clock used to decide "today".
func (a *Assembler) WithClock(now func() time.Time) *Assembler {
	a.now = now
	return a
}

// Assemble fetches everything needed for the range and builds one render
// unit per area that has both pickups and usable geometry.
func (a *Assembler) Assemble(ctx context.Context, r DateRange, councilID *int64) (*Document, error) {
	today := CivilDay(a.now(), a.loc)

	pickups, err := a.src.FetchPickups(ctx, r.Start, r.End)
	if err != nil {
		return nil, NewFetchError("fetch pickups", err)
	}
	areas, err := a.src.FetchAreas(ctx, councilID)
	if err != nil {
		return nil, NewFetchError("fetch areas", err)
	}

	byArea := make(map[int64][]models.AreaPickup)
	for _, p := range pickups {
		byArea[p.AreaID] = append(byArea[p.AreaID], p)
	}

	areas = append([]models.Area(nil), areas...)
	sort.SliceStable(areas, func(i, j int) bool { return areas[i].ID < areas[j].ID })

	units := make([]RenderUnit, 0, len(byArea))
	for _, area := range areas {
		group := byArea[area.ID]
		if len(group) == 0 {
			continue
		}
		polygons, err := a.src.FetchPolygons(ctx, area.ID)
		if err != nil {
			return nil, NewFetchError("fetch polygons", err)
		}
		unit, skipped := a.builder.Build(area, group, polygons, today)
		if skipped > 0 {
			metrics.SkippedPolygons.Add(float64(skipped))
			a.logr.Warn("skipped invalid polygons",
				zap.Int64("area_id", area.ID),
				zap.String("area", area.Name),
				zap.Int("skipped", skipped))
		}
		if unit == nil {
			continue
		}
		units = append(units, *unit)
	}

	return &Document{
		Range:     r,
		CouncilID: councilID,
		Today:     today,
		Units:     units,
		Scheme:    a.scheme,
	}, nil
}
