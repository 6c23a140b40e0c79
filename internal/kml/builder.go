package kml

import (
	"sort"
	"strings"
	"time"

	"vergeside/internal/models"
)

const (
	descriptionLayout = "02 Jan 2006"
	nextPickupLayout  = "Monday, January 2, 2006"
)

// RenderUnit is the per-area structure consumed by the KML and GeoJSON encoders.
type RenderUnit struct {
	AreaID          int64
	AreaName        string
	CouncilName     string
	NextPickup      time.Time
	NextPickupLabel string
	Description     string
	Bucket          WeekBucket
	Color           string
	Polygons        [][]Point
}

func (u *RenderUnit) StyleID() string { return u.Bucket.StyleID() }

// IsMulti reports whether the unit renders as a multi-geometry.
func (u *RenderUnit) IsMulti() bool { return len(u.Polygons) > 1 }

// Builder turns one area with its pickups and polygons into a RenderUnit.
type Builder struct {
	scheme ColorScheme
	loc    *time.Location
}

func NewBuilder(scheme ColorScheme, loc *time.Location) *Builder {
	return &Builder{scheme: scheme, loc: loc}
}

// Build returns nil when the area has no pickups or no usable polygon.
// The second result counts polygons skipped for invalid geometry.
func (b *Builder) Build(area models.Area, pickups []models.AreaPickup, polygons []models.AreaPolygon, today time.Time) (*RenderUnit, int) {
	if len(pickups) == 0 || len(polygons) == 0 {
		return nil, 0
	}

	rings := make([][]Point, 0, len(polygons))
	skipped := 0
	for _, p := range polygons {
		pts, err := Normalize(p.Coordinates)
		if err != nil || len(pts) < MinRingPoints {
			skipped++
			continue
		}
		rings = append(rings, pts)
	}
	if len(rings) == 0 {
		return nil, skipped
	}

	sorted := make([]models.AreaPickup, len(pickups))
	copy(sorted, pickups)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartDate.Before(sorted[j].StartDate)
	})

	next := DateIn(sorted[0].StartDate, b.loc)
	bucket := Classify(next, today, b.loc)

	return &RenderUnit{
		AreaID:          area.ID,
		AreaName:        area.Name,
		CouncilName:     area.CouncilName(),
		NextPickup:      next,
		NextPickupLabel: next.Format(nextPickupLayout),
		Description:     b.describe(sorted),
		Bucket:          bucket,
		Color:           b.scheme.ColorFor(bucket),
		Polygons:        rings,
	}, skipped
}

// describe joins the distinct pickup dates, already sorted ascending.
func (b *Builder) describe(sorted []models.AreaPickup) string {
	dates := make([]string, 0, len(sorted))
	seen := make(map[string]struct{}, len(sorted))
	for _, p := range sorted {
		d := p.StartDate.Format(descriptionLayout)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		dates = append(dates, d)
	}
	return strings.Join(dates, " and ")
}
