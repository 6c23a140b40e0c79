package services

import (
	"context"
	"fmt"
	"time"

	"vergeside/internal/kml"
	"vergeside/internal/models"

	"github.com/uptrace/bun"
)

// AreaDataSource reads councils, areas, polygons and pickups through bun.
// Every call runs under its own timeout.
type AreaDataSource struct {
	db      *bun.DB
	timeout time.Duration
}

var _ kml.DataSource = (*AreaDataSource)(nil)

func NewAreaDataSource(db *bun.DB, timeout time.Duration) *AreaDataSource {
	return &AreaDataSource{db: db, timeout: timeout}
}

func (s *AreaDataSource) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// FetchPickups returns pickups whose start date falls in [start, end].
func (s *AreaDataSource) FetchPickups(ctx context.Context, start, end time.Time) ([]models.AreaPickup, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var pickups []models.AreaPickup
	err := s.db.NewSelect().
		Model(&pickups).
		Where("pk.start_date >= ?", start.Format(kml.DateLayout)).
		Where("pk.start_date <= ?", end.Format(kml.DateLayout)).
		OrderExpr("pk.area_id ASC, pk.start_date ASC, pk.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, classify(fmt.Errorf("select pickups: %w", err))
	}
	return pickups, nil
}

// FetchAreas returns areas with their council, optionally for one council.
func (s *AreaDataSource) FetchAreas(ctx context.Context, councilID *int64) ([]models.Area, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var areas []models.Area
	q := s.db.NewSelect().
		Model(&areas).
		Relation("Council").
		OrderExpr("a.id ASC")
	if councilID != nil {
		q = q.Where("a.council_id = ?", *councilID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, classify(fmt.Errorf("select areas: %w", err))
	}
	return areas, nil
}

// FetchPolygons returns the stored boundaries of one area.
func (s *AreaDataSource) FetchPolygons(ctx context.Context, areaID int64) ([]models.AreaPolygon, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var polygons []models.AreaPolygon
	err := s.db.NewSelect().
		Model(&polygons).
		Where("ap.area_id = ?", areaID).
		OrderExpr("ap.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, classify(fmt.Errorf("select polygons for area %d: %w", areaID, err))
	}
	return polygons, nil
}

// ListCouncils returns every council ordered by name.
func (s *AreaDataSource) ListCouncils(ctx context.Context) ([]models.Council, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var councils []models.Council
	if err := s.db.NewSelect().Model(&councils).OrderExpr("c.name ASC").Scan(ctx); err != nil {
		return nil, classify(fmt.Errorf("select councils: %w", err))
	}
	return councils, nil
}
