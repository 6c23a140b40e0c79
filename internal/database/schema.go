package database

import (
	"context"
	"fmt"

	"vergeside/internal/models"

	"github.com/uptrace/bun"
)

type index struct {
	model   interface{}
	name    string
	columns []string
}

var (
	areaModels = []interface{}{
		(*models.Council)(nil),
		(*models.Area)(nil),
		(*models.AreaPolygon)(nil),
		(*models.AreaPickup)(nil),
	}
	areaIndexes = []index{
		{(*models.AreaPolygon)(nil), "idx_area_polygon_area_id", []string{"area_id"}},
		{(*models.AreaPickup)(nil), "idx_area_pickup_start_date", []string{"start_date", "area_id"}},
	}

	cacheModels = []interface{}{
		(*models.KMLCache)(nil),
		(*models.SystemLog)(nil),
	}
	cacheIndexes = []index{
		{(*models.KMLCache)(nil), "idx_kml_cache_cache_key", []string{"cache_key"}},
		{(*models.KMLCache)(nil), "idx_kml_cache_created_at", []string{"created_at"}},
		{(*models.SystemLog)(nil), "idx_system_log_action_timestamp", []string{"action", "timestamp"}},
	}
)

// EnsureSchema creates every table and index that does not exist yet.
func EnsureSchema(ctx context.Context, db bun.IDB) error {
	if err := provision(ctx, db, areaModels, areaIndexes); err != nil {
		return err
	}
	return EnsureCacheSchema(ctx, db)
}

// EnsureCacheSchema provisions only the cache and system log tables.
func EnsureCacheSchema(ctx context.Context, db bun.IDB) error {
	return provision(ctx, db, cacheModels, cacheIndexes)
}

func provision(ctx context.Context, db bun.IDB, tables []interface{}, indexes []index) error {
	for _, m := range tables {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", m, err)
		}
	}
	for _, idx := range indexes {
		_, err := db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}
