package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vergeside/internal/database"
	"vergeside/internal/metrics"
	"vergeside/internal/models"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// CacheStore persists generated documents by cache key.
// Get returns nil, nil on a miss.
type CacheStore interface {
	Get(ctx context.Context, key string) (*models.KMLCache, error)
	Put(ctx context.Context, key, content string, params models.CacheParams) error
	Invalidate(ctx context.Context, key string) error
}

// CacheStatus is the admin view of the cache table.
type CacheStatus struct {
	Available bool             `json:"available"`
	Count     int              `json:"count"`
	LastEntry *models.KMLCache `json:"lastEntry"`
	Error     string           `json:"error,omitempty"`
}

// KMLCacheStore keeps documents in the kml_cache table.
type KMLCacheStore struct {
	db   *bun.DB
	now  func() time.Time
	logr *zap.Logger
}

var _ CacheStore = (*KMLCacheStore)(nil)

func NewKMLCacheStore(db *bun.DB, logr *zap.Logger) *KMLCacheStore {
	return &KMLCacheStore{db: db, now: time.Now, logr: logr}
}

func (s *KMLCacheStore) Get(ctx context.Context, key string) (*models.KMLCache, error) {
	entry := new(models.KMLCache)
	err := s.db.NewSelect().Model(entry).Where("kc.cache_key = ?", key).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(fmt.Errorf("select cache entry: %w", err))
	}
	return entry, nil
}

// Put overwrites the entry for key, inserting it when absent. A concurrent
// insert of the same key is recovered by updating the winner's row.
func (s *KMLCacheStore) Put(ctx context.Context, key, content string, params models.CacheParams) error {
	entry := &models.KMLCache{
		CacheKey:   key,
		Content:    content,
		Parameters: params,
		CreatedAt:  s.now(),
	}

	exists, err := s.db.NewSelect().Model((*models.KMLCache)(nil)).Where("kc.cache_key = ?", key).Exists(ctx)
	if err != nil {
		return classify(fmt.Errorf("check cache entry: %w", err))
	}
	if exists {
		return s.update(ctx, entry)
	}

	_, err = s.db.NewInsert().Model(entry).Exec(ctx)
	if err == nil {
		return nil
	}
	if !isUniqueViolation(err) {
		return classify(fmt.Errorf("insert cache entry: %w", err))
	}

	metrics.CacheWriteRaces.Inc()
	s.logr.Debug("cache write race, updating instead", zap.String("cache_key", key))
	return s.update(ctx, entry)
}

func (s *KMLCacheStore) update(ctx context.Context, entry *models.KMLCache) error {
	_, err := s.db.NewUpdate().
		Model(entry).
		Column("kml_content", "parameters", "created_at").
		Where("cache_key = ?", entry.CacheKey).
		Exec(ctx)
	if err != nil {
		return classify(fmt.Errorf("update cache entry: %w", err))
	}
	return nil
}

func (s *KMLCacheStore) Invalidate(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().Model((*models.KMLCache)(nil)).Where("cache_key = ?", key).Exec(ctx)
	if err != nil {
		return classify(fmt.Errorf("delete cache entry: %w", err))
	}
	return nil
}

// Clear deletes every entry and records the reset in the system log.
func (s *KMLCacheStore) Clear(ctx context.Context, performedBy string) (int64, error) {
	var deleted int64
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().Model((*models.KMLCache)(nil)).Where("1 = 1").Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete cache entries: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return s.writeLog(ctx, tx, models.ActionCacheClear, performedBy,
			fmt.Sprintf("deleted %d cache entries", deleted))
	})
	if err != nil {
		return 0, classify(err)
	}
	return deleted, nil
}

// Status reports whether the table is usable, how many entries it holds
// and the most recent one. A missing table is reported, not returned.
func (s *KMLCacheStore) Status(ctx context.Context) (*CacheStatus, error) {
	count, err := s.db.NewSelect().Model((*models.KMLCache)(nil)).Count(ctx)
	if err != nil {
		if isUndefinedTable(err) {
			return &CacheStatus{Available: false, Error: "kml_cache table does not exist"}, nil
		}
		return nil, fmt.Errorf("count cache entries: %w", err)
	}

	status := &CacheStatus{Available: true, Count: count}
	if count == 0 {
		return status, nil
	}

	last := new(models.KMLCache)
	err = s.db.NewSelect().
		Model(last).
		ExcludeColumn("kml_content").
		OrderExpr("kc.created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("select last cache entry: %w", err)
	}
	if err == nil {
		status.LastEntry = last
	}
	return status, nil
}

// LastReset returns when the cache was last cleared, falling back to the
// oldest entry's creation time. The zero time means unknown.
func (s *KMLCacheStore) LastReset(ctx context.Context) (time.Time, error) {
	var entry models.SystemLog
	err := s.db.NewSelect().
		Model(&entry).
		Where("sl.action = ?", models.ActionCacheClear).
		OrderExpr("sl.timestamp DESC").
		Limit(1).
		Scan(ctx)
	switch {
	case err == nil:
		return entry.Timestamp, nil
	case errors.Is(err, sql.ErrNoRows), isUndefinedTable(err):
	default:
		return time.Time{}, fmt.Errorf("select last reset: %w", err)
	}

	var oldest models.KMLCache
	err = s.db.NewSelect().
		Model(&oldest).
		Column("kc.created_at").
		OrderExpr("kc.created_at ASC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) || isUndefinedTable(err) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("select oldest cache entry: %w", err)
	}
	return oldest.CreatedAt, nil
}

// Recreate provisions the cache tables if missing and records it.
func (s *KMLCacheStore) Recreate(ctx context.Context, performedBy string) error {
	if err := database.EnsureCacheSchema(ctx, s.db); err != nil {
		return err
	}
	return s.LogAction(ctx, models.ActionCacheRecreate, performedBy,
		"KML cache table recreated via admin maintenance")
}

// LogAction appends an admin action to the system log.
func (s *KMLCacheStore) LogAction(ctx context.Context, action, performedBy, details string) error {
	return s.writeLog(ctx, s.db, action, performedBy, details)
}

func (s *KMLCacheStore) writeLog(ctx context.Context, db bun.IDB, action, performedBy, details string) error {
	entry := &models.SystemLog{
		ID:          uuid.New(),
		Action:      action,
		PerformedBy: performedBy,
		Details:     details,
		Timestamp:   s.now(),
	}
	if _, err := db.NewInsert().Model(entry).Exec(ctx); err != nil {
		return fmt.Errorf("insert system log: %w", err)
	}
	return nil
}
