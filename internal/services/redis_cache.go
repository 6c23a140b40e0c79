package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"vergeside/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "vergeside:kml:"

type redisEntry struct {
	Content    string             `json:"content"`
	Parameters models.CacheParams `json:"parameters"`
	CreatedAt  time.Time          `json:"createdAt"`
}

// RedisCacheStore keeps documents in redis with the cache TTL as expiry.
type RedisCacheStore struct {
	rc  *redis.Client
	ttl time.Duration
	now func() time.Time
}

var _ CacheStore = (*RedisCacheStore)(nil)

func NewRedisCacheStore(rc *redis.Client, ttl time.Duration) *RedisCacheStore {
	return &RedisCacheStore{rc: rc, ttl: ttl, now: time.Now}
}

func (s *RedisCacheStore) Get(ctx context.Context, key string) (*models.KMLCache, error) {
	raw, err := s.rc.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var e redisEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode redis entry: %w", err)
	}
	return &models.KMLCache{
		CacheKey:   key,
		Content:    e.Content,
		Parameters: e.Parameters,
		CreatedAt:  e.CreatedAt,
	}, nil
}

func (s *RedisCacheStore) Put(ctx context.Context, key, content string, params models.CacheParams) error {
	return s.set(ctx, key, redisEntry{Content: content, Parameters: params, CreatedAt: s.now()}, s.ttl)
}

// backfill stores an entry built elsewhere for the rest of its lifetime.
func (s *RedisCacheStore) backfill(ctx context.Context, key string, e redisEntry) error {
	ttl := s.ttl
	if !e.CreatedAt.IsZero() {
		ttl -= s.now().Sub(e.CreatedAt)
	}
	if ttl <= 0 {
		return nil
	}
	return s.set(ctx, key, e, ttl)
}

func (s *RedisCacheStore) set(ctx context.Context, key string, e redisEntry, ttl time.Duration) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode redis entry: %w", err)
	}
	if err := s.rc.Set(ctx, redisKeyPrefix+key, b, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisCacheStore) Invalidate(ctx context.Context, key string) error {
	if err := s.rc.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Clear removes every cached document from redis.
func (s *RedisCacheStore) Clear(ctx context.Context) (int64, error) {
	var deleted int64
	iter := s.rc.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n, err := s.rc.Del(ctx, iter.Val()).Result()
		if err != nil {
			return deleted, fmt.Errorf("redis del: %w", err)
		}
		deleted += n
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("redis scan: %w", err)
	}
	return deleted, nil
}

// LayeredCacheStore reads redis first and falls back to the durable store,
// back-filling redis on a durable hit. Writes go to both tiers; only the
// durable tier's errors are returned.
type LayeredCacheStore struct {
	fast    *RedisCacheStore
	durable CacheStore
	logr    *zap.Logger
}

var _ CacheStore = (*LayeredCacheStore)(nil)

func NewLayeredCacheStore(fast *RedisCacheStore, durable CacheStore, logr *zap.Logger) *LayeredCacheStore {
	return &LayeredCacheStore{fast: fast, durable: durable, logr: logr}
}

func (s *LayeredCacheStore) Get(ctx context.Context, key string) (*models.KMLCache, error) {
	entry, err := s.fast.Get(ctx, key)
	if err != nil {
		s.logr.Warn("redis cache read failed", zap.String("cache_key", key), zap.Error(err))
	}
	if entry != nil {
		return entry, nil
	}

	entry, err = s.durable.Get(ctx, key)
	if err != nil || entry == nil {
		return entry, err
	}
	fill := redisEntry{Content: entry.Content, Parameters: entry.Parameters, CreatedAt: entry.CreatedAt}
	if err := s.fast.backfill(ctx, key, fill); err != nil {
		s.logr.Warn("redis back-fill failed", zap.String("cache_key", key), zap.Error(err))
	}
	return entry, nil
}

func (s *LayeredCacheStore) Put(ctx context.Context, key, content string, params models.CacheParams) error {
	if err := s.durable.Put(ctx, key, content, params); err != nil {
		return err
	}
	if err := s.fast.Put(ctx, key, content, params); err != nil {
		s.logr.Warn("redis cache write failed", zap.String("cache_key", key), zap.Error(err))
	}
	return nil
}

func (s *LayeredCacheStore) Invalidate(ctx context.Context, key string) error {
	if err := s.fast.Invalidate(ctx, key); err != nil {
		s.logr.Warn("redis cache invalidate failed", zap.String("cache_key", key), zap.Error(err))
	}
	return s.durable.Invalidate(ctx, key)
}

// Flush empties the fast tier after the durable store has been cleared.
func (s *LayeredCacheStore) Flush(ctx context.Context) (int64, error) {
	return s.fast.Clear(ctx)
}
