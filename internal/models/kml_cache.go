package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CacheParams are the request inputs a cache entry was generated from
type CacheParams struct {
	Format    string `json:"format,omitempty"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	CouncilID *int64 `json:"councilId,omitempty"`
}

// KMLCache is one generated document keyed by its request parameters
type KMLCache struct {
	bun.BaseModel `bun:"table:kml_cache,alias:kc"`

	ID         int64       `bun:"id,pk,autoincrement" json:"id"`
	CacheKey   string      `bun:"cache_key,notnull,unique" json:"cache_key"`
	Content    string      `bun:"kml_content,notnull" json:"-"`
	Parameters CacheParams `bun:"parameters,type:jsonb" json:"parameters"`
	CreatedAt  time.Time   `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// SystemLog records admin maintenance actions
type SystemLog struct {
	bun.BaseModel `bun:"table:system_log,alias:sl"`

	ID          uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Action      string    `bun:"action,notnull" json:"action"`
	PerformedBy string    `bun:"performed_by" json:"performed_by"`
	Details     string    `bun:"details" json:"details"`
	Timestamp   time.Time `bun:"timestamp,notnull,default:current_timestamp" json:"timestamp"`
}

const (
	ActionCacheClear    = "kml_cache_clear"
	ActionCacheRecreate = "kml_cache_recreate"
)
