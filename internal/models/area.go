package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Council is a municipal authority owning zero or more areas
type Council struct {
	bun.BaseModel `bun:"table:council,alias:c"`

	ID   int64  `bun:"id,pk,autoincrement" json:"id"`
	Name string `bun:"name,notnull" json:"name"`
}

// Area is a named collection zone belonging to one council
type Area struct {
	bun.BaseModel `bun:"table:area,alias:a"`

	ID        int64    `bun:"id,pk,autoincrement" json:"id"`
	Name      string   `bun:"name,notnull" json:"name"`
	CouncilID int64    `bun:"council_id" json:"council_id"`
	Council   *Council `bun:"rel:belongs-to,join:council_id=id" json:"council,omitempty"`
}

// CouncilName returns the joined council name, or empty when not loaded
func (a *Area) CouncilName() string {
	if a.Council == nil {
		return ""
	}
	return a.Council.Name
}

// AreaPolygon holds one persisted boundary of an area.
// Coordinates is either "lng,lat,alt lng,lat,alt ..." or a JSON array of {lat,lng}.
type AreaPolygon struct {
	bun.BaseModel `bun:"table:area_polygon,alias:ap"`

	ID          int64  `bun:"id,pk,autoincrement" json:"id"`
	AreaID      int64  `bun:"area_id,notnull" json:"area_id"`
	Coordinates string `bun:"coordinates" json:"coordinates"`
}

// AreaPickup is one scheduled collection for an area
type AreaPickup struct {
	bun.BaseModel `bun:"table:area_pickup,alias:pk"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	AreaID    int64     `bun:"area_id,notnull" json:"area_id"`
	StartDate time.Time `bun:"start_date,type:date,notnull" json:"start_date"`
}
