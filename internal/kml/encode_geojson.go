package kml

import (
	"encoding/json"
	"fmt"
)

// FeatureCollection is the in-browser map rendering of a document.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
	Count    int       `json:"count"`
}

type Feature struct {
	Type       string            `json:"type"`
	ID         int64             `json:"id"`
	Geometry   Geometry          `json:"geometry"`
	Properties FeatureProperties `json:"properties"`
}

type Geometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

type FeatureProperties struct {
	Area            string  `json:"area"`
	Council         string  `json:"council"`
	NextPickup      string  `json:"nextPickup"`
	NextPickupLabel string  `json:"nextPickupLabel"`
	Description     string  `json:"description"`
	Bucket          int     `json:"bucket"`
	StyleID         string  `json:"styleId"`
	Color           string  `json:"color"`
	StrokeOpacity   float64 `json:"strokeOpacity"`
	StrokeWeight    int     `json:"strokeWeight"`
	FillOpacity     float64 `json:"fillOpacity"`
}

// ToFeatureCollection converts render units into GeoJSON features.
// Rings are closed as GeoJSON requires.
func ToFeatureCollection(doc *Document) FeatureCollection {
	fc := FeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]Feature, 0, len(doc.Units)),
	}
	for i := range doc.Units {
		u := &doc.Units[i]
		fc.Features = append(fc.Features, Feature{
			Type:     "Feature",
			ID:       u.AreaID,
			Geometry: toGeometry(u),
			Properties: FeatureProperties{
				Area:            u.AreaName,
				Council:         u.CouncilName,
				NextPickup:      u.NextPickup.Format(DateLayout),
				NextPickupLabel: u.NextPickupLabel,
				Description:     u.Description,
				Bucket:          int(u.Bucket),
				StyleID:         u.StyleID(),
				Color:           u.Color,
				StrokeOpacity:   0.8,
				StrokeWeight:    2,
				FillOpacity:     0.35,
			},
		})
	}
	fc.Count = len(fc.Features)
	return fc
}

// EncodeFeatureCollection renders the document as GeoJSON.
func EncodeFeatureCollection(doc *Document) (string, error) {
	b, err := json.Marshal(ToFeatureCollection(doc))
	if err != nil {
		return "", fmt.Errorf("encode geojson: %w", err)
	}
	return string(b), nil
}

func toGeometry(u *RenderUnit) Geometry {
	if !u.IsMulti() {
		return Geometry{Type: "Polygon", Coordinates: [][][2]float64{closedRing(u.Polygons[0])}}
	}
	multi := make([][][][2]float64, 0, len(u.Polygons))
	for _, ring := range u.Polygons {
		multi = append(multi, [][][2]float64{closedRing(ring)})
	}
	return Geometry{Type: "MultiPolygon", Coordinates: multi}
}

func closedRing(pts []Point) [][2]float64 {
	out := make([][2]float64, 0, len(pts)+1)
	for _, p := range pts {
		out = append(out, [2]float64{p.Lng, p.Lat})
	}
	if len(pts) > 0 && pts[0] != pts[len(pts)-1] {
		out = append(out, [2]float64{pts[0].Lng, pts[0].Lat})
	}
	return out
}
