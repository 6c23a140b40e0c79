package kml

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MinRingPoints is the smallest ring a polygon may render with.
const MinRingPoints = 3

// Point is a longitude/latitude pair.
type Point struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

type latLng struct {
	Lat any `json:"lat"`
	Lng any `json:"lng"`
}

// Normalize converts a stored polygon into ordered (lng, lat) points.
//
// Two encodings are accepted: a JSON array of {lat, lng} objects, or a
// whitespace separated list of "lng,lat[,alt]" tokens. Unusable entries are
// dropped; if nothing usable remains ErrInvalidGeometry is returned.
func Normalize(raw string) ([]Point, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("%w: empty coordinates", ErrInvalidGeometry)
	}

	var pts []Point
	if s[0] == '[' || s[0] == '{' {
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(s), &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
		}
		pts = make([]Point, 0, len(items))
		for _, raw := range items {
			var it latLng
			if err := json.Unmarshal(raw, &it); err != nil {
				continue
			}
			lat, ok := coordinate(it.Lat)
			if !ok {
				continue
			}
			lng, ok := coordinate(it.Lng)
			if !ok {
				continue
			}
			pts = append(pts, Point{Lng: lng, Lat: lat})
		}
	} else {
		tokens := strings.Fields(s)
		pts = make([]Point, 0, len(tokens))
		for _, tok := range tokens {
			parts := strings.Split(tok, ",")
			if len(parts) < 2 {
				continue
			}
			lng, err := strconv.ParseFloat(parts[0], 64)
			if err != nil || !finite(lng) {
				continue
			}
			lat, err := strconv.ParseFloat(parts[1], 64)
			if err != nil || !finite(lat) {
				continue
			}
			pts = append(pts, Point{Lng: lng, Lat: lat})
		}
	}

	if len(pts) == 0 {
		return nil, fmt.Errorf("%w: no usable coordinates", ErrInvalidGeometry)
	}
	return pts, nil
}

// FormatCoordinates renders points as KML "lng,lat,0" tuples.
func FormatCoordinates(pts []Point) string {
	var b strings.Builder
	for i, p := range pts {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatFloat(p.Lng, 'f', -1, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(p.Lat, 'f', -1, 64))
		b.WriteString(",0")
	}
	return b.String()
}

// coordinate accepts JSON numbers and numeric strings.
func coordinate(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, finite(x)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil && finite(f)
	default:
		return 0, false
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
