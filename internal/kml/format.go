package kml

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Format selects the rendering target for a document.
type Format string

const (
	FormatKML     Format = "kml"
	FormatGeoJSON Format = "geojson"
)

const (
	KMLContentType     = "application/vnd.google-earth.kml+xml"
	GeoJSONContentType = "application/geo+json"
)

func (f Format) Valid() bool {
	return f == FormatKML || f == FormatGeoJSON
}

func (f Format) ContentType() string {
	if f == FormatGeoJSON {
		return GeoJSONContentType
	}
	return KMLContentType
}

// Encode renders doc in this format.
func (f Format) Encode(doc *Document) (string, error) {
	switch f {
	case FormatKML:
		return EncodeKML(doc)
	case FormatGeoJSON:
		return EncodeFeatureCollection(doc)
	default:
		return "", fmt.Errorf("unknown document format %q", string(f))
	}
}

// CacheKey derives the stable cache key of a request: the hex md5 of
// "<format>-<start>-<end>-<councilId|all>".
func CacheKey(f Format, r DateRange, councilID *int64) string {
	council := "all"
	if councilID != nil {
		council = strconv.FormatInt(*councilID, 10)
	}
	sum := md5.Sum([]byte(string(f) + "-" + r.StartString() + "-" + r.EndString() + "-" + council))
	return hex.EncodeToString(sum[:])
}
