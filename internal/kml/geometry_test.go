package kml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEncodings(t *testing.T) {
	want := []Point{{Lng: 2, Lat: 1}, {Lng: 4, Lat: 3}}

	fromJSON, err := Normalize(`[{"lat":1,"lng":2},{"lat":3,"lng":4}]`)
	require.NoError(t, err)
	assert.Equal(t, want, fromJSON)

	fromText, err := Normalize("2,1,0 4,3,0")
	require.NoError(t, err)
	assert.Equal(t, want, fromText)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	pts, err := Normalize(`[{"lat":-31.95,"lng":115.86},{"lat":-31.96,"lng":115.87},{"lat":-31.97,"lng":115.85}]`)
	require.NoError(t, err)

	again, err := Normalize(FormatCoordinates(pts))
	require.NoError(t, err)
	assert.Equal(t, pts, again)
	assert.Equal(t, "115.86,-31.95,0 115.87,-31.96,0 115.85,-31.97,0", FormatCoordinates(again))
}

func TestNormalizeSkipsBadEntries(t *testing.T) {
	pts, err := Normalize(`[{"lat":1,"lng":2},{"lat":"x","lng":9},{"lng":5},{"lat":true,"lng":1},7,{"lat":3,"lng":4}]`)
	require.NoError(t, err)
	assert.Equal(t, []Point{{Lng: 2, Lat: 1}, {Lng: 4, Lat: 3}}, pts)

	pts, err = Normalize(`[{"lat":"1","lng":"2"},{"lat":3,"lng":" 4 "},{"lat":5,"lng":6}]`)
	require.NoError(t, err)
	assert.Equal(t, []Point{{Lng: 2, Lat: 1}, {Lng: 4, Lat: 3}, {Lng: 6, Lat: 5}}, pts)

	pts, err = Normalize("2,1 bogus 4 x,3 4,3,0\n6,5")
	require.NoError(t, err)
	assert.Equal(t, []Point{{Lng: 2, Lat: 1}, {Lng: 4, Lat: 3}, {Lng: 6, Lat: 5}}, pts)
}

func TestNormalizeRejectsEmpty(t *testing.T) {
	for _, raw := range []string{"", "   ", "[]", "nonsense", `{"lat":1}`} {
		_, err := Normalize(raw)
		assert.ErrorIs(t, err, ErrInvalidGeometry, raw)
	}
}
