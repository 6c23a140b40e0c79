package kml

import (
	"fmt"
	"regexp"
	"strings"
)

// Alpha channels used in KML styles.
const (
	AlphaNormal    byte = 0xff
	AlphaHighlight byte = 0x73 // ~45%
)

var defaultColors = []string{
	"#ff4000", // week 0, red
	"#ffbf00",
	"#ffff00",
	"#bfff00",
	"#80ff00",
	"#40ff00",
	"#00ff00",
	"#00ff40",
	"#00ff80",
	"#00ffbf",
	"#00ffff",
	"#00bfff",
	"#0080ff",
	"#0040ff",
	"#0000ff", // week 14, blue
	"#808080", // default, past or unknown
}

var hexColor = regexp.MustCompile(`^#[0-9a-f]{6}$`)

// ColorScheme maps week buckets to #rrggbb colours.
type ColorScheme struct {
	weeks    [MaxBucket + 1]string
	fallback string
}

// DefaultColorScheme is the red-to-blue scheme used by the public map.
func DefaultColorScheme() ColorScheme {
	s, _ := NewColorScheme(defaultColors)
	return s
}

// NewColorScheme takes 16 hex colours: weeks 0..14 followed by the default.
func NewColorScheme(colors []string) (ColorScheme, error) {
	var s ColorScheme
	if len(colors) != int(MaxBucket)+2 {
		return s, fmt.Errorf("color scheme needs %d colors, got %d", MaxBucket+2, len(colors))
	}
	for i, c := range colors {
		c = strings.ToLower(strings.TrimSpace(c))
		if !strings.HasPrefix(c, "#") {
			c = "#" + c
		}
		if !hexColor.MatchString(c) {
			return ColorScheme{}, fmt.Errorf("color %d: %q is not #rrggbb", i, colors[i])
		}
		if i <= int(MaxBucket) {
			s.weeks[i] = c
		} else {
			s.fallback = c
		}
	}
	return s, nil
}

// ColorFor returns the web/CSS colour of a bucket.
func (s ColorScheme) ColorFor(b WeekBucket) string {
	if b < 0 || b > MaxBucket {
		return s.fallback
	}
	return s.weeks[b]
}

// KMLColor returns the bucket colour in KML aabbggrr order.
func (s ColorScheme) KMLColor(b WeekBucket, alpha byte) string {
	return ToKMLColor(s.ColorFor(b), alpha)
}

// ToKMLColor reorders #rrggbb into aabbggrr.
func ToKMLColor(hex string, alpha byte) string {
	h := strings.TrimPrefix(hex, "#")
	if len(h) != 6 {
		return fmt.Sprintf("%02x000000", alpha)
	}
	r, g, b := h[0:2], h[2:4], h[4:6]
	return fmt.Sprintf("%02x%s%s%s", alpha, b, g, r)
}

// Style is one KML <Style> definition.
type Style struct {
	ID        string
	LineColor string
	LineWidth float64
	PolyColor string
}

// StyleSet is the normal/highlight pair behind one StyleMap.
type StyleSet struct {
	ID        string
	Normal    Style
	Highlight Style
}

// StyleBlock derives the KML styles of a bucket.
func (s ColorScheme) StyleBlock(b WeekBucket) StyleSet {
	id := b.StyleID()
	return StyleSet{
		ID: id,
		Normal: Style{
			ID:        id + "-normal",
			LineColor: s.KMLColor(b, AlphaNormal),
			LineWidth: 3,
			PolyColor: s.KMLColor(b, AlphaNormal),
		},
		Highlight: Style{
			ID:        id + "-highlight",
			LineColor: s.KMLColor(b, AlphaHighlight),
			LineWidth: 4.5,
			PolyColor: s.KMLColor(b, AlphaHighlight),
		},
	}
}

// Catalogue returns the style sets for every bucket, in AllBuckets order.
func (s ColorScheme) Catalogue() []StyleSet {
	buckets := AllBuckets()
	out := make([]StyleSet, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, s.StyleBlock(b))
	}
	return out
}
