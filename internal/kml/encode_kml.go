package kml

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

const (
	kmlNamespace  = "http://www.opengis.net/kml/2.2"
	documentName  = "Vergeside Pickups"
	overlayFolder = "Vergeside Overlays"
)

type kmlRoot struct {
	XMLName  xml.Name    `xml:"kml"`
	Xmlns    string      `xml:"xmlns,attr"`
	Document kmlDocument `xml:"Document"`
}

type kmlDocument struct {
	Name        string        `xml:"name"`
	Description string        `xml:"description"`
	Styles      []kmlStyle    `xml:"Style"`
	StyleMaps   []kmlStyleMap `xml:"StyleMap"`
	Folder      kmlFolder     `xml:"Folder"`
}

type kmlStyle struct {
	ID        string       `xml:"id,attr"`
	LineStyle kmlLineStyle `xml:"LineStyle"`
	PolyStyle kmlPolyStyle `xml:"PolyStyle"`
}

type kmlLineStyle struct {
	Color string  `xml:"color"`
	Width float64 `xml:"width"`
}

type kmlPolyStyle struct {
	Color   string `xml:"color"`
	Fill    int    `xml:"fill"`
	Outline int    `xml:"outline"`
}

type kmlStyleMap struct {
	ID    string    `xml:"id,attr"`
	Pairs []kmlPair `xml:"Pair"`
}

type kmlPair struct {
	Key      string `xml:"key"`
	StyleURL string `xml:"styleUrl"`
}

type kmlFolder struct {
	Name       string         `xml:"name"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	Name          string            `xml:"name"`
	Description   string            `xml:"description"`
	StyleURL      string            `xml:"styleUrl"`
	ExtendedData  kmlExtendedData   `xml:"ExtendedData"`
	Polygon       *kmlPolygon       `xml:"Polygon,omitempty"`
	MultiGeometry *kmlMultiGeometry `xml:"MultiGeometry,omitempty"`
}

type kmlExtendedData struct {
	Data []kmlData `xml:"Data"`
}

type kmlData struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

type kmlMultiGeometry struct {
	Polygons []kmlPolygon `xml:"Polygon"`
}

type kmlPolygon struct {
	Outer kmlBoundary `xml:"outerBoundaryIs"`
}

type kmlBoundary struct {
	LinearRing kmlLinearRing `xml:"LinearRing"`
}

type kmlLinearRing struct {
	Tessellate  int    `xml:"tessellate"`
	Coordinates string `xml:"coordinates"`
}

// EncodeKML renders the document as KML with the full style catalogue.
func EncodeKML(doc *Document) (string, error) {
	root := kmlRoot{
		Xmlns: kmlNamespace,
		Document: kmlDocument{
			Name: documentName,
			Description: fmt.Sprintf("Vergeside collection dates from %s to %s",
				doc.Range.StartString(), doc.Range.EndString()),
			Folder: kmlFolder{Name: overlayFolder},
		},
	}

	for _, set := range doc.Scheme.Catalogue() {
		root.Document.Styles = append(root.Document.Styles, toKMLStyle(set.Normal), toKMLStyle(set.Highlight))
		root.Document.StyleMaps = append(root.Document.StyleMaps, kmlStyleMap{
			ID: set.ID,
			Pairs: []kmlPair{
				{Key: "normal", StyleURL: "#" + set.Normal.ID},
				{Key: "highlight", StyleURL: "#" + set.Highlight.ID},
			},
		})
	}

	for i := range doc.Units {
		root.Document.Folder.Placemarks = append(root.Document.Folder.Placemarks, toPlacemark(&doc.Units[i]))
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(root); err != nil {
		return "", fmt.Errorf("encode kml: %w", err)
	}
	buf.WriteByte('\n')
	return buf.String(), nil
}

func toKMLStyle(s Style) kmlStyle {
	return kmlStyle{
		ID:        s.ID,
		LineStyle: kmlLineStyle{Color: s.LineColor, Width: s.LineWidth},
		PolyStyle: kmlPolyStyle{Color: s.PolyColor, Fill: 1, Outline: 1},
	}
}

func toPlacemark(u *RenderUnit) kmlPlacemark {
	pm := kmlPlacemark{
		Name:        u.AreaName,
		Description: u.Description,
		StyleURL:    "#" + u.StyleID(),
		ExtendedData: kmlExtendedData{Data: []kmlData{
			{Name: "council", Value: u.CouncilName},
			{Name: "nextPickup", Value: u.NextPickupLabel},
			{Name: "color", Value: u.Color},
		}},
	}

	polys := make([]kmlPolygon, 0, len(u.Polygons))
	for _, ring := range u.Polygons {
		polys = append(polys, kmlPolygon{Outer: kmlBoundary{LinearRing: kmlLinearRing{
			Tessellate:  1,
			Coordinates: FormatCoordinates(ring),
		}}})
	}
	if u.IsMulti() {
		pm.MultiGeometry = &kmlMultiGeometry{Polygons: polys}
	} else if len(polys) == 1 {
		pm.Polygon = &polys[0]
	}
	return pm
}
