package mapdata

import (
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/ridefinder/ridefinder/internal/geo"
)

// overpassDocument is the top level of an Overpass API JSON response.
// Elements are kept raw so one malformed element cannot fail the whole document.
type overpassDocument struct {
	Elements *[]json.RawMessage `json:"elements"`
}

type overpassElement struct {
	Type  string   `json:"type"`
	ID    *int64   `json:"id"`
	Lat   *float64 `json:"lat"`
	Lon   *float64 `json:"lon"`
	Nodes []int64  `json:"nodes"`
}

// errNoElements is returned for documents without an "elements" array.
var errNoElements = errors.New(`document has no "elements" array`)

// DecodeOverpass decodes an Overpass-style JSON document:
//
//	{"elements": [{"type": "node", "id": 1, "lat": 52.1, "lon": 4.3},
//	              {"type": "way", "id": 7, "nodes": [1, 2, 3]}]}
//
// Nodes without id/lat/lon and ways with fewer than two node ids are skipped.
// Unknown element types are ignored.
func DecodeOverpass(r io.Reader) (*Dataset, error) {
	var doc overpassDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode overpass document: %w", err)
	}
	if doc.Elements == nil {
		return nil, errNoElements
	}

	ds := &Dataset{}
	for _, raw := range *doc.Elements {
		var el overpassElement
		if err := json.Unmarshal(raw, &el); err != nil {
			ds.Skipped++
			continue
		}

		switch el.Type {
		case "node":
			if el.ID == nil || el.Lat == nil || el.Lon == nil {
				ds.Skipped++
				continue
			}
			ds.Points = append(ds.Points, Point{
				ID:         *el.ID,
				Coordinate: geo.Coordinate{Lat: *el.Lat, Lon: *el.Lon},
			})
		case "way":
			if len(el.Nodes) < 2 {
				ds.Skipped++
				continue
			}
			var id int64
			if el.ID != nil {
				id = *el.ID
			}
			ds.Ways = append(ds.Ways, Way{ID: id, NodeIDs: el.Nodes})
		default:
			ds.Ignored++
		}
	}

	return ds, nil
}
