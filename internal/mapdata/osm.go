package mapdata

import (
	"context"
	"io"
	"runtime"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"

	"github.com/ridefinder/ridefinder/internal/geo"
)

// DecodePBF reads an OSM protobuf extract.
func DecodePBF(ctx context.Context, r io.Reader) (*Dataset, error) {
	scanner := osmpbf.New(ctx, r, runtime.GOMAXPROCS(-1))
	scanner.SkipRelations = true
	return decodeOSM(scanner)
}

// DecodeOSMXML reads an OSM XML document.
func DecodeOSMXML(ctx context.Context, r io.Reader) (*Dataset, error) {
	return decodeOSM(osmxml.New(ctx, r))
}

func decodeOSM(scanner osm.Scanner) (*Dataset, error) {
	defer scanner.Close()

	ds := &Dataset{}
	for scanner.Scan() {
		switch object := scanner.Object().(type) {
		case *osm.Node:
			ds.Points = append(ds.Points, Point{
				ID:         int64(object.ID),
				Coordinate: geo.Coordinate{Lat: object.Lat, Lon: object.Lon},
			})
		case *osm.Way:
			if len(object.Nodes) < 2 {
				ds.Skipped++
				continue
			}
			ids := make([]int64, len(object.Nodes))
			for i, wn := range object.Nodes {
				ids[i] = int64(wn.ID)
			}
			ds.Ways = append(ds.Ways, Way{ID: int64(object.ID), NodeIDs: ids})
		default:
			ds.Ignored++
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ds, nil
}
