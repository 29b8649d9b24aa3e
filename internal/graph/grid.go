package graph

import (
	"math"

	"github.com/ridefinder/ridefinder/internal/geo"
)

// DefaultCellSizeDeg is the grid cell edge used by NewGridIndex when none is given (~5.5 km of latitude).
const DefaultCellSizeDeg = 0.05

// boxMargin widens search boxes so floating-point error cannot exclude a node on the radius.
const boxMargin = 1e-9

type cell struct {
	row int32
	col int32
}

// GridIndex buckets nodes into a uniform lat/lon grid. Only cells intersecting the
// bounding box of the search circle are scanned. Queries whose circle reaches a pole
// or crosses the antimeridian fall back to a linear scan. Results are identical to
// LinearLocator's.
type GridIndex struct {
	g        *Graph
	cellSize float64
	cells    map[cell][]NodeID
	linear   *LinearLocator
}

// NewGridIndex indexes every node of g. A non-positive cellSizeDeg means DefaultCellSizeDeg.
func NewGridIndex(g *Graph, cellSizeDeg float64) *GridIndex {
	if cellSizeDeg <= 0 {
		cellSizeDeg = DefaultCellSizeDeg
	}

	idx := &GridIndex{
		g:        g,
		cellSize: cellSizeDeg,
		cells:    make(map[cell][]NodeID),
		linear:   NewLinearLocator(g),
	}
	for i, c := range g.coords {
		k := idx.cellOf(c.Lat, c.Lon)
		idx.cells[k] = append(idx.cells[k], NodeID(i))
	}
	return idx
}

func (x *GridIndex) cellOf(lat, lon float64) cell {
	return cell{
		row: int32(math.Floor((lat + 90) / x.cellSize)),
		col: int32(math.Floor((lon + 180) / x.cellSize)),
	}
}

// Nearest implements Locator.
func (x *GridIndex) Nearest(query geo.Coordinate, maxRadiusKm float64) (NodeID, float64, error) {
	radius := searchRadius(maxRadiusKm)

	box, ok := geo.RadiusBox(query, radius)
	if !ok {
		return x.linear.Nearest(query, radius)
	}

	lo := x.cellOf(box.MinLat-boxMargin, box.MinLon-boxMargin)
	hi := x.cellOf(box.MaxLat+boxMargin, box.MaxLon+boxMargin)

	best := NodeID(-1)
	bestDist := 0.0
	consider := func(ids []NodeID) {
		for _, id := range ids {
			d := geo.Distance(query, x.g.coords[id])
			if best < 0 || d < bestDist || (d == bestDist && id < best) {
				best, bestDist = id, d
			}
		}
	}

	span := (int64(hi.row-lo.row) + 1) * (int64(hi.col-lo.col) + 1)
	if span > int64(len(x.cells)) {
		for k, ids := range x.cells {
			if k.row >= lo.row && k.row <= hi.row && k.col >= lo.col && k.col <= hi.col {
				consider(ids)
			}
		}
	} else {
		for row := lo.row; row <= hi.row; row++ {
			for col := lo.col; col <= hi.col; col++ {
				consider(x.cells[cell{row: row, col: col}])
			}
		}
	}

	if best < 0 || bestDist > radius {
		return 0, 0, ErrNodeNotFound
	}
	return best, bestDist, nil
}
