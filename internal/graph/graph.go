// Package graph builds the immutable road graph used for routing and locates the
// graph node nearest to an arbitrary coordinate.
package graph

import (
	"github.com/ridefinder/ridefinder/internal/geo"
	"github.com/ridefinder/ridefinder/internal/mapdata"
)

// NodeID is a dense index into a Graph's node table.
type NodeID int32

// Edge is one direction of an undirected road segment.
type Edge struct {
	To     NodeID
	Weight float64 // kilometers
}

// EdgeKey identifies a directed edge. EdgeKey{From: a, To: b} and EdgeKey{From: b, To: a}
// are distinct keys.
type EdgeKey struct {
	From NodeID
	To   NodeID
}

// Graph is an undirected, weighted road graph. Nodes are identified by their exact
// coordinate; every segment is stored in both directions with the same weight.
// A Graph is never modified after construction and is safe for concurrent readers.
type Graph struct {
	coords []geo.Coordinate
	index  map[geo.Coordinate]NodeID
	adj    [][]Edge
	edges  int
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.coords)
}

// EdgeCount returns the number of undirected segments.
func (g *Graph) EdgeCount() int {
	return g.edges
}

// Contains reports whether id names a node of g.
func (g *Graph) Contains(id NodeID) bool {
	return id >= 0 && int(id) < len(g.coords)
}

// Coordinate returns the coordinate of node id. id must satisfy Contains.
func (g *Graph) Coordinate(id NodeID) geo.Coordinate {
	return g.coords[id]
}

// Lookup returns the node at exactly c.
func (g *Graph) Lookup(c geo.Coordinate) (NodeID, bool) {
	id, ok := g.index[c]
	return id, ok
}

// Neighbors returns the outgoing edges of id. The slice is shared and must not be modified.
func (g *Graph) Neighbors(id NodeID) []Edge {
	if !g.Contains(id) {
		return nil
	}
	return g.adj[id]
}

// Weight returns the weight of the edge from -> to.
func (g *Graph) Weight(from, to NodeID) (float64, bool) {
	for _, e := range g.Neighbors(from) {
		if e.To == to {
			return e.Weight, true
		}
	}
	return 0, false
}

// Coordinates maps a node sequence to its coordinates.
func (g *Graph) Coordinates(ids []NodeID) []geo.Coordinate {
	coords := make([]geo.Coordinate, len(ids))
	for i, id := range ids {
		coords[i] = g.coords[id]
	}
	return coords
}

// BuildStats summarises a graph build.
type BuildStats struct {
	Points        int `json:"points"`        // points with a usable coordinate
	SkippedPoints int `json:"skippedPoints"` // points with out-of-range coordinates
	Ways          int `json:"ways"`          // ways with at least two resolvable points
	SkippedWays   int `json:"skippedWays"`   // ways with fewer than two resolvable points
	Nodes         int `json:"nodes"`
	Edges         int `json:"edges"`
}

// Builder accumulates ways into a Graph.
type Builder struct {
	g     *Graph
	stats BuildStats
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		g: &Graph{index: make(map[geo.Coordinate]NodeID)},
	}
}

// AddNode returns the node at c, creating it if needed.
func (b *Builder) AddNode(c geo.Coordinate) NodeID {
	if id, ok := b.g.index[c]; ok {
		return id
	}
	id := NodeID(len(b.g.coords))
	b.g.coords = append(b.g.coords, c)
	b.g.adj = append(b.g.adj, nil)
	b.g.index[c] = id
	return id
}

// AddWay adds a segment between every consecutive pair of coordinates.
// Ways with fewer than two coordinates are rejected.
func (b *Builder) AddWay(coords []geo.Coordinate) bool {
	if len(coords) < 2 {
		b.stats.SkippedWays++
		return false
	}

	prev := b.AddNode(coords[0])
	for _, c := range coords[1:] {
		next := b.AddNode(c)
		b.addSegment(prev, next)
		prev = next
	}
	b.stats.Ways++
	return true
}

// addSegment links a and b in both directions. Repeated consecutive coordinates
// produce no self-loop, and a segment already present is not duplicated.
func (b *Builder) addSegment(from, to NodeID) {
	if from == to {
		return
	}
	if _, ok := b.g.Weight(from, to); ok {
		return
	}

	w := geo.Distance(b.g.coords[from], b.g.coords[to])
	b.g.adj[from] = append(b.g.adj[from], Edge{To: to, Weight: w})
	b.g.adj[to] = append(b.g.adj[to], Edge{To: from, Weight: w})
	b.g.edges++
}

// Graph finishes the build. The builder must not be used afterwards.
func (b *Builder) Graph() (*Graph, BuildStats) {
	b.stats.Nodes = b.g.NodeCount()
	b.stats.Edges = b.g.EdgeCount()
	return b.g, b.stats
}

// Build constructs a graph from decoded map data. Point ids are resolved through a
// lookup table in which a later duplicate id replaces an earlier one. Points with
// out-of-range coordinates and way references to unknown ids are dropped; a way
// left with fewer than two coordinates is skipped.
func Build(ds *mapdata.Dataset) (*Graph, BuildStats) {
	b := NewBuilder()

	points := make(map[int64]geo.Coordinate, len(ds.Points))
	for _, p := range ds.Points {
		if err := p.Coordinate.Validate(); err != nil {
			b.stats.SkippedPoints++
			continue
		}
		points[p.ID] = p.Coordinate
	}
	b.stats.Points = len(points)

	coords := make([]geo.Coordinate, 0, 16)
	for _, w := range ds.Ways {
		coords = coords[:0]
		for _, ref := range w.NodeIDs {
			if c, ok := points[ref]; ok {
				coords = append(coords, c)
			}
		}
		b.AddWay(coords)
	}

	return b.Graph()
}
