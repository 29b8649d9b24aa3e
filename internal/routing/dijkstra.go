package routing

import (
	"container/heap"
	"slices"

	"github.com/ridefinder/ridefinder/internal/graph"
)

type queueItem struct {
	node graph.NodeID
	dist float64
	seq  uint64
}

// frontier orders entries by distance, then NodeID, then insertion order.
type frontier []queueItem

func (f frontier) Len() int { return len(f) }

func (f frontier) Less(i, j int) bool {
	if f[i].dist != f[j].dist {
		return f[i].dist < f[j].dist
	}
	if f[i].node != f[j].node {
		return f[i].node < f[j].node
	}
	return f[i].seq < f[j].seq
}

func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }

func (f *frontier) Push(x any) { *f = append(*f, x.(queueItem)) }

func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	item := old[n-1]
	*f = old[:n-1]
	return item
}

// ShortestPath runs Dijkstra from start to end, never traversing an excluded directed
// edge. It reports false when end is unreachable or either node is not in g.
// All search state is local, so concurrent calls on the same graph are safe.
func ShortestPath(g *graph.Graph, start, end graph.NodeID, excluded ExcludedEdges) (Path, bool) {
	if !g.Contains(start) || !g.Contains(end) {
		return Path{}, false
	}
	if start == end {
		return Path{Nodes: []graph.NodeID{start}}, true
	}

	dist := map[graph.NodeID]float64{start: 0}
	prev := make(map[graph.NodeID]graph.NodeID)
	settled := make(map[graph.NodeID]struct{})

	var seq uint64
	pq := &frontier{{node: start}}

	for pq.Len() > 0 {
		item := heap.Pop(pq).(queueItem)
		if _, done := settled[item.node]; done {
			continue
		}
		settled[item.node] = struct{}{}

		if item.node == end {
			return Path{Nodes: tracePath(prev, start, end), Distance: item.dist}, true
		}

		for _, e := range g.Neighbors(item.node) {
			if _, done := settled[e.To]; done {
				continue
			}
			if excluded.Contains(item.node, e.To) {
				continue
			}

			nd := item.dist + e.Weight
			if d, seen := dist[e.To]; seen && nd >= d {
				continue
			}
			dist[e.To] = nd
			prev[e.To] = item.node

			seq++
			heap.Push(pq, queueItem{node: e.To, dist: nd, seq: seq})
		}
	}

	return Path{}, false
}

func tracePath(prev map[graph.NodeID]graph.NodeID, start, end graph.NodeID) []graph.NodeID {
	var nodes []graph.NodeID
	for n := end; ; n = prev[n] {
		nodes = append(nodes, n)
		if n == start {
			break
		}
	}
	slices.Reverse(nodes)
	return nodes
}
