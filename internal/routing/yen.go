package routing

import (
	"context"
	"encoding/binary"
	"slices"

	"github.com/ridefinder/ridefinder/internal/graph"
)

// KShortestPaths returns up to k loopless paths from start to end in ascending order
// of distance. Fewer than k paths are returned when the graph has no more; none when
// the nodes are disconnected or k <= 0.
func KShortestPaths(g *graph.Graph, start, end graph.NodeID, k int) []Path {
	paths, _ := KShortestPathsContext(context.Background(), g, start, end, k)
	return paths
}

// KShortestPathsContext is KShortestPaths with cancellation. The context is checked
// before every spur search; on cancellation the paths accepted so far are returned
// with the context's error.
//
// The enumeration is Yen's algorithm. For every node of the last accepted path a spur
// search runs with the next edge of each accepted path sharing the same root removed
// and every root node before the spur cut off, so each candidate is loopless.
// Candidates equal to an accepted or pending path are dropped; among equally short
// candidates the one found first wins.
func KShortestPathsContext(ctx context.Context, g *graph.Graph, start, end graph.NodeID, k int) ([]Path, error) {
	if k <= 0 {
		return nil, nil
	}

	first, ok := ShortestPath(g, start, end, nil)
	if !ok {
		return nil, nil
	}

	accepted := []Path{first}
	seen := map[string]struct{}{pathKey(first.Nodes): {}}
	var candidates []Path

	for len(accepted) < k {
		last := accepted[len(accepted)-1].Nodes

		for i := 0; i < len(last)-1; i++ {
			if err := ctx.Err(); err != nil {
				return accepted, err
			}

			spur := last[i]
			root := last[:i+1]

			excluded := make(ExcludedEdges)
			for _, p := range accepted {
				if len(p.Nodes) > i+1 && slices.Equal(p.Nodes[:i+1], root) {
					excluded.Add(p.Nodes[i], p.Nodes[i+1])
				}
			}
			for _, n := range root[:i] {
				for _, e := range g.Neighbors(n) {
					excluded.Add(n, e.To)
					excluded.Add(e.To, n)
				}
			}

			spurPath, ok := ShortestPath(g, spur, end, excluded)
			if !ok {
				continue
			}

			nodes := make([]graph.NodeID, 0, i+len(spurPath.Nodes))
			nodes = append(nodes, root[:i]...)
			nodes = append(nodes, spurPath.Nodes...)

			key := pathKey(nodes)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			candidates = append(candidates, Path{Nodes: nodes, Distance: pathCost(g, nodes)})
		}

		if len(candidates) == 0 {
			break
		}

		best := 0
		for j := 1; j < len(candidates); j++ {
			if candidates[j].Distance < candidates[best].Distance {
				best = j
			}
		}
		accepted = append(accepted, candidates[best])
		candidates = slices.Delete(candidates, best, best+1)
	}

	return accepted, nil
}

// pathCost sums edge weights along nodes in order.
func pathCost(g *graph.Graph, nodes []graph.NodeID) float64 {
	var total float64
	for i := 1; i < len(nodes); i++ {
		w, _ := g.Weight(nodes[i-1], nodes[i])
		total += w
	}
	return total
}

func pathKey(nodes []graph.NodeID) string {
	buf := make([]byte, 0, 4*len(nodes))
	for _, n := range nodes {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(n))
	}
	return string(buf)
}
