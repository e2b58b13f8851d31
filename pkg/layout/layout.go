// Package layout places the nodes of machine-generated flows on the canvas.
//
// Nodes are layered breadth-first from the start node: the layer is the shortest hop
// count from start, nodes in a layer keep their discovery order, and nodes that start
// cannot reach are placed on one extra row below the deepest layer. The result depends
// only on the graph, never on existing positions, so Layout is idempotent.
package layout

import (
	"sort"

	"github.com/aretw0/flujos/pkg/domain"
)

// Default spacing between columns and layers.
const (
	DefaultHSpacing = 280.0
	DefaultVSpacing = 160.0
)

type config struct {
	hSpacing float64
	vSpacing float64
}

// Option configures Layout.
type Option func(*config)

// WithSpacing overrides the horizontal and vertical spacing.
func WithSpacing(h, v float64) Option {
	return func(c *config) {
		c.hSpacing = h
		c.vSpacing = v
	}
}

// Layout computes a position for every node.
// An empty or unknown start places every node on the unreachable row.
func Layout(nodes []domain.Node, edges []domain.Edge, start string, opts ...Option) map[string]domain.Position {
	cfg := config{hSpacing: DefaultHSpacing, vSpacing: DefaultVSpacing}
	for _, opt := range opts {
		opt(&cfg)
	}

	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		known[n.ID] = true
	}

	adj := adjacency(edges, known)
	layers := bfs(start, adj, known)

	positions := make(map[string]domain.Position, len(nodes))
	for depth, layer := range layers {
		placeRow(positions, layer, float64(depth)*cfg.vSpacing, cfg.hSpacing)
	}

	var unreachable []string
	for _, n := range nodes {
		if _, ok := positions[n.ID]; !ok {
			unreachable = append(unreachable, n.ID)
		}
	}
	if len(unreachable) > 0 {
		sort.Strings(unreachable)
		unreachable = dedup(unreachable)
		placeRow(positions, unreachable, float64(len(layers))*cfg.vSpacing, cfg.hSpacing)
	}

	return positions
}

// Apply writes the computed positions into the flow's nodes.
func Apply(f *domain.Flow, opts ...Option) {
	start := ""
	if n, ok := f.StartNode(); ok {
		start = n.ID
	}
	pos := Layout(f.Nodos, f.Edges, start, opts...)
	for i := range f.Nodos {
		f.Nodos[i].Posicion = pos[f.Nodos[i].ID]
	}
}

// adjacency returns successors per node, ordered by (handle, destino, id).
func adjacency(edges []domain.Edge, known map[string]bool) map[string][]string {
	sorted := make([]domain.Edge, 0, len(edges))
	for _, e := range edges {
		if known[e.Origen] && known[e.Destino] {
			sorted = append(sorted, e)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Origen != b.Origen {
			return a.Origen < b.Origen
		}
		if a.SourceHandle != b.SourceHandle {
			return a.SourceHandle < b.SourceHandle
		}
		if a.Destino != b.Destino {
			return a.Destino < b.Destino
		}
		return a.ID < b.ID
	})

	adj := make(map[string][]string)
	for _, e := range sorted {
		adj[e.Origen] = append(adj[e.Origen], e.Destino)
	}
	return adj
}

func bfs(start string, adj map[string][]string, known map[string]bool) [][]string {
	if !known[start] {
		return nil
	}
	visited := map[string]bool{start: true}
	var layers [][]string
	frontier := []string{start}
	for len(frontier) > 0 {
		layers = append(layers, frontier)
		var next []string
		for _, id := range frontier {
			for _, to := range adj[id] {
				if !visited[to] {
					visited[to] = true
					next = append(next, to)
				}
			}
		}
		frontier = next
	}
	return layers
}

// placeRow centers ids horizontally around x=0 at height y.
func placeRow(positions map[string]domain.Position, ids []string, y, spacing float64) {
	offset := float64(len(ids)-1) / 2
	for i, id := range ids {
		positions[id] = domain.Position{X: (float64(i) - offset) * spacing, Y: y}
	}
}

func dedup(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
