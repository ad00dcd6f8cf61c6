package partition

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/iterator"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/notargets/meshdist/comm"
	"github.com/notargets/meshdist/mesh"
)

// GraphGrowing gathers the graph on the root rank and grows parts one at a
// time breadth first from the lowest unassigned element, closing a part
// once it holds ceil(n/size) elements. It needs no external library and
// gives connected, equally sized parts on connected meshes.
type GraphGrowing struct{}

func (GraphGrowing) Name() string { return "graphgrow" }

func (GraphGrowing) Partition(ctx context.Context, c comm.Communicator, g Graph) ([]int, error) {
	adj, counts, err := GatherGraph(ctx, c, comm.Root, g)
	if err != nil {
		return nil, err
	}
	var part []int
	if c.Rank() == comm.Root {
		part = GrowParts(adj, c.Size())
		log.Debug().Int("elements", len(part)).Int("parts", c.Size()).Msg("graph growing partition done")
	}
	return ScatterAssignment(ctx, c, comm.Root, counts, part)
}

// orderedGraph visits neighbours in increasing id order; the simple graph
// iterates a map, which would make the parts differ between calls
type orderedGraph struct {
	*simple.UndirectedGraph
}

func (g orderedGraph) From(id int64) graph.Nodes {
	nodes := graph.NodesOf(g.UndirectedGraph.From(id))
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID() < nodes[j].ID() })
	return iterator.NewOrderedNodes(nodes)
}

// GrowParts partitions a whole graph into nparts breadth first grown parts
func GrowParts(adj *mesh.Adjacency, nparts int) []int {
	var (
		n    = adj.NumRows()
		part = make([]int, n)
		gr   = orderedGraph{simple.NewUndirectedGraph()}
	)
	for i := 0; i < n; i++ {
		part[i] = -1
		gr.AddNode(simple.Node(i))
	}
	for i := 0; i < n; i++ {
		for _, j := range adj.Row(i) {
			if j != i {
				gr.SetEdge(simple.Edge{F: simple.Node(i), T: simple.Node(j)})
			}
		}
	}
	if n == 0 || nparts < 1 {
		return part
	}

	var (
		target = (n + nparts - 1) / nparts
		cur    int
		filled int
		seed   int
	)
	for {
		for seed < n && part[seed] >= 0 {
			seed++
		}
		if seed == n {
			break
		}
		bf := traverse.BreadthFirst{
			Traverse: func(e graph.Edge) bool { return part[e.To().ID()] < 0 },
		}
		bf.Walk(gr, gr.Node(int64(seed)), func(nd graph.Node, _ int) bool {
			if part[nd.ID()] >= 0 {
				return false
			}
			part[nd.ID()] = cur
			if filled++; filled == target {
				cur++
				filled = 0
				return true
			}
			return false
		})
	}
	return part
}
