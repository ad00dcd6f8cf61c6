package partition

import (
	"context"
	"fmt"
	"sort"

	"github.com/james-bowman/sparse"

	"github.com/notargets/meshdist/comm"
	"github.com/notargets/meshdist/mesh"
)

// GatherGraph assembles the global graph on root from every rank's rows.
// Ranks must hold consecutive row ranges in rank order. Root gets the graph
// and the row count of every rank; other ranks get nil.
func GatherGraph(ctx context.Context, c comm.Communicator, root int, g Graph) (*mesh.Adjacency, []int, error) {
	header := []int{g.FirstRow, g.NumRows()}
	headers, err := comm.GatherSlices(ctx, c, root, header)
	if err != nil {
		return nil, nil, err
	}
	lengths := make([]int, g.NumRows())
	for i := range lengths {
		lengths[i] = len(g.Adj.Row(i))
	}
	rowLens, err := comm.GatherSlices(ctx, c, root, lengths)
	if err != nil {
		return nil, nil, err
	}
	nbrs, err := comm.GatherSlices(ctx, c, root, g.Adj.Neighbors)
	if err != nil {
		return nil, nil, err
	}
	if c.Rank() != root {
		return nil, nil, nil
	}

	var (
		counts = make([]int, c.Size())
		rows   [][]int
		next   = 0
	)
	for r := range headers {
		if len(headers[r]) != 2 || headers[r][0] != next {
			return nil, nil, fmt.Errorf("%w: rank %d rows do not continue at %d", comm.ErrProtocol, r, next)
		}
		counts[r] = headers[r][1]
		if len(rowLens[r]) != counts[r] {
			return nil, nil, fmt.Errorf("%w: rank %d sent %d row lengths for %d rows",
				comm.ErrProtocol, r, len(rowLens[r]), counts[r])
		}
		pos := 0
		for _, n := range rowLens[r] {
			if pos+n > len(nbrs[r]) {
				return nil, nil, fmt.Errorf("%w: rank %d sent %d neighbours, rows need more",
					comm.ErrProtocol, r, len(nbrs[r]))
			}
			rows = append(rows, nbrs[r][pos:pos+n])
			pos += n
		}
		if pos != len(nbrs[r]) {
			return nil, nil, fmt.Errorf("%w: rank %d sent %d neighbours, rows use %d",
				comm.ErrProtocol, r, len(nbrs[r]), pos)
		}
		next += counts[r]
	}
	adj := mesh.NewAdjacency(rows)
	if err := adj.Validate(next); err != nil {
		return nil, nil, fmt.Errorf("gathered graph: %w", err)
	}
	return adj, counts, nil
}

// ScatterAssignment hands each rank its slice of a global assignment held
// on root, cut by the per rank row counts from GatherGraph
func ScatterAssignment(ctx context.Context, c comm.Communicator, root int, counts, part []int) ([]int, error) {
	var parts [][]int
	if c.Rank() == root {
		parts = make([][]int, c.Size())
		pos := 0
		for r, n := range counts {
			if pos+n > len(part) {
				return nil, fmt.Errorf("%w: %d destinations for at least %d elements", ErrInvalidAssignment, len(part), pos+n)
			}
			parts[r] = part[pos : pos+n]
			pos += n
		}
	}
	return comm.ScatterSlices(ctx, c, root, parts)
}

// CheckSymmetric reports the first neighbour entry that has no reverse
// entry. Partitioners such as METIS require an undirected graph.
func CheckSymmetric(adj *mesh.Adjacency) error {
	n := adj.NumRows()
	if n == 0 {
		return nil
	}
	var (
		ia   = append([]int(nil), adj.RowPtr...)
		ja   = append([]int(nil), adj.Neighbors...)
		data = make([]float64, len(ja))
	)
	for i := 0; i < n; i++ {
		sort.Ints(ja[ia[i]:ia[i+1]])
	}
	for i := range data {
		data[i] = 1
	}
	csr := sparse.NewCSR(n, n, ia, ja, data)
	for i := 0; i < n; i++ {
		for _, j := range adj.Row(i) {
			if j == i {
				return fmt.Errorf("element %d lists itself as a neighbour", i)
			}
			if csr.At(j, i) == 0 {
				return fmt.Errorf("element %d lists %d as a neighbour but not the reverse", i, j)
			}
		}
	}
	return nil
}
