package mesh

import (
	"fmt"
	"math"
)

// Adjacency is a compressed row element graph. Row i lists the global ids
// of the elements sharing an edge with local element i; boundary edges have
// no entry.
type Adjacency struct {
	RowPtr    []int // [rows+1]
	Neighbors []int // [RowPtr[rows]]
}

// NewAdjacency builds a CSR graph from per row neighbour lists
func NewAdjacency(rows [][]int) *Adjacency {
	adj := &Adjacency{RowPtr: make([]int, len(rows)+1)}
	for i, row := range rows {
		adj.Neighbors = append(adj.Neighbors, row...)
		adj.RowPtr[i+1] = len(adj.Neighbors)
	}
	return adj
}

// NumRows is the number of elements described
func (a *Adjacency) NumRows() int {
	if a == nil || len(a.RowPtr) == 0 {
		return 0
	}
	return len(a.RowPtr) - 1
}

// Row returns the neighbours of row i, sharing storage with the graph
func (a *Adjacency) Row(i int) []int {
	return a.Neighbors[a.RowPtr[i]:a.RowPtr[i+1]]
}

// Slice returns rows [lo,hi) as a new graph
func (a *Adjacency) Slice(lo, hi int) *Adjacency {
	out := &Adjacency{RowPtr: make([]int, hi-lo+1)}
	base := a.RowPtr[lo]
	for i := lo; i <= hi; i++ {
		out.RowPtr[i-lo] = a.RowPtr[i] - base
	}
	out.Neighbors = append([]int(nil), a.Neighbors[base:a.RowPtr[hi]]...)
	return out
}

// Validate checks the row pointers are monotone and consistent with the
// neighbour array, and that every neighbour is a global element id in
// [0,nEle)
func (a *Adjacency) Validate(nEle int) error {
	if len(a.RowPtr) == 0 || a.RowPtr[0] != 0 {
		return fmt.Errorf("adjacency row pointer must start at 0")
	}
	for i := 1; i < len(a.RowPtr); i++ {
		if a.RowPtr[i] < a.RowPtr[i-1] {
			return fmt.Errorf("adjacency row pointer decreases at row %d", i-1)
		}
	}
	if last := a.RowPtr[len(a.RowPtr)-1]; last != len(a.Neighbors) {
		return fmt.Errorf("adjacency row pointer ends at %d, have %d neighbours", last, len(a.Neighbors))
	}
	for i, nb := range a.Neighbors {
		if nb < 0 || nb >= nEle {
			return fmt.Errorf("adjacency entry %d is %d, outside [0,%d)", i, nb, nEle)
		}
	}
	return nil
}

// EdgeKey packs the two vertex ids of an undirected edge into one comparable
// value, smaller id in the low word
type EdgeKey uint64

func NewEdgeKey(v0, v1 int) (EdgeKey, error) {
	for _, v := range []int{v0, v1} {
		if v < 0 || v > math.MaxUint32 {
			return 0, fmt.Errorf("unable to pack vertex ids %d and %d into an edge key", v0, v1)
		}
	}
	if v0 > v1 {
		v0, v1 = v1, v0
	}
	return EdgeKey(uint64(v0) | uint64(v1)<<32), nil
}

// Vertices unpacks the key, smaller id first
func (ek EdgeKey) Vertices() [2]int {
	return [2]int{int(ek & math.MaxUint32), int(ek >> 32)}
}

// BuildAdjacency derives the element graph of a triangle mesh from shared
// edges. Neighbours of element k are listed in edge order (v0v1, v1v2, v2v0).
// An edge shared by more than two elements is an error.
func BuildAdjacency(elements []int, nVert int) (*Adjacency, error) {
	if len(elements)%VertsPerElement != 0 {
		return nil, fmt.Errorf("element array of length %d is not a multiple of %d", len(elements), VertsPerElement)
	}
	var (
		nEle  = len(elements) / VertsPerElement
		edges = make(map[EdgeKey][]int, nEle*VertsPerElement/2+1)
		keys  = make([]EdgeKey, len(elements))
	)
	for k := 0; k < nEle; k++ {
		tri := elements[k*VertsPerElement : (k+1)*VertsPerElement]
		for f := 0; f < VertsPerElement; f++ {
			v0, v1 := tri[f], tri[(f+1)%VertsPerElement]
			if v0 < 0 || v0 >= nVert || v1 < 0 || v1 >= nVert {
				return nil, fmt.Errorf("element %d references a vertex outside [0,%d)", k, nVert)
			}
			ek, err := NewEdgeKey(v0, v1)
			if err != nil {
				return nil, err
			}
			keys[k*VertsPerElement+f] = ek
			edges[ek] = append(edges[ek], k)
			if len(edges[ek]) > 2 {
				verts := ek.Vertices()
				return nil, fmt.Errorf("edge %d-%d is shared by more than two elements", verts[0], verts[1])
			}
		}
	}
	rows := make([][]int, nEle)
	for k := 0; k < nEle; k++ {
		for f := 0; f < VertsPerElement; f++ {
			for _, nb := range edges[keys[k*VertsPerElement+f]] {
				if nb != k {
					rows[k] = append(rows[k], nb)
				}
			}
		}
	}
	return NewAdjacency(rows), nil
}
