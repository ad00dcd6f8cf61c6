// Package mesh holds the triangle mesh data model: the global mesh read on the
// root rank, the per rank GridData chunks the redistribution phases operate
// on, the CSR element adjacency, and the readers and initial distributor that
// produce them.
package mesh

import (
	"fmt"
	"math"
)

// VertsPerElement is the number of vertex references per element
const VertsPerElement = 3

// CoordsPerVertex is the number of coordinates per vertex
const CoordsPerVertex = 2

// Mesh is a whole triangle mesh, as held by the reading rank
type Mesh struct {
	Title    string
	NVert    int
	NEle     int
	Coords   []float64 // [NVert*2] x, y per vertex
	Elements []int     // [NEle*3] vertex ids per element
	Adj      *Adjacency
}

// NewMesh builds a mesh from flat coordinate and element arrays and derives
// the adjacency from shared edges
func NewMesh(title string, coords []float64, elements []int) (*Mesh, error) {
	if len(coords)%CoordsPerVertex != 0 {
		return nil, fmt.Errorf("coordinate array of length %d is not a multiple of %d", len(coords), CoordsPerVertex)
	}
	if len(elements)%VertsPerElement != 0 {
		return nil, fmt.Errorf("element array of length %d is not a multiple of %d", len(elements), VertsPerElement)
	}
	m := &Mesh{
		Title:    title,
		NVert:    len(coords) / CoordsPerVertex,
		NEle:     len(elements) / VertsPerElement,
		Coords:   coords,
		Elements: elements,
	}
	adj, err := BuildAdjacency(elements, m.NVert)
	if err != nil {
		return nil, err
	}
	m.Adj = adj
	return m, m.Validate()
}

// Element returns the vertex triple of element k
func (m *Mesh) Element(k int) [3]int {
	e := m.Elements[k*VertsPerElement:]
	return [3]int{e[0], e[1], e[2]}
}

// Vertex returns the coordinates of vertex v
func (m *Mesh) Vertex(v int) [2]float64 {
	return [2]float64{m.Coords[v*CoordsPerVertex], m.Coords[v*CoordsPerVertex+1]}
}

// Validate checks array shapes and that every reference is in range
func (m *Mesh) Validate() error {
	if len(m.Coords) != m.NVert*CoordsPerVertex {
		return fmt.Errorf("mesh has %d coordinates for %d vertices", len(m.Coords), m.NVert)
	}
	if len(m.Elements) != m.NEle*VertsPerElement {
		return fmt.Errorf("mesh has %d element references for %d elements", len(m.Elements), m.NEle)
	}
	for i, v := range m.Elements {
		if v < 0 || v >= m.NVert {
			return fmt.Errorf("element %d references vertex %d outside [0,%d)", i/VertsPerElement, v, m.NVert)
		}
	}
	if m.Adj != nil {
		if m.Adj.NumRows() != m.NEle {
			return fmt.Errorf("adjacency has %d rows for %d elements", m.Adj.NumRows(), m.NEle)
		}
		if err := m.Adj.Validate(m.NEle); err != nil {
			return err
		}
	}
	return nil
}

// Bounds returns the bounding box of the vertex coordinates
func (m *Mesh) Bounds() (xmin, xmax, ymin, ymax float64) {
	xmin, ymin = math.Inf(1), math.Inf(1)
	xmax, ymax = math.Inf(-1), math.Inf(-1)
	for v := 0; v < m.NVert; v++ {
		x, y := m.Coords[2*v], m.Coords[2*v+1]
		xmin, xmax = math.Min(xmin, x), math.Max(xmax, x)
		ymin, ymax = math.Min(ymin, y), math.Max(ymax, y)
	}
	return
}
