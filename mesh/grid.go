package mesh

// GridData is one rank's view of the mesh between pipeline phases. Which
// fields are live depends on the phase that last ran:
//
//	after distribution       Elements, Vertices, Adj (initial contiguous ids)
//	after element partition  Destinations set, Adj released
//	after element move       Elements renumbered and moved, Destinations cleared
//	after vertex partition   Owned lists the claimed old vertex ids
//	after vertex move        Vertices and element references in the new numbering
type GridData struct {
	NVert int // global vertex count
	NEle  int // global element count

	// FirstEle is the global id of Elements[0]; element ids owned by this
	// rank are contiguous in every epoch.
	FirstEle int
	Elements []int // [local elements*3]
	Adj      *Adjacency

	// FirstVert is the global id of Vertices[0] in the current epoch
	FirstVert int
	Vertices  []float64 // [local vertices*2]

	// Destinations holds one destination rank per local element
	Destinations []int
	// Owned holds the old vertex ids claimed by this rank, in claim order
	Owned []int
}

// LocalEle is the number of elements held by this rank
func (g *GridData) LocalEle() int { return len(g.Elements) / VertsPerElement }

// LocalVert is the number of vertices held by this rank
func (g *GridData) LocalVert() int { return len(g.Vertices) / CoordsPerVertex }

// Element returns the vertex triple of local element k
func (g *GridData) Element(k int) [3]int {
	e := g.Elements[k*VertsPerElement:]
	return [3]int{e[0], e[1], e[2]}
}
